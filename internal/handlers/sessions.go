package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
	"github.com/yungbote/cme-analysis-backend/internal/services"
)

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
}

func NewSessionHandler(sessions services.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		sessions: sessions,
	}
}

type createSessionRequest struct {
	ExaminerName string `json:"examiner_name" binding:"required"`
	PatientRef   string `json:"patient_ref" binding:"required"`
	CaseRef      string `json:"case_ref"`
	ExamDate     string `json:"exam_date"` // RFC 3339, optional
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	var examDate time.Time
	if req.ExamDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExamDate)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_exam_date", err)
			return
		}
		examDate = parsed
	}
	sess, err := h.sessions.CreateSession(c.Request.Context(), services.CreateSessionInput{
		ExaminerName: req.ExaminerName,
		PatientRef:   req.PatientRef,
		CaseRef:      req.CaseRef,
		ExamDate:     examDate,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type registerMediaRequest struct {
	MediaURI string `json:"media_uri" binding:"required"`
}

func (h *SessionHandler) RegisterMedia(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req registerMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	sess, err := h.sessions.RegisterMedia(c.Request.Context(), id, req.MediaURI)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, sess)
}

func (h *SessionHandler) Process(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.sessions.TriggerProcessing(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": id, "processing": true})
}

func (h *SessionHandler) GetPipeline(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.sessions.GetSession(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"session_id":     sess.ID,
		"stage":          sess.Stage,
		"status":         sess.Status,
		"failure_reason": sess.FailureReason,
		"summary":        sess.Summary,
		"updated_at":     sess.UpdatedAt,
	})
}

func (h *SessionHandler) ListSteps(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	steps, err := h.sessions.ListSteps(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": id, "steps": steps})
}

func (h *SessionHandler) ListActions(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	actions, err := h.sessions.ListActions(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": id, "actions": actions})
}

func (h *SessionHandler) ListFlags(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	flags, err := h.sessions.ListFlags(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": id, "flags": flags})
}

func (h *SessionHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return uuid.Nil, false
	}
	return id, true
}
