package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps the pipeline error taxonomy onto HTTP.
func RespondDomainError(c *gin.Context, err error) {
	var pre *cmerr.PreconditionError
	var conflict *cmerr.ConcurrencyConflict
	switch {
	case errors.Is(err, cmerr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, cmerr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.As(err, &pre):
		RespondError(c, http.StatusConflict, "precondition_failed", err)
	case errors.As(err, &conflict):
		RespondError(c, http.StatusConflict, "concurrency_conflict", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
