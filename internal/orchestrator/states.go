package orchestrator

// Session stages in pipeline order. The video chain (segmenting_video,
// analyzing_actions) and analyzing_demeanor run concurrently; the stage
// column tracks the furthest point reached, so advancement is monotonic
// by rank rather than strictly sequential across the parallel band.
const (
	StageCreated           = "created"
	StageRecordingUploaded = "recording_uploaded"
	StageTranscribing      = "transcribing"
	StageDetectingTests    = "detecting_tests"
	StageSegmentingVideo   = "segmenting_video"
	StageAnalyzingActions  = "analyzing_actions"
	StageAnalyzingDemeanor = "analyzing_demeanor"
	StageCompilingReport   = "compiling_report"
	StageCompleted         = "completed"
	StageError             = "error"
)

var stageRank = map[string]int{
	StageCreated:           0,
	StageRecordingUploaded: 1,
	StageTranscribing:      2,
	StageDetectingTests:    3,
	StageSegmentingVideo:   4,
	StageAnalyzingActions:  5,
	StageAnalyzingDemeanor: 6,
	StageCompilingReport:   7,
	StageCompleted:         8,
}

// StageRank returns the ordering rank of a stage. Unknown stages and
// the error stage have no rank.
func StageRank(stage string) (int, bool) {
	r, ok := stageRank[stage]
	return r, ok
}

// Terminal reports whether a stage admits no further transitions.
func Terminal(stage string) bool {
	return stage == StageCompleted || stage == StageError
}

// ValidStage reports whether stage is one the machine recognizes.
func ValidStage(stage string) bool {
	if stage == StageError {
		return true
	}
	_, ok := stageRank[stage]
	return ok
}
