package pipeline

// ClipWindow computes the media window around a declared test at
// timestampSec: pre-roll before it, post-roll after it, clamped to the
// media bounds. ok is false when the window has no usable extent, which
// callers treat as "video unavailable" for that step.
func ClipWindow(timestampSec float64, mediaDurationSec float64, cfg Config) (startSec, endSec float64, ok bool) {
	if mediaDurationSec <= 0 {
		return 0, 0, false
	}
	startSec = timestampSec - cfg.PreRollSec
	endSec = timestampSec + cfg.PostRollSec
	if startSec < 0 {
		startSec = 0
	}
	if endSec > mediaDurationSec {
		endSec = mediaDurationSec
	}
	if endSec <= startSec {
		return 0, 0, false
	}
	return startSec, endSec, true
}
