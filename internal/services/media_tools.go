package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/cme-analysis-backend/internal/cmerr"
	"github.com/yungbote/cme-analysis-backend/internal/logger"
)

// MediaToolsService is the glue around system binaries.
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg for clip cutting
// - ffprobe for duration probing
//
// Synchronous and deterministic; call from the pipeline worker, not
// request handlers.
type MediaToolsService interface {
	AssertReady(ctx context.Context) error
	CutClip(ctx context.Context, inputPath string, startSec, endSec float64, outPath string) error
	ProbeDuration(ctx context.Context, inputPath string) (float64, error)
}

type mediaToolsService struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string

	defaultTimeout time.Duration
}

func NewMediaToolsService(log *logger.Logger) MediaToolsService {
	return &mediaToolsService{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       "/tmp/cme-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *mediaToolsService) AssertReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

// CutClip re-encodes [startSec, endSec] of the input into outPath.
// Seeking before the input keeps it fast; re-encoding keeps clip
// boundaries exact for downstream analysis.
func (m *mediaToolsService) CutClip(ctx context.Context, inputPath string, startSec, endSec float64, outPath string) error {
	if endSec <= startSec {
		return cmerr.Permanent("cut_clip", fmt.Errorf("invalid window [%.2f, %.2f]", startSec, endSec))
	}
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("clip source %q: %w", inputPath, cmerr.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-ss", formatSec(startSec),
		"-i", inputPath,
		"-t", formatSec(endSec - startSec),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return cmerr.Permanent("cut_clip", fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 400)))
	}
	return nil
}

func (m *mediaToolsService) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return 0, fmt.Errorf("probe source %q: %w", inputPath, cmerr.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, cmerr.Permanent("probe_duration", fmt.Errorf("ffprobe: %w", err))
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, cmerr.Permanent("probe_duration", fmt.Errorf("parse ffprobe output %q: %w", string(out), err))
	}
	return dur, nil
}

func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
