package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/cme-analysis-backend/internal/logger"
)

// ClipService cuts windows out of session recordings and stores them
// next to the source media. It satisfies the pipeline runner's
// ClipExtractor dependency and also probes recording durations when
// media is registered.
type ClipService interface {
	ExtractClip(ctx context.Context, mediaURI string, startSec, endSec float64) (string, error)
	ProbeMediaDuration(ctx context.Context, mediaURI string) (float64, error)
}

type clipService struct {
	log    *logger.Logger
	bucket BucketService
	tools  MediaToolsService

	// Source downloads are cached on disk per media object so the
	// per-step fan-out doesn't fetch the same recording repeatedly.
	mu       sync.Mutex
	inflight map[string]*sync.Once
	cacheDir string
}

func NewClipService(bucket BucketService, tools MediaToolsService, log *logger.Logger) ClipService {
	return &clipService{
		log:      log.With("service", "ClipService"),
		bucket:   bucket,
		tools:    tools,
		inflight: map[string]*sync.Once{},
		cacheDir: "/tmp/cme-media/sources",
	}
}

func (s *clipService) ExtractClip(ctx context.Context, mediaURI string, startSec, endSec float64) (string, error) {
	srcPath, err := s.localSource(ctx, mediaURI)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("clip_%s_%s_%s.mp4",
		shortHash(mediaURI), formatSec(startSec), formatSec(endSec)))
	defer os.Remove(outPath)

	if err := s.tools.CutClip(ctx, srcPath, startSec, endSec, outPath); err != nil {
		return "", err
	}

	_, srcKey, err := s.bucket.ParseURI(mediaURI)
	if err != nil {
		return "", err
	}
	clipKey := fmt.Sprintf("clips/%s/%s_%s.mp4", srcKey, formatSec(startSec), formatSec(endSec))

	f, err := os.Open(outPath)
	if err != nil {
		return "", fmt.Errorf("open cut clip: %w", err)
	}
	defer f.Close()
	if err := s.bucket.UploadFile(ctx, clipKey, f); err != nil {
		return "", err
	}

	uri := s.bucket.ObjectURI(clipKey)
	s.log.Debug("clip extracted", "media_uri", mediaURI, "clip_uri", uri,
		"start", startSec, "end", endSec)
	return uri, nil
}

func (s *clipService) ProbeMediaDuration(ctx context.Context, mediaURI string) (float64, error) {
	srcPath, err := s.localSource(ctx, mediaURI)
	if err != nil {
		return 0, err
	}
	return s.tools.ProbeDuration(ctx, srcPath)
}

// localSource downloads the media object into the cache once; sibling
// goroutines extracting clips from the same recording share the file.
func (s *clipService) localSource(ctx context.Context, mediaURI string) (string, error) {
	_, key, err := s.bucket.ParseURI(mediaURI)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.cacheDir, shortHash(mediaURI)+filepath.Ext(key))

	s.mu.Lock()
	once, ok := s.inflight[path]
	if !ok {
		once = &sync.Once{}
		s.inflight[path] = once
	}
	s.mu.Unlock()

	var dlErr error
	once.Do(func() {
		if _, statErr := os.Stat(path); statErr == nil {
			return
		}
		if dlErr = os.MkdirAll(s.cacheDir, 0o755); dlErr != nil {
			return
		}
		tmp := path + ".partial"
		var f *os.File
		if f, dlErr = os.Create(tmp); dlErr != nil {
			return
		}
		if dlErr = s.bucket.DownloadFile(ctx, key, f); dlErr != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return
		}
		if dlErr = f.Close(); dlErr != nil {
			_ = os.Remove(tmp)
			return
		}
		dlErr = os.Rename(tmp, path)
	})
	if dlErr != nil {
		// Let a later attempt retry the download.
		s.mu.Lock()
		delete(s.inflight, path)
		s.mu.Unlock()
		return "", dlErr
	}
	if _, err := os.Stat(path); err != nil {
		s.mu.Lock()
		delete(s.inflight, path)
		s.mu.Unlock()
		return "", fmt.Errorf("cached source missing: %w", err)
	}
	return path, nil
}

func shortHash(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}
