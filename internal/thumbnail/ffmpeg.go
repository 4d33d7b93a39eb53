// Package thumbnail extracts a preview frame from finished videos.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// ObjectWriter stores thumbnail bytes and returns the canonical key.
type ObjectWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// KeySetter records the thumbnail key on the job.
type KeySetter interface {
	SetThumbnail(ctx context.Context, jobID, key string) error
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor grabs one frame with ffmpeg.
type Extractor struct {
	ffmpeg string
	store  ObjectWriter
	jobs   KeySetter
	run    Runner
	log    zerolog.Logger
}

// NewExtractor wires an extractor. An empty ffmpegPath means "ffmpeg" on PATH.
func NewExtractor(ffmpegPath string, store ObjectWriter, jobs KeySetter, logger zerolog.Logger) *Extractor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{
		ffmpeg: ffmpegPath,
		store:  store,
		jobs:   jobs,
		run:    execRunner,
		log:    logger.With().Str("component", "thumbnail").Logger(),
	}
}

// Key is where the thumbnail of jobID is stored.
func Key(jobID string) string {
	return "thumbnails/" + jobID + ".jpg"
}

// Thumbnail implements generation.Thumbnailer.
func (e *Extractor) Thumbnail(ctx context.Context, job *domain.Job) error {
	if job == nil || job.Result == nil || len(job.Result.URLs) == 0 {
		return errors.New("thumbnail: job has no result url")
	}
	src := job.Result.URLs[0]
	frame, err := e.run(ctx, e.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", "1",
		"-i", src,
		"-frames:v", "1",
		"-vf", "scale=480:-2",
		"-f", "image2", "-c:v", "mjpeg",
		"pipe:1",
	)
	if err != nil {
		return fmt.Errorf("thumbnail: ffmpeg: %w", err)
	}
	if len(frame) == 0 {
		return errors.New("thumbnail: ffmpeg produced no frame")
	}
	key, err := e.store.Write(ctx, Key(job.ID), frame)
	if err != nil {
		return err
	}
	if err := e.jobs.SetThumbnail(ctx, job.ID, key); err != nil {
		return fmt.Errorf("thumbnail: record key: %w", err)
	}
	e.log.Debug().Str("job_id", job.ID).Str("key", key).Int("bytes", len(frame)).Msg("thumbnail stored")
	return nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
