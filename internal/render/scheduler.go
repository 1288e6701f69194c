package render

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"reel/internal/config"
	"reel/internal/deps"
	"reel/internal/fileutil"
	"reel/internal/jobs"
	"reel/internal/logging"
	"reel/internal/segment"
	"reel/internal/services"
)

// OutputFilename is the deterministic per-chapter deliverable name.
const OutputFilename = "video.mp4"

// Service orchestrates render jobs: it partitions segments into bounded
// concurrent batches, merges the resulting clips in segment order, and owns
// the job's progress state. One job runs at a time per Service; progress
// from the last job stays queryable until the next one starts.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	encoder Encoder
	loader  *segment.Loader
	history *jobs.Store

	mu      sync.Mutex
	current *Tracker
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithEncoder injects an encoder, bypassing hardware detection (primarily for tests).
func WithEncoder(encoder Encoder) ServiceOption {
	return func(s *Service) {
		if encoder != nil {
			s.encoder = encoder
		}
	}
}

// WithLoader injects a segment loader.
func WithLoader(loader *segment.Loader) ServiceOption {
	return func(s *Service) {
		if loader != nil {
			s.loader = loader
		}
	}
}

// WithHistory records job outcomes in the given store.
func WithHistory(store *jobs.Store) ServiceOption {
	return func(s *Service) {
		s.history = store
	}
}

// NewService constructs a render service from application config.
func NewService(cfg *config.Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	service := &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		loader: segment.NewLoader(cfg.FFprobeBinary()),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Progress returns a snapshot of the current or most recent job. The second
// return is false when no job has started yet.
func (s *Service) Progress() (Snapshot, bool) {
	s.mu.Lock()
	tracker := s.current
	s.mu.Unlock()
	if tracker == nil {
		return Snapshot{}, false
	}
	return tracker.Progress(), true
}

// Cancel requests cooperative cancellation of the running job and returns an
// acknowledgement. In-flight external encodes run to completion; the job
// stops at the next frame or batch boundary.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	tracker := s.current
	s.mu.Unlock()
	if tracker == nil {
		return false
	}
	return tracker.Cancel()
}

// Render assembles chapterDir/video.mp4 from the chapter's segments. It is
// strictly all-or-nothing: any segment failure fails the job and no output
// is produced, and an existing video.mp4 is only replaced by the final
// atomic rename on full success.
func (s *Service) Render(ctx context.Context, chapterDir string, overrides Overrides) (outputPath string, err error) {
	settings, err := SettingsFromConfig(s.cfg).Apply(overrides)
	if err != nil {
		return "", err
	}
	if err := s.cfg.EnsureDirectories(); err != nil {
		return "", err
	}

	chapterDir, err = filepath.Abs(chapterDir)
	if err != nil {
		return "", fmt.Errorf("resolve chapter directory: %w", err)
	}
	outputPath = filepath.Join(chapterDir, OutputFilename)

	// One render per chapter at a time; a second invocation fails fast
	// instead of racing on temp names and the output file.
	lock := flock.New(filepath.Join(chapterDir, ".reel.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("acquire chapter lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("chapter %s: render already in progress", chapterDir)
	}
	defer func() { _ = lock.Unlock() }()

	segments, err := segment.Discover(chapterDir)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", services.Wrap(services.ErrNoSegments, "scheduler", "discover", chapterDir, nil)
	}

	tracker := NewTracker(len(segments))
	s.mu.Lock()
	s.current = tracker
	s.mu.Unlock()

	var jobID int64
	if s.history != nil {
		id, histErr := s.history.Begin(ctx, chapterDir, len(segments))
		if histErr != nil {
			s.logger.Warn("job history unavailable", logging.Error(histErr))
		} else {
			jobID = id
		}
	}
	defer func() {
		if s.history != nil && jobID != 0 {
			snapshot := tracker.Progress()
			status := jobs.StatusCompleted
			detail := ""
			if err != nil {
				status = jobs.StatusFailed
				if isCancellation(err) {
					status = jobs.StatusCancelled
				}
				detail = err.Error()
			}
			finished := outputPath
			if err != nil {
				finished = ""
			}
			if histErr := s.history.Finish(context.WithoutCancel(ctx), jobID, status, snapshot.Completed, finished, detail); histErr != nil {
				s.logger.Warn("record job outcome", logging.Error(histErr))
			}
		}
	}()

	encoder := s.encoder
	if encoder == nil {
		useHardware := settings.HardwareAccel && deps.DetectHardwareEncoder(ctx, s.cfg.FFmpegBinary())
		if settings.HardwareAccel && !useHardware {
			s.logger.Warn("hardware encoder unavailable, using software codec")
		}
		encoder = NewFFmpegEncoder(s.cfg.FFmpegBinary(), useHardware)
	}
	renderer := NewRenderer(s.loader, encoder, settings, tracker, s.logger)

	s.logger.Info("render started",
		logging.String(logging.FieldChapter, chapterDir),
		logging.Int("segments", len(segments)),
		logging.Int("batch_size", settings.BatchSize),
	)

	// clips is indexed by discovery position so the merge order is the
	// ascending segment-id order, never completion order.
	clips := make([]*Clip, len(segments))
	defer func() {
		for _, clip := range clips {
			if clip == nil {
				continue
			}
			fileutil.RemoveWithRetry(clip.VideoPath, s.logger)
			fileutil.RemoveWithRetry(clip.AudioPath, s.logger)
		}
	}()

	if err := s.renderBatches(ctx, renderer, segments, clips, tracker, settings.BatchSize); err != nil {
		return "", err
	}

	tracker.SetPhase(PhaseMerging)
	ordered := make([]Clip, 0, len(clips))
	for _, clip := range clips {
		ordered = append(ordered, *clip)
	}
	if err := encoder.Concat(ctx, ordered, outputPath); err != nil {
		return "", err
	}

	tracker.SetPhase(PhaseCompleted)
	s.logger.Info("render complete",
		logging.String(logging.FieldChapter, chapterDir),
		logging.String("output", outputPath),
	)
	return outputPath, nil
}

// renderBatches runs fixed-size windows of segments concurrently, waiting for
// each window before starting the next. Bounded concurrency caps peak memory:
// every in-flight render holds a scaled source image and a frame in flight.
func (s *Service) renderBatches(ctx context.Context, renderer *Renderer, segments []segment.Segment, clips []*Clip, tracker *Tracker, batchSize int) error {
	var mu sync.Mutex
	failures := 0

	for start := 0; start < len(segments); start += batchSize {
		if tracker.Cancelled() || ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "scheduler", "render", "job cancelled", ctx.Err())
		}

		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				clip, err := renderer.RenderSegment(ctx, segments[idx])
				if err != nil {
					// A failing segment never cancels its batch-mates.
					if !isCancellation(err) {
						s.logger.Error("segment incomplete",
							logging.Int(logging.FieldSegment, segments[idx].ID),
							logging.Error(err),
						)
					}
					mu.Lock()
					failures++
					mu.Unlock()
					return
				}
				mu.Lock()
				clips[idx] = &clip
				mu.Unlock()
			}(i)
		}
		wg.Wait()
	}

	if tracker.Cancelled() || ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "scheduler", "render", "job cancelled", ctx.Err())
	}
	if failures > 0 {
		return services.Wrap(services.ErrPartialFailure, "scheduler", "render",
			fmt.Sprintf("%d of %d segments incomplete", failures, len(segments)), nil)
	}
	return nil
}
