package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"time"

	"reel/internal/effects"
	"reel/internal/logging"
	"reel/internal/segment"
	"reel/internal/services"
)

// Renderer turns one segment into an encoded clip: it loads the assets,
// generates the frame sequence through the effect engine, and hands the
// frames to the encoder. A Renderer is created per job and shared by the
// batch workers; it holds no per-segment state.
type Renderer struct {
	loader   *segment.Loader
	encoder  Encoder
	settings Settings
	tracker  *Tracker
	logger   *slog.Logger
}

// NewRenderer wires a per-job renderer.
func NewRenderer(loader *segment.Loader, encoder Encoder, settings Settings, tracker *Tracker, logger *slog.Logger) *Renderer {
	return &Renderer{
		loader:   loader,
		encoder:  encoder,
		settings: settings,
		tracker:  tracker,
		logger:   logging.NewComponentLogger(logger, "renderer"),
	}
}

// RenderSegment produces the temp clip for one segment. On success the shared
// completed counter is incremented; on failure it is left untouched and the
// error is segment-scoped unless it is a cancellation.
func (r *Renderer) RenderSegment(ctx context.Context, seg segment.Segment) (Clip, error) {
	start := time.Now()

	assets, err := r.loader.Load(ctx, seg)
	if err != nil {
		return Clip{}, err
	}

	frameCount := int(math.Floor(assets.AudioDuration * float64(r.settings.FPS)))
	if frameCount <= 0 {
		return Clip{}, services.Wrap(services.ErrFrameRender, "renderer", "plan frames",
			fmt.Sprintf("segment %d: %.3fs narration yields zero frames at %d fps", seg.ID, assets.AudioDuration, r.settings.FPS), nil)
	}

	animator, err := effects.NewAnimator(assets.Image, assets.AudioDuration, effects.Params{
		OutputWidth:  r.settings.Width,
		OutputHeight: r.settings.Height,
		FadeDuration: r.settings.FadeDuration,
		UsePan:       r.settings.UsePan,
		PanRangeH:    r.settings.PanRangeH,
		PanRangeV:    r.settings.PanRangeV,
		SegmentIndex: seg.ID,
	})
	if err != nil {
		return Clip{}, services.Wrap(services.ErrFrameRender, "renderer", "prepare effects",
			fmt.Sprintf("segment %d", seg.ID), err)
	}

	fps := float64(r.settings.FPS)
	frames := func(i int) (*image.NRGBA, error) {
		// Cancellation is observed between frames, never mid-frame. A
		// cancelled render discards the partial segment rather than letting
		// a truncated clip reach the merge.
		if r.tracker.Cancelled() {
			return nil, services.Wrap(services.ErrCancelled, "renderer", "render frames",
				fmt.Sprintf("segment %d", seg.ID), nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return animator.Frame(float64(i) / fps), nil
	}

	clip, err := r.encoder.EncodeSegment(ctx, ClipJob{
		SegmentID:  seg.ID,
		Frames:     frames,
		FrameCount: frameCount,
		AudioPath:  assets.AudioPath,
		Settings:   r.settings,
	})
	if err != nil {
		return Clip{}, err
	}

	r.tracker.SegmentDone()
	r.logger.Info("segment complete",
		logging.Int(logging.FieldSegment, seg.ID),
		logging.Int("frames", frameCount),
		logging.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		logging.String("size", clipSize(clip.VideoPath)),
	)
	return clip, nil
}

func clipSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return formatSize(info.Size())
}

func formatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f%s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1fTB", value)
}
