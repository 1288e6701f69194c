package render

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"reel/internal/logging"
	"reel/internal/segment"
	"reel/internal/services"
)

func testRenderer(t *testing.T, enc Encoder, duration float64, settings Settings) (*Renderer, *Tracker) {
	t.Helper()
	loader := segment.NewLoader("ffprobe", segment.WithProber(
		func(context.Context, string) (float64, error) { return duration, nil }))
	tracker := NewTracker(1)
	return NewRenderer(loader, enc, settings, tracker, logging.NewNop()), tracker
}

func fixtureSegment(t *testing.T, id int) segment.Segment {
	t.Helper()
	chapterDir := t.TempDir()
	writeSegmentAssets(t, chapterDir, id)
	return segment.Segment{ID: id, Dir: filepath.Join(chapterDir, strconv.Itoa(id))}
}

func TestRenderSegmentPlansFloorFrameCount(t *testing.T) {
	enc := &fakeEncoder{tempDir: t.TempDir()}
	settings := testSettings(t)
	settings.FPS = 20

	renderer, tracker := testRenderer(t, enc, 2.49, settings)
	clip, err := renderer.RenderSegment(context.Background(), fixtureSegment(t, 7))
	if err != nil {
		t.Fatal(err)
	}
	if clip.SegmentID != 7 {
		t.Fatalf("unexpected clip: %+v", clip)
	}
	if len(enc.jobs) != 1 || enc.jobs[0].FrameCount != 49 {
		t.Fatalf("expected floor(2.49*20)=49 frames, got %+v", enc.jobs)
	}
	if snap := tracker.Progress(); snap.Completed != 1 {
		t.Fatalf("completion not recorded: %+v", snap)
	}
}

func TestRenderSegmentZeroFramesFails(t *testing.T) {
	enc := &fakeEncoder{tempDir: t.TempDir()}
	settings := testSettings(t)
	settings.FPS = 15

	// 0.06s clears the loader's duration floor but rounds down to zero frames.
	renderer, tracker := testRenderer(t, enc, 0.06, settings)
	_, err := renderer.RenderSegment(context.Background(), fixtureSegment(t, 1))
	if !errors.Is(err, services.ErrFrameRender) {
		t.Fatalf("expected frame render error, got %v", err)
	}
	if snap := tracker.Progress(); snap.Completed != 0 {
		t.Fatalf("failed segment counted as complete: %+v", snap)
	}
}

func TestRenderSegmentObservesCancellationBetweenFrames(t *testing.T) {
	enc := &fakeEncoder{tempDir: t.TempDir()}
	renderer, tracker := testRenderer(t, enc, 2.0, testSettings(t))
	tracker.Cancel()

	_, err := renderer.RenderSegment(context.Background(), fixtureSegment(t, 1))
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if snap := tracker.Progress(); snap.Completed != 0 {
		t.Fatalf("cancelled segment counted as complete: %+v", snap)
	}
}

func TestRenderSegmentMissingAssetsSegmentScoped(t *testing.T) {
	enc := &fakeEncoder{tempDir: t.TempDir()}
	renderer, _ := testRenderer(t, enc, 2.0, testSettings(t))

	seg := segment.Segment{ID: 4, Dir: filepath.Join(t.TempDir(), "4")}
	_, err := renderer.RenderSegment(context.Background(), seg)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if !services.SegmentScoped(err) {
		t.Fatalf("loader failure should be segment scoped: %v", err)
	}
}
