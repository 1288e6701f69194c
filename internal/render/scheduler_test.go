package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/segment"
	"reel/internal/services"
)

// fakeEncoder drains the frame stream like the real encoder, materializes
// clip files in tempDir, and records the merge order.
type fakeEncoder struct {
	mu       sync.Mutex
	tempDir  string
	jobs     []ClipJob
	merged   []Clip
	failWith map[int]error
}

func (f *fakeEncoder) EncodeSegment(_ context.Context, job ClipJob) (Clip, error) {
	for i := 0; i < job.FrameCount; i++ {
		if _, err := job.Frames(i); err != nil {
			return Clip{}, err
		}
	}

	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	failErr := f.failWith[job.SegmentID]
	f.mu.Unlock()
	if failErr != nil {
		return Clip{}, failErr
	}

	clip := Clip{
		SegmentID: job.SegmentID,
		VideoPath: filepath.Join(f.tempDir, fmt.Sprintf("clip_%d.mp4", job.SegmentID)),
		AudioPath: filepath.Join(f.tempDir, fmt.Sprintf("clip_%d.m4a", job.SegmentID)),
	}
	for _, path := range []string{clip.VideoPath, clip.AudioPath} {
		if err := os.WriteFile(path, []byte("scratch"), 0o644); err != nil {
			return Clip{}, err
		}
	}
	return clip, nil
}

func (f *fakeEncoder) Concat(_ context.Context, clips []Clip, outputPath string) error {
	f.mu.Lock()
	f.merged = append([]Clip(nil), clips...)
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("merged"), 0o644)
}

func (f *fakeEncoder) mergedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.merged))
	for _, clip := range f.merged {
		ids = append(ids, clip.SegmentID)
	}
	return ids
}

// writeSegmentAssets creates a decodable image.png above the minimum asset
// size plus a placeholder audio.mp3 in a numerically-named segment directory.
func writeSegmentAssets(t *testing.T, chapterDir string, id int) {
	t.Helper()
	dir := filepath.Join(chapterDir, strconv.Itoa(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 31)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	// Trailing padding after IEND is ignored by decoders but keeps the file
	// above the truncation guard.
	if buf.Len() < 1200 {
		buf.Write(make([]byte, 1200-buf.Len()))
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "audio.mp3"), bytes.Repeat([]byte{0x55}, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
}

// segmentDuration reads the segment id back out of an asset path so fake
// probers can vary duration per segment.
func segmentDuration(path string, durations map[int]float64, fallback float64) float64 {
	id, err := strconv.Atoi(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return fallback
	}
	if d, ok := durations[id]; ok {
		return d
	}
	return fallback
}

func newTestService(t *testing.T, enc *fakeEncoder, durations map[int]float64) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.TempDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	enc.tempDir = cfg.Paths.TempDir

	loader := segment.NewLoader("ffprobe", segment.WithProber(
		func(_ context.Context, path string) (float64, error) {
			return segmentDuration(path, durations, 2.0), nil
		}))
	return NewService(&cfg, logging.NewNop(), WithEncoder(enc), WithLoader(loader))
}

func TestRenderMergesInSegmentOrder(t *testing.T) {
	chapterDir := t.TempDir()
	for _, id := range []int{10, 2, 1} {
		writeSegmentAssets(t, chapterDir, id)
	}

	enc := &fakeEncoder{}
	service := newTestService(t, enc, nil)

	outputPath, err := service.Render(context.Background(), chapterDir, Overrides{BatchSize: intPtr(2)})
	if err != nil {
		t.Fatal(err)
	}
	if outputPath != filepath.Join(chapterDir, "video.mp4") {
		t.Fatalf("unexpected output path: %s", outputPath)
	}
	data, err := os.ReadFile(outputPath)
	if err != nil || string(data) != "merged" {
		t.Fatalf("output not written: %v %q", err, data)
	}

	ids := enc.mergedIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 10 {
		t.Fatalf("merge order wrong: %v", ids)
	}

	snap, ok := service.Progress()
	if !ok || snap.Phase != PhaseCompleted || snap.Completed != 3 || snap.Percentage != 100 {
		t.Fatalf("terminal progress wrong: %+v ok=%v", snap, ok)
	}
}

func TestRenderFrameCountsFollowAudioDuration(t *testing.T) {
	chapterDir := t.TempDir()
	writeSegmentAssets(t, chapterDir, 1)
	writeSegmentAssets(t, chapterDir, 2)

	enc := &fakeEncoder{}
	service := newTestService(t, enc, map[int]float64{1: 2.0, 2: 3.0})

	if _, err := service.Render(context.Background(), chapterDir, Overrides{FPS: intPtr(20)}); err != nil {
		t.Fatal(err)
	}

	counts := map[int]int{}
	for _, job := range enc.jobs {
		counts[job.SegmentID] = job.FrameCount
	}
	if counts[1] != 40 || counts[2] != 60 {
		t.Fatalf("frame counts wrong: %v", counts)
	}
}

func TestRenderPartialFailureKeepsExistingOutput(t *testing.T) {
	chapterDir := t.TempDir()
	for id := 1; id <= 3; id++ {
		writeSegmentAssets(t, chapterDir, id)
	}
	outputPath := filepath.Join(chapterDir, "video.mp4")
	if err := os.WriteFile(outputPath, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	enc := &fakeEncoder{failWith: map[int]error{
		2: services.Wrap(services.ErrEncode, "encoder", "encode clip", "boom", nil),
	}}
	service := newTestService(t, enc, nil)

	_, err := service.Render(context.Background(), chapterDir, Overrides{})
	if !errors.Is(err, services.ErrPartialFailure) {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if len(enc.mergedIDs()) != 0 {
		t.Fatal("merge ran despite a failed segment")
	}

	data, readErr := os.ReadFile(outputPath)
	if readErr != nil || string(data) != "previous" {
		t.Fatalf("existing output disturbed: %v %q", readErr, data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(enc.tempDir, "clip_*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp clips not cleaned up: %v", leftovers)
	}

	snap, ok := service.Progress()
	if !ok || snap.Completed != 2 {
		t.Fatalf("progress should survive failure: %+v ok=%v", snap, ok)
	}
}

func TestRenderCancelledBeforeFirstBatch(t *testing.T) {
	chapterDir := t.TempDir()
	writeSegmentAssets(t, chapterDir, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := &fakeEncoder{}
	service := newTestService(t, enc, nil)

	_, err := service.Render(ctx, chapterDir, Overrides{})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(enc.jobs) != 0 || len(enc.mergedIDs()) != 0 {
		t.Fatal("work dispatched after cancellation")
	}
	if _, statErr := os.Stat(filepath.Join(chapterDir, "video.mp4")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("output produced for cancelled job: %v", statErr)
	}
	if leftovers, _ := filepath.Glob(filepath.Join(enc.tempDir, "*")); len(leftovers) != 0 {
		t.Fatalf("temp files created for cancelled job: %v", leftovers)
	}
}

func TestRenderZeroByteAudioFailsSegmentAndJob(t *testing.T) {
	chapterDir := t.TempDir()
	writeSegmentAssets(t, chapterDir, 1)
	writeSegmentAssets(t, chapterDir, 2)
	if err := os.WriteFile(filepath.Join(chapterDir, "2", "audio.mp3"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(chapterDir, "video.mp4")
	if err := os.WriteFile(outputPath, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	enc := &fakeEncoder{}
	service := newTestService(t, enc, nil)

	_, err := service.Render(context.Background(), chapterDir, Overrides{})
	if !errors.Is(err, services.ErrPartialFailure) {
		t.Fatalf("expected partial failure, got %v", err)
	}

	data, readErr := os.ReadFile(outputPath)
	if readErr != nil || string(data) != "previous" {
		t.Fatalf("existing output disturbed: %v %q", readErr, data)
	}
}

func TestRenderEmptyChapterFails(t *testing.T) {
	enc := &fakeEncoder{}
	service := newTestService(t, enc, nil)

	_, err := service.Render(context.Background(), t.TempDir(), Overrides{})
	if !errors.Is(err, services.ErrNoSegments) {
		t.Fatalf("expected no-segments error, got %v", err)
	}
}

func TestRenderCleansTempClipsOnSuccess(t *testing.T) {
	chapterDir := t.TempDir()
	writeSegmentAssets(t, chapterDir, 1)
	writeSegmentAssets(t, chapterDir, 2)

	enc := &fakeEncoder{}
	service := newTestService(t, enc, nil)

	if _, err := service.Render(context.Background(), chapterDir, Overrides{}); err != nil {
		t.Fatal(err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(enc.tempDir, "clip_*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp clips not cleaned up: %v", leftovers)
	}
}

func TestProgressAndCancelBeforeAnyJob(t *testing.T) {
	service := newTestService(t, &fakeEncoder{}, nil)
	if _, ok := service.Progress(); ok {
		t.Fatal("progress reported before any job")
	}
	if service.Cancel() {
		t.Fatal("cancel acknowledged with no job state")
	}
}

func TestRenderInvalidOverridesRejected(t *testing.T) {
	service := newTestService(t, &fakeEncoder{}, nil)
	if _, err := service.Render(context.Background(), t.TempDir(), Overrides{Width: intPtr(333)}); err == nil {
		t.Fatal("expected settings validation error")
	}
}
