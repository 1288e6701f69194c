package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/services"
)

// fakeExecutor records every invocation and lets tests fail a specific call
// or mimic side effects such as creating the output file.
type fakeExecutor struct {
	calls  [][]string
	frames bytes.Buffer
	failAt int
	stderr string
	onRun  func(args []string) error
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string, feed func(io.Writer) error) ([]byte, error) {
	f.calls = append(f.calls, args)
	if feed != nil {
		if err := feed(&f.frames); err != nil {
			return []byte(f.stderr), err
		}
	}
	if f.onRun != nil {
		if err := f.onRun(args); err != nil {
			return []byte(f.stderr), err
		}
	}
	if f.failAt == len(f.calls) {
		return []byte(f.stderr), errors.New("exit status 1")
	}
	return nil, nil
}

func hasArgPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	return Settings{
		Width:          64,
		Height:         64,
		FPS:            10,
		FadeDuration:   1.2,
		UsePan:         true,
		PanRangeH:      0.5,
		PanRangeV:      0.5,
		BatchSize:      4,
		EncoderThreads: 2,
		TempDir:        t.TempDir(),
	}
}

func solidFrames(width, height int) FrameFunc {
	return func(int) (*image.NRGBA, error) {
		frame := image.NewNRGBA(image.Rect(0, 0, width, height))
		for i := range frame.Pix {
			frame.Pix[i] = 0x80
		}
		return frame, nil
	}
}

func TestEncodeSegmentCommandShape(t *testing.T) {
	executor := &fakeExecutor{}
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(executor))
	settings := testSettings(t)

	clip, err := encoder.EncodeSegment(context.Background(), ClipJob{
		SegmentID:  3,
		Frames:     solidFrames(64, 64),
		FrameCount: 5,
		AudioPath:  "/in/audio.mp3",
		Settings:   settings,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(executor.calls) != 2 {
		t.Fatalf("expected audio pass then video pass, got %d calls", len(executor.calls))
	}

	audio := executor.calls[0]
	if !hasArgPair(audio, "-af", "apad") || !hasArgPair(audio, "-t", "0.500000") || !hasArgPair(audio, "-c:a", "aac") {
		t.Fatalf("audio normalization args wrong: %v", audio)
	}

	video := executor.calls[1]
	for _, pair := range [][2]string{
		{"-f", "rawvideo"},
		{"-pix_fmt", "rgb24"},
		{"-video_size", "64x64"},
		{"-framerate", "10"},
		{"-c:v", "libx264"},
		{"-crf", "23"},
		{"-pix_fmt", "yuv420p"},
		{"-threads", "2"},
		{"-c:a", "copy"},
	} {
		if !hasArgPair(video, pair[0], pair[1]) {
			t.Fatalf("missing %v in video args: %v", pair, video)
		}
	}
	if video[len(video)-2] != "-shortest" {
		t.Fatalf("clip not bounded by -shortest: %v", video)
	}

	if got, want := executor.frames.Len(), 5*64*64*3; got != want {
		t.Fatalf("streamed %d raw bytes, want %d", got, want)
	}
	if clip.SegmentID != 3 || !strings.HasSuffix(clip.VideoPath, ".mp4") || !strings.HasSuffix(clip.AudioPath, ".m4a") {
		t.Fatalf("unexpected clip: %+v", clip)
	}
}

func TestEncodeSegmentHardwareCodec(t *testing.T) {
	executor := &fakeExecutor{}
	encoder := NewFFmpegEncoder("ffmpeg", true, WithExecutor(executor))

	_, err := encoder.EncodeSegment(context.Background(), ClipJob{
		SegmentID:  1,
		Frames:     solidFrames(64, 64),
		FrameCount: 1,
		AudioPath:  "/in/audio.mp3",
		Settings:   testSettings(t),
	})
	if err != nil {
		t.Fatal(err)
	}

	video := executor.calls[1]
	if !hasArgPair(video, "-c:v", "h264_nvenc") {
		t.Fatalf("hardware codec not selected: %v", video)
	}
	for _, arg := range video {
		if arg == "-crf" {
			t.Fatalf("crf does not apply to nvenc: %v", video)
		}
	}
}

func TestEncodeSegmentKeepsFrameFailureClassification(t *testing.T) {
	executor := &fakeExecutor{}
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(executor))

	frameErr := services.Wrap(services.ErrFrameRender, "renderer", "render frames", "segment 2", nil)
	frames := func(i int) (*image.NRGBA, error) {
		if i == 2 {
			return nil, frameErr
		}
		return solidFrames(64, 64)(i)
	}

	_, err := encoder.EncodeSegment(context.Background(), ClipJob{
		SegmentID:  2,
		Frames:     frames,
		FrameCount: 5,
		AudioPath:  "/in/audio.mp3",
		Settings:   testSettings(t),
	})
	if !errors.Is(err, services.ErrFrameRender) {
		t.Fatalf("frame failure reclassified: %v", err)
	}
	if errors.Is(err, services.ErrEncode) {
		t.Fatalf("frame failure must not become an encode error: %v", err)
	}
}

func TestEncodeSegmentEncoderExitCarriesStderr(t *testing.T) {
	executor := &fakeExecutor{failAt: 2, stderr: "Unknown encoder 'h264_fake'\n"}
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(executor))

	_, err := encoder.EncodeSegment(context.Background(), ClipJob{
		SegmentID:  1,
		Frames:     solidFrames(64, 64),
		FrameCount: 2,
		AudioPath:  "/in/audio.mp3",
		Settings:   testSettings(t),
	})
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("stderr diagnostic lost: %v", err)
	}
}

func TestConcatPublishesAtomically(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "video.mp4")

	var listContent string
	executor := &fakeExecutor{
		onRun: func(args []string) error {
			for i := 0; i < len(args)-1; i++ {
				if args[i] == "-i" {
					raw, err := os.ReadFile(args[i+1])
					if err != nil {
						return err
					}
					listContent = string(raw)
				}
			}
			return os.WriteFile(args[len(args)-1], []byte("merged"), 0o644)
		},
	}
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(executor))

	clips := []Clip{
		{SegmentID: 1, VideoPath: filepath.Join(dir, "clip1.mp4")},
		{SegmentID: 2, VideoPath: filepath.Join(dir, "it's clip2.mp4")},
	}
	if err := encoder.Concat(context.Background(), clips, outputPath); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil || string(data) != "merged" {
		t.Fatalf("output not published: %v %q", err, data)
	}

	lines := strings.Split(strings.TrimSpace(listContent), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected list: %q", listContent)
	}
	if !strings.Contains(lines[0], "clip1.mp4") || !strings.Contains(lines[1], `it'\''s clip2.mp4`) {
		t.Fatalf("paths not ordered and escaped: %q", listContent)
	}

	args := executor.calls[0]
	for _, pair := range [][2]string{{"-f", "concat"}, {"-safe", "0"}, {"-c", "copy"}, {"-movflags", "+faststart"}} {
		if !hasArgPair(args, pair[0], pair[1]) {
			t.Fatalf("missing %v in concat args: %v", pair, args)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	listFiles, _ := filepath.Glob(filepath.Join(dir, "reel_concat_*"))
	if len(leftovers) != 0 || len(listFiles) != 0 {
		t.Fatalf("scratch files outlived the call: %v %v", leftovers, listFiles)
	}
}

func TestConcatFailureLeavesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(outputPath, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	executor := &fakeExecutor{failAt: 1, stderr: "Invalid data found\n"}
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(executor))

	err := encoder.Concat(context.Background(), []Clip{{SegmentID: 1, VideoPath: filepath.Join(dir, "clip1.mp4")}}, outputPath)
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}

	data, readErr := os.ReadFile(outputPath)
	if readErr != nil || string(data) != "previous" {
		t.Fatalf("existing output disturbed: %v %q", readErr, data)
	}
}

func TestConcatRejectsEmptyClipList(t *testing.T) {
	encoder := NewFFmpegEncoder("ffmpeg", false, WithExecutor(&fakeExecutor{}))
	if err := encoder.Concat(context.Background(), nil, filepath.Join(t.TempDir(), "video.mp4")); err == nil {
		t.Fatal("expected error for empty clip list")
	}
}

func TestWriteRGB24StripsAlpha(t *testing.T) {
	frame := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 4; i++ {
		frame.Pix[i*4] = uint8(10 * i)
		frame.Pix[i*4+1] = uint8(10*i + 1)
		frame.Pix[i*4+2] = uint8(10*i + 2)
		frame.Pix[i*4+3] = 0xFF
	}

	var out bytes.Buffer
	if err := writeRGB24(&out, frame, make([]byte, 2*3)); err != nil {
		t.Fatal(err)
	}

	want := []byte{0, 1, 2, 10, 11, 12, 20, 21, 22, 30, 31, 32}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("raw stream mismatch: got %v want %v", out.Bytes(), want)
	}
}

func TestTempNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		name := tempName(t.TempDir(), "vid", 1, ".mp4")
		base := filepath.Base(name)
		if seen[base] {
			t.Fatalf("duplicate temp name %s", base)
		}
		seen[base] = true
		if !strings.HasPrefix(base, fmt.Sprintf("reel_vid_1_%d_", os.Getpid())) {
			t.Fatalf("unexpected temp name shape: %s", base)
		}
	}
}
