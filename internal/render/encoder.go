package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"reel/internal/deps"
	"reel/internal/fileutil"
	"reel/internal/services"
	"reel/internal/textutil"
)

// Clip is the scratch output of one segment encode: the video clip that will
// be concatenated plus the intermediate normalized audio file. Both are owned
// exclusively by the job and unconditionally deleted when it ends.
type Clip struct {
	SegmentID int
	VideoPath string
	AudioPath string
}

// FrameFunc produces the frame at index i. It is called sequentially from
// frame 0 upward and may fail, which aborts the encode.
type FrameFunc func(i int) (*image.NRGBA, error)

// ClipJob describes one segment encode.
type ClipJob struct {
	SegmentID  int
	Frames     FrameFunc
	FrameCount int
	AudioPath  string
	Settings   Settings
}

// Encoder abstracts the external encoder behind the two operations the
// pipeline needs, so codec selection or alternate tooling can be swapped
// without touching the scheduler.
type Encoder interface {
	// EncodeSegment renders a frame sequence plus narration into one clip.
	EncodeSegment(ctx context.Context, job ClipJob) (Clip, error)
	// Concat losslessly joins pre-encoded clips and atomically publishes
	// outputPath.
	Concat(ctx context.Context, clips []Clip, outputPath string) error
}

// Executor abstracts command execution for testability. Run starts the
// binary, streams stdin from feed when non-nil, and always returns captured
// stderr so diagnostics survive failures.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, feed func(io.Writer) error) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, feed func(io.Writer) error) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard

	if feed == nil {
		err := cmd.Run()
		return stderr.Bytes(), err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	feedErr := feed(stdin)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if feedErr != nil {
		return stderr.Bytes(), feedErr
	}
	return stderr.Bytes(), waitErr
}

// FFmpegEncoder drives ffmpeg for segment encodes and lossless concatenation.
type FFmpegEncoder struct {
	binary      string
	useHardware bool
	exec        Executor
}

// EncoderOption configures the encoder.
type EncoderOption func(*FFmpegEncoder)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) EncoderOption {
	return func(e *FFmpegEncoder) {
		if executor != nil {
			e.exec = executor
		}
	}
}

// NewFFmpegEncoder constructs an encoder. useHardware should only be true
// when NVENC availability has been confirmed; it affects encoding speed, not
// pixel content.
func NewFFmpegEncoder(binary string, useHardware bool, opts ...EncoderOption) *FFmpegEncoder {
	encoder := &FFmpegEncoder{
		binary:      strings.TrimSpace(binary),
		useHardware: useHardware,
		exec:        commandExecutor{},
	}
	if encoder.binary == "" {
		encoder.binary = "ffmpeg"
	}
	for _, opt := range opts {
		opt(encoder)
	}
	return encoder
}

// tempName builds a scratch filename that cannot collide across concurrent
// segments or concurrent job runs: segment id + process id + a unique token.
func tempName(tempDir, kind string, segmentID int, ext string) string {
	return filepath.Join(tempDir, fmt.Sprintf("reel_%s_%d_%d_%s%s", kind, segmentID, os.Getpid(), uuid.NewString(), ext))
}

// EncodeSegment normalizes the narration to exactly the video duration, then
// streams raw frames into ffmpeg to produce the segment clip. On failure all
// scratch files created here are removed before returning.
func (e *FFmpegEncoder) EncodeSegment(ctx context.Context, job ClipJob) (Clip, error) {
	if job.FrameCount <= 0 {
		return Clip{}, services.Wrap(services.ErrFrameRender, "encoder", "encode",
			fmt.Sprintf("segment %d has no frames", job.SegmentID), nil)
	}
	settings := job.Settings
	videoDuration := float64(job.FrameCount) / float64(settings.FPS)

	audioTemp := tempName(settings.TempDir, "aud", job.SegmentID, ".m4a")
	videoTemp := tempName(settings.TempDir, "vid", job.SegmentID, ".mp4")

	// Audio is trimmed or silence-padded to match the video, never the
	// reverse: apad extends short narration, -t cuts at the video duration.
	audioArgs := []string{
		"-y", "-nostdin",
		"-i", job.AudioPath,
		"-af", "apad",
		"-t", formatSeconds(videoDuration),
		"-c:a", "aac",
		audioTemp,
	}
	if stderr, err := e.exec.Run(ctx, e.binary, audioArgs, nil); err != nil {
		_ = os.Remove(audioTemp)
		return Clip{}, services.Wrap(services.ErrEncode, "encoder", "normalize audio",
			textutil.DecodeConsole(stderr), err)
	}

	videoArgs := []string{
		"-y", "-nostdin",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-video_size", fmt.Sprintf("%dx%d", settings.Width, settings.Height),
		"-framerate", strconv.Itoa(settings.FPS),
		"-i", "pipe:0",
		"-i", audioTemp,
	}
	videoArgs = append(videoArgs, e.codecArgs()...)
	videoArgs = append(videoArgs,
		"-c:a", "copy",
		"-pix_fmt", "yuv420p",
		"-threads", strconv.Itoa(settings.EncoderThreads),
		"-shortest",
		videoTemp,
	)

	feed := func(w io.Writer) error {
		row := make([]byte, settings.Width*3)
		for i := 0; i < job.FrameCount; i++ {
			frame, err := job.Frames(i)
			if err != nil {
				return err
			}
			if err := writeRGB24(w, frame, row); err != nil {
				return fmt.Errorf("write frame %d: %w", i, err)
			}
		}
		return nil
	}

	if stderr, err := e.exec.Run(ctx, e.binary, videoArgs, feed); err != nil {
		_ = os.Remove(videoTemp)
		_ = os.Remove(audioTemp)
		// Frame generation failures keep their own classification; encoder
		// exits become encode errors with the decoded diagnostic attached.
		if services.SegmentScoped(err) || isCancellation(err) {
			return Clip{}, err
		}
		return Clip{}, services.Wrap(services.ErrEncode, "encoder", "encode clip",
			textutil.DecodeConsole(stderr), err)
	}

	return Clip{SegmentID: job.SegmentID, VideoPath: videoTemp, AudioPath: audioTemp}, nil
}

func (e *FFmpegEncoder) codecArgs() []string {
	if e.useHardware {
		return []string{"-c:v", deps.HardwareEncoder, "-preset", "medium"}
	}
	return []string{"-c:v", deps.SoftwareEncoder, "-preset", "medium", "-crf", "23"}
}

// Concat writes a list file of absolute clip paths, joins the clips in
// stream-copy mode, and atomically renames the result over outputPath. The
// list file and the temp output never outlive the call.
func (e *FFmpegEncoder) Concat(ctx context.Context, clips []Clip, outputPath string) error {
	if len(clips) == 0 {
		return services.Wrap(services.ErrEncode, "merger", "concat", "no clips to merge", nil)
	}

	listPath := tempName(filepath.Dir(outputPath), "concat", 0, ".txt")
	var list strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip.VideoPath)
		if err != nil {
			return services.Wrap(services.ErrEncode, "merger", "resolve clip path", clip.VideoPath, err)
		}
		// Forward slashes keep the concat demuxer happy on every platform.
		abs = strings.ReplaceAll(abs, "\\", "/")
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return services.Wrap(services.ErrEncode, "merger", "write concat list", listPath, err)
	}
	defer os.Remove(listPath)

	// Stage next to the destination so the final rename is atomic.
	tempOut := outputPath + "." + uuid.NewString() + ".tmp"
	args := []string{
		"-y", "-nostdin",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		tempOut,
	}
	if stderr, err := e.exec.Run(ctx, e.binary, args, nil); err != nil {
		_ = os.Remove(tempOut)
		return services.Wrap(services.ErrEncode, "merger", "concat",
			textutil.DecodeConsole(stderr), err)
	}

	if err := fileutil.ReplaceFile(tempOut, outputPath); err != nil {
		_ = os.Remove(tempOut)
		return services.Wrap(services.ErrEncode, "merger", "publish output", outputPath, err)
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled)
}

// writeRGB24 streams a frame's pixels as packed RGB, dropping alpha. The row
// buffer is reused across frames to keep the feed loop allocation-free.
func writeRGB24(w io.Writer, frame *image.NRGBA, row []byte) error {
	bounds := frame.Bounds()
	width := bounds.Dx()
	if len(row) < width*3 {
		return fmt.Errorf("row buffer too small for width %d", width)
	}
	for y := 0; y < bounds.Dy(); y++ {
		src := frame.Pix[y*frame.Stride : y*frame.Stride+width*4]
		for x := 0; x < width; x++ {
			row[x*3] = src[x*4]
			row[x*3+1] = src[x*4+1]
			row[x*3+2] = src[x*4+2]
		}
		if _, err := w.Write(row[:width*3]); err != nil {
			return err
		}
	}
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 6, 64)
}
