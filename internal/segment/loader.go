package segment

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"reel/internal/media/ffprobe"
	"reel/internal/services"
)

const (
	// minAssetBytes guards against truncated upstream generator output.
	minAssetBytes = 1024
	// minAudioSeconds rejects degenerate narration clips.
	minAudioSeconds = 0.05
)

// Assets holds the loaded inputs for one segment.
type Assets struct {
	// Image is the source still, normalized to a three-channel color model
	// (alpha stripped by the frame pipeline).
	Image image.Image
	// AudioPath points at the narration clip on disk.
	AudioPath string
	// AudioDuration is the narration length in seconds, probed via ffprobe.
	AudioDuration float64
}

// Prober measures the duration of an audio file in seconds.
type Prober func(ctx context.Context, path string) (float64, error)

// Loader validates and loads one image plus one audio track per segment
// directory. All load failures are segment-scoped.
type Loader struct {
	probe Prober
}

// Option configures the loader.
type Option func(*Loader)

// WithProber injects a custom duration prober (primarily for tests).
func WithProber(probe Prober) Option {
	return func(l *Loader) {
		if probe != nil {
			l.probe = probe
		}
	}
}

// NewLoader constructs a Loader that probes audio with the given ffprobe binary.
func NewLoader(ffprobeBinary string, opts ...Option) *Loader {
	loader := &Loader{
		probe: func(ctx context.Context, path string) (float64, error) {
			result, err := ffprobe.Inspect(ctx, ffprobeBinary, path)
			if err != nil {
				return 0, err
			}
			return result.DurationSeconds(), nil
		},
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Load locates image.* and audio.* in the segment directory, validates both,
// decodes the image, and probes the audio duration.
func (l *Loader) Load(ctx context.Context, seg Segment) (*Assets, error) {
	imagePath, err := findAsset(seg.Dir, "image")
	if err != nil {
		return nil, err
	}
	audioPath, err := findAsset(seg.Dir, "audio")
	if err != nil {
		return nil, err
	}

	for _, path := range []string{imagePath, audioPath} {
		info, err := os.Stat(path)
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "loader", "stat", path, err)
		}
		if info.Size() < minAssetBytes {
			return nil, services.Wrap(services.ErrInvalidAsset, "loader", "validate",
				fmt.Sprintf("%s is %d bytes, need at least %d", path, info.Size(), minAssetBytes), nil)
		}
	}

	img, err := decodeImage(imagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidAsset, "loader", "decode image", imagePath, err)
	}

	duration, err := l.probe(ctx, audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidAsset, "loader", "probe audio", audioPath, err)
	}
	if duration < minAudioSeconds {
		return nil, services.Wrap(services.ErrInvalidAsset, "loader", "validate",
			fmt.Sprintf("audio duration %.3fs below %.2fs minimum", duration, minAudioSeconds), nil)
	}

	return &Assets{
		Image:         img,
		AudioPath:     audioPath,
		AudioDuration: duration,
	}, nil
}

// findAsset returns the single file named <stem>.<ext> in dir, whatever the
// extension. Upstream generators write image.png or image.jpg and audio.mp3
// or audio.wav depending on configuration.
func findAsset(dir, stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "loader", "scan", dir, err)
	}
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			return match, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "loader", "scan",
		fmt.Sprintf("no %s.* file in %s", stem, dir), nil)
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(format) == "" {
		return nil, fmt.Errorf("unrecognized image format")
	}
	return img, nil
}
