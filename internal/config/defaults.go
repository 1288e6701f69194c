package config

import "runtime"

const (
	defaultLogDir       = "~/.local/share/reel/logs"
	defaultWidth        = 1024
	defaultHeight       = 1024
	defaultFPS          = 15
	defaultFadeDuration = 1.2
	defaultPanRangeH    = 0.5
	defaultPanRangeV    = 0.5
	defaultBatchSize    = 8
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultFFmpeg       = "ffmpeg"
	defaultFFprobe      = "ffprobe"
)

// DefaultEncoderThreads caps encoder threads so a full batch of concurrent
// ffmpeg processes does not oversubscribe the host.
func DefaultEncoderThreads() int {
	threads := int(float64(runtime.NumCPU()) / 1.5)
	if threads > 4 {
		threads = 4
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Render: Render{
			Width:          defaultWidth,
			Height:         defaultHeight,
			FPS:            defaultFPS,
			FadeDuration:   defaultFadeDuration,
			UsePan:         true,
			PanRangeH:      defaultPanRangeH,
			PanRangeV:      defaultPanRangeV,
			BatchSize:      defaultBatchSize,
			HardwareAccel:  true,
			EncoderThreads: DefaultEncoderThreads(),
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
