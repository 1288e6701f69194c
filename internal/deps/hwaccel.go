package deps

import (
	"context"
	"os/exec"
	"strings"
)

// HardwareEncoder is the NVENC H.264 codec preferred when available.
const HardwareEncoder = "h264_nvenc"

// SoftwareEncoder is the fallback CPU codec.
const SoftwareEncoder = "libx264"

// DetectHardwareEncoder asks ffmpeg for its encoder list and reports whether
// NVENC H.264 is present. Any failure to run ffmpeg counts as unavailable;
// the caller falls back to software encoding.
func DetectHardwareEncoder(ctx context.Context, ffmpegBinary string) bool {
	binary := strings.TrimSpace(ffmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), HardwareEncoder)
}
