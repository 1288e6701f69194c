package render

import (
	"errors"

	"reel/internal/config"
)

// Settings are the effective per-job render parameters, built once at job
// start by overlaying caller overrides on the configured defaults and
// validated before any work begins.
type Settings struct {
	Width          int
	Height         int
	FPS            int
	FadeDuration   float64
	UsePan         bool
	PanRangeH      float64
	PanRangeV      float64
	BatchSize      int
	HardwareAccel  bool
	EncoderThreads int
	TempDir        string
}

// Overrides are optional caller-supplied deviations from the configured
// defaults. Nil fields keep the default.
type Overrides struct {
	Width          *int
	Height         *int
	FPS            *int
	FadeDuration   *float64
	UsePan         *bool
	PanRangeH      *float64
	PanRangeV      *float64
	BatchSize      *int
	HardwareAccel  *bool
	EncoderThreads *int
}

// SettingsFromConfig builds job settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Width:          cfg.Render.Width,
		Height:         cfg.Render.Height,
		FPS:            cfg.Render.FPS,
		FadeDuration:   cfg.Render.FadeDuration,
		UsePan:         cfg.Render.UsePan,
		PanRangeH:      cfg.Render.PanRangeH,
		PanRangeV:      cfg.Render.PanRangeV,
		BatchSize:      cfg.Render.BatchSize,
		HardwareAccel:  cfg.Render.HardwareAccel,
		EncoderThreads: cfg.Render.EncoderThreads,
		TempDir:        cfg.Paths.TempDir,
	}
}

// Apply overlays overrides and revalidates the result.
func (s Settings) Apply(o Overrides) (Settings, error) {
	if o.Width != nil {
		s.Width = *o.Width
	}
	if o.Height != nil {
		s.Height = *o.Height
	}
	if o.FPS != nil {
		s.FPS = *o.FPS
	}
	if o.FadeDuration != nil {
		s.FadeDuration = *o.FadeDuration
	}
	if o.UsePan != nil {
		s.UsePan = *o.UsePan
	}
	if o.PanRangeH != nil {
		s.PanRangeH = *o.PanRangeH
	}
	if o.PanRangeV != nil {
		s.PanRangeV = *o.PanRangeV
	}
	if o.BatchSize != nil {
		s.BatchSize = *o.BatchSize
	}
	if o.HardwareAccel != nil {
		s.HardwareAccel = *o.HardwareAccel
	}
	if o.EncoderThreads != nil {
		s.EncoderThreads = *o.EncoderThreads
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New("render settings: resolution must be positive")
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return errors.New("render settings: resolution must be even")
	}
	if s.FPS <= 0 {
		return errors.New("render settings: fps must be positive")
	}
	if s.PanRangeH < 0 || s.PanRangeH > 1 || s.PanRangeV < 0 || s.PanRangeV > 1 {
		return errors.New("render settings: pan ranges must be between 0 and 1")
	}
	if s.BatchSize <= 0 {
		return errors.New("render settings: batch size must be positive")
	}
	if s.EncoderThreads <= 0 {
		return errors.New("render settings: encoder threads must be positive")
	}
	return nil
}
