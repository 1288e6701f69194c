package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	// yuv420p chroma subsampling requires even dimensions.
	if r.Width%2 != 0 || r.Height%2 != 0 {
		return errors.New("render.width and render.height must be even")
	}
	if r.FPS <= 0 {
		return errors.New("render.fps must be positive")
	}
	if r.PanRangeH < 0 || r.PanRangeH > 1 {
		return errors.New("render.pan_range_horizontal must be between 0 and 1")
	}
	if r.PanRangeV < 0 || r.PanRangeV > 1 {
		return errors.New("render.pan_range_vertical must be between 0 and 1")
	}
	if r.BatchSize <= 0 {
		return errors.New("render.batch_size must be positive")
	}
	if r.EncoderThreads <= 0 {
		return errors.New("render.encoder_threads must be positive")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.FFmpeg == "" {
		return fmt.Errorf("tools.ffmpeg must be set")
	}
	if c.Tools.FFprobe == "" {
		return fmt.Errorf("tools.ffprobe must be set")
	}
	return nil
}
