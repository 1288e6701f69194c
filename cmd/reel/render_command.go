package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/config"
	"reel/internal/deps"
	"reel/internal/jobs"
	"reel/internal/logging"
	"reel/internal/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		width     int
		height    int
		fps       int
		fade      float64
		pan       bool
		panH      float64
		panV      float64
		batchSize int
		hardware  bool
		threads   int
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "render <chapter-dir>",
		Short: "Assemble a chapter's video from its segment directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s (run `reel deps` for details)", strings.Join(missing, ", "))
			}

			chapterDir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve chapter directory: %w", err)
			}
			if info, err := os.Stat(chapterDir); err != nil || !info.IsDir() {
				return fmt.Errorf("chapter directory %s not found", chapterDir)
			}

			outputPath := filepath.Join(chapterDir, render.OutputFilename)
			if !overwrite && !cfg.Render.OverwriteExisting {
				if _, err := os.Stat(outputPath); err == nil {
					return fmt.Errorf("%s already exists (pass --overwrite to replace it)", outputPath)
				}
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			var serviceOpts []render.ServiceOption
			store, storeErr := jobs.Open(cfg)
			if storeErr != nil {
				logger.Warn("job history disabled", logging.Error(storeErr))
			} else {
				defer store.Close()
				serviceOpts = append(serviceOpts, render.WithHistory(store))
			}

			service := render.NewService(cfg, logger, serviceOpts...)

			// First interrupt requests a cooperative stop so in-flight
			// encodes finish; a second one kills the process the usual way.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				if _, ok := <-sigCh; ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "stopping after current segments finish")
					service.Cancel()
					signal.Stop(sigCh)
				}
			}()

			done := make(chan struct{})
			if isTerminal(os.Stderr) {
				go pollProgress(service, cmd.ErrOrStderr(), done)
			}

			flags := cmd.Flags()
			overrides := render.Overrides{}
			if flags.Changed("width") {
				overrides.Width = &width
			}
			if flags.Changed("height") {
				overrides.Height = &height
			}
			if flags.Changed("fps") {
				overrides.FPS = &fps
			}
			if flags.Changed("fade") {
				overrides.FadeDuration = &fade
			}
			if flags.Changed("pan") {
				overrides.UsePan = &pan
			}
			if flags.Changed("pan-horizontal") {
				overrides.PanRangeH = &panH
			}
			if flags.Changed("pan-vertical") {
				overrides.PanRangeV = &panV
			}
			if flags.Changed("batch-size") {
				overrides.BatchSize = &batchSize
			}
			if flags.Changed("hardware") {
				overrides.HardwareAccel = &hardware
			}
			if flags.Changed("threads") {
				overrides.EncoderThreads = &threads
			}

			started := time.Now()
			published, err := service.Render(cmd.Context(), chapterDir, overrides)
			close(done)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s in %s\n", published, time.Since(started).Round(time.Second))
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Output width in pixels (even)")
	cmd.Flags().IntVar(&height, "height", 0, "Output height in pixels (even)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Output frame rate")
	cmd.Flags().Float64Var(&fade, "fade", 0, "Fade in/out duration in seconds")
	cmd.Flags().BoolVar(&pan, "pan", true, "Apply the pan/zoom effect")
	cmd.Flags().Float64Var(&panH, "pan-horizontal", 0, "Horizontal pan range (0-1)")
	cmd.Flags().Float64Var(&panV, "pan-vertical", 0, "Vertical pan range (0-1)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Segments encoded concurrently")
	cmd.Flags().BoolVar(&hardware, "hardware", false, "Prefer the NVENC hardware encoder")
	cmd.Flags().IntVar(&threads, "threads", 0, "Encoder threads per segment")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing video.mp4")

	return cmd
}

// pollProgress redraws a single status line until done closes. It writes to
// the terminal only; the structured log remains the machine-readable record.
func pollProgress(service *render.Service, w io.Writer, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			fmt.Fprint(w, "\r\x1b[2K")
			return
		case <-ticker.C:
			snap, ok := service.Progress()
			if !ok {
				continue
			}
			fmt.Fprintf(w, "\r\x1b[2K%s %d/%d segments (%d%%)",
				snap.Phase, snap.Completed, snap.Total, snap.Percentage)
		}
	}
}
