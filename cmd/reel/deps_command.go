package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check availability of external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			statuses := deps.CheckBinaries(deps.Requirements(cfg))

			fmt.Fprintln(out, "External tools:")
			failed := false
			for _, status := range statuses {
				if status.Available {
					fmt.Fprintln(out, statusLine(status.Name, "OK", status.Command, ansiGreen, colorize))
					continue
				}
				failed = true
				fmt.Fprintln(out, statusLine(status.Name, "MISSING", status.Detail, ansiRed, colorize))
			}

			if cfg.Render.HardwareAccel {
				if deps.DetectHardwareEncoder(cmd.Context(), cfg.FFmpegBinary()) {
					fmt.Fprintln(out, statusLine("NVENC", "OK", deps.HardwareEncoder, ansiGreen, colorize))
				} else {
					fmt.Fprintln(out, statusLine("NVENC", "ABSENT", "software fallback "+deps.SoftwareEncoder, ansiYellow, colorize))
				}
			}

			if failed {
				return fmt.Errorf("required tools are missing")
			}
			return nil
		},
	}
}
