package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
)

func newEncodersCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "List the H.264 encoders this host can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			policy := ffmpeg.DetectEncoders(cmd.Context(), cfg.FFmpegPath)
			out := cmd.OutOrStdout()

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(policy)
			}

			fmt.Fprintln(out, encoderTable(policy, cfg.UseHardwareEncoder))
			selected := policy.Select(cfg.UseHardwareEncoder)
			fmt.Fprintf(out, "Jobs will encode with %s (%s)\n", selected.Name, selected.Encoder)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the encoder policy as JSON")
	return cmd
}

func encoderTable(policy ffmpeg.EncoderPolicy, useHardware bool) string {
	selected := policy.Select(useHardware)
	rows := make([][]string, 0, len(policy.Candidates))
	for _, enc := range policy.Candidates {
		kind := "software"
		if enc.IsHardware() {
			kind = "hardware"
		}
		available := "no"
		if enc.Available {
			available = "yes"
		}
		mark := ""
		if enc.Encoder == selected.Encoder {
			mark = "*"
		}
		rows = append(rows, []string{enc.Encoder, enc.Name, kind, available, mark})
	}
	return renderTable([]string{"Encoder", "Name", "Type", "Available", "Selected"}, rows, nil)
}
