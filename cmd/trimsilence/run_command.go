package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gwlsn/trimsilence/internal/config"
	"github.com/gwlsn/trimsilence/internal/jobs"
	"github.com/gwlsn/trimsilence/internal/logger"
)

type runOptions struct {
	output     string
	threshold  float64
	minSilence float64
	padding    float64
	quality    string
	normalize  bool
	software   bool
	noHistory  bool
	jsonOut    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Remove silence from one video",
		Long: "Detect silent stretches in the input's first audio track, cut them out of " +
			"both video and audio, and encode the result. Unset flags use the config file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			params := buildParams(cfg, args[0], &opts, cmd.Flags())
			return runJob(cmd, ctx, params, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Output file (default: <input>.trimmed.<ext>)")
	flags.Float64Var(&opts.threshold, "threshold", config.DefaultThresholdDB, "Silence threshold in dB")
	flags.Float64Var(&opts.minSilence, "min-silence", config.DefaultMinSilenceDuration, "Shortest silence to remove, in seconds")
	flags.Float64Var(&opts.padding, "padding", config.DefaultPadding, "Seconds kept on each side of a cut")
	flags.StringVarP(&opts.quality, "quality", "q", "", "Encode quality: fast, medium or high")
	flags.BoolVar(&opts.normalize, "normalize", false, "Normalize loudness (EBU R128)")
	flags.BoolVar(&opts.software, "software", false, "Never use a hardware encoder")
	flags.BoolVar(&opts.noHistory, "no-history", false, "Do not record the job in the history database")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")

	return cmd
}

// buildParams starts from the config and applies only the flags the user set.
func buildParams(cfg *config.Config, input string, opts *runOptions, flags *pflag.FlagSet) jobs.Params {
	p := jobs.Params{
		InputPath:          input,
		OutputPath:         opts.output,
		ThresholdDB:        cfg.ThresholdDB,
		MinSilenceDuration: cfg.MinSilenceDuration,
		Padding:            cfg.Padding,
		Quality:            cfg.Quality,
		NormalizeAudio:     cfg.NormalizeAudio,
		UseHardwareEncoder: cfg.UseHardwareEncoder,
	}
	if p.OutputPath == "" {
		p.OutputPath = jobs.DefaultOutputPath(input)
	}
	if flags.Changed("threshold") {
		p.ThresholdDB = opts.threshold
	}
	if flags.Changed("min-silence") {
		p.MinSilenceDuration = opts.minSilence
	}
	if flags.Changed("padding") {
		p.Padding = opts.padding
	}
	if flags.Changed("quality") {
		p.Quality = opts.quality
	}
	if flags.Changed("normalize") {
		p.NormalizeAudio = opts.normalize
	}
	if opts.software {
		p.UseHardwareEncoder = false
	}
	return p
}

func runJob(cmd *cobra.Command, ctx *commandContext, params jobs.Params, opts *runOptions) error {
	if err := params.Validate(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history jobs.History
	if !opts.noHistory {
		st, err := ctx.openHistory()
		if err != nil {
			logger.Warn("Job history unavailable", "error", err)
		} else {
			defer st.Close()
			history = st
		}
	}

	controller, err := ctx.newController(sigCtx, history)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mode := renderPlain
	switch {
	case opts.jsonOut:
		mode = renderQuiet
	case isTerminal(out):
		mode = renderBar
		// Keep info logs from tearing the progress bar
		if ctx.logLevelFlag == nil || *ctx.logLevelFlag == "" {
			logger.SetLevel("warn")
		}
	}
	renderer := newProgressRenderer(out, mode)

	events := controller.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range events {
			renderer.Handle(ev)
		}
	}()

	result, runErr := controller.Run(sigCtx, params)
	controller.Unsubscribe(events)
	<-rendered
	renderer.Finish()

	if result == nil {
		return runErr
	}
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		writeSummary(out, result)
	}

	if runErr != nil {
		return runErr
	}
	if result.Cancelled {
		return context.Canceled
	}
	return nil
}
