package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gwlsn/trimsilence"
	"github.com/gwlsn/trimsilence/internal/api"
	"github.com/gwlsn/trimsilence/internal/browse"
	"github.com/gwlsn/trimsilence/internal/config"
	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int
	var mediaPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if mediaPath != "" {
				cfg.MediaPath = mediaPath
			}
			return serve(cmd, ctx, cfg, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&mediaPath, "media", "", "Override media path from config")
	return cmd
}

func serve(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, port int) error {
	// Server logs go to stdout next to the banner
	logger.Init(cfg.LogLevel)

	if info, err := os.Stat(cfg.MediaPath); err != nil || !info.IsDir() {
		return fmt.Errorf("media path does not exist: %s", cfg.MediaPath)
	}

	history, err := ctx.openHistory()
	if err != nil {
		return fmt.Errorf("initialize job history: %w", err)
	}
	defer history.Close()

	controller, err := ctx.newController(cmd.Context(), history)
	if err != nil {
		return err
	}
	policy := controller.Policy()

	out := cmd.OutOrStdout()
	printBanner(out, cfg, ctx.configPath, history.Path(), policy)

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	browser := browse.NewBrowser(prober, cfg.MediaPath)
	handler := api.NewHandler(controller, history, browser, cfg, ctx.configPath)
	router := api.NewRouter(handler, nil)

	fmt.Fprintf(out, "  Starting server on port %d\n", port)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Press Ctrl+C to stop")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "─────────────────────────────────────────────────────────────")
	fmt.Fprintf(out, "  Logging started (level: %s)\n", logger.Level())
	fmt.Fprintln(out, "─────────────────────────────────────────────────────────────")
	selected := policy.Select(cfg.UseHardwareEncoder)
	logger.Info("trimsilence started", "version", trimsilence.Version, "encoder", selected.Encoder, "port", port)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Fprintln(out, "\n  Shutting down...")
		logger.Info("Shutdown signal received")
		handler.Shutdown()
		server.Close()
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		handler.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped")
	fmt.Fprintln(out, "  Goodbye!")
	return nil
}

func printBanner(w io.Writer, cfg *config.Config, cfgPath, dbPath string, policy ffmpeg.EncoderPolicy) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                        TRIMSILENCE                        ║")
	fmt.Fprintln(w, "║            Cut the quiet parts out of your video          ║")
	versionLine := fmt.Sprintf("v%s", trimsilence.Version)
	padding := 59 - len(versionLine)
	fmt.Fprintf(w, "║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Media path:   %s\n", cfg.MediaPath)
	fmt.Fprintf(w, "  Config:       %s\n", cfgPath)
	fmt.Fprintf(w, "  Database:     %s\n", dbPath)
	fmt.Fprintf(w, "  Temp path:    %s\n", cfg.GetTempDir())
	fmt.Fprintf(w, "  Detection:    %.1f dB, >= %.2fs, %.2fs padding\n", cfg.ThresholdDB, cfg.MinSilenceDuration, cfg.Padding)
	fmt.Fprintf(w, "  Quality:      %s\n", cfg.Quality)
	fmt.Fprintf(w, "  FFmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Fprintf(w, "  FFprobe:      %s\n", cfg.FFprobePath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Encoders:")
	selected := policy.Select(cfg.UseHardwareEncoder)
	for _, enc := range policy.Candidates {
		marker := "  "
		if enc.Encoder == selected.Encoder {
			marker = "* "
		}
		fmt.Fprintf(w, "    %s%s (%s)\n", marker, enc.Name, enc.Encoder)
	}
	fmt.Fprintln(w)
}
