package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/FocusAssist/internal/api"
	"github.com/bryanchriswhite/FocusAssist/internal/camera"
	"github.com/bryanchriswhite/FocusAssist/internal/capture"
	"github.com/bryanchriswhite/FocusAssist/internal/config"
	"github.com/bryanchriswhite/FocusAssist/internal/display"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/bryanchriswhite/FocusAssist/internal/output"
	"github.com/bryanchriswhite/FocusAssist/internal/overlay"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera, web UI and preview window",
	Long: `Start capturing from the configured camera and serve the web UI.

The web UI shows the MJPEG preview, the histogram and the focus and clipping
readings, with buttons for single and continuous capture. With window.enabled
set, a native X11 window shows the same readings; Ctrl+G captures once,
Ctrl+R toggles continuous capture and Ctrl+Q quits.`,
	Example: `  # Start on the default port (8080) with gphoto2
  focusassist serve

  # Try it out without a camera
  focusassist serve --camera synthetic

  # Start with debug logging on another port
  focusassist serve --port 9090 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newHandler opens the configured camera and starts a capture loop on it
func newHandler(ctx context.Context, cfg *config.Config) (*capture.Handler, error) {
	cam, err := camera.Open(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera: %w", err)
	}

	opts := capture.DefaultOptions()
	opts.CaptureSizeClassChoice = cfg.Camera.CaptureSizeClassChoice

	handler := capture.New(cam, opts)
	if err := handler.Start(ctx); err != nil {
		handler.Shutdown()
		return nil, fmt.Errorf("failed to start camera: %w", err)
	}
	return handler, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("camera", cfg.Camera.Backend).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler, err := newHandler(ctx, cfg)
	if err != nil {
		return err
	}
	defer handler.Shutdown()

	sink := display.NewSink(handler, cancel, overlay.NewManager())
	sink.ApplyOverlay(cfg.Overlay)

	configMgr.OnChange(func(c *config.Config) {
		logger.SetLevel(c.LogLevel)
		sink.ApplyOverlay(c.Overlay)
	})
	configMgr.Watch()

	stream := output.NewMJPEGOutput(output.Config{
		MaxWidth: cfg.Preview.MaxWidth,
		Quality:  cfg.Preview.JPEGQuality,
	})
	if err := stream.Start(); err != nil {
		return err
	}
	sink.AddOutput(stream)

	if cfg.Window.Enabled {
		win, err := display.NewWindow(cfg.Window, sink.Dispatch)
		if err != nil {
			log.Warn().Err(err).Msg("Preview window unavailable")
		} else if err := win.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to open preview window")
		} else {
			sink.AddView(win)
			defer win.Stop()
		}
	}

	sinkDone := make(chan error, 1)
	go func() {
		sinkDone <- sink.Run(context.Background(), handler.Events())
	}()

	server := api.NewServer(sink, handler, configMgr, stream)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, cfg.ServerPort)
	}()

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Msg("FocusAssist is running, press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-serverErr
	case runErr = <-serverErr:
	}
	cancel()

	log.Info().Msg("Shutting down")

	// The camera is released before the sink drains and the process exits
	handler.Shutdown()
	<-sinkDone
	sink.Close()

	return runErr
}
