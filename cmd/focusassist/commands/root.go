package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FocusAssist/internal/config"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	pretty  bool
	rootCmd = &cobra.Command{
		Use:   "focusassist",
		Short: "FocusAssist - live-view focus and exposure aid",
		Long: `FocusAssist grabs live-view frames from a camera and shows, for every
frame, a per-channel focus score, a log-scaled histogram and the number of
clipped pixels. Use it to fine-tune focus and exposure, e.g. with a DSLR on a
telescope: focus coarsely by hand, then chase the highest focus numbers.

Features:
  • gphoto2, webcam and synthetic camera backends
  • Single-shot and continuous capture
  • Browser UI with MJPEG preview and live readings
  • Optional native X11 window with keyboard shortcuts
  • REST and WebSocket API`,
		SilenceUsage: true,
		RunE:         runServe,
	}
)

// flagKeys maps global flags onto config keys
var flagKeys = map[string]string{
	"port":      "server_port",
	"log-level": "log_level",
	"camera":    "camera.backend",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focusassist/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("camera", "", "camera backend (gphoto2, synthetic, webcam)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", isatty.IsTerminal(os.Stderr.Fd()), "human-readable log output")
}

// loadConfig opens the config file, applies flag overrides and sets up
// logging
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for name, key := range flagKeys {
		if err := configMgr.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}

	logger.Init(configMgr.Get().LogLevel, pretty)
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
