package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
	"github.com/bryanchriswhite/FocusAssist/internal/capture"
	"github.com/bryanchriswhite/FocusAssist/internal/display"
	"github.com/spf13/cobra"
)

var (
	measureCount      int
	measureContinuous bool
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Print focus and clipping readings on the terminal",
	Long: `Capture frames without the web UI and print one line of readings per
frame: the per-channel focus score and the per-channel clipped pixel count.`,
	Example: `  # One reading
  focusassist measure

  # Ten readings, captured back to back
  focusassist measure --count 10 --continuous

  # Until interrupted
  focusassist measure --count 0`,
	RunE: runMeasure,
}

func init() {
	rootCmd.AddCommand(measureCmd)

	measureCmd.Flags().IntVarP(&measureCount, "count", "n", 1, "number of frames to measure (0 runs until interrupted)")
	measureCmd.Flags().BoolVar(&measureContinuous, "continuous", false, "capture back to back instead of one shot at a time")
}

func runMeasure(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := newHandler(ctx, configMgr.Get())
	if err != nil {
		return err
	}
	defer handler.Shutdown()

	return measure(ctx, cmd, handler, measureCount, measureContinuous)
}

// measure prints readings until count frames were measured
func measure(ctx context.Context, cmd *cobra.Command, handler *capture.Handler, count int, continuous bool) error {
	trigger := handler.OneShot
	if continuous {
		trigger = handler.StartContinuous
	}
	if err := trigger(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	done := 0
	var clipping analysis.ClippingCounts

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-handler.Events():
			if !ok {
				return nil
			}

			switch ev.Kind {
			case capture.EventClipping:
				clipping = ev.Clipping
			case capture.EventFocus:
				done++
				fmt.Fprintf(out, "%4d  focus %s  clipping %s\n",
					done, display.FormatFocus(ev.Focus), display.FormatClipping(clipping))
				if count > 0 && done >= count {
					if continuous {
						return handler.StopContinuous()
					}
					return nil
				}
			case capture.EventError:
				return ev.Err
			case capture.EventState:
				if ev.State == capture.Idle && !continuous {
					if err := handler.OneShot(); err != nil {
						return err
					}
				}
			}
		}
	}
}
