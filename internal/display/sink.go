// Package display consumes capture events and presents them: the latest
// snapshot for the web UI, frames for the MJPEG stream, and the native
// preview window.
package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
	"github.com/bryanchriswhite/FocusAssist/internal/capture"
	"github.com/bryanchriswhite/FocusAssist/internal/config"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/bryanchriswhite/FocusAssist/internal/output"
	"github.com/bryanchriswhite/FocusAssist/internal/overlay"
	"github.com/google/uuid"
)

// Controller accepts capture commands
type Controller interface {
	OneShot() error
	StartContinuous() error
	StopContinuous() error
	ToggleContinuous() error
}

// Command names a user action
type Command string

const (
	CmdOneShot    Command = "once"
	CmdContinuous Command = "continuous"
	CmdStart      Command = "start"
	CmdStop       Command = "stop"
	CmdQuit       Command = "quit"
)

// View shows whole snapshots rather than bare frames
type View interface {
	Show(snap Snapshot) error
	Name() string
}

// Snapshot is the latest state of every reading
type Snapshot struct {
	CaptureID    uuid.UUID
	Frame        *capture.Frame
	Histogram    *image.RGBA
	Focus        *analysis.FocusScore
	Clipping     *analysis.ClippingCounts
	State        capture.RunState
	Err          error
	FocusText    string
	ClippingText string
	UpdatedAt    time.Time
}

// Update is the JSON message pushed to subscribers
type Update struct {
	Kind         capture.EventKind        `json:"kind"`
	CaptureID    string                   `json:"capture_id,omitempty"`
	Seq          uint64                   `json:"seq,omitempty"`
	State        capture.RunState         `json:"state"`
	Focus        *analysis.FocusScore     `json:"focus,omitempty"`
	Clipping     *analysis.ClippingCounts `json:"clipping,omitempty"`
	FocusText    string                   `json:"focus_text"`
	ClippingText string                   `json:"clipping_text"`
	Error        string                   `json:"error,omitempty"`
	Time         time.Time                `json:"time"`
}

// Sink turns capture events into something to look at
type Sink struct {
	ctrl Controller
	quit func()

	mu       sync.RWMutex
	snap     Snapshot
	pending  *capture.Frame
	histPNG  []byte
	outputs  []output.Output
	views    []View
	overlay  *overlay.Manager
	readout  *overlay.TextWidget
	histInst *overlay.ImageWidget

	subsMu sync.Mutex
	subs   map[chan Update]struct{}
}

// NewSink creates a sink sending commands to ctrl. quit is called for
// CmdQuit. ov may be nil to stream frames without a readout.
func NewSink(ctrl Controller, quit func(), ov *overlay.Manager) *Sink {
	s := &Sink{
		ctrl: ctrl,
		quit: quit,
		snap: Snapshot{
			FocusText:    Placeholder,
			ClippingText: Placeholder,
		},
		overlay: ov,
		subs:    make(map[chan Update]struct{}),
	}

	if ov != nil {
		s.readout = overlay.NewTextWidget("readout", overlay.BottomLeft)
		s.readout.SetLines(readoutLines(s.snap)...)
		s.histInst = overlay.NewImageWidget("histogram", overlay.TopRight)
		for _, w := range []overlay.Widget{s.readout, s.histInst} {
			if err := ov.AddWidget(w); err != nil {
				logger.WithComponent("display").Warn().Err(err).Msg("Failed to add overlay widget")
			}
		}
	}
	return s
}

// ApplyOverlay switches the streamed readout and the histogram inset on or
// off. It has no effect on a sink created without an overlay.
func (s *Sink) ApplyOverlay(cfg config.OverlayConfig) {
	if s.overlay == nil {
		return
	}
	s.overlay.SetEnabled(cfg.Enabled)
	if w, ok := s.overlay.GetWidget("histogram"); ok {
		w.SetEnabled(cfg.Histogram)
	}
}

// AddOutput registers a frame output
func (s *Sink) AddOutput(o output.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, o)
}

// AddView registers a snapshot view
func (s *Sink) AddView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

// Snapshot returns the latest readings
func (s *Sink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// HistogramPNG returns the latest histogram image encoded as PNG, or nil
func (s *Sink) HistogramPNG() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.histPNG
}

// Subscribe returns a channel receiving an Update per event. Updates are
// dropped for subscribers that fall behind.
func (s *Sink) Subscribe() chan Update {
	ch := make(chan Update, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription
func (s *Sink) Unsubscribe(ch chan Update) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Dispatch forwards a user command
func (s *Sink) Dispatch(cmd Command) error {
	logger.WithComponent("display").Debug().Str("command", string(cmd)).Msg("Dispatching command")

	switch cmd {
	case CmdOneShot:
		return s.ctrl.OneShot()
	case CmdContinuous:
		return s.ctrl.ToggleContinuous()
	case CmdStart:
		return s.ctrl.StartContinuous()
	case CmdStop:
		return s.ctrl.StopContinuous()
	case CmdQuit:
		if s.quit != nil {
			s.quit()
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// Run consumes events until the channel is closed, which happens once the
// capture loop has released the camera, or until ctx is cancelled
func (s *Sink) Run(ctx context.Context, events <-chan capture.Event) error {
	log := logger.WithComponent("display")
	log.Debug().Msg("Display sink started")

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Debug().Msg("Event stream closed")
				return nil
			}
			s.handle(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops every output and disconnects subscribers
func (s *Sink) Close() {
	s.mu.RLock()
	outputs := append([]output.Output(nil), s.outputs...)
	s.mu.RUnlock()

	for _, o := range outputs {
		if err := o.Stop(); err != nil {
			logger.WithComponent("display").Warn().Err(err).Str("output", o.Name()).Msg("Failed to stop output")
		}
	}

	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan Update]struct{})
	s.subsMu.Unlock()
}

func (s *Sink) handle(ev capture.Event) {
	log := logger.WithComponent("display")

	var flush *capture.Frame
	show := false

	s.mu.Lock()
	switch ev.Kind {
	case capture.EventImage:
		s.snap.CaptureID = ev.CaptureID
		s.snap.Frame = ev.Frame
		s.pending = ev.Frame
	case capture.EventHistogram:
		s.snap.Histogram = ev.Histogram
		s.histPNG = encodePNG(ev.Histogram)
		if s.histInst != nil {
			s.histInst.SetImage(ev.Histogram)
		}
	case capture.EventClipping:
		c := ev.Clipping
		s.snap.Clipping = &c
		s.snap.ClippingText = FormatClipping(c)
	case capture.EventFocus:
		f := ev.Focus
		s.snap.Focus = &f
		s.snap.FocusText = FormatFocus(f)
		s.snap.Err = nil
		// the focus reading is the last of a capture
		if s.pending != nil && s.pending.ID == ev.CaptureID {
			flush = s.pending
		}
		s.pending = nil
		show = true
	case capture.EventState:
		s.snap.State = ev.State
		show = true
	case capture.EventError:
		s.snap.Err = ev.Err
		show = true
	}
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	outputs := append([]output.Output(nil), s.outputs...)
	views := append([]View(nil), s.views...)
	s.mu.Unlock()

	if s.readout != nil {
		s.readout.SetLines(readoutLines(snap)...)
	}

	if flush != nil && len(outputs) > 0 {
		frame := flush.Image
		if s.overlay != nil {
			frame = s.overlay.Compose(frame)
		}
		for _, o := range outputs {
			if !o.IsRunning() {
				continue
			}
			if err := o.WriteFrame(frame); err != nil {
				log.Warn().Err(err).Str("output", o.Name()).Msg("Failed to write frame")
			}
		}
	}

	if show {
		for _, v := range views {
			if err := v.Show(snap); err != nil {
				log.Warn().Err(err).Str("view", v.Name()).Msg("Failed to show snapshot")
			}
		}
	}

	s.broadcast(newUpdate(ev.Kind, snap))
}

func (s *Sink) broadcast(u Update) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// CurrentUpdate returns the latest snapshot as an Update
func (s *Sink) CurrentUpdate() Update {
	return newUpdate(capture.EventState, s.Snapshot())
}

func newUpdate(kind capture.EventKind, snap Snapshot) Update {
	u := Update{
		Kind:         kind,
		State:        snap.State,
		Focus:        snap.Focus,
		Clipping:     snap.Clipping,
		FocusText:    snap.FocusText,
		ClippingText: snap.ClippingText,
		Time:         snap.UpdatedAt,
	}
	if snap.CaptureID != uuid.Nil {
		u.CaptureID = snap.CaptureID.String()
	}
	if snap.Frame != nil {
		u.Seq = snap.Frame.Seq
	}
	if snap.Err != nil {
		u.Error = snap.Err.Error()
	}
	return u
}

func readoutLines(snap Snapshot) []string {
	return []string{
		"focus    " + snap.FocusText,
		"clipping " + snap.ClippingText,
	}
}

func encodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logger.WithComponent("display").Warn().Err(err).Msg("Failed to encode histogram")
		return nil
	}
	return buf.Bytes()
}
