// Package capture runs the camera on a dedicated worker goroutine: one-shot
// and continuous preview capture, per-frame measurements, and publication of
// the results as events.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
	"github.com/bryanchriswhite/FocusAssist/internal/camera"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/google/uuid"
)

var (
	// ErrRawFormat is reported when the camera is set to a RAW image format
	ErrRawFormat = errors.New("cannot preview raw images")

	// ErrClosed is returned for commands sent after Shutdown
	ErrClosed = errors.New("capture loop shut down")
)

// Options tunes a Handler
type Options struct {
	// CaptureSizeClassChoice is the choice index written to the
	// "capturesizeclass" setting on init; some Canon bodies need it for
	// preview to work at all. Negative leaves the setting alone.
	CaptureSizeClassChoice int

	// CallTimeout bounds each camera call
	CallTimeout time.Duration

	// EventBuffer is the capacity of the events channel
	EventBuffer int
}

// DefaultOptions returns the options used by the application
func DefaultOptions() Options {
	return Options{
		CaptureSizeClassChoice: 2,
		CallTimeout:            30 * time.Second,
		EventBuffer:            32,
	}
}

// Handler owns a camera. All camera calls happen on its worker goroutine;
// public methods only enqueue work.
type Handler struct {
	cam  camera.Camera
	opts Options

	// worker-owned
	tree *camera.Widget
	seq  uint64

	jobs   chan func()
	next   chan struct{}
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running   atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once

	mu     sync.RWMutex
	status Status
}

// New creates a handler for cam. Call Start before sending commands.
func New(cam camera.Camera, opts Options) *Handler {
	def := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		cam:    cam,
		opts:   opts,
		jobs:   make(chan func(), 16),
		next:   make(chan struct{}, 1),
		events: make(chan Event, opts.EventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		status: Status{Camera: cam.Name(), State: Idle},
	}
}

// Events returns the channel results are published on. It is closed once
// the worker has exited and released the camera.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Start launches the worker and initialises the camera on it. If Start
// fails the caller should still call Shutdown to release the camera.
func (h *Handler) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return errors.New("capture loop already started")
	}

	go h.run()

	errc := make(chan error, 1)
	if err := h.submit(func() { errc <- h.initCamera(ctx) }); err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OneShot captures a single frame. It is ignored while continuous capture
// is running.
func (h *Handler) OneShot() error {
	return h.submit(h.oneShot)
}

// StartContinuous begins capturing frames back to back
func (h *Handler) StartContinuous() error {
	return h.submit(h.startContinuous)
}

// StopContinuous ends continuous capture. A capture already in flight still
// completes; no further capture is queued after it.
func (h *Handler) StopContinuous() error {
	h.running.Store(false)
	return h.submit(func() {
		// a start queued ahead of this job may have set the flag again
		h.running.Store(false)
		if h.State() == CapturingContinuous {
			h.setState(Idle)
		}
	})
}

// ToggleContinuous starts continuous capture if idle, otherwise stops it
func (h *Handler) ToggleContinuous() error {
	return h.submit(func() {
		if h.running.Load() {
			h.running.Store(false)
			h.setState(Idle)
			return
		}
		h.startContinuous()
	})
}

// Shutdown stops capturing, waits for the worker to exit and releases the
// camera. The camera is released exactly once however often Shutdown is
// called.
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() {
		h.running.Store(false)
		h.cancel()
		close(h.quit)

		if h.started.Load() {
			<-h.done
			return
		}
		h.release()
		close(h.events)
		close(h.done)
	})
}

// State returns the current run state
func (h *Handler) State() RunState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.State
}

// Status returns a snapshot of the loop's counters
func (h *Handler) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *Handler) submit(job func()) error {
	select {
	case <-h.quit:
		return ErrClosed
	default:
	}

	select {
	case h.jobs <- job:
		return nil
	case <-h.quit:
		return ErrClosed
	}
}

// run is the worker loop. Queued commands always run before the next
// continuous capture, the same way the continuation is posted behind user
// input in an event loop.
func (h *Handler) run() {
	defer close(h.done)
	defer close(h.events)
	defer h.release()

	for {
		select {
		case job := <-h.jobs:
			job()
			continue
		case <-h.quit:
			return
		default:
		}

		select {
		case job := <-h.jobs:
			job()
		case <-h.next:
			h.doContinuous()
		case <-h.quit:
			return
		}
	}
}

func (h *Handler) release() {
	log := logger.WithComponent("capture")

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.CallTimeout)
	defer cancel()

	if err := h.cam.Exit(ctx); err != nil && !errors.Is(err, camera.ErrClosed) {
		log.Warn().Err(err).Str("camera", h.cam.Name()).Msg("Failed to release camera")
		return
	}
	log.Info().Str("camera", h.cam.Name()).Msg("Camera released")
}

func (h *Handler) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.opts.CallTimeout)
}

func (h *Handler) initCamera(ctx context.Context) error {
	log := logger.WithComponent("capture")

	cctx, cancel := h.callContext(ctx)
	defer cancel()

	if err := h.cam.Init(cctx); err != nil {
		return fmt.Errorf("failed to initialise camera: %w", err)
	}

	tree, err := h.cam.GetConfig(cctx)
	if err != nil {
		return fmt.Errorf("failed to read camera config: %w", err)
	}
	h.tree = tree

	h.configureCaptureSize(cctx)

	log.Info().Str("camera", h.cam.Name()).Msg("Camera ready")
	return nil
}

// configureCaptureSize is best effort: cameras without the setting are left
// as they are.
func (h *Handler) configureCaptureSize(ctx context.Context) {
	log := logger.WithComponent("capture")

	choice := h.opts.CaptureSizeClassChoice
	if choice < 0 {
		return
	}

	w, err := h.tree.ChildByName("capturesizeclass")
	if err != nil {
		log.Debug().Err(err).Msg("Camera has no capture size class setting")
		return
	}

	value, err := w.Choice(choice)
	if err != nil {
		log.Debug().Err(err).Msg("Capture size class choice unavailable")
		return
	}
	if w.Value == value {
		return
	}

	if err := w.SetValue(value); err != nil {
		log.Warn().Err(err).Msg("Failed to set capture size class")
		return
	}
	if err := h.cam.SetConfig(ctx, h.tree); err != nil {
		log.Warn().Err(err).Str("value", value).Msg("Failed to write capture size class")
		return
	}
	log.Info().Str("value", value).Msg("Capture size class set")
}

// checkConfig refuses RAW output, for which there is no preview
func (h *Handler) checkConfig() error {
	if h.tree == nil {
		return nil
	}
	w, err := h.tree.ChildByName("imageformat")
	if err != nil {
		return nil
	}
	if strings.Contains(strings.ToLower(w.Value), "raw") {
		return fmt.Errorf("%w (image format %q)", ErrRawFormat, w.Value)
	}
	return nil
}

func (h *Handler) oneShot() {
	if h.running.Load() {
		return
	}
	if err := h.checkConfig(); err != nil {
		h.reject(err)
		return
	}

	h.setState(CapturingOnce)
	h.doCapture()
	if !h.running.Load() {
		h.setState(Idle)
	}
}

func (h *Handler) startContinuous() {
	if h.running.Load() {
		return
	}
	if err := h.checkConfig(); err != nil {
		h.reject(err)
		return
	}

	h.running.Store(true)
	h.setState(CapturingContinuous)
	h.doContinuous()
}

// doContinuous captures one frame and, if still running, queues the next
func (h *Handler) doContinuous() {
	if !h.running.Load() {
		return
	}

	h.doCapture()

	if !h.running.Load() {
		h.setState(Idle)
		return
	}

	select {
	case h.next <- struct{}{}:
	default:
	}
}

func (h *Handler) doCapture() {
	ctx, cancel := h.callContext(h.ctx)
	defer cancel()

	data, err := h.cam.CapturePreview(ctx)
	if err != nil {
		h.fail(fmt.Errorf("failed to capture: %w", err))
		return
	}

	img, format, err := analysis.Decode(data)
	if err != nil {
		h.fail(err)
		return
	}

	// measure before publishing; the frame is not touched afterwards
	hist := analysis.ComputeHistogram(img)
	histImg := analysis.RenderHistogram(hist)
	clipping := hist.Clipping()
	focus := analysis.Focus(img)

	h.seq++
	frame := &Frame{
		ID:         uuid.New(),
		Seq:        h.seq,
		CapturedAt: time.Now(),
		Format:     format,
		Image:      img,
	}

	h.mu.Lock()
	h.status.Captures++
	h.status.LastCapture = frame.CapturedAt
	h.status.Focus = &focus
	h.status.Clipping = &clipping
	h.mu.Unlock()

	logger.WithComponent("capture").Debug().
		Uint64("seq", frame.Seq).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Floats64("focus", focus[:]).
		Ints("clipping", clipping[:]).
		Msg("Frame captured")

	h.publish(Event{Kind: EventImage, CaptureID: frame.ID, Frame: frame})
	h.publish(Event{Kind: EventHistogram, CaptureID: frame.ID, Histogram: histImg})
	h.publish(Event{Kind: EventClipping, CaptureID: frame.ID, Clipping: clipping})
	h.publish(Event{Kind: EventFocus, CaptureID: frame.ID, Focus: focus})
}

// fail ends the current operation after a camera or decode error
func (h *Handler) fail(err error) {
	logger.WithComponent("capture").Error().Err(err).Msg("Capture failed")

	h.running.Store(false)
	h.mu.Lock()
	h.status.Failures++
	h.mu.Unlock()

	h.publish(Event{Kind: EventError, Err: err})
	h.setState(Idle)
}

// reject reports a precondition failure; nothing was attempted
func (h *Handler) reject(err error) {
	logger.WithComponent("capture").Warn().Err(err).Msg("Capture refused")
	h.publish(Event{Kind: EventError, Err: err})
}

func (h *Handler) setState(s RunState) {
	h.mu.Lock()
	changed := h.status.State != s
	h.status.State = s
	h.mu.Unlock()

	if changed {
		h.publish(Event{Kind: EventState, State: s})
	}
}

func (h *Handler) publish(ev Event) {
	select {
	case h.events <- ev:
	case <-h.quit:
	}
}
