package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FocusAssist/internal/config"
	"github.com/bryanchriswhite/FocusAssist/internal/logger"
)

// Window is a native X11 window showing the histogram, the readings and
// the latest frame. Ctrl+G captures once, Ctrl+R toggles continuous
// capture and Ctrl+Q quits.
type Window struct {
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	win      xproto.Window
	gc       xproto.Gcontext
	width    int
	height   int
	running  bool
	mu       sync.RWMutex
	drawMu   sync.Mutex
	last     Snapshot
	dispatch func(Command) error
	keysyms  map[xproto.Keycode]xproto.Keysym
	protocol xproto.Atom
	wmDelete xproto.Atom
	done     chan struct{}
}

// NewWindow connects to the X server. dispatch receives keyboard commands.
func NewWindow(cfg config.WindowConfig, dispatch func(Command) error) (*Window, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	width, height := cfg.Width, cfg.Height
	if width <= panelWidth {
		width = 1024
	}
	if height <= 0 {
		height = 600
	}

	return &Window{
		conn:     conn,
		screen:   screen,
		width:    width,
		height:   height,
		dispatch: dispatch,
		last:     Snapshot{FocusText: Placeholder, ClippingText: Placeholder},
		done:     make(chan struct{}),
	}, nil
}

// Name returns the view name
func (w *Window) Name() string {
	return "X11 window"
}

// Start creates and maps the window and starts handling its events. If it
// fails the X connection is closed and the window cannot be started again.
func (w *Window) Start() (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("window already running")
	}
	if w.conn == nil {
		return fmt.Errorf("window closed")
	}

	created := false
	defer func() {
		if err != nil {
			w.abort(created)
		}
	}()

	winID, err := xproto.NewWindowId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	w.win = winID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify | xproto.EventMaskKeyPress,
	}

	err = xproto.CreateWindowChecked(
		w.conn,
		w.screen.RootDepth,
		w.win,
		w.screen.Root,
		0, 0,
		uint16(w.width), uint16(w.height),
		0,
		xproto.WindowClassInputOutput,
		w.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	created = true

	log := logger.WithComponent("window")
	if err := w.setWindowTitle("FocusAssist"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := w.setWindowClass("focusassist", "FocusAssist"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := w.setDeleteProtocol(); err != nil {
		log.Warn().Err(err).Msg("Failed to register close handler")
	}
	if err := w.loadKeymap(); err != nil {
		log.Warn().Err(err).Msg("Failed to load keyboard mapping, shortcuts disabled")
	}

	if err := xproto.MapWindowChecked(w.conn, w.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(w.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	w.gc = gc
	if err := xproto.CreateGCChecked(w.conn, w.gc, xproto.Drawable(w.win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}

	w.conn.Sync()
	w.running = true

	go w.eventLoop()

	log.Info().
		Int("width", w.width).
		Int("height", w.height).
		Uint32("window_id", uint32(w.win)).
		Msg("Preview window created")
	return nil
}

// abort releases what a failed Start set up
func (w *Window) abort(created bool) {
	if created {
		xproto.DestroyWindow(w.conn, w.win)
		w.conn.Sync()
	}
	w.conn.Close()
	w.conn = nil
}

// Stop closes the window and the X connection
func (w *Window) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	xproto.FreeGC(w.conn, w.gc)
	xproto.DestroyWindow(w.conn, w.win)
	w.conn.Sync()
	w.conn.Close()
	<-w.done

	logger.WithComponent("window").Info().Msg("Preview window closed")
	return nil
}

// IsRunning returns whether the window is shown
func (w *Window) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Show redraws the window with snap
func (w *Window) Show(snap Snapshot) error {
	w.mu.Lock()
	w.last = snap
	running := w.running
	w.mu.Unlock()

	if !running {
		return nil
	}
	return w.redraw()
}

func (w *Window) redraw() error {
	w.drawMu.Lock()
	defer w.drawMu.Unlock()

	w.mu.RLock()
	snap, width, height := w.last, w.width, w.height
	w.mu.RUnlock()

	return w.putImage(composeLayout(snap, width, height))
}

func (w *Window) eventLoop() {
	defer close(w.done)
	log := logger.WithComponent("window")

	for {
		ev, xerr := w.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			log.Debug().Msg("X connection closed")
			return
		}
		if xerr != nil {
			log.Debug().Str("error", xerr.Error()).Msg("X error")
			continue
		}

		switch e := ev.(type) {
		case xproto.ExposeEvent:
			if e.Count == 0 {
				if err := w.redraw(); err != nil {
					log.Debug().Err(err).Msg("Failed to redraw")
				}
			}
		case xproto.ConfigureNotifyEvent:
			w.resize(int(e.Width), int(e.Height))
		case xproto.KeyPressEvent:
			w.mu.RLock()
			sym := w.keysyms[e.Detail]
			w.mu.RUnlock()
			if cmd, ok := shortcut(sym, e.State); ok {
				w.send(cmd)
			}
		case xproto.ClientMessageEvent:
			if e.Type == w.protocol && xproto.Atom(e.Data.Data32[0]) == w.wmDelete {
				w.send(CmdQuit)
			}
		case xproto.DestroyNotifyEvent:
			return
		}
	}
}

func (w *Window) send(cmd Command) {
	if err := w.dispatch(cmd); err != nil {
		logger.WithComponent("window").Warn().Err(err).Str("command", string(cmd)).Msg("Command failed")
	}
}

func (w *Window) resize(width, height int) {
	w.mu.Lock()
	changed := width != w.width || height != w.height
	if changed && width > panelWidth && height > 0 {
		w.width, w.height = width, height
	} else {
		changed = false
	}
	w.mu.Unlock()

	if changed {
		if err := w.redraw(); err != nil {
			logger.WithComponent("window").Debug().Err(err).Msg("Failed to redraw")
		}
	}
}

// shortcut maps a key press to a command
func shortcut(sym xproto.Keysym, state uint16) (Command, bool) {
	if state&xproto.ModMaskControl == 0 {
		return "", false
	}
	switch sym {
	case 'g', 'G':
		return CmdOneShot, true
	case 'r', 'R':
		return CmdContinuous, true
	case 'q', 'Q':
		return CmdQuit, true
	}
	return "", false
}

func (w *Window) loadKeymap() error {
	setup := xproto.Setup(w.conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)

	reply, err := xproto.GetKeyboardMapping(w.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return err
	}

	per := int(reply.KeysymsPerKeycode)
	keysyms := make(map[xproto.Keycode]xproto.Keysym, count)
	for i := 0; i < int(count) && i*per < len(reply.Keysyms); i++ {
		keysyms[setup.MinKeycode+xproto.Keycode(i)] = reply.Keysyms[i*per]
	}
	w.keysyms = keysyms
	return nil
}

// putImage sends img to the window in strips that fit the request size
func (w *Window) putImage(img *image.RGBA) error {
	depth := w.screen.RootDepth
	setup := xproto.Setup(w.conn)

	var bitsPerPixel, scanlinePad uint8
	for _, format := range setup.PixmapFormats {
		if format.Depth == depth {
			bitsPerPixel = format.BitsPerPixel
			scanlinePad = format.ScanlinePad
			break
		}
	}
	if bitsPerPixel == 0 {
		return fmt.Errorf("no format found for depth %d", depth)
	}

	data, stride, err := toZPixmap(img, int(bitsPerPixel)/8, int(scanlinePad)/8, depth)
	if err != nil {
		return err
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	rows := (int(setup.MaximumRequestLength)*4 - 32) / stride
	if rows < 1 {
		return fmt.Errorf("window too wide for X request size")
	}

	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		err := xproto.PutImageChecked(
			w.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(w.win),
			w.gc,
			uint16(width), uint16(n),
			0, int16(y),
			0,
			depth,
			data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}

	w.conn.Sync()
	return nil
}

// toZPixmap converts RGBA to the server's BGR(x) layout with padded rows
func toZPixmap(img *image.RGBA, bytesPerPixel, padBytes int, depth byte) ([]byte, int, error) {
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, 0, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	if padBytes <= 0 {
		padBytes = 1
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	unpadded := width * bytesPerPixel
	stride := ((unpadded + padBytes - 1) / padBytes) * padBytes

	data := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := data[y*stride:]
		for x := 0; x < width; x++ {
			s, d := x*4, x*bytesPerPixel
			dst[d] = src[s+2]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s]
			if bytesPerPixel == 4 && depth == 32 {
				dst[d+3] = src[s+3]
			}
		}
	}
	return data, stride, nil
}

func (w *Window) setWindowTitle(title string) error {
	titleAtom, err := w.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := w.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}

	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.win,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (w *Window) setWindowClass(instance, class string) error {
	classAtom, err := w.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.win,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// setDeleteProtocol asks the window manager for a message instead of a
// killed connection when the window is closed
func (w *Window) setDeleteProtocol() error {
	protocol, err := w.getAtom("WM_PROTOCOLS")
	if err != nil {
		return err
	}
	wmDelete, err := w.getAtom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	w.protocol, w.wmDelete = protocol, wmDelete

	buf := make([]byte, 4)
	xgb.Put32(buf, uint32(wmDelete))

	return xproto.ChangePropertyChecked(
		w.conn,
		xproto.PropModeReplace,
		w.win,
		protocol,
		xproto.AtomAtom,
		32,
		1,
		buf,
	).Check()
}

func (w *Window) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(w.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
