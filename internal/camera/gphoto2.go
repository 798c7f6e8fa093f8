package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/kballard/go-shellquote"
)

// runFunc executes a command and returns its stdout
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// GPhoto2 drives a camera through the gphoto2 command-line tool. Each call
// runs one subprocess, so the USB device is only claimed while a command is
// in flight.
type GPhoto2 struct {
	argv    []string
	timeout time.Duration
	run     runFunc
	closed  bool
}

// NewGPhoto2 creates a gphoto2 backend. command is the tool invocation with
// any global options, e.g. "gphoto2 --port usb:001,004".
func NewGPhoto2(command string, timeout time.Duration) (*GPhoto2, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse camera command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("camera command is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GPhoto2{
		argv:    argv,
		timeout: timeout,
		run:     execRun,
	}, nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, lastLine(msg))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func (g *GPhoto2) invoke(ctx context.Context, args ...string) ([]byte, error) {
	if g.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	full := append(append([]string{}, g.argv[1:]...), args...)
	logger.WithComponent("gphoto2").Debug().
		Strs("args", full).
		Msg("Running gphoto2")

	return g.run(ctx, g.argv[0], full...)
}

// Name returns the backend name
func (g *GPhoto2) Name() string {
	return "gphoto2"
}

// Init checks that a camera answers on the configured port
func (g *GPhoto2) Init(ctx context.Context) error {
	out, err := g.invoke(ctx, "--summary")
	if err != nil {
		return fmt.Errorf("failed to initialise camera: %w", err)
	}

	log := logger.WithComponent("gphoto2")
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "Model:") {
			log.Info().Str("model", strings.TrimSpace(strings.TrimPrefix(line, "Model:"))).Msg("Camera connected")
			break
		}
	}
	return nil
}

// GetConfig reads the full configuration tree
func (g *GPhoto2) GetConfig(ctx context.Context) (*Widget, error) {
	out, err := g.invoke(ctx, "--list-all-config")
	if err != nil {
		return nil, fmt.Errorf("failed to read camera config: %w", err)
	}
	return ParseConfigListing(out)
}

// SetConfig writes every changed widget in a single invocation
func (g *GPhoto2) SetConfig(ctx context.Context, root *Widget) error {
	changed := root.ChangedWidgets()
	if len(changed) == 0 {
		return nil
	}

	args := make([]string, 0, 2*len(changed))
	for _, w := range changed {
		args = append(args, "--set-config", w.Path()+"="+w.Value)
	}

	if _, err := g.invoke(ctx, args...); err != nil {
		return fmt.Errorf("failed to write camera config: %w", err)
	}
	root.ClearChanged()
	return nil
}

// CapturePreview grabs a live-view frame from stdout
func (g *GPhoto2) CapturePreview(ctx context.Context) ([]byte, error) {
	out, err := g.invoke(ctx, "--capture-preview", "--stdout")
	if err != nil {
		return nil, fmt.Errorf("failed to capture preview: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to capture preview: empty image")
	}
	return out, nil
}

// Exit marks the handle closed
func (g *GPhoto2) Exit(ctx context.Context) error {
	if g.closed {
		return ErrClosed
	}
	g.closed = true
	return nil
}

// ParseConfigListing parses the output of `gphoto2 --list-all-config`:
//
//	/main/imgsettings/imageformat
//	Label: Image Format
//	Readonly: 0
//	Type: RADIO
//	Current: Large Fine JPEG
//	Choice: 0 Large Fine JPEG
//	END
func ParseConfigListing(data []byte) (*Widget, error) {
	root := NewWidget("", WidgetWindow)

	var cur *Widget
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "/"):
			cur = ensurePath(root, line)
		case line == "END":
			cur = nil
		case cur == nil:
			// stray output between entries (warnings etc.)
			continue
		default:
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("line %d: malformed config line %q", lineNo, line)
			}
			value = strings.TrimSpace(value)
			switch key {
			case "Label":
				cur.Label = value
			case "Readonly":
				cur.ReadOnly = value == "1"
			case "Type":
				cur.Type = WidgetType(value)
			case "Current":
				cur.Value = value
			case "Choice":
				idx, text, _ := strings.Cut(value, " ")
				if _, err := strconv.Atoi(idx); err != nil {
					return nil, fmt.Errorf("line %d: bad choice index %q", lineNo, idx)
				}
				cur.Choices = append(cur.Choices, text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config listing: %w", err)
	}

	return root, nil
}

// ensurePath returns the widget at path, creating sections on the way
func ensurePath(root *Widget, path string) *Widget {
	node := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		var next *Widget
		for _, c := range node.Children {
			if c.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			next = node.AddChild(NewWidget(part, WidgetSection))
		}
		node = next
	}
	return node
}
