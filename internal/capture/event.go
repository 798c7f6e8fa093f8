package capture

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
	"github.com/google/uuid"
)

// RunState is the capture loop's mode
type RunState int

const (
	Idle RunState = iota
	CapturingOnce
	CapturingContinuous
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case CapturingOnce:
		return "once"
	case CapturingContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *RunState) UnmarshalText(text []byte) error {
	for _, candidate := range []RunState{Idle, CapturingOnce, CapturingContinuous} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Frame is one decoded preview image. Once published it belongs to the
// receiver; the capture loop keeps no reference to it. Receivers sharing a
// frame must treat Image as read-only.
type Frame struct {
	ID         uuid.UUID
	Seq        uint64
	CapturedAt time.Time
	Format     string
	Image      *image.RGBA
}

// EventKind identifies the payload of an Event
type EventKind string

const (
	EventImage     EventKind = "image"
	EventHistogram EventKind = "histogram"
	EventClipping  EventKind = "clipping"
	EventFocus     EventKind = "focus"
	EventState     EventKind = "state"
	EventError     EventKind = "error"
)

// Event is published by the capture loop. Only the field matching Kind is
// set; CaptureID ties the image, histogram, clipping and focus events of one
// capture together.
type Event struct {
	Kind      EventKind
	CaptureID uuid.UUID
	Frame     *Frame
	Histogram *image.RGBA
	Clipping  analysis.ClippingCounts
	Focus     analysis.FocusScore
	State     RunState
	Err       error
}

// Status is a point-in-time summary of the loop
type Status struct {
	Camera      string                   `json:"camera"`
	State       RunState                 `json:"state"`
	Captures    uint64                   `json:"captures"`
	Failures    uint64                   `json:"failures"`
	LastCapture time.Time                `json:"last_capture,omitempty"`
	Focus       *analysis.FocusScore     `json:"focus,omitempty"`
	Clipping    *analysis.ClippingCounts `json:"clipping,omitempty"`
}
