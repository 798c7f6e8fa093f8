package camera

import (
	"fmt"
	"strings"
)

// WidgetType mirrors the gphoto2 widget kinds
type WidgetType string

const (
	WidgetWindow  WidgetType = "WINDOW"
	WidgetSection WidgetType = "SECTION"
	WidgetText    WidgetType = "TEXT"
	WidgetRange   WidgetType = "RANGE"
	WidgetToggle  WidgetType = "TOGGLE"
	WidgetRadio   WidgetType = "RADIO"
	WidgetMenu    WidgetType = "MENU"
	WidgetDate    WidgetType = "DATE"
)

// Widget is one node of a camera configuration tree
type Widget struct {
	Name     string     `json:"name"`
	Label    string     `json:"label,omitempty"`
	Type     WidgetType `json:"type"`
	ReadOnly bool       `json:"readonly,omitempty"`
	Value    string     `json:"value,omitempty"`
	Choices  []string   `json:"choices,omitempty"`
	Children []*Widget  `json:"children,omitempty"`

	parent  *Widget
	changed bool
}

// NewWidget creates a detached widget
func NewWidget(name string, typ WidgetType) *Widget {
	return &Widget{Name: name, Type: typ}
}

// AddChild appends child and returns it
func (w *Widget) AddChild(child *Widget) *Widget {
	child.parent = w
	w.Children = append(w.Children, child)
	return child
}

// Path returns the slash separated location of the widget, e.g.
// /main/imgsettings/imageformat. The root itself is not part of the path.
func (w *Widget) Path() string {
	if w.parent == nil {
		return ""
	}
	return w.parent.Path() + "/" + w.Name
}

// ChildByName finds a descendant by name or by full path. Lookups are
// depth-first so the first widget in listing order wins.
func (w *Widget) ChildByName(name string) (*Widget, error) {
	if strings.HasPrefix(name, "/") {
		if found := w.childByPath(name); found != nil {
			return found, nil
		}
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	for _, c := range w.Children {
		if c.Name == name {
			return c, nil
		}
		if found, err := c.ChildByName(name); err == nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (w *Widget) childByPath(path string) *Widget {
	for _, c := range w.Children {
		p := c.Path()
		if p == path {
			return c
		}
		if strings.HasPrefix(path, p+"/") {
			return c.childByPath(path)
		}
	}
	return nil
}

// Choice returns the i-th choice of a radio or menu widget
func (w *Widget) Choice(i int) (string, error) {
	if i < 0 || i >= len(w.Choices) {
		return "", fmt.Errorf("%s has no choice %d (%d available)", w.Name, i, len(w.Choices))
	}
	return w.Choices[i], nil
}

// SetValue updates the value and marks the widget for the next SetConfig
func (w *Widget) SetValue(value string) error {
	if w.ReadOnly {
		return fmt.Errorf("%s is read-only", w.Name)
	}
	if len(w.Choices) > 0 && !w.hasChoice(value) {
		return fmt.Errorf("%q is not a valid choice for %s", value, w.Name)
	}
	w.Value = value
	w.changed = true
	return nil
}

func (w *Widget) hasChoice(value string) bool {
	for _, c := range w.Choices {
		if c == value {
			return true
		}
	}
	return false
}

// Changed reports whether SetValue was called since the last ClearChanged
func (w *Widget) Changed() bool {
	return w.changed
}

// ChangedWidgets returns every changed widget under w, in tree order
func (w *Widget) ChangedWidgets() []*Widget {
	var out []*Widget
	w.walk(func(n *Widget) {
		if n.changed {
			out = append(out, n)
		}
	})
	return out
}

// ClearChanged resets the changed flag on the whole subtree
func (w *Widget) ClearChanged() {
	w.walk(func(n *Widget) { n.changed = false })
}

func (w *Widget) walk(fn func(*Widget)) {
	fn(w)
	for _, c := range w.Children {
		c.walk(fn)
	}
}
