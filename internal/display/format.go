package display

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
)

// Placeholder is shown for a reading before the first capture
const Placeholder = "-, -, -"

// FormatFocus renders per-channel focus values with two decimals
func FormatFocus(f analysis.FocusScore) string {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return strings.Join(parts, ", ")
}

// FormatClipping renders per-channel clipped pixel counts
func FormatClipping(c analysis.ClippingCounts) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
