package utils

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// TruncateToWidth shortens plain text to width cells, ending with "..." when
// anything was cut.
func TruncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return TrimToWidth(text, width)
	}
	return TrimToWidth(text, width-3) + "..."
}

// TrimToWidth cuts plain text to at most width cells. A wide rune that would
// straddle the limit is dropped.
func TrimToWidth(text string, width int) string {
	parts := SplitByWidth(text, width)
	if len(parts) == 0 || width <= 0 {
		return ""
	}
	return parts[0]
}

// FitWidth trims or pads plain text to exactly width cells.
func FitWidth(text string, width int) string {
	return PadPlain(TrimToWidth(text, width), width)
}

// PadPlain right-pads plain text with spaces to width cells.
func PadPlain(text string, width int) string {
	return padTo(text, runewidth.StringWidth(text), width)
}

// PadStyled right-pads ANSI-styled text with spaces to width cells.
func PadStyled(text string, width int) string {
	return padTo(text, lipgloss.Width(text), width)
}

func padTo(text string, have, width int) string {
	if have >= width {
		return text
	}
	return text + strings.Repeat(" ", width-have)
}

// SplitByWidth hard-breaks plain text into chunks of at most width cells.
// Empty text yields a single empty chunk.
func SplitByWidth(text string, width int) []string {
	if text == "" || width <= 0 {
		return []string{text}
	}
	var parts []string
	var sb strings.Builder
	current := 0
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if current+w > width && current > 0 {
			parts = append(parts, sb.String())
			sb.Reset()
			current = 0
		}
		if w > width {
			continue
		}
		sb.WriteRune(r)
		current += w
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}

// WrapIndented word-wraps an ANSI-styled line to width. Continuation lines
// start with indent and still fit in width.
func WrapIndented(line string, width int, indent string) []string {
	if width <= 0 {
		return []string{line}
	}
	wrapped := strings.Split(ansi.Wrap(line, width, ""), "\n")
	if indent == "" || len(wrapped) == 1 {
		return wrapped
	}

	rest := strings.Join(wrapped[1:], " ")
	out := []string{wrapped[0]}
	for _, l := range strings.Split(ansi.Wrap(rest, max(width-ansi.StringWidth(indent), 1), ""), "\n") {
		out = append(out, indent+l)
	}
	return out
}
