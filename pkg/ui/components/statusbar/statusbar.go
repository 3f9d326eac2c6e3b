package statusbar

import (
	"fmt"
	"strings"

	"goon_chat/pkg/ui/styles"

	"github.com/charmbracelet/x/ansi"
)

// StatusBar is the title bar across the top of the chat screen. It shows the
// app name, the active model and what Goon is doing right now.
type StatusBar struct {
	title string
	model string
	state string
	width int
}

// New creates a status bar with the given title.
func New(title string) *StatusBar {
	return &StatusBar{
		title: title,
		width: 80,
	}
}

// SetModel updates the model label. Empty hides it.
func (s *StatusBar) SetModel(model string) {
	s.model = strings.TrimSpace(model)
}

// SetState sets the short state text shown on the right, e.g. "thinking".
func (s *StatusBar) SetState(state string) {
	s.state = strings.TrimSpace(state)
}

// SetWidth updates the width for rendering.
func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

// Content is the unstyled bar text before truncation.
func (s *StatusBar) Content() string {
	parts := []string{s.title}
	if s.model != "" {
		parts = append(parts, fmt.Sprintf("model: %s", s.model))
	}
	if s.state != "" {
		parts = append(parts, s.state)
	}
	return strings.Join(parts, " | ")
}

// Render returns the styled bar, exactly width cells wide.
func (s *StatusBar) Render() string {
	width := max(s.width, 1)

	// Padding(0, 1) takes two cells.
	maxWidth := max(width-2, 1)
	content := s.Content()
	if ansi.StringWidth(content) > maxWidth {
		content = ansi.Truncate(content, maxWidth, "...")
	}
	return styles.StatusBarStyle.Width(width).Render(content)
}
