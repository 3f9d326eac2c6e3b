// Package styles provides the shared palette and styles of the goon chat UI.
package styles

import (
	"charm.land/lipgloss/v2"
)

// Color palette - ANSI 256 colors used throughout the application
var (
	// Primary accent color (purple)
	ColorAccent = lipgloss.Color("141")

	// Text colors
	ColorText       = lipgloss.Color("252") // Primary text
	ColorTextMuted  = lipgloss.Color("245") // Secondary/muted text
	ColorTextBright = lipgloss.Color("15")  // Bright/highlighted text

	// Semantic colors
	ColorError   = lipgloss.Color("196")
	ColorWarning = lipgloss.Color("214")
	ColorSuccess = lipgloss.Color("42")

	// Speaker colors
	ColorUser      = lipgloss.Color("81")
	ColorAssistant = lipgloss.Color("219")

	// Code colors
	ColorCode        = lipgloss.Color("213")
	ColorCodeBg      = lipgloss.Color("235")
	ColorPlaceholder = lipgloss.Color("240")

	ColorBorder      = lipgloss.Color("141") // matches accent
	ColorBorderMuted = lipgloss.Color("62")
)

// Panel styles
var (
	// TranscriptBoxStyle frames the conversation.
	TranscriptBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorBorder)

	// ComposerStyle frames the input line.
	ComposerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorderMuted).
			Padding(0, 1)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	TextMutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)

	TextBoldStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	CodeStyle = lipgloss.NewStyle().
			Foreground(ColorCode).
			Background(ColorCodeBg)
)

// Conversation styles
var (
	// UserLabelStyle renders the "You" header above user turns.
	UserLabelStyle = lipgloss.NewStyle().
			Foreground(ColorUser).
			Bold(true)

	// AssistantLabelStyle renders the "Goon" header above replies.
	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(ColorAssistant).
				Bold(true)

	// TimestampStyle dims the time shown next to a speaker label.
	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorPlaceholder)

	// CursorStyle marks the reply that is still streaming.
	CursorStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)
)

// Feedback styles
var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// ThinkingStyle renders the "Goon is thinking..." indicator.
	ThinkingStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Italic(true)

	ListeningStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)
)

// Quick action and suggestion styles
var (
	ActionKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true)

	ActionTitleStyle = lipgloss.NewStyle().
				Foreground(ColorText)

	SuggestionStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	// StatusBarStyle is the title bar across the top of the screen.
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)
)
