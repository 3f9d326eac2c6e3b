package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/chat"
	"goon_chat/pkg/ui/components/utils"
	"goon_chat/pkg/ui/styles"

	tea "charm.land/bubbletea/v2"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

const (
	borderSize   = 1
	paddingH     = 1
	pageSize     = 10
	streamCursor = "▍"
	truncateNote = "(reply stopped at the token limit)"
)

// clipboardOut receives OSC52 sequences; tests swap it for a buffer.
var clipboardOut io.Writer = os.Stdout

// Transcript renders the conversation inside a bordered, scrollable box.
// It follows the newest line until the user scrolls up.
type Transcript struct {
	width   int
	height  int
	scrollY int
	follow  bool

	messages  []chat.Message
	streaming bool
	lines     []string
}

// New creates an empty transcript that follows new output.
func New() *Transcript {
	return &Transcript{follow: true}
}

// SetSize sets the outer size of the box, border included.
func (t *Transcript) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.reflow()
}

// SetMessages replaces the rendered conversation. streaming marks the last
// assistant message as still receiving chunks.
func (t *Transcript) SetMessages(msgs []chat.Message, streaming bool) {
	t.messages = msgs
	t.streaming = streaming
	t.reflow()
}

// Following reports whether the view is pinned to the newest line.
func (t *Transcript) Following() bool {
	return t.follow
}

// HandleKey scrolls for navigation keys and reports whether key was used.
func (t *Transcript) HandleKey(key string) bool {
	maxScroll := t.maxScroll()

	switch key {
	case "up":
		if t.scrollY > 0 {
			t.scrollY--
		}
	case "down":
		if t.scrollY < maxScroll {
			t.scrollY++
		}
	case "pgup":
		t.scrollY = max(t.scrollY-pageSize, 0)
	case "pgdown":
		t.scrollY = min(t.scrollY+pageSize, maxScroll)
	case "home":
		t.scrollY = 0
	case "end":
		t.scrollY = maxScroll
	default:
		return false
	}
	t.follow = t.scrollY >= maxScroll
	return true
}

// LastReply returns the content of the newest non-empty assistant message.
func (t *Transcript) LastReply() (string, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		msg := t.messages[i]
		if msg.Role == chat.RoleAssistant && strings.TrimSpace(msg.Content) != "" {
			return msg.Content, true
		}
	}
	return "", false
}

// CopyLastReply copies the newest assistant reply to the terminal clipboard.
func (t *Transcript) CopyLastReply() tea.Cmd {
	text, ok := t.LastReply()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		_, _ = fmt.Fprint(clipboardOut, osc52.New(text))
		return nil
	}
}

// View renders the visible window of the transcript.
func (t *Transcript) View() string {
	contentWidth := t.contentWidth()
	contentHeight := t.contentHeight()

	lines := make([]string, 0, contentHeight)
	end := min(t.scrollY+contentHeight, len(t.lines))
	for i := t.scrollY; i < end; i++ {
		lines = append(lines, utils.PadStyled(t.lines[i], contentWidth))
	}
	for len(lines) < contentHeight {
		lines = append(lines, strings.Repeat(" ", contentWidth))
	}

	return styles.TranscriptBoxStyle.
		Width(max(t.width, 1)).
		Padding(0, paddingH).
		Render(strings.Join(lines, "\n"))
}

func (t *Transcript) reflow() {
	width := t.contentWidth()
	t.lines = nil
	for i, msg := range t.messages {
		if i > 0 {
			t.lines = append(t.lines, "")
		}
		last := i == len(t.messages)-1
		t.lines = append(t.lines, renderMessage(msg, width, last && t.streaming)...)
	}

	maxScroll := t.maxScroll()
	if t.follow || t.scrollY > maxScroll {
		t.scrollY = maxScroll
	}
}

func renderMessage(msg chat.Message, width int, streaming bool) []string {
	var label string
	switch msg.Role {
	case chat.RoleUser:
		label = styles.UserLabelStyle.Render("You")
	case chat.RoleAssistant:
		label = styles.AssistantLabelStyle.Render("Goon")
	default:
		label = styles.TextMutedStyle.Render(string(msg.Role))
	}
	header := label
	if !msg.Timestamp.IsZero() {
		header += " " + styles.TimestampStyle.Render(msg.Timestamp.Format("15:04"))
	}

	lines := []string{header}
	body := renderMarkdown(msg.Content, width)
	if streaming && msg.Role == chat.RoleAssistant {
		lastLine := body[len(body)-1]
		if runewidth.StringWidth(ansi.Strip(lastLine))+1 > width {
			body = append(body, styles.CursorStyle.Render(streamCursor))
		} else {
			body[len(body)-1] = lastLine + styles.CursorStyle.Render(streamCursor)
		}
	}
	lines = append(lines, body...)
	if truncated(msg) {
		lines = append(lines, styles.TextMutedStyle.Render(utils.TruncateToWidth(truncateNote, width)))
	}
	return lines
}

func truncated(msg chat.Message) bool {
	if len(msg.Metadata) == 0 {
		return false
	}
	var meta struct {
		FinishReason string `json:"finish_reason"`
	}
	if err := json.Unmarshal(msg.Metadata, &meta); err != nil {
		return false
	}
	return meta.FinishReason == ai.FinishReasonLength
}

func (t *Transcript) contentWidth() int {
	return max(t.width-2*(borderSize+paddingH), 1)
}

func (t *Transcript) contentHeight() int {
	return max(t.height-2*borderSize, 1)
}

func (t *Transcript) maxScroll() int {
	return max(len(t.lines)-t.contentHeight(), 0)
}
