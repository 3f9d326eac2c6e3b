package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"goon_chat/pkg/chat"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func msg(role chat.Role, content string) chat.Message {
	return chat.Message{ID: content, Role: role, Content: content, Timestamp: testTime}
}

func plainView(tr *Transcript) string {
	return ansi.Strip(tr.View())
}

func TestTranscript_RendersSpeakersAndContent(t *testing.T) {
	tr := New()
	tr.SetSize(60, 12)
	tr.SetMessages([]chat.Message{
		msg(chat.RoleAssistant, "Welcome to Goon Chat!"),
		msg(chat.RoleUser, "Hi there"),
	}, false)

	view := plainView(tr)
	for _, want := range []string{"Goon 09:30", "Welcome to Goon Chat!", "You 09:30", "Hi there"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q, got:\n%s", want, view)
		}
	}
	if strings.Contains(view, streamCursor) {
		t.Error("did not expect a streaming cursor")
	}
}

func TestTranscript_StreamingCursorOnLastReply(t *testing.T) {
	tr := New()
	tr.SetSize(40, 10)
	tr.SetMessages([]chat.Message{
		msg(chat.RoleUser, "Hello"),
		msg(chat.RoleAssistant, "Hel"),
	}, true)

	if !strings.Contains(plainView(tr), "Hel"+streamCursor) {
		t.Errorf("expected cursor after partial reply, got:\n%s", plainView(tr))
	}
}

func TestTranscript_TokenLimitNote(t *testing.T) {
	reply := msg(chat.RoleAssistant, "Here are some clubs")
	reply.Metadata = json.RawMessage(`{"finish_reason":"length"}`)

	tr := New()
	tr.SetSize(60, 10)
	tr.SetMessages([]chat.Message{reply}, false)

	if !strings.Contains(plainView(tr), truncateNote) {
		t.Errorf("expected token limit note, got:\n%s", plainView(tr))
	}
}

func TestTranscript_LinesFitWidth(t *testing.T) {
	tr := New()
	tr.SetSize(24, 30)
	tr.SetMessages([]chat.Message{
		msg(chat.RoleAssistant, "A fairly long reply that certainly needs to wrap across several lines of the box"),
		msg(chat.RoleAssistant, "- a bullet item long enough to wrap onto a second line"),
		msg(chat.RoleAssistant, "```\nfunc main() { fmt.Println(\"hello, world\") }\n```"),
	}, false)

	width := tr.contentWidth()
	for i, line := range tr.lines {
		if w := runewidth.StringWidth(ansi.Strip(line)); w > width {
			t.Errorf("line %d is %d cells wide, limit %d: %q", i, w, width, ansi.Strip(line))
		}
	}
}

func TestTranscript_FollowAndScroll(t *testing.T) {
	var msgs []chat.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, msg(chat.RoleUser, fmt.Sprintf("line %02d", i)))
	}

	tr := New()
	tr.SetSize(40, 8)
	tr.SetMessages(msgs, false)

	if !strings.Contains(plainView(tr), "line 19") {
		t.Fatalf("expected newest message visible while following")
	}

	if !tr.HandleKey("home") {
		t.Fatal("expected home to be handled")
	}
	if tr.Following() {
		t.Error("expected follow to stop after scrolling up")
	}
	if !strings.Contains(plainView(tr), "line 00") {
		t.Errorf("expected oldest message after home, got:\n%s", plainView(tr))
	}

	// New output does not yank the view back while scrolled up.
	tr.SetMessages(append(msgs, msg(chat.RoleUser, "line 20")), false)
	if strings.Contains(plainView(tr), "line 20") {
		t.Error("did not expect newest message while scrolled up")
	}

	tr.HandleKey("end")
	if !tr.Following() {
		t.Error("expected follow after end")
	}
	if tr.HandleKey("x") {
		t.Error("did not expect x to be handled")
	}
}

func TestTranscript_CopyLastReply(t *testing.T) {
	var buf bytes.Buffer
	prev := clipboardOut
	clipboardOut = &buf
	t.Cleanup(func() { clipboardOut = prev })

	tr := New()
	if tr.CopyLastReply() != nil {
		t.Fatal("expected no command without a reply")
	}

	tr.SetMessages([]chat.Message{
		msg(chat.RoleAssistant, "First reply"),
		msg(chat.RoleUser, "More please"),
		msg(chat.RoleAssistant, "Second reply"),
	}, false)

	cmd := tr.CopyLastReply()
	if cmd == nil {
		t.Fatal("expected copy command")
	}
	cmd()

	// OSC52 carries the payload base64-encoded.
	if !strings.Contains(buf.String(), "U2Vjb25kIHJlcGx5") {
		t.Errorf("expected encoded second reply, got %q", buf.String())
	}
}

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "bold", content: "You are **doing great**", want: []string{"You are doing great"}},
		{name: "unmatched bold", content: "a ** b", want: []string{"a ** b"}},
		{name: "heading", content: "## Plan", want: []string{"Plan"}},
		{name: "bullet", content: "- walk", want: []string{"• walk"}},
		{name: "control chars", content: "ok\x07go", want: []string{"okgo"}},
		{
			name:    "table",
			content: "| Day | Goal |\n| --- | --- |\n| Mon | Run |",
			want:    []string{"| Day | Goal |", "| --- | ---- |", "| Mon | Run  |"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := renderMarkdown(tt.content, 40)
			if len(lines) != len(tt.want) {
				t.Fatalf("expected %d lines, got %d: %q", len(tt.want), len(lines), lines)
			}
			for i := range lines {
				if got := strings.TrimRight(ansi.Strip(lines[i]), " "); got != tt.want[i] {
					t.Errorf("line %d: expected %q, got %q", i, tt.want[i], got)
				}
			}
		})
	}
}
