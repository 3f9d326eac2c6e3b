package statusbar

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestStatusBar_Content(t *testing.T) {
	tests := []struct {
		name  string
		model string
		state string
		want  string
	}{
		{name: "title only", want: "Goon Chat"},
		{name: "with model", model: "gpt-4o-mini", want: "Goon Chat | model: gpt-4o-mini"},
		{name: "with state", model: " gpt-4o-mini ", state: "thinking", want: "Goon Chat | model: gpt-4o-mini | thinking"},
		{name: "state without model", state: "listening", want: "Goon Chat | listening"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := New("Goon Chat")
			sb.SetModel(tt.model)
			sb.SetState(tt.state)
			if got := sb.Content(); got != tt.want {
				t.Errorf("Content() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusBar_RenderFillsWidth(t *testing.T) {
	sb := New("Goon Chat")
	sb.SetModel("model-1")
	sb.SetWidth(60)

	rendered := sb.Render()
	if got := ansi.StringWidth(rendered); got != 60 {
		t.Errorf("Expected width 60, got %d", got)
	}
	if !strings.Contains(ansi.Strip(rendered), "model: model-1") {
		t.Errorf("Expected model label in %q", ansi.Strip(rendered))
	}
}

func TestStatusBar_RenderTruncates(t *testing.T) {
	sb := New("Goon Chat")
	sb.SetModel("anthropic/claude-a-very-long-model-name-that-does-not-fit")
	sb.SetState("thinking")
	sb.SetWidth(30)

	rendered := sb.Render()
	if got := ansi.StringWidth(rendered); got != 30 {
		t.Errorf("Expected width 30, got %d", got)
	}
	if !strings.Contains(ansi.Strip(rendered), "...") {
		t.Errorf("Expected ellipsis in %q", ansi.Strip(rendered))
	}
}
