// Package testutils builds key presses for driving chat models in tests.
package testutils

import (
	tea "charm.land/bubbletea/v2"
)

// NewKeyPressMsg creates a KeyPressMsg for a special key code.
func NewKeyPressMsg(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg(tea.Key{Code: code})
}

// NewTextKeyPressMsg creates a KeyPressMsg that types text.
func NewTextKeyPressMsg(text string) tea.KeyPressMsg {
	if text == "" {
		return tea.KeyPressMsg(tea.Key{})
	}
	return tea.KeyPressMsg(tea.Key{
		Code: []rune(text)[0],
		Text: text,
	})
}

// NewCtrlKeyPressMsg creates a Ctrl+char KeyPressMsg.
func NewCtrlKeyPressMsg(char rune) tea.KeyPressMsg {
	return tea.KeyPressMsg(tea.Key{
		Code: char,
		Mod:  tea.ModCtrl,
	})
}

// TypeText returns one key press per rune of text, as if typed.
func TypeText(text string) []tea.KeyPressMsg {
	msgs := make([]tea.KeyPressMsg, 0, len(text))
	for _, r := range text {
		msgs = append(msgs, NewTextKeyPressMsg(string(r)))
	}
	return msgs
}

var (
	TestKeyEnter  = NewKeyPressMsg(tea.KeyEnter)
	TestKeyEsc    = NewKeyPressMsg(tea.KeyEscape)
	TestKeyUp     = NewKeyPressMsg(tea.KeyUp)
	TestKeyPgUp   = NewKeyPressMsg(tea.KeyPgUp)
	TestKeyPgDown = NewKeyPressMsg(tea.KeyPgDown)

	// Chat shortcuts.
	TestKeyCtrlC = NewCtrlKeyPressMsg('c')
	TestKeyClear = NewCtrlKeyPressMsg('l')
	TestKeyVoice = NewCtrlKeyPressMsg('v')
	TestKeyCopy  = NewCtrlKeyPressMsg('y')
)
