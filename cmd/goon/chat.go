package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/chat"
	"goon_chat/pkg/config"
	"goon_chat/pkg/speech"
	"goon_chat/pkg/transport"
	"goon_chat/pkg/ui"

	"github.com/gookit/color"
	"golang.org/x/term"
)

var (
	youPrompt   = color.New(color.FgCyan, color.OpBold)
	goonPrefix  = color.New(color.FgMagenta, color.OpBold)
	noticeStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed, color.OpBold)
)

const lineHelp = "Commands: /1../6 quick action, /voice, /clear, /quit"

func runChat(ctx context.Context, cfg config.Config, opts options, stdout io.Writer) error {
	ctrl, err := newController(cfg, opts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		return ui.Run(ctx, ctrl, ui.WithModelName(transport.SettingsFromConfig(cfg).Model))
	}
	return runLineMode(ctx, ctrl, os.Stdin, stdout)
}

// runLineMode is the plain-text chat used when stdin or stdout is not a
// terminal. Replies are printed as they stream.
func runLineMode(ctx context.Context, ctrl *chat.Controller, in io.Reader, out io.Writer) error {
	changes := make(chan struct{}, 1)
	unsubscribe := ctrl.Store().Subscribe(func(chat.Change) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	msgs := ctrl.Store().Messages()
	fmt.Fprintln(out, goonPrefix.Render("goon> ")+msgs[len(msgs)-1].Content)
	fmt.Fprintln(out, noticeStyle.Render(lineHelp))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, youPrompt.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var ex *chat.Exchange
		var err error
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/clear":
			if err := ctrl.Clear(); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				continue
			}
			fmt.Fprintln(out, noticeStyle.Render("Conversation cleared."))
			continue
		case line == "/voice":
			ex, err = ctrl.SendVoice(ctx)
			if err != nil {
				fmt.Fprintln(out, noticeStyle.Render(speech.Describe(err)))
				continue
			}
			fmt.Fprintln(out, youPrompt.Render("you (voice)> ")+ex.UserMessage().Content)
		case strings.HasPrefix(line, "/"):
			ex, err = quickActionByNumber(ctrl, strings.TrimPrefix(line, "/"))
		default:
			ex, err = ctrl.SendText(line)
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}
		if ex == nil {
			fmt.Fprintln(out, noticeStyle.Render(lineHelp))
			continue
		}

		if err := printReply(ctx, ctrl, ex, changes, out); err != nil {
			return err
		}
	}
}

func quickActionByNumber(ctrl *chat.Controller, arg string) (*chat.Exchange, error) {
	actions := chat.QuickActions()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(actions) {
		return nil, nil
	}
	return chat.NewDispatcher(ctrl).Trigger(actions[n-1].ID)
}

// printReply streams the reply of ex to out until the exchange ends.
func printReply(ctx context.Context, ctrl *chat.Controller, ex *chat.Exchange, changes <-chan struct{}, out io.Writer) error {
	fmt.Fprint(out, goonPrefix.Render("goon> "))
	printed := 0
	flush := func() {
		content := replyContent(ctrl, ex)
		if len(content) > printed {
			fmt.Fprint(out, content[printed:])
			printed = len(content)
		}
	}

	for {
		select {
		case <-changes:
			flush()
		case <-ex.Done():
			flush()
			fmt.Fprintln(out)
			if ex.Outcome() == chat.OutcomeFailed {
				fmt.Fprintln(out, errorStyle.Render("Goon couldn't finish that reply: "+ex.Err().Error()))
			}
			if ex.FinishReason() == ai.FinishReasonLength {
				fmt.Fprintln(out, noticeStyle.Render("(reply stopped at the token limit)"))
			}
			return nil
		case <-ctx.Done():
			fmt.Fprintln(out)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

func replyContent(ctrl *chat.Controller, ex *chat.Exchange) string {
	id := ex.AssistantMessageID()
	if id == "" {
		return ""
	}
	msgs := ctrl.Store().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i].Content
		}
	}
	return ""
}
