package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/speech"
	"goon_chat/pkg/transport"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type fakeStream struct {
	ctx context.Context
	ch  chan transport.Event
}

// send hands ev to the controller.
func (s *fakeStream) send(t *testing.T, ev transport.Event) {
	t.Helper()
	select {
	case s.ch <- ev:
	case <-time.After(waitTimeout):
		t.Fatalf("controller did not receive %+v", ev)
	}
}

// deltas sends each fragment and then an empty event, which the controller
// skips, so that every fragment has been applied when deltas returns.
func (s *fakeStream) deltas(t *testing.T, deltas ...string) {
	t.Helper()
	for _, d := range deltas {
		s.send(t, transport.Event{Delta: d})
	}
	s.send(t, transport.Event{})
}

type fakeClient struct {
	mu        sync.Mutex
	histories [][]transport.Message
	streams   chan *fakeStream
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: make(chan *fakeStream, 4)}
}

func (f *fakeClient) Stream(ctx context.Context, history []transport.Message) (<-chan transport.Event, error) {
	f.mu.Lock()
	f.histories = append(f.histories, history)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeStream{ctx: ctx, ch: make(chan transport.Event)}
	f.streams <- s
	return s.ch, nil
}

func (f *fakeClient) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.streams:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no stream was opened")
		return nil
	}
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

func wait(t *testing.T, ex *Exchange) {
	t.Helper()
	select {
	case <-ex.Done():
	case <-time.After(waitTimeout):
		t.Fatal("exchange did not finish")
	}
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestController_EndToEndExchange(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	// When the user says hello
	ex, err := ctrl.SendText("hello")
	req.NoError(err)

	// Then the user message is appended and the lock is held
	req.True(ctrl.InFlight())
	req.Equal(StateSending, ctrl.State())
	req.Equal([]string{"assistant:" + WelcomeText, "user:hello"}, contents(ctrl.Store().Messages()))

	// And the chunks grow exactly one assistant message
	stream := client.next(t)
	stream.deltas(t, "He", "llo", "!")
	stream.send(t, transport.Event{Done: true, FinishReason: ai.FinishReasonStop})
	wait(t, ex)

	msgs := ctrl.Store().Messages()
	req.Len(msgs, 3)
	req.Equal(RoleAssistant, msgs[2].Role)
	req.Equal("Hello!", msgs[2].Content)
	req.Equal(msgs[2].ID, ex.AssistantMessageID())
	req.False(ctrl.InFlight())
	req.Equal(OutcomeCompleted, ex.Outcome())
	req.NoError(ex.Err())
	req.NoError(ctrl.Err())

	// And the upstream history carried role and content only
	req.Equal([]transport.Message{
		{Role: "assistant", Content: WelcomeText},
		{Role: "user", Content: "hello"},
	}, client.histories[0])
}

func TestController_StreamingStateAfterFirstChunk(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	ex, err := ctrl.SendText("hi")
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "", "Hey", " you")

	req.Equal(StateStreaming, ctrl.State())
	req.Equal("Hey you", ctrl.Store().Messages()[2].Content)
	req.True(ctrl.Store().Streaming())

	stream.send(t, transport.Event{Done: true})
	wait(t, ex)
	req.Equal("Hey you", ctrl.Store().Messages()[2].Content)
}

func TestController_RejectsInvalidSends(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	_, err := ctrl.SendText("   \n\t")
	req.ErrorIs(err, ErrEmptyInput)
	req.Equal(1, ctrl.Store().Len())
	req.Zero(client.calls())

	ex, err := ctrl.SendText("  first  ")
	req.NoError(err)
	req.Equal("first", ex.UserMessage().Content)
	stream := client.next(t)

	// A second send while in flight appends nothing and issues no request
	_, err = ctrl.SendText("second")
	req.ErrorIs(err, ErrExchangeInFlight)
	_, err = ctrl.TriggerQuickAction("Help me plan a trip with my friends")
	req.ErrorIs(err, ErrExchangeInFlight)
	req.Equal(2, ctrl.Store().Len())
	req.Equal(1, client.calls())

	stream.send(t, transport.Event{Done: true})
	wait(t, ex)
}

func TestController_PartialContentSurvivesFailure(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()
	boom := errors.New("connection reset")

	ex, err := ctrl.SendText("hello")
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "Hi", " there")
	stream.send(t, transport.Event{Err: boom, Done: true})
	wait(t, ex)

	msgs := ctrl.Store().Messages()
	req.Len(msgs, 3)
	req.Equal("Hi there", msgs[2].Content)
	req.False(ctrl.InFlight())
	req.Equal(OutcomeFailed, ex.Outcome())
	req.ErrorIs(ex.Err(), boom)
	req.ErrorIs(ctrl.Err(), boom)
	req.False(ctrl.Store().Streaming())

	// The user may retry right away and the notice is cleared
	ex, err = ctrl.SendText("again")
	req.NoError(err)
	req.NoError(ctrl.Err())
	client.next(t).send(t, transport.Event{Done: true})
	wait(t, ex)
}

func TestController_FailureBeforeAnyChunk(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	client.err = errors.New("dial tcp: connection refused")
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	ex, err := ctrl.SendText("hello")
	req.NoError(err)
	wait(t, ex)

	req.Equal([]string{"assistant:" + WelcomeText, "user:hello"}, contents(ctrl.Store().Messages()))
	req.Empty(ex.AssistantMessageID())
	req.Equal(OutcomeFailed, ex.Outcome())
	req.False(ctrl.InFlight())
	req.Error(ctrl.Err())
}

func TestController_TokenCapKeepsReply(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	ex, err := ctrl.SendText("tell me everything")
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "Start small")
	stream.send(t, transport.Event{Done: true, FinishReason: ai.FinishReasonLength})
	wait(t, ex)

	reply := ctrl.Store().Messages()[2]
	req.Equal("Start small", reply.Content)
	req.JSONEq(`{"finish_reason":"length"}`, string(reply.Metadata))
	req.Equal(OutcomeCompleted, ex.Outcome())
	req.Equal(ai.FinishReasonLength, ex.FinishReason())
}

func TestController_ClearIsBlockedMidStream(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)
	defer ctrl.Close()

	ex, err := ctrl.SendText("hello")
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "Hel")
	before := ctrl.Store().Messages()

	req.ErrorIs(ctrl.Clear(), ErrExchangeInFlight)
	req.Equal(before, ctrl.Store().Messages())

	stream.send(t, transport.Event{Done: true})
	wait(t, ex)

	// Clearing while idle always yields exactly the welcome message
	for i := 0; i < 2; i++ {
		req.NoError(ctrl.Clear())
		msgs := ctrl.Store().Messages()
		req.Len(msgs, 1)
		req.Equal(RoleAssistant, msgs[0].Role)
		req.Equal(WelcomeText, msgs[0].Content)
	}
}

type recordedChange struct {
	Kind    ChangeKind
	ID      string
	Role    Role
	Content string
}

func recordChanges(store *Store) *[]recordedChange {
	var mu sync.Mutex
	changes := &[]recordedChange{}
	store.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		*changes = append(*changes, recordedChange{c.Kind, c.Message.ID, c.Message.Role, c.Message.Content})
	})
	return changes
}

func runScripted(t *testing.T, send func(*Controller) (*Exchange, error)) []recordedChange {
	t.Helper()
	store := NewStore(WithIDGenerator(sequentialIDs()), WithClock(fixedClock()))
	changes := recordChanges(store)
	client := newFakeClient()
	ctrl := NewController(store, client)
	defer ctrl.Close()

	ex, err := send(ctrl)
	require.NoError(t, err)
	stream := client.next(t)
	stream.deltas(t, "Sure", ", let's", " go")
	stream.send(t, transport.Event{Done: true})
	wait(t, ex)
	return *changes
}

func TestController_QuickActionMatchesSendText(t *testing.T) {
	req := require.New(t)
	action, ok := LookupQuickAction(ActionCheckin)
	req.True(ok)

	viaText := runScripted(t, func(c *Controller) (*Exchange, error) {
		return c.SendText(action.Query)
	})
	viaAction := runScripted(t, func(c *Controller) (*Exchange, error) {
		return NewDispatcher(c).Trigger(ActionCheckin)
	})

	req.Equal(viaText, viaAction)
	req.Len(viaText, 4)
}

type scriptedRecognizer struct {
	script func(cb speech.Callbacks)
	mu     sync.Mutex
	cb     speech.Callbacks
}

func (r *scriptedRecognizer) SetCallbacks(cb speech.Callbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

func (r *scriptedRecognizer) Start() error {
	r.mu.Lock()
	cb := r.cb
	r.mu.Unlock()
	go r.script(cb)
	return nil
}

func (r *scriptedRecognizer) Stop() {}

func TestController_VoiceRoundTrip(t *testing.T) {
	req := require.New(t)
	const transcript = "Find local groups near me"

	viaText := runScripted(t, func(c *Controller) (*Exchange, error) {
		return c.SendText(transcript)
	})

	store := NewStore(WithIDGenerator(sequentialIDs()), WithClock(fixedClock()))
	changes := recordChanges(store)
	client := newFakeClient()
	rec := &scriptedRecognizer{script: func(cb speech.Callbacks) {
		cb.OnStart()
		cb.OnResult(transcript)
		cb.OnEnd()
	}}
	ctrl := NewController(store, client, WithSpeech(speech.NewAdapter(rec)))
	defer ctrl.Close()

	req.True(ctrl.SpeechSupported())
	ex, err := ctrl.SendVoice(context.Background())
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "Sure", ", let's", " go")
	stream.send(t, transport.Event{Done: true})
	wait(t, ex)

	req.Equal(viaText, *changes)
}

func TestController_VoiceFailureLeavesStoreUntouched(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	rec := &scriptedRecognizer{script: func(cb speech.Callbacks) {
		cb.OnError(speech.ReasonNotAllowed)
		cb.OnEnd()
	}}
	ctrl := NewController(NewStore(), client, WithSpeech(speech.NewAdapter(rec)))
	defer ctrl.Close()

	ex, err := ctrl.SendVoice(context.Background())

	req.Nil(ex)
	var recErr *speech.RecognitionError
	req.True(errors.As(err, &recErr))
	req.Equal(speech.ReasonNotAllowed, recErr.Reason)
	req.Equal(1, ctrl.Store().Len())
	req.Zero(client.calls())
	req.ErrorAs(ctrl.Err(), &recErr)
	req.False(ctrl.Listening())
}

func TestController_VoiceUnsupported(t *testing.T) {
	req := require.New(t)
	ctrl := NewController(NewStore(), newFakeClient())
	defer ctrl.Close()

	_, err := ctrl.SendVoice(context.Background())

	req.ErrorIs(err, speech.ErrNotSupported)
	req.False(ctrl.SpeechSupported())
	req.Equal(1, ctrl.Store().Len())
}

func TestController_CloseDiscardsLateChunks(t *testing.T) {
	req := require.New(t)
	client := newFakeClient()
	ctrl := NewController(NewStore(), client)

	ex, err := ctrl.SendText("hello")
	req.NoError(err)
	stream := client.next(t)
	stream.deltas(t, "Hi")
	before := ctrl.Store().Messages()

	// When the view goes away mid-stream
	ctrl.Close()
	ctrl.Close()

	// Then the transport context is cancelled and the exchange is cancelled silently
	wait(t, ex)
	req.Equal(OutcomeCancelled, ex.Outcome())
	req.NoError(ex.Err())
	select {
	case <-stream.ctx.Done():
	case <-time.After(waitTimeout):
		t.Fatal("transport context was not cancelled")
	}

	// And late chunks do not reach the store
	select {
	case stream.ch <- transport.Event{Delta: " there"}:
	case <-time.After(50 * time.Millisecond):
	}
	req.Equal(before, ctrl.Store().Messages())
	req.False(ctrl.InFlight())

	_, err = ctrl.SendText("again")
	req.ErrorIs(err, ErrClosed)
	req.ErrorIs(ctrl.Clear(), ErrClosed)
}

type hangingClient struct{}

func (hangingClient) Stream(ctx context.Context, history []transport.Message) (<-chan transport.Event, error) {
	ch := make(chan transport.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestController_ExchangeTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := NewController(NewStore(), hangingClient{}, WithExchangeTimeout(20*time.Millisecond))
	defer ctrl.Close()

	ex, err := ctrl.SendText("hello")
	req.NoError(err)

	err = ex.Wait(context.Background())

	req.ErrorIs(err, context.DeadlineExceeded)
	req.Equal(OutcomeFailed, ex.Outcome())
	req.False(ctrl.InFlight())
}
