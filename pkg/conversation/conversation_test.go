package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/documind-cli/client"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

type stubAnswerer struct {
	mu        sync.Mutex
	answers   []string
	err       error
	questions []string
	gate      chan struct{}
}

func (s *stubAnswerer) Ask(ctx context.Context, req *client.AskRequest) (*client.AskResult, error) {
	s.mu.Lock()
	s.questions = append(s.questions, req.Question)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return &client.AskResult{Answer: answer}, nil
}

func TestConversation_AskAppendsTurns(t *testing.T) {
	c := New(&stubAnswerer{answers: []string{"Discussed at (0:45)."}}, nil, nil)

	turn, err := c.Ask(context.Background(), "  when is pricing discussed? ")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, turn.Role)

	turns := c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "when is pricing discussed?", At: turns[0].At}, turns[0])
	assert.Equal(t, "Discussed at (0:45).", turns[1].Text)
	assert.False(t, c.Pending())
}

func TestConversation_EmptyQuestion(t *testing.T) {
	c := New(&stubAnswerer{}, nil, nil)
	_, err := c.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, dmerrors.ErrValidation)
	assert.Empty(t, c.Turns())
}

func TestConversation_FailureAppendsApology(t *testing.T) {
	stub := &stubAnswerer{err: dmerrors.NewCapabilityError(dmerrors.CodeTransport, client.OpAsk, "connection refused", nil)}
	c := New(stub, nil, nil)

	turn, err := c.Ask(context.Background(), "hello?")
	assert.ErrorIs(t, err, dmerrors.ErrTransport)
	assert.Equal(t, ErrorReply, turn.Text)

	turns := c.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, ErrorReply, turns[1].Text)
	assert.False(t, c.Pending(), "a failed question frees the conversation")
}

type nilAnswerer struct{}

func (nilAnswerer) Ask(context.Context, *client.AskRequest) (*client.AskResult, error) {
	return nil, nil
}

func TestConversation_NilResultIsMalformed(t *testing.T) {
	c := New(nilAnswerer{}, nil, nil)

	turn, err := c.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, dmerrors.ErrMalformedResponse)
	assert.Equal(t, ErrorReply, turn.Text)
	assert.False(t, c.Pending())
}

func TestConversation_SecondAskWhilePendingRejected(t *testing.T) {
	stub := &stubAnswerer{answers: []string{"first answer"}, gate: make(chan struct{})}
	c := New(stub, nil, nil)

	call, err := c.Submit("first")
	require.NoError(t, err)
	assert.True(t, c.Pending())

	_, err = c.Submit("second")
	assert.ErrorIs(t, err, dmerrors.ErrBusy)
	_, err = c.Ask(context.Background(), "third")
	assert.ErrorIs(t, err, dmerrors.ErrBusy)

	done := make(chan Turn, 1)
	go func() {
		turn, _ := call(context.Background())
		done <- turn
	}()
	close(stub.gate)
	assert.Equal(t, "first answer", (<-done).Text)

	turns := c.Turns()
	require.Len(t, turns, 2, "rejected questions leave no turns")
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, []string{"first"}, stub.questions)
}

func TestConversation_ResetDropsStaleAnswer(t *testing.T) {
	stub := &stubAnswerer{answers: []string{"late"}, gate: make(chan struct{})}
	c := New(stub, nil, nil)

	call, err := c.Submit("question")
	require.NoError(t, err)

	c.Reset()
	assert.Empty(t, c.Turns())
	assert.Equal(t, uint64(1), c.Epoch())

	close(stub.gate)
	_, err = call(context.Background())
	assert.ErrorIs(t, err, dmerrors.ErrStale)
	assert.Empty(t, c.Turns(), "a stale answer is never appended")
}

func TestConversation_FollowResetsOnNewSession(t *testing.T) {
	c := New(&stubAnswerer{answers: []string{"a"}}, nil, nil)
	holder := session.NewHolder()
	stop := c.Follow(holder)
	defer stop()

	_, err := c.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, c.Turns(), 2)

	holder.Replace(session.New("talk.mp3", "summary", session.Details{}))
	assert.Empty(t, c.Turns())
}

func TestConversation_RenderParsesAssistantOnly(t *testing.T) {
	c := New(&stubAnswerer{answers: []string{"See [1:05] and (12:30)."}}, nil, nil)
	_, err := c.Ask(context.Background(), "what about [0:10]?")
	require.NoError(t, err)

	rendered := c.Render()
	require.Len(t, rendered, 2)

	assert.Equal(t, []timeref.Token{{Kind: timeref.Literal, Text: "what about [0:10]?"}}, rendered[0].Tokens)

	var refs []string
	for _, tok := range rendered[1].Tokens {
		if tok.IsTimeRef() {
			refs = append(refs, tok.Display())
		}
	}
	assert.Equal(t, []string{"1:05", "12:30"}, refs)

	controls := c.Controls()
	require.Len(t, controls, 2)
	assert.Equal(t, 65, controls[0].Seconds())
	assert.Equal(t, 750, controls[1].Seconds())
	assert.Equal(t, 1, controls[0].Turn)
}

func TestConversation_ActivatePublishesSeek(t *testing.T) {
	ch := seek.NewChannel()
	var got []seek.Command
	ch.Subscribe(func(cmd seek.Command) { got = append(got, cmd) })

	c := New(&stubAnswerer{answers: []string{"Discussed at (0:45)."}}, ch, nil)
	_, err := c.Ask(context.Background(), "when?")
	require.NoError(t, err)

	controls := c.Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, "0:45", controls[0].Token.Display())

	cmd, ok := c.Activate(controls[0])
	require.True(t, ok)
	_, ok = c.Activate(controls[0])
	require.True(t, ok)

	require.Len(t, got, 2, "activating the same control twice seeks twice")
	assert.Equal(t, 45.0, got[0].TargetSeconds)
	assert.Equal(t, cmd, got[0])
	assert.NotEqual(t, got[0].Nonce, got[1].Nonce)
}

func TestConversation_ActivateWithoutChannel(t *testing.T) {
	c := New(&stubAnswerer{}, nil, nil)
	_, ok := c.Activate(Control{Token: timeref.Token{Kind: timeref.TimeRef, Minutes: 1}})
	assert.False(t, ok)
}

func TestConversation_OnChange(t *testing.T) {
	c := New(&stubAnswerer{answers: []string{"a"}}, nil, nil)
	changes := 0
	c.OnChange(func() { changes++ })

	_, err := c.Ask(context.Background(), "q")
	require.NoError(t, err)
	c.Reset()
	assert.Equal(t, 3, changes)
}
