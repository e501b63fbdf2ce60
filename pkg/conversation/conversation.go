// Package conversation owns the dialogue with the assistant about the current
// session.
//
// Turns are append-only. At most one question is outstanding; a second Ask
// while one is pending fails with ErrBusy. A failed question is answered with
// a fixed apology so the history never has a gap. Assistant turns are parsed
// for time references when they are rendered, and activating a reference
// publishes a seek command.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otherjamesbrown/documind-cli/client"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/timeref"
)

// ErrorReply is the assistant turn appended when a question fails.
const ErrorReply = "Sorry, I encountered an error. Is the backend running?"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the dialogue.
type Turn struct {
	Role Role      `json:"role" yaml:"role"`
	Text string    `json:"text" yaml:"text"`
	At   time.Time `json:"at" yaml:"at"`
}

// RenderedTurn is a turn split into tokens for display.
type RenderedTurn struct {
	Role   Role            `json:"role" yaml:"role"`
	Tokens []timeref.Token `json:"tokens" yaml:"tokens"`
}

// Control is an activatable time reference inside a rendered turn.
type Control struct {
	Turn  int           `json:"turn" yaml:"turn"`
	Index int           `json:"index" yaml:"index"`
	Token timeref.Token `json:"token" yaml:"token"`
}

// Seconds returns the seek target of the control.
func (c Control) Seconds() int {
	return c.Token.TotalSeconds()
}

// Conversation holds the turns for one session.
type Conversation struct {
	answerer client.Answerer
	seeks    seek.Publisher
	logger   logging.Logger
	now      func() time.Time

	mu        sync.Mutex
	turns     []Turn
	pending   bool
	epoch     uint64
	listeners []func()
}

// New returns an empty conversation. seeks may be nil, in which case
// activating a control does nothing.
func New(answerer client.Answerer, seeks seek.Publisher, logger logging.Logger) *Conversation {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Conversation{
		answerer: answerer,
		seeks:    seeks,
		logger:   logger.With(logging.F("component", "conversation")),
		now:      time.Now,
	}
}

// OnChange registers fn to run after turns change.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Conversation) changed() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Submit appends the user turn and returns the call that fetches the answer.
// The caller runs the call, usually off the UI goroutine. Submit fails with
// ErrBusy while another question is pending.
func (c *Conversation) Submit(question string) (func(ctx context.Context) (Turn, error), error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", dmerrors.ErrValidation)
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: a question is already pending", dmerrors.ErrBusy)
	}
	c.pending = true
	c.turns = append(c.turns, Turn{Role: RoleUser, Text: question, At: c.now()})
	epoch := c.epoch
	c.mu.Unlock()
	c.changed()

	return func(ctx context.Context) (Turn, error) {
		return c.answer(ctx, epoch, question)
	}, nil
}

// Ask submits question and waits for the answer.
func (c *Conversation) Ask(ctx context.Context, question string) (Turn, error) {
	call, err := c.Submit(question)
	if err != nil {
		return Turn{}, err
	}
	return call(ctx)
}

func (c *Conversation) answer(ctx context.Context, epoch uint64, question string) (Turn, error) {
	log := c.logger.WithContext(ctx)
	res, err := c.answerer.Ask(ctx, &client.AskRequest{Question: question})
	if err == nil && res == nil {
		err = dmerrors.NewCapabilityError(dmerrors.CodeMalformed, client.OpAsk, "empty answer result", nil)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debug("dropping stale answer", logging.F("epoch", epoch))
		return Turn{}, fmt.Errorf("%w: conversation was reset", dmerrors.ErrStale)
	}
	c.pending = false

	turn := Turn{Role: RoleAssistant, At: c.now()}
	if err != nil {
		turn.Text = ErrorReply
	} else {
		turn.Text = res.Answer
	}
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
	c.changed()

	if err != nil {
		log.Warn("question failed", logging.Err(err))
		return turn, err
	}
	return turn, nil
}

// Pending reports whether a question is in flight.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Epoch increases on every Reset.
func (c *Conversation) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Turns returns a copy of the dialogue.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

// Reset starts a new dialogue. An answer still in flight is dropped.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.epoch++
	c.turns = nil
	c.pending = false
	c.mu.Unlock()
	c.changed()
}

// Follow resets the conversation whenever holder gets a new session.
func (c *Conversation) Follow(holder *session.Holder) func() {
	return holder.OnReplace(func(s *session.Session, _ uint64) {
		c.logger.Debug("new session, resetting conversation", logging.F("session_id", s.ID))
		c.Reset()
	})
}

// Render parses each assistant turn into tokens. User turns are one literal.
func (c *Conversation) Render() []RenderedTurn {
	turns := c.Turns()
	out := make([]RenderedTurn, len(turns))
	for i, t := range turns {
		out[i] = RenderTurn(t)
	}
	return out
}

// RenderTurn tokenizes a single turn.
func RenderTurn(t Turn) RenderedTurn {
	r := RenderedTurn{Role: t.Role}
	if t.Role == RoleAssistant {
		r.Tokens = timeref.Parse(t.Text)
	} else if t.Text != "" {
		r.Tokens = []timeref.Token{{Kind: timeref.Literal, Text: t.Text}}
	}
	return r
}

// Controls lists every time reference in reading order.
func (c *Conversation) Controls() []Control {
	return ControlsOf(c.Render())
}

// ControlsOf lists the time references in rendered turns.
func ControlsOf(rendered []RenderedTurn) []Control {
	var out []Control
	for i, r := range rendered {
		for j, tok := range r.Tokens {
			if tok.IsTimeRef() {
				out = append(out, Control{Turn: i, Index: j, Token: tok})
			}
		}
	}
	return out
}

// Activate publishes a seek to the control's time.
func (c *Conversation) Activate(ctl Control) (seek.Command, bool) {
	if c.seeks == nil || !ctl.Token.IsTimeRef() {
		return seek.Command{}, false
	}
	cmd := c.seeks.Publish(float64(ctl.Seconds()))
	c.logger.Debug("seek requested",
		logging.F("target_seconds", cmd.TargetSeconds),
		logging.F("nonce", cmd.Nonce))
	return cmd, true
}
