// Package seek carries "seek to second S" intents from the conversation to
// the playback surface.
//
// A Channel holds exactly one current command. Every Publish replaces it and
// notifies the subscribers registered at that moment, synchronously and in
// registration order. Every command carries a fresh nonce, so two commands with
// the same target are two distinct events. Subscribers registered later never
// see earlier commands. Publishes from different goroutines are delivered one
// at a time in nonce order; a handler must not publish on its own channel.
package seek

import (
	"sync"
	"time"
)

// Command is a single seek intent.
type Command struct {
	TargetSeconds float64   `json:"target_seconds"`
	Nonce         uint64    `json:"nonce"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Handler receives published commands.
type Handler func(Command)

// Publisher is the write side of a Channel.
type Publisher interface {
	Publish(targetSeconds float64) Command
}

// Subscriber is the read side of a Channel.
type Subscriber interface {
	Subscribe(h Handler) (unsubscribe func())
}

type subscription struct {
	id uint64
	h  Handler
}

// Channel is a single-slot, last-write-wins broadcast of seek commands.
type Channel struct {
	// deliverMu is held from nonce assignment through the last handler call.
	deliverMu sync.Mutex

	mu      sync.Mutex
	nonce   uint64
	current *Command
	nextID  uint64
	subs    []subscription
	now     func() time.Time
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{now: time.Now}
}

// Publish stores a new command for targetSeconds and delivers it to every
// current subscriber before returning. Negative targets are clamped to zero.
func (c *Channel) Publish(targetSeconds float64) Command {
	if targetSeconds < 0 {
		targetSeconds = 0
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.nonce++
	cmd := Command{TargetSeconds: targetSeconds, Nonce: c.nonce, IssuedAt: c.now()}
	c.current = &cmd
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.h(cmd)
	}
	return cmd
}

// Subscribe registers h for future publishes. The returned function removes
// the registration and is safe to call more than once.
func (c *Channel) Subscribe(h Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, h: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Current returns the most recent command, if any.
func (c *Channel) Current() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Command{}, false
	}
	return *c.current, true
}

// Subscribers returns the number of live subscriptions.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
