package seek

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/documind-cli/pkg/logging"
)

// Messenger publishes and subscribes JSON messages by subject. *bus.Client
// satisfies it.
type Messenger interface {
	Publish(subject string, data any) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

// WireCommand is the JSON form of a command on the message bus.
type WireCommand struct {
	TargetSeconds float64 `json:"target_seconds"`
	Nonce         uint64  `json:"nonce"`
	Origin        string  `json:"origin"`
}

// Bridge connects a local Channel to a bus subject. Forwarding sends every
// local command out. Receiving republishes every remote command locally,
// giving it a fresh local nonce. Messages a bridge sent itself are ignored.
type Bridge struct {
	channel   *Channel
	messenger Messenger
	subject   string
	origin    string
	logger    logging.Logger

	mu          sync.Mutex
	unsubscribe func()
}

// NewBridge returns a bridge for channel over subject.
func NewBridge(channel *Channel, messenger Messenger, subject string, logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Bridge{
		channel:   channel,
		messenger: messenger,
		subject:   subject,
		origin:    uuid.NewString(),
		logger:    logger.With(logging.F("component", "seek-bridge"), logging.F("subject", subject)),
	}
}

// Forward publishes every future local command on the bus until Stop is called.
func (b *Bridge) Forward() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		return
	}
	b.unsubscribe = b.channel.Subscribe(func(cmd Command) {
		msg := WireCommand{TargetSeconds: cmd.TargetSeconds, Nonce: cmd.Nonce, Origin: b.origin}
		if err := b.messenger.Publish(b.subject, msg); err != nil {
			b.logger.Warn("forwarding seek failed", logging.Err(err), logging.F("target_seconds", cmd.TargetSeconds))
		}
	})
}

// Receive republishes commands arriving on the bus into the local channel.
func (b *Bridge) Receive() error {
	return b.messenger.Subscribe(b.subject, func(_ string, data []byte) {
		var msg WireCommand
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn("dropping malformed seek message", logging.Err(err))
			return
		}
		if msg.Origin == b.origin {
			return
		}
		if msg.TargetSeconds < 0 {
			b.logger.Warn("dropping negative seek target", logging.F("target_seconds", msg.TargetSeconds))
			return
		}
		b.channel.Publish(msg.TargetSeconds)
	})
}

// Stop ends forwarding.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}
