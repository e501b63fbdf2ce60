// Package bus is a thin NATS client used to carry seek commands between
// documind processes.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/otherjamesbrown/documind-cli/pkg/logging"
)

// DefaultSubject is the subject seek commands are published on.
const DefaultSubject = "documind.playback.seek"

// Client wraps a NATS connection.
type Client struct {
	conn   *nats.Conn
	mu     sync.Mutex
	subs   []*nats.Subscription
	logger logging.Logger
}

// Connect dials the NATS server at url. An empty token means no auth.
func Connect(url, token string, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	opts := []nats.Option{
		nats.Name("documind"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe registers handler for messages on subject.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.Info("subscribed", logging.F("subject", subject))
	return nil
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close unsubscribes everything and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()
	c.conn.Close()
}
