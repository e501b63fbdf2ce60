// Package playback mounts a media player for playable sessions and moves it
// in response to seek commands.
package playback

import (
	"context"
	"sync"

	"github.com/otherjamesbrown/documind-cli/pkg/logging"
)

// Player is the media primitive the surface drives. Out-of-range positions
// are the player's concern.
type Player interface {
	SetPosition(ctx context.Context, seconds float64) error
	Play(ctx context.Context) error
	Close() error
}

// LogPlayer only tracks the requested position. It stands in for mpv when
// no external player is configured.
type LogPlayer struct {
	logger logging.Logger

	mu       sync.Mutex
	position float64
	playing  bool
	closed   bool
}

// NewLogPlayer returns a LogPlayer that logs every request.
func NewLogPlayer(logger logging.Logger) *LogPlayer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LogPlayer{logger: logger.With(logging.F("player", "log"))}
}

func (p *LogPlayer) SetPosition(_ context.Context, seconds float64) error {
	p.mu.Lock()
	p.position = seconds
	p.mu.Unlock()
	p.logger.Info("position set", logging.F("seconds", seconds))
	return nil
}

func (p *LogPlayer) Play(context.Context) error {
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
	p.logger.Info("playing")
	return nil
}

func (p *LogPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	return nil
}

// Position returns the last requested position and whether playback was resumed.
func (p *LogPlayer) Position() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.playing
}
