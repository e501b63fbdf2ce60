package playback

import (
	"context"
	"sync"
	"time"

	"github.com/otherjamesbrown/documind-cli/config"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// commandTimeout bounds the player calls made for one seek command.
const commandTimeout = 5 * time.Second

// Surface binds one Player to a seek channel while mounted. It only handles
// commands published after Mount.
type Surface struct {
	player Player
	logger logging.Logger

	mu          sync.Mutex
	unsubscribe func()
	handled     int
}

// NewSurface returns an unmounted surface for player.
func NewSurface(player Player, logger logging.Logger) *Surface {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Surface{player: player, logger: logger}
}

// Mount subscribes to sub. Mounting twice is a no-op.
func (s *Surface) Mount(sub seek.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}
	s.unsubscribe = sub.Subscribe(s.handle)
}

// Unmount drops the subscription. The player is left open.
func (s *Surface) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Mounted reports whether the surface is subscribed.
func (s *Surface) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

// Handled returns the number of commands received while mounted.
func (s *Surface) Handled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handled
}

// handle moves the player and then resumes it. A failed resume leaves the
// player paused at the new position.
func (s *Surface) handle(cmd seek.Command) {
	s.mu.Lock()
	s.handled++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	log := s.logger.With(logging.F("target_seconds", cmd.TargetSeconds), logging.F("nonce", cmd.Nonce))
	if err := s.player.SetPosition(ctx, cmd.TargetSeconds); err != nil {
		log.Warn("seek failed", logging.Err(err))
		return
	}
	if err := s.player.Play(ctx); err != nil {
		log.Warn("resume after seek failed, player left paused", logging.Err(err))
		return
	}
	log.Debug("seeked")
}

// PlayerFactory opens a player for a playable session.
type PlayerFactory func(ctx context.Context, s *session.Session) (Player, error)

// LogFactory opens LogPlayers.
func LogFactory(logger logging.Logger) PlayerFactory {
	return func(context.Context, *session.Session) (Player, error) {
		return NewLogPlayer(logger), nil
	}
}

// MPVFactory launches mpv on the session's local file.
func MPVFactory(opts MPVOptions) PlayerFactory {
	return func(ctx context.Context, s *session.Session) (Player, error) {
		return StartMPV(ctx, s.SourceLocator, opts)
	}
}

// FactoryFromConfig picks mpv unless the player command is "none".
func FactoryFromConfig(cfg config.PlayerConfig, logger logging.Logger) PlayerFactory {
	if cfg.Command == "none" {
		return LogFactory(logger)
	}
	return MPVFactory(MPVOptions{
		Command:   cfg.Command,
		SocketDir: cfg.SocketDir,
		ExtraArgs: cfg.ExtraArgs,
		Logger:    logger,
	})
}
