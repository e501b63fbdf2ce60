package playback

import (
	"context"
	"sync"

	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// Manager keeps at most one Surface mounted, for the current session, and
// only when that session is playable.
type Manager struct {
	channel seek.Subscriber
	factory PlayerFactory
	logger  logging.Logger

	mu       sync.Mutex
	surface  *Surface
	player   Player
	session  *session.Session
	onChange []func(mounted bool)
}

// NewManager returns a manager with nothing mounted.
func NewManager(channel seek.Subscriber, factory PlayerFactory, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		channel: channel,
		factory: factory,
		logger:  logger.With(logging.F("component", "playback")),
	}
}

// OnMountChange registers fn to run after every Show.
func (m *Manager) OnMountChange(fn func(mounted bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Follow shows every session installed in holder.
func (m *Manager) Follow(ctx context.Context, holder *session.Holder) func() {
	return holder.OnReplace(func(s *session.Session, _ uint64) {
		_ = m.Show(ctx, s)
	})
}

// Show tears down the current surface and mounts a new one when s is
// playable. A player that fails to open leaves nothing mounted.
func (m *Manager) Show(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	m.teardown()
	m.session = s

	var err error
	if s.Playable() {
		var player Player
		player, err = m.factory(ctx, s)
		if err != nil {
			m.logger.Warn("could not open media player", logging.Err(err), logging.F("file", s.FileName))
		} else {
			m.player = player
			m.surface = NewSurface(player, m.logger.With(logging.F("session_id", s.ID)))
			m.surface.Mount(m.channel)
			m.logger.Info("playback mounted", logging.F("file", s.FileName), logging.F("kind", string(s.ContentKind)))
		}
	} else if s != nil {
		m.logger.Debug("session is not playable", logging.F("kind", string(s.ContentKind)))
	}

	mounted := m.surface != nil
	listeners := append([]func(bool){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(mounted)
	}
	return err
}

// teardown unmounts and closes. The caller holds m.mu.
func (m *Manager) teardown() {
	if m.surface != nil {
		m.surface.Unmount()
		m.surface = nil
	}
	if m.player != nil {
		if err := m.player.Close(); err != nil {
			m.logger.Debug("closing player", logging.Err(err))
		}
		m.player = nil
	}
}

// Mounted reports whether a surface is mounted.
func (m *Manager) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surface != nil
}

// Surface returns the mounted surface, or nil.
func (m *Manager) Surface() *Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surface
}

// Player returns the mounted player, or nil.
func (m *Manager) Player() Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.player
}

// Close unmounts and closes the player.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
	m.session = nil
}

// Session returns the session last shown, playable or not.
func (m *Manager) Session() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}
