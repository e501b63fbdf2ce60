// Package app assembles the interactive workspace: the seek channel, the
// session holder, the upload coordinator, the conversation and the playback
// manager, wired so that a new session resets the dialogue and remounts the
// player, and every seek is observed and optionally forwarded over the bus.
package app

import (
	"context"

	"github.com/otherjamesbrown/documind-cli/client"
	"github.com/otherjamesbrown/documind-cli/pkg/conversation"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/observability"
	"github.com/otherjamesbrown/documind-cli/pkg/playback"
	"github.com/otherjamesbrown/documind-cli/pkg/seek"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/upload"
)

// Options configures an App.
type Options struct {
	Backend client.Backend

	// Players opens the media player for playable sessions. Defaults to
	// playback.LogFactory.
	Players playback.PlayerFactory

	// Metrics and Tracer instrument the backend and seeks when set.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Messenger, when set, receives every seek on Subject.
	Messenger seek.Messenger
	Subject   string

	Logger logging.Logger
}

// App owns the workspace components.
type App struct {
	Channel      *seek.Channel
	Sessions     *session.Holder
	Uploads      *upload.Coordinator
	Conversation *conversation.Conversation
	Playback     *playback.Manager

	backend client.Backend
	bridge  *seek.Bridge
	stops   []func()
	logger  logging.Logger
}

// New wires an App. ctx bounds player start-up for the App's lifetime.
func New(ctx context.Context, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	players := opts.Players
	if players == nil {
		players = playback.LogFactory(logger)
	}

	var backend client.Backend = opts.Backend
	if opts.Metrics != nil || opts.Tracer != nil {
		backend = observability.Instrument(backend, opts.Metrics, opts.Tracer)
	}

	a := &App{
		Channel:  seek.NewChannel(),
		Sessions: session.NewHolder(),
		backend:  backend,
		logger:   logger,
	}
	a.Uploads = upload.NewCoordinator(backend, a.Sessions, logger)
	a.Conversation = conversation.New(backend, a.Channel, logger)
	a.Playback = playback.NewManager(a.Channel, players, logger)

	// Reset the dialogue before the player remounts.
	a.stops = append(a.stops,
		a.Conversation.Follow(a.Sessions),
		a.Playback.Follow(ctx, a.Sessions),
	)

	if opts.Metrics != nil || opts.Tracer != nil {
		a.stops = append(a.stops, observability.ObserveSeeks(a.Channel, opts.Metrics, opts.Tracer))
	}
	if opts.Metrics != nil {
		a.Playback.OnMountChange(opts.Metrics.SetPlaybackMounted)
	}

	if opts.Messenger != nil {
		a.bridge = seek.NewBridge(a.Channel, opts.Messenger, opts.Subject, logger)
		a.bridge.Forward()
	}
	return a
}

// Backend returns the (possibly instrumented) backend.
func (a *App) Backend() client.Backend {
	return a.backend
}

// Close tears everything down and closes the backend.
func (a *App) Close() error {
	if a.bridge != nil {
		a.bridge.Stop()
	}
	for i := len(a.stops) - 1; i >= 0; i-- {
		a.stops[i]()
	}
	a.stops = nil
	a.Uploads.Reset()
	a.Playback.Close()

	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}
