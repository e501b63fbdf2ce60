// Package upload drives the file upload that establishes a session.
//
// The Coordinator is a small state machine:
//
//	Idle -> FileChosen -> Uploading -> Succeeded
//	                          |
//	                          +-> Failed -> FileChosen (file retained)
//
// Choosing another file from any state except Uploading starts over at
// FileChosen. Only one upload runs at a time. Every transition that abandons
// an upload bumps the epoch, and a result carrying an old epoch is dropped.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/otherjamesbrown/documind-cli/client"
	dmerrors "github.com/otherjamesbrown/documind-cli/pkg/errors"
	"github.com/otherjamesbrown/documind-cli/pkg/logging"
	"github.com/otherjamesbrown/documind-cli/pkg/session"
	"github.com/otherjamesbrown/documind-cli/pkg/transcript"
)

// Status messages shown next to the upload control.
const (
	ReadyMessage   = "Ready to chat!"
	FailureMessage = "Upload failed. Ensure backend is running."
)

// State is the coordinator state.
type State int

const (
	Idle State = iota
	FileChosen
	Uploading
	Succeeded
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	FileChosen: "file_chosen",
	Uploading:  "uploading",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the coordinator.
type Status struct {
	State   State  `json:"state" yaml:"state"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Epoch   uint64 `json:"epoch" yaml:"epoch"`

	// Err is the cause of the last failure. It is never shown to users.
	Err error `json:"-" yaml:"-"`
}

// Listener observes transitions. Listeners run synchronously and must not
// call back into the Coordinator.
type Listener func(Status)

// Coordinator owns the upload state machine.
type Coordinator struct {
	summarizer client.Summarizer
	holder     *session.Holder
	logger     logging.Logger
	open       func(path string) (*os.File, error)
	sidecar    func(mediaPath string) (*transcript.Result, error)

	mu      sync.Mutex
	state   State
	file    string
	message string
	lastErr error
	epoch   uint64
	cancel  context.CancelFunc

	notifyMu  sync.Mutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

// NewCoordinator returns an idle coordinator that installs sessions into holder.
func NewCoordinator(summarizer client.Summarizer, holder *session.Holder, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Coordinator{
		summarizer: summarizer,
		holder:     holder,
		logger:     logger.With(logging.F("component", "upload")),
		open:       os.Open,
		sidecar:    transcript.LoadSidecar,
		listeners:  map[int]Listener{},
	}
}

// Status returns the current snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanUpload reports whether the upload control is available.
func (c *Coordinator) CanUpload() bool {
	return c.State() == FileChosen
}

func (c *Coordinator) snapshot() Status {
	return Status{State: c.state, File: c.file, Message: c.message, Epoch: c.epoch, Err: c.lastErr}
}

// OnTransition registers l and returns a function that removes it.
func (c *Coordinator) OnTransition(l Listener) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	c.order = append(c.order, id)
	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		delete(c.listeners, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// transition moves to state and notifies listeners. The caller holds c.mu;
// it is released before listeners run.
func (c *Coordinator) transition(state State) {
	c.state = state
	st := c.snapshot()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	c.logger.Debug("upload state", logging.F("state", st.State.String()), logging.F("epoch", st.Epoch))
	for _, id := range c.order {
		c.listeners[id](st)
	}
}

// Choose selects the file to upload. Only the first path is used. Choosing
// while an upload is in flight is rejected.
func (c *Coordinator) Choose(paths ...string) error {
	if len(paths) == 0 || paths[0] == "" {
		return fmt.Errorf("%w: no file chosen", dmerrors.ErrValidation)
	}
	if len(paths) > 1 {
		c.logger.Debug("ignoring extra files", logging.F("dropped", len(paths)-1))
	}

	path := paths[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", dmerrors.ErrNotFound, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", dmerrors.ErrValidation, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	c.mu.Lock()
	if c.state == Uploading {
		c.mu.Unlock()
		return fmt.Errorf("%w: upload in progress", dmerrors.ErrBusy)
	}
	c.epoch++
	c.file = path
	c.message = ""
	c.lastErr = nil
	c.transition(FileChosen)
	return nil
}

// Cancel discards the chosen file before upload.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	if c.state != FileChosen {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel while %s", dmerrors.ErrInvalidState, state)
	}
	c.epoch++
	c.file = ""
	c.message = ""
	c.lastErr = nil
	c.transition(Idle)
	return nil
}

// Reset returns to Idle from any state. An in-flight upload is cancelled and
// its result dropped. The current session is left in place.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
	c.file = ""
	c.message = ""
	c.lastErr = nil
	c.transition(Idle)
}

// Upload sends the chosen file and, on success, replaces the current session.
// On failure the coordinator returns to FileChosen with the file retained and
// the session untouched. ErrStale is returned when the coordinator moved on
// while the call was in flight.
func (c *Coordinator) Upload(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	switch c.state {
	case Uploading:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: upload in progress", dmerrors.ErrBusy)
	case FileChosen:
	default:
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no file chosen (state %s)", dmerrors.ErrInvalidState, state)
	}
	c.epoch++
	epoch, path := c.epoch, c.file
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.message = ""
	c.transition(Uploading)
	defer cancel()

	log := c.logger.WithContext(ctx).With(logging.F("file", filepath.Base(path)), logging.F("epoch", epoch))
	log.Info("uploading")

	res, err := c.send(ctx, path)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debug("dropping stale upload result", logging.Err(err))
		return nil, fmt.Errorf("%w: upload superseded", dmerrors.ErrStale)
	}
	c.cancel = nil

	if err != nil {
		log.Warn("upload failed", logging.Err(err))
		c.lastErr = err
		c.message = FailureMessage
		c.transition(Failed)

		c.mu.Lock()
		if c.epoch == epoch {
			c.transition(FileChosen)
		} else {
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Unlock()

	// Built and installed without c.mu: holder listeners may start a player.
	// The state stays Uploading until the session is in place.
	details := session.Details{Transcript: res.Transcription, Segments: res.Segments}
	if len(details.Segments) == 0 && session.InferContentKind(path).Playable() {
		details = c.sidecarDetails(path, details, log)
	}
	sess := session.New(path, res.Summary, details)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debug("dropping stale upload result")
		return nil, fmt.Errorf("%w: upload superseded", dmerrors.ErrStale)
	}
	c.mu.Unlock()

	c.holder.Replace(sess)
	log.Info("upload complete", logging.F("session_id", sess.ID), logging.F("kind", string(sess.ContentKind)))

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		log.Debug("coordinator reset while installing session")
		return sess, nil
	}
	c.message = ReadyMessage
	c.lastErr = nil
	c.transition(Succeeded)
	return sess, nil
}

// sidecarDetails fills in segments from a transcript file stored next to the
// media. The backend transcription text is kept when present.
func (c *Coordinator) sidecarDetails(path string, details session.Details, log logging.Logger) session.Details {
	result, err := c.sidecar(path)
	if err != nil {
		if !errors.Is(err, transcript.ErrNoSidecar) {
			log.Warn("ignoring unreadable transcript sidecar", logging.Err(err))
		}
		return details
	}
	details.Segments = result.Segments()
	if details.Transcript == "" {
		details.Transcript = result.FullText
	}
	log.Debug("segments from sidecar", logging.F("format", string(result.Format)), logging.F("segments", len(details.Segments)))
	return details
}

func (c *Coordinator) send(ctx context.Context, path string) (*client.UploadResult, error) {
	f, err := c.open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return c.summarizer.Upload(ctx, &client.UploadRequest{
		FileName: filepath.Base(path),
		Content:  f,
	})
}
