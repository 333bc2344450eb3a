// Package capture implements the QR-to-submission passport capture
// workflow as an explicit state machine. One Workflow value represents
// one scan-to-submit attempt; all session state lives on it, never in
// package globals, so concurrent sessions can coexist in tests and
// embedders.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go-passport-capture/chip"
	"go-passport-capture/models"

	"github.com/google/uuid"
)

// State is the workflow's position in the capture sequence.
type State int

const (
	// Idle: no session token held.
	Idle State = iota
	// TokenAcquired: token present, no read or submission in flight.
	TokenAcquired
	// Scanning: a chip read is in progress.
	Scanning
	// Submitting: the read succeeded and the POST is in flight.
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TokenAcquired:
		return "token_acquired"
	case Scanning:
		return "scanning"
	case Submitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBusy means a read or submission is already in flight. The
	// hardware session is exclusive, so a second read is refused.
	ErrBusy = errors.New("capture: operation already in progress")

	// ErrNoSession means the operation needs a token the workflow does
	// not hold.
	ErrNoSession = errors.New("capture: no active session token")

	// ErrSuperseded means the result of an asynchronous operation
	// arrived after the session it belonged to was reset; the result
	// was discarded.
	ErrSuperseded = errors.New("capture: result discarded, session was reset")
)

// Status is pushed to the observer on every transition. Failures carry
// Err=true so the UI can give them a distinct treatment.
type Status struct {
	State   State
	Message string
	Err     bool
}

// Workflow drives one capture attempt: token in, notify, chip read,
// submit. Methods are safe for concurrent use; only one read or
// submission runs at a time.
type Workflow struct {
	api    API
	reader chip.Reader
	notify func(Status)

	mu      sync.Mutex
	state   State
	token   string
	record  *models.PassportRecord
	attempt string // uuid of the in-flight operation, empty when none
	cancel  context.CancelFunc
}

// NewWorkflow wires the workflow to its collaborators. notify is invoked
// synchronously on every transition and must not call back into the
// Workflow.
func NewWorkflow(api API, reader chip.Reader, notify func(Status)) *Workflow {
	if notify == nil {
		notify = func(Status) {}
	}
	return &Workflow{
		api:    api,
		reader: reader,
		notify: notify,
		state:  Idle,
	}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) Token() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// Record returns a copy of the captured record, if a read has completed
// and the session has not been cleared.
func (w *Workflow) Record() *models.PassportRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.record == nil {
		return nil
	}
	copied := *w.record
	return &copied
}

// ProvideQR feeds the workflow the raw text decoded from a camera frame.
// On success the token is stored and the observer is told scanning can
// stop; on failure the workflow stays in Idle and no token is stored.
func (w *Workflow) ProvideQR(payload string) error {
	token, err := ExtractToken(payload)
	if err != nil {
		return err
	}
	return w.ProvideToken(token)
}

// ProvideToken is the manual fallback for when QR scanning is
// unavailable. The token's shape is defined by the server, so only
// presence is checked.
func (w *Workflow) ProvideToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Idle {
		return ErrBusy
	}

	w.token = token
	w.record = nil
	w.setState(TokenAcquired, "session token acquired", false)
	slog.Info("session token acquired")
	return nil
}

// Capture runs one read-and-submit attempt: notify the server, read the
// chip, submit the record. It blocks until the attempt finishes; run it
// on its own goroutine when driving a UI. On read failure or
// cancellation the workflow returns to TokenAcquired so the same token
// can be retried; on submit failure the record is retained so Resubmit
// works without a rescan.
func (w *Workflow) Capture(ctx context.Context, key chip.AccessKey) error {
	w.mu.Lock()
	if w.token == "" {
		w.mu.Unlock()
		return ErrNoSession
	}
	if w.state != TokenAcquired {
		w.mu.Unlock()
		return ErrBusy
	}

	token := w.token
	attempt := uuid.NewString()
	w.attempt = attempt

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.setState(Scanning, "hold the passport against the reader", false)
	w.mu.Unlock()
	defer cancel()

	// Advisory only. The read proceeds even if the server never hears
	// about it.
	go func() {
		if err := w.api.NotifyScanning(ctx, token); err != nil && ctx.Err() == nil {
			slog.Warn("failed to notify scanning status", "error", err)
		}
	}()

	record, err := w.reader.Read(ctx, key)
	if err != nil {
		return w.finishRead(attempt, err)
	}

	w.mu.Lock()
	if w.attempt != attempt {
		w.mu.Unlock()
		return ErrSuperseded
	}
	w.record = record
	w.setState(Submitting, "passport read, sending data", false)
	w.mu.Unlock()

	return w.finishSubmit(attempt, w.api.Submit(ctx, token, *record))
}

// Resubmit retries the POST with the retained record, without a rescan.
func (w *Workflow) Resubmit(ctx context.Context) error {
	w.mu.Lock()
	if w.token == "" {
		w.mu.Unlock()
		return ErrNoSession
	}
	if w.state != TokenAcquired {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.record == nil {
		w.mu.Unlock()
		return fmt.Errorf("capture: no captured record to resubmit")
	}

	token := w.token
	record := *w.record
	attempt := uuid.NewString()
	w.attempt = attempt

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.setState(Submitting, "resending passport data", false)
	w.mu.Unlock()
	defer cancel()

	return w.finishSubmit(attempt, w.api.Submit(ctx, token, record))
}

// Cancel cooperatively stops an in-flight read or submission. The token
// is kept: a local cancel never invalidates the session.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset cancels anything in flight and returns the workflow to Idle.
// Results of operations still in flight are discarded when they arrive.
func (w *Workflow) Reset() {
	w.mu.Lock()
	cancel := w.cancel
	w.token = ""
	w.record = nil
	w.attempt = ""
	w.cancel = nil
	w.setState(Idle, "", false)
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	slog.Info("capture workflow reset")
}

// finishRead applies the outcome of a failed chip read, unless the
// session was reset while the read was in flight.
func (w *Workflow) finishRead(attempt string, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt != attempt {
		slog.Debug("dropping stale chip read result")
		return ErrSuperseded
	}
	w.attempt = ""
	w.cancel = nil

	switch {
	case errors.Is(err, context.Canceled):
		// User cancel is not an error; return to the retry-capable
		// state silently.
		w.setState(TokenAcquired, "scan cancelled", false)
	case errors.Is(err, chip.ErrReaderUnavailable):
		w.setState(TokenAcquired, "NFC is not available on this device", true)
	case errors.Is(err, chip.ErrNoDocument):
		w.setState(TokenAcquired, "no passport detected, try again", true)
	case errors.Is(err, chip.ErrAccessDenied):
		w.setState(TokenAcquired, "passport access failed, check the document details", true)
	default:
		w.setState(TokenAcquired, fmt.Sprintf("passport read failed: %v", err), true)
	}

	slog.Warn("chip read did not produce a record", "error", err)
	return err
}

// finishSubmit applies the submission outcome, unless the session was
// reset while the POST was in flight.
func (w *Workflow) finishSubmit(attempt string, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt != attempt {
		slog.Debug("dropping stale submit result")
		return ErrSuperseded
	}
	w.attempt = ""
	w.cancel = nil

	if err != nil {
		// Session and record survive so the user can retry the
		// submission without rescanning the chip.
		var serverErr *ServerError
		switch {
		case errors.Is(err, context.Canceled):
			w.setState(TokenAcquired, "submission cancelled", false)
		case errors.As(err, &serverErr):
			w.setState(TokenAcquired, serverErr.Message, true)
		default:
			w.setState(TokenAcquired, fmt.Sprintf("failed to send data: %v", err), true)
		}
		slog.Warn("submission failed", "error", err)
		return err
	}

	w.token = ""
	w.record = nil
	w.setState(Idle, "data sent successfully", false)
	slog.Info("capture attempt completed")
	return nil
}

// setState must be called with the mutex held.
func (w *Workflow) setState(s State, message string, isErr bool) {
	w.state = s
	w.notify(Status{State: s, Message: message, Err: isErr})
}
