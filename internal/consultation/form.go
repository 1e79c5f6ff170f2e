// Package consultation implements the consultation surface: a form whose
// submission resolves a credential, streams a summary and re-renders the
// growing output on every fragment.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jwalitptl/medinotes/internal/credential"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/validator"
)

var (
	ErrInFlight       = errors.New("a submission is already in flight")
	ErrInvalidRequest = errors.New("invalid consultation request")
	ErrAborted        = errors.New("submission aborted")
)

// CredentialResolver yields the bearer token for one submission.
type CredentialResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Streamer opens the summary stream and calls onFragment for every message,
// in arrival order, on the calling goroutine.
type Streamer interface {
	Stream(ctx context.Context, token string, req model.ConsultationRequest, onFragment func(string)) error
}

// View is notified of every state change, in order and never concurrently.
type View interface {
	Update(State)
}

// ViewFunc adapts a function to View.
type ViewFunc func(State)

func (f ViewFunc) Update(s State) { f(s) }

// State is a snapshot of the form.
type State struct {
	Status model.Status
	// Output is the streamed buffer, or the message that replaced it when
	// credential resolution aborted the submission.
	Output string
	Err    error
}

func (s State) SubmitLabel() string {
	return s.Status.SubmitLabel()
}

func (s State) CanSubmit() bool {
	return !s.Status.InFlight()
}

// HasOutput selects the two-pane layout.
func (s State) HasOutput() bool {
	return s.Output != ""
}

type Option func(*Form)

func WithView(v View) Option {
	return func(f *Form) { f.view = v }
}

func WithLogger(l *logger.Logger) Option {
	return func(f *Form) { f.log = l.With("consultation") }
}

func WithValidator(v validator.Validator) Option {
	return func(f *Form) { f.validate = v }
}

// Form owns one submission at a time.
type Form struct {
	resolver CredentialResolver
	streamer Streamer
	view     View
	validate validator.Validator
	log      *logger.Logger

	mu     sync.Mutex
	status model.Status
	buf    strings.Builder
	output string
	err    error
	gen    uint64
	cancel context.CancelFunc

	viewMu sync.Mutex
}

func NewForm(resolver CredentialResolver, streamer Streamer, opts ...Option) *Form {
	f := &Form{
		resolver: resolver,
		streamer: streamer,
		view:     ViewFunc(func(State) {}),
		validate: validator.Default(),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current snapshot.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

// Submit runs one submission to its end: close, error or Abort. It returns
// ErrInFlight without side effects while another submission is running.
func (f *Form) Submit(ctx context.Context, req model.ConsultationRequest) error {
	f.mu.Lock()
	if f.status.InFlight() {
		f.mu.Unlock()
		return ErrInFlight
	}
	if err := f.validate.Validate(req); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.status = model.StatusSubmitting
	f.buf.Reset()
	f.output = ""
	f.err = nil
	f.mu.Unlock()
	defer cancel()
	f.publish()

	token, err := f.resolver.Resolve(runCtx)
	if err != nil {
		msg := credential.UserMessage(err)
		if msg == "" {
			msg = credential.MsgAuthRequired
		}
		f.log.Info("submission refused before streaming", "reason", err.Error())
		f.finish(gen, model.StatusError, &msg, err)
		return err
	}

	f.mu.Lock()
	if gen == f.gen && runCtx.Err() == nil {
		f.status = model.StatusStreaming
	}
	f.mu.Unlock()
	f.publish()

	err = f.streamer.Stream(runCtx, token, req, func(fragment string) {
		f.append(runCtx, gen, fragment)
	})
	switch {
	case err == nil:
		f.finish(gen, model.StatusComplete, nil, nil)
		return nil
	case runCtx.Err() != nil && ctx.Err() == nil:
		f.finish(gen, model.StatusIdle, nil, ErrAborted)
		return ErrAborted
	default:
		cancel()
		f.log.Warn("summary stream failed", "error", err.Error())
		f.finish(gen, model.StatusError, nil, err)
		return err
	}
}

// Abort cancels the running submission. Fragments still in transit are
// discarded; output received so far stays.
func (f *Form) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

// Close ends the form's life cycle.
func (f *Form) Close() {
	f.Abort()
}

func (f *Form) append(ctx context.Context, gen uint64, fragment string) {
	f.mu.Lock()
	if gen != f.gen || ctx.Err() != nil || f.status != model.StatusStreaming {
		f.mu.Unlock()
		return
	}
	f.buf.WriteString(fragment)
	f.output = f.buf.String()
	f.mu.Unlock()
	f.publish()
}

// finish leaves the in-flight state. A nil output keeps the buffer.
func (f *Form) finish(gen uint64, status model.Status, output *string, err error) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.status = status
	if output != nil {
		f.output = *output
	}
	f.err = err
	f.cancel = nil
	f.mu.Unlock()
	f.publish()
}

func (f *Form) snapshot() State {
	return State{Status: f.status, Output: f.output, Err: f.err}
}

func (f *Form) publish() {
	f.viewMu.Lock()
	defer f.viewMu.Unlock()
	f.view.Update(f.State())
}
