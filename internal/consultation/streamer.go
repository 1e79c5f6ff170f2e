package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/stream"
)

// SummaryPath is the single backend endpoint a submission posts to.
const SummaryPath = "/api"

// ErrorEventType is the named event the backend sends when generation fails
// after the stream has started.
const ErrorEventType = "error"

// ErrStreamInterrupted is returned when the backend reports a failure
// mid-stream.
var ErrStreamInterrupted = errors.New("summary stream interrupted")

// SSEStreamer posts the request to SummaryPath and forwards each event's
// data as a fragment. Named events other than "message" and "error" are
// skipped.
type SSEStreamer struct {
	client *stream.Client
	path   string
}

func NewStreamer(client *stream.Client) *SSEStreamer {
	return &SSEStreamer{client: client, path: SummaryPath}
}

func (s *SSEStreamer) Stream(ctx context.Context, token string, req model.ConsultationRequest, onFragment func(string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var remote string
	interrupted := false
	err := s.client.Post(ctx, s.path, token, req, stream.Handlers{
		OnMessage: func(ev stream.Event) {
			switch {
			case interrupted:
			case ev.Type == stream.DefaultEventType:
				onFragment(ev.Data)
			case ev.Type == ErrorEventType:
				interrupted = true
				remote = ev.Data
				cancel()
			}
		},
	})
	if interrupted {
		return fmt.Errorf("%w: %s", ErrStreamInterrupted, remote)
	}
	return err
}
