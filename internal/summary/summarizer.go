// Package summary produces the streamed consultation summary.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwalitptl/medinotes/internal/model"
)

var (
	// ErrEmit wraps failures to deliver a fragment to the caller, usually a
	// client that went away.
	ErrEmit = errors.New("emit fragment")
	// ErrUnavailable means the upstream model cannot be reached right now.
	ErrUnavailable = errors.New("summarizer unavailable")
)

// Summarizer streams a Markdown summary of one consultation. emit is called
// once per fragment, in order; returning an error from emit stops the stream.
type Summarizer interface {
	Name() string
	Stream(ctx context.Context, req model.ConsultationRequest, emit func(string) error) error
}

const systemPrompt = `You are provided with notes written by a doctor from a patient's visit.
Your job is to summarize the visit for the doctor and provide an email.
Reply with exactly three sections with the headings:
### Summary of visit for the doctor's records
### Next steps for the doctor
### Draft of email to patient in patient-friendly language
Use Markdown: headings, short paragraphs and bullet points.`

// UserPrompt renders the request into the message sent to the model.
func UserPrompt(req model.ConsultationRequest) string {
	var b strings.Builder
	b.WriteString("Create the summary, next steps and draft email for:\n")
	fmt.Fprintf(&b, "Patient Name: %s\n", req.PatientName)
	fmt.Fprintf(&b, "Date of Visit: %s\n", req.DateOfVisit)
	b.WriteString("Notes:\n")
	b.WriteString(req.Notes)
	return b.String()
}

func emitError(err error) error {
	return fmt.Errorf("%w: %w", ErrEmit, err)
}
