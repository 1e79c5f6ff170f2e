package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/medinotes/internal/model"
)

// Echo is the offline summarizer: it streams a fixed Markdown digest of the
// request word by word, with Delay between fragments.
type Echo struct {
	Delay time.Duration
}

func (Echo) Name() string {
	return "echo"
}

func (e Echo) Stream(ctx context.Context, req model.ConsultationRequest, emit func(string) error) error {
	for _, word := range Words(Digest(req)) {
		if e.Delay > 0 {
			t := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(word); err != nil {
			return emitError(err)
		}
	}
	return nil
}

// Digest is the document Echo streams.
func Digest(req model.ConsultationRequest) string {
	var b strings.Builder
	b.WriteString("### Summary of visit for the doctor's records\n")
	fmt.Fprintf(&b, "- **Patient:** %s\n", req.PatientName)
	fmt.Fprintf(&b, "- **Date of visit:** %s\n", req.DateOfVisit)
	b.WriteString("- **Notes:**\n")
	for _, line := range strings.Split(strings.TrimSpace(req.Notes), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	b.WriteString("\n### Next steps for the doctor\n")
	b.WriteString("- Review the notes above and confirm the plan with the patient.\n")
	b.WriteString("- Schedule any follow-up mentioned in the notes.\n")
	b.WriteString("\n### Draft of email to patient in patient-friendly language\n")
	fmt.Fprintf(&b, "Dear %s,\n\n", req.PatientName)
	fmt.Fprintf(&b, "Thank you for visiting us on %s. ", req.DateOfVisit)
	b.WriteString("We have recorded the details of your visit and will be in touch about next steps.\n\n")
	b.WriteString("Kind regards,\nYour care team\n")
	return b.String()
}

// Words splits text into fragments that concatenate back to text, each
// ending after a space or newline.
func Words(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
