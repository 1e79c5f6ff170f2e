package model

// Status of a consultation submission.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusStreaming
	StatusComplete
	StatusError
)

const (
	SubmitLabel     = "Generate Summary"
	SubmittingLabel = "Generating Summary..."
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// InFlight is true while a submission owns the form.
func (s Status) InFlight() bool {
	return s == StatusSubmitting || s == StatusStreaming
}

// SubmitLabel is the text of the submit control in this status.
func (s Status) SubmitLabel() string {
	if s.InFlight() {
		return SubmittingLabel
	}
	return SubmitLabel
}
