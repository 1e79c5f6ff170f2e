package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/render"
)

var ErrPlanRequired = errors.New("this account has no Healthcare Professional Plan")

const pricingNotice = `Healthcare Professional Plan
Streamline your patient consultations with AI-powered summaries.
Subscribe at %s/product to use the consultation assistant.
`

type submitInput struct {
	patient   string
	date      string
	notes     string
	notesFile string
	plain     bool
	html      bool
	prompt    bool
}

func newSubmitCommand(a *app) *cobra.Command {
	in := &submitInput{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Generate a consultation summary",
		Long: "Sends the consultation notes to MediNotes Pro and shows the summary,\n" +
			"next steps and drafted patient email as they stream in. Missing fields\n" +
			"are asked for interactively when stdin is a terminal.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.submit(cmd, in)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.patient, "patient", "", "patient's full name")
	f.StringVar(&in.date, "date", "", "date of visit, yyyy-mm-dd (default today)")
	f.StringVar(&in.notes, "notes", "", "consultation notes")
	f.StringVar(&in.notesFile, "notes-file", "", "read consultation notes from a file, - for stdin")
	f.BoolVar(&in.plain, "plain", false, "print raw Markdown as it arrives")
	f.BoolVar(&in.html, "html", false, "print the finished summary as HTML")
	f.BoolVar(&in.prompt, "prompt", isTerminal(os.Stdin), "ask for missing fields")
	cmd.MarkFlagsMutuallyExclusive("plain", "html")
	cmd.MarkFlagsMutuallyExclusive("notes", "notes-file")
	return cmd
}

func (a *app) submit(cmd *cobra.Command, in *submitInput) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	req, err := in.request(cmd.InOrStdin())
	if err != nil {
		return err
	}

	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.resolver.Resolve(ctx); err != nil {
		return userError(err)
	}
	if s.gate().Select(ctx) != consultation.BranchConsultation {
		fmt.Fprintf(out, pricingNotice, strings.TrimRight(a.cfg.ServerURL, "/"))
		return ErrPlanRequired
	}

	switch {
	case in.html:
		form := s.form()
		if err := form.Submit(ctx, req); err != nil {
			return userError(err)
		}
		html, err := render.NewHTML().Render(form.State().Output)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, html)
		return err
	case in.plain || !isTerminal(os.Stdout):
		return submitPlain(cmd, s, req)
	default:
		return submitInteractive(cmd, s, req)
	}
}

// submitPlain writes each fragment as it arrives.
func submitPlain(cmd *cobra.Command, s *session, req model.ConsultationRequest) error {
	out := cmd.OutOrStdout()
	printed := 0
	form := s.form(consultation.WithView(consultation.ViewFunc(func(st consultation.State) {
		if len(st.Output) > printed && st.Status != model.StatusError {
			io.WriteString(out, st.Output[printed:])
			printed = len(st.Output)
		}
	})))
	err := form.Submit(cmd.Context(), req)
	if printed > 0 && !strings.HasSuffix(form.State().Output, "\n") {
		io.WriteString(out, "\n")
	}
	return userError(err)
}

func submitInteractive(cmd *cobra.Command, s *session, req model.ConsultationRequest) error {
	term, err := render.NewTerminal(render.WithWidth(100))
	if err != nil {
		return err
	}

	var p *tea.Program
	form := s.form(consultation.WithView(consultation.ViewFunc(func(st consultation.State) {
		p.Send(stateMsg(st))
	})))
	p = tea.NewProgram(newStreamModel(req.PatientName, term, form.Abort),
		tea.WithContext(cmd.Context()),
		tea.WithOutput(cmd.OutOrStdout()))

	errc := make(chan error, 1)
	go func() {
		err := form.Submit(cmd.Context(), req)
		errc <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		form.Abort()
		<-errc
		return err
	}
	err = <-errc
	if errors.Is(err, consultation.ErrAborted) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Stopped.")
		return nil
	}
	return userError(err)
}

func (in *submitInput) request(stdin io.Reader) (model.ConsultationRequest, error) {
	if in.notesFile != "" {
		notes, err := readNotes(in.notesFile, stdin)
		if err != nil {
			return model.ConsultationRequest{}, err
		}
		in.notes = notes
	}
	if in.date == "" {
		in.date = time.Now().Format(model.DateLayout)
	}
	if in.prompt && (in.patient == "" || strings.TrimSpace(in.notes) == "") {
		if err := in.ask(); err != nil {
			return model.ConsultationRequest{}, err
		}
	}
	return model.ConsultationRequest{
		PatientName: strings.TrimSpace(in.patient),
		DateOfVisit: strings.TrimSpace(in.date),
		Notes:       in.notes,
	}, nil
}

// ask fills the missing fields with a form. Every field is required, as in
// the web form.
func (in *submitInput) ask() error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Patient Name").
			Placeholder("Enter patient's full name").
			Value(&in.patient).
			Validate(required("patient name")),
		huh.NewInput().
			Title("Date of Visit").
			Placeholder(model.DateLayout).
			Value(&in.date).
			Validate(visitDate),
		huh.NewText().
			Title("Consultation Notes").
			Placeholder("Enter detailed consultation notes...").
			Lines(8).
			Value(&in.notes).
			Validate(required("consultation notes")),
	).Title("Consultation Notes")).Run()
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func visitDate(s string) error {
	if _, err := time.Parse(model.DateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("use the form %s", model.DateLayout)
	}
	return nil
}

func readNotes(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read notes from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(b), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
