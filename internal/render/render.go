// Package render turns Markdown summaries into formatted text.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer renders a complete Markdown document. Partial documents are
// valid input: every fragment re-renders the whole buffer so far.
type Renderer interface {
	Render(markdown string) (string, error)
}

// HTML renders GitHub flavored Markdown with single newlines kept as line
// breaks. Raw HTML in the input is omitted from the output.
type HTML struct {
	md goldmark.Markdown
}

func NewHTML() *HTML {
	return &HTML{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (h *HTML) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Template renders for use inside html/template.
func (h *HTML) Template(markdown string) (template.HTML, error) {
	out, err := h.Render(markdown)
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil //nolint:gosec // goldmark output without unsafe raw HTML
}

// Terminal renders Markdown as ANSI styled text.
type Terminal struct {
	mu sync.Mutex
	tr *glamour.TermRenderer
}

type TerminalOption func(*terminalConfig)

type terminalConfig struct {
	width int
	style string
}

func WithWidth(width int) TerminalOption {
	return func(c *terminalConfig) { c.width = width }
}

// WithStyle selects a glamour standard style such as "dark", "light" or
// "notty".
func WithStyle(style string) TerminalOption {
	return func(c *terminalConfig) { c.style = style }
}

func NewTerminal(opts ...TerminalOption) (*Terminal, error) {
	cfg := terminalConfig{width: 80}
	for _, opt := range opts {
		opt(&cfg)
	}

	options := []glamour.TermRendererOption{
		glamour.WithWordWrap(cfg.width),
		glamour.WithPreservedNewLines(),
	}
	if cfg.style != "" {
		options = append(options, glamour.WithStandardStyle(cfg.style))
	} else {
		options = append(options, glamour.WithAutoStyle())
	}

	tr, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return &Terminal{tr: tr}, nil
}

// Render is safe for concurrent use.
func (t *Terminal) Render(markdown string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, err := t.tr.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// Plain returns its input unchanged.
type Plain struct{}

func (Plain) Render(markdown string) (string, error) {
	return markdown, nil
}
