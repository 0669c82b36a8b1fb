// Package render provides terminal rendering for the interactive chat:
// markdown rendering of assistant replies via Glamour and lipgloss-styled
// message panels.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"companion/internal/logger"
)

var (
	userStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")). // Cyan border
			Padding(0, 1)

	assistantStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")). // Green border
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")) // Blue

	statsStyle = lipgloss.NewStyle().
			Faint(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")) // Purple
)

// Renderer renders chat output for the terminal.
type Renderer struct {
	markdown *glamour.TermRenderer
}

// New creates a renderer with auto-detected terminal styling.
func New() (*Renderer, error) {
	markdown, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	return &Renderer{markdown: markdown}, nil
}

// Markdown renders markdown content to ANSI terminal output. On render
// failure the raw content is returned so a reply is never swallowed.
func (r *Renderer) Markdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	rendered, err := r.markdown.Render(content)
	if err != nil {
		logger.Debug("Markdown rendering failed, falling back to raw text", "error", err)
		return content
	}
	return rendered
}

// UserMessage renders a user message panel.
func (r *Renderer) UserMessage(text string) string {
	return userStyle.Render(titleStyle.Render("You") + "\n" + text)
}

// AssistantMessage renders an assistant reply panel with optional stats line.
func (r *Renderer) AssistantMessage(text string, stats string) string {
	body := titleStyle.Render("Assistant") + "\n" + strings.TrimRight(r.Markdown(text), "\n")
	if stats != "" {
		body += "\n" + statsStyle.Render(stats)
	}
	return assistantStyle.Render(body)
}

// Error renders an error line.
func Error(msg string) string {
	return errorStyle.Render("error: " + msg)
}

// Warn renders a warning line.
func Warn(msg string) string {
	return warnStyle.Render("warning: " + msg)
}

// Info renders an informational line.
func Info(msg string) string {
	return infoStyle.Render(msg)
}
