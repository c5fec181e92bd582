package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#696969"}

	headerStyle    = lipgloss.NewStyle().Bold(true)
	committedStyle = lipgloss.NewStyle().Foreground(successColor)
	failedStyle    = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(mutedColor)
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatJSON writes v as indented JSON
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatRuns writes one line per run, newest first as given.
func (f *Formatter) FormatRuns(runs []RunDTO) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(f.writer, mutedStyle.Render("no runs recorded"))
		return err
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s  %-9s  %-9s  %-7s  %s", "STARTED", "TRIGGER", "OUTCOME", "COMMIT", "DETAIL")))
	b.WriteByte('\n')
	for _, r := range runs {
		outcome := fmt.Sprintf("%-9s", outcomeLabel(r))
		switch r.Outcome {
		case "committed":
			outcome = committedStyle.Render(outcome)
		case "failed":
			outcome = failedStyle.Render(outcome)
		default:
			outcome = mutedStyle.Render(outcome)
		}
		fmt.Fprintf(&b, "%-19s  %-9s  %s  %-7s  %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Trigger, outcome, short(r.Commit), detail(r))
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// FormatCommits writes the branch history, one commit per line.
func (f *Formatter) FormatCommits(commits []CommitDTO) error {
	var b strings.Builder
	for _, c := range commits {
		fmt.Fprintf(&b, "%s  %s  %s %s\n",
			committedStyle.Render(short(c.Hash)), c.Date.Local().Format(time.DateTime),
			c.Subject, mutedStyle.Render("("+c.Author+")"))
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func outcomeLabel(r RunDTO) string {
	if r.Outcome == "" {
		return r.State
	}
	return r.Outcome
}

func detail(r RunDTO) string {
	if r.Error != "" {
		return r.Error
	}
	return r.Summary
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
