package check

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/docgate/internal/markdown"
	"git.home.luguber.info/inful/docgate/internal/steps"
)

// summaryTailLines bounds the output shown for the failing step.
const summaryTailLines = 30

// Markdown renders the report as a Markdown summary.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s: %s\n\n", r.Check, r.Status)
	b.WriteString("| | |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, escapeCell(v))
		}
	}
	row("Run", "`"+r.RunID+"`")
	row("Repository", r.Repository)
	row("Change", "`"+r.ChangeRef+"`")
	if r.HeadSHA != "" {
		row("Commit", "`"+r.HeadSHA+"`")
	}
	row("Exit code", fmt.Sprint(r.ExitCode))
	if r.FailureCategory != "" {
		row("Failure", fmt.Sprintf("%s (%s)", r.FailureCategory, r.FailedStep))
	}
	if n := len(r.MatchedPaths); n > 0 {
		row("Matched paths", fmt.Sprint(n))
	}
	if r.SupersededBy != "" {
		row("Superseded by", "`"+r.SupersededBy+"`")
	}
	row("Environment", r.environmentLine())
	if d := r.Duration(); d > 0 {
		row("Duration", d.Round(time.Millisecond).String())
	}

	if len(r.Steps) > 0 {
		b.WriteString("\n## Steps\n\n| # | Step | Status | Exit | Warnings | Duration |\n|---|---|---|---|---|---|\n")
		for i, s := range r.Steps {
			dur := ""
			if s.Duration > 0 {
				dur = s.Duration.Round(time.Millisecond).String()
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %s |\n", i+1, escapeCell(s.Name), s.Status, s.ExitCode, s.WarningCount, dur)
		}
	}

	for _, s := range r.Steps {
		if s.Status != steps.StatusFailed && s.Status != steps.StatusCanceled {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n", s.Name)
		if s.Error != "" {
			fmt.Fprintf(&b, "**%s**\n", s.Error)
		}
		if len(s.Warnings) > 0 {
			b.WriteString("\nWarnings:\n\n")
			for _, w := range s.Warnings {
				fmt.Fprintf(&b, "- `%s`\n", strings.ReplaceAll(w, "`", "'"))
			}
			if s.WarningCount > len(s.Warnings) {
				fmt.Fprintf(&b, "- ... and %d more\n", s.WarningCount-len(s.Warnings))
			}
		}
		if tail := lastLines(s.OutputTail, summaryTailLines); len(tail) > 0 {
			b.WriteString("\n```text\n")
			for _, l := range tail {
				b.WriteString(strings.ReplaceAll(l, "```", "'''"))
				b.WriteByte('\n')
			}
			b.WriteString("```\n")
		}
	}
	if len(r.Steps) == 0 && r.Error != "" {
		fmt.Fprintf(&b, "\n**%s**\n", r.Error)
	}
	return b.String()
}

// HTML renders the Markdown summary as a standalone page.
func (r *Report) HTML() ([]byte, error) {
	return markdown.Page(fmt.Sprintf("%s %s: %s", r.Check, r.RunID, r.Status), []byte(r.Markdown()))
}

func (r *Report) environmentLine() string {
	parts := make([]string, 0, 3)
	if r.Environment.Image != "" {
		parts = append(parts, r.Environment.Image)
	}
	if r.Environment.Runtime != "" {
		rt := r.Environment.Runtime
		if r.Environment.RuntimeVersion != "" {
			rt += " " + r.Environment.RuntimeVersion
		}
		parts = append(parts, rt)
	}
	if r.Environment.WorkingDirectory != "" {
		parts = append(parts, r.Environment.WorkingDirectory)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func lastLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
