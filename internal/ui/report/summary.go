package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"polybuild/internal/core/ports"
)

// Summary is the terminal view of one finished build.
type Summary struct {
	ID           string
	Status       string
	Duration     time.Duration
	Fragments    int
	Sources      int
	Dependencies int
	Outputs      int
	Warnings     []ports.Warning
	Err          error
}

func RenderSummary(s Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("polybuild"))
	b.WriteString(" ")
	b.WriteString(statusStyle.Render(s.ID))
	b.WriteByte('\n')

	counts := CountBySeverity(s.Warnings)
	fmt.Fprintf(&b, "  fragments %d  sources %d  dependencies %d  outputs %d\n",
		s.Fragments, s.Sources, s.Dependencies, s.Outputs)
	fmt.Fprintf(&b, "  %s  %s  %s\n",
		errorStyle.Render(fmt.Sprintf("%d errors", counts[ports.SeverityError])),
		warningStyle.Render(fmt.Sprintf("%d warnings", counts[ports.SeverityWarning])),
		infoStyle.Render(fmt.Sprintf("%d info", counts[ports.SeverityInfo])),
	)

	elapsed := s.Duration.Round(time.Millisecond)
	if s.Status == ports.BuildSucceeded {
		b.WriteString(successStyle.Render(fmt.Sprintf("build succeeded in %s", elapsed)))
	} else {
		msg := fmt.Sprintf("build failed after %s", elapsed)
		if s.Err != nil {
			msg += ": " + s.Err.Error()
		}
		b.WriteString(errorStyle.Render(msg))
	}
	b.WriteByte('\n')
	return b.String()
}

// RenderHistoryTSV lists builds one per line for piping into other tools.
func RenderHistoryTSV(builds []ports.BuildRecord) []byte {
	var buf strings.Builder
	buf.WriteString("ID\tStarted\tStatus\tDurationMs\tFragments\tSources\tDependencies\tWarnings\tErrors\tMessage\n")
	for _, r := range builds {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Status,
			r.Duration.Milliseconds(),
			r.Fragments,
			r.Sources,
			r.Dependencies,
			r.Warnings,
			r.Errors,
			strings.ReplaceAll(r.Message, "\t", " "),
		))
	}
	return []byte(buf.String())
}

func RenderHistoryJSON(builds []ports.BuildRecord) ([]byte, error) {
	return json.MarshalIndent(builds, "", "  ")
}

// RenderDependents prints the fragments that import dependency.
func RenderDependents(dependency string, fragments []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(dependency))
	b.WriteByte('\n')
	if len(fragments) == 0 {
		b.WriteString(statusStyle.Render("  no dependents in the last successful build"))
		b.WriteByte('\n')
		return b.String()
	}
	for _, f := range fragments {
		b.WriteString("  ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return b.String()
}
