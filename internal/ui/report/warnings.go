package report

import (
	"fmt"
	"strings"

	"polybuild/internal/core/ports"

	"github.com/charmbracelet/lipgloss"
)

var severityOrder = []ports.Severity{ports.SeverityError, ports.SeverityWarning, ports.SeverityInfo}

// RenderWarnings groups warnings by severity, errors first, keeping the
// input order inside each group. It returns "" for no warnings.
func RenderWarnings(warnings []ports.Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	groups := make(map[ports.Severity][]ports.Warning)
	for _, w := range warnings {
		groups[w.Severity] = append(groups[w.Severity], w)
	}

	var b strings.Builder
	for _, sev := range severityOrder {
		group := groups[sev]
		if len(group) == 0 {
			continue
		}
		style := severityStyle(sev)
		b.WriteString(style.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(sev.String()), len(group))))
		b.WriteByte('\n')
		for _, w := range group {
			b.WriteString("  ")
			if loc := w.Location.String(); loc != "" {
				b.WriteString(locationStyle.Render(loc))
				b.WriteString(": ")
			}
			b.WriteString(w.Message)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// CountBySeverity returns how many warnings carry each severity.
func CountBySeverity(warnings []ports.Warning) map[ports.Severity]int {
	counts := make(map[ports.Severity]int, len(severityOrder))
	for _, w := range warnings {
		counts[w.Severity]++
	}
	return counts
}

func severityStyle(sev ports.Severity) lipgloss.Style {
	switch sev {
	case ports.SeverityError:
		return errorStyle
	case ports.SeverityWarning:
		return warningStyle
	default:
		return infoStyle
	}
}
