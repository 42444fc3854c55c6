package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Text renders the report for the weekly mail.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rapport d'amélioration du %s au %s\n",
		r.WindowStart.Format("2006-01-02"), r.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Score: %.1f/10\n", r.Score)
	fmt.Fprintf(&b, "Erreurs: %d, validations: %d (%.0f%% valides), escalades: %d\n\n",
		r.TotalErrors, r.Performance.Validations, r.Performance.ValidRate*100, r.Performance.Escalations)

	if len(r.Patterns) > 0 {
		b.WriteString("Erreurs récurrentes:\n")
		for _, p := range r.Patterns {
			fmt.Fprintf(&b, "- %s x%d (%s)\n", p.Kind, p.Frequency, p.Severity)
			for _, c := range p.CommonCauses {
				fmt.Fprintf(&b, "    cause: %s\n", c)
			}
		}
		b.WriteString("\n")
	}

	if len(r.KeywordIssues) > 0 {
		b.WriteString("Valeurs non reconnues:\n")
		for _, k := range r.KeywordIssues {
			fmt.Fprintf(&b, "- %s=%q x%d\n", k.Field, k.Value, k.Count)
		}
		b.WriteString("\n")
	}

	if len(r.Actions) > 0 {
		b.WriteString("Actions prioritaires:\n")
		for _, a := range r.Actions {
			fmt.Fprintf(&b, "%d. [%s] %s: %s\n", a.Rank, a.Impact, a.Title, a.Description)
		}
	}
	return b.String()
}

// Write renders r to w as "json" or "text".
func (r *Report) Write(w io.Writer, format string) error {
	if format == "json" {
		data, err := r.JSON()
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	_, err := io.WriteString(w, r.Text())
	return err
}
