// Package analyzer is the offline improvement job over the audit logs. It has
// no effect on live traffic.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"service-intake/internal/audit"
	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultWindow    = 7 * 24 * time.Hour
	PatternThreshold = 5
	KeywordThreshold = 3
	BaseScore        = 8.0
	MaxActions       = 5
)

type Pattern struct {
	Kind           errors.ErrorKind `json:"kind"`
	Severity       errors.Severity  `json:"severity"`
	Frequency      int              `json:"frequency"`
	CommonCauses   []string         `json:"common_causes"`
	SuggestedFixes []string         `json:"suggested_fixes"`
}

type Performance struct {
	Validations       int            `json:"validations"`
	ValidRate         float64        `json:"valid_rate"`
	CorrectionRate    float64        `json:"correction_rate"`
	AvgConfidence     float64        `json:"avg_confidence"`
	RetryAttempts     int            `json:"retry_attempts"`
	RetrySuccessRate  float64        `json:"retry_success_rate"`
	Escalations       int            `json:"escalations"`
	EscalationReasons map[string]int `json:"escalation_reasons"`
}

// KeywordIssue is an extracted value the catalog repeatedly failed to match.
type KeywordIssue struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	ErrorKind string `json:"error_kind"`
	Count     int    `json:"count"`
}

type Action struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	weight      float64
}

type Report struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	WindowStart   time.Time      `json:"window_start"`
	TotalErrors   int            `json:"total_errors"`
	Patterns      []Pattern      `json:"patterns"`
	Performance   Performance    `json:"performance"`
	KeywordIssues []KeywordIssue `json:"keyword_issues"`
	Score         float64        `json:"score"`
	Actions       []Action       `json:"actions"`
}

type Analyzer struct {
	reader audit.Reader
	window time.Duration
	now    func() time.Time
	logger logger.Logger
}

func New(reader audit.Reader, window time.Duration, log logger.Logger) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{
		reader: reader,
		window: window,
		now:    time.Now,
		logger: logger.Component(log, "analyzer"),
	}
}

func (a *Analyzer) Run(ctx context.Context) (*Report, error) {
	now := a.now().UTC()
	since := now.Add(-a.window)

	var (
		errs        []models.ErrorLog
		validations []models.ValidationLog
		attempts    []models.RetryAttempt
		escalations []models.EscalationRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		errs, err = a.reader.ErrorsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		validations, err = a.reader.ValidationsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		attempts, err = a.reader.RetryAttemptsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		escalations, err = a.reader.EscalationsSince(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:   now,
		WindowStart:   since,
		TotalErrors:   len(errs),
		Patterns:      Patterns(errs),
		Performance:   performance(validations, attempts, escalations),
		KeywordIssues: keywordIssues(validations),
	}
	report.Score = score(report)
	report.Actions = actions(report)

	a.logger.Info("improvement analysis finished", map[string]interface{}{
		"errors":   report.TotalErrors,
		"patterns": len(report.Patterns),
		"score":    report.Score,
		"actions":  len(report.Actions),
	})
	return report, nil
}

// Patterns groups errors by kind and keeps groups seen at least
// PatternThreshold times, most frequent first.
func Patterns(logs []models.ErrorLog) []Pattern {
	groups := map[errors.ErrorKind][]models.ErrorLog{}
	for _, l := range logs {
		groups[l.Kind] = append(groups[l.Kind], l)
	}

	patterns := []Pattern{}
	for kind, rows := range groups {
		if len(rows) < PatternThreshold {
			continue
		}
		patterns = append(patterns, Pattern{
			Kind:           kind,
			Severity:       errors.SeverityOf(kind),
			Frequency:      len(rows),
			CommonCauses:   commonCauses(rows, 3),
			SuggestedFixes: fixesFor(kind),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].Kind < patterns[j].Kind
	})
	return patterns
}

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// cause strips ids and numbers so messages differing only by them group together.
func cause(message string) string {
	s := uuidPattern.ReplaceAllString(message, "<id>")
	s = numberPattern.ReplaceAllString(s, "N")
	return strings.TrimSpace(s)
}

func commonCauses(rows []models.ErrorLog, n int) []string {
	counts := map[string]int{}
	for _, r := range rows {
		counts[cause(r.Message)]++
	}
	causes := make([]string, 0, len(counts))
	for c := range counts {
		causes = append(causes, c)
	}
	sort.Slice(causes, func(i, j int) bool {
		if counts[causes[i]] != counts[causes[j]] {
			return counts[causes[i]] > counts[causes[j]]
		}
		return causes[i] < causes[j]
	})
	if len(causes) > n {
		causes = causes[:n]
	}
	return causes
}

var fixes = map[errors.ErrorKind][]string{
	errors.KindValidation: {
		"Add the unmatched values as synonyms in the catalog",
		"Review the fuzzy match threshold",
	},
	errors.KindProcessing: {
		"Shorten the extractor prompt and history",
		"Check the upstream model status and quotas",
	},
	errors.KindParse: {
		"Tighten the JSON output instructions in the prompt",
		"Enable the JSON response format on the model",
	},
	errors.KindDatabase: {
		"Check connection pool sizing and database health",
		"Add indexes for the slow catalog queries",
	},
	errors.KindNetwork: {
		"Check egress connectivity to the model endpoint",
	},
	errors.KindTimeout: {
		"Raise the extractor timeout or reduce max tokens",
	},
	errors.KindRateLimit: {
		"Lower requests_per_second or request a higher quota",
	},
	errors.KindAuthentication: {
		"Rotate and verify the model API key",
	},
	errors.KindNotFound: {
		"Add the missing services or zones to the catalog",
	},
}

func fixesFor(kind errors.ErrorKind) []string {
	if f, ok := fixes[kind]; ok {
		return append([]string(nil), f...)
	}
	return []string{"Inspect recent system errors in the logs"}
}

func performance(validations []models.ValidationLog, attempts []models.RetryAttempt, escalations []models.EscalationRecord) Performance {
	p := Performance{
		Validations:       len(validations),
		RetryAttempts:     len(attempts),
		Escalations:       len(escalations),
		EscalationReasons: map[string]int{},
	}
	if len(validations) > 0 {
		var valid, corrected int
		var confidence float64
		for _, v := range validations {
			if v.IsValid {
				valid++
			}
			if v.CorrectionCount > 0 {
				corrected++
			}
			confidence += v.Confidence
		}
		n := float64(len(validations))
		p.ValidRate = float64(valid) / n
		p.CorrectionRate = float64(corrected) / n
		p.AvgConfidence = confidence / n
	}
	if len(attempts) > 0 {
		var ok int
		for _, a := range attempts {
			if a.Success {
				ok++
			}
		}
		p.RetrySuccessRate = float64(ok) / float64(len(attempts))
	}
	for _, e := range escalations {
		p.EscalationReasons[e.Reason]++
	}
	return p
}

func keywordIssues(validations []models.ValidationLog) []KeywordIssue {
	type key struct{ field, value, kind string }
	counts := map[key]int{}
	for _, v := range validations {
		for _, kind := range v.ErrorKinds {
			switch models.ValidationErrorKind(kind) {
			case models.InvalidServiceCode, models.SemanticError:
				if v.ServiceCode != "" {
					counts[key{"service_code", v.ServiceCode, kind}]++
				}
			case models.InvalidZoneCode:
				if v.ZoneCode != "" {
					counts[key{"zone_code", v.ZoneCode, kind}]++
				}
			}
		}
	}

	issues := []KeywordIssue{}
	for k, n := range counts {
		if n >= KeywordThreshold {
			issues = append(issues, KeywordIssue{Field: k.field, Value: k.value, ErrorKind: k.kind, Count: n})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].Value < issues[j].Value
	})
	return issues
}

// score starts at BaseScore and deducts for frequent patterns, weak
// performance figures and open keyword issues. The result is within [0, 10].
func score(r *Report) float64 {
	s := BaseScore
	for _, p := range r.Patterns {
		if p.Frequency >= 4*PatternThreshold {
			s -= 1.0
		} else {
			s -= 0.5
		}
	}

	perf := r.Performance
	if perf.Validations > 0 {
		if perf.ValidRate < 0.8 {
			s -= 1.0
		}
		if perf.AvgConfidence < 0.7 {
			s -= 0.5
		}
	}
	if perf.RetryAttempts > 0 && perf.RetrySuccessRate < 0.5 {
		s -= 0.5
	}
	if perf.Escalations > 0 {
		s -= 0.5
	}

	s -= min(0.2*float64(len(r.KeywordIssues)), 1.0)

	if s < 0 {
		s = 0
	}
	if s > 10 {
		s = 10
	}
	return s
}

func actions(r *Report) []Action {
	var out []Action
	for _, p := range r.Patterns {
		fix := ""
		if len(p.SuggestedFixes) > 0 {
			fix = p.SuggestedFixes[0]
		}
		out = append(out, Action{
			Title:       "Reduce " + string(p.Kind),
			Description: fix,
			Impact:      impact(p.Severity),
			weight:      float64(p.Frequency) * float64(p.Severity+1),
		})
	}
	for _, k := range r.KeywordIssues {
		out = append(out, Action{
			Title:       fmt.Sprintf("Map %q in the catalog", k.Value),
			Description: fmt.Sprintf("The %s value was rejected %s (%s)", k.Field, times(k.Count), k.ErrorKind),
			Impact:      "medium",
			weight:      float64(k.Count) * 1.5,
		})
	}
	perf := r.Performance
	if perf.Validations > 0 && perf.ValidRate < 0.8 {
		out = append(out, Action{
			Title:       "Improve extraction accuracy",
			Description: "Fewer than 80% of extractions validated without errors",
			Impact:      "high",
			weight:      float64(perf.Validations) * (1 - perf.ValidRate),
		})
	}
	if perf.Escalations > 0 {
		out = append(out, Action{
			Title:       "Follow up escalated conversations",
			Description: fmt.Sprintf("%d conversations escalated in the window", perf.Escalations),
			Impact:      "high",
			weight:      float64(perf.Escalations) * 3,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].weight > out[j].weight })
	if len(out) > MaxActions {
		out = out[:MaxActions]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func impact(s errors.Severity) string {
	switch {
	case s >= errors.SeverityHigh:
		return "high"
	case s == errors.SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

func times(n int) string {
	if n == 1 {
		return "once"
	}
	return fmt.Sprintf("%d times", n)
}
