package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/usagedash/internal/models"
)

// source selects which part of the raw signals a rule reads
type source int

const (
	// fromText applies pattern to the full text, first occurrence
	fromText source = iota
	// fromTextNth applies pattern to the full text and takes occurrence nth
	fromTextNth
	// fromSections applies pattern to "heading content" of sections whose heading matches scope
	fromSections
	// fromProgress computes a percent from progress indicators whose label or text matches scope
	fromProgress
	// fromResetPhrases takes reset phrase signal nth
	fromResetPhrases
	// fromTimePhrases takes relative-time signal nth
	fromTimePhrases
	// fromDollarAmounts takes currency signal nth
	fromDollarAmounts
)

// Rule is one named heuristic. Rules for a field are tried in order and the first hit wins.
type Rule struct {
	Name    string
	from    source
	pattern *regexp.Regexp
	group   int // capture group to return, 0 for the whole match
	scope   *regexp.Regexp
	nth     int
}

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// Field rule tables. Order matters.
var (
	SessionPercentRules = []Rule{
		{Name: "current-session-text", from: fromText, pattern: regexp.MustCompile(`(?i)current\s+session[^%]*?(\d+(?:\.\d+)?)\s*%`), group: 1},
		{Name: "session-text", from: fromText, pattern: regexp.MustCompile(`(?i)session[^%]{0,200}?(\d+(?:\.\d+)?)\s*%`), group: 1},
		{Name: "session-section", from: fromSections, scope: regexp.MustCompile(`(?i)session|current`), pattern: percentPattern, group: 1},
		{Name: "session-progress", from: fromProgress, scope: regexp.MustCompile(`(?i)session|current`)},
	}

	WeeklyPercentRules = []Rule{
		{Name: "all-models-text", from: fromText, pattern: regexp.MustCompile(`(?i)All models[\s\S]{0,200}?(\d+(?:\.\d+)?)\s*%`), group: 1},
		{Name: "weekly-text", from: fromText, pattern: regexp.MustCompile(`(?i)weekly[^%]*?(\d+(?:\.\d+)?)\s*%`), group: 1},
		{Name: "week-text", from: fromText, pattern: regexp.MustCompile(`(?i)week[^%]{0,200}?(\d+(?:\.\d+)?)\s*%`), group: 1},
		{Name: "week-section", from: fromSections, scope: regexp.MustCompile(`(?i)week`), pattern: percentPattern, group: 1},
		{Name: "week-progress", from: fromProgress, scope: regexp.MustCompile(`(?i)week`)},
	}

	SessionResetRules = []Rule{
		{Name: "resets-in-text", from: fromText, pattern: regexp.MustCompile(`(?i)Resets in [^\n]+`)},
		{Name: "first-reset-phrase", from: fromResetPhrases, nth: 0},
		{Name: "first-time-phrase", from: fromTimePhrases, nth: 0},
	}

	WeeklyResetRules = []Rule{
		{Name: "resets-weekday-text", from: fromText, pattern: regexp.MustCompile(`(?i)Resets ((?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[^\n]*)`), group: 1},
		{Name: "second-reset-phrase", from: fromResetPhrases, nth: 1},
	}

	ExtraSpentRules = []Rule{
		{Name: "first-dollar-text", from: fromTextNth, pattern: dollarPattern, nth: 0},
		{Name: "first-dollar-signal", from: fromDollarAmounts, nth: 0},
	}

	ExtraLimitRules = []Rule{
		{Name: "second-dollar-text", from: fromTextNth, pattern: dollarPattern, nth: 1},
		{Name: "second-dollar-signal", from: fromDollarAmounts, nth: 1},
	}

	ExtraResetDateRules = []Rule{
		{Name: "date-before-label", from: fromText, pattern: regexp.MustCompile(`(?i)([A-Z][a-z]+ \d+)\s*\nReset date`), group: 1},
		{Name: "date-after-label", from: fromText, pattern: regexp.MustCompile(`(?i)Reset date\s*\n([^\n]+)`), group: 1},
	}
)

var dollarPattern = regexp.MustCompile(`\$[\d,]+(?:\.\d{1,2})?`)

// Apply runs the rule against signals and returns the trimmed value on a hit
func (r Rule) Apply(signals *models.RawPageSignals) (string, bool) {
	switch r.from {
	case fromText:
		return submatch(r.pattern, signals.FullText, r.group)

	case fromTextNth:
		matches := r.pattern.FindAllString(signals.FullText, r.nth+2)
		return nth(matches, r.nth)

	case fromSections:
		for _, section := range signals.Sections {
			if !r.scope.MatchString(section.Heading) {
				continue
			}
			if v, ok := submatch(r.pattern, section.Heading+" "+section.Content, r.group); ok {
				return v, true
			}
		}

	case fromProgress:
		for _, indicator := range signals.ProgressIndicators {
			if !r.scope.MatchString(indicator.Label) && !r.scope.MatchString(indicator.Text) {
				continue
			}
			if v, ok := progressPercent(indicator); ok {
				return v, true
			}
		}

	case fromResetPhrases:
		return nth(signals.ResetPhrases, r.nth)

	case fromTimePhrases:
		return nth(signals.TimePhrases, r.nth)

	case fromDollarAmounts:
		return nth(signals.DollarAmounts, r.nth)
	}

	return "", false
}

func submatch(pattern *regexp.Regexp, text string, group int) (string, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil || group >= len(m) {
		return "", false
	}
	v := strings.TrimSpace(m[group])
	return v, v != ""
}

func nth(values []string, i int) (string, bool) {
	if i < 0 || i >= len(values) {
		return "", false
	}
	v := strings.TrimSpace(values[i])
	return v, v != ""
}

// progressPercent scales value against max. A missing or zero max means value is already a percent.
func progressPercent(indicator models.ProgressIndicator) (string, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(indicator.Value), 64)
	if err != nil {
		return "", false
	}
	if limit, err := strconv.ParseFloat(strings.TrimSpace(indicator.Max), 64); err == nil && limit > 0 {
		value = value * 100 / limit
	}
	return strconv.FormatFloat(value, 'f', -1, 64), true
}
