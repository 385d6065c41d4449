package parser

import (
	"strconv"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// Parser turns raw page signals into usage fields. It holds no state and never
// reads the clock, so identical signals always give identical output.
type Parser struct{}

// NewParser creates a parser over the package rule tables
func NewParser() *Parser {
	return &Parser{}
}

// Parse applies each field's rule table. Unmatched fields stay nil.
// Percentages are passed through unclamped.
func (p *Parser) Parse(signals *models.RawPageSignals) models.UsageData {
	data := models.UsageData{
		Session: models.SessionUsage{Label: models.LabelSession},
		Weekly:  models.WeeklyUsage{Label: models.LabelWeekly},
		Extra:   models.ExtraUsage{Label: models.LabelExtra},
	}
	if signals == nil {
		return data
	}

	data.Session.Percent = firstPercent(signals, SessionPercentRules)
	data.Session.ResetIn = firstString(signals, SessionResetRules)

	data.Weekly.Percent = firstPercent(signals, WeeklyPercentRules)
	data.Weekly.ResetOn = firstString(signals, WeeklyResetRules)

	data.Extra.Spent = firstString(signals, ExtraSpentRules)
	data.Extra.Limit = firstString(signals, ExtraLimitRules)
	data.Extra.ResetDate = firstString(signals, ExtraResetDateRules)

	return data
}

// Explain lists the winning rule per field, for diagnostics
func (p *Parser) Explain(signals *models.RawPageSignals) []models.RuleMatch {
	if signals == nil {
		return nil
	}
	tables := []struct {
		field string
		rules []Rule
	}{
		{"session.percent", SessionPercentRules},
		{"session.resetIn", SessionResetRules},
		{"weekly.percent", WeeklyPercentRules},
		{"weekly.resetOn", WeeklyResetRules},
		{"extra.spent", ExtraSpentRules},
		{"extra.limit", ExtraLimitRules},
		{"extra.resetDate", ExtraResetDateRules},
	}

	var matches []models.RuleMatch
	for _, table := range tables {
		for _, rule := range table.rules {
			if v, ok := rule.Apply(signals); ok {
				matches = append(matches, models.RuleMatch{Field: table.field, Rule: rule.Name, Value: v})
				break
			}
		}
	}
	return matches
}

func firstString(signals *models.RawPageSignals, rules []Rule) *string {
	for _, rule := range rules {
		if v, ok := rule.Apply(signals); ok {
			return &v
		}
	}
	return nil
}

// firstPercent skips hits that do not parse as a number and tries the next rule
func firstPercent(signals *models.RawPageSignals, rules []Rule) *float64 {
	for _, rule := range rules {
		v, ok := rule.Apply(signals)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		return &f
	}
	return nil
}

var (
	_ interfaces.UsageParser    = (*Parser)(nil)
	_ interfaces.UsageExplainer = (*Parser)(nil)
)
