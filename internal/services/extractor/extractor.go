package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

const (
	headingSelector  = `h1, h2, h3, h4, h5, h6, [class*="heading"], [class*="title"]`
	progressSelector = `[role="progressbar"], progress, [class*="progress"], [aria-valuenow][aria-valuemax]`
	siblingsPerHead  = 5
)

var (
	percentSignal = regexp.MustCompile(`\d+(?:\.\d+)?%`)
	dollarSignal  = regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`)
	resetSignal   = regexp.MustCompile(`(?i)resets?\s+(?:in\s+)?(?:\d+\s+(?:hour|minute|day|week)s?|on\s+\w+)`)
	timeSignal    = regexp.MustCompile(`(?i)(?:resets?\s+(?:in\s+)?)?(?:\d+h\s*\d+m|\d+\s+hours?\s+\d+\s+minutes?|\d+\s+days?)`)
)

// Config holds the readiness wait settings
type Config struct {
	ReadyTimeout    time.Duration
	ReadyInterval   time.Duration
	ReadyMinChars   int
	LoadingMarker   string
	LateRenderDelay time.Duration
}

// NewConfig picks the extractor settings out of the scraper config
func NewConfig(cfg common.ScraperConfig) Config {
	return Config{
		ReadyTimeout:    cfg.ReadyTimeout.Std(),
		ReadyInterval:   cfg.ReadyInterval.Std(),
		ReadyMinChars:   cfg.ReadyMinChars,
		LoadingMarker:   cfg.LoadingMarker,
		LateRenderDelay: cfg.LateRenderDelay.Std(),
	}
}

// Extractor collects unclassified usage signals from a loaded page
type Extractor struct {
	config Config
	logger arbor.ILogger
}

// NewExtractor creates an extractor
func NewExtractor(config Config, logger arbor.ILogger) *Extractor {
	return &Extractor{config: config, logger: logger}
}

// Extract waits for the page to look rendered, then pulls text and DOM signals.
// A readiness timeout is not an error; it is reported as RenderSettled=false.
func (e *Extractor) Extract(ctx context.Context, page interfaces.BrowserPage) (*models.RawPageSignals, error) {
	settled, err := page.WaitUntil(ctx, e.readyPredicate(), e.config.ReadyInterval, e.config.ReadyTimeout)
	if err != nil {
		return nil, fmt.Errorf("readiness wait failed: %w", err)
	}
	if !settled {
		e.logger.Warn().
			Dur("timeout", e.config.ReadyTimeout).
			Msg("Page did not settle before timeout, extracting anyway")
	}

	if err := common.SleepContext(ctx, e.config.LateRenderDelay); err != nil {
		return nil, err
	}

	text, err := page.Text(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page text: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}

	signals, err := ExtractFromContent(text, html)
	if err != nil {
		return nil, err
	}
	signals.RenderSettled = settled

	e.logger.Debug().
		Int("text_len", len(signals.FullText)).
		Int("percentages", len(signals.Percentages)).
		Int("dollars", len(signals.DollarAmounts)).
		Int("sections", len(signals.Sections)).
		Int("progress", len(signals.ProgressIndicators)).
		Bool("settled", settled).
		Msg("Extracted page signals")

	return signals, nil
}

// readyPredicate is evaluated in the page until it returns true
func (e *Extractor) readyPredicate() string {
	marker, _ := json.Marshal(e.config.LoadingMarker)
	return fmt.Sprintf(`(() => {
	const text = document.body ? document.body.innerText : "";
	return text.length > %d && (%s === "" || !text.includes(%s));
})()`, e.config.ReadyMinChars, marker, marker)
}

// ExtractFromContent builds signals from rendered text and HTML. RenderSettled is left false.
func ExtractFromContent(text, html string) (*models.RawPageSignals, error) {
	signals := &models.RawPageSignals{
		FullText:      text,
		Percentages:   matchAll(percentSignal, text),
		DollarAmounts: matchAll(dollarSignal, text),
		ResetPhrases:  matchAll(resetSignal, text),
		TimePhrases:   matchAll(timeSignal, text),
	}

	if strings.TrimSpace(html) == "" {
		signals.Sections = []models.Section{}
		signals.ProgressIndicators = []models.ProgressIndicator{}
		return signals, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}

	signals.Sections = sections(doc)
	signals.ProgressIndicators = progressIndicators(doc)
	return signals, nil
}

func matchAll(pattern *regexp.Regexp, text string) []string {
	return lo.Map(pattern.FindAllString(text, -1), func(m string, _ int) string {
		return strings.TrimSpace(m)
	})
}

// sections pairs each heading-like element with up to five following siblings
func sections(doc *goquery.Document) []models.Section {
	result := []models.Section{}
	doc.Find(headingSelector).Each(func(_ int, heading *goquery.Selection) {
		text := strings.TrimSpace(heading.Text())
		if text == "" {
			return
		}

		parts := make([]string, 0, siblingsPerHead)
		next := heading.Next()
		for i := 0; i < siblingsPerHead && next.Length() > 0; i++ {
			parts = append(parts, strings.TrimSpace(next.Text()))
			next = next.Next()
		}

		result = append(result, models.Section{
			Heading: text,
			Content: strings.Join(parts, " | "),
		})
	})
	return result
}

func progressIndicators(doc *goquery.Document) []models.ProgressIndicator {
	result := []models.ProgressIndicator{}
	doc.Find(progressSelector).Each(func(_ int, el *goquery.Selection) {
		result = append(result, models.ProgressIndicator{
			Value: firstAttr(el, "aria-valuenow", "value"),
			Max:   firstAttr(el, "aria-valuemax", "max"),
			Label: firstAttr(el, "aria-label", "aria-labelledby"),
			Text:  strings.TrimSpace(el.Text()),
		})
	})
	return result
}

// firstAttr returns the first non-empty attribute value
func firstAttr(el *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := el.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

var _ interfaces.SignalExtractor = (*Extractor)(nil)
