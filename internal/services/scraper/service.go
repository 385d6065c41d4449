package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// Config holds pipeline options
type Config struct {
	ExcerptLength      int  // runes of page text kept on the snapshot
	RefreshCredentials bool // save the browser cookie jar after a successful scrape
}

// NewConfig picks the pipeline settings out of the scraper config
func NewConfig(cfg common.ScraperConfig) Config {
	return Config{
		ExcerptLength:      cfg.ExcerptLength,
		RefreshCredentials: cfg.RefreshCredentials,
	}
}

// Service runs driver, extractor and parser for one account and folds every
// outcome into a snapshot
type Service struct {
	driver    interfaces.SessionDriver
	extractor interfaces.SignalExtractor
	parser    interfaces.UsageParser
	events    interfaces.EventService
	config    Config
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates the pipeline. events may be nil.
func NewService(
	driver interfaces.SessionDriver,
	extractor interfaces.SignalExtractor,
	parser interfaces.UsageParser,
	events interfaces.EventService,
	config Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		driver:    driver,
		extractor: extractor,
		parser:    parser,
		events:    events,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Scrape never fails: driver and extractor errors, and panics, become a
// non-ok status on the returned snapshot.
func (s *Service) Scrape(ctx context.Context, account models.AccountConfig) (snapshot models.UsageSnapshot) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Int("account", account.Index).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic while scraping account")
			snapshot = s.failure(account, fmt.Errorf("internal error: %v", r))
		}
		snapshot.DurationMs = time.Since(started).Milliseconds()
		s.publish(ctx, snapshot)
	}()

	page, err := s.driver.Open(ctx, account)
	if err != nil {
		return s.failure(account, err)
	}
	defer page.Close()

	signals, err := s.extractor.Extract(ctx, page)
	if err != nil {
		return s.failure(account, err)
	}

	data := s.parser.Parse(signals)
	s.logRuleMatches(account, signals)

	if s.config.RefreshCredentials {
		s.driver.RefreshCredential(ctx, page, account)
	}

	settled := signals.RenderSettled
	snapshot = models.UsageSnapshot{
		AccountIndex:  account.Index,
		AccountName:   account.DisplayName,
		Status:        models.StatusOK,
		Session:       &data.Session,
		Weekly:        &data.Weekly,
		Extra:         &data.Extra,
		LastUpdated:   s.now(),
		RawText:       excerpt(signals.FullText, s.config.ExcerptLength),
		RenderSettled: &settled,
	}

	s.logger.Info().
		Int("account", account.Index).
		Str("name", account.DisplayName).
		Bool("settled", settled).
		Str("session", formatPercent(data.Session.Percent)).
		Str("weekly", formatPercent(data.Weekly.Percent)).
		Msg("✅ Account scraped")

	return snapshot
}

// logRuleMatches records the winning parser rule per field at debug level
func (s *Service) logRuleMatches(account models.AccountConfig, signals *models.RawPageSignals) {
	explainer, ok := s.parser.(interfaces.UsageExplainer)
	if !ok {
		return
	}
	rules := lo.Map(explainer.Explain(signals), func(m models.RuleMatch, _ int) string {
		return m.Field + "=" + m.Rule
	})
	s.logger.Debug().
		Int("account", account.Index).
		Strs("rules", rules).
		Msg("Parser rule matches")
}

// failure classifies err into a status and builds the non-ok snapshot
func (s *Service) failure(account models.AccountConfig, err error) models.UsageSnapshot {
	status, message := Classify(err)

	event := s.logger.Warn()
	if status == models.StatusError {
		event = s.logger.Error()
	}
	event.Int("account", account.Index).
		Str("status", string(status)).
		Str("error", message).
		Msg("Account scrape did not complete")

	return models.UsageSnapshot{
		AccountIndex: account.Index,
		AccountName:  account.DisplayName,
		Status:       status,
		Error:        &message,
		LastUpdated:  s.now(),
	}
}

// Classify maps a pipeline error to a status and a user-facing message
func Classify(err error) (models.ScrapeStatus, string) {
	switch {
	case errors.Is(err, interfaces.ErrNoSession):
		return models.StatusNoSession, trimSentinel(err, interfaces.ErrNoSession)
	case errors.Is(err, interfaces.ErrSessionExpired):
		return models.StatusSessionExpired, trimSentinel(err, interfaces.ErrSessionExpired)
	default:
		return models.StatusError, err.Error()
	}
}

// trimSentinel drops the "<sentinel>: " prefix the stores and driver add
func trimSentinel(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// excerpt keeps the first n runes of text
func excerpt(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func formatPercent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g%%", *p)
}

func (s *Service) publish(ctx context.Context, snapshot models.UsageSnapshot) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventAccountScraped, Payload: snapshot}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish account_scraped event")
	}
}

var _ interfaces.AccountScraper = (*Service)(nil)
