package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// Service scrapes every configured account in index order and publishes one aggregate
type Service struct {
	accounts  []models.AccountConfig
	scraper   interfaces.AccountScraper
	cache     interfaces.CacheStore
	history   interfaces.HistoryStorage
	events    interfaces.EventService
	retention time.Duration
	logger    arbor.ILogger
	now       func() time.Time
}

// Option configures optional collaborators
type Option func(*Service)

// WithHistory records every run's results and prunes records older than retention (0 keeps everything)
func WithHistory(history interfaces.HistoryStorage, retention time.Duration) Option {
	return func(s *Service) {
		s.history = history
		s.retention = retention
	}
}

// WithEvents publishes run lifecycle events
func WithEvents(events interfaces.EventService) Option {
	return func(s *Service) {
		s.events = events
	}
}

// NewService creates the orchestrator. Accounts are copied and sorted by index.
func NewService(accounts []models.AccountConfig, scraper interfaces.AccountScraper, cache interfaces.CacheStore, logger arbor.ILogger, opts ...Option) *Service {
	sorted := append([]models.AccountConfig(nil), accounts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	s := &Service{
		accounts: sorted,
		scraper:  scraper,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accounts returns the configured accounts in scrape order
func (s *Service) Accounts() []models.AccountConfig {
	return append([]models.AccountConfig(nil), s.accounts...)
}

// RunAll scrapes accounts one at a time and writes the aggregate to the cache once.
// Per-account failures are part of the aggregate; only a cache write failure fails the run.
func (s *Service) RunAll(ctx context.Context) (*models.AggregateSnapshot, error) {
	runID := uuid.New().String()
	started := time.Now()

	s.logger.Info().
		Str("run_id", runID).
		Int("accounts", len(s.accounts)).
		Msg("🚀 Scrape run started")
	s.publish(ctx, interfaces.EventRunStarted, interfaces.RunEvent{RunID: runID, Accounts: len(s.accounts)})

	snapshots := make([]models.UsageSnapshot, 0, len(s.accounts))
	for _, account := range s.accounts {
		snapshots = append(snapshots, s.scraper.Scrape(ctx, account))
	}

	stamp := s.now()
	aggregate := &models.AggregateSnapshot{
		LastUpdated: &stamp,
		Accounts:    snapshots,
	}
	okCount := lo.CountBy(snapshots, func(snap models.UsageSnapshot) bool {
		return snap.Status == models.StatusOK
	})

	if err := s.cache.Write(aggregate); err != nil {
		s.logger.Error().
			Err(err).
			Str("run_id", runID).
			Msg("❌ Scrape run failed: cache write")
		s.publish(ctx, interfaces.EventRunCompleted, interfaces.RunEvent{RunID: runID, Accounts: len(snapshots), OK: okCount, Error: err.Error()})
		return nil, fmt.Errorf("failed to write cache: %w", err)
	}

	s.recordHistory(ctx, runID, aggregate)
	s.publish(ctx, interfaces.EventSnapshotUpdated, *aggregate)
	s.publish(ctx, interfaces.EventRunCompleted, interfaces.RunEvent{RunID: runID, Accounts: len(snapshots), OK: okCount})

	s.logger.Info().
		Str("run_id", runID).
		Int("ok", okCount).
		Int("accounts", len(snapshots)).
		Dur("duration", time.Since(started)).
		Msg("✅ Scrape run completed")

	return aggregate, nil
}

// recordHistory is best-effort: history problems never fail a run
func (s *Service) recordHistory(ctx context.Context, runID string, aggregate *models.AggregateSnapshot) {
	if s.history == nil {
		return
	}

	records := lo.Map(aggregate.Accounts, func(snap models.UsageSnapshot, _ int) models.HistoryRecord {
		return NewHistoryRecord(runID, snap, *aggregate.LastUpdated)
	})
	if err := s.history.SaveRecords(ctx, records); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run history")
		return
	}

	if s.retention > 0 {
		removed, err := s.history.PruneBefore(ctx, aggregate.LastUpdated.Add(-s.retention))
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to prune run history")
		} else if removed > 0 {
			s.logger.Debug().Int("removed", removed).Msg("Pruned run history")
		}
	}
}

// NewHistoryRecord flattens one account snapshot for the history store
func NewHistoryRecord(runID string, snap models.UsageSnapshot, recordedAt time.Time) models.HistoryRecord {
	record := models.HistoryRecord{
		ID:           uuid.New().String(),
		RunID:        runID,
		AccountIndex: snap.AccountIndex,
		AccountName:  snap.AccountName,
		Status:       snap.Status,
		RecordedAt:   recordedAt,
	}
	if snap.Error != nil {
		record.Error = *snap.Error
	}
	if snap.Session != nil {
		record.SessionPercent = snap.Session.Percent
	}
	if snap.Weekly != nil {
		record.WeeklyPercent = snap.Weekly.Percent
	}
	if snap.Extra != nil {
		record.ExtraSpent = snap.Extra.Spent
		record.ExtraLimit = snap.Extra.Limit
	}
	return record
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

var _ interfaces.Orchestrator = (*Service)(nil)
