package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// HistoryStorage keeps one record per account per orchestrator run
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) *HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRecords upserts records keyed by ID
func (s *HistoryStorage) SaveRecords(ctx context.Context, records []models.HistoryRecord) error {
	for i := range records {
		record := records[i]
		if record.ID == "" {
			return fmt.Errorf("history record for account %d has no id", record.AccountIndex)
		}
		if err := s.db.Store().Upsert(record.ID, &record); err != nil {
			return fmt.Errorf("failed to save history record: %w", err)
		}
	}
	return nil
}

// ListRecords returns the newest records first. accountIndex 0 lists every account;
// limit <= 0 means no limit.
func (s *HistoryStorage) ListRecords(ctx context.Context, accountIndex int, limit int) ([]models.HistoryRecord, error) {
	query := badgerhold.Where("ID").Ne("")
	if accountIndex > 0 {
		query = badgerhold.Where("AccountIndex").Eq(accountIndex)
	}
	query = query.SortBy("RecordedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.HistoryRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	return records, nil
}

// PruneBefore removes records recorded before cutoff
func (s *HistoryStorage) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("RecordedAt").Lt(cutoff)

	count, err := s.db.Store().Count(&models.HistoryRecord{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired history records: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.HistoryRecord{}, query); err != nil {
		return 0, fmt.Errorf("failed to prune history records: %w", err)
	}

	if rewritten, err := s.db.CollectGarbage(0.5); err != nil {
		s.logger.Warn().Err(err).Msg("History garbage collection failed")
	} else if rewritten > 0 {
		s.logger.Debug().Int("files", rewritten).Msg("History value log compacted")
	}
	return int(count), nil
}

// Close closes the underlying database
func (s *HistoryStorage) Close() error {
	return s.db.Close()
}

var _ interfaces.HistoryStorage = (*HistoryStorage)(nil)
