package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/usagedash/internal/models"
)

// CredentialStore loads and saves per-account session cookies.
// Load returns an error wrapping ErrNoSession when nothing is stored for the account.
type CredentialStore interface {
	Load(accountIndex int) (models.SessionCredential, error)
	Save(accountIndex int, cred models.SessionCredential) error
}

// CacheStore persists the latest aggregate snapshot.
// Read returns an empty aggregate (nil LastUpdated, no accounts) before the first write.
type CacheStore interface {
	Read() (*models.AggregateSnapshot, error)
	Write(snapshot *models.AggregateSnapshot) error
}

// HistoryStorage keeps per-run account results
type HistoryStorage interface {
	SaveRecords(ctx context.Context, records []models.HistoryRecord) error
	// ListRecords returns newest first. accountIndex 0 means every account.
	ListRecords(ctx context.Context, accountIndex int, limit int) ([]models.HistoryRecord, error)
	// PruneBefore deletes records older than cutoff and returns how many were removed
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
