package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// CacheStore keeps the latest aggregate snapshot in a single JSON file
type CacheStore struct {
	path   string
	logger arbor.ILogger
	mu     sync.Mutex // serialises writers; readers rely on rename atomicity
}

// NewCacheStore creates a cache store for the given file path
func NewCacheStore(path string, logger arbor.ILogger) *CacheStore {
	return &CacheStore{path: path, logger: logger}
}

// Path returns the cache file location
func (s *CacheStore) Path() string {
	return s.path
}

// Read returns the cached aggregate, or an empty one if nothing has been written yet
func (s *CacheStore) Read() (*models.AggregateSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.AggregateSnapshot{Accounts: []models.UsageSnapshot{}}, nil
		}
		return nil, fmt.Errorf("failed to read cache %s: %w", s.path, err)
	}

	var snapshot models.AggregateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse cache %s: %w", s.path, err)
	}
	if snapshot.Accounts == nil {
		snapshot.Accounts = []models.UsageSnapshot{}
	}
	return &snapshot, nil
}

// Write replaces the cache file wholesale
func (s *CacheStore) Write(snapshot *models.AggregateSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", s.path, err)
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("accounts", len(snapshot.Accounts)).
		Msg("Cache snapshot written")

	return nil
}

var _ interfaces.CacheStore = (*CacheStore)(nil)
