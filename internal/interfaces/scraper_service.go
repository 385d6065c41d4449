package interfaces

import (
	"context"

	"github.com/ternarybob/usagedash/internal/models"
)

// AccountScraper runs the full pipeline for one account. It never returns an error;
// every failure is folded into the snapshot status.
type AccountScraper interface {
	Scrape(ctx context.Context, account models.AccountConfig) models.UsageSnapshot
}

// Orchestrator scrapes every configured account and writes one aggregate
type Orchestrator interface {
	RunAll(ctx context.Context) (*models.AggregateSnapshot, error)
}

// SchedulerService owns the refresh cadence and the single-flight guard
type SchedulerService interface {
	Start() error
	Stop() error
	// TriggerRefresh starts a run in the background unless one is active
	TriggerRefresh() (bool, string)
	Status() models.SchedulerStatus
}
