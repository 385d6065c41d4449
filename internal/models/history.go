package models

import "time"

// HistoryRecord is one account's result from one orchestrator run
type HistoryRecord struct {
	ID             string       `json:"id" badgerhold:"key"`
	RunID          string       `json:"run_id" badgerhold:"index"`
	AccountIndex   int          `json:"account_index" badgerhold:"index"`
	AccountName    string       `json:"account_name"`
	Status         ScrapeStatus `json:"status"`
	SessionPercent *float64     `json:"session_percent,omitempty"`
	WeeklyPercent  *float64     `json:"weekly_percent,omitempty"`
	ExtraSpent     *string      `json:"extra_spent,omitempty"`
	ExtraLimit     *string      `json:"extra_limit,omitempty"`
	Error          string       `json:"error,omitempty"`
	RecordedAt     time.Time    `json:"recorded_at"`
}
