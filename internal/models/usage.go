package models

import "time"

// ScrapeStatus is the outcome of scraping one account
type ScrapeStatus string

const (
	StatusOK             ScrapeStatus = "ok"
	StatusNoSession      ScrapeStatus = "no_session"
	StatusSessionExpired ScrapeStatus = "session_expired"
	StatusError          ScrapeStatus = "error"
)

// SessionUsage is the rolling short-window quota
type SessionUsage struct {
	Percent *float64 `json:"percent"`
	ResetIn *string  `json:"resetIn"`
	Label   string   `json:"label"`
}

// WeeklyUsage is the weekly all-models quota
type WeeklyUsage struct {
	Percent *float64 `json:"percent"`
	ResetOn *string  `json:"resetOn"`
	Label   string   `json:"label"`
}

// ExtraUsage is pay-as-you-go billing beyond the included quota.
// Balance is always null today; the page does not show one.
type ExtraUsage struct {
	Spent     *string `json:"spent"`
	Limit     *string `json:"limit"`
	Balance   *string `json:"balance"`
	ResetDate *string `json:"resetDate"`
	Label     string  `json:"label"`
}

// Display labels attached to every parsed section
const (
	LabelSession = "Current Session"
	LabelWeekly  = "Weekly Limit"
	LabelExtra   = "Extra Usage"
)

// UsageData is the parser's output. Every field is independently nullable.
type UsageData struct {
	Session SessionUsage `json:"session"`
	Weekly  WeeklyUsage  `json:"weekly"`
	Extra   ExtraUsage   `json:"extra"`
}

// UsageSnapshot is the published per-account result. Session, Weekly and Extra
// are only set when Status is ok.
type UsageSnapshot struct {
	AccountIndex int           `json:"accountIndex"`
	AccountName  string        `json:"accountName"`
	Status       ScrapeStatus  `json:"status"`
	Error        *string       `json:"error,omitempty"`
	Session      *SessionUsage `json:"session,omitempty"`
	Weekly       *WeeklyUsage  `json:"weekly,omitempty"`
	Extra        *ExtraUsage   `json:"extra,omitempty"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	RawText      string        `json:"rawText,omitempty"`

	RenderSettled *bool `json:"renderSettled,omitempty"`
	DurationMs    int64 `json:"durationMs"`
}

// AggregateSnapshot is the whole cache file. LastUpdated is nil before the first run.
type AggregateSnapshot struct {
	LastUpdated *time.Time      `json:"lastUpdated"`
	Accounts    []UsageSnapshot `json:"accounts"`
}

// UsageResponse is the aggregate plus live scheduler state, as served to clients
type UsageResponse struct {
	LastUpdated *time.Time      `json:"lastUpdated"`
	Accounts    []UsageSnapshot `json:"accounts"`
	NextRefresh *time.Time      `json:"nextRefresh"`
	IsScraping  bool            `json:"isScraping"`
}

// SchedulerStatus is the refresh scheduler's observable state
type SchedulerStatus struct {
	IsScraping  bool       `json:"isScraping"`
	NextRefresh *time.Time `json:"nextRefresh"`
	Uptime      float64    `json:"uptime"` // seconds since process start
}
