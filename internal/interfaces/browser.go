package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/usagedash/internal/models"
)

// BrowserLauncher starts one isolated browser for one account scrape
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserPage, error)
}

// BrowserPage is a single open page in a launched browser.
// Close releases the whole browser and is safe to call more than once.
type BrowserPage interface {
	SetCookies(ctx context.Context, cookies models.SessionCredential) error
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	// Text returns document.body.innerText
	Text(ctx context.Context) (string, error)
	// HTML returns the rendered document's outer HTML
	HTML(ctx context.Context) (string, error)
	// WaitUntil polls predicate until it holds or timeout elapses.
	// It returns false without error on timeout.
	WaitUntil(ctx context.Context, predicate string, interval, timeout time.Duration) (bool, error)
	Cookies(ctx context.Context) (models.SessionCredential, error)
	Close() error
}

// SignalExtractor turns an authenticated, loaded page into raw signals
type SignalExtractor interface {
	Extract(ctx context.Context, page BrowserPage) (*models.RawPageSignals, error)
}

// UsageParser interprets raw signals. Implementations must be pure.
type UsageParser interface {
	Parse(signals *models.RawPageSignals) models.UsageData
}

// UsageExplainer is implemented by parsers that can report which rule matched each field
type UsageExplainer interface {
	Explain(signals *models.RawPageSignals) []models.RuleMatch
}

// SessionDriver opens an authenticated page for one account.
// Open closes the page itself on every error; on success the caller must Close it.
type SessionDriver interface {
	Open(ctx context.Context, account models.AccountConfig) (BrowserPage, error)
	RefreshCredential(ctx context.Context, page BrowserPage, account models.AccountConfig)
}
