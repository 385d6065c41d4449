package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// DriverConfig holds the navigation and liveness-check settings
type DriverConfig struct {
	TargetURL         string
	ExpectedPath      string
	LoggedOutMarker   string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// NewDriverConfig picks the driver settings out of the scraper config
func NewDriverConfig(cfg common.ScraperConfig) DriverConfig {
	return DriverConfig{
		TargetURL:         cfg.TargetURL,
		ExpectedPath:      cfg.ExpectedPath,
		LoggedOutMarker:   cfg.LoggedOutMarker,
		NavigationTimeout: cfg.NavigationTimeout.Std(),
		SettleDelay:       cfg.SettleDelay.Std(),
	}
}

// Driver opens an authenticated usage page for one account
type Driver struct {
	credentials interfaces.CredentialStore
	launcher    interfaces.BrowserLauncher
	config      DriverConfig
	logger      arbor.ILogger
}

// NewDriver creates a driver
func NewDriver(credentials interfaces.CredentialStore, launcher interfaces.BrowserLauncher, config DriverConfig, logger arbor.ILogger) *Driver {
	return &Driver{
		credentials: credentials,
		launcher:    launcher,
		config:      config,
		logger:      logger,
	}
}

// Open loads the account's cookies, launches a browser, navigates to the target and
// checks twice that the session is live: right after navigation and again after the
// settle delay. On success the caller owns the page and must Close it. On any error
// the page has already been closed, and no browser is launched at all when the
// account has no stored session.
func (d *Driver) Open(ctx context.Context, account models.AccountConfig) (interfaces.BrowserPage, error) {
	cred, err := d.credentials.Load(account.Index)
	if err != nil {
		return nil, err
	}

	page, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	handedOff := false
	defer func() {
		if !handedOff {
			page.Close()
		}
	}()

	if err := page.SetCookies(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}

	d.logger.Debug().
		Int("account", account.Index).
		Int("cookies", len(cred)).
		Str("url", d.config.TargetURL).
		Msg("Navigating to usage page")

	if err := page.Navigate(ctx, d.config.TargetURL, d.config.NavigationTimeout); err != nil {
		return nil, err
	}

	current, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page url: %w", err)
	}
	if !strings.Contains(current, d.config.ExpectedPath) {
		return nil, fmt.Errorf("%w: redirected to %s, re-run login for account %d",
			interfaces.ErrSessionExpired, current, account.Index)
	}

	if err := common.SleepContext(ctx, d.config.SettleDelay); err != nil {
		return nil, err
	}

	current, err = page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page url: %w", err)
	}
	text, err := page.Text(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page text: %w", err)
	}
	loggedOut := d.config.LoggedOutMarker != "" && strings.Contains(text, d.config.LoggedOutMarker)
	if !strings.Contains(current, d.config.ExpectedPath) || loggedOut {
		return nil, fmt.Errorf("%w: session invalid after render (login page shown), re-run login for account %d",
			interfaces.ErrSessionExpired, account.Index)
	}

	handedOff = true
	return page, nil
}

// RefreshCredential writes the browser's current cookie jar back to the store.
// Failures are logged and swallowed.
func (d *Driver) RefreshCredential(ctx context.Context, page interfaces.BrowserPage, account models.AccountConfig) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Int("account", account.Index).Msg("Failed to read refreshed cookies")
		return
	}
	if len(cookies) == 0 {
		return
	}
	if err := d.credentials.Save(account.Index, cookies); err != nil {
		d.logger.Warn().Err(err).Int("account", account.Index).Msg("Failed to save refreshed cookies")
		return
	}
	d.logger.Debug().Int("account", account.Index).Int("cookies", len(cookies)).Msg("Refreshed session cookies saved")
}

var _ interfaces.SessionDriver = (*Driver)(nil)
