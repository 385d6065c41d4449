package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// LauncherConfig controls how Chrome is started
type LauncherConfig struct {
	Headless       bool
	NoSandbox      bool
	UserAgent      string
	StartupTimeout time.Duration
}

// NewLauncherConfig picks the launch settings out of the scraper config
func NewLauncherConfig(cfg common.ScraperConfig) LauncherConfig {
	return LauncherConfig{
		Headless:       cfg.Headless,
		NoSandbox:      cfg.NoSandbox,
		UserAgent:      cfg.UserAgent,
		StartupTimeout: 30 * time.Second,
	}
}

// ChromeLauncher starts a fresh, isolated Chrome per Launch call
type ChromeLauncher struct {
	config LauncherConfig
	logger arbor.ILogger
}

// NewChromeLauncher creates a launcher
func NewChromeLauncher(config LauncherConfig, logger arbor.ILogger) *ChromeLauncher {
	return &ChromeLauncher{config: config, logger: logger}
}

// Launch starts Chrome and opens one tab. The caller owns the returned page and must Close it.
func (l *ChromeLauncher) Launch(ctx context.Context) (interfaces.BrowserPage, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 800),
	)
	if l.config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(l.config.UserAgent))
	}

	// Not derived from ctx: the browser lifetime is bounded by Close, not by the caller's request.
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocatorCtx)

	page := &chromePage{
		ctx:             tabCtx,
		tabCancel:       tabCancel,
		allocatorCancel: allocatorCancel,
		logger:          l.logger,
	}

	// The first Run starts the browser and binds its lifetime to tabCtx, so it must not carry a timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if err := page.run(ctx, l.config.StartupTimeout, network.Enable()); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}

	l.logger.Debug().Bool("headless", l.config.Headless).Msg("Browser launched")
	return page, nil
}

// chromePage implements interfaces.BrowserPage over a chromedp tab
type chromePage struct {
	ctx             context.Context
	tabCancel       context.CancelFunc
	allocatorCancel context.CancelFunc
	closeOnce       sync.Once
	logger          arbor.ILogger
}

// run executes actions on the tab, bounded by timeout (0 = none) and by the caller's ctx
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) SetCookies(ctx context.Context, cookies models.SessionCredential) error {
	params := ToCookieParams(cookies, time.Now())

	return p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		failed := 0
		for _, c := range params {
			if err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				WithExpires(c.Expires).
				Do(ctx); err != nil {
				failed++
				p.logger.Warn().Err(err).Str("cookie", c.Name).Str("domain", c.Domain).Msg("Failed to set cookie")
			}
		}
		if failed == len(params) && failed > 0 {
			return fmt.Errorf("none of %d cookies could be set", failed)
		}
		return nil
	}))
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, 0, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (p *chromePage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, 0, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) WaitUntil(ctx context.Context, predicate string, interval, timeout time.Duration) (bool, error) {
	var ok bool
	err := p.run(ctx, 0, chromedp.Poll(predicate, &ok,
		chromedp.WithPollingInterval(interval),
		chromedp.WithPollingTimeout(timeout),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (p *chromePage) Cookies(ctx context.Context) (models.SessionCredential, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return FromNetworkCookies(cookies), nil
}

// Close shuts the tab and the browser process. Later calls are no-ops.
func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.tabCancel()
		p.allocatorCancel()
		p.logger.Debug().Msg("Browser closed")
	})
	return nil
}

var _ interfaces.BrowserLauncher = (*ChromeLauncher)(nil)
