package app

import (
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/handlers"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/services/browser"
	"github.com/ternarybob/usagedash/internal/services/events"
	"github.com/ternarybob/usagedash/internal/services/extractor"
	"github.com/ternarybob/usagedash/internal/services/orchestrator"
	"github.com/ternarybob/usagedash/internal/services/parser"
	"github.com/ternarybob/usagedash/internal/services/scheduler"
	"github.com/ternarybob/usagedash/internal/services/scraper"
	"github.com/ternarybob/usagedash/internal/storage/badger"
	"github.com/ternarybob/usagedash/internal/storage/files"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Credentials *files.CredentialStore
	Cache       *files.CacheStore
	History     interfaces.HistoryStorage // nil when history is disabled

	// Scrape pipeline
	Launcher     interfaces.BrowserLauncher
	Driver       *browser.Driver
	Extractor    *extractor.Extractor
	Parser       *parser.Parser
	Scraper      *scraper.Service
	Orchestrator *orchestrator.Service

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler   *handlers.APIHandler
	UsageHandler *handlers.UsageHandler
	WSHandler    *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("accounts", cfg.Accounts.Count).
		Str("cache", app.Cache.Path()).
		Bool("history_enabled", app.History != nil).
		Bool("headless", cfg.Scraper.Headless).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the credential store, the usage cache and, when enabled, the history database
func (a *App) initStorage() error {
	a.Credentials = files.NewCredentialStore(a.Config.Storage.SessionsDir, a.Logger)
	a.Cache = files.NewCacheStore(CachePath(a.Config), a.Logger)

	if !a.Config.Storage.Badger.Enabled {
		a.Logger.Debug().Msg("History storage disabled")
		return nil
	}

	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.History = badger.NewHistoryStorage(db, a.Logger)
	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return err
	}

	scraperCfg := a.Config.Scraper
	chrome := browser.NewChromeLauncher(browser.NewLauncherConfig(scraperCfg), a.Logger)
	a.Launcher = browser.NewPacedLauncher(chrome, scraperCfg.LaunchInterval.Std())
	a.Driver = browser.NewDriver(a.Credentials, a.Launcher, browser.NewDriverConfig(scraperCfg), a.Logger)
	a.Extractor = extractor.NewExtractor(extractor.NewConfig(scraperCfg), a.Logger)
	a.Parser = parser.NewParser()
	a.Scraper = scraper.NewService(a.Driver, a.Extractor, a.Parser, a.EventService, scraper.NewConfig(scraperCfg), a.Logger)

	opts := []orchestrator.Option{orchestrator.WithEvents(a.EventService)}
	if a.History != nil {
		opts = append(opts, orchestrator.WithHistory(a.History, a.Config.Storage.Badger.HistoryRetention.Std()))
	}
	a.Orchestrator = orchestrator.NewService(a.Config.AccountList(), a.Scraper, a.Cache, a.Logger, opts...)

	sched, err := scheduler.NewService(a.Orchestrator, scheduler.NewConfig(a.Config.Scheduler), a.Logger)
	if err != nil {
		return err
	}
	a.SchedulerService = sched

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.UsageHandler = handlers.NewUsageHandler(a.Cache, a.SchedulerService, a.History, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.SchedulerService, a.Logger)
}

// Start begins scheduled scraping
func (a *App) Start() error {
	return a.SchedulerService.Start()
}

// Close stops background work and releases storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.History != nil {
		if err := a.History.Close(); err != nil {
			return fmt.Errorf("failed to close history storage: %w", err)
		}
		a.Logger.Info().Msg("History storage closed")
	}

	return nil
}

// CachePath resolves the cache file against the data directory unless it is absolute
func CachePath(cfg *common.Config) string {
	if filepath.IsAbs(cfg.Storage.CacheFile) {
		return cfg.Storage.CacheFile
	}
	return filepath.Join(cfg.Storage.DataDir, cfg.Storage.CacheFile)
}
