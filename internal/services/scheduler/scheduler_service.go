package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/common"
	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

const (
	MessageRefreshStarted  = "Refresh started"
	MessageAlreadyScraping = "Scraping already in progress"
)

// Config controls the refresh cadence
type Config struct {
	Schedule   string // standard 5-field cron expression
	RunOnStart bool
}

// NewConfig picks the scheduler settings out of the app config
func NewConfig(cfg common.SchedulerConfig) Config {
	return Config{
		Schedule:   cfg.Schedule,
		RunOnStart: cfg.RunOnStart,
	}
}

// Service owns the refresh timer and the single-flight guard around orchestrator runs
type Service struct {
	orchestrator interfaces.Orchestrator
	config       Config
	schedule     cron.Schedule
	cron         *cron.Cron
	logger       arbor.ILogger
	now          func() time.Time
	startedAt    time.Time

	mu          sync.Mutex // protects isScraping, nextRefresh, running
	isScraping  bool
	nextRefresh *time.Time
	running     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a scheduler. The schedule is parsed up front so a bad
// expression fails at startup rather than at the first tick.
func NewService(orchestrator interfaces.Orchestrator, config Config, logger arbor.ILogger) (*Service, error) {
	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		schedule:     schedule,
		cron:         cron.New(),
		logger:       logger,
		now:          time.Now,
		startedAt:    time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start registers the recurring run and, if configured, kicks off one run immediately
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Schedule(s.schedule, cron.FuncJob(s.tick))
	s.updateNextRefresh()
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Bool("run_on_start", s.config.RunOnStart).
		Msg("Scheduler started")

	if s.config.RunOnStart {
		if !s.tryBegin() {
			return nil
		}
		s.logger.Info().Msg("Running initial scrape")
		s.wg.Add(1)
		common.SafeGo(s.logger, "initial-scrape", func() {
			defer s.wg.Done()
			s.run("startup")
		})
	}

	return nil
}

// Stop halts the timer, cancels an in-flight run and waits for it to unwind
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()
	<-cronCtx.Done()
	s.wg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerRefresh starts a run in the background. A request made while a run is
// active is rejected, not queued.
func (s *Service) TriggerRefresh() (bool, string) {
	if !s.tryBegin() {
		s.logger.Debug().Msg("Manual refresh rejected, scrape in progress")
		return false, MessageAlreadyScraping
	}

	s.logger.Info().Msg("🔄 Manual refresh triggered")
	s.wg.Add(1)
	common.SafeGo(s.logger, "manual-refresh", func() {
		defer s.wg.Done()
		s.run("manual")
	})
	return true, MessageRefreshStarted
}

// Status reports the scheduler's observable state
func (s *Service) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.SchedulerStatus{
		IsScraping: s.isScraping,
		Uptime:     time.Since(s.startedAt).Seconds(),
	}
	if s.nextRefresh != nil {
		next := *s.nextRefresh
		status.NextRefresh = &next
	}
	return status
}

// NextRefreshAfter returns the first scheduled time strictly after t
func (s *Service) NextRefreshAfter(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// tick is the cron callback
func (s *Service) tick() {
	s.updateNextRefresh()
	if !s.tryBegin() {
		s.logger.Info().Msg("Scrape still in progress, skipping scheduled run")
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.run("schedule")
}

func (s *Service) updateNextRefresh() {
	next := s.NextRefreshAfter(s.now())
	s.mu.Lock()
	s.nextRefresh = &next
	s.mu.Unlock()
}

// tryBegin claims the single-flight slot
func (s *Service) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isScraping {
		return false
	}
	s.isScraping = true
	return true
}

// run executes one orchestrator pass. The caller must hold the slot from tryBegin.
func (s *Service) run(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("trigger", trigger).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scrape run")
		}
		s.mu.Lock()
		s.isScraping = false
		s.mu.Unlock()
	}()

	started := time.Now()
	_, err := s.orchestrator.RunAll(s.ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("trigger", trigger).
			Dur("duration", time.Since(started)).
			Msg("❌ Scrape run failed")
		return
	}

	s.logger.Debug().
		Str("trigger", trigger).
		Dur("duration", time.Since(started)).
		Msg("Scrape run finished")
}

var _ interfaces.SchedulerService = (*Service)(nil)
