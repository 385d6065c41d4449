package common

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/usagedash/internal/models"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Accounts  AccountsConfig  `toml:"accounts"`
	Scraper   ScraperConfig   `toml:"scraper"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

// AccountsConfig describes the fixed set of scraped accounts.
// Names is keyed by the 1-based account index as a string ("1", "2", ...).
type AccountsConfig struct {
	Count int               `toml:"count" validate:"min=1"`
	Names map[string]string `toml:"names"`
}

type ScraperConfig struct {
	TargetURL          string   `toml:"target_url" validate:"required,url"`
	ExpectedPath       string   `toml:"expected_path" validate:"required"`
	LoggedOutMarker    string   `toml:"logged_out_marker"`
	LoadingMarker      string   `toml:"loading_marker"`
	NavigationTimeout  Duration `toml:"navigation_timeout" validate:"gt=0"`
	SettleDelay        Duration `toml:"settle_delay"`
	ReadyTimeout       Duration `toml:"ready_timeout" validate:"gt=0"`
	ReadyInterval      Duration `toml:"ready_interval" validate:"gt=0"`
	ReadyMinChars      int      `toml:"ready_min_chars" validate:"min=0"`
	LateRenderDelay    Duration `toml:"late_render_delay"`
	Headless           bool     `toml:"headless"`
	NoSandbox          bool     `toml:"no_sandbox"`
	UserAgent          string   `toml:"user_agent"`
	LaunchInterval     Duration `toml:"launch_interval"` // minimum gap between browser launches, 0 disables pacing
	ExcerptLength      int      `toml:"excerpt_length" validate:"min=0"`
	RefreshCredentials bool     `toml:"refresh_credentials"` // write the browser cookie jar back after a successful scrape
}

type StorageConfig struct {
	DataDir     string       `toml:"data_dir" validate:"required"`
	SessionsDir string       `toml:"sessions_dir" validate:"required"`
	CacheFile   string       `toml:"cache_file" validate:"required"`
	Badger      BadgerConfig `toml:"badger"`
}

// BadgerConfig represents the snapshot history database
type BadgerConfig struct {
	Enabled          bool     `toml:"enabled"`
	Path             string   `toml:"path"`
	ResetOnStartup   bool     `toml:"reset_on_startup"`
	HistoryRetention Duration `toml:"history_retention"`
}

type SchedulerConfig struct {
	Schedule   string `toml:"schedule" validate:"required"` // standard 5-field cron
	RunOnStart bool   `toml:"run_on_start"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"` // "stdout", "console", "file"
	TimeFormat string   `toml:"time_format"`
}

type DashboardConfig struct {
	Dir string `toml:"dir"` // static files served at "/" when the directory exists
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3456,
			Host: "localhost",
		},
		Accounts: AccountsConfig{
			Count: 4,
			Names: map[string]string{},
		},
		Scraper: ScraperConfig{
			TargetURL:          "https://claude.ai/settings/usage",
			ExpectedPath:       "settings/usage",
			LoggedOutMarker:    "Continue with Google",
			LoadingMarker:      "Loading...\nLoading...\nLoading...",
			NavigationTimeout:  Duration(60 * time.Second),
			SettleDelay:        Duration(5 * time.Second),
			ReadyTimeout:       Duration(20 * time.Second),
			ReadyInterval:      Duration(500 * time.Millisecond),
			ReadyMinChars:      200,
			LateRenderDelay:    Duration(1 * time.Second),
			Headless:           false,
			NoSandbox:          false,
			UserAgent:          "",
			LaunchInterval:     Duration(2 * time.Second),
			ExcerptLength:      2000,
			RefreshCredentials: true,
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			SessionsDir: "./sessions",
			CacheFile:   "usage.json",
			Badger: BadgerConfig{
				Enabled:          true,
				Path:             "./data/history",
				HistoryRetention: Duration(7 * 24 * time.Hour),
			},
		},
		Scheduler: SchedulerConfig{
			Schedule:   "*/10 * * * *",
			RunOnStart: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Dashboard: DashboardConfig{
			Dir: "./public",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env/env.
// Later files override earlier files. CLI flags are applied separately by ApplyFlagOverrides,
// and Validate must run after them.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// A missing .env is normal; existing process env wins over the file.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// ACCOUNT_COUNT, ACCOUNT_<N>_NAME and PORT are accepted alongside the USAGEDASH_ names.
func applyEnvOverrides(config *Config) {
	if port := firstEnv("USAGEDASH_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("USAGEDASH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if count := firstEnv("USAGEDASH_ACCOUNT_COUNT", "ACCOUNT_COUNT"); count != "" {
		if c, err := strconv.Atoi(count); err == nil {
			config.Accounts.Count = c
		}
	}
	applyAccountNameEnv(config)

	if targetURL := os.Getenv("USAGEDASH_SCRAPER_TARGET_URL"); targetURL != "" {
		config.Scraper.TargetURL = targetURL
	}
	if headless := os.Getenv("USAGEDASH_SCRAPER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Scraper.Headless = h
		}
	}
	if noSandbox := os.Getenv("USAGEDASH_SCRAPER_NO_SANDBOX"); noSandbox != "" {
		if ns, err := strconv.ParseBool(noSandbox); err == nil {
			config.Scraper.NoSandbox = ns
		}
	}
	if userAgent := os.Getenv("USAGEDASH_SCRAPER_USER_AGENT"); userAgent != "" {
		config.Scraper.UserAgent = userAgent
	}
	if interval := os.Getenv("USAGEDASH_SCRAPER_LAUNCH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Scraper.LaunchInterval = Duration(d)
		}
	}

	if dataDir := os.Getenv("USAGEDASH_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if sessionsDir := os.Getenv("USAGEDASH_SESSIONS_DIR"); sessionsDir != "" {
		config.Storage.SessionsDir = sessionsDir
	}
	if badgerPath := os.Getenv("USAGEDASH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if schedule := os.Getenv("USAGEDASH_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}

	if level := os.Getenv("USAGEDASH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("USAGEDASH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if dir := os.Getenv("USAGEDASH_DASHBOARD_DIR"); dir != "" {
		config.Dashboard.Dir = dir
	}
}

var accountNameEnv = regexp.MustCompile(`^(USAGEDASH_)?ACCOUNT_([1-9]\d*)_NAME$`)

// applyAccountNameEnv copies every ACCOUNT_<N>_NAME into Accounts.Names regardless of
// the current count, so a later --accounts flag still picks the names up.
// The USAGEDASH_ form wins over the bare one.
func applyAccountNameEnv(config *Config) {
	if config.Accounts.Names == nil {
		config.Accounts.Names = map[string]string{}
	}
	prefixed := map[string]string{}
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			continue
		}
		m := accountNameEnv.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if m[1] != "" {
			prefixed[m[2]] = value
			continue
		}
		config.Accounts.Names[m[2]] = value
	}
	for index, name := range prefixed {
		config.Accounts.Names[index] = name
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Zero values mean "not set".
func ApplyFlagOverrides(config *Config, port int, host string, accounts int) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if accounts != 0 {
		config.Accounts.Count = accounts
	}
}

// Validate checks struct constraints and the cron schedule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
		return fmt.Errorf("invalid scheduler.schedule %q: %w", c.Scheduler.Schedule, err)
	}
	for key := range c.Accounts.Names {
		if idx, err := strconv.Atoi(key); err != nil || idx < 1 {
			return fmt.Errorf("invalid accounts.names key %q: must be a positive account index", key)
		}
	}
	return nil
}

// AccountList builds the ordered account list. Unnamed accounts get "Account N".
func (c *Config) AccountList() []models.AccountConfig {
	accounts := make([]models.AccountConfig, 0, c.Accounts.Count)
	for i := 1; i <= c.Accounts.Count; i++ {
		name := c.Accounts.Names[strconv.Itoa(i)]
		if name == "" {
			name = fmt.Sprintf("Account %d", i)
		}
		accounts = append(accounts, models.AccountConfig{Index: i, DisplayName: name})
	}
	sort.Slice(accounts, func(a, b int) bool { return accounts[a].Index < accounts[b].Index })
	return accounts
}
