package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Library
	LibraryPaths          []string
	LibraryRecentDays     int // Max age of "recently added" items (default: 14)
	LibraryMaxRecentItems int // Cap on recently added items per scan (default: 2000)
	LibraryWatch          bool

	// Subtitles
	Languages       []string
	MinScore        int
	HearingImpaired *bool // nil: no preference
	DownloadTries   int   // Candidates fetched per language before giving up (default: 2)
	NoMatchRetry    time.Duration
	Mods            []string

	// Providers
	Providers          []string // Enabled adapters in priority order
	ProviderTimeout    time.Duration
	ProviderRetries    int
	ProviderRetryDelay time.Duration
	ProviderCacheTTL   time.Duration
	ProviderWorkers    int

	// OpenSubtitles
	OpenSubtitlesURL      string
	OpenSubtitlesAPIKey   string
	OpenSubtitlesUsername string
	OpenSubtitlesPassword string
	OpenSubtitlesMinScore int

	// Podnapisi
	PodnapisiURL      string
	PodnapisiMinScore int // Archive files scoring below this are rejected (default: 20)

	// Storage
	SaveFilesystem       bool
	SaveMetadataFallback bool
	SubtitleSubfolder    string
	NotifyExecutable     string

	// Scheduler
	ScanInterval     time.Duration
	ScanSpec         string // Optional cron expression, overrides ScanInterval
	SchedulerCheck   time.Duration
	SchedulerWorkers int

	// Server
	ServerPort string

	// Paths
	BlacklistFile string // $CONFIG_DIR/blacklist.txt
	DatabaseFile  string // $CONFIG_DIR/gosubarr.db
	MetadataDir   string // $CONFIG_DIR/metadata

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Tracing
	TracingSampleRatio float64
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "gosubarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Library
		LibraryPaths:          list(v.GetString("LIBRARY_PATHS")),
		LibraryRecentDays:     v.GetInt("LIBRARY_RECENT_DAYS"),
		LibraryMaxRecentItems: v.GetInt("LIBRARY_MAX_RECENT_ITEMS"),
		LibraryWatch:          v.GetBool("LIBRARY_WATCH"),

		// Subtitles
		Languages:     list(v.GetString("LANGUAGES")),
		MinScore:      v.GetInt("MIN_SCORE"),
		DownloadTries: v.GetInt("DOWNLOAD_TRIES"),
		NoMatchRetry:  time.Duration(v.GetInt("NO_MATCH_RETRY_HOURS")) * time.Hour,
		Mods:          list(v.GetString("SUBTITLE_MODS")),

		// Providers
		Providers:          list(v.GetString("PROVIDERS")),
		ProviderTimeout:    time.Duration(v.GetInt("PROVIDER_TIMEOUT_SECONDS")) * time.Second,
		ProviderRetries:    v.GetInt("PROVIDER_RETRIES"),
		ProviderRetryDelay: time.Duration(v.GetInt("PROVIDER_RETRY_DELAY_SECONDS")) * time.Second,
		ProviderCacheTTL:   time.Duration(v.GetInt("PROVIDER_CACHE_MINUTES")) * time.Minute,
		ProviderWorkers:    v.GetInt("PROVIDER_WORKERS"),

		// OpenSubtitles
		OpenSubtitlesURL:      v.GetString("OPENSUBTITLES_URL"),
		OpenSubtitlesAPIKey:   v.GetString("OPENSUBTITLES_API_KEY"),
		OpenSubtitlesUsername: v.GetString("OPENSUBTITLES_USERNAME"),
		OpenSubtitlesPassword: v.GetString("OPENSUBTITLES_PASSWORD"),
		OpenSubtitlesMinScore: v.GetInt("OPENSUBTITLES_MIN_SCORE"),

		// Podnapisi
		PodnapisiURL:      v.GetString("PODNAPISI_URL"),
		PodnapisiMinScore: v.GetInt("PODNAPISI_MIN_SCORE"),

		// Storage
		SaveFilesystem:       v.GetBool("SAVE_FILESYSTEM"),
		SaveMetadataFallback: v.GetBool("SAVE_METADATA_FALLBACK"),
		SubtitleSubfolder:    v.GetString("SUBTITLE_SUBFOLDER"),
		NotifyExecutable:     v.GetString("NOTIFY_EXECUTABLE"),

		// Scheduler
		ScanInterval:     time.Duration(v.GetInt("SCAN_INTERVAL_HOURS")) * time.Hour,
		ScanSpec:         v.GetString("SCAN_SPEC"),
		SchedulerCheck:   time.Duration(v.GetInt("SCHEDULER_CHECK_MINUTES")) * time.Minute,
		SchedulerWorkers: v.GetInt("SCHEDULER_WORKERS"),

		// Server
		ServerPort: v.GetString("SERVER_PORT"),

		// Paths
		BlacklistFile: filepath.Join(configDir, "blacklist.txt"),
		DatabaseFile:  filepath.Join(configDir, "gosubarr.db"),
		MetadataDir:   filepath.Join(configDir, "metadata"),

		// Logging
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		LogFile:   v.GetString("LOG_FILE"),

		TracingSampleRatio: v.GetFloat64("TRACING_SAMPLE_RATIO"),
	}

	if hi := strings.TrimSpace(v.GetString("HEARING_IMPAIRED")); hi != "" {
		pref := v.GetBool("HEARING_IMPAIRED")
		config.HearingImpaired = &pref
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LIBRARY_RECENT_DAYS", 14)
	v.SetDefault("LIBRARY_MAX_RECENT_ITEMS", 2000)
	v.SetDefault("LIBRARY_WATCH", false)
	v.SetDefault("LANGUAGES", "en")
	v.SetDefault("MIN_SCORE", 0)
	v.SetDefault("DOWNLOAD_TRIES", 2)
	v.SetDefault("NO_MATCH_RETRY_HOURS", 12)
	v.SetDefault("SUBTITLE_MODS", "")
	v.SetDefault("PROVIDERS", "opensubtitles,podnapisi")
	v.SetDefault("PROVIDER_TIMEOUT_SECONDS", 10)
	v.SetDefault("PROVIDER_RETRIES", 3)
	v.SetDefault("PROVIDER_RETRY_DELAY_SECONDS", 5)
	v.SetDefault("PROVIDER_CACHE_MINUTES", 30)
	v.SetDefault("PROVIDER_WORKERS", 4)
	v.SetDefault("OPENSUBTITLES_URL", "https://api.opensubtitles.com/api/v1")
	v.SetDefault("OPENSUBTITLES_MIN_SCORE", 0)
	v.SetDefault("PODNAPISI_URL", "https://www.podnapisi.net")
	v.SetDefault("PODNAPISI_MIN_SCORE", 20)
	v.SetDefault("SAVE_FILESYSTEM", true)
	v.SetDefault("SAVE_METADATA_FALLBACK", true)
	v.SetDefault("SCAN_INTERVAL_HOURS", 6)
	v.SetDefault("SCHEDULER_CHECK_MINUTES", 1)
	v.SetDefault("SCHEDULER_WORKERS", 2)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("TRACING_SAMPLE_RATIO", 0.0)
}

func (c *Config) validate() error {
	if len(c.LibraryPaths) == 0 {
		return fmt.Errorf("LIBRARY_PATHS is required")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("LANGUAGES is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("PROVIDERS is required")
	}
	for _, p := range c.Providers {
		switch p {
		case "opensubtitles":
			if c.OpenSubtitlesAPIKey == "" {
				return fmt.Errorf("OPENSUBTITLES_API_KEY is required when opensubtitles is enabled")
			}
		case "podnapisi":
		default:
			return fmt.Errorf("unknown provider %q in PROVIDERS", p)
		}
	}
	if c.ProviderRetries < 1 {
		return fmt.Errorf("PROVIDER_RETRIES must be at least 1")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	if c.DownloadTries < 1 {
		return fmt.Errorf("DOWNLOAD_TRIES must be at least 1")
	}
	if !c.SaveFilesystem && !c.SaveMetadataFallback {
		return fmt.Errorf("at least one of SAVE_FILESYSTEM and SAVE_METADATA_FALLBACK must be enabled")
	}
	if c.SchedulerCheck <= 0 {
		return fmt.Errorf("SCHEDULER_CHECK_MINUTES must be positive")
	}
	if c.SchedulerWorkers < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}
	return nil
}

// ProviderMinScore returns the configured threshold for a provider
func (c *Config) ProviderMinScore() map[string]int {
	return map[string]int{
		"opensubtitles": c.OpenSubtitlesMinScore,
		"podnapisi":     c.PodnapisiMinScore,
	}
}

func list(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
