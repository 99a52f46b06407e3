package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Riot API credentials (comma-separated list of keys)
	RiotAPIKeys []string `mapstructure:"RIOT_API_KEYS"`

	// Routing defaults
	DefaultPlatform string `mapstructure:"DEFAULT_PLATFORM"`
	DefaultRegion   string `mapstructure:"DEFAULT_REGION"`

	// Rate limiting
	RequestsPerSecond int           `mapstructure:"REQUESTS_PER_SECOND"`
	RequestsPerMinute int           `mapstructure:"REQUESTS_PER_MINUTE"`
	UsageAlertPercent int           `mapstructure:"USAGE_ALERT_PERCENT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxRetries        int           `mapstructure:"MAX_RETRIES"`
	RetryAfterDefault time.Duration `mapstructure:"RETRY_AFTER_DEFAULT"`

	// Credential rotation
	KeyErrorThreshold int           `mapstructure:"KEY_ERROR_THRESHOLD"`
	KeyCooldown       time.Duration `mapstructure:"KEY_COOLDOWN"`

	// Circuit breaker
	CircuitBreakerThreshold int `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`

	// Cache
	CacheDir            string `mapstructure:"CACHE_DIR"`
	CacheMemoryCapacity int    `mapstructure:"CACHE_MEMORY_CAPACITY"`
	RedisURL            string `mapstructure:"REDIS_URL"`

	// Usage statistics
	UsageStatsPath    string `mapstructure:"USAGE_STATS_PATH"`
	UsagePersistEvery int    `mapstructure:"USAGE_PERSIST_EVERY"`

	// Season aggregation
	SeasonStart     string `mapstructure:"SEASON_START"`
	SeasonEnd       string `mapstructure:"SEASON_END"`
	MatchPageSize   int    `mapstructure:"MATCH_PAGE_SIZE"`
	OutOfWindowStop int    `mapstructure:"OUT_OF_WINDOW_STOP"`
	RankedQueueOnly bool   `mapstructure:"RANKED_QUEUE_ONLY"`

	// Background jobs
	EnableMaintenanceJobs bool `mapstructure:"ENABLE_MAINTENANCE_JOBS"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("RIOT_API_KEYS", "")
	viper.SetDefault("DEFAULT_PLATFORM", "na1")
	viper.SetDefault("DEFAULT_REGION", "americas")

	// Riot enforces 20 req/s and 100 req/2min per key; stay under both
	viper.SetDefault("REQUESTS_PER_SECOND", 18)
	viper.SetDefault("REQUESTS_PER_MINUTE", 45)
	viper.SetDefault("USAGE_ALERT_PERCENT", 80)
	viper.SetDefault("REQUEST_TIMEOUT", "30s")
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_AFTER_DEFAULT", "5s")

	viper.SetDefault("KEY_ERROR_THRESHOLD", 3)
	viper.SetDefault("KEY_COOLDOWN", "5m")
	viper.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)

	viper.SetDefault("CACHE_DIR", "./data/cache")
	viper.SetDefault("CACHE_MEMORY_CAPACITY", 2048)
	viper.SetDefault("REDIS_URL", "")

	viper.SetDefault("USAGE_STATS_PATH", "./data/usage.json")
	viper.SetDefault("USAGE_PERSIST_EVERY", 25)

	viper.SetDefault("SEASON_START", "")
	viper.SetDefault("SEASON_END", "")
	viper.SetDefault("MATCH_PAGE_SIZE", 100)
	viper.SetDefault("OUT_OF_WINDOW_STOP", 10)
	viper.SetDefault("RANKED_QUEUE_ONLY", false)

	viper.SetDefault("ENABLE_MAINTENANCE_JOBS", true)

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse API keys from comma-separated string
	if keysStr := viper.GetString("RIOT_API_KEYS"); keysStr != "" {
		config.RiotAPIKeys = splitAndTrim(keysStr)
	}

	return &config, nil
}

// SeasonWindow resolves the configured season window, defaulting to the
// current calendar year when unset.
func (c *Config) SeasonWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	end := now

	if c.SeasonStart != "" {
		if t, err := time.Parse(time.RFC3339, c.SeasonStart); err == nil {
			start = t
		}
	}
	if c.SeasonEnd != "" {
		if t, err := time.Parse(time.RFC3339, c.SeasonEnd); err == nil {
			end = t
		}
	}
	return start, end
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
