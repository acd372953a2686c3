package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	DBPath      string // SQLite operational store (run lock, commands)
	LogLevel    string
	Scheduler   SchedulerConfig
	Scrape      ScrapeConfig
	Snapshots   SnapshotConfig
	Sources     map[string]*SourceConfig
	Jobs        map[string]*JobConfig
	Identities  []IdentityConfig
}

type SchedulerConfig struct {
	WeeklyCron string // default: Sunday 02:00
	DailyCron  string // default: daily 06:00
}

// ScrapeConfig carries the tunables the pipeline must not hard-code:
// retry bounds, challenge thresholds, cool-downs and the soft-expiry
// window are operational knobs, not inferred behavior.
type ScrapeConfig struct {
	RunBudget          time.Duration // wall clock for a whole run
	FetchTimeout       time.Duration
	FetchRetries       int
	ChallengeThreshold int // challenges per source per run before abort
	CooldownWindow     time.Duration
	ExpireMissedRuns   int // consecutive absent runs before is_active=false
}

type SnapshotConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type SourceConfig struct {
	ID                string            `yaml:"id"`
	Name              string            `yaml:"name"`
	Adapter           string            `yaml:"adapter"` // mcf, glassdoor
	RequestsPerMinute int               `yaml:"requests_per_minute"`
	PageLimit         int               `yaml:"page_limit"`
	PageSize          int               `yaml:"page_size"`
	DelayProfile      string            `yaml:"delay_profile"` // normal, strict
	RequiresAuth      bool              `yaml:"requires_auth"`
	UsernameEnv       string            `yaml:"username_env"`
	PasswordEnv       string            `yaml:"password_env"`
	Currency          string            `yaml:"currency"`
	Endpoints         map[string]string `yaml:"endpoints"`
}

// Username resolves the login name from the configured env var.
func (s *SourceConfig) Username() string { return os.Getenv(s.UsernameEnv) }

// Password resolves the login secret from the configured env var.
func (s *SourceConfig) Password() string { return os.Getenv(s.PasswordEnv) }

type JobConfig struct {
	Name    string        `yaml:"name"`
	Queries []QueryConfig `yaml:"queries"`
}

type QueryConfig struct {
	Keywords  []string `yaml:"keywords"`
	Locations []string `yaml:"locations"`
	PageLimit int      `yaml:"page_limit"` // overrides the source default when > 0
}

type IdentityConfig struct {
	UserAgent      string `yaml:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	Proxy          string `yaml:"proxy"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "harvester.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Scheduler: SchedulerConfig{
			WeeklyCron: getEnv("WEEKLY_CRON", "0 2 * * 0"),
			DailyCron:  getEnv("DAILY_CRON", "0 6 * * *"),
		},
		Scrape: ScrapeConfig{
			RunBudget:          getEnvDuration("RUN_BUDGET", 4*time.Hour),
			FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
			FetchRetries:       getEnvInt("FETCH_RETRIES", 3),
			ChallengeThreshold: getEnvInt("CHALLENGE_THRESHOLD", 3),
			CooldownWindow:     getEnvDuration("COOLDOWN_WINDOW", 15*time.Minute),
			ExpireMissedRuns:   getEnvInt("EXPIRE_MISSED_RUNS", 2),
		},
		Snapshots: SnapshotConfig{
			Bucket:          os.Getenv("SNAPSHOT_BUCKET"),
			Region:          getEnv("SNAPSHOT_REGION", "us-east-1"),
			Endpoint:        os.Getenv("SNAPSHOT_ENDPOINT"),
			Prefix:          getEnv("SNAPSHOT_PREFIX", "snapshots"),
			AccessKeyID:     os.Getenv("SNAPSHOT_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("SNAPSHOT_SECRET_ACCESS_KEY"),
		},
		Sources: make(map[string]*SourceConfig),
		Jobs:    make(map[string]*JobConfig),
	}

	if err := cfg.loadSourceConfigs("config/sources"); err != nil {
		return nil, err
	}
	if err := cfg.loadQueryConfigs("config/queries.yaml"); err != nil {
		return nil, err
	}
	if err := cfg.loadIdentities("config/identities.yaml"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSourceConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return fmt.Errorf("source config %s: %w", entry.Name(), err)
		}
		if src.PageSize <= 0 {
			src.PageSize = 20
		}
		if src.PageLimit <= 0 {
			src.PageLimit = 10
		}
		if src.RequestsPerMinute <= 0 {
			src.RequestsPerMinute = 30
		}
		c.Sources[src.ID] = &src
	}

	return nil
}

func (c *Config) loadQueryConfigs(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file struct {
		Jobs []JobConfig `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("query config: %w", err)
	}

	for i := range file.Jobs {
		job := file.Jobs[i]
		c.Jobs[job.Name] = &job
	}
	return nil
}

func (c *Config) loadIdentities(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file struct {
		Identities []IdentityConfig `yaml:"identities"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	c.Identities = file.Identities
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
