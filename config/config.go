package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	MaxPages            int           `yaml:"max_pages"`
	PageWorkers         int           `yaml:"page_workers"`
	MinDelay            time.Duration `yaml:"min_delay"`
	JitterMin           time.Duration `yaml:"jitter_min"`
	JitterMax           time.Duration `yaml:"jitter_max"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	SourceTimeout       time.Duration `yaml:"source_timeout"`
	GlobalRPS           float64       `yaml:"global_rps"`
	Headless            bool          `yaml:"headless"`
	BrowserSettle       time.Duration `yaml:"browser_settle"`
	Proxies             []string      `yaml:"proxies"`
	Sources             []string      `yaml:"sources"`
	DefaultSearchPeriod int           `yaml:"default_search_period"`
	BreakerThreshold    int           `yaml:"breaker_threshold"`
	BreakerCooldown     time.Duration `yaml:"breaker_cooldown"`

	DatabaseURL string `yaml:"database_url"`
	DBHost      string `yaml:"db_host"`
	DBPort      int    `yaml:"db_port"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBName      string `yaml:"db_name"`
	DBSSLMode   string `yaml:"db_sslmode"`

	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	FluentHost string `yaml:"fluent_host"`
	FluentPort int    `yaml:"fluent_port"`
	FluentTag  string `yaml:"fluent_tag"`

	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	HTTPAddr     string `yaml:"http_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		MaxPages:            3,
		PageWorkers:         3,
		MinDelay:            time.Second,
		JitterMin:           100 * time.Millisecond,
		JitterMax:           500 * time.Millisecond,
		RequestTimeout:      15 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        2 * time.Second,
		SourceTimeout:       30 * time.Second,
		Headless:            true,
		BrowserSettle:       2 * time.Second,
		DefaultSearchPeriod: 30,
		BreakerThreshold:    3,
		BreakerCooldown:     10 * time.Minute,
		DBPort:              5432,
		DBSSLMode:           "disable",
		LogLevel:            "info",
		LogFormat:           "text",
		FluentPort:          24224,
		FluentTag:           "shop-scraper",
		AMQPExchange:        "scraper.events",
		HTTPAddr:            ":8080",
	}
}

// Load layers the optional YAML file named by CONFIG_FILE, then .env, then
// the process environment on top of DefaultConfig.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg.MaxPages = getEnvAsInt("MAX_PAGES", cfg.MaxPages)
	cfg.PageWorkers = getEnvAsInt("PAGE_WORKERS", cfg.PageWorkers)
	cfg.MinDelay = getEnvAsDuration("MIN_DELAY", cfg.MinDelay)
	cfg.JitterMin = getEnvAsDuration("JITTER_MIN", cfg.JitterMin)
	cfg.JitterMax = getEnvAsDuration("JITTER_MAX", cfg.JitterMax)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRetries = getEnvAsInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = getEnvAsDuration("RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.SourceTimeout = getEnvAsDuration("SOURCE_TIMEOUT", cfg.SourceTimeout)
	cfg.GlobalRPS = getEnvAsFloat("GLOBAL_RPS", cfg.GlobalRPS)
	cfg.Headless = getEnvAsBool("HEADLESS", cfg.Headless)
	cfg.BrowserSettle = getEnvAsDuration("BROWSER_SETTLE", cfg.BrowserSettle)
	cfg.Proxies = getEnvAsList("PROXIES", cfg.Proxies)
	cfg.Sources = getEnvAsList("SOURCES", cfg.Sources)
	cfg.DefaultSearchPeriod = getEnvAsInt("DEFAULT_SEARCH_PERIOD", cfg.DefaultSearchPeriod)
	cfg.BreakerThreshold = getEnvAsInt("BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerCooldown = getEnvAsDuration("BREAKER_COOLDOWN", cfg.BreakerCooldown)

	cfg.DatabaseURL = getEnvAsString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBHost = getEnvAsString("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnvAsInt("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnvAsString("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnvAsString("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnvAsString("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnvAsString("DB_SSLMODE", cfg.DBSSLMode)

	cfg.LogLevel = getEnvAsString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvAsString("LOG_FORMAT", cfg.LogFormat)
	cfg.FluentHost = getEnvAsString("FLUENT_HOST", cfg.FluentHost)
	cfg.FluentPort = getEnvAsInt("FLUENT_PORT", cfg.FluentPort)
	cfg.FluentTag = getEnvAsString("FLUENT_TAG", cfg.FluentTag)

	cfg.AMQPURL = getEnvAsString("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnvAsString("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.HTTPAddr = getEnvAsString("HTTP_ADDR", cfg.HTTPAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be >= 1, got %d", c.MaxPages)
	}
	if c.PageWorkers < 1 {
		return fmt.Errorf("page workers must be >= 1, got %d", c.PageWorkers)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.JitterMax < c.JitterMin {
		return fmt.Errorf("jitter max %v is below jitter min %v", c.JitterMax, c.JitterMin)
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("source timeout must be positive, got %v", c.SourceTimeout)
	}
	return nil
}

// DSN returns DatabaseURL, or builds one from the DB_* fields. Empty means no database is configured.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBHost == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvAsString(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvAsString(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnvAsString(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvAsString(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvAsString(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnvAsString(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
