package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=medstock port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string `yaml:"http_port"`
	DatabaseDSN string `yaml:"database_dsn"`
	JWTSecret   string `yaml:"jwt_secret"`
	CORSOrigins string `yaml:"cors_allowed_origins"`
	LogMode     string `yaml:"log_mode"`     // dev | prod
	Timezone    string `yaml:"app_timezone"` // where a calendar day starts
	RedisAddr   string `yaml:"redis_addr"`   // empty: in-process course locks
	Locale      string `yaml:"app_locale"`   // BCP 47 tag used to sort client names

	AlertSweepInterval string `yaml:"alert_sweep_interval"`
}

// Load reads CONFIG_FILE (if any) and then environment variables, which win.
// It exits on settings that would make the server unsafe to run.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           "8080",
		DatabaseDSN:        defaultDSN,
		CORSOrigins:        "http://localhost:5173",
		LogMode:            "dev",
		Timezone:           "UTC",
		Locale:             "tr",
		AlertSweepInterval: "15m",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			log.Fatalf("[FATAL] config file %s could not be read: %v", path, err)
		}
	}
	cfg.applyEnv()

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is the default value, set your own Postgres connection for production.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is the default value, set your own domain for production.")
	}

	return cfg
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.CORSOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.CORSOrigins)
	c.LogMode = getEnv("LOG_MODE", c.LogMode)
	c.Timezone = getEnv("APP_TIMEZONE", c.Timezone)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.Locale = getEnv("APP_LOCALE", c.Locale)
	c.AlertSweepInterval = getEnv("ALERT_SWEEP_INTERVAL", c.AlertSweepInterval)
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if _, err := c.Language(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Language() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("APP_LOCALE %q: %w", c.Locale, err)
	}
	return tag, nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) SweepInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.AlertSweepInterval)
	if err != nil {
		return 0, fmt.Errorf("ALERT_SWEEP_INTERVAL %q: %w", c.AlertSweepInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ALERT_SWEEP_INTERVAL must be positive, got %s", d)
	}
	return d, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
