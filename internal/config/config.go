package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		ID      string `yaml:"id"`
		TTL     string `yaml:"ttl"`
		Shuffle bool   `yaml:"shuffle"`
	} `yaml:"quiz"`
	Duel struct {
		InitialTime int    `yaml:"initial_time"`
		Countdown   int    `yaml:"countdown"`
		Grace       string `yaml:"grace"`
	} `yaml:"duel"`
	Classifier struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"classifier"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	Results struct {
		Retention string `yaml:"retention"`
		Schedule  string `yaml:"schedule"`
	} `yaml:"results"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Quiz.ID = "aksara-basics"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.Shuffle = true
	cfg.Duel.InitialTime = 120
	cfg.Duel.Countdown = 3
	cfg.Duel.Grace = "2s"
	cfg.Classifier.Timeout = "5s"
	cfg.NATS.SubjectPrefix = "duel"
	cfg.Auth.TokenTTL = "24h"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Results.Retention = "720h"
	cfg.Results.Schedule = "@daily"
	return cfg
}

// Load reads YAML config from path on top of Default, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadDotEnv loads key=value pairs from path into the process environment.
// Variables already set win. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Postgres.URL, "POSTGRES_URL")
	set(&c.NATS.URL, "NATS_URL")
	set(&c.Classifier.URL, "CLASSIFIER_URL")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Log.Format, "LOG_FORMAT")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
