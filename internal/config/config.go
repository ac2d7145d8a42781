// Package config loads process configuration.
//
// LOAD ORDER:
//  1. struct defaults from the envDefault tags
//  2. environment variables (caarlos0/env)
//  3. the YAML file named by CONSULTHUB_CONFIG, if set; keys present in the
//     file win over the environment
//
// Validate runs last and rejects combinations the server cannot start with.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML overlay.
const FileEnv = "CONSULTHUB_CONFIG"

// DevSecret is the SECRET_KEY used when none is configured.
const DevSecret = "consulthub-dev-secret"

const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	Port  int  `env:"PORT" envDefault:"5000" yaml:"port"`
	Debug bool `env:"DEBUG" envDefault:"false" yaml:"debug"`

	SecretKey string `env:"SECRET_KEY" envDefault:"consulthub-dev-secret" yaml:"secret_key"`
	DBPath    string `env:"DB_PATH" envDefault:"data/consulthub.db" yaml:"db_path"`

	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"redis" yaml:"cache_backend"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"216000h" yaml:"session_ttl"`
	Redis        RedisConfig   `yaml:"redis"`

	Mail MailConfig `yaml:"mail"`

	EmailDomain string `env:"EMAIL_DOMAIN" envDefault:"gmail.com" yaml:"email_domain"`
	BcryptCost  int    `env:"BCRYPT_COST" envDefault:"12" yaml:"bcrypt_cost"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"127.0.0.1" yaml:"host"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379" yaml:"port"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB" envDefault:"0" yaml:"db"`
}

// Addr is host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MailConfig struct {
	Sender   string `env:"MAIL_SENDER" yaml:"sender"`
	Password string `env:"MAIL_PASSWORD" yaml:"password"`
	SMTPHost string `env:"SMTP_HOST" envDefault:"smtp.gmail.com" yaml:"smtp_host"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587" yaml:"smtp_port"`
}

// Enabled reports whether real SMTP delivery is configured. Without a
// password mails are only logged.
func (c MailConfig) Enabled() bool {
	return c.Password != ""
}

// Load reads the environment and then the optional YAML overlay.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := overlay(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.CacheBackend != CacheRedis && c.CacheBackend != CacheMemory {
		errs = append(errs, fmt.Errorf("cache backend %q must be %q or %q", c.CacheBackend, CacheRedis, CacheMemory))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl %s must be positive", c.SessionTTL))
	}
	if c.EmailDomain == "" {
		errs = append(errs, errors.New("email domain is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// InsecureSecret reports whether the dev secret is still in use.
func (c *Config) InsecureSecret() bool {
	return c.SecretKey == DevSecret
}
