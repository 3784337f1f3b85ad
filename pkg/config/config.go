package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/getmockd/stompd/pkg/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STOMPD_"

// Scheduling modes accepted by the serve command.
const (
	ModeThreadPerClient = "tpc"
	ModeReactor         = "reactor"
)

// Config is the broker configuration. Values come from the environment
// (optionally seeded from a .env file) and are then overridden by flags.
type Config struct {
	Port    int    `env:"PORT" envDefault:"7777"`
	Mode    string `env:"MODE" envDefault:"tpc"`
	Workers int    `env:"WORKERS"` // reactor pool size, 0 means GOMAXPROCS

	WSPort    int    `env:"WS_PORT"` // 0 disables the WebSocket listener
	WSPath    string `env:"WS_PATH" envDefault:"/ws"`
	AdminPort int    `env:"ADMIN_PORT"` // 0 disables /metrics and /healthz

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	UsersFile         string `env:"USERS_FILE"`
	AllowRegistration bool   `env:"ALLOW_REGISTRATION" envDefault:"true"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	RedisURL          string `env:"REDIS_URL"`

	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"`
}

// Load reads the given .env files (".env" when none are named; a missing
// file is not an error) and parses STOMPD_* variables from the process
// environment. Variables already set in the environment win over .env
// entries.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return parse(env.Options{Prefix: EnvPrefix})
}

// FromMap parses configuration from vars instead of the process
// environment. Keys carry the STOMPD_ prefix.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.Mode != ModeThreadPerClient && c.Mode != ModeReactor {
		errs = append(errs, fmt.Errorf("mode %q must be %q or %q", c.Mode, ModeThreadPerClient, ModeReactor))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}

	for name, p := range map[string]int{"ws port": c.WSPort, "admin port": c.AdminPort} {
		switch {
		case p < 0 || p > 65535:
			errs = append(errs, fmt.Errorf("%s %d out of range 0-65535", name, p))
		case p != 0 && p == c.Port:
			errs = append(errs, fmt.Errorf("%s %d collides with the broker port", name, p))
		}
	}
	if c.WSPort != 0 && c.WSPort == c.AdminPort {
		errs = append(errs, fmt.Errorf("ws port and admin port are both %d", c.WSPort))
	}
	if c.WSPort != 0 && !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws path %q must start with /", c.WSPath))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range %d-%d", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		errs = append(errs, errors.New("redis url must use redis:// or rediss://"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write timeout must not be negative, got %s", c.WriteTimeout))
	}

	return errors.Join(errs...)
}

// Logging converts the log settings. Call Validate first.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = lvl
	}
	if f, err := logging.ParseFormat(c.LogFormat); err == nil {
		cfg.Format = f
	}
	return cfg
}
