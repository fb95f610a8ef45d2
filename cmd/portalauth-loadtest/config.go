package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// runConfig is the harness configuration. A TOML file supplies the base and
// any flag set on the command line overrides it.
type runConfig struct {
	Surface     string  `toml:"surface"`
	Accounts    int     `toml:"accounts"`
	Concurrency int     `toml:"concurrency"`
	Ops         int     `toml:"ops"`
	WrongRatio  float64 `toml:"wrong_ratio"`
	RedisAddr   string  `toml:"redis_addr"`
	SQLitePath  string  `toml:"sqlite_path"`

	Password passwordSection `toml:"password"`
	Lockout  lockoutSection  `toml:"lockout"`
}

type passwordSection struct {
	Pepper     string `toml:"pepper"`
	Iterations int    `toml:"iterations"`
}

type lockoutSection struct {
	MaxAttempts int    `toml:"max_attempts"`
	Window      string `toml:"window"`
	Duration    string `toml:"duration"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Surface:     "member_portal",
		Accounts:    64,
		Concurrency: 32,
		Ops:         2000,
		WrongRatio:  0.25,
		Password: passwordSection{
			Pepper:     "loadtest-pepper",
			Iterations: 100_000,
		},
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return runConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// parseArgs reads -config first, then applies every explicitly set flag on
// top of the file.
func parseArgs(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("portalauth-loadtest", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "optional TOML config file")
		surface     = fs.String("surface", "", "login surface: member_portal, member_dialog or admin")
		accounts    = fs.Int("accounts", 0, "number of accounts to seed")
		concurrency = fs.Int("concurrency", 0, "number of concurrent workers")
		ops         = fs.Int("ops", 0, "login attempts in the login phase")
		wrongRatio  = fs.Float64("wrong-ratio", 0, "fraction of login attempts using a wrong password")
		redisAddr   = fs.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		sqlitePath  = fs.String("sqlite", "", "use a SQLite attempt tracker at this path")
		iterations  = fs.Int("iterations", 0, "PBKDF2 iterations")
	)
	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		return runConfig{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "surface":
			cfg.Surface = *surface
		case "accounts":
			cfg.Accounts = *accounts
		case "concurrency":
			cfg.Concurrency = *concurrency
		case "ops":
			cfg.Ops = *ops
		case "wrong-ratio":
			cfg.WrongRatio = *wrongRatio
		case "redis-addr":
			cfg.RedisAddr = *redisAddr
		case "sqlite":
			cfg.SQLitePath = *sqlitePath
		case "iterations":
			cfg.Password.Iterations = *iterations
		}
	})

	return cfg, cfg.validate()
}

func (c runConfig) validate() error {
	if c.Accounts <= 0 || c.Concurrency <= 0 || c.Ops <= 0 {
		return errors.New("accounts, concurrency, and ops must be > 0")
	}
	if c.WrongRatio < 0 || c.WrongRatio > 1 {
		return errors.New("wrong-ratio must be within [0,1]")
	}
	if _, err := c.lockoutWindow(); err != nil {
		return err
	}
	if _, err := c.lockoutDuration(); err != nil {
		return err
	}
	return nil
}

func (c runConfig) lockoutWindow() (time.Duration, error) {
	return optionalDuration("lockout.window", c.Lockout.Window)
}

func (c runConfig) lockoutDuration() (time.Duration, error) {
	return optionalDuration("lockout.duration", c.Lockout.Duration)
}

func optionalDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return d, nil
}
