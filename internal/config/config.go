// Package config reads the client's settings from .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL    string        `env:"SKIRMISH_SERVER_URL,required"`
	Room         string        `env:"SKIRMISH_ROOM,required"`
	User         string        `env:"SKIRMISH_USER"`
	GameMaster   bool          `env:"SKIRMISH_GM" envDefault:"false"`
	HTTPAddr     string        `env:"SKIRMISH_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	MoveCooldown time.Duration `env:"SKIRMISH_MOVE_COOLDOWN" envDefault:"50ms"`
	LogRetention int           `env:"SKIRMISH_LOG_RETENTION" envDefault:"200"`
	LogLevel     string        `env:"SKIRMISH_LOG_LEVEL" envDefault:"info"`
	LogDev       bool          `env:"SKIRMISH_LOG_DEV" envDefault:"false"`
	WriteTimeout time.Duration `env:"SKIRMISH_WRITE_TIMEOUT" envDefault:"3s"`
}

// Load reads the given .env files (".env" when none are named) into the
// process environment, then parses Config. Missing files are skipped;
// variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.MoveCooldown < 0 {
		return Config{}, fmt.Errorf("SKIRMISH_MOVE_COOLDOWN must not be negative, got %s", cfg.MoveCooldown)
	}
	if cfg.LogRetention < 0 {
		return Config{}, fmt.Errorf("SKIRMISH_LOG_RETENTION must not be negative, got %d", cfg.LogRetention)
	}
	return cfg, nil
}
