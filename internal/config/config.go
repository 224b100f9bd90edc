// Package config resolves server settings from command-line flags, the
// environment, and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/citypolls/internal/auth"
)

const (
	DefaultPort             = 8080
	DefaultDBPath           = "data/polls.db"
	DefaultTokenTTL         = 24 * time.Hour
	DefaultLockTimeout      = 5 * time.Second
	DefaultPopularTagsLimit = 10
)

type Config struct {
	Port             int
	DBPath           string
	JWTSecret        string
	TokenTTL         time.Duration
	LockTimeout      time.Duration
	PopularTagsLimit int
	LogLevel         slog.Level
	LogFormat        string // "text" or "json"
}

// Load parses args (without the program name). Flags win over environment
// variables; variables from the .env file never override ones already set.
//
//	-p PORT          listen port
//	-d DB_PATH       SQLite file, or :memory:
//	-env FILE        dotenv file to load (default .env, missing is fine)
func Load(args []string) (Config, error) {
	var (
		cfg     Config
		envFile string
	)

	fset := flag.NewFlagSet("citypolls", flag.ContinueOnError)
	fset.IntVar(&cfg.Port, "p", 0, "Server port")
	fset.StringVar(&cfg.DBPath, "d", "", "SQLite database path")
	fset.StringVar(&envFile, "env", ".env", "Path to a dotenv file")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading %s: %w", envFile, err)
	}

	var err error
	if cfg.Port == 0 {
		if cfg.Port, err = intEnv("PORT", DefaultPort); err != nil {
			return Config{}, err
		}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = stringEnv("DB_PATH", DefaultDBPath)
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: JWT_SECRET required")
	}
	if len(cfg.JWTSecret) < auth.MinSecretLength {
		return Config{}, fmt.Errorf("config: JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}

	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", DefaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = durationEnv("LOCK_TIMEOUT", DefaultLockTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PopularTagsLimit, err = intEnv("POPULAR_TAGS_LIMIT", DefaultPopularTagsLimit); err != nil {
		return Config{}, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(stringEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = strings.ToLower(stringEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid %s %q", key, v)
	}
	return d, nil
}
