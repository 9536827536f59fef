// Package config loads the node's environment-variable configuration
// (spec §6.1), optionally overlaid from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the node's runtime configuration, read once at startup.
type Config struct {
	Token       string
	DatabaseURL string
	LogFile     string
	LogLevel    string

	GitRemote         string
	GitBranch         string
	GitCheckIntervalS int
	GitRepoPath       string

	MaxPostsPerSecond int

	SchedulerTickIntervalS int
	HeartbeatMinIntervalS  int

	UpdateCommand    string
	UpdateInstallDir string
}

// Default returns a Config with the defaults spec §6.1 and §4.3/§4.5 name.
func Default() *Config {
	return &Config{
		LogLevel:               "info",
		GitRemote:              "origin",
		GitBranch:              "main",
		GitCheckIntervalS:      300,
		GitRepoPath:            ".",
		MaxPostsPerSecond:      8,
		SchedulerTickIntervalS: 5,
		HeartbeatMinIntervalS:  1,
	}
}

// Load populates a Config from the process environment, loading envPath
// (".env" by convention) first if it exists. A missing .env file is not an
// error — the environment alone is a valid configuration source.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load env file: %w", err)
			}
		}
	}

	cfg := Default()

	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("TOKEN", &cfg.Token)
	envStr("DATABASE_URL", &cfg.DatabaseURL)
	envStr("LOG_FILE", &cfg.LogFile)
	envStr("LOG_LEVEL", &cfg.LogLevel)
	envStr("GIT_REMOTE", &cfg.GitRemote)
	envStr("GIT_BRANCH", &cfg.GitBranch)
	envStr("GIT_REPO_PATH", &cfg.GitRepoPath)
	envInt("GIT_CHECK_INTERVAL_S", &cfg.GitCheckIntervalS)
	envInt("MAX_POSTS_PER_SECOND", &cfg.MaxPostsPerSecond)
	envInt("SCHEDULER_TICK_INTERVAL_S", &cfg.SchedulerTickIntervalS)
	envInt("HEARTBEAT_MIN_INTERVAL_S", &cfg.HeartbeatMinIntervalS)
	envStr("UPDATE_COMMAND", &cfg.UpdateCommand)
	envStr("UPDATE_INSTALL_DIR", &cfg.UpdateInstallDir)

	if cfg.Token == "" {
		return nil, fmt.Errorf("TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
