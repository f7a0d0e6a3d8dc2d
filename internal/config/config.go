package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken       string       `yaml:"discord_token"`
	DatabaseURL        string       `yaml:"database_url"`
	DatabasePath       string       `yaml:"database_path"`
	DevMode            bool         `yaml:"dev_mode"`
	LogLevel           string       `yaml:"log_level"`
	GuildID            string       `yaml:"guild_id"`
	PingDefChannelID   string       `yaml:"ping_def_channel_id"`
	AlerteDefChannelID string       `yaml:"alerte_def_channel_id"`
	OwnerID            string       `yaml:"owner_id"`
	CooldownMinutes    int          `yaml:"cooldown_minutes"`
	PanelRefreshSecs   int          `yaml:"panel_refresh_seconds"`
	Health             HealthConfig `yaml:"health"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:     "/data/defense.db",
		DevMode:          true,
		LogLevel:         "info",
		CooldownMinutes:  5,
		PanelRefreshSecs: 600,
		Health:           HealthConfig{Enabled: false, Addr: ":8080"},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.CooldownMinutes <= 0 {
		cfg.CooldownMinutes = 5
	}
	if cfg.PanelRefreshSecs <= 0 {
		cfg.PanelRefreshSecs = 600
	}

	return cfg, nil
}

// Cooldown is the default delay between two alerts for the same guild.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c Config) PanelRefresh() time.Duration {
	return time.Duration(c.PanelRefreshSecs) * time.Second
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.DevMode = envBool("DEV_MODE", cfg.DevMode)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.PingDefChannelID = envString("PING_DEF_CHANNEL_ID", cfg.PingDefChannelID)
	cfg.AlerteDefChannelID = envString("ALERTE_DEF_CHANNEL_ID", cfg.AlerteDefChannelID)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	cfg.CooldownMinutes = envInt("COOLDOWN_MINUTES", cfg.CooldownMinutes)
	cfg.PanelRefreshSecs = envInt("PANEL_REFRESH_SECONDS", cfg.PanelRefreshSecs)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "t" || lower == "yes"
	}
	return fallback
}
