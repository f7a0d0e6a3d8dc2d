package storage

import (
	"context"
	"errors"
	"time"

	"defense-alert/internal/config"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a guild or setting does not exist.
var ErrNotFound = errors.New("storage: not found")

type Guild struct {
	Name            string
	Emoji           string
	RoleID          string
	CooldownSeconds int // 0 means the global default applies
}

type PingRecord struct {
	ID          int64
	GuildName   string
	TriggeredBy string
	TriggeredAt time.Time
}

// Store is the persistence boundary shared by the SQLite and Postgres backends.
type Store interface {
	UpsertGuild(ctx context.Context, guild Guild) error
	GetGuild(ctx context.Context, name string) (Guild, error)
	DeleteGuild(ctx context.Context, name string) error
	ListGuilds(ctx context.Context) ([]Guild, error)

	AddPingRecord(ctx context.Context, record PingRecord) error
	ListPingHistory(ctx context.Context, guildName string, since time.Time) ([]PingRecord, error)

	GetCooldownState(ctx context.Context, guildName string) (time.Time, bool, error)
	SetCooldownState(ctx context.Context, guildName string, at time.Time) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close()
}

// Open selects the backend the way the original deployment did: Postgres when a
// DATABASE_URL is configured and dev mode is off, the embedded SQLite file otherwise.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Store, error) {
	if !cfg.DevMode && cfg.DatabaseURL != "" {
		store, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err == nil {
			return store, nil
		}
		logger.Warn("postgres unavailable, falling back to sqlite", zap.Error(err))
	}
	return NewSQLite(cfg.DatabasePath)
}
