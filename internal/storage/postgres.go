package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the networked backend used in production deployments.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Postgres{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS guilds (
			guild_name TEXT PRIMARY KEY,
			emoji TEXT NOT NULL,
			role_id TEXT NOT NULL,
			cooldown_seconds INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS ping_history (
			id BIGSERIAL PRIMARY KEY,
			guild_name TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ping_history_guild_at ON ping_history (guild_name, triggered_at)`,
		`CREATE TABLE IF NOT EXISTS cooldown_state (
			guild_name TEXT PRIMARY KEY,
			last_triggered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) UpsertGuild(ctx context.Context, guild Guild) error {
	var cooldown any
	if guild.CooldownSeconds > 0 {
		cooldown = guild.CooldownSeconds
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO guilds (guild_name, emoji, role_id, cooldown_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_name) DO UPDATE SET
			emoji = EXCLUDED.emoji,
			role_id = EXCLUDED.role_id,
			cooldown_seconds = EXCLUDED.cooldown_seconds
	`, guild.Name, guild.Emoji, guild.RoleID, cooldown)
	return err
}

func (p *Postgres) GetGuild(ctx context.Context, name string) (Guild, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT guild_name, emoji, role_id, COALESCE(cooldown_seconds, 0)
		FROM guilds WHERE guild_name = $1`, name)

	var guild Guild
	if err := row.Scan(&guild.Name, &guild.Emoji, &guild.RoleID, &guild.CooldownSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Guild{}, ErrNotFound
		}
		return Guild{}, err
	}
	return guild, nil
}

func (p *Postgres) DeleteGuild(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM guilds WHERE guild_name = $1`, name)
	return err
}

func (p *Postgres) ListGuilds(ctx context.Context) ([]Guild, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT guild_name, emoji, role_id, COALESCE(cooldown_seconds, 0)
		FROM guilds ORDER BY guild_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []Guild
	for rows.Next() {
		var guild Guild
		if err := rows.Scan(&guild.Name, &guild.Emoji, &guild.RoleID, &guild.CooldownSeconds); err != nil {
			return nil, err
		}
		guilds = append(guilds, guild)
	}
	return guilds, rows.Err()
}

func (p *Postgres) AddPingRecord(ctx context.Context, record PingRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ping_history (guild_name, triggered_by, triggered_at)
		VALUES ($1, $2, $3)
	`, record.GuildName, record.TriggeredBy, record.TriggeredAt)
	return err
}

func (p *Postgres) ListPingHistory(ctx context.Context, guildName string, since time.Time) ([]PingRecord, error) {
	query := `
		SELECT id, guild_name, triggered_by, triggered_at
		FROM ping_history
		WHERE triggered_at >= $1
		ORDER BY triggered_at ASC`
	args := []any{since}
	if guildName != "" {
		query = `
		SELECT id, guild_name, triggered_by, triggered_at
		FROM ping_history
		WHERE guild_name = $1 AND triggered_at >= $2
		ORDER BY triggered_at ASC`
		args = []any{guildName, since}
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PingRecord
	for rows.Next() {
		var record PingRecord
		if err := rows.Scan(&record.ID, &record.GuildName, &record.TriggeredBy, &record.TriggeredAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (p *Postgres) GetCooldownState(ctx context.Context, guildName string) (time.Time, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT last_triggered_at FROM cooldown_state WHERE guild_name = $1`, guildName)

	var at time.Time
	if err := row.Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (p *Postgres) SetCooldownState(ctx context.Context, guildName string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO cooldown_state (guild_name, last_triggered_at)
		VALUES ($1, $2)
		ON CONFLICT (guild_name) DO UPDATE SET
			last_triggered_at = EXCLUDED.last_triggered_at
		WHERE EXCLUDED.last_triggered_at >= cooldown_state.last_triggered_at
	`, guildName, at)
	return err
}

func (p *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	row := p.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (p *Postgres) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}
