package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is the embedded backend used in dev mode and as the production fallback.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers and keeps :memory: databases coherent
	db.SetMaxOpenConns(1)
	store := &SQLite{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLite) migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *SQLite) UpsertGuild(ctx context.Context, guild Guild) error {
	var cooldown any
	if guild.CooldownSeconds > 0 {
		cooldown = guild.CooldownSeconds
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guilds (guild_name, emoji, role_id, cooldown_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_name) DO UPDATE SET
			emoji = excluded.emoji,
			role_id = excluded.role_id,
			cooldown_seconds = excluded.cooldown_seconds
	`, guild.Name, guild.Emoji, guild.RoleID, cooldown)
	return err
}

func (s *SQLite) GetGuild(ctx context.Context, name string) (Guild, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_name, emoji, role_id, COALESCE(cooldown_seconds, 0)
		FROM guilds WHERE guild_name = ?`, name)

	var guild Guild
	if err := row.Scan(&guild.Name, &guild.Emoji, &guild.RoleID, &guild.CooldownSeconds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Guild{}, ErrNotFound
		}
		return Guild{}, err
	}
	return guild, nil
}

func (s *SQLite) DeleteGuild(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM guilds WHERE guild_name = ?`, name)
	return err
}

func (s *SQLite) ListGuilds(ctx context.Context) ([]Guild, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func (s *SQLite) AddPingRecord(ctx context.Context, record PingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ping_history (guild_name, triggered_by, triggered_at)
		VALUES (?, ?, ?)
	`, record.GuildName, record.TriggeredBy, record.TriggeredAt.Unix())
	return err
}

func (s *SQLite) ListPingHistory(ctx context.Context, guildName string, since time.Time) ([]PingRecord, error) {
	query := `
		SELECT id, guild_name, triggered_by, triggered_at
		FROM ping_history
		WHERE triggered_at >= ?
		ORDER BY triggered_at ASC`
	args := []any{since.Unix()}
	if guildName != "" {
		query = `
		SELECT id, guild_name, triggered_by, triggered_at
		FROM ping_history
		WHERE guild_name = ? AND triggered_at >= ?
		ORDER BY triggered_at ASC`
		args = []any{guildName, since.Unix()}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PingRecord
	for rows.Next() {
		var record PingRecord
		var at int64
		if err := rows.Scan(&record.ID, &record.GuildName, &record.TriggeredBy, &at); err != nil {
			return nil, err
		}
		record.TriggeredAt = time.Unix(at, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLite) GetCooldownState(ctx context.Context, guildName string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_triggered_at FROM cooldown_state WHERE guild_name = ?`, guildName)

	var at int64
	if err := row.Scan(&at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(at, 0), true, nil
}

func (s *SQLite) SetCooldownState(ctx context.Context, guildName string, at time.Time) error {
	// last_triggered_at never moves backwards, even on concurrent writers.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldown_state (guild_name, last_triggered_at)
		VALUES (?, ?)
		ON CONFLICT(guild_name) DO UPDATE SET
			last_triggered_at = excluded.last_triggered_at
		WHERE excluded.last_triggered_at >= cooldown_state.last_triggered_at
	`, guildName, at.Unix())
	return err
}

func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
