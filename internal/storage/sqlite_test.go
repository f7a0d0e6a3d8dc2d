package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestGuildRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	guild := Guild{Name: "Crescent", Emoji: "🌙", RoleID: "role-1"}
	if err := store.UpsertGuild(ctx, guild); err != nil {
		t.Fatalf("upsert guild: %v", err)
	}

	got, err := store.GetGuild(ctx, "Crescent")
	if err != nil {
		t.Fatalf("get guild: %v", err)
	}
	if got.RoleID != "role-1" || got.Emoji != "🌙" {
		t.Fatalf("unexpected guild: %+v", got)
	}
	if got.CooldownSeconds != 0 {
		t.Fatalf("expected no cooldown override, got %d", got.CooldownSeconds)
	}

	guild.RoleID = "role-2"
	guild.CooldownSeconds = 240
	if err := store.UpsertGuild(ctx, guild); err != nil {
		t.Fatalf("update guild: %v", err)
	}
	got, err = store.GetGuild(ctx, "Crescent")
	if err != nil {
		t.Fatalf("get updated guild: %v", err)
	}
	if got.RoleID != "role-2" || got.CooldownSeconds != 240 {
		t.Fatalf("unexpected updated guild: %+v", got)
	}

	if err := store.DeleteGuild(ctx, "Crescent"); err != nil {
		t.Fatalf("delete guild: %v", err)
	}
	if _, err := store.GetGuild(ctx, "Crescent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListGuilds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Triade", "Universe", "Prism"} {
		if err := store.UpsertGuild(ctx, Guild{Name: name, RoleID: "r-" + name}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	guilds, err := store.ListGuilds(ctx)
	if err != nil {
		t.Fatalf("list guilds: %v", err)
	}
	if len(guilds) != 3 {
		t.Fatalf("expected 3 guilds, got %d", len(guilds))
	}
}

func TestPingHistoryOrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	records := []PingRecord{
		{GuildName: "Triade", TriggeredBy: "u1", TriggeredAt: base.Add(2 * time.Hour)},
		{GuildName: "Prism", TriggeredBy: "u2", TriggeredAt: base},
		{GuildName: "Triade", TriggeredBy: "u2", TriggeredAt: base.Add(1 * time.Hour)},
	}
	for _, record := range records {
		if err := store.AddPingRecord(ctx, record); err != nil {
			t.Fatalf("add ping record: %v", err)
		}
	}

	all, err := store.ListPingHistory(ctx, "", time.Time{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].TriggeredAt.Before(all[i-1].TriggeredAt) {
			t.Fatalf("history not ascending at index %d", i)
		}
	}

	triade, err := store.ListPingHistory(ctx, "Triade", time.Time{})
	if err != nil {
		t.Fatalf("list guild: %v", err)
	}
	if len(triade) != 2 {
		t.Fatalf("expected 2 Triade records, got %d", len(triade))
	}

	recent, err := store.ListPingHistory(ctx, "", base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 1 || recent[0].TriggeredBy != "u1" {
		t.Fatalf("unexpected since filter result: %+v", recent)
	}
}

func TestCooldownStateMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetCooldownState(ctx, "Triade"); err != nil || ok {
		t.Fatalf("expected absent state, got ok=%t err=%v", ok, err)
	}

	later := time.Unix(1700003600, 0)
	earlier := time.Unix(1700000000, 0)

	if err := store.SetCooldownState(ctx, "Triade", later); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := store.SetCooldownState(ctx, "Triade", earlier); err != nil {
		t.Fatalf("set earlier state: %v", err)
	}

	got, ok, err := store.GetCooldownState(ctx, "Triade")
	if err != nil || !ok {
		t.Fatalf("get state: ok=%t err=%v", ok, err)
	}
	if !got.Equal(later) {
		t.Fatalf("timestamp moved backward: got %v, want %v", got, later)
	}
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetSetting(ctx, "ALERTE_DEF_CHANNEL_ID"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetSetting(ctx, "ALERTE_DEF_CHANNEL_ID", "chan-1"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := store.SetSetting(ctx, "ALERTE_DEF_CHANNEL_ID", "chan-2"); err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}

	value, err := store.GetSetting(ctx, "ALERTE_DEF_CHANNEL_ID")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if value != "chan-2" {
		t.Fatalf("expected chan-2, got %q", value)
	}
}
