package registry

import (
	"context"
	"errors"
	"testing"

	"defense-alert/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	return New(store), store
}

func TestResolveIsForgiving(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, storage.Guild{Name: "Défense d'Élite", RoleID: "r1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	inputs := []string{
		"Défense d'Élite",
		"defense delite",
		"DEFENSE DELITE",
		"  défense   d'élite  ",
	}
	for _, input := range inputs {
		guild, err := reg.Resolve(ctx, input)
		if err != nil {
			t.Fatalf("resolve %q: %v", input, err)
		}
		if guild.Name != "Défense d'Élite" {
			t.Fatalf("resolve %q: got %q", input, guild.Name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, storage.Guild{Name: "Triade", RoleID: "r1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Resolve(ctx, "Nomea"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Resolve(ctx, "   "); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank name, got %v", err)
	}
}

func TestResolveLoadsFromStore(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	// written behind the registry's back, as a restart would leave it
	if err := store.UpsertGuild(ctx, storage.Guild{Name: "Universe", RoleID: "r9"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	guild, err := reg.Resolve(ctx, "universe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if guild.RoleID != "r9" {
		t.Fatalf("unexpected guild: %+v", guild)
	}
}

func TestRemoveByAlias(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, storage.Guild{Name: "Nomea", RoleID: "r1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Remove(ctx, "NOMEA"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := reg.Resolve(ctx, "Nomea"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if err := reg.Remove(ctx, "Nomea"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing twice, got %v", err)
	}
}

func TestRegisterUpdatesExisting(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, storage.Guild{Name: "Prism", RoleID: "r1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(ctx, storage.Guild{Name: "Prism", RoleID: "r2", CooldownSeconds: 60}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	guild, err := reg.Resolve(ctx, "prism")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if guild.RoleID != "r2" || guild.CooldownSeconds != 60 {
		t.Fatalf("unexpected guild after update: %+v", guild)
	}
}

func TestFoldName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Crescent", "crescent"},
		{"CRESCENT", "crescent"},
		{"Créscent", "crescent"},
		{"Jungle  Gap", "jungle gap"},
		{"L'Aurore", "laurore"},
		{"  Warriors Toxic  ", "warriors toxic"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := foldName(tc.in); got != tc.want {
			t.Fatalf("foldName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
