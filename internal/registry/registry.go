package registry

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"defense-alert/internal/storage"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Registry resolves community guild names to their emoji and alert role. Lookups are
// case-insensitive and tolerate the apostrophes and accents members actually type.
type Registry struct {
	store  storage.Store
	mu     sync.RWMutex
	byKey  map[string]storage.Guild
	loaded bool
}

func New(store storage.Store) *Registry {
	return &Registry{store: store, byKey: make(map[string]storage.Guild)}
}

func (r *Registry) Resolve(ctx context.Context, name string) (storage.Guild, error) {
	key := foldName(name)
	if key == "" {
		return storage.Guild{}, storage.ErrNotFound
	}

	r.mu.RLock()
	guild, ok := r.byKey[key]
	loaded := r.loaded
	r.mu.RUnlock()
	if ok {
		return guild, nil
	}
	if loaded {
		return storage.Guild{}, storage.ErrNotFound
	}

	if err := r.Reload(ctx); err != nil {
		return storage.Guild{}, err
	}

	r.mu.RLock()
	guild, ok = r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return storage.Guild{}, storage.ErrNotFound
	}
	return guild, nil
}

func (r *Registry) Register(ctx context.Context, guild storage.Guild) error {
	if err := r.store.UpsertGuild(ctx, guild); err != nil {
		return err
	}
	r.mu.Lock()
	r.byKey[foldName(guild.Name)] = guild
	r.mu.Unlock()
	return nil
}

func (r *Registry) Remove(ctx context.Context, name string) error {
	guild, err := r.Resolve(ctx, name)
	if err != nil {
		return err
	}
	if err := r.store.DeleteGuild(ctx, guild.Name); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.byKey, foldName(guild.Name))
	r.mu.Unlock()
	return nil
}

func (r *Registry) List(ctx context.Context) ([]storage.Guild, error) {
	return r.store.ListGuilds(ctx)
}

// Reload replaces the cache with the persisted guild set.
func (r *Registry) Reload(ctx context.Context) error {
	guilds, err := r.store.ListGuilds(ctx)
	if err != nil {
		return err
	}

	byKey := make(map[string]storage.Guild, len(guilds))
	for _, guild := range guilds {
		byKey[foldName(guild.Name)] = guild
	}

	r.mu.Lock()
	r.byKey = byKey
	r.loaded = true
	r.mu.Unlock()
	return nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName normalizes a guild name for lookup: lowercase, accents stripped,
// punctuation dropped, whitespace collapsed.
func foldName(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
