package cooldown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"defense-alert/internal/storage"
)

// Decision is the outcome of a check-and-reserve attempt.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tracker serializes alert attempts per guild. Each guild has its own lock and cached
// last-trigger time; the persisted cooldown_state row is the source of truth across
// restarts and is written through on every reservation.
type Tracker struct {
	store           storage.Store
	defaultDuration time.Duration
	clock           Clock
	mu              sync.Mutex
	locks           map[string]*guildLock
}

type guildLock struct {
	mu     sync.Mutex
	last   time.Time
	cached bool
}

func New(store storage.Store, defaultDuration time.Duration) *Tracker {
	return &Tracker{
		store:           store,
		defaultDuration: defaultDuration,
		clock:           realClock{},
		locks:           make(map[string]*guildLock),
	}
}

func (t *Tracker) WithClock(clock Clock) {
	t.clock = clock
}

// CheckAndReserve decides whether an alert for the guild is currently allowed and, if so,
// reserves the slot. override, when positive, replaces the default cooldown duration.
// Two concurrent calls for the same guild never both succeed; different guilds do not
// contend on a shared lock.
func (t *Tracker) CheckAndReserve(ctx context.Context, guildName string, override time.Duration) (Decision, error) {
	lock := t.lockFor(guildName)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if !lock.cached {
		last, ok, err := t.store.GetCooldownState(ctx, guildName)
		if err != nil {
			return Decision{}, fmt.Errorf("read cooldown state: %w", err)
		}
		if ok {
			lock.last = last
		}
		lock.cached = true
	}

	duration := t.defaultDuration
	if override > 0 {
		duration = override
	}

	now := t.clock.Now()
	if !lock.last.IsZero() {
		elapsed := now.Sub(lock.last)
		if elapsed < duration {
			return Decision{Remaining: duration - elapsed}, nil
		}
		if now.Before(lock.last) {
			// keep last_triggered_at monotonic under clock skew
			now = lock.last
		}
	}

	if err := t.store.SetCooldownState(ctx, guildName, now); err != nil {
		// reservation unconfirmed, caller must fail closed
		return Decision{}, fmt.Errorf("write cooldown state: %w", err)
	}
	lock.last = now
	return Decision{Allowed: true}, nil
}

func (t *Tracker) lockFor(guildName string) *guildLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock := t.locks[guildName]
	if lock == nil {
		lock = &guildLock{}
		t.locks[guildName] = lock
	}
	return lock
}
