package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"defense-alert/internal/cooldown"
	"defense-alert/internal/registry"
	"defense-alert/internal/storage"

	"go.uber.org/zap"
)

// ErrUnknownGuild is returned when the requested guild is not registered.
var ErrUnknownGuild = errors.New("unknown guild")

// CooldownError is returned when the guild's cooldown has not elapsed yet.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("guild on cooldown, %.0fs remaining", e.Remaining.Seconds())
}

// PersistenceError means the store could not confirm the cooldown reservation or the
// history write. The dispatch fails closed: no channel message is sent.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Sender delivers one alert message to one channel. The bot provides the Discord-backed
// implementation; tests substitute a fake.
type Sender interface {
	SendAlert(ctx context.Context, channelID string, guild storage.Guild, requesterID string) error
}

// Settings keys holding the alert channel overrides set by /set_alerts_channel.
const (
	SettingPingDefChannel   = "PING_DEF_CHANNEL_ID"
	SettingAlerteDefChannel = "ALERTE_DEF_CHANNEL_ID"
)

type ChannelResult struct {
	ChannelID string
	Err       error
}

type Result struct {
	Guild       storage.Guild
	RequesterID string
	TriggeredAt time.Time
	Channels    []ChannelResult
}

// Delivered reports whether every channel send succeeded.
func (r Result) Delivered() bool {
	for _, channel := range r.Channels {
		if channel.Err != nil {
			return false
		}
	}
	return len(r.Channels) > 0
}

// Dispatcher orchestrates a defense alert: resolve the guild, reserve the cooldown slot,
// record the ping, then fan the message out. The history write happens before any send, so
// a crash in between leaves a recorded-but-unsent alert, never the reverse.
type Dispatcher struct {
	registry  *registry.Registry
	cooldowns *cooldown.Tracker
	store     storage.Store
	sender    Sender
	logger    *zap.Logger

	defaultPingDef   string
	defaultAlerteDef string
}

func New(reg *registry.Registry, cooldowns *cooldown.Tracker, store storage.Store, sender Sender, pingDefChannel, alerteDefChannel string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:         reg,
		cooldowns:        cooldowns,
		store:            store,
		sender:           sender,
		logger:           logger,
		defaultPingDef:   pingDefChannel,
		defaultAlerteDef: alerteDefChannel,
	}
}

func (d *Dispatcher) Trigger(ctx context.Context, guildName, requesterID string) (Result, error) {
	guild, err := d.registry.Resolve(ctx, guildName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, ErrUnknownGuild
		}
		return Result{}, &PersistenceError{Op: "resolve guild", Err: err}
	}

	override := time.Duration(guild.CooldownSeconds) * time.Second
	decision, err := d.cooldowns.CheckAndReserve(ctx, guild.Name, override)
	if err != nil {
		return Result{}, &PersistenceError{Op: "reserve cooldown", Err: err}
	}
	if !decision.Allowed {
		return Result{}, &CooldownError{Remaining: decision.Remaining}
	}

	record := storage.PingRecord{
		GuildName:   guild.Name,
		TriggeredBy: requesterID,
		TriggeredAt: time.Now(),
	}
	if err := d.store.AddPingRecord(ctx, record); err != nil {
		// the reservation stands so a retry cannot double-alert
		return Result{}, &PersistenceError{Op: "record alert", Err: err}
	}

	result := Result{Guild: guild, RequesterID: requesterID, TriggeredAt: record.TriggeredAt}
	for _, channelID := range d.channels(ctx) {
		if err := ctx.Err(); err != nil {
			result.Channels = append(result.Channels, ChannelResult{ChannelID: channelID, Err: err})
			continue
		}
		sendErr := d.sender.SendAlert(ctx, channelID, guild, requesterID)
		if sendErr != nil {
			d.logger.Warn("alert delivery failed",
				zap.String("guild", guild.Name),
				zap.String("channel_id", channelID),
				zap.Error(sendErr))
		}
		result.Channels = append(result.Channels, ChannelResult{ChannelID: channelID, Err: sendErr})
	}

	d.logger.Info("alert dispatched",
		zap.String("guild", guild.Name),
		zap.String("requester_id", requesterID),
		zap.Bool("delivered", result.Delivered()))
	return result, nil
}

// channels reads the alert targets from settings at dispatch time, falling back to the
// configured defaults when no override has been stored.
func (d *Dispatcher) channels(ctx context.Context) []string {
	targets := []struct {
		key      string
		fallback string
	}{
		{SettingPingDefChannel, d.defaultPingDef},
		{SettingAlerteDefChannel, d.defaultAlerteDef},
	}

	var out []string
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		channelID := target.fallback
		value, err := d.store.GetSetting(ctx, target.key)
		if err == nil && value != "" {
			channelID = value
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("settings read failed", zap.String("key", target.key), zap.Error(err))
		}
		if channelID == "" {
			continue
		}
		if _, ok := seen[channelID]; ok {
			continue
		}
		seen[channelID] = struct{}{}
		out = append(out, channelID)
	}
	return out
}
