// Package tracker records successfully delivered chat messages and removes
// them again after a TTL, warning the recipient shortly before expiry.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notifier is the slice of the chat platform the sweep needs. Both calls
// may fail; the tracker logs and moves on, it never retries or escalates.
type Notifier interface {
	WarnExpiry(ctx context.Context, chatID int64, filename string, remaining time.Duration) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

type Config struct {
	TTL           time.Duration // message lifetime after a confirmed send
	SweepInterval time.Duration
	WarningWindow time.Duration // how long before expiry the warning goes out
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = 5 * time.Minute
	}
	return c
}

type key struct {
	ChatID    int64
	MessageID int64
}

type entry struct {
	SentAt   time.Time
	Warned   bool
	Filename string
}

// Tracker owns the tracked-message table. All access goes through the
// mutex; the sweep takes a snapshot under the lock and performs network
// calls outside it.
type Tracker struct {
	cfg      Config
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[key]*entry
}

func New(cfg Config, notifier Notifier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg.withDefaults(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[key]*entry),
	}
}

// Track registers a delivered message for auto-deletion. Call only after
// a confirmed successful send.
func (t *Tracker) Track(chatID, messageID int64, filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key{ChatID: chatID, MessageID: messageID}] = &entry{
		SentAt:   t.now(),
		Filename: filename,
	}
}

// Len reports the number of currently tracked messages.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps on the configured interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	t.logger.Info("tracker_start",
		"ttl", t.cfg.TTL.String(),
		"sweep_interval", t.cfg.SweepInterval.String(),
		"warning_window", t.cfg.WarningWindow.String(),
	)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker_stop")
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

type pending struct {
	key   key
	entry entry
}

// Sweep runs one maintenance pass: entries inside the warning window are
// warned exactly once, expired entries are deleted and dropped from the
// table regardless of whether the delete call succeeds: a message the
// user already removed, or one the bot lacks permission to delete, must
// not be retried forever.
func (t *Tracker) Sweep(ctx context.Context) {
	now := t.now()
	warnAfter := t.cfg.TTL - t.cfg.WarningWindow

	var toWarn, toDelete []pending
	t.mu.Lock()
	for k, e := range t.entries {
		elapsed := now.Sub(e.SentAt)
		switch {
		case elapsed > t.cfg.TTL:
			toDelete = append(toDelete, pending{key: k, entry: *e})
			delete(t.entries, k)
		case elapsed > warnAfter && !e.Warned:
			e.Warned = true
			toWarn = append(toWarn, pending{key: k, entry: *e})
		}
	}
	t.mu.Unlock()

	for _, p := range toWarn {
		remaining := t.cfg.TTL - now.Sub(p.entry.SentAt)
		if err := t.notifier.WarnExpiry(ctx, p.key.ChatID, p.entry.Filename, remaining); err != nil {
			t.logger.Warn("sweep_warn_failed",
				"chat_id", p.key.ChatID,
				"message_id", p.key.MessageID,
				"error", err.Error(),
			)
			continue
		}
		t.logger.Info("sweep_warned", "chat_id", p.key.ChatID, "message_id", p.key.MessageID)
	}

	for _, p := range toDelete {
		if err := t.notifier.DeleteMessage(ctx, p.key.ChatID, p.key.MessageID); err != nil {
			t.logger.Warn("sweep_delete_failed",
				"chat_id", p.key.ChatID,
				"message_id", p.key.MessageID,
				"error", err.Error(),
			)
			continue
		}
		t.logger.Info("sweep_deleted", "chat_id", p.key.ChatID, "message_id", p.key.MessageID)
	}
}
