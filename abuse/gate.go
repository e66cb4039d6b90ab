// Package abuse gates result submissions per submitter. A submitter is clean
// until it submits too fast or repeats the same claim too often, after which
// it stays banned until an admin lifts the ban.
package abuse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"minesServer/config"
	"minesServer/game"
	"minesServer/keylock"
)

type BanRecord struct {
	SubmitterID string    `json:"submitterId"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// History is the sliding window kept per submitter
type History struct {
	Timestamps   []time.Time `json:"timestamps"`
	Fingerprints []string    `json:"fingerprints"`
}

// BanStore persists ban records. GetBan returns nil, nil when no ban exists.
type BanStore interface {
	GetBan(ctx context.Context, submitterID string) (*BanRecord, error)
	PutBan(ctx context.Context, ban BanRecord) error
	DeleteBan(ctx context.Context, submitterID string) error
}

// HistoryStore persists submitter windows. A missing entry is an empty History.
type HistoryStore interface {
	GetHistory(ctx context.Context, submitterID string) (History, error)
	PutHistory(ctx context.Context, submitterID string, h History) error
	DeleteHistory(ctx context.Context, submitterID string) error
}

// AbuseViolation is returned for banned submitters
type AbuseViolation struct {
	SubmitterID string
	Reason      string
	Since       time.Time
}

func (e *AbuseViolation) Error() string {
	return fmt.Sprintf("submitter %s is banned (%s) since %s", e.SubmitterID, e.Reason, e.Since.UTC().Format(time.RFC3339))
}

func IsAbuseViolation(err error) bool {
	var target *AbuseViolation
	return errors.As(err, &target)
}

type Gate struct {
	bans    BanStore
	history HistoryStore
	locks   *keylock.Locker
	now     func() time.Time

	window          time.Duration
	rateLimit       int
	fingerprintSize int
	repetitionLimit int
}

type Option func(*Gate)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(bans BanStore, history HistoryStore, opts ...Option) *Gate {
	g := &Gate{
		bans:            bans,
		history:         history,
		locks:           keylock.New(),
		now:             time.Now,
		window:          config.AbuseWindow,
		rateLimit:       config.RateLimitCount,
		fingerprintSize: config.FingerprintWindow,
		repetitionLimit: config.RepetitionLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckBan is the cheap pre-check run before any validation or hashing
func (g *Gate) CheckBan(ctx context.Context, submitterID string) error {
	ban, err := g.bans.GetBan(ctx, submitterID)
	if err != nil {
		return fmt.Errorf("failed to load ban: %w", err)
	}
	if ban != nil {
		return &AbuseViolation{SubmitterID: ban.SubmitterID, Reason: ban.Reason, Since: ban.Timestamp}
	}
	return nil
}

// Admit records one submission attempt and bans the submitter when it crosses
// the rate or repetition threshold. The attempt that crosses is itself refused.
func (g *Gate) Admit(ctx context.Context, submitterID string, positions []int) error {
	unlock := g.locks.Lock(submitterID)
	defer unlock()

	if err := g.CheckBan(ctx, submitterID); err != nil {
		return err
	}

	h, err := g.history.GetHistory(ctx, submitterID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	now := g.now()
	cutoff := now.Add(-g.window)

	kept := h.Timestamps[:0]
	for _, ts := range h.Timestamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.Timestamps = append(kept, now)

	h.Fingerprints = append(h.Fingerprints, game.Fingerprint(positions))
	if len(h.Fingerprints) > g.fingerprintSize {
		h.Fingerprints = h.Fingerprints[len(h.Fingerprints)-g.fingerprintSize:]
	}

	if err := g.history.PutHistory(ctx, submitterID, h); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	if len(h.Timestamps) >= g.rateLimit {
		return g.ban(ctx, submitterID, config.BanReasonRate, now)
	}
	if repeated(h.Fingerprints) > g.repetitionLimit {
		return g.ban(ctx, submitterID, config.BanReasonRepetition, now)
	}

	return nil
}

func (g *Gate) ban(ctx context.Context, submitterID, reason string, at time.Time) error {
	record := BanRecord{SubmitterID: submitterID, Reason: reason, Timestamp: at}
	if err := g.bans.PutBan(ctx, record); err != nil {
		return fmt.Errorf("failed to save ban: %w", err)
	}

	log.Printf("🚫 Submitter banned - id: %s, reason: %s", submitterID, reason)
	return &AbuseViolation{SubmitterID: submitterID, Reason: reason, Since: at}
}

// Unban clears the ban and the sliding window
func (g *Gate) Unban(ctx context.Context, submitterID string) error {
	unlock := g.locks.Lock(submitterID)
	defer unlock()

	if err := g.bans.DeleteBan(ctx, submitterID); err != nil {
		return fmt.Errorf("failed to delete ban: %w", err)
	}
	if err := g.history.DeleteHistory(ctx, submitterID); err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}

	log.Printf("✅ Submitter unbanned - id: %s", submitterID)
	return nil
}

// repeated returns the highest occurrence count of any fingerprint
func repeated(fingerprints []string) int {
	counts := make(map[string]int, len(fingerprints))
	max := 0
	for _, f := range fingerprints {
		counts[f]++
		if counts[f] > max {
			max = counts[f]
		}
	}
	return max
}
