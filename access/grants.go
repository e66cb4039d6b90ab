// Package access tracks which users may request predictions
package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"minesServer/config"
)

type Grant struct {
	UserID    string     `json:"userId"`
	Active    bool       `json:"active"`
	Emergency bool       `json:"emergency"`
	Duration  string     `json:"duration"` // as requested: permanent, 12h, 7d
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	GrantedAt time.Time  `json:"grantedAt"`
	GrantedBy string     `json:"grantedBy"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	RevokedBy string     `json:"revokedBy,omitempty"`
}

// Expired reports whether an expiring grant has lapsed at now
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// Store persists grants. GetGrant returns nil, nil for unknown users.
type Store interface {
	GetGrant(ctx context.Context, userID string) (*Grant, error)
	PutGrant(ctx context.Context, g Grant) error
	CountActiveGrants(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrNoGrant      = errors.New("no active grant")
	ErrGrantExpired = errors.New("grant expired")
)

// DeniedError wraps ErrNoGrant or ErrGrantExpired for a user
type DeniedError struct {
	UserID string
	Err    error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied for %s: %v", e.UserID, e.Err)
}

func (e *DeniedError) Unwrap() error { return e.Err }

func IsDenied(err error) bool {
	var target *DeniedError
	return errors.As(err, &target)
}

// ParseDuration accepts "permanent", "Nh" or "Nd" with N >= 1. A permanent
// grant returns zero and true.
func ParseDuration(s string) (time.Duration, bool, error) {
	if s == config.DurationPermanent {
		return 0, true, nil
	}
	if len(s) < 2 {
		return 0, false, fmt.Errorf("invalid duration %q: use Nh, Nd or permanent", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("invalid duration %q: amount must be a positive integer", s)
	}

	switch s[len(s)-1] {
	case 'h':
		return time.Duration(n) * time.Hour, false, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, false, nil
	default:
		return 0, false, fmt.Errorf("invalid duration %q: unit must be h or d", s)
	}
}

type Registry struct {
	store Store
	now   func() time.Time
}

func NewRegistry(store Store, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, now: now}
}

// Grant gives userID access for duration, replacing any earlier grant
func (r *Registry) Grant(ctx context.Context, userID, grantedBy, duration string) (Grant, error) {
	d, permanent, err := ParseDuration(duration)
	if err != nil {
		return Grant{}, err
	}

	now := r.now()
	g := Grant{
		UserID:    userID,
		Active:    true,
		Duration:  duration,
		GrantedAt: now,
		GrantedBy: grantedBy,
	}
	if !permanent {
		expires := now.Add(d)
		g.ExpiresAt = &expires
	}

	if err := r.store.PutGrant(ctx, g); err != nil {
		return Grant{}, fmt.Errorf("failed to save grant: %w", err)
	}

	log.Printf("✅ Access granted - user: %s, duration: %s, by: %s", userID, duration, grantedBy)
	return g, nil
}

// EmergencyGrant gives permanent access flagged as an override
func (r *Registry) EmergencyGrant(ctx context.Context, userID, grantedBy string) (Grant, error) {
	g := Grant{
		UserID:    userID,
		Active:    true,
		Emergency: true,
		Duration:  config.DurationPermanent,
		GrantedAt: r.now(),
		GrantedBy: grantedBy,
	}
	if err := r.store.PutGrant(ctx, g); err != nil {
		return Grant{}, fmt.Errorf("failed to save grant: %w", err)
	}

	log.Printf("⚠️  Emergency access granted - user: %s, by: %s", userID, grantedBy)
	return g, nil
}

// Revoke deactivates the user's grant, keeping it for audit
func (r *Registry) Revoke(ctx context.Context, userID, revokedBy string) error {
	g, err := r.store.GetGrant(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load grant: %w", err)
	}
	if g == nil || !g.Active {
		return &DeniedError{UserID: userID, Err: ErrNoGrant}
	}

	now := r.now()
	g.Active = false
	g.RevokedAt = &now
	g.RevokedBy = revokedBy

	if err := r.store.PutGrant(ctx, *g); err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}

	log.Printf("✅ Access revoked - user: %s, by: %s", userID, revokedBy)
	return nil
}

// Check returns nil when userID holds an active, unexpired grant. A lapsed
// grant is deactivated on the spot.
func (r *Registry) Check(ctx context.Context, userID string) error {
	g, err := r.store.GetGrant(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load grant: %w", err)
	}
	if g == nil || !g.Active {
		return &DeniedError{UserID: userID, Err: ErrNoGrant}
	}

	now := r.now()
	if g.Expired(now) {
		g.Active = false
		g.RevokedAt = &now
		g.RevokedBy = "expiry"
		if err := r.store.PutGrant(ctx, *g); err != nil {
			return fmt.Errorf("failed to expire grant: %w", err)
		}
		return &DeniedError{UserID: userID, Err: ErrGrantExpired}
	}

	return nil
}

func (r *Registry) ActiveCount(ctx context.Context) (int, error) {
	return r.store.CountActiveGrants(ctx, r.now())
}
