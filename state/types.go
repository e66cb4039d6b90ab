package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"minesServer/abuse"
	"minesServer/access"
	"minesServer/service"
)

// ==============================================================================
// IN-MEMORY STORES
// ==============================================================================
//
// Default backing for every store interface when neither PostgreSQL nor Redis
// is reachable, and the fakes used in tests. Nothing here survives a restart.
//
// ==============================================================================

// ==============================================================================
// USED SEED REGISTRY
// ==============================================================================

type UsedSeeds struct {
	mu   sync.RWMutex
	used map[string]time.Time
}

func NewUsedSeeds() *UsedSeeds {
	return &UsedSeeds{used: make(map[string]time.Time)}
}

func (u *UsedSeeds) IsUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	_, ok := u.used[serverSeedHash]
	return ok, nil
}

func (u *UsedSeeds) MarkUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.used[serverSeedHash]; ok {
		return false, nil
	}
	u.used[serverSeedHash] = time.Now()
	return true, nil
}

func (u *UsedSeeds) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.used)
}

// ==============================================================================
// BANS
// ==============================================================================

type Bans struct {
	mu   sync.RWMutex
	bans map[string]abuse.BanRecord
}

func NewBans() *Bans {
	return &Bans{bans: make(map[string]abuse.BanRecord)}
}

func (b *Bans) GetBan(ctx context.Context, submitterID string) (*abuse.BanRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ban, ok := b.bans[submitterID]
	if !ok {
		return nil, nil
	}
	return &ban, nil
}

func (b *Bans) PutBan(ctx context.Context, ban abuse.BanRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bans[ban.SubmitterID] = ban
	return nil
}

func (b *Bans) DeleteBan(ctx context.Context, submitterID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.bans, submitterID)
	return nil
}

// ==============================================================================
// SUBMITTER HISTORY
// ==============================================================================

type Histories struct {
	mu      sync.RWMutex
	history map[string]abuse.History
}

func NewHistories() *Histories {
	return &Histories{history: make(map[string]abuse.History)}
}

func (h *Histories) GetHistory(ctx context.Context, submitterID string) (abuse.History, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stored := h.history[submitterID]
	return abuse.History{
		Timestamps:   append([]time.Time(nil), stored.Timestamps...),
		Fingerprints: append([]string(nil), stored.Fingerprints...),
	}, nil
}

func (h *Histories) PutHistory(ctx context.Context, submitterID string, hist abuse.History) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[submitterID] = abuse.History{
		Timestamps:   append([]time.Time(nil), hist.Timestamps...),
		Fingerprints: append([]string(nil), hist.Fingerprints...),
	}
	return nil
}

func (h *Histories) DeleteHistory(ctx context.Context, submitterID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.history, submitterID)
	return nil
}

// ==============================================================================
// ACCESS GRANTS
// ==============================================================================

type Grants struct {
	mu     sync.RWMutex
	grants map[string]access.Grant
}

func NewGrants() *Grants {
	return &Grants{grants: make(map[string]access.Grant)}
}

func (g *Grants) GetGrant(ctx context.Context, userID string) (*access.Grant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grant, ok := g.grants[userID]
	if !ok {
		return nil, nil
	}
	return &grant, nil
}

func (g *Grants) PutGrant(ctx context.Context, grant access.Grant) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.grants[grant.UserID] = grant
	return nil
}

func (g *Grants) CountActiveGrants(ctx context.Context, now time.Time) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, grant := range g.grants {
		if grant.Active && !grant.Expired(now) {
			n++
		}
	}
	return n, nil
}

// ==============================================================================
// SUBMISSION LOG
// ==============================================================================

type Submissions struct {
	mu      sync.RWMutex
	records []service.SubmissionRecord
	MaxSize int
}

// NewSubmissions keeps at most maxSize records; zero means unbounded
func NewSubmissions(maxSize int) *Submissions {
	return &Submissions{MaxSize: maxSize}
}

func (s *Submissions) AppendSubmission(ctx context.Context, rec service.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ClaimedPositions = append([]int(nil), rec.ClaimedPositions...)
	s.records = append(s.records, rec)
	if s.MaxSize > 0 && len(s.records) > s.MaxSize {
		s.records = s.records[1:]
	}
	return nil
}

func (s *Submissions) CountAccepted(ctx context.Context, submitterID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.Accepted && r.SubmitterID == submitterID {
			n++
		}
	}
	return n, nil
}

func (s *Submissions) Leaderboard(ctx context.Context, limit int) ([]service.LeaderboardEntry, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, r := range s.records {
		if r.Accepted {
			counts[r.SubmitterID]++
		}
	}
	s.mu.RUnlock()

	entries := make([]service.LeaderboardEntry, 0, len(counts))
	for id, n := range counts {
		entries = append(entries, service.LeaderboardEntry{SubmitterID: id, Accepted: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Accepted != entries[j].Accepted {
			return entries[i].Accepted > entries[j].Accepted
		}
		return entries[i].SubmitterID < entries[j].SubmitterID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (s *Submissions) Totals(ctx context.Context) (service.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	submitters := make(map[string]struct{})
	t := service.Totals{Submissions: len(s.records)}
	for _, r := range s.records {
		submitters[r.SubmitterID] = struct{}{}
		if r.Accepted {
			t.Accepted++
		}
	}
	t.Submitters = len(submitters)
	return t, nil
}

// Records returns a copy of the log, oldest first
func (s *Submissions) Records() []service.SubmissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]service.SubmissionRecord, len(s.records))
	copy(out, s.records)
	return out
}
