package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minesServer/crypto"
)

// fakeRegistry is an in-memory UsedSeedRegistry with optional overrides
type fakeRegistry struct {
	mu   sync.Mutex
	used map[string]bool

	IsUsedFn   func(ctx context.Context, h string) (bool, error)
	MarkUsedFn func(ctx context.Context, h string) (bool, error)
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{used: map[string]bool{}}
}

func (r *fakeRegistry) IsUsed(ctx context.Context, h string) (bool, error) {
	if r.IsUsedFn != nil {
		return r.IsUsedFn(ctx, h)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[h], nil
}

func (r *fakeRegistry) MarkUsed(ctx context.Context, h string) (bool, error) {
	if r.MarkUsedFn != nil {
		return r.MarkUsedFn(ctx, h)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used[h] {
		return false, nil
	}
	r.used[h] = true
	return true, nil
}

func correctSubmission(t *testing.T, serverSeed string, mines int) Submission {
	t.Helper()
	out, err := CanonicalOutcome(serverSeed, testClientSeed, 1, MinesGrid(mines))
	require.NoError(t, err)
	return Submission{
		SubmitterID:      "alice",
		ServerSeed:       serverSeed,
		ServerSeedHash:   crypto.HashServerSeed(serverSeed),
		ClientSeed:       testClientSeed,
		Nonce:            1,
		MineCount:        mines,
		ClaimedPositions: []int(out),
		Timestamp:        time.Now(),
	}
}

// notIn returns the lowest grid cell missing from out
func notIn(out []int) int {
	taken := map[int]bool{}
	for _, c := range out {
		taken[c] = true
	}
	for c := 0; c < 25; c++ {
		if !taken[c] {
			return c
		}
	}
	return -1
}

func TestVerifyRejectsAlteredClaim(t *testing.T) {
	first, err := CanonicalOutcome(testServerSeed, testClientSeed, 1, MinesGrid(3))
	require.NoError(t, err)
	second, err := CanonicalOutcome(testServerSeed, testClientSeed, 1, MinesGrid(3))
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	heatmap := NewHeatmapStore(5, 5)
	v := NewVerifier(newFakeRegistry(), heatmap)

	sub := correctSubmission(t, testServerSeed, 3)
	altered := append([]int(nil), sub.ClaimedPositions...)
	altered[0] = notIn(altered)
	sub.ClaimedPositions = altered

	res, err := v.Verify(context.Background(), sub, MinesGrid(3))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonOutcomeMismatch, res.Reason)
	assert.Equal(t, first, res.CanonicalOutcome)
	assert.Zero(t, heatmap.Snapshot().Updates, "rejected claims never touch the heatmap")
}

func TestVerifyAcceptsOnceThenReplays(t *testing.T) {
	registry := newFakeRegistry()
	heatmap := NewHeatmapStore(5, 5)
	v := NewVerifier(registry, heatmap)
	ctx := context.Background()

	sub := correctSubmission(t, testServerSeed, 5)
	res, err := v.Verify(ctx, sub, MinesGrid(5))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonAccepted, res.Reason)
	assert.Equal(t, int64(1), heatmap.Snapshot().Updates)

	replay := sub
	replay.ClaimedPositions = append([]int(nil), sub.ClaimedPositions...)
	replay.ClaimedPositions[0] = notIn(replay.ClaimedPositions)

	_, err = v.Verify(ctx, replay, MinesGrid(5))
	require.Error(t, err)
	assert.True(t, IsReplayError(err))

	// the correct claim is refused too
	_, err = v.Verify(ctx, sub, MinesGrid(5))
	assert.True(t, IsReplayError(err))
	assert.Equal(t, int64(1), heatmap.Snapshot().Updates)
}

func TestVerifyReplayCheckedBeforeRecompute(t *testing.T) {
	registry := newFakeRegistry()
	v := NewVerifier(registry, NewHeatmapStore(5, 5))

	sub := correctSubmission(t, testServerSeed, 3)
	registry.used[sub.ServerSeedHash] = true

	// a bad seed for a used hash still reports replay, not mismatch
	sub.ServerSeed = crypto.HashServerSeed("something else")
	_, err := v.Verify(context.Background(), sub, MinesGrid(3))
	assert.True(t, IsReplayError(err))
}

func TestVerifyHashBinding(t *testing.T) {
	v := NewVerifier(newFakeRegistry(), NewHeatmapStore(5, 5))

	for i, seed := range []string{testServerSeed, crypto.HashServerSeed("a"), crypto.HashServerSeed("b")} {
		sub := correctSubmission(t, seed, 3)
		sub.ServerSeedHash = crypto.HashServerSeed(seed + "x")

		_, err := v.Verify(context.Background(), sub, MinesGrid(3))
		require.Error(t, err, "case %d", i)
		assert.True(t, IsHashMismatchError(err), "case %d", i)
	}
}

func TestVerifyHashMismatchAllowsResubmit(t *testing.T) {
	v := NewVerifier(newFakeRegistry(), NewHeatmapStore(5, 5))
	ctx := context.Background()

	good := correctSubmission(t, testServerSeed, 4)
	bad := good
	bad.ServerSeed = crypto.HashServerSeed("wrong")

	_, err := v.Verify(ctx, bad, MinesGrid(4))
	require.True(t, IsHashMismatchError(err))

	res, err := v.Verify(ctx, good, MinesGrid(4))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestVerifyValidation(t *testing.T) {
	v := NewVerifier(newFakeRegistry(), NewHeatmapStore(5, 5))
	base := correctSubmission(t, testServerSeed, 3)

	tests := []struct {
		name   string
		mutate func(s *Submission)
		field  string
	}{
		{"missing submitter", func(s *Submission) { s.SubmitterID = "" }, "submitterId"},
		{"short seed", func(s *Submission) { s.ServerSeed = "abc" }, "serverSeed"},
		{"uppercase hash", func(s *Submission) { s.ServerSeedHash = "A" + s.ServerSeedHash[1:] }, "serverSeedHash"},
		{"negative nonce", func(s *Submission) { s.Nonce = -1 }, "nonce"},
		{"too few positions", func(s *Submission) { s.ClaimedPositions = s.ClaimedPositions[:2] }, "claimedPositions"},
		{"out of range", func(s *Submission) { s.ClaimedPositions = []int{0, 1, 25} }, "claimedPositions"},
		{"duplicate", func(s *Submission) { s.ClaimedPositions = []int{4, 4, 5} }, "claimedPositions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := base
			sub.ClaimedPositions = append([]int(nil), base.ClaimedPositions...)
			tt.mutate(&sub)

			_, err := v.Verify(context.Background(), sub, MinesGrid(3))
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("mine count out of bounds", func(t *testing.T) {
		sub := base
		sub.MineCount = 25
		_, err := v.Verify(context.Background(), sub, MinesGrid(25))
		assert.True(t, IsValidationError(err))
	})
}

func TestVerifyLostInsertRace(t *testing.T) {
	registry := newFakeRegistry()
	registry.MarkUsedFn = func(ctx context.Context, h string) (bool, error) {
		return false, nil
	}
	heatmap := NewHeatmapStore(5, 5)
	v := NewVerifier(registry, heatmap)

	_, err := v.Verify(context.Background(), correctSubmission(t, testServerSeed, 3), MinesGrid(3))
	assert.True(t, IsReplayError(err))
	assert.Zero(t, heatmap.Snapshot().Updates)
}

func TestVerifyRegistryFailure(t *testing.T) {
	boom := errors.New("store down")
	registry := newFakeRegistry()
	registry.IsUsedFn = func(ctx context.Context, h string) (bool, error) {
		return false, boom
	}
	v := NewVerifier(registry, NewHeatmapStore(5, 5))

	_, err := v.Verify(context.Background(), correctSubmission(t, testServerSeed, 3), MinesGrid(3))
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsReplayError(err))
}

func TestVerifyConcurrentSameSeed(t *testing.T) {
	heatmap := NewHeatmapStore(5, 5)
	v := NewVerifier(newFakeRegistry(), heatmap)
	sub := correctSubmission(t, testServerSeed, 6)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		replays  int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := v.Verify(context.Background(), sub, MinesGrid(6))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Accepted:
				accepted++
			case IsReplayError(err):
				replays++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 31, replays)
	assert.Equal(t, int64(1), heatmap.Snapshot().Updates)
}
