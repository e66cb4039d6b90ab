package game

import (
	"context"
	"fmt"
	"log"

	"minesServer/crypto"
	"minesServer/keylock"
)

// UsedSeedRegistry records server seeds already credited by an accepted
// submission
type UsedSeedRegistry interface {
	IsUsed(ctx context.Context, serverSeedHash string) (bool, error)
	// MarkUsed inserts serverSeedHash if absent and reports whether this
	// call inserted it
	MarkUsed(ctx context.Context, serverSeedHash string) (bool, error)
}

// Verifier recomputes canonical outcomes and credits matching claims at most
// once per server seed
type Verifier struct {
	registry UsedSeedRegistry
	heatmap  *HeatmapStore
	locks    *keylock.Locker
}

func NewVerifier(registry UsedSeedRegistry, heatmap *HeatmapStore) *Verifier {
	return &Verifier{
		registry: registry,
		heatmap:  heatmap,
		locks:    keylock.New(),
	}
}

// Verify checks a submission against its canonical outcome.
//
// Replays and hash mismatches return typed errors. A well-formed claim that
// simply differs from the canonical outcome returns Accepted=false with
// ReasonOutcomeMismatch. On acceptance the seed is claimed first and the
// heatmap updated second.
func (v *Verifier) Verify(ctx context.Context, sub Submission, grid GridSpec) (VerificationResult, error) {
	if err := ValidateSubmission(sub, grid); err != nil {
		return VerificationResult{}, err
	}

	unlock := v.locks.Lock(sub.ServerSeedHash)
	defer unlock()

	used, err := v.registry.IsUsed(ctx, sub.ServerSeedHash)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("failed to check used seed: %w", err)
	}
	if used {
		return VerificationResult{}, NewReplayError(sub.ServerSeedHash)
	}

	if !crypto.VerifySeed(sub.ServerSeed, sub.ServerSeedHash) {
		return VerificationResult{}, NewHashMismatchError(sub.ServerSeedHash)
	}

	canonical, err := CanonicalOutcome(sub.ServerSeed, sub.ClientSeed, sub.Nonce, grid)
	if err != nil {
		log.Printf("❌ Canonical derivation failed - hash: %s, client: %q, nonce: %d, mines: %d: %v",
			sub.ServerSeedHash, sub.ClientSeed, sub.Nonce, grid.MineCount, err)
		return VerificationResult{}, err
	}

	if !canonical.SameSet(sub.ClaimedPositions) {
		return VerificationResult{
			Accepted:         false,
			CanonicalOutcome: canonical,
			Reason:           ReasonOutcomeMismatch,
		}, nil
	}

	inserted, err := v.registry.MarkUsed(ctx, sub.ServerSeedHash)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("failed to mark seed used: %w", err)
	}
	if !inserted {
		// another process claimed it between the check and the insert
		return VerificationResult{}, NewReplayError(sub.ServerSeedHash)
	}

	if _, err := v.heatmap.Update(canonical); err != nil {
		return VerificationResult{}, fmt.Errorf("failed to update heatmap: %w", err)
	}

	return VerificationResult{
		Accepted:         true,
		CanonicalOutcome: canonical,
		Reason:           ReasonAccepted,
	}, nil
}
