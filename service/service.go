// Package service wires the outcome engine, abuse gate and access grants into
// the operations the command layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"minesServer/abuse"
	"minesServer/access"
	"minesServer/config"
	"minesServer/crypto"
	"minesServer/game"
)

type Deps struct {
	Registry    game.UsedSeedRegistry
	Bans        abuse.BanStore
	History     abuse.HistoryStore
	Grants      access.Store
	Log         SubmissionLog
	Signer      *crypto.ReceiptSigner
	Broadcaster Broadcaster

	// Heatmap defaults to a fresh 5x5 store
	Heatmap *game.HeatmapStore
	// Now defaults to time.Now
	Now func() time.Time

	PredictAccessRequired bool
}

type Service struct {
	heatmap   *game.HeatmapStore
	verifier  *game.Verifier
	predictor *game.Predictor
	gate      *abuse.Gate
	grants    *access.Registry
	log       SubmissionLog
	signer    *crypto.ReceiptSigner
	broadcast Broadcaster
	now       func() time.Time

	predictAccessRequired bool
}

func New(d Deps) *Service {
	if d.Heatmap == nil {
		d.Heatmap = game.NewHeatmapStore(config.GridWidth, config.GridHeight)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Broadcaster == nil {
		d.Broadcaster = noopBroadcaster{}
	}

	return &Service{
		heatmap:               d.Heatmap,
		verifier:              game.NewVerifier(d.Registry, d.Heatmap),
		predictor:             game.NewPredictor(d.Heatmap),
		gate:                  abuse.NewGate(d.Bans, d.History, abuse.WithClock(d.Now)),
		grants:                access.NewRegistry(d.Grants, d.Now),
		log:                   d.Log,
		signer:                d.Signer,
		broadcast:             d.Broadcaster,
		now:                   d.Now,
		predictAccessRequired: d.PredictAccessRequired,
	}
}

// Predict returns a speculative pre-reveal guess. It is never a stand-in for
// a verification result.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (game.Prediction, error) {
	if s.predictAccessRequired {
		if req.SubmitterID == "" {
			return game.Prediction{}, game.NewValidationError("submitterId", "required")
		}
		if err := s.grants.Check(ctx, req.SubmitterID); err != nil {
			return game.Prediction{}, err
		}
	}

	return s.predictor.Predict(req.ServerSeedHash, req.Nonce, game.MinesGrid(req.MineCount))
}

// SubmitResult gates, verifies and logs a revealed round.
//
// Banned submitters and malformed requests return errors. Replays, hash
// mismatches and wrong claims return Accepted=false with a reason.
func (s *Service) SubmitResult(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if req.SubmitterID == "" {
		return SubmitResponse{}, game.NewValidationError("submitterId", "required")
	}
	if err := s.gate.CheckBan(ctx, req.SubmitterID); err != nil {
		return SubmitResponse{}, err
	}

	if err := game.ValidateDigest("serverSeed", req.ServerSeed); err != nil {
		return SubmitResponse{}, err
	}
	if req.ServerSeedHash == "" {
		req.ServerSeedHash = crypto.HashServerSeed(req.ServerSeed)
	}

	now := s.now()
	sub := game.Submission{
		SubmitterID:      req.SubmitterID,
		ServerSeed:       req.ServerSeed,
		ServerSeedHash:   req.ServerSeedHash,
		ClientSeed:       req.ClientSeed,
		Nonce:            req.Nonce,
		MineCount:        req.MineCount,
		ClaimedPositions: req.ClaimedPositions,
		Timestamp:        now,
	}
	grid := game.MinesGrid(req.MineCount)

	if err := game.ValidateSubmission(sub, grid); err != nil {
		return SubmitResponse{}, err
	}

	rec := SubmissionRecord{
		ID:               uuid.NewString(),
		SubmitterID:      sub.SubmitterID,
		ServerSeedHash:   sub.ServerSeedHash,
		ClientSeed:       sub.ClientSeed,
		Nonce:            sub.Nonce,
		MineCount:        sub.MineCount,
		ClaimedPositions: sub.ClaimedPositions,
		CreatedAt:        now,
	}

	if err := s.gate.Admit(ctx, sub.SubmitterID, sub.ClaimedPositions); err != nil {
		var violation *abuse.AbuseViolation
		if errors.As(err, &violation) {
			rec.Reason = "banned: " + violation.Reason
			s.appendRecord(ctx, rec)
		}
		return SubmitResponse{}, err
	}

	result, err := s.verifier.Verify(ctx, sub, grid)
	switch {
	case err == nil:
	case game.IsReplayError(err):
		result = game.VerificationResult{Reason: game.ReasonReplay}
	case game.IsHashMismatchError(err):
		result = game.VerificationResult{Reason: game.ReasonHashMismatch}
	default:
		return SubmitResponse{}, err
	}

	rec.Accepted = result.Accepted
	rec.Reason = result.Reason
	if result.Accepted {
		// The seed is already claimed, so failing here would turn a retry
		// into a replay and lose the credit.
		s.appendRecord(ctx, rec)
	} else if err := s.log.AppendSubmission(ctx, rec); err != nil {
		return SubmitResponse{}, fmt.Errorf("failed to append submission: %w", err)
	}

	resp := SubmitResponse{
		Accepted:     result.Accepted,
		Reason:       result.Reason,
		SubmissionID: rec.ID,
	}
	if !result.Accepted {
		return resp, nil
	}

	resp.CanonicalOutcome = result.CanonicalOutcome

	if s.signer != nil {
		receipt := crypto.Receipt{
			SubmissionID:   rec.ID,
			SubmitterID:    rec.SubmitterID,
			ServerSeedHash: rec.ServerSeedHash,
			Nonce:          rec.Nonce,
			MineCount:      rec.MineCount,
			Outcome:        result.CanonicalOutcome,
			IssuedAt:       now.Unix(),
		}
		if err := s.signer.Sign(&receipt); err != nil {
			log.Printf("⚠️  Failed to sign receipt for %s: %v", rec.ID, err)
		} else {
			resp.Receipt = &receipt
		}
	}

	log.Printf("✅ Submission accepted - id: %s, submitter: %s, hash: %s", rec.ID, rec.SubmitterID, rec.ServerSeedHash)

	s.broadcast.PublishVerification(VerificationEvent{
		SubmissionID:   rec.ID,
		SubmitterID:    rec.SubmitterID,
		ServerSeedHash: rec.ServerSeedHash,
		MineCount:      rec.MineCount,
		Outcome:        result.CanonicalOutcome,
		Timestamp:      now.UnixMilli(),
	})
	s.broadcast.PublishHeatmap(s.heatmap.Snapshot())

	return resp, nil
}

// appendRecord writes to the submission log on a best-effort basis, for
// records whose outcome must not hinge on the log being available
func (s *Service) appendRecord(ctx context.Context, rec SubmissionRecord) {
	if err := s.log.AppendSubmission(ctx, rec); err != nil {
		log.Printf("⚠️  Failed to append submission %s: %v", rec.ID, err)
	}
}

func (s *Service) AdminUnban(ctx context.Context, submitterID string) error {
	if submitterID == "" {
		return game.NewValidationError("submitterId", "required")
	}
	return s.gate.Unban(ctx, submitterID)
}

// GrantAccess gives predict access for duration. Emergency grants ignore
// duration and never expire.
func (s *Service) GrantAccess(ctx context.Context, userID, grantedBy, duration string, emergency bool) (access.Grant, error) {
	if userID == "" {
		return access.Grant{}, game.NewValidationError("userId", "required")
	}
	if emergency {
		return s.grants.EmergencyGrant(ctx, userID, grantedBy)
	}
	if _, _, err := access.ParseDuration(duration); err != nil {
		return access.Grant{}, game.NewValidationError("duration", err.Error())
	}
	return s.grants.Grant(ctx, userID, grantedBy, duration)
}

func (s *Service) RevokeAccess(ctx context.Context, userID, revokedBy string) error {
	if userID == "" {
		return game.NewValidationError("userId", "required")
	}
	return s.grants.Revoke(ctx, userID, revokedBy)
}

// Leaderboard clamps limit to [1, MaxLeaderboardSize], defaulting to
// DefaultLeaderboardSize
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = config.DefaultLeaderboardSize
	}
	if limit > config.MaxLeaderboardSize {
		limit = config.MaxLeaderboardSize
	}

	entries, err := s.log.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return entries, nil
}

// SubmitterResults returns the number of accepted submissions for one submitter
func (s *Service) SubmitterResults(ctx context.Context, submitterID string) (int, error) {
	if submitterID == "" {
		return 0, game.NewValidationError("submitterId", "required")
	}
	n, err := s.log.CountAccepted(ctx, submitterID)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	totals, err := s.log.Totals(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load totals: %w", err)
	}
	grants, err := s.grants.ActiveCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count grants: %w", err)
	}

	return Stats{
		Totals:         totals,
		ActiveGrants:   grants,
		HeatmapUpdates: s.heatmap.Snapshot().Updates,
	}, nil
}

// Heatmap returns the current display heatmap
func (s *Service) Heatmap() game.Heatmap {
	return s.heatmap.Snapshot()
}
