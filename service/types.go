package service

import (
	"context"
	"time"

	"minesServer/crypto"
	"minesServer/game"
)

/* =========================
   SUBMISSION LOG
========================= */

// SubmissionRecord is one appended submission attempt
type SubmissionRecord struct {
	ID               string    `json:"id"`
	SubmitterID      string    `json:"submitterId"`
	ServerSeedHash   string    `json:"serverSeedHash"`
	ClientSeed       string    `json:"clientSeed"`
	Nonce            int64     `json:"nonce"`
	MineCount        int       `json:"mineCount"`
	ClaimedPositions []int     `json:"claimedPositions"`
	Accepted         bool      `json:"accepted"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"createdAt"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	SubmitterID string `json:"submitterId"`
	Accepted    int    `json:"accepted"`
}

type Totals struct {
	Submissions int `json:"submissions"`
	Accepted    int `json:"accepted"`
	Submitters  int `json:"submitters"`
}

// SubmissionLog is the append-only record of submission attempts
type SubmissionLog interface {
	AppendSubmission(ctx context.Context, rec SubmissionRecord) error
	CountAccepted(ctx context.Context, submitterID string) (int, error)
	// Leaderboard ranks submitters by accepted submissions, ties by id
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Totals(ctx context.Context) (Totals, error)
}

/* =========================
   LIVE FEED
========================= */

type VerificationEvent struct {
	SubmissionID   string       `json:"submissionId"`
	SubmitterID    string       `json:"submitterId"`
	ServerSeedHash string       `json:"serverSeedHash"`
	MineCount      int          `json:"mineCount"`
	Outcome        game.Outcome `json:"outcome"`
	Timestamp      int64        `json:"timestamp"`
}

// Broadcaster pushes accepted verifications and heatmap snapshots to
// live subscribers. Implementations must not block.
type Broadcaster interface {
	PublishVerification(ev VerificationEvent)
	PublishHeatmap(h game.Heatmap)
}

type noopBroadcaster struct{}

func (noopBroadcaster) PublishVerification(VerificationEvent) {}
func (noopBroadcaster) PublishHeatmap(game.Heatmap)           {}

/* =========================
   REQUESTS / RESPONSES
========================= */

type PredictRequest struct {
	SubmitterID    string `json:"submitterId"`
	ServerSeedHash string `json:"serverSeedHash"`
	MineCount      int    `json:"mineCount"`
	Nonce          int64  `json:"nonce"`
}

type SubmitRequest struct {
	SubmitterID      string `json:"submitterId"`
	ServerSeed       string `json:"serverSeed"`
	ServerSeedHash   string `json:"serverSeedHash,omitempty"`
	ClientSeed       string `json:"clientSeed"`
	Nonce            int64  `json:"nonce"`
	MineCount        int    `json:"mineCount"`
	ClaimedPositions []int  `json:"claimedPositions"`
}

type SubmitResponse struct {
	Accepted         bool            `json:"accepted"`
	Reason           string          `json:"reason"`
	SubmissionID     string          `json:"submissionId"`
	CanonicalOutcome game.Outcome    `json:"canonicalOutcome,omitempty"`
	Receipt          *crypto.Receipt `json:"receipt,omitempty"`
}

type Stats struct {
	Totals
	ActiveGrants   int   `json:"activeGrants"`
	HeatmapUpdates int64 `json:"heatmapUpdates"`
}
