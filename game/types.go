package game

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"minesServer/config"
)

// SeedTriple identifies one round. ServerSeed is empty until revealed.
type SeedTriple struct {
	ServerSeed     string `json:"serverSeed,omitempty"`
	ServerSeedHash string `json:"serverSeedHash"`
	ClientSeed     string `json:"clientSeed"`
	Nonce          int64  `json:"nonce"`
}

type GridSpec struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	MineCount int `json:"mineCount"`
}

// MinesGrid is the fixed 5x5 board
func MinesGrid(mineCount int) GridSpec {
	return GridSpec{Width: config.GridWidth, Height: config.GridHeight, MineCount: mineCount}
}

func (g GridSpec) Size() int {
	return g.Width * g.Height
}

// Outcome is a set of cell indices, kept sorted ascending
type Outcome []int

// NewOutcome returns a sorted copy of cells
func NewOutcome(cells []int) Outcome {
	out := make(Outcome, len(cells))
	copy(out, cells)
	sort.Ints(out)
	return out
}

// SameSet reports whether claimed holds exactly the cells of o, in any order.
// Duplicates in claimed never match.
func (o Outcome) SameSet(claimed []int) bool {
	if len(claimed) != len(o) {
		return false
	}
	want := make(map[int]struct{}, len(o))
	for _, c := range o {
		want[c] = struct{}{}
	}
	for _, c := range claimed {
		if _, ok := want[c]; !ok {
			return false
		}
		delete(want, c)
	}
	return len(want) == 0
}

// Fingerprint is the sorted, comma-joined form used to spot repeated claims
func Fingerprint(cells []int) string {
	sorted := NewOutcome(cells)
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

type Submission struct {
	SubmitterID      string    `json:"submitterId"`
	ServerSeed       string    `json:"serverSeed"`
	ServerSeedHash   string    `json:"serverSeedHash"`
	ClientSeed       string    `json:"clientSeed"`
	Nonce            int64     `json:"nonce"`
	MineCount        int       `json:"mineCount"`
	ClaimedPositions []int     `json:"claimedPositions"`
	Timestamp        time.Time `json:"timestamp"`
}

// Seeds returns the round the submission refers to
func (s Submission) Seeds() SeedTriple {
	return SeedTriple{
		ServerSeed:     s.ServerSeed,
		ServerSeedHash: s.ServerSeedHash,
		ClientSeed:     s.ClientSeed,
		Nonce:          s.Nonce,
	}
}

// Verification reasons
const (
	ReasonAccepted        = "accepted"
	ReasonHashMismatch    = "hash mismatch"
	ReasonReplay          = "replay"
	ReasonOutcomeMismatch = "outcome mismatch"
)

type VerificationResult struct {
	Accepted         bool    `json:"accepted"`
	CanonicalOutcome Outcome `json:"canonicalOutcome,omitempty"`
	Reason           string  `json:"reason"`
}

type CellWeight struct {
	Cell   int     `json:"cell"`
	Weight float64 `json:"weight"`
}

type PredictionMetadata struct {
	Strategy          string       `json:"strategy"`
	Entropy           float64      `json:"entropy"`
	NormalizedEntropy float64      `json:"normalizedEntropy"`
	TopCells          []CellWeight `json:"topCells"`
	Confidence        float64      `json:"confidence"`
	DatasetSize       int64        `json:"datasetSize"`
	WarmingUp         bool         `json:"warmingUp"`
	Disclaimer        string       `json:"disclaimer"`
}

type Prediction struct {
	Outcome  Outcome            `json:"outcome"`
	Metadata PredictionMetadata `json:"metadata"`
}
