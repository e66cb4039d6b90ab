package game

import (
	"fmt"

	"minesServer/config"
	"minesServer/crypto"
)

// ValidateGrid checks 0 <= mineCount < width*height
func ValidateGrid(grid GridSpec) error {
	if grid.Width <= 0 || grid.Height <= 0 {
		return NewValidationError("grid", fmt.Sprintf("dimensions must be positive, got %dx%d", grid.Width, grid.Height))
	}
	if grid.MineCount < 0 || grid.MineCount >= grid.Size() {
		return NewValidationError("mineCount", fmt.Sprintf("must be in [0, %d), got %d", grid.Size(), grid.MineCount))
	}
	return nil
}

// ValidateMineCount applies the [1, 24] boundary rule
func ValidateMineCount(mineCount int) error {
	if mineCount < config.MinMines || mineCount > config.MaxMines {
		return NewValidationError("mineCount", fmt.Sprintf("must be between %d and %d, got %d", config.MinMines, config.MaxMines, mineCount))
	}
	return nil
}

func ValidateDigest(field, value string) error {
	if !crypto.IsHexDigest(value) {
		return NewValidationError(field, "must be 64 lowercase hex characters")
	}
	return nil
}

func ValidateNonce(nonce int64) error {
	if nonce < 0 {
		return NewValidationError("nonce", fmt.Sprintf("must be >= 0, got %d", nonce))
	}
	return nil
}

// ValidatePositions checks cardinality, range and uniqueness of a claim
func ValidatePositions(positions []int, grid GridSpec) error {
	if len(positions) != grid.MineCount {
		return NewValidationError("claimedPositions", fmt.Sprintf("expected %d positions, got %d", grid.MineCount, len(positions)))
	}

	seen := make(map[int]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= grid.Size() {
			return NewValidationError("claimedPositions", fmt.Sprintf("position %d out of range [0, %d)", p, grid.Size()))
		}
		if seen[p] {
			return NewValidationError("claimedPositions", fmt.Sprintf("position %d repeated", p))
		}
		seen[p] = true
	}
	return nil
}

// ValidateSubmission runs every boundary check for a result submission
func ValidateSubmission(sub Submission, grid GridSpec) error {
	if sub.SubmitterID == "" {
		return NewValidationError("submitterId", "required")
	}
	if err := ValidateDigest("serverSeed", sub.ServerSeed); err != nil {
		return err
	}
	if err := ValidateDigest("serverSeedHash", sub.ServerSeedHash); err != nil {
		return err
	}
	if err := ValidateNonce(sub.Nonce); err != nil {
		return err
	}
	if err := ValidateMineCount(sub.MineCount); err != nil {
		return err
	}
	if sub.MineCount != grid.MineCount {
		return NewValidationError("mineCount", fmt.Sprintf("submission has %d, grid has %d", sub.MineCount, grid.MineCount))
	}
	if err := ValidateGrid(grid); err != nil {
		return err
	}
	return ValidatePositions(sub.ClaimedPositions, grid)
}
