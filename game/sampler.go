package game

import (
	"fmt"

	"minesServer/config"
)

// OutcomeSamplingStrategy picks mineCount unique cells out of gridSize by
// consuming a Stream. Only Unweighted may back verification.
type OutcomeSamplingStrategy interface {
	Name() string
	Sample(stream *Stream, gridSize, mineCount int) (Outcome, error)
}

func checkSampleArgs(gridSize, mineCount int) error {
	if gridSize <= 0 {
		return NewValidationError("grid", fmt.Sprintf("size must be positive, got %d", gridSize))
	}
	if mineCount < 0 || mineCount >= gridSize {
		return NewValidationError("mineCount", fmt.Sprintf("must be in [0, %d), got %d", gridSize, mineCount))
	}
	return nil
}

// Unweighted is the canonical sampler: 4-byte big-endian chunks reduced
// mod gridSize, duplicates skipped.
type Unweighted struct{}

func (Unweighted) Name() string { return "unweighted" }

func (u Unweighted) Sample(stream *Stream, gridSize, mineCount int) (Outcome, error) {
	if err := checkSampleArgs(gridSize, mineCount); err != nil {
		return nil, err
	}
	if mineCount == 0 {
		return Outcome{}, nil
	}

	seen := make(map[int]bool, mineCount)
	cells := make([]int, 0, mineCount)

	iterations := 0
	for len(cells) < mineCount && iterations < config.MaxSamplingIterations {
		iterations++
		cell := int(stream.Uint32() % uint32(gridSize))
		if seen[cell] {
			continue
		}
		seen[cell] = true
		cells = append(cells, cell)
	}

	if len(cells) < mineCount {
		return nil, &InternalConsistencyFault{
			Strategy:   u.Name(),
			GridSize:   gridSize,
			MineCount:  mineCount,
			Collected:  len(cells),
			Iterations: iterations,
		}
	}

	return NewOutcome(cells), nil
}

// HeatmapWeighted draws cells proportionally to Weights. Speculative only.
type HeatmapWeighted struct {
	Weights []float64
}

func (HeatmapWeighted) Name() string { return "heatmap-weighted" }

func (h HeatmapWeighted) Sample(stream *Stream, gridSize, mineCount int) (Outcome, error) {
	if err := checkSampleArgs(gridSize, mineCount); err != nil {
		return nil, err
	}
	if len(h.Weights) != gridSize {
		return nil, NewValidationError("heatmap", fmt.Sprintf("expected %d weights, got %d", gridSize, len(h.Weights)))
	}
	if mineCount == 0 {
		return Outcome{}, nil
	}

	cumulative := make([]float64, gridSize)
	total := 0.0
	lastPositive := -1
	positive := 0
	for i, w := range h.Weights {
		if w > 0 {
			total += w
			lastPositive = i
			positive++
		}
		cumulative[i] = total
	}
	if positive < mineCount {
		return nil, NewValidationError("heatmap", fmt.Sprintf("only %d cells have weight, need %d", positive, mineCount))
	}

	seen := make(map[int]bool, mineCount)
	cells := make([]int, 0, mineCount)

	iterations := 0
	for len(cells) < mineCount && iterations < config.MaxSamplingIterations {
		iterations++
		draw := stream.Float64() * total

		cell := lastPositive
		for i, c := range cumulative {
			if h.Weights[i] > 0 && c >= draw {
				cell = i
				break
			}
		}

		if seen[cell] {
			continue
		}
		seen[cell] = true
		cells = append(cells, cell)
	}

	if len(cells) < mineCount {
		return nil, &InternalConsistencyFault{
			Strategy:   h.Name(),
			GridSize:   gridSize,
			MineCount:  mineCount,
			Collected:  len(cells),
			Iterations: iterations,
		}
	}

	return NewOutcome(cells), nil
}

// CanonicalOutcome derives the authoritative mine placement for a revealed
// round
func CanonicalOutcome(serverSeed, clientSeed string, nonce int64, grid GridSpec) (Outcome, error) {
	stream := DeriveStream(serverSeed, clientSeed, nonce, grid.MineCount)
	return Unweighted{}.Sample(stream, grid.Size(), grid.MineCount)
}
