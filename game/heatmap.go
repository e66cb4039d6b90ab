package game

import (
	"fmt"
	"sync"

	"minesServer/config"
)

// Heatmap is a probability vector over grid cells
type Heatmap struct {
	Weights []float64 `json:"weights"`
	Updates int64     `json:"updates"`
}

// HeatmapStore holds the adaptive cell bias used for pre-reveal display.
//
// It is folded only from confirmed outcomes, drifts one way with no decay and
// carries no predictive value: a canonical outcome is a hash of a seed that is
// secret until reveal, and past outcomes say nothing about it. Verification
// never reads it.
type HeatmapStore struct {
	mu        sync.RWMutex
	width     int
	height    int
	increment float64
	cap       float64
	floor     float64
	heatmap   Heatmap
}

func NewHeatmapStore(width, height int) *HeatmapStore {
	return &HeatmapStore{
		width:     width,
		height:    height,
		increment: config.HeatmapIncrement,
		cap:       config.HeatmapCellCap,
		floor:     config.HeatmapFloorRatio / float64(width*height),
		heatmap:   InitialHeatmap(width, height),
	}
}

// InitialHeatmap is uniform with a mild bias on the centre cell and its
// 4-neighbours
func InitialHeatmap(width, height int) Heatmap {
	size := width * height
	weights := make([]float64, size)
	for i := range weights {
		weights[i] = 1.0
	}

	cx, cy := width/2, height/2
	for _, d := range [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		x, y := cx+d[0], cy+d[1]
		if x >= 0 && x < width && y >= 0 && y < height {
			weights[y*width+x] *= config.HeatmapCenterBias
		}
	}

	normalize(weights)
	return Heatmap{Weights: weights}
}

// Snapshot returns a copy safe to read without the lock
func (h *HeatmapStore) Snapshot() Heatmap {
	h.mu.RLock()
	defer h.mu.RUnlock()

	weights := make([]float64, len(h.heatmap.Weights))
	copy(weights, h.heatmap.Weights)
	return Heatmap{Weights: weights, Updates: h.heatmap.Updates}
}

// Update folds a confirmed outcome in: each cell gains the increment, is
// clamped to the cap, then the vector is renormalised. The sum before
// renormalising is at least 1, so no weight can rise above the cap. When the
// lightest cell ends up under the floor, the vector is blended with uniform
// just enough to lift it back, which keeps the sum at 1 and every weight
// under the cap.
func (h *HeatmapStore) Update(outcome Outcome) (Heatmap, error) {
	size := h.width * h.height
	for _, c := range outcome {
		if c < 0 || c >= size {
			return Heatmap{}, NewValidationError("outcome", fmt.Sprintf("cell %d out of range [0, %d)", c, size))
		}
	}

	h.mu.Lock()
	w := h.heatmap.Weights
	for _, c := range outcome {
		w[c] += h.increment
		if w[c] > h.cap {
			w[c] = h.cap
		}
	}
	normalize(w)
	liftToFloor(w, h.floor)
	for i := range w {
		// absorbs float rounding when the sum lands a hair under 1
		if w[i] > h.cap {
			w[i] = h.cap
		}
	}
	h.heatmap.Updates++
	h.mu.Unlock()

	return h.Snapshot(), nil
}

// Reset returns the store to its initial distribution
func (h *HeatmapStore) Reset() {
	h.mu.Lock()
	h.heatmap = InitialHeatmap(h.width, h.height)
	h.mu.Unlock()
}

func normalize(weights []float64) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

// liftToFloor mixes weights with the uniform vector by the smallest amount
// that brings the minimum up to floor
func liftToFloor(weights []float64, floor float64) {
	if len(weights) == 0 {
		return
	}
	uniform := 1 / float64(len(weights))
	if floor >= uniform {
		return
	}

	lightest := weights[0]
	for _, w := range weights[1:] {
		if w < lightest {
			lightest = w
		}
	}
	if lightest >= floor {
		return
	}

	alpha := (floor - lightest) / (uniform - lightest)
	for i := range weights {
		weights[i] = (1-alpha)*weights[i] + alpha*uniform
	}
}
