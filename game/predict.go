package game

import (
	"log"
	"math"
	"sort"

	"minesServer/config"
)

const predictionDisclaimer = "Speculative display only. Mine placement is fixed by a server seed that is secret until reveal; this guess has no predictive value."

// predictClientSeed stands in for the client seed, which is not bound to a
// prediction request
const predictClientSeed = "predict"

// Predictor produces pre-reveal guesses from a heatmap snapshot
type Predictor struct {
	heatmap *HeatmapStore
}

func NewPredictor(heatmap *HeatmapStore) *Predictor {
	return &Predictor{heatmap: heatmap}
}

// Predict samples a heatmap-weighted guess for a committed round. The same
// inputs against the same heatmap always give the same guess.
func (p *Predictor) Predict(serverSeedHash string, nonce int64, grid GridSpec) (Prediction, error) {
	if err := ValidateDigest("serverSeedHash", serverSeedHash); err != nil {
		return Prediction{}, err
	}
	if err := ValidateNonce(nonce); err != nil {
		return Prediction{}, err
	}
	if err := ValidateMineCount(grid.MineCount); err != nil {
		return Prediction{}, err
	}
	if err := ValidateGrid(grid); err != nil {
		return Prediction{}, err
	}

	snapshot := p.heatmap.Snapshot()
	strategy := HeatmapWeighted{Weights: snapshot.Weights}

	stream := DeriveStream(serverSeedHash, predictClientSeed, nonce, grid.MineCount)
	outcome, err := strategy.Sample(stream, grid.Size(), grid.MineCount)
	if err != nil {
		if IsInternalConsistencyFault(err) {
			log.Printf("❌ Prediction sampling failed - hash: %s, nonce: %d, mines: %d: %v",
				serverSeedHash, nonce, grid.MineCount, err)
		}
		return Prediction{}, err
	}

	entropy := Entropy(snapshot.Weights)
	normalized := 0.0
	if len(snapshot.Weights) > 1 {
		normalized = entropy / math.Log(float64(len(snapshot.Weights)))
	}

	return Prediction{
		Outcome: outcome,
		Metadata: PredictionMetadata{
			Strategy:          strategy.Name(),
			Entropy:           entropy,
			NormalizedEntropy: normalized,
			TopCells:          TopCells(snapshot.Weights, config.PredictionTopCells),
			Confidence:        clamp01(1 - normalized),
			DatasetSize:       snapshot.Updates,
			WarmingUp:         snapshot.Updates < config.MinPredictionDataset,
			Disclaimer:        predictionDisclaimer,
		},
	}, nil
}

// Entropy is the Shannon entropy of a weight vector in nats
func Entropy(weights []float64) float64 {
	h := 0.0
	for _, w := range weights {
		if w > 0 {
			h -= w * math.Log(w)
		}
	}
	return h
}

// TopCells returns the n heaviest cells, ties broken by lower index
func TopCells(weights []float64, n int) []CellWeight {
	cells := make([]CellWeight, len(weights))
	for i, w := range weights {
		cells[i] = CellWeight{Cell: i, Weight: w}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].Weight > cells[j].Weight
	})
	if n < len(cells) {
		cells = cells[:n]
	}
	return cells
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
