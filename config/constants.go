package config

import "time"

/* =========================
   GRID CONFIGURATION
========================= */

const (
	// Mines board is a fixed 5x5 grid, cells indexed 0..24 row-major
	GridWidth  = 5
	GridHeight = 5

	// Accepted mine counts at the boundary
	MinMines = 1
	MaxMines = 24
)

/* =========================
   SAMPLER CONFIGURATION
========================= */

const (
	// Upper bound on stream draws per outcome. Exceeding it is an internal
	// consistency fault, never a retry.
	MaxSamplingIterations = 1000
)

/* =========================
   HEATMAP CONFIGURATION
========================= */

const (
	// Added to each confirmed cell before renormalisation
	HeatmapIncrement = 0.005

	// No cell weight may exceed this, before or after renormalisation
	HeatmapCellCap = 0.15

	// No cell weight may fall below this fraction of the uniform weight, so
	// weighted sampling can always reach every cell
	HeatmapFloorRatio = 0.5

	// Multiplier applied to the centre cell and its 4-neighbours in the
	// initial distribution (1.0 = perfectly uniform)
	HeatmapCenterBias = 1.1

	// Below this many folded outcomes predictions are flagged as warming up
	MinPredictionDataset = 10

	// Cells listed in prediction metadata
	PredictionTopCells = 5
)

/* =========================
   ABUSE GATE CONFIGURATION
========================= */

const (
	// Sliding window for submission timestamps
	AbuseWindow = 20 * time.Second

	// Submissions inside the window that trigger a rate ban
	RateLimitCount = 5

	// Number of most recent position fingerprints kept per submitter
	FingerprintWindow = 4

	// A fingerprint seen more than this many times in the window bans
	RepetitionLimit = 3

	BanReasonRate       = "rate"
	BanReasonRepetition = "repetition"
)

/* =========================
   ACCESS GRANTS
========================= */

const (
	DurationPermanent = "permanent"
)

/* =========================
   REDIS KEY PATTERNS
========================= */

const (
	RedisUsedSeedKey = "seed:used:%s"     // seed:used:{serverSeedHash}
	RedisBanKey      = "abuse:ban:%s"     // abuse:ban:{submitterId}
	RedisHistoryKey  = "abuse:history:%s" // abuse:history:{submitterId}

	// Submitter history outlives the window slightly so a late read still
	// sees the previous fingerprints
	RedisHistoryTTL = 10 * time.Minute
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	MaxConns        = 25
	MinConns        = 5
	ConnMaxLifetime = 5 * time.Minute
	ConnectTimeout  = 10 * time.Second
)

/* =========================
   API CONFIGURATION
========================= */

const (
	DefaultPort = "8080"

	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100

	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 10 * time.Second
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	WSReadDeadline  = 60 * time.Second
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second

	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSSendBufferSize  = 256

	MaxMessageSize = 512 * 1024 // 512KB

	ChannelVerifications = "verifications"
	ChannelHeatmap       = "heatmap"
)
