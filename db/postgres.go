package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"minesServer/abuse"
	"minesServer/access"
	"minesServer/config"
	"minesServer/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitPostgres opens a pool, pings it and bootstraps the schema
func InitPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	log.Println("🔌 Connecting to PostgreSQL...")

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL connected successfully")

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return pool, nil
}

// InitSchema creates the database tables if they don't exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("📋 Initializing database schema...")

	usedSeedsSchema := `
	CREATE TABLE IF NOT EXISTS used_seeds (
		server_seed_hash TEXT PRIMARY KEY,
		used_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := pool.Exec(ctx, usedSeedsSchema); err != nil {
		return fmt.Errorf("failed to create used_seeds table: %w", err)
	}

	banSchema := `
	CREATE TABLE IF NOT EXISTS ban_records (
		submitter_id TEXT PRIMARY KEY,
		reason TEXT NOT NULL,
		banned_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := pool.Exec(ctx, banSchema); err != nil {
		return fmt.Errorf("failed to create ban_records table: %w", err)
	}

	submissionsSchema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		submitter_id TEXT NOT NULL,
		server_seed_hash TEXT NOT NULL,
		client_seed TEXT NOT NULL,
		nonce BIGINT NOT NULL,
		mine_count INTEGER NOT NULL,
		claimed_positions INTEGER[] NOT NULL,
		accepted BOOLEAN NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Leaderboard and per-submitter counts only look at accepted rows
	CREATE INDEX IF NOT EXISTS idx_submissions_accepted_submitter ON submissions(submitter_id) WHERE accepted;

	CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
	`
	if _, err := pool.Exec(ctx, submissionsSchema); err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}

	grantsSchema := `
	CREATE TABLE IF NOT EXISTS access_grants (
		user_id TEXT PRIMARY KEY,
		active BOOLEAN NOT NULL,
		emergency BOOLEAN NOT NULL DEFAULT FALSE,
		duration TEXT NOT NULL,
		expires_at TIMESTAMPTZ,
		granted_at TIMESTAMPTZ NOT NULL,
		granted_by TEXT NOT NULL,
		revoked_at TIMESTAMPTZ,
		revoked_by TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := pool.Exec(ctx, grantsSchema); err != nil {
		return fmt.Errorf("failed to create access_grants table: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

// PostgresStore is the durable backing for seeds, bans, the submission log
// and access grants
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the PostgreSQL connection pool
func (p *PostgresStore) Close() {
	log.Println("🔌 Closing PostgreSQL connection...")
	p.pool.Close()
}

/* =========================
   USED SEED REGISTRY
========================= */

func (p *PostgresStore) IsUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	var used bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM used_seeds WHERE server_seed_hash = $1)`,
		serverSeedHash,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("failed to check used seed: %w", err)
	}
	return used, nil
}

func (p *PostgresStore) MarkUsed(ctx context.Context, serverSeedHash string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO used_seeds (server_seed_hash) VALUES ($1) ON CONFLICT (server_seed_hash) DO NOTHING`,
		serverSeedHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark seed used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

/* =========================
   BAN RECORDS
========================= */

func (p *PostgresStore) GetBan(ctx context.Context, submitterID string) (*abuse.BanRecord, error) {
	var ban abuse.BanRecord
	err := p.pool.QueryRow(ctx,
		`SELECT submitter_id, reason, banned_at FROM ban_records WHERE submitter_id = $1`,
		submitterID,
	).Scan(&ban.SubmitterID, &ban.Reason, &ban.Timestamp)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	return &ban, nil
}

func (p *PostgresStore) PutBan(ctx context.Context, ban abuse.BanRecord) error {
	query := `
		INSERT INTO ban_records (submitter_id, reason, banned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (submitter_id)
		DO UPDATE SET reason = EXCLUDED.reason, banned_at = EXCLUDED.banned_at
	`
	if _, err := p.pool.Exec(ctx, query, ban.SubmitterID, ban.Reason, ban.Timestamp); err != nil {
		return fmt.Errorf("failed to store ban: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteBan(ctx context.Context, submitterID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM ban_records WHERE submitter_id = $1`, submitterID); err != nil {
		return fmt.Errorf("failed to delete ban: %w", err)
	}
	return nil
}

/* =========================
   SUBMISSION LOG
========================= */

func (p *PostgresStore) AppendSubmission(ctx context.Context, rec service.SubmissionRecord) error {
	positions := make([]int32, len(rec.ClaimedPositions))
	for i, c := range rec.ClaimedPositions {
		positions[i] = int32(c)
	}

	query := `
		INSERT INTO submissions (id, submitter_id, server_seed_hash, client_seed, nonce,
		                         mine_count, claimed_positions, accepted, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.pool.Exec(ctx, query,
		rec.ID,
		rec.SubmitterID,
		rec.ServerSeedHash,
		rec.ClientSeed,
		rec.Nonce,
		rec.MineCount,
		positions,
		rec.Accepted,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store submission: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountAccepted(ctx context.Context, submitterID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE accepted AND submitter_id = $1`,
		submitterID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count accepted submissions: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]service.LeaderboardEntry, error) {
	query := `
		SELECT ROW_NUMBER() OVER (ORDER BY COUNT(*) DESC, submitter_id ASC) AS rank,
		       submitter_id, COUNT(*) AS accepted
		FROM submissions
		WHERE accepted
		GROUP BY submitter_id
		ORDER BY rank
		LIMIT $1
	`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []service.LeaderboardEntry{}
	for rows.Next() {
		var e service.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.SubmitterID, &e.Accepted); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

func (p *PostgresStore) Totals(ctx context.Context) (service.Totals, error) {
	var t service.Totals
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE accepted),
		       COUNT(DISTINCT submitter_id)
		FROM submissions
	`).Scan(&t.Submissions, &t.Accepted, &t.Submitters)
	if err != nil {
		return service.Totals{}, fmt.Errorf("failed to load totals: %w", err)
	}
	return t, nil
}

/* =========================
   ACCESS GRANTS
========================= */

func (p *PostgresStore) GetGrant(ctx context.Context, userID string) (*access.Grant, error) {
	var g access.Grant
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, active, emergency, duration, expires_at,
		       granted_at, granted_by, revoked_at, revoked_by
		FROM access_grants WHERE user_id = $1
	`, userID).Scan(
		&g.UserID,
		&g.Active,
		&g.Emergency,
		&g.Duration,
		&g.ExpiresAt,
		&g.GrantedAt,
		&g.GrantedBy,
		&g.RevokedAt,
		&g.RevokedBy,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

func (p *PostgresStore) PutGrant(ctx context.Context, g access.Grant) error {
	query := `
		INSERT INTO access_grants (user_id, active, emergency, duration, expires_at,
		                           granted_at, granted_by, revoked_at, revoked_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id)
		DO UPDATE SET
			active = EXCLUDED.active,
			emergency = EXCLUDED.emergency,
			duration = EXCLUDED.duration,
			expires_at = EXCLUDED.expires_at,
			granted_at = EXCLUDED.granted_at,
			granted_by = EXCLUDED.granted_by,
			revoked_at = EXCLUDED.revoked_at,
			revoked_by = EXCLUDED.revoked_by
	`
	_, err := p.pool.Exec(ctx, query,
		g.UserID,
		g.Active,
		g.Emergency,
		g.Duration,
		g.ExpiresAt,
		g.GrantedAt,
		g.GrantedBy,
		g.RevokedAt,
		g.RevokedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to store grant: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountActiveGrants(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_grants WHERE active AND (expires_at IS NULL OR expires_at >= $1)`,
		now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count grants: %w", err)
	}
	return n, nil
}

/* =========================
   HEALTH CHECK
========================= */

// HealthCheck performs a PostgreSQL health check
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
