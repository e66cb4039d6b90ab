package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"minesServer/abuse"
	"minesServer/access"
	"minesServer/api"
	"minesServer/config"
	"minesServer/crypto"
	"minesServer/db"
	"minesServer/game"
	"minesServer/service"
	"minesServer/state"
	"minesServer/ws"
)

// stores is the backing chosen at startup
type stores struct {
	registry game.UsedSeedRegistry
	bans     abuse.BanStore
	history  abuse.HistoryStore
	grants   access.Store
	log      service.SubmissionLog
	health   map[string]api.HealthChecker
	closers  []func()
}

// openStores prefers PostgreSQL for durable records and Redis for the
// sliding window, falling back to memory for whatever is unreachable
func openStores(ctx context.Context, s config.Settings) *stores {
	st := &stores{
		registry: state.NewUsedSeeds(),
		bans:     state.NewBans(),
		history:  state.NewHistories(),
		grants:   state.NewGrants(),
		log:      state.NewSubmissions(0),
		health:   map[string]api.HealthChecker{},
	}

	client, err := db.InitRedis(s)
	if err != nil {
		log.Printf("⚠️  Warning: Redis initialization failed: %v", err)
		log.Println("   Abuse windows and bans will be kept in memory")
	} else {
		redisStore := db.NewRedisStore(client)
		st.registry = redisStore
		st.bans = redisStore
		st.history = redisStore
		st.health["redis"] = redisStore
		st.closers = append(st.closers, func() { redisStore.Close() })
	}

	pool, err := db.InitPostgres(ctx, s.DatabaseURL)
	if err != nil {
		log.Printf("⚠️  Warning: PostgreSQL initialization failed: %v", err)
		log.Println("   Submission log and access grants will be kept in memory")
	} else {
		pgStore := db.NewPostgresStore(pool)
		st.registry = pgStore
		st.bans = pgStore
		st.grants = pgStore
		st.log = pgStore
		st.health["postgres"] = pgStore
		st.closers = append(st.closers, pgStore.Close)
	}

	return st
}

func (st *stores) close() {
	for i := len(st.closers) - 1; i >= 0; i-- {
		st.closers[i]()
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables")
	} else {
		log.Println("✅ Loaded environment variables from .env")
	}

	settings := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStores(ctx, settings)
	defer st.close()

	signer, err := crypto.NewReceiptSigner(settings.ReceiptPrivateKey)
	if err != nil {
		log.Fatal("❌ Receipt signer error:", err)
	}
	log.Printf("🔏 Receipts signed by %s", signer.Address())

	hub := ws.NewHub()

	svc := service.New(service.Deps{
		Registry:              st.registry,
		Bans:                  st.bans,
		History:               st.history,
		Grants:                st.grants,
		Log:                   st.log,
		Signer:                signer,
		Broadcaster:           hub,
		PredictAccessRequired: settings.PredictAccessRequired,
	})
	hub.PublishHeatmap(svc.Heatmap())

	if settings.AdminJWTSecret == "" {
		log.Println("⚠️  Warning: ADMIN_JWT_SECRET not set, admin endpoints are disabled")
	}
	auth := api.NewAdminAuth(settings.AdminJWTSecret, settings.AdminUserIDs)
	handler := api.NewHandler(svc, st.health)

	addr := "0.0.0.0:" + settings.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(auth, hub.ServeWS),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("🚀 Server starting on %s", addr)
		log.Println("")
		log.Println("📡 WebSocket Endpoints:")
		log.Printf("   ws://localhost:%s/ws - Live feed", settings.Port)
		log.Println("   - Subscribe to 'verifications' for accepted rounds (last 50 replayed)")
		log.Println("   - Subscribe to 'heatmap' for display heatmap snapshots")
		log.Println("")
		log.Println("🔌 API Endpoints:")
		log.Println("   POST /api/predict - Speculative guess for a committed round")
		log.Println("   POST /api/submit - Verify a revealed round")
		log.Println("   GET  /api/results?submitterId= - Accepted count for a submitter")
		log.Println("   GET  /api/leaderboard?limit= - Top submitters")
		log.Println("   POST /api/admin/{unban,grant,revoke} - Admin actions (Bearer JWT)")
		log.Println("   GET  /api/admin/stats - Totals and heatmap (Bearer JWT)")
		log.Println("   GET  /api/health - Health check (Redis + PostgreSQL)")
		log.Println("")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("❌ Server error:", err)
	}
}
