// api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"minesServer/abuse"
	"minesServer/access"
	"minesServer/game"
	"minesServer/service"
)

/* =========================
   RESPONSE TYPES
========================= */

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ResultsResponse struct {
	Success     bool   `json:"success"`
	SubmitterID string `json:"submitterId"`
	Accepted    int    `json:"accepted"`
}

type LeaderboardResponse struct {
	Success     bool                       `json:"success"`
	Leaderboard []service.LeaderboardEntry `json:"leaderboard"`
}

type PredictResponse struct {
	Success bool `json:"success"`
	game.Prediction
}

type SubmitResponse struct {
	Success bool `json:"success"`
	service.SubmitResponse
}

type GrantRequest struct {
	UserID    string `json:"userId"`
	Duration  string `json:"duration"`
	Emergency bool   `json:"emergency"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

type UnbanRequest struct {
	SubmitterID string `json:"submitterId"`
}

// HealthChecker is implemented by the Redis and PostgreSQL stores
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

/* =========================
   HANDLER
========================= */

type Handler struct {
	svc    *service.Service
	health map[string]HealthChecker
}

// NewHandler builds the HTTP surface. health maps a backend name such as
// "redis" to its checker; missing backends report "disabled".
func NewHandler(svc *service.Service, health map[string]HealthChecker) *Handler {
	if health == nil {
		health = map[string]HealthChecker{}
	}
	return &Handler{svc: svc, health: health}
}

// Routes registers every endpoint. ws may be nil when the live feed is off.
func (h *Handler) Routes(auth *AdminAuth, ws http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", h.HandleRoot)
	mux.HandleFunc("/api/health", corsMiddleware(h.HandleHealthCheck))
	mux.HandleFunc("/api/predict", corsMiddleware(h.HandlePredict))
	mux.HandleFunc("/api/submit", corsMiddleware(h.HandleSubmit))
	mux.HandleFunc("/api/results", corsMiddleware(h.HandleResults))
	mux.HandleFunc("/api/leaderboard", corsMiddleware(h.HandleLeaderboard))

	mux.HandleFunc("/api/admin/unban", corsMiddleware(auth.Require(h.HandleAdminUnban)))
	mux.HandleFunc("/api/admin/grant", corsMiddleware(auth.Require(h.HandleAdminGrant)))
	mux.HandleFunc("/api/admin/revoke", corsMiddleware(auth.Require(h.HandleAdminRevoke)))
	mux.HandleFunc("/api/admin/stats", corsMiddleware(auth.Require(h.HandleAdminStats)))

	if ws != nil {
		mux.HandleFunc("/ws", ws)
	}
	return mux
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleRoot answers liveness checks
// GET /
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		sendError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("mines fairness server is running\n"))
}

// HandleHealthCheck handles health check requests
// GET /api/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx := r.Context()

	response := map[string]interface{}{
		"success": true,
		"message": "Health check completed",
	}
	for _, name := range []string{"redis", "postgres"} {
		status := "disabled"
		if checker, ok := h.health[name]; ok {
			status = "ok"
			if err := checker.HealthCheck(ctx); err != nil {
				status = "error: " + err.Error()
			}
		}
		response[name] = status
	}

	sendJSON(w, http.StatusOK, response)
}

// HandlePredict returns a speculative guess for a committed round
// POST /api/predict
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req service.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prediction, err := h.svc.Predict(r.Context(), req)
	if err != nil {
		sendServiceError(w, "predict", err)
		return
	}

	sendJSON(w, http.StatusOK, PredictResponse{Success: true, Prediction: prediction})
}

// HandleSubmit verifies a revealed round
// POST /api/submit
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.svc.SubmitResult(r.Context(), req)
	if err != nil {
		sendServiceError(w, "submit", err)
		return
	}

	sendJSON(w, http.StatusOK, SubmitResponse{Success: true, SubmitResponse: resp})
}

// HandleResults returns one submitter's accepted count
// GET /api/results?submitterId=
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	submitterID := r.URL.Query().Get("submitterId")
	n, err := h.svc.SubmitterResults(r.Context(), submitterID)
	if err != nil {
		sendServiceError(w, "results", err)
		return
	}

	sendJSON(w, http.StatusOK, ResultsResponse{Success: true, SubmitterID: submitterID, Accepted: n})
}

// HandleLeaderboard handles GET /api/leaderboard
// Query params: limit (optional)
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			sendError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		sendServiceError(w, "leaderboard", err)
		return
	}

	sendJSON(w, http.StatusOK, LeaderboardResponse{Success: true, Leaderboard: entries})
	log.Printf("📋 Retrieved leaderboard with %d entries", len(entries))
}

/* =========================
   ADMIN ENDPOINTS
========================= */

// POST /api/admin/unban
func (h *Handler) HandleAdminUnban(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req UnbanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.AdminUnban(r.Context(), req.SubmitterID); err != nil {
		sendServiceError(w, "unban", err)
		return
	}

	log.Printf("🔓 %s unbanned %s", AdminFromContext(r.Context()), req.SubmitterID)
	sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "submitterId": req.SubmitterID})
}

// POST /api/admin/grant
func (h *Handler) HandleAdminGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, err := h.svc.GrantAccess(r.Context(), req.UserID, AdminFromContext(r.Context()), req.Duration, req.Emergency)
	if err != nil {
		sendServiceError(w, "grant", err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "grant": grant})
}

// POST /api/admin/revoke
func (h *Handler) HandleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.RevokeAccess(r.Context(), req.UserID, AdminFromContext(r.Context())); err != nil {
		sendServiceError(w, "revoke", err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{"success": true, "userId": req.UserID})
}

// GET /api/admin/stats
func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		sendServiceError(w, "stats", err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
		"heatmap": h.svc.Heatmap(),
	})
}

/* =========================
   HELPER FUNCTIONS
========================= */

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   message,
	})
}

// sendServiceError maps typed service errors onto status codes. Anything
// unrecognised is logged and hidden behind a 500.
func sendServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case game.IsValidationError(err):
		sendError(w, http.StatusBadRequest, err.Error())
	case abuse.IsAbuseViolation(err), access.IsDenied(err):
		sendError(w, http.StatusForbidden, err.Error())
	default:
		log.Printf("❌ %s failed: %v", op, err)
		sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// corsMiddleware adds CORS headers to allow frontend requests
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}
