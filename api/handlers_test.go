package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minesServer/api"
	"minesServer/crypto"
	"minesServer/game"
	"minesServer/service"
	"minesServer/state"
)

const testSecret = "test-admin-secret"

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type server struct {
	srv  *httptest.Server
	auth *api.AdminAuth
}

func newServer(t *testing.T, accessRequired bool) *server {
	t.Helper()

	signer, err := crypto.NewReceiptSigner("")
	require.NoError(t, err)

	svc := service.New(service.Deps{
		Registry:              state.NewUsedSeeds(),
		Bans:                  state.NewBans(),
		History:               state.NewHistories(),
		Grants:                state.NewGrants(),
		Log:                   state.NewSubmissions(0),
		Signer:                signer,
		PredictAccessRequired: accessRequired,
	})

	auth := api.NewAdminAuth(testSecret, []string{"root"})
	h := api.NewHandler(svc, map[string]api.HealthChecker{
		"redis": stubHealth{err: errors.New("connection refused")},
	})

	srv := httptest.NewServer(h.Routes(auth, nil))
	t.Cleanup(srv.Close)
	return &server{srv: srv, auth: auth}
}

func (s *server) do(t *testing.T, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (s *server) adminToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := s.auth.IssueToken(subject, time.Hour)
	require.NoError(t, err)
	return token
}

func honestSubmission(t *testing.T, submitter string, mines int) service.SubmitRequest {
	t.Helper()
	seed, hash, err := crypto.GenerateServerSeed()
	require.NoError(t, err)

	outcome, err := game.CanonicalOutcome(seed, "client", 1, game.MinesGrid(mines))
	require.NoError(t, err)

	return service.SubmitRequest{
		SubmitterID:      submitter,
		ServerSeed:       seed,
		ServerSeedHash:   hash,
		ClientSeed:       "client",
		Nonce:            1,
		MineCount:        mines,
		ClaimedPositions: outcome,
	}
}

func TestRootAndHealth(t *testing.T) {
	s := newServer(t, false)

	resp, err := http.Get(s.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body := s.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "error: connection refused", body["redis"])
	assert.Equal(t, "disabled", body["postgres"])

	status, _ = s.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubmitAccepted(t *testing.T) {
	s := newServer(t, false)
	req := honestSubmission(t, "alice", 3)

	status, body := s.do(t, http.MethodPost, "/api/submit", req, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, game.ReasonAccepted, body["reason"])
	assert.NotEmpty(t, body["submissionId"])
	assert.Len(t, body["canonicalOutcome"], 3)
	assert.NotNil(t, body["receipt"])

	status, body = s.do(t, http.MethodPost, "/api/submit", req, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["accepted"])
	assert.Equal(t, game.ReasonReplay, body["reason"])

	status, body = s.do(t, http.MethodGet, "/api/results?submitterId=alice", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["accepted"])

	status, body = s.do(t, http.MethodGet, "/api/leaderboard?limit=5", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["leaderboard"], 1)
}

func TestSubmitErrors(t *testing.T) {
	s := newServer(t, false)

	t.Run("BadBody", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPost, "/api/submit", "not an object", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/api/submit", nil, "")
		assert.Equal(t, http.StatusMethodNotAllowed, status)
	})

	t.Run("ValidationIs400", func(t *testing.T) {
		req := honestSubmission(t, "bob", 3)
		req.MineCount = 25
		status, body := s.do(t, http.MethodPost, "/api/submit", req, "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
	})

	t.Run("BadLimit", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/api/leaderboard?limit=ten", nil, "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("Preflight", func(t *testing.T) {
		status, _ := s.do(t, http.MethodOptions, "/api/submit", nil, "")
		assert.Equal(t, http.StatusOK, status)
	})
}

func TestRateBanAndAdminUnban(t *testing.T) {
	s := newServer(t, false)

	for i := 0; i < 4; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/submit", honestSubmission(t, "carol", 2), "")
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := s.do(t, http.MethodPost, "/api/submit", honestSubmission(t, "carol", 2), "")
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/api/submit", honestSubmission(t, "carol", 2), "")
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/api/admin/unban", api.UnbanRequest{SubmitterID: "carol"}, s.adminToken(t, "root"))
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodPost, "/api/submit", honestSubmission(t, "carol", 2), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["accepted"])
}

func TestPredictAccess(t *testing.T) {
	s := newServer(t, true)
	_, hash, err := crypto.GenerateServerSeed()
	require.NoError(t, err)

	predict := service.PredictRequest{SubmitterID: "dave", ServerSeedHash: hash, MineCount: 3, Nonce: 1}

	status, _ := s.do(t, http.MethodPost, "/api/predict", predict, "")
	require.Equal(t, http.StatusForbidden, status)

	token := s.adminToken(t, "root")
	status, body := s.do(t, http.MethodPost, "/api/admin/grant", api.GrantRequest{UserID: "dave", Duration: "2h"}, token)
	require.Equal(t, http.StatusOK, status)
	grant := body["grant"].(map[string]interface{})
	assert.Equal(t, "root", grant["grantedBy"])

	status, body = s.do(t, http.MethodPost, "/api/predict", predict, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["outcome"], 3)
	metadata := body["metadata"].(map[string]interface{})
	assert.Equal(t, true, metadata["warmingUp"])

	status, _ = s.do(t, http.MethodPost, "/api/admin/grant", api.GrantRequest{UserID: "dave", Duration: "soon"}, token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPost, "/api/admin/revoke", api.UserRequest{UserID: "dave"}, token)
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/predict", predict, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodGet, "/api/admin/stats", nil, token)
	require.Equal(t, http.StatusOK, status)
	stats := body["stats"].(map[string]interface{})
	assert.EqualValues(t, 0, stats["activeGrants"])
	assert.NotNil(t, body["heatmap"])
}

func TestAdminAuth(t *testing.T) {
	s := newServer(t, false)

	other := api.NewAdminAuth("some-other-secret", []string{"root"})
	forged, err := other.IssueToken("root", time.Hour)
	require.NoError(t, err)

	expired, err := s.auth.IssueToken("root", -time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "root",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"Garbage", "not-a-jwt", http.StatusUnauthorized},
		{"WrongSecret", forged, http.StatusUnauthorized},
		{"Expired", expired, http.StatusUnauthorized},
		{"AlgNone", none, http.StatusUnauthorized},
		{"NotAnAdmin", s.adminToken(t, "mallory"), http.StatusUnauthorized},
		{"Admin", s.adminToken(t, "root"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, http.MethodGet, "/api/admin/stats", nil, tt.token)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	auth := api.NewAdminAuth("", nil)

	_, err := auth.IssueToken("root", time.Hour)
	assert.Error(t, err)

	called := false
	handler := auth.Require(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, called)
}
