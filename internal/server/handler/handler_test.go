package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/curve"
	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/pricing"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
	"github.com/Otaku-Wars/clashcore/internal/service"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeArena struct {
	user domain.User
	err  error
}

func (f *fakeArena) User(ctx context.Context, address string) (domain.User, error) {
	return f.user, f.err
}

type fakeWatcher struct{}

func (fakeWatcher) WatchBalance(address string, character uint64) {}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestWorld(t *testing.T) *reconcile.Reconciler {
	rec := reconcile.New(func() time.Time { return testEpoch }, 100)
	err := rec.ApplyWorld(domain.WorldSnapshot{
		Seq: 3,
		Characters: []domain.Character{
			{ID: 1, Supply: 1000, Value: 500},
			{ID: 2, Supply: 2000, Value: 900},
		},
		AsOf: testEpoch,
	})
	require.NoError(t, err)
	return rec
}

func newCharacterHandler(t *testing.T, rec *reconcile.Reconciler) *CharacterHandler {
	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	portfolio := service.NewPortfolioService(&fakeArena{}, quoter, rec, fakeWatcher{}, testLogger(t))
	return NewCharacterHandler(rec, portfolio, nil, testLogger(t))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestCharacterListOrderedByID(t *testing.T) {
	h := newCharacterHandler(t, newTestWorld(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/characters", h.List)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	chars := body["characters"].([]any)
	require.Len(t, chars, 2)

	first := chars[0].(map[string]any)
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, float64(1000), first["supply"])
	assert.Greater(t, first["price"].(float64), 0.0)
	// No rates provider configured, so USD fields stay absent.
	assert.NotContains(t, first, "price_usd")
}

func TestCharacterGetNotFound(t *testing.T) {
	h := newCharacterHandler(t, newTestWorld(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/characters/{id}", h.Get)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/99", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuoteBuyAndSell(t *testing.T) {
	h := newCharacterHandler(t, newTestWorld(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/characters/{id}/quote", h.Quote)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/1/quote?side=buy&amount=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	pre := body["pre_fee"].(float64)
	after := body["after_fee"].(float64)
	assert.Greater(t, pre, 0.0)
	assert.InDelta(t, pre*1.02, after, 1e-12)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/1/quote?side=sell&amount=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body = decodeBody(t, rr)
	assert.InDelta(t, body["pre_fee"].(float64)*0.98, body["after_fee"].(float64), 1e-12)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	h := newCharacterHandler(t, newTestWorld(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/characters/{id}/quote", h.Quote)

	// Selling more than supply is not clamped.
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/1/quote?side=sell&amount=5000", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/1/quote?side=buy&amount=0", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/characters/99/quote?side=buy&amount=1", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBattleProjectionBeforeAssignmentIsZero(t *testing.T) {
	rec := newTestWorld(t)
	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	h := NewBattleHandler(rec, pricing.NewProjector(quoter, 0.10), testLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/battle/projection", h.Projection)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/battle/projection", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	proj := body["projection"].(map[string]any)
	assert.Equal(t, 0.0, proj["p1_win_price"])
	assert.Equal(t, 0.0, proj["p2_lose_price"])
}

func TestBattleProjectionForPendingMatch(t *testing.T) {
	rec := newTestWorld(t)
	require.NoError(t, rec.ApplyBattle(domain.BattleState{
		Status: domain.BattleStatusPending,
		P1:     1,
		P2:     2,
		Seq:    1,
		AsOf:   testEpoch,
	}))

	quoter := pricing.NewQuoter(curve.DefaultParams(), 0.02, rec)
	h := NewBattleHandler(rec, pricing.NewProjector(quoter, 0.10), testLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/battle/projection", h.Projection)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/battle/projection", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["p1"])
	assert.Equal(t, float64(2), body["p2"])

	proj := body["projection"].(map[string]any)
	// Absorbing the loser's value raises the winner's projected price.
	assert.Greater(t, proj["p1_win_price"].(float64), proj["p1_lose_price"].(float64))
	assert.Greater(t, proj["p2_win_price"].(float64), proj["p2_lose_price"].(float64))
}

func TestActivityListFromBuffer(t *testing.T) {
	rec := newTestWorld(t)
	require.True(t, rec.RecordEvent(domain.TradeEvent{
		Trader:      "0xabc",
		Character:   1,
		IsBuy:       true,
		ShareAmount: 5,
		Timestamp:   testEpoch,
	}))
	require.True(t, rec.RecordEvent(domain.StakeEvent{
		Staker:    "0xdef",
		Character: 2,
		Amount:    3,
		Attribute: "power",
		Timestamp: testEpoch.Add(time.Second),
	}))

	h := NewActivityHandler(rec, nil, testLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/activity", h.List)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/activity", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	events := body["events"].([]any)
	require.Len(t, events, 2)

	// Without an archive store, the character filter applies to the buffer.
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/activity?character=2", nil))
	body = decodeBody(t, rr)
	events = body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "stake", events[0].(map[string]any)["type"])
}

func TestHealthReportsSources(t *testing.T) {
	rec := newTestWorld(t)
	rec.SetSourceError(reconcile.SourceFeed, assert.AnError)

	h := NewHealthHandler(rec, testEpoch, testLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.HealthCheck)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "ok", body["status"])

	sources := body["sources"].(map[string]any)
	world := sources["world"].(map[string]any)
	assert.Equal(t, false, world["error"])

	feed := sources["feed"].(map[string]any)
	assert.Equal(t, true, feed["error"])
	assert.NotEmpty(t, feed["last_error"])
}
