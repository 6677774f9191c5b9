// README: End-to-end HTTP tests over in-memory stores with header auth.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "transferhub/internal/http"
	"transferhub/internal/http/middleware"
	"transferhub/internal/modules/eligibility"
	"transferhub/internal/modules/events"
	"transferhub/internal/modules/geozone"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/settlement"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

var lisbon = geozone.Zone{Name: "lisbon", Polygon: []types.Point{
	{Lat: 38.69, Lng: -9.23},
	{Lat: 38.69, Lng: -9.09},
	{Lat: 38.80, Lng: -9.09},
	{Lat: 38.80, Lng: -9.23},
}}

type env struct {
	handler http.Handler
	users   *user.MemoryDirectory
	broker  *events.Broker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := user.NewMemoryDirectory()
	for _, u := range []*user.User{
		{ID: "c1", Name: "Client", Role: user.RoleClient, Status: user.StatusActive},
		{ID: "c2", Name: "Other", Role: user.RoleClient, Status: user.StatusActive},
		{ID: "admin1", Name: "Ops", Role: user.RoleAdmin, Status: user.StatusActive},
		{ID: "d1", Name: "Driver One", Role: user.RoleDriver, Status: user.StatusActive,
			Vehicles: []user.Vehicle{{Category: "economy", MaxPassengers: 4}}, Zones: []geozone.Zone{lisbon}},
		{ID: "platform", Name: "Platform", Role: user.RoleAdmin, Status: user.StatusActive},
	} {
		require.NoError(t, users.Upsert(ctx, u))
	}
	ledger := settlement.NewMemoryLedger(users)
	store := job.NewMemoryStore(ledger)
	prices := pricing.NewService(nil, logger)
	broker := events.NewBroker(logger)
	jobs := job.NewService(job.Deps{
		Events:            broker,
		Store:             store,
		Pricing:           prices,
		Users:             users,
		Logger:            logger,
		PlatformAccountID: "platform",
	})
	srv := httptransport.NewServer(httptransport.ServerDeps{
		Jobs:        jobs,
		Eligibility: eligibility.NewService(store, users, eligibility.NewMemorySkipStore(), logger),
		Pricing:     prices,
		Settlement:  settlement.NewService(ledger, users, logger),
		Broker:      broker,
		Currency:    "EUR",
		Logger:      logger,
	})
	return &env{handler: srv.Routes(), users: users, broker: broker}
}

func (e *env) do(t *testing.T, method, path, uid, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.HeaderUserID, uid)
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createBody() map[string]any {
	return map[string]any{
		"pickup":       map[string]any{"label": "Rossio", "point": map[string]any{"lat": 38.7139, "lng": -9.1394}},
		"dropoff":      map[string]any{"label": "Airport", "point": map[string]any{"lat": 38.7742, "lng": -9.1342}},
		"distance_km":  12,
		"category":     "economy",
		"passengers":   3,
		"luggage":      2,
		"scheduled_at": "2026-03-04T10:00:00Z",
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/jobs", "c1", "client", createBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[job.Job](t, w)
	assert.Equal(t, job.StatusPending, created.Status)
	assert.Equal(t, int64(5400), created.QuotedPrice.Amount)

	w = e.do(t, http.MethodGet, "/api/jobs", "d1", "driver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Jobs []job.Job `json:"jobs"`
	}](t, w)
	require.Len(t, list.Jobs, 1)

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/bids", "d1", "driver", map[string]any{"amount": 50})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bid := decode[job.Bid](t, w)
	assert.Equal(t, "EUR", bid.Amount.Currency)

	// only the owner may accept
	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/bids/"+string(bid.ID)+"/accept", "c2", "client", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/bids/"+string(bid.ID)+"/accept", "c1", "client", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusAccepted, decode[job.Job](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/complete", "d1", "driver", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "unpaid job must not complete")

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/paid", "d1", "driver", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/paid", "admin1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/complete", "d1", "driver", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusCompleted, decode[job.Job](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/jobs/"+string(created.ID)+"/complete", "d1", "driver", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, http.MethodGet, "/api/users/d1/transactions", "d1", "driver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode[struct {
		Transactions []settlement.Transaction `json:"transactions"`
	}](t, w)
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, settlement.KindEarning, txs.Transactions[0].Kind)
	assert.Equal(t, int64(3525), txs.Transactions[0].Amount.Amount)

	w = e.do(t, http.MethodGet, "/api/users/d1/transactions", "c1", "client", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/api/admin/payouts", "admin1", "admin", map[string]any{"user_id": "d1", "amount": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d1, err := e.users.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1525), d1.Balance.Amount)

	w = e.do(t, http.MethodPost, "/api/admin/payouts", "admin1", "admin", map[string]any{"user_id": "d1", "amount": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/jobs/"+string(created.ID)+"/events", "c1", "client", nil)
	require.Equal(t, http.StatusOK, w.Code)
	evs := decode[struct {
		Events []job.Event `json:"events"`
	}](t, w)
	assert.NotEmpty(t, evs.Events)
}

func TestDisputeOverHTTP(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/jobs", "c1", "client", createBody())
	require.Equal(t, http.StatusCreated, w.Code)
	id := string(decode[job.Job](t, w).ID)

	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/bids", "d1", "driver", map[string]any{"amount": 50})
	require.Equal(t, http.StatusCreated, w.Code)
	bidID := string(decode[job.Bid](t, w).ID)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/jobs/"+id+"/bids/"+bidID+"/accept", "c1", "client", nil).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/jobs/"+id+"/paid", "admin1", "admin", nil).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/jobs/"+id+"/complete", "admin1", "admin", nil).Code)

	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/dispute", "c2", "client", map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/dispute", "c1", "client", map[string]any{"reason": "late"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusDisputed, decode[job.Job](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/dispute/resolve", "admin1", "admin", map[string]any{"resolution": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/dispute/resolve", "admin1", "admin", map[string]any{"resolution": "REFUND", "note": "no show"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, job.StatusCancelled, decode[job.Job](t, w).Status)
}

func TestSkipHidesJobFromDriver(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/jobs", "c1", "client", createBody())
	require.Equal(t, http.StatusCreated, w.Code)
	id := string(decode[job.Job](t, w).ID)

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/jobs/"+id+"/skip", "d1", "driver", nil).Code)
	w = e.do(t, http.MethodGet, "/api/jobs", "d1", "driver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[]}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/jobs/"+id, "d1", "driver", nil).Code)

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/jobs/"+id+"/skip", "d1", "driver", nil).Code)
	w = e.do(t, http.MethodGet, "/api/jobs", "d1", "driver", nil)
	assert.Contains(t, w.Body.String(), id)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/jobs/"+id, "d1", "driver", nil).Code)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/jobs/"+id+"/skip", "c1", "client", nil).Code)
}

func TestAccessRules(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/jobs", "c1", "client", createBody())
	require.Equal(t, http.StatusCreated, w.Code)
	id := string(decode[job.Job](t, w).ID)

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		role   string
		body   any
		want   int
	}{
		{"no caller", http.MethodGet, "/api/jobs", "", "", nil, http.StatusUnauthorized},
		{"driver cannot book", http.MethodPost, "/api/jobs", "d1", "driver", createBody(), http.StatusForbidden},
		{"foreign client sees 404", http.MethodGet, "/api/jobs/" + id, "c2", "client", nil, http.StatusNotFound},
		{"owner sees job", http.MethodGet, "/api/jobs/" + id, "c1", "client", nil, http.StatusOK},
		{"bad id", http.MethodGet, "/api/jobs/bad%20id", "c1", "client", nil, http.StatusBadRequest},
		{"unknown job", http.MethodGet, "/api/jobs/nope", "admin1", "admin", nil, http.StatusNotFound},
		{"client cannot bid", http.MethodPost, "/api/jobs/" + id + "/bids", "c1", "client", map[string]any{"amount": 10}, http.StatusForbidden},
		{"zero bid", http.MethodPost, "/api/jobs/" + id + "/bids", "d1", "driver", map[string]any{"amount": 0}, http.StatusBadRequest},
		{"foreign currency bid", http.MethodPost, "/api/jobs/" + id + "/bids", "d1", "driver", map[string]any{"amount": 50, "currency": "USD"}, http.StatusBadRequest},
		{"unknown driver sees 404", http.MethodGet, "/api/jobs/" + id, "d9", "driver", nil, http.StatusNotFound},
		{"non-admin pricing", http.MethodGet, "/api/admin/pricing", "c1", "client", nil, http.StatusForbidden},
		{"driver cannot cancel open job", http.MethodPost, "/api/jobs/" + id + "/cancel", "d1", "driver", nil, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, tc.method, tc.path, tc.uid, tc.role, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	w = e.do(t, http.MethodPost, "/api/jobs/"+id+"/cancel", "c1", "client", map[string]any{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	j := decode[job.Job](t, w)
	assert.Equal(t, job.StatusCancelled, j.Status)
	require.NotNil(t, j.CancelReason)
	assert.Equal(t, "plans changed", *j.CancelReason)
}

func TestPricingEndpoints(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/api/pricing/quote?km=12&category=economy", "c1", "client", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(5400), decode[pricing.Quote](t, w).TotalAmount)

	w = e.do(t, http.MethodGet, "/api/pricing/quote?km=abc", "c1", "client", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/admin/pricing", "admin1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode[pricing.Config](t, w)
	cfg.BaseFare = 30
	w = e.do(t, http.MethodPut, "/api/admin/pricing", "admin1", "admin", cfg)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[pricing.Config](t, w)
	assert.Equal(t, cfg.Version+1, updated.Version)
	assert.Equal(t, types.ID("admin1"), updated.UpdatedBy)

	cfg.CommissionRate = 2
	w = e.do(t, http.MethodPut, "/api/admin/pricing", "admin1", "admin", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	e.do(t, http.MethodGet, "/api/pricing/quote?km=1", "c1", "client", nil)
	w = e.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "transferhub_http_requests_total"))
}

func TestAdminEventStream(t *testing.T) {
	e := newEnv(t)
	ts := httptest.NewServer(e.handler)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/admin/events/stream"

	header := http.Header{}
	header.Set(middleware.HeaderUserID, "c1")
	header.Set(middleware.HeaderUserRole, "client")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set(middleware.HeaderUserID, "admin1")
	header.Set(middleware.HeaderUserRole, "admin")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription is registered after the upgrade; publish until it lands
	deadline := time.Now().Add(2 * time.Second)
	got := make(chan events.Event, 1)
	go func() {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()
	for {
		require.NoError(t, e.broker.Publish(context.Background(), events.Event{Type: events.JobCreated, JobID: "j1"}))
		select {
		case ev := <-got:
			assert.Equal(t, events.JobCreated, ev.Type)
			assert.Equal(t, types.ID("j1"), ev.JobID)
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no event received over the stream")
		}
	}
}
