package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/salesdesk/salesdesk/internal/ai"
	"github.com/salesdesk/salesdesk/internal/alerts"
	"github.com/salesdesk/salesdesk/internal/claims"
	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/scheduling"
	"github.com/salesdesk/salesdesk/internal/storage/memory"
	"github.com/salesdesk/salesdesk/internal/types"
)

const today = "2025-01-15"

func quiet(string, ...any) {}

type testEnv struct {
	store *memory.Store
	bus   *notify.Bus
	srv   *Server
	http  *httptest.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := memory.New()
	bus := notify.NewBus(notify.WithLogf(quiet))
	coord, err := claims.NewCoordinator(store, bus, claims.Config{
		Location: time.UTC,
		Now:      func() time.Time { return clock },
		Logf:     quiet,
	})
	require.NoError(t, err)
	journal := events.NewJournal(store)
	journal.Attach(bus)
	t.Cleanup(journal.Close)

	srv, err := New(Deps{
		Schedules:  store,
		Claims:     coord,
		Alerts:     alerts.NewProjector(store),
		Scheduling: scheduling.NewService(store, bus, ai.Templates{}, scheduling.Config{Logf: quiet}),
		Text:       ai.Templates{},
		Events:     store,
		Bus:        bus,
	}, Config{MetricsEnabled: true, Logf: quiet})
	require.NoError(t, err)

	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return &testEnv{store: store, bus: bus, srv: srv, http: hs}
}

func (e *testEnv) create(t *testing.T, at, customer string) *types.Schedule {
	t.Helper()
	s, err := e.store.CreateSchedule(context.Background(), types.NewSchedule{
		Date: today, Time: at, CustomerName: customer, VehicleInterest: "Slavia",
	})
	require.NoError(t, err)
	return s
}

type caller struct {
	id   string
	role types.Role
}

var (
	sales1 = caller{"E1", types.RoleSales}
	sales2 = caller{"E2", types.RoleSales}
	crt    = caller{"C1", types.RoleCRT}
	admin  = caller{"A1", types.RoleAdmin}
	nobody = caller{}
)

func (e *testEnv) do(t *testing.T, who caller, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	if who.id != "" {
		req.Header.Set(HeaderUserID, who.id)
		req.Header.Set(HeaderUserRole, string(who.role))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func alertIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["alerts"].([]any)
	require.True(t, ok, "alerts missing: %v", body)
	var ids []string
	for _, a := range list {
		ids = append(ids, a.(map[string]any)["schedule_id"].(string))
	}
	return ids
}

func TestHealthz(t *testing.T) {
	env := newEnv(t)
	code, body := env.do(t, nobody, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestClaimFlow(t *testing.T) {
	env := newEnv(t)
	late := env.create(t, "17:00", "Ravi")
	early := env.create(t, "09:00", "Meera")

	code, body := env.do(t, nobody, http.MethodGet, "/api/alerts?date="+today+"&scope=team", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{early.ID, late.ID}, alertIDs(t, body), "sorted by time")

	code, body = env.do(t, sales1, http.MethodPost, "/api/schedules/"+late.ID+"/claim", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["claimed"])
	assert.Equal(t, "E1", body["schedule"].(map[string]any)["claimed_by"])

	code, body = env.do(t, sales2, http.MethodPost, "/api/schedules/"+late.ID+"/claim", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["claimed"])

	code, body = env.do(t, sales2, http.MethodGet, "/api/alerts/mine", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{early.ID}, alertIDs(t, body))

	code, body = env.do(t, sales1, http.MethodGet, "/api/alerts/mine", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{early.ID, late.ID}, alertIDs(t, body))

	code, _ = env.do(t, sales2, http.MethodPost, "/api/schedules/"+late.ID+"/complete", "")
	assert.Equal(t, http.StatusForbidden, code, "only the claimant completes")
	code, _ = env.do(t, sales2, http.MethodPost, "/api/schedules/"+late.ID+"/expire", "")
	assert.Equal(t, http.StatusForbidden, code, "only the claimant expires")
	still, err := env.store.GetSchedule(context.Background(), late.ID)
	require.NoError(t, err)
	assert.Equal(t, "E1", still.ClaimedBy)

	code, body = env.do(t, sales1, http.MethodPost, "/api/schedules/"+late.ID+"/complete", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(types.StatusCompleted), body["status"])

	code, _ = env.do(t, sales1, http.MethodPost, "/api/schedules/"+late.ID+"/complete", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = env.do(t, sales1, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["claimed_count"])
	assert.Equal(t, float64(1), body["completed_count"])
	assert.Equal(t, float64(100), body["success_rate"])

	code, body = env.do(t, nobody, http.MethodGet, "/api/stats/team", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["stats"], 1)
}

func TestAdminMayExpireAnyClaim(t *testing.T) {
	env := newEnv(t)
	s := env.create(t, "10:00", "Ravi")

	code, _ := env.do(t, sales1, http.MethodPost, "/api/schedules/"+s.ID+"/claim", "")
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, admin, http.MethodPost, "/api/schedules/"+s.ID+"/expire", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(types.StatusExpired), body["status"])
}

func TestErrorMapping(t *testing.T) {
	env := newEnv(t)
	s := env.create(t, "10:00", "Ravi")

	tests := []struct {
		name   string
		who    caller
		method string
		path   string
		body   string
		want   int
	}{
		{"claim unknown", sales1, http.MethodPost, "/api/schedules/missing/claim", "", http.StatusNotFound},
		{"claim without identity", nobody, http.MethodPost, "/api/schedules/" + s.ID + "/claim", "", http.StatusForbidden},
		{"crt cannot claim", crt, http.MethodPost, "/api/schedules/" + s.ID + "/claim", "", http.StatusForbidden},
		{"complete unclaimed", sales1, http.MethodPost, "/api/schedules/" + s.ID + "/complete", "", http.StatusConflict},
		{"unknown role", caller{"X", "Intern"}, http.MethodGet, "/api/alerts/mine", "", http.StatusForbidden},
		{"bad status filter", nobody, http.MethodGet, "/api/schedules?status=lost", "", http.StatusBadRequest},
		{"bad scope", nobody, http.MethodGet, "/api/alerts?scope=mine", "", http.StatusBadRequest},
		{"missing fields", crt, http.MethodPost, "/api/schedules", `{"date":"2025-01-15"}`, http.StatusBadRequest},
		{"bad json", crt, http.MethodPost, "/api/schedules", `{`, http.StatusBadRequest},
		{"unknown field", crt, http.MethodPost, "/api/schedules", `{"claimed_by":"E1"}`, http.StatusBadRequest},
		{"empty feedback", sales1, http.MethodPost, "/api/ai/followup-script", `{"feedback":" "}`, http.StatusBadRequest},
		{"get unknown", nobody, http.MethodGet, "/api/schedules/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, tt.who, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCreateSchedule(t *testing.T) {
	env := newEnv(t)

	var announced []notify.NewAlertPayload
	notify.NewAlert.Subscribe(env.bus, func(p notify.NewAlertPayload) error {
		announced = append(announced, p)
		return nil
	})

	code, body := env.do(t, crt, http.MethodPost, "/api/schedules", `{
		"date": "2025-01-15",
		"time": "14:00",
		"customer_name": "Priya Sharma",
		"vehicle_interest": "Superb",
		"lead_id": "4",
		"notes": "first car buyer"
	}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "C1", body["created_by"])
	assert.Equal(t, string(types.StatusPending), body["status"])
	assert.Contains(t, body["ai_summary"], "Superb")
	require.Len(t, announced, 1)
	assert.Equal(t, body["id"], announced[0].ScheduleID)

	code, body = env.do(t, nobody, http.MethodGet, "/api/schedules?date=2025-01-15", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["schedules"], 1)
}

func TestAIEndpoints(t *testing.T) {
	env := newEnv(t)

	code, body := env.do(t, sales1, http.MethodPost, "/api/ai/followup-script", `{"feedback":"Loved the Kushaq"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["script"], "Mahavir Skoda")

	code, body = env.do(t, sales1, http.MethodPost, "/api/ai/feedback-analysis", `{"feedback":"interested, call soon"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["analysis"], "Follow-up priority: High")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t)
	s := env.create(t, "10:00", "Ravi")
	env.do(t, sales1, http.MethodPost, "/api/schedules/"+s.ID+"/claim", "")

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "salesdesk_claim_attempts_total")
}

func TestWebsocketReceivesEvents(t *testing.T) {
	env := newEnv(t)
	s := env.create(t, "10:00", "Ravi")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return env.srv.Hub().Clients() == 1 }, 5*time.Second, 5*time.Millisecond)

	code, _ := env.do(t, sales1, http.MethodPost, "/api/schedules/"+s.ID+"/claim", "")
	require.Equal(t, http.StatusOK, code)

	var msg struct {
		Type    string                    `json:"type"`
		Payload notify.ClaimUpdatePayload `json:"payload"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, string(notify.EventClaimUpdate), msg.Type)
	assert.Equal(t, notify.ClaimUpdatePayload{ScheduleID: s.ID, ClaimedBy: "E1"}, msg.Payload)
}

func TestHubDropsWhenClientIsSlow(t *testing.T) {
	bus := notify.NewBus(notify.WithLogf(quiet))
	hub := NewHub(bus, nil, quiet)
	defer hub.Close()

	c := &wsClient{id: "slow", send: make(chan notify.Event, 2)}
	hub.register(c)
	defer hub.unregister(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			assert.Zero(t, notify.AlertUpdate.Publish(bus, notify.AlertUpdatePayload{Type: "heartbeat"}))
		}
	}()
	wg.Wait()

	assert.Len(t, c.send, 2)
	hub.mu.Lock()
	assert.Equal(t, 8, c.dropped)
	hub.mu.Unlock()
}

func TestEventHistory(t *testing.T) {
	env := newEnv(t)
	s := env.create(t, "10:00", "Ravi")

	code, _ := env.do(t, sales1, http.MethodPost, "/api/schedules/"+s.ID+"/claim", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, sales1, http.MethodPost, "/api/schedules/"+s.ID+"/complete", "")
	require.Equal(t, http.StatusOK, code)

	code, body := env.do(t, nobody, http.MethodGet, "/api/schedules/"+s.ID+"/events", "")
	require.Equal(t, http.StatusOK, code)
	list, ok := body["events"].([]any)
	require.True(t, ok, "events missing: %v", body)
	require.Len(t, list, 2)
	newest := list[0].(map[string]any)
	assert.Equal(t, string(notify.EventScheduleCompleted), newest["type"])
	assert.Equal(t, "E1", newest["actor"])
	assert.Equal(t, string(notify.EventClaimUpdate), list[1].(map[string]any)["type"])

	code, body = env.do(t, nobody, http.MethodGet, "/api/events?type=claim_update&limit=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["events"], 1)

	code, _ = env.do(t, nobody, http.MethodGet, "/api/events?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, nobody, http.MethodGet, "/api/events?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, nobody, http.MethodGet, "/api/schedules/missing/events", "")
	assert.Equal(t, http.StatusNotFound, code)
}
