package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/mqtt"
	"github.com/sweeney/hazard-sim/internal/status"
)

type testEnv struct {
	srv     *Server
	store   *hazard.Store
	tracker *status.Tracker
	console *console.Console
	bridge  *mqtt.FakeBridge
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := hazard.NewStore()
	cfg := status.Config{
		Broker:   "tcp://localhost:1883",
		ClientID: "simulation-0badcafe",
		HTTPAddr: ":8080",
	}
	env := &testEnv{
		store:   store,
		tracker: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), cfg, 0),
		console: console.New(10, nil),
		bridge:  mqtt.NewFakeBridge(),
	}
	env.srv = New(":0", Deps{
		Store:     store,
		Interp:    command.NewInterpreter(store, nil),
		Tracker:   env.tracker,
		Console:   env.console,
		Publisher: env.bridge,
	}, opts)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

type stateResponse struct {
	State   hazard.State   `json:"state"`
	Ignited bool           `json:"ignited"`
	Result  command.Result `json:"result"`
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var resp stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	w := env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.tracker.SetMQTT(true, "")
	env.store.SetChimneyBlocked(true)

	w := env.do(t, http.MethodGet, "/index.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sj))
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://localhost:1883", sj.Status.MQTT.Broker)
	require.NotNil(t, sj.Status.Sensors)
	assert.Equal(t, hazard.StatusCritical, sj.Status.Sensors.Status)
}

func TestIndexHTML(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.store.SetStoveBurners([hazard.BurnerCount]bool{true, true})

	for _, path := range []string{"/", "/index.html"} {
		w := env.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		body := w.Body.String()
		assert.Contains(t, body, "Hazard Simulation")
		assert.Contains(t, body, `<td id="burners">2</td>`)
		assert.Contains(t, body, "simulation-0badcafe")
		assert.Contains(t, body, `class="disconnected"`)
	}
}

func TestUnknownPath(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	w := env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStateAndSensors(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.store.SetSmokeLevel(40)

	w := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		State   hazard.State             `json:"state"`
		Sensors hazard.AggregatedSensors `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 40.0, resp.State.SmokeLevel)
	assert.Equal(t, hazard.StatusWarning, resp.Sensors.Status)

	w = env.do(t, http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sensors struct {
		Aggregate hazard.AggregatedSensors               `json:"aggregate"`
		Rooms     map[hazard.RoomID]hazard.SensorReading `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sensors))
	assert.Len(t, sensors.Rooms, len(hazard.Rooms))
	assert.Equal(t, 40.0, sensors.Rooms[hazard.RoomBathroom].Smoke)
}

func TestGetRoom(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodGet, "/api/rooms/living-room", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rs hazard.RoomStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rs))
	assert.Equal(t, "Living Room", rs.Room.Name)
	require.NotNil(t, rs.Heater)

	w = env.do(t, http.MethodGet, "/api/rooms/attic", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetBurners(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/stove/burners", `{"burners":[true,false]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/stove/burners", `{"burners":[true,false,true,false]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decodeState(t, w).State.ActiveBurners())
	assert.True(t, env.store.AnyBurnerOn())
}

func TestHeaterRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown room", http.MethodPut, "/api/heaters/attic", `{"on":true}`, http.StatusNotFound},
		{"room without heater", http.MethodPut, "/api/heaters/kitchen", `{"on":true}`, http.StatusNotFound},
		{"missing on", http.MethodPut, "/api/heaters/living-room", `{"level":2}`, http.StatusBadRequest},
		{"bad json", http.MethodPut, "/api/heaters/living-room", `{`, http.StatusBadRequest},
		{"set", http.MethodPut, "/api/heaters/living-room", `{"on":true,"level":2}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, hazard.HeaterState{On: true, Level: 2}, env.store.State().Heaters[hazard.RoomLiving])
}

func TestOverloadAndRepairHeater(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/heaters/guest-bedroom/overload", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w).State
	assert.Equal(t, hazard.HeaterState{On: true, Level: 3, Overloaded: true}, st.Heaters[hazard.RoomGuestBedroom])
	assert.Equal(t, 30.0, st.SmokeLevel)
	assert.True(t, st.AlarmActive)

	// Explicit set on an overloaded heater changes nothing.
	w = env.do(t, http.MethodPost, "/api/heaters/guest-bedroom/overload", `{"overloaded":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30.0, decodeState(t, w).State.SmokeLevel)

	w = env.do(t, http.MethodDelete, "/api/heaters/guest-bedroom", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.DefaultHeater, decodeState(t, w).State.Heaters[hazard.RoomGuestBedroom])

	w = env.do(t, http.MethodPost, "/api/heaters/bathroom/overload", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplianceRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/appliances/toaster/explode", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/appliances/fridge/explode", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w).State
	assert.Equal(t, hazard.ExplosionState{Exploded: true, Smoking: true}, st.Explosions[hazard.ApplianceFridge])
	assert.Equal(t, 40.0, st.SmokeLevel)

	w = env.do(t, http.MethodDelete, "/api/appliances/fridge", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.ExplosionState{}, decodeState(t, w).State.Explosions[hazard.ApplianceFridge])
}

func TestItemRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.store.SetStoveBurners([hazard.BurnerCount]bool{true})

	w := env.do(t, http.MethodPost, "/api/items/expose", `{"name":"towel","position":{"x":-17.5,"y":1,"z":-5}}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeState(t, w)
	assert.True(t, resp.Ignited)
	require.Len(t, resp.State.BurningItems, 1)
	assert.Equal(t, "towel", resp.State.BurningItems[0].Name)

	w = env.do(t, http.MethodPost, "/api/items/expose", `{"name":"pot","position":{"x":-17.5,"y":1,"z":-5.5}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeState(t, w).Ignited)

	w = env.do(t, http.MethodPost, "/api/items/expose", `{"name":"towel"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/items/burning", `{"name":"book"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decodeState(t, w).State.BurningItems, 2)
}

func TestHeldItemRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/items/pickup", `{"name":"book"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "book", decodeState(t, w).State.HeldItem)

	w = env.do(t, http.MethodPost, "/api/items/pickup", `{"name":"towel"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"already holding book"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/items/drop", `{"name":"towel"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/items/drop", `{"name":"book"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeState(t, w).State.HeldItem)
}

func TestChimneySmokeAlarm(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPut, "/api/chimney", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/chimney", `{"blocked":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w).State
	assert.True(t, st.ChimneyBlocked)
	assert.Equal(t, 50.0, st.SmokeLevel)

	w = env.do(t, http.MethodPut, "/api/smoke", `{"level":150}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, decodeState(t, w).State.SmokeLevel)

	w = env.do(t, http.MethodPut, "/api/alarm", `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeState(t, w).State.AlarmActive)
}

func TestSetVentilation(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPut, "/api/ventilation/kitchen", `{"active":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.VentilationState{Active: true, Level: hazard.VentHigh},
		decodeState(t, w).State.Ventilation[hazard.RoomKitchen])

	w = env.do(t, http.MethodPut, "/api/ventilation/kitchen", `{"active":true,"level":"MEDIUM"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.VentMed, decodeState(t, w).State.Ventilation[hazard.RoomKitchen].Level)

	w = env.do(t, http.MethodPut, "/api/ventilation/kitchen", `{"active":true,"level":"TURBO"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/ventilation/attic", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetAlert(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPut, "/api/alerts/bathroom", `{"level":"danger"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.AlertDanger, decodeState(t, w).State.AlertLevels[hazard.RoomBathroom])

	w = env.do(t, http.MethodPut, "/api/alerts/bathroom", `{"level":"panic"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmergencyAndReset(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/emergency", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w).State
	assert.True(t, st.EmergencyMode)
	assert.Equal(t, 80.0, st.SmokeLevel)
	for _, r := range hazard.Rooms {
		assert.Equal(t, hazard.AlertCritical, st.AlertLevels[r.ID], r.ID)
	}

	w = env.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hazard.InitialState(), env.store.State())
}

func TestApplyCommand(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.store.SetSmokeLevel(20)

	w := env.do(t, http.MethodPost, "/api/commands", `{"action":"DEACTIVATE_VENT","room":"kitchen"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, command.Interlocked, decodeState(t, w).Result.Outcome)

	w = env.do(t, http.MethodPost, "/api/commands", `{"action":"ACTIVATE_VENT","room":"kitchen","level":"LOW"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeState(t, w)
	assert.Equal(t, command.Applied, resp.Result.Outcome)
	assert.Equal(t, hazard.VentLow, resp.State.Ventilation[hazard.RoomKitchen].Level)

	w = env.do(t, http.MethodPost, "/api/commands", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishCommand(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())

	w := env.do(t, http.MethodPost, "/api/commands/publish", `{"action":"SET_ALERT","room":"kitchen","level":"warning"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, env.bridge.Commands, 1)
	assert.Equal(t, command.ActionSetAlert, env.bridge.Commands[0].Action)
	// Publishing does not apply locally.
	assert.Equal(t, hazard.AlertNormal, env.store.State().AlertLevels[hazard.RoomKitchen])

	env.bridge.PublishError = assert.AnError
	w = env.do(t, http.MethodPost, "/api/commands/publish", `{"action":"GLOBAL_ALARM"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.console.System("first")
	env.console.Warning("second")

	w := env.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entries []console.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "first", resp.Entries[0].Message)

	w = env.do(t, http.MethodGet, "/api/logs?since=0", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, console.TypeWarning, resp.Entries[0].Type)

	w = env.do(t, http.MethodGet, "/api/logs?since=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/logs", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/logs", "")
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())
}

func TestRateLimitMutatingRoutes(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: rate.Limit(0.001), RateBurst: 1})

	w := env.do(t, http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	// Reads are not limited.
	for i := 0; i < 5; i++ {
		w = env.do(t, http.MethodGet, "/api/state", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestIPRateLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)

	assert.True(t, l.Limiter("10.0.0.1").Allow())
	assert.False(t, l.Limiter("10.0.0.1").Allow())
	assert.True(t, l.Limiter("10.0.0.2").Allow())
	assert.Same(t, l.Limiter("10.0.0.1"), l.Limiter("10.0.0.1"))
}

func TestParseInterval(t *testing.T) {
	env := newTestEnv(t, Options{WSInterval: 500 * time.Millisecond})

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 500 * time.Millisecond},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_at_bound", "/ws?interval=10s", 10 * time.Second},
		{"interval_too_large", "/ws?interval=20s", 500 * time.Millisecond},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 500 * time.Millisecond},
		{"interval_invalid", "/ws?interval=bogus", 500 * time.Millisecond},
		{"interval_negative", "/ws?interval=-1s", 500 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tc.u, nil)
			assert.Equal(t, tc.want, env.srv.parseInterval(c))
		})
	}
}

func dialStream(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type streamMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// next returns the next message of the given type, skipping others.
func next(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg streamMsg
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg.Data
		}
	}
}

func TestWebSocketStateStream(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.store.SetChimneyBlocked(true)
	env.tracker.SetMQTT(true, "")

	// The default 1s interval is long enough that the reset below can only
	// arrive through the change notification.
	conn := dialStream(t, env, "")

	var first wsState
	require.NoError(t, json.Unmarshal(next(t, conn, msgState), &first))
	assert.True(t, first.State.ChimneyBlocked)
	assert.True(t, first.MQTTConnected)
	assert.Equal(t, hazard.StatusCritical, first.Sensors.Status)

	env.store.ResetSimulation()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var st wsState
		require.NoError(t, json.Unmarshal(next(t, conn, msgState), &st))
		if !st.State.ChimneyBlocked {
			return
		}
	}
	t.Fatal("reset never reached the websocket")
}

func TestWebSocketLogStream(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	env.console.System("Simulation started")

	conn := dialStream(t, env, "interval=50ms")

	var first []console.Entry
	require.NoError(t, json.Unmarshal(next(t, conn, msgLogs), &first))
	require.Len(t, first, 1)
	assert.Equal(t, "Simulation started", first[0].Message)

	env.console.Warning("Chimney blocked")

	var second []console.Entry
	require.NoError(t, json.Unmarshal(next(t, conn, msgLogs), &second))
	require.Len(t, second, 1, "only unseen lines are sent")
	assert.Equal(t, "Chimney blocked", second[0].Message)

	// More post-clear lines than the stream had seen before the clear.
	env.console.Clear()
	for i := 0; i < 4; i++ {
		env.console.Error(fmt.Sprintf("after clear %d", i))
	}

	var after []console.Entry
	for len(after) < 4 {
		var batch []console.Entry
		require.NoError(t, json.Unmarshal(next(t, conn, msgLogs), &batch))
		after = append(after, batch...)
	}
	require.Len(t, after, 4)
	for i, e := range after {
		assert.Equal(t, fmt.Sprintf("after clear %d", i), e.Message)
	}
}

func TestIndexJSONIsIndented(t *testing.T) {
	env := newTestEnv(t, DefaultOptions())
	w := env.do(t, http.MethodGet, "/index.json", "")
	assert.True(t, strings.HasPrefix(w.Body.String(), "{\n  \"status\""))
}
