package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"spottrader/internal/events"
	"spottrader/internal/position"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
)

func newTestServer(t *testing.T) (*httptest.Server, *state.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := &config.Config{
		JWTSecret:         "test-secret",
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
	}

	queries := database.Queries()
	st := state.NewManager(queries)
	positions := position.NewManager(config.DefaultPolicy(), st, queries, nil)

	srv := NewServer(cfg, config.DefaultPolicy(), events.NewBus(), queries, st, positions, nil)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts, st
}

func loginToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "hunter2"})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}
	return out.Token
}

func authedReq(t *testing.T, ts *httptest.Server, token, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMonitorToggle(t *testing.T) {
	ts, st := newTestServer(t)
	token := loginToken(t, ts)

	resp := authedReq(t, ts, token, http.MethodPost, "/api/monitor/start")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if !st.Monitoring() {
		t.Error("monitoring should be on after start")
	}

	resp = authedReq(t, ts, token, http.MethodPost, "/api/monitor/stop")
	resp.Body.Close()
	if st.Monitoring() {
		t.Error("monitoring should be off after stop")
	}
}

func TestStatusReportsPositions(t *testing.T) {
	ts, st := newTestServer(t)
	token := loginToken(t, ts)

	st.Track(db.Order{ID: "p1", Symbol: "BTCUSDT", OpenPrice: 30000})

	resp := authedReq(t, ts, token, http.MethodGet, "/api/status")
	defer resp.Body.Close()
	var out struct {
		Monitoring    bool `json:"monitoring"`
		OpenPositions int  `json:"openPositions"`
		MaxPositions  int  `json:"maxPositions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if out.OpenPositions != 1 {
		t.Errorf("openPositions = %d, want 1", out.OpenPositions)
	}
	if out.MaxPositions != config.DefaultPolicy().MaxOpenPositions {
		t.Errorf("maxPositions = %d, want %d", out.MaxPositions, config.DefaultPolicy().MaxOpenPositions)
	}
}

func TestClosePositionWithoutPosition(t *testing.T) {
	ts, _ := newTestServer(t)
	token := loginToken(t, ts)

	resp := authedReq(t, ts, token, http.MethodPost, "/api/positions/BTCUSDT/close")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebsocketDisconnectReleasesRelays(t *testing.T) {
	ts, _ := newTestServer(t)

	before := runtime.NumGoroutine()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	conn.Close()

	// Every relay goroutine hangs off the read pump's done signal; once
	// the client is gone they must all wind down.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines = %d after disconnect, started with %d", runtime.NumGoroutine(), before)
}
