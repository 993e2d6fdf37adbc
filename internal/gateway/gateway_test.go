package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"niftybot/internal/execution"
	"niftybot/internal/orchestrator"
)

type parsedEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
	TS   string          `json:"ts"`
	Seq  int64           `json:"seq"`
}

func TestEnvelopeFormat(t *testing.T) {
	now := time.Date(2026, 3, 4, 4, 5, 1, 0, time.UTC)
	buf := envelope("trade", []byte(`{"event":"ENTRY"}`), now, 42)

	var env parsedEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Kind != "trade" || env.Seq != 42 {
		t.Errorf("got kind=%q seq=%d", env.Kind, env.Seq)
	}
	if string(env.Data) != `{"event":"ENTRY"}` {
		t.Errorf("data = %s", env.Data)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, env.TS); err != nil || !parsed.Equal(now) {
		t.Errorf("ts = %q (%v)", env.TS, err)
	}
}

type fakeBot struct{ st orchestrator.Status }

func (f fakeBot) Status() orchestrator.Status { return f.st }

type fakeTrades struct {
	list []execution.TradeRecord
	err  error
	got  int
}

func (f *fakeTrades) GetTrades(limit int) ([]execution.TradeRecord, error) {
	f.got = limit
	return f.list, f.err
}

func newServer(t *testing.T, trades TradeSource) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(16)
	mux := http.NewServeMux()
	bot := fakeBot{st: orchestrator.Status{Preset: "V30", State: orchestrator.StateScanning}}
	RegisterRoutes(mux, hub, bot, trades, time.Now())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads one frame and splits coalesced messages.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []parsedEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []parsedEnvelope
	for _, line := range strings.Split(string(raw), "\n") {
		var env parsedEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("bad envelope %q: %v", line, err)
		}
		out = append(out, env)
	}
	return out
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RunBroadcastsUpdates(t *testing.T) {
	hub, srv := newServer(t, nil)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	updates := make(chan orchestrator.Update, 1)
	updates <- orchestrator.Update{Kind: orchestrator.UpdateStatus, Data: map[string]string{"state": "SCANNING"}}
	close(updates)
	hub.Run(context.Background(), updates)

	envs := readEnvelopes(t, conn)
	if len(envs) != 1 || envs[0].Kind != orchestrator.UpdateStatus || envs[0].Seq != 1 {
		t.Fatalf("got %+v", envs)
	}
	if string(hub.Latest()[orchestrator.UpdateStatus]) != `{"state":"SCANNING"}` {
		t.Errorf("latest = %s", hub.Latest()[orchestrator.UpdateStatus])
	}
}

func TestHub_NewClientGetsLatestPerKind(t *testing.T) {
	hub, srv := newServer(t, nil)
	hub.Broadcast("status", []byte(`{"n":1}`))
	hub.Broadcast("status", []byte(`{"n":2}`))
	hub.Broadcast("trade", []byte(`{"event":"ENTRY"}`))

	conn := dial(t, srv, "")
	got := map[string]int64{}
	for len(got) < 2 {
		for _, env := range readEnvelopes(t, conn) {
			got[env.Kind] = env.Seq
		}
	}
	if got["status"] != 2 || got["trade"] != 3 {
		t.Fatalf("initial state = %v", got)
	}
}

func TestHub_ReconnectReplaysMissed(t *testing.T) {
	hub, srv := newServer(t, nil)
	for i := 0; i < 5; i++ {
		hub.Broadcast("status", []byte(`{}`))
	}

	conn := dial(t, srv, "?last_seq=3")
	var seqs []int64
	for len(seqs) < 2 {
		for _, env := range readEnvelopes(t, conn) {
			seqs = append(seqs, env.Seq)
		}
	}
	if len(seqs) != 2 || seqs[0] != 4 || seqs[1] != 5 {
		t.Fatalf("replayed %v, want [4 5]", seqs)
	}
}

func TestHub_PingPong(t *testing.T) {
	hub, srv := newServer(t, nil)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	if err := conn.WriteJSON(map[string]interface{}{"type": "ping", "ping": 123}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var pong struct {
		Kind string `json:"kind"`
		Ping int64  `json:"ping"`
	}
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.Kind != "pong" || pong.Ping != 123 {
		t.Fatalf("pong = %+v", pong)
	}
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub, srv := newServer(t, nil)
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}

func TestRoutes_StatusAndTrades(t *testing.T) {
	trades := &fakeTrades{list: []execution.TradeRecord{{OrderID: "ab12cd34", ExitReason: "SL Hit", PnLINR: -600}}}
	_, srv := newServer(t, trades)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var st orchestrator.Status
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.Preset != "V30" || st.State != orchestrator.StateScanning {
		t.Errorf("status = %+v", st)
	}

	resp, err = http.Get(srv.URL + "/api/trades?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	var list []execution.TradeRecord
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if trades.got != 5 || len(list) != 1 || list[0].OrderID != "ab12cd34" {
		t.Errorf("limit=%d trades=%+v", trades.got, list)
	}
}

func TestRoutes_TradesError(t *testing.T) {
	_, srv := newServer(t, &fakeTrades{err: errors.New("db closed")})
	resp, err := http.Get(srv.URL + "/api/trades")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRoutes_Missed(t *testing.T) {
	hub, srv := newServer(t, nil)
	for i := 0; i < 4; i++ {
		hub.Broadcast("status", []byte(`{}`))
	}

	resp, err := http.Get(srv.URL + "/api/missed?from=2&to=3")
	if err != nil {
		t.Fatal(err)
	}
	var envs []parsedEnvelope
	json.NewDecoder(resp.Body).Decode(&envs)
	resp.Body.Close()
	if len(envs) != 2 || envs[0].Seq != 2 || envs[1].Seq != 3 {
		t.Fatalf("missed = %+v", envs)
	}

	resp, err = http.Get(srv.URL + "/api/missed")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing from: status %d", resp.StatusCode)
	}
}
