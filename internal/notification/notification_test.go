package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
	block  chan struct{}
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingNotifier{}, &recordingNotifier{err: boom}
	err := Multi{a, nil, b}.Send(context.Background(), Alert{Title: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("deliveries = %d, %d", a.count(), b.count())
	}
}

func TestDispatcherDeliversOnClose(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 4)
	for i := 0; i < 3; i++ {
		d.Notify(Alert{Kind: "ENTRY", Title: "t"})
	}
	d.Close()
	d.Close() // idempotent

	if rec.count() != 3 {
		t.Fatalf("delivered %d, want 3", rec.count())
	}
	if rec.alerts[0].Time.IsZero() {
		t.Error("alert time not stamped")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(rec, 1)

	d.Notify(Alert{Title: "1"}) // taken by the worker, blocks in Send
	time.Sleep(20 * time.Millisecond)
	d.Notify(Alert{Title: "2"}) // fills the queue
	d.Notify(Alert{Title: "3"}) // dropped

	close(rec.block)
	d.Close()
	if d.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", d.Dropped())
	}
	if rec.count() != 2 {
		t.Errorf("delivered = %d, want 2", rec.count())
	}
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiURL = srv.URL
	if err := n.Send(context.Background(), Alert{Kind: "EXIT", Title: "BUY_CE closed", Message: "pnl 1237.50"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, _ := got["text"].(string)
	if got["chat_id"] != "42" || !strings.Contains(text, `pnl 1237\.50`) {
		t.Errorf("payload = %v", got)
	}
}

func TestTelegramRendersTrade(t *testing.T) {
	text := telegramText(Alert{
		Kind:  "EXIT",
		Title: "BUY_PE 22100 closed: SL",
		Trade: &Trade{OrderID: "ab12cd34", Side: "BUY_PE", Strike: 22100, Quantity: 75,
			Entry: 98.5, SL: 90.25, TP1: 108.5, Exit: 90.25, Reason: "SL", PnLPoints: -8.25, PnLINR: -638.75},
	})
	for _, want := range []string{"🔻", "BUY\\_PE 22100 closed", "```", "order  ab12cd34", "entry  98.50 x 75", "exit   90.25 (SL)", "pnl    -8.25 pts / -638.75 INR"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}

	open := telegramText(Alert{Kind: "ENTRY", Title: "x", Trade: &Trade{OrderID: "1", Entry: 120.5}})
	if strings.Contains(open, "pnl") {
		t.Errorf("open trade rendered exit fields:\n%s", open)
	}
}

func TestWebhookNotifierSendsTrade(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 4, 10, 20, 0, 0, time.FixedZone("IST", 19800))
	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{
		Level: AlertInfo,
		Kind:  "EXIT",
		Title: "BUY_CE 22100 closed: TREND",
		Time:  at,
		Trade: &Trade{OrderID: "abcd1234", Side: "BUY_CE", Exit: 137, Reason: "TREND", PnLINR: 1237.5},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.TS != "2026-03-04T04:50:00Z" {
		t.Errorf("ts = %s", got.TS)
	}
	if got.Trade == nil || got.Trade.OrderID != "abcd1234" || got.Trade.PnLINR != 1237.5 {
		t.Errorf("trade = %+v", got.Trade)
	}
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b.c"); got != `a\_b\.c` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}
