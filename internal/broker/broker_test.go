package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"niftybot/internal/markethours"
)

type fakeAPI struct {
	t        *testing.T
	lastBody map[string]map[string]any
	expire   bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, data any) {
		json.NewEncoder(w).Encode(map[string]any{"status": true, "message": "SUCCESS", "data": data})
	}
	record := func(r *http.Request, name string) map[string]any {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.lastBody[name] = body
		return body
	}
	mux.HandleFunc(routes["api.login"], func(w http.ResponseWriter, r *http.Request) {
		record(r, "login")
		if r.Header.Get("X-PrivateKey") != "key" {
			f.t.Errorf("missing api key header")
		}
		reply(w, map[string]string{"jwtToken": "jwt-1", "refreshToken": "rt-1", "feedToken": "ft-1"})
	})
	mux.HandleFunc(routes["api.candle.data"], func(w http.ResponseWriter, r *http.Request) {
		record(r, "candles")
		if f.expire {
			json.NewEncoder(w).Encode(map[string]any{"status": false, "error_type": "TokenException", "message": "Invalid Token"})
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-1" {
			f.t.Errorf("Authorization = %q", got)
		}
		reply(w, [][]any{
			{"2026-03-02T09:15:00+05:30", 22000.0, 22010.5, 21990.0, 22005.0, 0},
			{"2026-03-02T09:20:00+05:30", 22005.0, 22020.0, 22001.0, 22018.25, 0},
		})
	})
	mux.HandleFunc(routes["api.search.scrip"], func(w http.ResponseWriter, r *http.Request) {
		record(r, "search")
		reply(w, []map[string]string{
			{"exchange": "NFO", "tradingsymbol": "NIFTY10MAR2622000CE", "symboltoken": "45001"},
			{"exchange": "NFO", "tradingsymbol": "NIFTY03MAR2622000CE", "symboltoken": "44001"},
		})
	})
	mux.HandleFunc(routes["api.ltp.data"], func(w http.ResponseWriter, r *http.Request) {
		record(r, "ltp")
		reply(w, map[string]any{"exchange": "NFO", "ltp": 131.55})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t, lastBody: map[string]map[string]any{}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c := New(Config{
		APIKey:     "key",
		ClientCode: "A123",
		Password:   "1234",
		TOTPSecret: "JBSWY3DPEHPK3PXP",
		RootURL:    srv.URL,
		RateLimit:  1000,
	})
	return c, api
}

func TestLoginSendsTOTP(t *testing.T) {
	c, api := newTestClient(t)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.LoggedIn() {
		t.Fatal("expected LoggedIn after Login")
	}
	body := api.lastBody["login"]
	code, _ := body["totp"].(string)
	if len(code) != 6 {
		t.Errorf("totp = %q, want 6 digits", code)
	}
	if body["clientcode"] != "A123" {
		t.Errorf("clientcode = %v", body["clientcode"])
	}
}

func TestDataCallsRequireLogin(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Candles(context.Background(), CandleRequest{})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestCandlesParsesRows(t *testing.T) {
	c, api := newTestClient(t)
	if err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	from := time.Date(2026, 3, 2, 9, 15, 0, 0, markethours.IST)
	inst := Instrument{Exchange: ExchangeNSE, Symbol: "NIFTY", Token: NiftyIndexToken}
	got, err := c.Candles(context.Background(), CandleRequest{Instrument: inst, From: from, To: from.Add(10 * time.Minute)})
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candles, want 2", len(got))
	}
	if !got[1].TS.Equal(from.Add(5*time.Minute)) || got[1].Close != 22018.25 || got[1].Symbol != "NIFTY" {
		t.Errorf("candle[1] = %+v", got[1])
	}

	body := api.lastBody["candles"]
	if body["interval"] != "FIVE_MINUTE" || body["fromdate"] != "2026-03-02 09:15" || body["todate"] != "2026-03-02 09:25" {
		t.Errorf("request body = %v", body)
	}
}

func TestExpiredTokenCallsHook(t *testing.T) {
	c, api := newTestClient(t)
	if err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}
	api.expire = true
	called := false
	c.SessionExpiryHook = func() { called = true }

	_, err := c.Candles(context.Background(), CandleRequest{Instrument: Instrument{Exchange: ExchangeNSE, Token: NiftyIndexToken}})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if !called {
		t.Error("SessionExpiryHook not called")
	}
}

func TestSearchAndLTP(t *testing.T) {
	c, api := newTestClient(t)
	if err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	scrips, err := c.SearchScrip(context.Background(), ExchangeNFO, "NIFTY 22000 CE")
	if err != nil {
		t.Fatalf("SearchScrip: %v", err)
	}
	if len(scrips) != 2 || scrips[0].Token != "45001" {
		t.Errorf("scrips = %+v", scrips)
	}
	if api.lastBody["search"]["searchscrip"] != "NIFTY 22000 CE" {
		t.Errorf("search body = %v", api.lastBody["search"])
	}

	ltp, err := c.LTP(context.Background(), scrips[1])
	if err != nil {
		t.Fatalf("LTP: %v", err)
	}
	if ltp != 131.55 {
		t.Errorf("ltp = %v, want 131.55", ltp)
	}
}

func TestParseCandleRowRejectsShortRow(t *testing.T) {
	if _, err := parseCandleRow([]json.RawMessage{json.RawMessage(`"2026-03-02T09:15:00+05:30"`)}); err == nil {
		t.Fatal("expected error for short row")
	}
}
