package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"niftybot/internal/execution"
	"niftybot/internal/markethours"
	"niftybot/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// StatusSource reports the bot's current session state.
type StatusSource interface {
	Status() orchestrator.Status
}

// TradeSource lists journaled trades, newest first.
type TradeSource interface {
	GetTrades(limit int) ([]execution.TradeRecord, error)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes mounts the dashboard endpoints. trades may be nil when no
// journal is configured.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, bot StatusSource, trades TradeSource, started time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		hub.Register(conn, lastSeq)
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, bot.Status())
	})

	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		st := bot.Status()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"open":    st.Open,
			"pending": st.Pending,
			"stats":   st.Stats,
		})
	})

	mux.HandleFunc("/api/trades", func(w http.ResponseWriter, r *http.Request) {
		if trades == nil {
			writeJSON(w, http.StatusOK, []execution.TradeRecord{})
			return
		}
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
		list, err := trades.GetTrades(limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if list == nil {
			list = []execution.TradeRecord{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Latest())
	})

	// gap backfill: /api/missed?from=N&to=M
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from is required"})
			return
		}
		to := hub.Seq()
		if v, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64); err == nil {
			to = v
		}
		envs := hub.Missed(from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("/api/market", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"open":        markethours.IsMarketOpen(now),
			"status":      markethours.StatusString(now),
			"trading_day": markethours.IsTradingDay(now),
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"seq":        hub.Seq(),
			"uptime_sec": int64(time.Since(started).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
