package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"niftybot/internal/markethours"
	"niftybot/internal/model"
)

// Exchange segments used by the bot.
const (
	ExchangeNSE = "NSE"
	ExchangeNFO = "NFO"
	ExchangeMCX = "MCX"
)

// NiftyIndexToken is the SmartAPI token of the NIFTY 50 index on NSE.
const NiftyIndexToken = "99926000"

// Instrument identifies one tradable symbol.
type Instrument struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"tradingsymbol"`
	Token    string `json:"symboltoken"`
}

// CandleRequest asks for 5-minute candles in [From, To].
type CandleRequest struct {
	Instrument Instrument
	From, To   time.Time
}

const candleTimeLayout = "2006-01-02 15:04"

// Candles fetches FIVE_MINUTE candles. The returned candles carry the
// instrument symbol; the caller assigns the tag.
func (c *Client) Candles(ctx context.Context, req CandleRequest) ([]model.Candle, error) {
	if !c.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var resp struct {
		Data [][]json.RawMessage `json:"data"`
	}
	err := c.post(ctx, "api.candle.data", map[string]any{
		"exchange":    req.Instrument.Exchange,
		"symboltoken": req.Instrument.Token,
		"interval":    "FIVE_MINUTE",
		"fromdate":    req.From.In(markethours.IST).Format(candleTimeLayout),
		"todate":      req.To.In(markethours.IST).Format(candleTimeLayout),
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]model.Candle, 0, len(resp.Data))
	for i, row := range resp.Data {
		cndl, err := parseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("candle %d for %s: %w", i, req.Instrument.Symbol, err)
		}
		cndl.Symbol = req.Instrument.Symbol
		out = append(out, cndl)
	}
	return out, nil
}

// parseCandleRow decodes ["2026-03-02T09:15:00+05:30", o, h, l, c, v].
func parseCandleRow(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 5 {
		return model.Candle{}, fmt.Errorf("short row (%d fields)", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return model.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return model.Candle{}, fmt.Errorf("timestamp %q: %w", ts, err)
	}

	vals := make([]float64, len(row)-1)
	for i := range vals {
		if err := json.Unmarshal(row[i+1], &vals[i]); err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	cndl := model.Candle{
		TS:    t.In(markethours.IST),
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
	}
	if len(vals) > 4 {
		cndl.Volume = vals[4]
	}
	return cndl, nil
}

// SearchScrip returns instruments on exchange whose symbol matches query.
func (c *Client) SearchScrip(ctx context.Context, exchange, query string) ([]Instrument, error) {
	if !c.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var resp struct {
		Data []Instrument `json:"data"`
	}
	err := c.post(ctx, "api.search.scrip", map[string]any{
		"exchange":    exchange,
		"searchscrip": query,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LTP returns the last traded price of inst.
func (c *Client) LTP(ctx context.Context, inst Instrument) (float64, error) {
	if !c.LoggedIn() {
		return 0, ErrNotLoggedIn
	}
	var resp struct {
		Data struct {
			LTP json.Number `json:"ltp"`
		} `json:"data"`
	}
	err := c.post(ctx, "api.ltp.data", map[string]any{
		"exchange":      inst.Exchange,
		"tradingsymbol": inst.Symbol,
		"symboltoken":   inst.Token,
	}, &resp)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp.Data.LTP.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("ltp %s: %w", inst.Symbol, err)
	}
	return v, nil
}
