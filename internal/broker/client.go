// Package broker is a trimmed Angel One SmartAPI client: TOTP login,
// historical candles, scrip search and LTP. It never places orders.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"
)

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.ltp.data":     "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",
}

// ErrNotLoggedIn is returned by data calls made before Login.
var ErrNotLoggedIn = errors.New("broker: not logged in")

// ErrTokenExpired is returned when the API rejects the session token.
var ErrTokenExpired = errors.New("broker: session token expired")

// Config holds broker credentials and transport settings.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	RootURL   string        // default: https://apiconnect.angelone.in
	Timeout   time.Duration // default: 7s
	RateLimit float64       // requests per second, default 3 (historical API limit)

	ClientLocalIP  string // default 127.0.0.1
	ClientPublicIP string // default 127.0.0.1
	ClientMAC      string // default 00:00:00:00:00:00
}

// Client talks to SmartAPI. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string

	// SessionExpiryHook is called when the API reports an expired token.
	SessionExpiryHook func()
}

// New creates a client. It does not contact the broker.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = "127.0.0.1"
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = "127.0.0.1"
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = "00:00:00:00:00:00"
	}
	cfg.RootURL = strings.TrimRight(cfg.RootURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// Login generates a TOTP from the configured secret and opens a session.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("broker totp: %w", err)
	}

	var resp struct {
		Data struct {
			JWTToken     string `json:"jwtToken"`
			RefreshToken string `json:"refreshToken"`
			FeedToken    string `json:"feedToken"`
		} `json:"data"`
	}
	err = c.post(ctx, "api.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	}, &resp)
	if err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	if resp.Data.JWTToken == "" {
		return errors.New("broker login: empty token in response")
	}

	c.mu.Lock()
	c.accessToken = resp.Data.JWTToken
	c.refreshToken = resp.Data.RefreshToken
	c.feedToken = resp.Data.FeedToken
	c.mu.Unlock()

	log.Printf("[broker] logged in as %s", c.cfg.ClientCode)
	return nil
}

// Refresh renews the access token with the refresh token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	rt := c.refreshToken
	c.mu.RUnlock()
	if rt == "" {
		return ErrNotLoggedIn
	}

	var resp struct {
		Data struct {
			JWTToken  string `json:"jwtToken"`
			FeedToken string `json:"feedToken"`
		} `json:"data"`
	}
	if err := c.post(ctx, "api.token", map[string]any{"refreshToken": rt}, &resp); err != nil {
		return fmt.Errorf("broker refresh: %w", err)
	}

	c.mu.Lock()
	if resp.Data.JWTToken != "" {
		c.accessToken = resp.Data.JWTToken
	}
	if resp.Data.FeedToken != "" {
		c.feedToken = resp.Data.FeedToken
	}
	c.mu.Unlock()
	return nil
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.cfg.ClientLocalIP)
	h.Set("X-ClientPublicIP", c.cfg.ClientPublicIP)
	h.Set("X-MACAddress", c.cfg.ClientMAC)
	h.Set("X-PrivateKey", c.cfg.APIKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")

	c.mu.RLock()
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	c.mu.RUnlock()
	return h
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// post sends params as JSON to route and decodes the response into out.
// out receives the whole response body; it may be nil.
func (c *Client) post(ctx context.Context, route string, params map[string]any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RootURL+uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", route, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: couldn't parse JSON response (http %d): %w", route, resp.StatusCode, err)
	}
	if env.ErrorType == "TokenException" || resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("%s: %w", route, ErrTokenExpired)
	}
	if !env.Status {
		return fmt.Errorf("%s: api error %s: %s", route, env.ErrorCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode: %w", route, err)
		}
	}
	return nil
}
