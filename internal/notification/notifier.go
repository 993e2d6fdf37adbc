// Package notification delivers trade alerts to external channels
// (Telegram, webhooks) without blocking the trading loop.
package notification

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Kind    string     `json:"kind,omitempty"` // ENTRY, TP1_HIT, EXIT, SUMMARY, ...
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Time    time.Time  `json:"ts"`
	Trade   *Trade     `json:"trade,omitempty"`
}

// Trade carries the position fields of a trade alert. Exit fields are zero
// until the position closes.
type Trade struct {
	OrderID   string  `json:"order_id"`
	Side      string  `json:"side"`
	Strike    int     `json:"strike"`
	Symbol    string  `json:"symbol,omitempty"`
	Quantity  int     `json:"qty"`
	Entry     float64 `json:"entry"`
	SL        float64 `json:"sl"`
	TP1       float64 `json:"tp1"`
	Exit      float64 `json:"exit,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	PnLPoints float64 `json:"pnl_points,omitempty"`
	PnLINR    float64 `json:"pnl_inr,omitempty"`
}

// Closed reports whether the trade carries exit fields.
func (t *Trade) Closed() bool { return t.Reason != "" }

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher queues alerts and sends them from its own goroutine, so a slow
// channel never stalls the caller. When the queue is full the alert is dropped.
type Dispatcher struct {
	n       Notifier
	ch      chan Alert
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	dropped int
}

// NewDispatcher starts a dispatcher with a queue of size buf.
func NewDispatcher(n Notifier, buf int) *Dispatcher {
	if buf <= 0 {
		buf = 64
	}
	d := &Dispatcher{n: n, ch: make(chan Alert, buf), timeout: 10 * time.Second}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for a := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.n.Send(ctx, a); err != nil {
			log.Printf("[notify] %s %q failed: %v", a.Kind, a.Title, err)
		}
		cancel()
	}
}

// Notify enqueues a, stamping the time if unset.
func (d *Dispatcher) Notify(a Alert) {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	select {
	case d.ch <- a:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		log.Printf("[notify] queue full, dropping %s alert %q", a.Kind, a.Title)
	}
}

// Dropped returns how many alerts were discarded on a full queue.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.ch) })
	d.wg.Wait()
}
