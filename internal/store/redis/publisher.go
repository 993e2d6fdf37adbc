package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	goredis "github.com/go-redis/redis/v8"
)

const (
	eventsStreamMaxLen = 5000
	defaultMaxBuffer   = 1000
)

// message is one update bound for Redis.
type message struct {
	Kind string
	Data []byte
}

// Publisher sends bot updates to a pub/sub channel and an events stream.
// While the circuit is open, updates are buffered (oldest dropped when full)
// and flushed once the circuit closes again.
type Publisher struct {
	store *Store
	cb    *CircuitBreaker
	send  func(ctx context.Context, msgs []message) error
	ctx   context.Context

	mu     sync.Mutex
	buffer []message
	maxBuf int

	// OnBuffer is called when an update is buffered (for metrics).
	OnBuffer func()
	// OnFlush is called after buffered updates were flushed.
	OnFlush func(count int)
}

// NewPublisher creates a Publisher on s. ctx bounds background flushes.
func NewPublisher(ctx context.Context, s *Store, maxBuffer int) *Publisher {
	p := newPublisher(ctx, s.cb, maxBuffer)
	p.store = s
	p.send = p.pipeline
	return p
}

func newPublisher(ctx context.Context, cb *CircuitBreaker, maxBuffer int) *Publisher {
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}
	p := &Publisher{
		cb:     cb,
		ctx:    ctx,
		buffer: make([]message, 0, 64),
		maxBuf: maxBuffer,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// Publish sends one update of the given kind ("status", "trade", "signal").
func (p *Publisher) Publish(ctx context.Context, kind string, data []byte) error {
	msg := message{Kind: kind, Data: data}
	err := p.cb.Execute(func() error {
		return p.send(ctx, []message{msg})
	})
	if errors.Is(err, ErrCircuitOpen) {
		p.bufferMsg(msg)
		return nil
	}
	return err
}

func (p *Publisher) pipeline(ctx context.Context, msgs []message) error {
	s := p.store
	pipe := s.client.Pipeline()
	for _, m := range msgs {
		payload := string(m.Data)
		pipe.Publish(ctx, s.key("updates", m.Kind), payload)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: s.key("events"),
			MaxLen: eventsStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"kind": m.Kind, "data": payload},
		})
		if m.Kind == "status" {
			pipe.Set(ctx, s.key("status", "latest"), payload, 0)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) bufferMsg(m message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, m)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered updates in one pipeline.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]message, 0, 64)
	p.mu.Unlock()

	if err := p.send(p.ctx, toFlush); err != nil {
		log.Printf("[redis-pub] flush of %d updates failed: %v", len(toFlush), err)
		return
	}

	log.Printf("[redis-pub] flushed %d buffered updates", len(toFlush))
	if p.OnFlush != nil {
		p.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}
