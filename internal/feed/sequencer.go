package feed

import (
	"log"
	"sort"
	"time"

	"niftybot/internal/model"
)

// Sequencer groups per-instrument candles into batches that share a
// timestamp and releases them in strictly increasing time order.
//
// A bucket is released once every expected tag has arrived; releasing a
// bucket also releases every older, still incomplete one. Candles at or
// before the last released timestamp are dropped.
type Sequencer struct {
	expect  []model.Tag
	pending map[int64]map[model.Tag]model.Candle
	last    time.Time

	// OnDropped is called for every late candle (optional).
	OnDropped func(model.Candle)
}

// NewSequencer creates a sequencer that waits for the given tags.
// With no tags it waits for NIFTY, CE and PE.
func NewSequencer(expect ...model.Tag) *Sequencer {
	if len(expect) == 0 {
		expect = model.Tags
	}
	return &Sequencer{
		expect:  expect,
		pending: make(map[int64]map[model.Tag]model.Candle),
	}
}

// Add ingests one candle and returns any batches that became ready.
func (s *Sequencer) Add(c model.Candle) []model.Batch {
	if !s.last.IsZero() && !c.TS.After(s.last) {
		log.Printf("[sequencer] dropping late %s candle ts=%s (last batch %s)",
			c.Tag, c.TS.Format(time.RFC3339), s.last.Format(time.RFC3339))
		if s.OnDropped != nil {
			s.OnDropped(c)
		}
		return nil
	}

	key := c.TS.Unix()
	bucket, ok := s.pending[key]
	if !ok {
		bucket = make(map[model.Tag]model.Candle, len(s.expect))
		s.pending[key] = bucket
	}
	bucket[c.Tag] = c

	if !s.complete(bucket) {
		return nil
	}
	return s.releaseThrough(key)
}

// Flush releases every pending bucket regardless of completeness.
func (s *Sequencer) Flush() []model.Batch {
	if len(s.pending) == 0 {
		return nil
	}
	var newest int64
	for k := range s.pending {
		if k > newest {
			newest = k
		}
	}
	return s.releaseThrough(newest)
}

// Last returns the timestamp of the newest released batch.
func (s *Sequencer) Last() time.Time { return s.last }

// Pending returns how many timestamps are still buffered.
func (s *Sequencer) Pending() int { return len(s.pending) }

func (s *Sequencer) complete(bucket map[model.Tag]model.Candle) bool {
	for _, tag := range s.expect {
		if _, ok := bucket[tag]; !ok {
			return false
		}
	}
	return true
}

func (s *Sequencer) releaseThrough(key int64) []model.Batch {
	keys := make([]int64, 0, len(s.pending))
	for k := range s.pending {
		if k <= key {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.Batch, 0, len(keys))
	for _, k := range keys {
		bucket := s.pending[k]
		delete(s.pending, k)

		candles := make([]model.Candle, 0, len(bucket))
		for _, tag := range model.Tags {
			if c, ok := bucket[tag]; ok {
				candles = append(candles, c)
			}
		}
		if len(candles) == 0 {
			continue
		}
		ts := candles[0].TS
		out = append(out, model.NewBatch(ts, candles...))
		s.last = ts
	}
	return out
}

// Sequence batches a complete candle set in one pass. The input need not
// be sorted; it is not modified.
func Sequence(candles []model.Candle, expect ...model.Tag) []model.Batch {
	sorted := make([]model.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })

	s := NewSequencer(expect...)
	var out []model.Batch
	for _, c := range sorted {
		out = append(out, s.Add(c)...)
	}
	return append(out, s.Flush()...)
}
