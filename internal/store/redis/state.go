package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// SaveState stores the serialized bot state under <prefix>:state.
func (s *Store) SaveState(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := s.cb.Execute(func() error {
		return s.client.Set(ctx, s.key("state"), data, defaultStateTTL).Err()
	})
	if err != nil {
		return fmt.Errorf("redis save state: %w", err)
	}
	return nil
}

// LoadState returns the last saved state, or nil, nil when none exists.
func (s *Store) LoadState(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var data []byte
	err := s.cb.Execute(func() error {
		b, err := s.client.Get(ctx, s.key("state")).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis load state: %w", err)
	}
	return data, nil
}

// ClearState removes the saved state.
func (s *Store) ClearState(ctx context.Context) error {
	return s.cb.Execute(func() error {
		return s.client.Del(ctx, s.key("state")).Err()
	})
}
