package store

import (
	"encoding/json"
	"time"
)

// WithLatency delays every call by d, standing in for a network round trip.
// A non-positive d returns s unchanged.
func WithLatency(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &latencyStore{next: s, delay: d, sleep: time.Sleep}
}

type latencyStore struct {
	next  Store
	delay time.Duration
	sleep func(time.Duration)
}

func (s *latencyStore) Get(key string) (json.RawMessage, bool, error) {
	s.sleep(s.delay)
	return s.next.Get(key)
}

func (s *latencyStore) Set(key string, value json.RawMessage) error {
	s.sleep(s.delay)
	return s.next.Set(key, value)
}

func (s *latencyStore) Delete(key string) error {
	s.sleep(s.delay)
	return s.next.Delete(key)
}
