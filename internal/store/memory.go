package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-process
// development runs. Expirations are enforced lazily on access; blocking
// pops poll at a short interval.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
	hashes map[string]map[string]string
	queues map[string][][]byte
	index  map[string]struct{}
	subs   map[string][]chan []byte
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryValue),
		hashes: make(map[string]map[string]string),
		queues: make(map[string][][]byte),
		index:  make(map[string]struct{}),
		subs:   make(map[string][]chan []byte),
	}
}

func (s *MemoryStore) expired(v memoryValue) bool {
	return !v.expiresAt.IsZero() && time.Now().After(v.expiresAt)
}

func (s *MemoryStore) live(key string) ([]byte, bool) {
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	if s.expired(v) {
		delete(s.values, key)
		return nil, false
	}
	return v.data, true
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(value))
	copy(data, value)
	s.values[key] = memoryValue{data: data, expiresAt: expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	data := make([]byte, len(value))
	copy(data, value)
	s.values[key] = memoryValue{data: data, expiresAt: expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.hashes, key)
	}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := s.live(key)
	data = append(data, value...)
	expiresAt := s.values[key].expiresAt
	s.values[key] = memoryValue{data: data, expiresAt: expiresAt}
	return int64(len(data)), nil
}

func (s *MemoryStore) Len(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := s.live(key)
	return int64(len(data)), nil
}

func (s *MemoryStore) GetDel(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.values, key)
	return data, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok && !s.expired(v) {
		v.expiresAt = expiry(ttl)
		s.values[key] = v
	}
	return nil
}

func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	current, _ := strconv.ParseInt(h[field], 10, 64)
	h[field] = strconv.FormatInt(current+delta, 10)
	return nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Push(_ context.Context, queue string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(value))
	copy(data, value)
	s.queues[queue] = append(s.queues[queue], data)
	s.index[queue] = struct{}{}
	return nil
}

func (s *MemoryStore) Pop(ctx context.Context, queues []string, wait time.Duration) (string, []byte, error) {
	deadline := time.Now().Add(wait)
	for {
		s.mu.Lock()
		for _, queue := range queues {
			if items := s.queues[queue]; len(items) > 0 {
				value := items[0]
				s.queues[queue] = items[1:]
				s.mu.Unlock()
				return queue, value, nil
			}
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return "", nil, nil
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}

func (s *MemoryStore) Queues(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.index {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *MemoryStore) Publish(_ context.Context, channel string, value []byte) error {
	s.mu.Lock()
	subs := make([]chan []byte, len(s.subs[channel]))
	copy(subs, s.subs[channel])
	s.mu.Unlock()

	for _, sub := range subs {
		data := make([]byte, len(value))
		copy(data, value)
		select {
		case sub <- data:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, channel string) (*Subscription, error) {
	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			s.mu.Lock()
			subs := s.subs[channel]
			for i, sub := range subs {
				if sub == ch {
					s.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			close(ch)
		})
	}

	return &Subscription{C: ch, close: closeFn}, nil
}

func (s *MemoryStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.SetNX(ctx, key, []byte(token), ttl)
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.live(key); ok && string(data) == token {
		delete(s.values, key)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
