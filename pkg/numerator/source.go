package numerator

import (
	"context"
	"sync"
)

// sqlSource keeps sequences in sys_sequences(key, current_val).
// current_val is the last value handed out.
type sqlSource struct {
	q Querier
}

func (s *sqlSource) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	var newMax int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, key, n).Scan(&newMax)
	return newMax, err
}

func (s *sqlSource) Set(ctx context.Context, key string, value int64) error {
	var result int64
	return s.q.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)
}

// MemorySource keeps sequences in process memory.
type MemorySource struct {
	mu   sync.Mutex
	vals map[string]int64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{vals: make(map[string]int64)}
}

func (m *MemorySource) Reserve(_ context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] += n
	return m.vals[key], nil
}

func (m *MemorySource) Set(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}
