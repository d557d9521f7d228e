package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/core/id"
	"depotstock/internal/domain/offline"
)

// DefaultLeaseTTL is how long a drain lease survives without a refresh.
const DefaultLeaseTTL = 30 * time.Second

var (
	refreshLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
	releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// Locker grants per-depot drain leases with SET NX PX. Each lease holds a
// random token; refresh and release only touch the key while it still
// carries that token.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewLocker(client redis.UniversalClient, name string, ttl time.Duration) *Locker {
	if name == "" {
		name = "offline"
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Locker{client: client, prefix: name + ":lease:", ttl: ttl}
}

func (l *Locker) Acquire(ctx context.Context, depotID string) (offline.Lease, bool, error) {
	ls := &lease{client: l.client, key: l.prefix + depotID, token: id.NewString(), ttl: l.ttl}
	ok, err := l.client.SetNX(ctx, ls.key, ls.token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire drain lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return ls, true, nil
}

type lease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

func (l *lease) Refresh(ctx context.Context) error {
	n, err := refreshLeaseScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh drain lease: %w", err)
	}
	if n == 0 {
		return offline.ErrLeaseLost
	}
	return nil
}

func (l *lease) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release drain lease: %w", err)
	}
	return nil
}

var _ offline.Locker = (*Locker)(nil)
