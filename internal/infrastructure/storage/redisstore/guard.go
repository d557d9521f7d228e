package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"depotstock/internal/domain/offline"
)

const (
	claimPending  = "pending"
	claimDone     = "done"
	claimReleased = "released:"

	// DefaultClaimTTL bounds how long a replayed request id is remembered.
	DefaultClaimTTL = 24 * time.Hour
)

// claimScript takes a request id. A missing or released claim becomes
// pending; the previous state is returned ("" when there was none).
var claimScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if not prev then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[1])
	return ''
end
if string.sub(prev, 1, 9) == 'released:' then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[1])
end
return prev
`)

// Guard keeps one key per request id: pending, done, or released:<lines done>.
// Released claims carry no TTL; they are cleared when the request is replayed again.
type Guard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewGuard(client redis.UniversalClient, name string, ttl time.Duration) *Guard {
	if name == "" {
		name = "offline"
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Guard{client: client, prefix: name + ":claim:", ttl: ttl}
}

func (g *Guard) Claim(ctx context.Context, requestID string) (offline.Claim, error) {
	prev, err := claimScript.Run(ctx, g.client, []string{g.prefix + requestID}, g.ttl.Milliseconds(), claimPending).Text()
	if err != nil {
		return offline.Claim{}, fmt.Errorf("claim request: %w", err)
	}
	return parseClaim(prev)
}

func parseClaim(prev string) (offline.Claim, error) {
	switch {
	case prev == "":
		return offline.Claim{Result: offline.Claimed}, nil
	case prev == claimDone:
		return offline.Claim{Result: offline.AlreadyDone}, nil
	case strings.HasPrefix(prev, claimReleased):
		n, err := strconv.Atoi(strings.TrimPrefix(prev, claimReleased))
		if err != nil {
			return offline.Claim{}, fmt.Errorf("decode released claim %q: %w", prev, err)
		}
		return offline.Claim{Result: offline.Resumed, LinesDone: n}, nil
	default:
		return offline.Claim{Result: offline.Interrupted}, nil
	}
}

func (g *Guard) Complete(ctx context.Context, requestID string) error {
	if err := g.client.Set(ctx, g.prefix+requestID, claimDone, g.ttl).Err(); err != nil {
		return fmt.Errorf("complete claim: %w", err)
	}
	return nil
}

func (g *Guard) Release(ctx context.Context, requestID string, linesDone int) error {
	state := claimReleased + strconv.Itoa(linesDone)
	if err := g.client.Set(ctx, g.prefix+requestID, state, 0).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

var _ offline.Guard = (*Guard)(nil)
