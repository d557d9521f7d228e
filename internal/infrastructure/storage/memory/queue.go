package memory

import (
	"context"
	"slices"
	"sync"

	"depotstock/internal/domain/offline"
)

// Queue is an in-memory per-depot FIFO.
type Queue struct {
	mu     sync.Mutex
	queues map[string][]offline.Request
	dead   map[string][]offline.DeadLetter
}

func NewQueue() *Queue {
	return &Queue{
		queues: make(map[string][]offline.Request),
		dead:   make(map[string][]offline.DeadLetter),
	}
}

func (q *Queue) Enqueue(_ context.Context, req offline.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[req.DepotID] = append(q.queues[req.DepotID], req)
	return nil
}

func (q *Queue) Peek(_ context.Context, depotID string) (offline.Request, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.queues[depotID]
	if len(items) == 0 {
		return offline.Request{}, false, nil
	}
	return items[0], true, nil
}

func (q *Queue) Ack(_ context.Context, depotID, requestID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop(depotID, requestID)
}

func (q *Queue) DeadLetter(_ context.Context, depotID string, dl offline.DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.pop(depotID, dl.Request.ID); err != nil {
		return err
	}
	q.dead[depotID] = append(q.dead[depotID], dl)
	return nil
}

// pop drops the head if it is requestID.
func (q *Queue) pop(depotID, requestID string) error {
	items := q.queues[depotID]
	if len(items) == 0 || items[0].ID != requestID {
		return offline.ErrHeadMoved
	}
	if len(items) == 1 {
		delete(q.queues, depotID)
		return nil
	}
	q.queues[depotID] = items[1:]
	return nil
}

func (q *Queue) Len(_ context.Context, depotID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.queues[depotID])), nil
}

func (q *Queue) DeadLetters(_ context.Context, depotID string) ([]offline.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.dead[depotID]), nil
}

func (q *Queue) Depots(_ context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	depots := make([]string, 0, len(q.queues))
	for d := range q.queues {
		depots = append(depots, d)
	}
	slices.Sort(depots)
	return depots, nil
}

type claimState struct {
	done      bool
	released  bool
	linesDone int
}

// Guard is an in-memory offline.Guard.
type Guard struct {
	mu     sync.Mutex
	claims map[string]claimState
}

func NewGuard() *Guard {
	return &Guard{claims: make(map[string]claimState)}
}

func (g *Guard) Claim(_ context.Context, requestID string) (offline.Claim, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, seen := g.claims[requestID]
	switch {
	case !seen:
		g.claims[requestID] = claimState{}
		return offline.Claim{Result: offline.Claimed}, nil
	case st.done:
		return offline.Claim{Result: offline.AlreadyDone}, nil
	case st.released:
		g.claims[requestID] = claimState{linesDone: st.linesDone}
		return offline.Claim{Result: offline.Resumed, LinesDone: st.linesDone}, nil
	default:
		return offline.Claim{Result: offline.Interrupted}, nil
	}
}

func (g *Guard) Complete(_ context.Context, requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims[requestID] = claimState{done: true}
	return nil
}

func (g *Guard) Release(_ context.Context, requestID string, linesDone int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims[requestID] = claimState{released: true, linesDone: linesDone}
	return nil
}

var (
	_ offline.Queue = (*Queue)(nil)
	_ offline.Guard = (*Guard)(nil)
)
