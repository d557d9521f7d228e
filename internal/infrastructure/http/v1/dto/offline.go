package dto

import (
	"time"

	"depotstock/internal/domain/offline"
)

// OfflineRequest is a request captured by a terminal while disconnected.
type OfflineRequest struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind" binding:"required"`
	DepotID    string             `json:"depotId" binding:"required"`
	RefID      string             `json:"refId" binding:"required"`
	Lines      []OrderLineRequest `json:"lines" binding:"dive"`
	EnqueuedAt time.Time          `json:"enqueuedAt"`
}

func (r OfflineRequest) ToDomain() offline.Request {
	return offline.Request{
		ID:         r.ID,
		Kind:       offline.Kind(r.Kind),
		DepotID:    r.DepotID,
		RefID:      r.RefID,
		Lines:      toOrderLines(r.Lines),
		EnqueuedAt: r.EnqueuedAt,
	}
}

// EnqueueResponse acknowledges a queued request.
type EnqueueResponse struct {
	ID       string `json:"id"`
	DepotID  string `json:"depotId"`
	Position int64  `json:"position"`
}

// DrainRequest selects which depot queues to replay; empty means all.
type DrainRequest struct {
	DepotIDs []string `json:"depotIds"`
}

// DrainResponse reports each depot's drain.
type DrainResponse struct {
	Reports []offline.DrainReport `json:"reports"`
	Error   *ErrorResponse        `json:"error,omitempty"`
}

// QueueStatusResponse shows a depot queue.
type QueueStatusResponse struct {
	DepotID     string               `json:"depotId"`
	Pending     int64                `json:"pending"`
	DeadLetters []offline.DeadLetter `json:"deadLetters"`
}
