package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"depotstock/internal/core/apperror"
	"depotstock/internal/domain/offline"
	"depotstock/internal/infrastructure/http/v1/dto"
	"depotstock/pkg/logger"
)

// OfflineHandler accepts requests queued by disconnected terminals and drains them.
type OfflineHandler struct {
	*BaseHandler
	replayer *offline.Replayer
	queue    offline.Queue
}

// NewOfflineHandler creates a new offline queue handler.
func NewOfflineHandler(base *BaseHandler, replayer *offline.Replayer, queue offline.Queue) *OfflineHandler {
	return &OfflineHandler{
		BaseHandler: base,
		replayer:    replayer,
		queue:       queue,
	}
}

// Enqueue handles POST /offline/requests
func (h *OfflineHandler) Enqueue(c *gin.Context) {
	var req dto.OfflineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	queued, err := h.replayer.Enqueue(ctx, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}

	pos, err := h.queue.Len(ctx, queued.DepotID)
	if err != nil {
		logger.Warn(ctx, "queue length unavailable", "depot_id", queued.DepotID, "error", err)
	}
	h.Accepted(c, dto.EnqueueResponse{ID: queued.ID, DepotID: queued.DepotID, Position: pos})
}

// Drain handles POST /offline/drain
// Depots are drained one after another; the first failure stops the run and
// is reported next to the drains that completed. A depot drained by another
// process at the same time answers 409.
func (h *OfflineHandler) Drain(c *gin.Context) {
	var req dto.DrainRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	depots := req.DepotIDs
	if len(depots) == 0 {
		var err error
		if depots, err = h.queue.Depots(ctx); err != nil {
			h.Error(c, apperror.NewStorageUnavailable(err))
			return
		}
	}

	resp := dto.DrainResponse{Reports: make([]offline.DrainReport, 0, len(depots))}
	for _, depotID := range depots {
		report, err := h.replayer.Drain(ctx, depotID)
		resp.Reports = append(resp.Reports, report)
		if err != nil {
			appErr, ok := apperror.AsAppError(err)
			if !ok {
				appErr = apperror.NewStorageUnavailable(err)
			}
			resp.Error = &dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message}
			logger.Error(ctx, "offline drain stopped", "depot_id", depotID, "error", err)
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, resp)
			return
		}
	}
	h.OK(c, resp)
}

// Status handles GET /offline/depots/:depot
func (h *OfflineHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	depotID := c.Param("depot")

	pending, err := h.queue.Len(ctx, depotID)
	if err != nil {
		h.Error(c, apperror.NewStorageUnavailable(err))
		return
	}
	dead, err := h.queue.DeadLetters(ctx, depotID)
	if err != nil {
		h.Error(c, apperror.NewStorageUnavailable(err))
		return
	}
	if dead == nil {
		dead = []offline.DeadLetter{}
	}
	h.OK(c, dto.QueueStatusResponse{DepotID: depotID, Pending: pending, DeadLetters: dead})
}
