// README: Tracking handlers: ping ingestion and snapshot reads.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oxymore-tech/liane-sub002/internal/http/middleware"
	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/tracking"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type TrackingHandler struct {
	estimator *tracking.Estimator
	trips     *trip.Service
	bus       *event.Bus
}

func NewTrackingHandler(estimator *tracking.Estimator, trips *trip.Service, bus *event.Bus) *TrackingHandler {
	return &TrackingHandler{estimator: estimator, trips: trips, bus: bus}
}

type pingReq struct {
	Coordinate   *types.Point `json:"coordinate"`
	DelaySeconds int64        `json:"delay_seconds"`
	At           time.Time    `json:"at"`
}

// Ping goes through the bus so every tracking consumer sees the same sample
// the estimator does.
func (h *TrackingHandler) Ping(c *gin.Context) {
	var req pingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.bus.Dispatch(c.Request.Context(), event.MemberPing{
		Trip:       types.ID(c.Param("id")),
		UserID:     types.ID(middleware.CallerUID(c)),
		At:         req.At,
		Coordinate: req.Coordinate,
		Delay:      time.Duration(req.DelaySeconds) * time.Second,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Snapshot is member-only; hidden coordinates are already withheld by the
// estimator.
func (h *TrackingHandler) Snapshot(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.MemberByUser(uid) == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a trip member"})
		return
	}
	snap, err := h.estimator.GetSnapshot(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
