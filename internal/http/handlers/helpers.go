// README: HTTP helpers for error mapping and view shaping.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oxymore-tech/liane-sub002/internal/modules/join"
	"github.com/oxymore-tech/liane-sub002/internal/modules/match"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
)

func respondError(c *gin.Context, err error) {
	var ise *trip.InvalidStateError
	switch {
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, join.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ise):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": string(ise.Current)})
	case errors.Is(err, trip.ErrConflict), errors.Is(err, trip.ErrNoSeats), errors.Is(err, match.ErrStaleMatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, match.ErrIncompatibleRoute):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, trip.ErrDegenerateSegment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, join.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// matchView flattens the Match union for JSON clients.
func matchView(m match.Match) gin.H {
	switch m := m.(type) {
	case match.Exact:
		return gin.H{"type": "exact", "pickup": m.Pickup, "deposit": m.Deposit}
	case match.Compatible:
		return gin.H{
			"type": "compatible",
			"delta": gin.H{
				"total_seconds":   int64(m.Delta.Total / time.Second),
				"total_meters":    m.Delta.TotalMeters,
				"pickup_seconds":  int64(m.Delta.Pickup / time.Second),
				"pickup_meters":   m.Delta.PickupMeters,
				"deposit_seconds": int64(m.Delta.Deposit / time.Second),
				"deposit_meters":  m.Delta.DepositMeters,
			},
			"way_points": m.WayPoints,
		}
	default:
		return gin.H{"type": "not_compatible"}
	}
}

// tripView decorates the stored document with the state a reader should act
// on.
func tripView(t *trip.Trip, effective trip.State) gin.H {
	return gin.H{"trip": t, "effective_state": effective}
}
