// README: Join request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oxymore-tech/liane-sub002/internal/http/middleware"
	"github.com/oxymore-tech/liane-sub002/internal/modules/join"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type JoinHandler struct {
	joins *join.Service
	trips *trip.Service
}

func NewJoinHandler(joins *join.Service, trips *trip.Service) *JoinHandler {
	return &JoinHandler{joins: joins, trips: trips}
}

type joinReq struct {
	From             trip.RallyingPoint `json:"from"`
	To               trip.RallyingPoint `json:"to"`
	SeatCount        int                `json:"seat_count"`
	TakeReturnTrip   bool               `json:"take_return_trip"`
	Message          string             `json:"message"`
	GeolocationLevel string             `json:"geolocation_level"`
}

func (h *JoinHandler) Request(c *gin.Context) {
	var req joinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.From.ID == "" || req.To.ID == "" || req.SeatCount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}
	r, err := h.joins.Request(c.Request.Context(), join.RequestCommand{
		TripID:           types.ID(c.Param("id")),
		Requester:        types.ID(middleware.CallerUID(c)),
		From:             req.From,
		To:               req.To,
		SeatCount:        req.SeatCount,
		TakeReturnTrip:   req.TakeReturnTrip,
		Message:          req.Message,
		GeolocationLevel: trip.GeolocationLevel(req.GeolocationLevel),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

type answerReq struct {
	Accept bool `json:"accept"`
}

func (h *JoinHandler) Answer(c *gin.Context) {
	var req answerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.joins.Answer(c.Request.Context(), types.ID(c.Param("id")), types.ID(middleware.CallerUID(c)), req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPending is driver-only: pending requests leak who wants to join.
func (h *JoinHandler) ListPending(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.Driver.UserID != uid {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the driver may list requests"})
		return
	}
	requests, err := h.joins.ListPending(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *JoinHandler) ListMine(c *gin.Context) {
	requests, err := h.joins.ListMine(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
