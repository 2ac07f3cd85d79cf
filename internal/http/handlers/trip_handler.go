// README: Trip handlers: create, read, lifecycle transitions, leave and match probing.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oxymore-tech/liane-sub002/internal/http/middleware"
	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/match"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type TripHandler struct {
	trips  *trip.Service
	engine *match.Engine
	bus    *event.Bus
}

func NewTripHandler(trips *trip.Service, engine *match.Engine, bus *event.Bus) *TripHandler {
	return &TripHandler{trips: trips, engine: engine, bus: bus}
}

type createTripReq struct {
	From             trip.RallyingPoint `json:"from"`
	To               trip.RallyingPoint `json:"to"`
	DepartureTime    time.Time          `json:"departure_time"`
	SeatCount        int                `json:"seat_count"`
	CanDrive         bool               `json:"can_drive"`
	GeolocationLevel string             `json:"geolocation_level"`
	ReturnTrip       string             `json:"return_trip"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.From.ID == "" || req.To.ID == "" || req.DepartureTime.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fields"})
		return
	}
	cmd := trip.CreateCommand{
		CreatedBy:        types.ID(middleware.CallerUID(c)),
		From:             req.From,
		To:               req.To,
		DepartureTime:    req.DepartureTime,
		SeatCount:        req.SeatCount,
		CanDrive:         req.CanDrive,
		GeolocationLevel: trip.GeolocationLevel(req.GeolocationLevel),
	}
	if req.ReturnTrip != "" {
		rt := types.ID(req.ReturnTrip)
		cmd.ReturnTrip = &rt
	}
	t, err := h.trips.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tripView(t, t.State))
}

func (h *TripHandler) Get(c *gin.Context) {
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tripView(t, h.trips.EffectiveState(t)))
}

func (h *TripHandler) Start(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.Driver.UserID != uid {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the driver may start the trip"})
		return
	}
	t, err = h.trips.Start(c.Request.Context(), tripID, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.bus.Dispatch(c.Request.Context(), event.MemberHasStarted{Trip: tripID, UserID: uid}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tripView(t, t.State))
}

func (h *TripHandler) Cancel(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.CreatedBy != uid {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the trip owner may cancel the trip"})
		return
	}
	t, err = h.trips.Cancel(c.Request.Context(), tripID, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.bus.Dispatch(c.Request.Context(), event.MemberHasCanceled{Trip: tripID, UserID: uid}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tripView(t, t.State))
}

func (h *TripHandler) Finish(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.MemberByUser(uid) == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "only a trip member may finish the trip"})
		return
	}
	t, err = h.trips.Finish(c.Request.Context(), tripID, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tripView(t, t.State))
}

// Leave removes the caller from the trip. When the caller was the driver the
// configured policy may have canceled the whole trip; the event reflects
// what actually happened.
func (h *TripHandler) Leave(c *gin.Context) {
	uid := types.ID(middleware.CallerUID(c))
	tripID := types.ID(c.Param("id"))

	if err := h.trips.RemoveMember(c.Request.Context(), tripID, uid); err != nil {
		respondError(c, err)
		return
	}
	t, err := h.trips.Get(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	var ev event.Event = event.MemberHasLeft{Trip: tripID, UserID: uid}
	if t.State == trip.StateCanceled {
		ev = event.MemberHasCanceled{Trip: tripID, UserID: uid}
	}
	if err := h.bus.Dispatch(c.Request.Context(), ev); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type matchReq struct {
	From trip.RallyingPoint `json:"from"`
	To   trip.RallyingPoint `json:"to"`
}

// Match probes how a segment would fit the trip without committing to
// anything. An incompatible segment is a result here, not an error.
func (h *TripHandler) Match(c *gin.Context) {
	var req matchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	m, err := h.engine.ComputeMatch(c.Request.Context(), t, req.From, req.To, false)
	if err == match.ErrIncompatibleRoute {
		c.JSON(http.StatusOK, matchView(nil))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchView(m))
}
