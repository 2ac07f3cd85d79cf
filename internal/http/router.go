// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oxymore-tech/liane-sub002/internal/http/handlers"
	"github.com/oxymore-tech/liane-sub002/internal/http/middleware"
	"github.com/oxymore-tech/liane-sub002/internal/infra"
	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/join"
	"github.com/oxymore-tech/liane-sub002/internal/modules/match"
	"github.com/oxymore-tech/liane-sub002/internal/modules/tracking"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/notify"
)

type RouterDeps struct {
	Trips     *trip.Service
	Joins     *join.Service
	Engine    *match.Engine
	Estimator *tracking.Estimator
	Bus       *event.Bus
	Tokens    notify.TokenRegistry
	Verifier  infra.TokenVerifier
	Logger    *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	tripHandler := handlers.NewTripHandler(deps.Trips, deps.Engine, deps.Bus)
	api.POST("/trips", tripHandler.Create)
	api.GET("/trips/:id", tripHandler.Get)
	api.POST("/trips/:id/start", tripHandler.Start)
	api.POST("/trips/:id/cancel", tripHandler.Cancel)
	api.POST("/trips/:id/finish", tripHandler.Finish)
	api.DELETE("/trips/:id/members/me", tripHandler.Leave)
	api.POST("/trips/:id/match", tripHandler.Match)

	joinHandler := handlers.NewJoinHandler(deps.Joins, deps.Trips)
	api.POST("/trips/:id/join_requests", joinHandler.Request)
	api.GET("/trips/:id/join_requests", joinHandler.ListPending)
	api.POST("/join_requests/:id/answer", joinHandler.Answer)
	api.GET("/join_requests", joinHandler.ListMine)

	trackingHandler := handlers.NewTrackingHandler(deps.Estimator, deps.Trips, deps.Bus)
	api.POST("/trips/:id/ping", trackingHandler.Ping)
	api.GET("/trips/:id/tracking", trackingHandler.Snapshot)

	deviceHandler := handlers.NewDeviceHandler(deps.Tokens)
	api.POST("/devices", deviceHandler.Register)
	api.DELETE("/devices", deviceHandler.Unregister)

	return r
}
