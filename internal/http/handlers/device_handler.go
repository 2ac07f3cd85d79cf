// README: Device token registration for push delivery.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oxymore-tech/liane-sub002/internal/http/middleware"
	"github.com/oxymore-tech/liane-sub002/internal/notify"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type DeviceHandler struct {
	tokens notify.TokenRegistry
}

func NewDeviceHandler(tokens notify.TokenRegistry) *DeviceHandler {
	return &DeviceHandler{tokens: tokens}
}

type deviceReq struct {
	Token string `json:"token"`
}

func (h *DeviceHandler) Register(c *gin.Context) {
	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if err := h.tokens.Register(c.Request.Context(), uid, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) Unregister(c *gin.Context) {
	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if err := h.tokens.Unregister(c.Request.Context(), uid, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
