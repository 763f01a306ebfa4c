package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusReconnecting = "reconnecting"

	errInternal        = "internal error"
	errListPorts       = "failed to list serial ports"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Description  Connection state and the latest reading.
// @Tags         system
// @Produce      json
// @Success      200  {object}  service.Health
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Health())
}

// @Summary      Current weight
// @Description  Latest decoded reading. Never waits for the scale.
// @Tags         scale
// @Produce      json
// @Success      200  {object}  models.Reading
// @Router       /weight [get]
func (h *Handler) getWeight(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.CurrentWeight())
}

// @Summary      List serial ports
// @Tags         scale
// @Produce      json
// @Success      200  {object}  service.PortList
// @Failure      500  {object}  map[string]string
// @Router       /ports [get]
func (h *Handler) listPorts(c *gin.Context) {
	ports, err := h.services.Device.Ports()
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListPorts, "ports_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, ports)
}

// @Summary      Reconnect the scale
// @Description  Closes the port and reopens it shortly after. Returns immediately.
// @Tags         scale
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /reconnect [post]
func (h *Handler) reconnect(c *gin.Context) {
	h.services.Device.Reconnect()
	c.JSON(http.StatusOK, gin.H{"status": statusReconnecting})
}
