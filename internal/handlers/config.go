package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"scalebridge/internal/config"

	"github.com/gin-gonic/gin"
)

const errSaveConfig = "failed to save config"

// @Summary      Current configuration
// @Tags         config
// @Produce      json
// @Success      200  {object}  config.Config
// @Router       /config [get]
func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Settings.Get())
}

// @Summary      Update configuration
// @Description  Fields omitted from the body keep their current value. Device changes reconnect the scale.
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        body  body      config.Config  true  "Full or partial configuration"
// @Success      200   {object}  config.Config
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /config [post]
func (h *Handler) updateConfig(c *gin.Context) {
	cfg := h.services.Settings.Get()
	if err := json.NewDecoder(c.Request.Body).Decode(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	saved, err := h.services.Settings.Update(cfg)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSaveConfig, "config_save_failed", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
