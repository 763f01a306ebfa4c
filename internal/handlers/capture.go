package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scalebridge/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errCapture      = "failed to capture weight"
	errPhoto        = "failed to capture photo"
	errListCaptures = "failed to load captures"
	errFromInvalid  = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid    = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	// BRUTTO, TARA or NETTO, case-insensitive
	Action  string `json:"action" example:"BRUTTO"`
	OrderID *int   `json:"orderId,omitempty" example:"17"`
}

// PhotoRequest is the optional body of POST /capture.
type PhotoRequest struct {
	Filename string `json:"filename,omitempty" example:"gate-1"`
}

// @Summary      Capture weight
// @Description  Snapshots the current weight, takes photos and relays the result in the background. Camera or relay failures never fail the request.
// @Tags         capture
// @Accept       json
// @Produce      json
// @Param        body  body      CommandRequest  true  "Capture command"
// @Success      200   {object}  models.CaptureResult
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /command [post]
func (h *Handler) command(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	res, err := h.services.Capture.Capture(c.Request.Context(), service.CaptureParams{
		Action:  req.Action,
		OrderID: req.OrderID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidAction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errCapture, "capture_failed", err, "action", req.Action)
		return
	}

	h.services.Capture.RelayAsync(res)
	c.JSON(http.StatusOK, res)
}

// @Summary      Take photos
// @Description  Photo-only capture. An empty body is allowed.
// @Tags         capture
// @Accept       json
// @Produce      json
// @Param        body  body      PhotoRequest  false  "Optional file name"
// @Success      200   {object}  service.PhotoResult
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /capture [post]
func (h *Handler) capturePhoto(c *gin.Context) {
	var req PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	res, err := h.services.Capture.PhotoOnly(c.Request.Context(), req.Filename)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errPhoto, "photo_failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List captures
// @Description  Filter capture history by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). A date-only 'to' covers the whole day.
// @Tags         capture
// @Produce      json
// @Param        from    query   string  false  "Start of range"  example(2025-08-01)
// @Param        to      query   string  false  "End of range; date-only treated as end of day"  example(2025-08-31)
// @Param        action  query   string  false  "Capture action"  Enums(BRUTTO,TARA,NETTO)
// @Success      200   {object}  map[string]interface{}  "count, captures"
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /captures [get]
func (h *Handler) listCaptures(c *gin.Context) {
	var (
		from   time.Time
		to     time.Time
		action = strings.ToUpper(strings.TrimSpace(c.Query("action")))
		err    error
	)
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}

	captures, err := h.services.History.List(c.Request.Context(), service.HistoryFilter{
		From:   from,
		To:     to,
		Action: action,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListCaptures, "captures_list_failed", err,
			"from", from, "to", to, "action", action)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(captures),
		"captures": captures,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format %q, expected RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", s)
}
