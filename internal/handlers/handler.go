package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"scalebridge/internal/logger"
	"scalebridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	photoURL string
	photoDir string
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// ServePhotos exposes dir under urlPrefix. Call before InitRoutes.
func (h *Handler) ServePhotos(urlPrefix, dir string) *Handler {
	h.photoURL, h.photoDir = urlPrefix, dir
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(h.requestLogger, gin.CustomRecovery(h.recoverPanic), corsMiddleware)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerScaleRoutes(router)
	h.registerCaptureRoutes(router)
	h.registerConfigRoutes(router)

	router.GET("/ws", h.wsConnect)

	// an absolute base_url means photos are served by something else
	if strings.HasPrefix(h.photoURL, "/") && h.photoDir != "" {
		router.Static(h.photoURL, h.photoDir)
	}
	return router
}

func (h *Handler) registerScaleRoutes(r *gin.Engine) {
	r.GET("/weight", h.getWeight)
	r.GET("/ports", h.listPorts)
	r.POST("/reconnect", h.reconnect)
}

func (h *Handler) registerCaptureRoutes(r *gin.Engine) {
	// Body example: {"action":"BRUTTO","orderId":17}
	r.POST("/command", h.command)
	// Body example: {"filename":"gate-1"}
	r.POST("/capture", h.capturePhoto)
	r.GET("/captures", h.listCaptures)
}

func (h *Handler) registerConfigRoutes(r *gin.Engine) {
	r.GET("/config", h.getConfig)
	r.POST("/config", h.updateConfig)
}

// recoverPanic answers a handler panic with the usual error envelope.
func (h *Handler) recoverPanic(c *gin.Context, rec any) {
	h.logAndJSONError(c, http.StatusInternalServerError, errInternal, "http_panic", fmt.Errorf("%v", rec), "path", c.Request.URL.Path)
	c.Abort()
}
