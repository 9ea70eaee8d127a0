package apihandlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter registers every HTTP route. metricsHandler may be nil.
func NewRouter(h *APIHandler, metricsHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(), gin.Recovery())

	router.GET("/", h.HealthHandler)
	router.GET("/health", h.HealthHandler)
	router.POST("/convert", h.ConvertHandler)
	router.GET("/status/:task_id", h.StatusHandler)
	router.GET("/download/:filename", h.DownloadHandler)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
	router.NoRoute(h.NoRouteHandler)

	return router
}

// RequestLogger logs one line per request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
