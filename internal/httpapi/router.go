// Package httpapi is the thin request layer: route parsing, request
// validation at the transport edge, and fault-to-status mapping. All
// behavior lives in the registries, pool, dispatcher and materializer it
// delegates to.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clipflow/internal/asset"
	"clipflow/internal/calendar"
	"clipflow/internal/config"
	"clipflow/internal/media"
	"clipflow/internal/schedule"
	"clipflow/internal/transcode"
	logx "clipflow/pkg/logx"
)

type Handlers struct {
	log   logx.Logger
	media config.MediaConfig
	paths media.Paths

	assets    *asset.Registry
	pool      *transcode.Pool
	schedules *schedule.Registry
	calendar  *calendar.Materializer
}

func NewHandlers(
	mediaCfg config.MediaConfig,
	paths media.Paths,
	assets *asset.Registry,
	pool *transcode.Pool,
	schedules *schedule.Registry,
	cal *calendar.Materializer,
	log logx.Logger,
) *Handlers {
	return &Handlers{
		log:       log,
		media:     mediaCfg,
		paths:     paths,
		assets:    assets,
		pool:      pool,
		schedules: schedules,
		calendar:  cal,
	}
}

// Router assembles the gin engine. gin.New rather than gin.Default: recovery
// and request logging go through logx so all output shares one sink.
func (h *Handlers) Router(server config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(h.requestLog(), gin.Recovery())

	origins := server.AllowedOrigins
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.health)
	r.GET("/videos/:id/*file", h.serveMedia)

	api := r.Group("/api/v1")
	{
		api.POST("/videos", h.uploadVideo)
		api.GET("/videos", h.listAssets)
		api.GET("/videos/:id", h.getAsset)
		api.DELETE("/videos/:id", h.deleteAsset)

		api.POST("/schedules", h.createSchedule)
		api.GET("/schedules", h.listSchedules)
		api.GET("/schedules/calendar", h.calendarEvents)
		api.GET("/schedules/:id", h.getSchedule)
		api.PUT("/schedules/:id", h.updateSchedule)
		api.DELETE("/schedules/:id", h.deleteSchedule)
	}
	return r
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
