package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"event-escrow/ticketing"
)

const requestIDHeader = "X-Request-ID"

type RouterConfig struct {
	Engine         *ticketing.Engine
	Units          *Units
	Logger         *zap.Logger
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	// Dev is routed under /api/v1/dev when set.
	Dev *DevHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(logger))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", callerHeader, requestIDHeader}
	router.Use(cors.New(corsConfig))

	eventHandler := NewEventHandler(cfg.Engine, cfg.Units, logger)
	ticketHandler := NewTicketHandler(cfg.Engine, cfg.Units, logger)
	accountHandler := NewAccountHandler(cfg.Engine, eventHandler)
	adminHandler := NewAdminHandler(cfg.Engine, cfg.Units, logger)

	api := router.Group("/api/v1")
	{
		// Event routes
		api.POST("/events", eventHandler.CreateEvent)
		api.GET("/events", eventHandler.GetEvents)
		api.GET("/events/count", eventHandler.GetEventCount)
		api.GET("/events/:id", eventHandler.GetEvent)
		api.GET("/events/:id/attendees", eventHandler.GetAttendees)
		api.GET("/events/:id/escrow", eventHandler.GetEscrow)
		api.POST("/events/:id/cancel", eventHandler.CancelEvent)
		api.POST("/events/:id/release", eventHandler.ReleaseFunds)
		api.GET("/creators/:address/events", eventHandler.GetCreatorEvents)

		// Ticket routes
		api.POST("/events/:id/tickets", ticketHandler.BuyTicket)
		api.DELETE("/events/:id/tickets", ticketHandler.RefundTicket)
		api.GET("/events/:id/tickets/:address", ticketHandler.CheckTicket)

		// Caller views
		api.GET("/me/tickets", accountHandler.GetMyTickets)
		api.GET("/me/events", accountHandler.GetMyEvents)

		api.GET("/logs", adminHandler.GetLogs)
		api.GET("/tokens", adminHandler.GetTokens)

		admin := api.Group("/admin")
		admin.POST("/pause", adminHandler.Pause)
		admin.POST("/unpause", adminHandler.Unpause)
		admin.POST("/tokens", adminHandler.AddToken)

		if cfg.Dev != nil {
			api.POST("/dev/fund", cfg.Dev.Fund)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"paused":    cfg.Engine.Paused(),
			"events":    cfg.Engine.EventCount(),
			"timestamp": time.Now().Unix(),
		})
	})

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
