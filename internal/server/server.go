package server

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geofleet/api/internal/clickhouse"
	"geofleet/api/internal/config"
	"geofleet/api/internal/fleetapi"
	"geofleet/api/internal/handler"
	"geofleet/api/internal/middleware"
	"geofleet/api/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server wires services, handlers and middleware onto the gin router.
type Server struct {
	router    *gin.Engine
	config    *config.Config
	db        *gorm.DB
	redis     *redis.Client
	nats      *nats.Conn
	ch        *clickhouse.Client
	wsHub     *handler.WSHub
	wsHandler *handler.WSHandler
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, ch *clickhouse.Client) *Server {
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		nats:   natsConn,
		ch:     ch,
	}
}

// Setup initializes routes and handlers.
func (s *Server) Setup() {
	s.wsHub = handler.NewWSHub(s.nats)
	s.wsHandler = handler.NewWSHandler(s.wsHub)

	fleetAPI := fleetapi.NewClient(s.config.FMSBaseURL)
	events := service.NewEventPublisher(s.nats)

	accessService := service.NewAccessService(s.db, s.redis, s.config.CoreSchema, s.config.UserFleetCacheTTL)
	geofenceService := service.NewGeofenceService(s.db, events)
	ruleService := service.NewRuleService(s.db, events, geofenceService, s.config.CoreSchema)
	assignmentService := service.NewAssignmentService(s.db, ruleService, fleetAPI,
		s.config.CoreSchema, s.config.SubscribedVinsOnly)
	compositeService := service.NewCompositeService(s.db, geofenceService, ruleService, assignmentService, events)
	reportService := service.NewReportService(s.db, s.ch, s.config.ClickHouse.Database, s.config.CoreSchema)

	geofenceHandler := handler.NewGeofenceHandler(geofenceService, compositeService, accessService, fleetAPI)
	ruleHandler := handler.NewRuleHandler(ruleService, accessService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, accessService)
	reportHandler := handler.NewReportHandler(reportService, accessService)

	go s.wsHub.Run()
	log.Println("[Server] WebSocket hub started")

	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Cookie")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router.GET("/health", func(c *gin.Context) {
		health := gin.H{"status": "ok"}
		if s.ch != nil {
			if err := s.ch.Ping(c.Request.Context()); err != nil {
				health["clickhouse"] = "down"
			} else {
				health["clickhouse"] = "ok"
			}
		}
		if s.nats != nil && s.nats.IsConnected() {
			health["nats"] = "ok"
		} else {
			health["nats"] = "down"
		}
		c.JSON(200, health)
	})

	// WebSocket config event stream
	s.router.GET("/ws/events", s.wsHandler.HandleEvents)
	s.router.GET("/ws/stats", s.wsHandler.Stats)

	// Geofence API: cookie auth, then fleet-scoped permission resolution
	geo := s.router.Group("/api/v1/geofence")
	geo.Use(middleware.Auth())
	geo.Use(middleware.GeofencePermissions(fleetAPI))
	{
		geofenceHandler.RegisterRoutes(geo)
		ruleHandler.RegisterRoutes(geo)
		assignmentHandler.RegisterRoutes(geo)

		report := geo.Group("/report")
		report.Use(middleware.RateLimit(s.redis, s.config.ReportRateLimit, s.config.ReportRateWindowSeconds))
		reportHandler.RegisterRoutes(report)
	}
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	log.Printf("[Server] HTTP server listening on %s", addr)
	return s.router.Run(addr)
}

// GetRouter returns the gin router for testing.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() {
	if s.wsHub != nil {
		s.wsHub.Stop()
		log.Println("[Server] WebSocket hub stopped")
	}
	if s.ch != nil {
		s.ch.Close()
		log.Println("[Server] ClickHouse connections closed")
	}
}
