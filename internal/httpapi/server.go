// Package httpapi exposes the services over a JSON REST API under /api/v1.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/septivank/smart-copro/internal/config"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services behind the routes
type Services struct {
	Metering   *service.MeteringService
	Thresholds *service.ThresholdService
	Complaints *service.ComplaintService
	Dispatch   *service.DispatchService
	Reporting  *service.ReportingService
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	resolver *identity.Resolver
	svc      Services
	db       Pinger
	engine   *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg *config.Config, logger *zap.Logger, resolver *identity.Resolver, svc Services, db Pinger) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(accessLog(logger))
	engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	engine.Use(NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, logger).RateLimit())

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		svc:      svc,
		db:       db,
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterLifecycle serves HTTP between fx start and stop.
func (s *Server) RegisterLifecycle(lc fx.Lifecycle) {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.logger.Fatal("http server stopped", zap.Error(err))
				}
			}()
			s.logger.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			s.logger.Info("shutting down http server")
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowed
	}
	return cfg
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)

	v1 := s.engine.Group("/api/v1", authRequired(s.resolver, s.logger))
	manager := requireRole(identity.RoleManager)

	v1.POST("/zones", manager, s.handleCreateZone)
	v1.GET("/zones", s.handleListZones)
	v1.GET("/zones/:id/consumption", s.handleZoneConsumption)

	v1.POST("/meters", manager, s.handleCreateMeter)
	v1.GET("/meters", s.handleListMeters)
	v1.GET("/meters/:id", s.handleGetMeter)
	v1.PATCH("/meters/:id", manager, s.handleUpdateMeter)

	v1.POST("/readings", manager, s.handleSubmitReading)
	v1.GET("/readings", s.handleListReadings)
	v1.PATCH("/readings/:id", manager, s.handleCorrectReading)

	v1.POST("/thresholds", manager, s.handleCreateThreshold)
	v1.GET("/thresholds", s.handleListThresholds)
	v1.PUT("/thresholds/:id", manager, s.handleReplaceThreshold)
	v1.DELETE("/thresholds/:id", manager, s.handleDeleteThreshold)

	v1.GET("/alerts", s.handleListAlerts)
	v1.POST("/alerts/:id/handle", manager, s.handleHandleAlert)

	v1.POST("/complaints", requireRole(identity.RoleResident), s.handleSubmitComplaint)
	v1.GET("/complaints", s.handleListComplaints)
	v1.GET("/complaints/:id", s.handleGetComplaint)
	v1.PATCH("/complaints/:id", manager, s.handleUpdateComplaint)

	v1.POST("/interventions", manager, s.handleAssignIntervention)
	v1.GET("/interventions", s.handleListInterventions)
	v1.PUT("/interventions/:id", manager, s.handleReplaceIntervention)
	v1.DELETE("/interventions/:id", manager, s.handleDeleteIntervention)
	v1.PATCH("/interventions/:id/report", requireRole(identity.RoleTechnician), s.handleReportIntervention)

	v1.GET("/dashboard", s.handleDashboard)
}

func (s *Server) handleReady(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
