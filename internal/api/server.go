// Package api exposes the admin HTTP surface: health, runtime stats, error
// windows, token listings, and the manual category override.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/logging"
	"pumpfun-scanner/internal/monitor"
	"pumpfun-scanner/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

// Server is the admin HTTP server.
type Server struct {
	repo  *database.Repository
	mgr   *category.Manager
	sched *scheduler.Scheduler
	mon   *monitor.Monitor
	cfg   func() *config.Config

	httpSrv *http.Server
	logger  *logging.Logger
}

// NewServer wires the admin surface.
func NewServer(repo *database.Repository, mgr *category.Manager, sched *scheduler.Scheduler, mon *monitor.Monitor, cfg func() *config.Config) *Server {
	return &Server{
		repo:   repo,
		mgr:    mgr,
		sched:  sched,
		mon:    mon,
		cfg:    cfg,
		logger: logging.WithComponent("api"),
	}
}

// Start runs the server in the background.
func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/stats", s.handleStats)
		apiGroup.GET("/errors", s.handleErrors)
		apiGroup.GET("/tokens", s.handleTokens)
		apiGroup.GET("/tokens/:mint", s.handleToken)
		apiGroup.POST("/tokens/:mint/override", s.handleOverride)
		apiGroup.POST("/reload", s.handleReload)
	}

	server := s.cfg().Server
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", server.Host, server.Port),
		Handler: router,
	}

	go func() {
		s.logger.Info("Admin API listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin API failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.httpSrv.Shutdown(ctx)
}

// accessLog writes one line per request. The admin surface is low traffic,
// so every request is logged.
func accessLog() gin.HandlerFunc {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "api-access").Logger()
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(started)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStats(c *gin.Context) {
	counts, err := s.repo.CountTokensByCategory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ok, failed, alert := s.mon.FlushHealth()
	c.JSON(http.StatusOK, gin.H{
		"tokens_by_category": counts,
		"live_machines":      s.mgr.MachineCount(),
		"queue_depths":       s.sched.QueueDepths(),
		"flush": gin.H{
			"ok":     ok,
			"failed": failed,
			"alert":  alert,
		},
	})
}

func (s *Server) handleErrors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"window":  "5m",
		"classes": s.mon.Counts(),
	})
}

func (s *Server) handleTokens(c *gin.Context) {
	cat := c.DefaultQuery("category", string(category.Aim))
	if !category.Category(cat).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + cat})
		return
	}
	tokens, err := s.repo.ListTokensByCategory(c.Request.Context(), cat, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat, "tokens": tokens})
}

func (s *Server) handleToken(c *gin.Context) {
	mint := c.Param("mint")
	tok, err := s.repo.GetToken(c.Request.Context(), mint)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	transitions, _ := s.repo.ListTransitions(c.Request.Context(), mint, 20)
	scans, _ := s.repo.ListScanLogs(c.Request.Context(), mint, 20)
	evaluations, _ := s.repo.ListEvaluations(c.Request.Context(), mint, 10)
	prices, _ := s.repo.LatestPriceSamples(c.Request.Context(), mint, 20)
	trades, _ := s.repo.RecentTransactions(c.Request.Context(), mint, 20)
	c.JSON(http.StatusOK, gin.H{
		"token":        tok,
		"transitions":  transitions,
		"scans":        scans,
		"evaluations":  evaluations,
		"prices":       prices,
		"transactions": trades,
	})
}

type overrideRequest struct {
	Category string `json:"category" binding:"required"`
	Reason   string `json:"reason"`
}

func (s *Server) handleOverride(c *gin.Context) {
	mint := c.Param("mint")
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := category.Category(req.Category)
	if !target.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category: " + req.Category})
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin override"
	}
	s.mgr.ManualOverride(c.Request.Context(), mint, target, reason)
	c.JSON(http.StatusOK, gin.H{"mint": mint, "category": target})
}

func (s *Server) handleReload(c *gin.Context) {
	cfg, err := config.Reload()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true, "sol_price_usd": cfg.SolPrice})
}
