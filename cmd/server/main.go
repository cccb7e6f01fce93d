package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphmem/internal/graph"
	"graphmem/internal/ledger"
	"graphmem/internal/maintenance"
	"graphmem/internal/notes"
	"graphmem/pkg/config"
	"graphmem/pkg/errors"
	"graphmem/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph memory server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify Neo4j connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Initialize components; the driver's lifecycle is owned here, every
	// component gets the store injected.
	store := graph.NewStore(driver)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure graph schema", zap.Error(err))
	}

	led := ledger.NewLedger(store)
	noteSvc := notes.NewService(store)
	resolver := maintenance.NewResolver(store, maintenance.OverlapScorer, cfg.EntityMergeThreshold)
	orphans := maintenance.NewOrphanDetector(store)
	pruner := maintenance.NewPruner(store)
	consolidator := maintenance.NewConsolidator(store, maintenance.OverlapScorer, cfg.NoteDupThreshold)
	dispatcher := maintenance.NewDispatcher(store, resolver, orphans, pruner, consolidator)

	// Background maintenance
	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	if cfg.MaintenanceEnabled {
		scheduler := maintenance.NewScheduler(dispatcher, cfg.MaintenanceInterval, maintenance.RetentionPolicy{
			MaxMessagesPerSession: cfg.MaxMessagesPerSession,
			MaxAgeDays:            cfg.MaxAgeDays,
		}, cfg.NoteMinOverlap)
		go func() {
			if err := scheduler.Run(maintenanceCtx); err != nil {
				log.Error("Maintenance scheduler stopped", zap.Error(err))
			}
		}()
		log.Info("Maintenance scheduler started", zap.Duration("interval", cfg.MaintenanceInterval))
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Conversation layer: append a turn
		api.POST("/sessions/:id/messages", func(c *gin.Context) {
			sessionID := c.Param("id")
			var req struct {
				Role      string    `json:"role" binding:"required"`
				Content   string    `json:"content" binding:"required"`
				Timestamp time.Time `json:"timestamp"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			msg, err := led.AppendMessage(c.Request.Context(), sessionID, req.Role, req.Content, req.Timestamp)
			if err != nil {
				respondError(c, log, err, "Failed to append message")
				return
			}
			c.JSON(http.StatusCreated, msg)
		})

		// Conversation layer: read history
		api.GET("/sessions/:id/messages", func(c *gin.Context) {
			sessionID := c.Param("id")
			var limit int
			if v := c.Query("limit"); v != "" {
				fmt.Sscanf(v, "%d", &limit)
			}
			var before time.Time
			if v := c.Query("before"); v != "" {
				parsed, err := time.Parse(time.RFC3339, v)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "before must be RFC3339"})
					return
				}
				before = parsed
			}

			messages, err := led.ListMessages(c.Request.Context(), sessionID, limit, before)
			if err != nil {
				respondError(c, log, err, "Failed to list messages")
				return
			}
			c.JSON(http.StatusOK, gin.H{"messages": messages})
		})

		// Conversation layer: recent window and summary
		api.GET("/sessions/:id/recent", func(c *gin.Context) {
			n := 0
			if v := c.Query("n"); v != "" {
				fmt.Sscanf(v, "%d", &n)
			}
			messages, err := led.Recent(c.Request.Context(), c.Param("id"), n)
			if err != nil {
				respondError(c, log, err, "Failed to get recent messages")
				return
			}
			c.JSON(http.StatusOK, gin.H{"messages": messages})
		})

		api.GET("/sessions/:id", func(c *gin.Context) {
			count, err := led.MessageCount(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, log, err, "Failed to count messages")
				return
			}
			c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "message_count": count})
		})

		// The only caller-facing cascade delete
		api.DELETE("/sessions/:id", func(c *gin.Context) {
			if err := led.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
				respondError(c, log, err, "Failed to delete session")
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Extraction layer: notes and entities
		api.POST("/notes", func(c *gin.Context) {
			var req struct {
				ID       string   `json:"id"`
				Content  string   `json:"content" binding:"required"`
				Entities []string `json:"entities"`
				Tags     []string `json:"tags"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			note, err := noteSvc.CreateNote(c.Request.Context(), req.ID, req.Content, req.Entities, req.Tags)
			if err != nil {
				respondError(c, log, err, "Failed to create note")
				return
			}
			c.JSON(http.StatusCreated, note)
		})

		api.POST("/entities", func(c *gin.Context) {
			var req struct {
				ID   string `json:"id"`
				Name string `json:"name" binding:"required"`
				Type string `json:"type"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			entity, err := noteSvc.CreateEntity(c.Request.Context(), req.ID, req.Name, req.Type)
			if err != nil {
				respondError(c, log, err, "Failed to create entity")
				return
			}
			c.JSON(http.StatusCreated, entity)
		})

		api.POST("/entities/:id/related", func(c *gin.Context) {
			var req struct {
				OtherID string `json:"other_id" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if err := noteSvc.RelateEntities(c.Request.Context(), c.Param("id"), req.OtherID); err != nil {
				respondError(c, log, err, "Failed to relate entities")
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "related"})
		})

		api.POST("/categories", func(c *gin.Context) {
			var req struct {
				Name string `json:"name" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			category, err := noteSvc.CreateCategory(c.Request.Context(), req.Name)
			if err != nil {
				respondError(c, log, err, "Failed to create category")
				return
			}
			c.JSON(http.StatusCreated, category)
		})

		api.POST("/notes/:id/category", func(c *gin.Context) {
			var req struct {
				Category string `json:"category" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if err := noteSvc.AssignNoteToCategory(c.Request.Context(), c.Param("id"), req.Category); err != nil {
				respondError(c, log, err, "Failed to assign category")
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "assigned"})
		})

		// Generic node delete; refuses referenced nodes unless cascade is set
		api.DELETE("/nodes/:id", func(c *gin.Context) {
			cascade := c.Query("cascade") == "true"
			if err := store.DeleteNode(c.Request.Context(), c.Param("id"), cascade); err != nil {
				respondError(c, log, err, "Failed to delete node")
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Maintenance/ops surface
		api.GET("/ops/analyze", func(c *gin.Context) {
			report, err := dispatcher.Dispatch(c.Request.Context(), maintenance.Command{Op: maintenance.OpAnalyze})
			if err != nil {
				respondError(c, log, err, "Failed to analyze graph")
				return
			}
			c.JSON(http.StatusOK, report)
		})

		api.POST("/ops", func(c *gin.Context) {
			var cmd maintenance.Command
			if err := c.ShouldBindJSON(&cmd); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			report, err := dispatcher.Dispatch(c.Request.Context(), cmd)
			if err != nil {
				respondError(c, log, err, "Maintenance command failed")
				return
			}
			c.JSON(http.StatusOK, report)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopMaintenance()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// respondError maps the error taxonomy onto HTTP statuses
func respondError(c *gin.Context, log *zap.Logger, err error, msg string) {
	switch {
	case errors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.IsReferential(err), errors.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.IsRetryable(err):
		log.Error(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		log.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
