// Package server exposes the price snapshot over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/runesync/internal/dashboard"
	"github.com/rewired-gh/runesync/internal/logger"
	"github.com/rewired-gh/runesync/internal/models"
)

// SnapshotProvider builds snapshots for the tracked item.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, item models.TrackedItem) (*models.Snapshot, error)
}

// Refresher triggers an out-of-schedule refresh.
type Refresher interface {
	RefreshNow(ctx context.Context) (bool, error)
}

// Server serves the snapshot API.
type Server struct {
	snapshots SnapshotProvider
	refresher Refresher
	item      models.TrackedItem
	http      *http.Server
}

// New builds the router. mode is a gin mode ("debug", "release" or "test").
// refresher may be nil, in which case POST /api/refresh is not registered.
// Request contexts derive from ctx, so cancelling it abandons in-flight
// refreshes.
func New(ctx context.Context, addr, mode string, snapshots SnapshotProvider, refresher Refresher, item models.TrackedItem) *Server {
	gin.SetMode(mode)
	s := &Server{snapshots: snapshots, refresher: refresher, item: item}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := r.Group("/api")
	{
		api.GET("/snapshot", s.getSnapshot)
		if refresher != nil {
			api.POST("/refresh", s.refresh)
		}
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server fails or is shut down.
func (s *Server) ListenAndServe() error {
	logger.Info("HTTP server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type snapshotResponse struct {
	*models.Snapshot
	Title           string `json:"title"`
	FormattedPrice  string `json:"formatted_price"`
	FormattedDaily  string `json:"formatted_daily_change"`
	FormattedWeekly string `json:"formatted_weekly_change"`
}

func (s *Server) getSnapshot(c *gin.Context) {
	snap, err := s.snapshots.GetSnapshot(c.Request.Context(), s.item)
	switch {
	case errors.Is(err, models.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_data", "message": "no price has been fetched yet"})
		return
	case errors.Is(err, models.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_item", "message": err.Error()})
		return
	case err != nil:
		logger.Error("Failed to build snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, snapshotResponse{
		Snapshot:        snap,
		Title:           dashboard.ProperTitle(snap.Item.Name),
		FormattedPrice:  dashboard.FormatPrice(snap.Latest.Price),
		FormattedDaily:  dashboard.FormatChange(snap.DailyChange),
		FormattedWeekly: dashboard.FormatChange(snap.WeeklyChange),
	})
}

func (s *Server) refresh(c *gin.Context) {
	ran, err := s.refresher.RefreshNow(c.Request.Context())
	switch {
	case !ran && errors.Is(err, models.ErrItemNotFound):
		c.JSON(http.StatusConflict, gin.H{"error": "unknown_item", "message": err.Error()})
	case !ran && err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": err.Error()})
	case !ran:
		c.JSON(http.StatusAccepted, gin.H{"status": "in_flight"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed", "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
