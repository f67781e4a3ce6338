package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

// SnapshotSource is satisfied by *bundlecore.Watcher.
type SnapshotSource interface {
	Snapshot() bundlecore.Snapshot
}

// History lists stored results, newest first.
type History interface {
	List(ctx context.Context, limit int) ([]bundlecore.Result, error)
}

// Lookup reports the stored status of one attempt.
type Lookup interface {
	Status(ctx context.Context, attemptID string) (bundlecore.OutcomeStatus, bool, error)
}

type Server struct {
	source  SnapshotSource
	history History
	lookup  Lookup
	logger  zerolog.Logger
	started time.Time
}

// NewServer builds the status server. history may be nil.
func NewServer(source SnapshotSource, history History, logger zerolog.Logger) *Server {
	return &Server{
		source:  source,
		history: history,
		logger:  logger.With().Str("component", "status").Logger(),
		started: time.Now(),
	}
}

// WithLookup enables GET /results/:id.
func (s *Server) WithLookup(l Lookup) *Server {
	s.lookup = l
	return s
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.getHealth)
	router.GET("/status", s.getStatus)
	if s.history != nil {
		router.GET("/results", s.getResults)
	}
	if s.lookup != nil {
		router.GET("/results/:id", s.getResultStatus)
	}
	return router
}

func (s *Server) RunWithContext(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "uptime": time.Since(s.started).Round(time.Second).String()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Snapshot())
}

func (s *Server) getResults(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	res, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

func (s *Server) getResultStatus(c *gin.Context) {
	id := c.Param("id")
	st, ok, err := s.lookup.Status(c.Request.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("attempt", id).Msg("result status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read result"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown attempt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attemptId": id, "bundleStatus": st, "success": st == bundlecore.Included})
}
