// Package httpapi serves the process-level HTTP surface shared by both
// binaries: Prometheus scraping and a liveness probe. The two processes
// differ only in what "upstream reachable" means, expressed here as an
// injected HealthChecker.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether this process's upstream dependency is
// reachable. The fetcher checks the weather API; the processor pings the
// broker and does not check the store.
type HealthChecker func(ctx context.Context) error

// Server wraps a gin router exposing /metrics and /healthz.
type Server struct {
	router *gin.Engine
	http   *http.Server
	lg     zerolog.Logger
}

// New builds a Server listening on port, using check to answer /healthz.
func New(port string, check HealthChecker, lg zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{
		router: router,
		http:   &http.Server{Addr: ":" + port, Handler: router},
		lg:     lg.With().Str("component", "httpapi").Logger(),
	}
}

// Serve implements suture.Service: it runs the HTTP listener until ctx is
// cancelled, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.lg.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
