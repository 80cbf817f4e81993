package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentryhost/guardian/pkg/guardian"
	"github.com/sentryhost/guardian/pkg/version"
	log "github.com/sirupsen/logrus"
)

// StatusProvider is the loop's read-only snapshot; no mutation surface is
// exposed over HTTP.
type StatusProvider interface {
	Status() guardian.Status
}

// Server exposes the guardian status to operators and the external
// aggregation service.
type Server struct {
	config   Config
	provider StatusProvider
	logger   *log.Logger
	httpSrv  *http.Server
}

func NewServer(config Config, provider StatusProvider, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:   config,
		provider: provider,
		logger:   logger,
	}

	router.GET("/status", s.getStatus)
	router.GET("/healthz", s.getHealthz)

	s.httpSrv = &http.Server{
		Addr:    config.ListenAddr,
		Handler: router,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Infof("status server listening on %s", s.config.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Status())
}

func (s *Server) getHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.GetVersionOnly(),
	})
}
