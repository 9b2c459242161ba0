package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradehook/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server exposes the webhook ingress and the read-only query API.
type Server struct {
	addr   string
	router *gin.Engine

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// ServerConfig describes the HTTP server dependencies.
type ServerConfig struct {
	Addr            string
	ReadTimeoutSec  int
	WriteTimeoutSec int

	Hooks *Router
}

// NewServer builds the HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Hooks == nil {
		return nil, errors.New("http server requires a hook router")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	cfg.Hooks.Register(router.Group("/api"))

	s := &Server{addr: cfg.Addr, router: router}
	if cfg.ReadTimeoutSec > 0 {
		s.readTimeout = time.Duration(cfg.ReadTimeoutSec) * time.Second
	}
	if cfg.WriteTimeoutSec > 0 {
		s.writeTimeout = time.Duration(cfg.WriteTimeoutSec) * time.Second
	}
	return s, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
