// Package tradehttp exposes the read-only trade history API.
package tradehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradedesk/internal/logger"
	"tradedesk/internal/reconcile"
	"tradedesk/internal/types"

	"github.com/gin-gonic/gin"
)

// TradeService is the part of the reconciler the handlers use.
type TradeService interface {
	FetchRange(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
	CachedRanges(ctx context.Context, source string) ([]types.CachedRange, error)
	Clear(ctx context.Context) error
	Sources() []string
	CacheEnabled() bool
}

// Server 提供 /api 查询接口。
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr            string
	Service         TradeService
	DefaultSource   string
	DefaultLookback time.Duration
	// Now is used for the default window end; tests pin it.
	Now func() time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("trade service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": cfg.Service.CacheEnabled()})
	})
	h := newHandler(cfg)
	h.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
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

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] 监听 %s", s.addr)

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
