package app

import (
	"context"
	"fmt"
	"net/http"

	"tradedesk/internal/config"
	"tradedesk/internal/logger"
	"tradedesk/internal/reconcile"
	"tradedesk/internal/store/gormstore"
	tradehttp "tradedesk/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化缓存与数据源→启动 HTTP 服务。
type App struct {
	cfg        *config.Config
	reconciler *reconcile.Reconciler
	httpServer *tradehttp.Server
	cache      *gormstore.GormStore
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return NewAppBuilder(cfg).Build(context.Background())
}

// Run 启动 HTTP 服务，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.httpServer == nil {
		return fmt.Errorf("http server not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// Close 释放缓存连接。
func (a *App) Close() {
	if a == nil || a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		logger.Warnf("[app] 关闭缓存失败: %v", err)
	}
	a.cache = nil
}

// Reconciler exposes the trade service (for tests and tooling).
func (a *App) Reconciler() *reconcile.Reconciler {
	if a == nil {
		return nil
	}
	return a.reconciler
}

// Handler exposes the HTTP handler without binding a port.
func (a *App) Handler() http.Handler {
	if a == nil || a.httpServer == nil {
		return nil
	}
	return a.httpServer.Handler()
}
