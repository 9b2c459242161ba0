package app

import (
	"context"
	"fmt"

	thcfg "tradehook/internal/config"
	"tradehook/internal/logger"
	"tradehook/internal/pipeline"
	"tradehook/internal/store/gormstore"
	"tradehook/internal/store/rawlog"
	transporthttp "tradehook/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: load config, wire the
// stores and pipeline, run the HTTP server.
type App struct {
	cfg       *thcfg.Config
	http      *transporthttp.Server
	store     *gormstore.GormStore
	rawStore  *rawlog.RawLogStore
	processor *pipeline.Processor
}

// NewApp builds the application object from config without starting it.
func NewApp(cfg *thcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.http == nil {
		return fmt.Errorf("http server not initialized")
	}
	logger.Infof("tradehook listening on %s", a.http.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer a.closeStores()
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Processor exposes the pipeline for replay harnesses.
func (a *App) Processor() *pipeline.Processor {
	if a == nil {
		return nil
	}
	return a.processor
}

func (a *App) closeStores() {
	if a.rawStore != nil {
		if err := a.rawStore.Close(); err != nil {
			logger.Warnf("close raw log store: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close alert store: %v", err)
		}
	}
}
