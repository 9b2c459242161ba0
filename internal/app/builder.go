package app

import (
	"context"
	"fmt"

	thcfg "tradehook/internal/config"
	"tradehook/internal/logger"
	"tradehook/internal/notifier"
	"tradehook/internal/pipeline"
	"tradehook/internal/store/gormstore"
	"tradehook/internal/store/rawlog"
	"tradehook/internal/symbolcfg"
	"tradehook/internal/tradegroup"
	transporthttp "tradehook/internal/transport/http"
)

// AppBuilder assembles the application. The build funcs can be swapped
// in tests to inject fakes without touching disk or sockets.
type AppBuilder struct {
	cfg *thcfg.Config

	storeFn     func(path string) (*gormstore.GormStore, error)
	rawStoreFn  func(path string) (*rawlog.RawLogStore, error)
	symbolsFn   func(path string) (tradegroup.SymbolConfigLookup, error)
	notifierFn  func() notifier.Notifier
	httpServeFn func(cfg transporthttp.ServerConfig) (*transporthttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *thcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    gormstore.NewGormStore,
		rawStoreFn: rawlog.NewRawLogStore,
		symbolsFn:  buildSymbolLookup,
		notifierFn: func() notifier.Notifier { return notifier.NewLogNotifier() },
		httpServeFn: func(cfg transporthttp.ServerConfig) (*transporthttp.Server, error) {
			return transporthttp.NewServer(cfg)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithSymbolLookup overrides the symbol registry.
func WithSymbolLookup(lookup tradegroup.SymbolConfigLookup) AppBuilderOption {
	return func(b *AppBuilder) {
		b.symbolsFn = func(string) (tradegroup.SymbolConfigLookup, error) {
			return lookup, nil
		}
	}
}

// WithNotifier overrides the notification sink.
func WithNotifier(n notifier.Notifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func() notifier.Notifier { return n }
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg

	store, err := b.storeFn(cfg.Storage.AlertDBPath)
	if err != nil {
		return nil, fmt.Errorf("open alert store: %w", err)
	}

	rawStore, err := b.rawStoreFn(cfg.Storage.RawLogDBPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open raw log store: %w", err)
	}

	symbols, err := b.symbolsFn(cfg.Symbols.Path)
	if err != nil {
		rawStore.Close()
		store.Close()
		return nil, fmt.Errorf("load symbol config: %w", err)
	}

	correlator := tradegroup.NewService(store, symbols)
	processor := pipeline.NewProcessor(store, rawStore, correlator, b.notifierFn())

	router := transporthttp.NewRouter(cfg, processor, store, correlator, rawStore)
	httpSrv, err := b.httpServeFn(transporthttp.ServerConfig{
		Addr:            cfg.Addr(),
		ReadTimeoutSec:  cfg.Server.ReadTimeoutSec,
		WriteTimeoutSec: cfg.Server.WriteTimeoutSec,
		Hooks:           router,
	})
	if err != nil {
		rawStore.Close()
		store.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:       cfg,
		http:      httpSrv,
		store:     store,
		rawStore:  rawStore,
		processor: processor,
	}, nil
}

func buildSymbolLookup(path string) (tradegroup.SymbolConfigLookup, error) {
	if path == "" {
		logger.Infof("no symbols file configured, using default TP/SL level counts")
		return symbolcfg.Static{}, nil
	}
	registry, err := symbolcfg.NewRegistry(path)
	if err != nil {
		return nil, err
	}
	return registry, nil
}
