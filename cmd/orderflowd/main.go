package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fintools-ai/mcp-order-flow-server/internal/bus"
	"github.com/fintools-ai/mcp-order-flow-server/internal/config"
	"github.com/fintools-ai/mcp-order-flow-server/internal/ingest"
	"github.com/fintools-ai/mcp-order-flow-server/internal/journal"
	"github.com/fintools-ai/mcp-order-flow-server/internal/processor"
	"github.com/fintools-ai/mcp-order-flow-server/internal/query"
	"github.com/fintools-ai/mcp-order-flow-server/internal/server"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Logger
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("starting order flow server",
		zap.String("backend", string(cfg.StoreBackend)),
		zap.Int("port", cfg.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Quote Store
	st, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 4. Quote Bus
	quoteBus := bus.New()

	// 5. Journal (optional) with restart replay for the memory backend
	var jnl *journal.Journal
	if cfg.JournalDir != "" {
		jnl = journal.New(cfg.JournalDir, log.Named("journal"))
		defer jnl.Close()

		if cfg.StoreBackend == config.BackendMemory {
			horizonMs := time.Now().UnixMilli() - cfg.QuoteTTLSeconds*1000
			if _, err := journal.Replay(ctx, cfg.JournalDir, st, horizonMs, log.Named("journal")); err != nil {
				log.Warn("journal replay failed", zap.Error(err))
			}
		}
	}

	// 6. Processor Loop
	proc := processor.New(st, cfg, log.Named("processor"))
	go proc.Run(ctx)

	// 7. Store writer: bus -> store, journal, tracked-set admission
	writeCh := quoteBus.Subscribe(1024)
	go func() {
		for q := range writeCh {
			if err := st.AppendQuote(ctx, q); err != nil {
				log.Warn("quote append failed",
					zap.String("ticker", q.Ticker), zap.Error(err))
				continue
			}
			proc.Observe(q.Ticker)
			if jnl != nil {
				jnl.Record(q)
			}
		}
	}()

	// 8. Upstream feed (optional; the publisher may also write the store
	// directly when running against the redis backend)
	if cfg.FeedURL != "" {
		feed := ingest.NewFeed(cfg.FeedURL, quoteBus, log.Named("ingest"))
		feed.Start(ctx)
	}

	// 9. Live quote hub for websocket subscribers
	hub := server.NewHub(log.Named("hub"))
	go hub.Run(ctx, quoteBus.Subscribe(1024))

	// 10. HTTP surface
	coordinator := query.New(st, log.Named("query"))
	srv := server.New(cfg.Port, coordinator, st, hub, log.Named("http"))
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()

	// 11. Shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
		cancel()
		return <-srvErr
	case err := <-srvErr:
		return err
	}
}

func newStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		log.Info("connecting to redis", zap.String("addr", cfg.RedisAddr))
		return store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return store.NewMemory(), nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	return c.Build()
}
