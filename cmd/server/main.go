// Command server runs the debug-bundle administrative HTTP service: it
// loads configuration, wires a KV store (Redis if reachable, otherwise
// an in-memory fallback), and serves the initiate/cancel/status/path/
// delete surface over REST plus a live status WebSocket feed.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/backend/internal/api"
	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/debugbundle"
	"github.com/ocx/backend/internal/debugbundle/shard"
	"github.com/ocx/backend/internal/debugbundle/store"
	wsstream "github.com/ocx/backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("server: no .env file found, relying on process environment")
	}

	cfg := config.Get()
	slog.Info("server: starting debug-bundle service", "env", cfg.Server.Env, "port", cfg.Server.Port)

	kv := newKV(cfg)
	router := shard.New()
	liveCfg := debugbundle.NewLiveConfig(cfg.DebugBundle)
	metrics := debugbundle.NewMetrics(prometheus.DefaultRegisterer)
	bus := debugbundle.NewStatusBus()

	svc := debugbundle.New(router, liveCfg, kv, metrics, bus)

	stopWatch := config.Watch(config.Path(), func(reloaded *config.Config) {
		liveCfg.Set(reloaded.DebugBundle)
	})
	defer stopWatch()

	streamer := wsstream.NewStatusStreamer()
	go streamer.Run()
	go api.PumpStatusEvents(bus, streamer)

	server := api.NewServer(svc, streamer)

	addr := net.JoinHostPort("", cfg.Server.Port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("server: listener stopped", "error", err)
		}
	}()

	waitForShutdownSignal()

	slog.Info("server: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	svc.Shutdown(ctx)

	if closer, ok := kv.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("server: kv store close failed", "error", err)
		}
	}
}

func newKV(cfg *config.Config) store.KV {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		slog.Info("server: REDIS_ADDR not set, using in-memory store")
		return store.NewMemStore()
	}

	rdb, err := store.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		slog.Warn("server: redis unavailable, falling back to in-memory store", "error", err)
		return store.NewMemStore()
	}
	return rdb
}

func waitForShutdownSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
