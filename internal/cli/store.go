package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
	"github.com/calvinalkan/bucketcache/pkg/cachesink"
	"github.com/calvinalkan/bucketcache/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// addStoreFlags registers the flags read by openStore.
func addStoreFlags(fs *flag.FlagSet) {
	fs.Duration("sweep-interval", 0, "Override the configured sweep interval (e.g. 500ms)")
	fs.String("stats-file", "", "Write a JSON stats snapshot to this file after every sweep")
	fs.String("redis-url", "", "Publish stats to Redis (redis://host:port/db)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// openStore builds a store from the resolved config and the sink flags. The
// returned close func stops the store and every sink resource it opened.
func openStore(ctx context.Context, a *app, fs *flag.FlagSet) (*bucketcache.Store, func() error, error) {
	var (
		sinks   []bucketcache.Sink
		closers []func() error
	)

	closeAll := func() error {
		var errs []error

		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}

		return errors.Join(errs...)
	}

	sinks = append(sinks, bucketcache.LogSink{Logger: a.logger, Level: slog.LevelDebug})

	if path, _ := fs.GetString("stats-file"); path != "" {
		sinks = append(sinks, cachesink.FileSink{Path: path})
	}

	if url, _ := fs.GetString("redis-url"); url != "" {
		client, err := cachesink.ConnectRedis(ctx, url)
		if err != nil {
			return nil, nil, err
		}

		closers = append(closers, client.Close)
		sinks = append(sinks, cachesink.NewRedisSink(client, "", 0))
	}

	if addr, _ := fs.GetString("metrics-addr"); addr != "" {
		prom := cachesink.NewPrometheusSink("")
		reg := prometheus.NewRegistry()
		reg.MustRegister(prom)

		stop, err := serveMetrics(addr, reg, a.logger)
		if err != nil {
			_ = closeAll()

			return nil, nil, err
		}

		closers = append(closers, stop)
		sinks = append(sinks, prom)
	}

	storeOpts := []bucketcache.StoreOption{
		bucketcache.WithConfig(a.cfg),
		bucketcache.WithLogger(a.logger),
		bucketcache.WithSink(cachesink.Multi(sinks...)),
	}

	if interval, _ := fs.GetDuration("sweep-interval"); interval > 0 {
		storeOpts = append(storeOpts, bucketcache.WithSweepInterval(interval, time.Duration(a.cfg.SweepJitter)))
	}

	store, err := bucketcache.NewStore(storeOpts...)
	if err != nil {
		_ = closeAll()

		return nil, nil, err
	}

	if err := store.Start(); err != nil {
		_ = closeAll()

		return nil, nil, err
	}

	closers = append(closers, func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return store.Stop(stopCtx)
	})

	return store, closeAll, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logger.Error(err))
		}
	}()

	log.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(ctx)
	}, nil
}
