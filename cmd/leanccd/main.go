// Command leanccd runs a standalone concurrency-control core: a pool of
// WorkerContexts sharing one commit-timestamp oracle and one watermark
// tracker, durable version storage backed by Pebble, and a Prometheus
// metrics endpoint. It exists to exercise the mvcc package end to end the
// way a real embedding would drive it, not as a network-facing server.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leancc/leancc/cfg"
	"github.com/leancc/leancc/clock"
	"github.com/leancc/leancc/history"
	"github.com/leancc/leancc/mvcc"
	"github.com/leancc/leancc/telemetry"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).With().Timestamp().Logger()
	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("leancc concurrency-control core")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	log.Info().Msg("Opening version store")
	pebbleDB, err := pebble.Open(filepath.Join(cfg.Config.DataDir, "versions"), &pebble.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open version store")
		return
	}
	defer pebbleDB.Close()

	log.Info().Msg("Starting concurrency-control core")
	oracle := clock.NewOracle(0)
	cc := mvcc.New(mvcc.Config{
		EnableGC:             cfg.Config.MVCC.EnableGC,
		EnableEagerGC:        cfg.Config.MVCC.EnableEagerGC,
		EnableLongRunningTx:  cfg.Config.MVCC.EnableLongRunningTx,
		GCProbabilisticGateN: cfg.Config.MVCC.GCProbabilisticGateN,
	}, oracle, mvcc.NoopTreeRegistry{})

	workers := make([]*mvcc.WorkerContext, cfg.Config.MVCC.WorkerCount)
	for i := range workers {
		store := history.NewPebbleStore(pebbleDB, uint64(i))
		workers[i] = cc.RegisterWorker(uint64(i), cfg.Config.MVCC.CommitLogCapacity, cfg.Config.MVCC.WorkerCount, store)
	}
	log.Info().Int("worker_count", len(workers)).Msg("Registered workers")

	log.Info().Msg("Starting garbage collection loop")
	gcStop := make(chan struct{})
	gcInterval := time.Duration(cfg.Config.MVCC.GCIntervalSeconds) * time.Second
	go gcLoop(cc, workers, gcInterval, gcStop)
	defer close(gcStop)

	collector := telemetry.NewMetricsCollector(cc, gcInterval)
	collector.Start()
	defer collector.Stop()

	if cfg.Config.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.GetMetricsHandler())
		addr := fmt.Sprintf("%s:%d", cfg.Config.Prometheus.Address, cfg.Config.Prometheus.Port)
		httpServer := &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Info().Str("addr", addr).Msg("Serving metrics")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer httpServer.Close()
	}

	log.Info().
		Str("data_dir", cfg.Config.DataDir).
		Int("worker_count", len(workers)).
		Msg("leancc is operational")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutdown signal received, stopping")
}

// gcLoop periodically drives GarbageCollection on every registered worker.
// Grounded on db/mvcc_transaction.go's gcLoop, which ticks a single
// TransactionManager's GC on an interval derived from configuration rather
// than being triggered inline from every commit.
func gcLoop(cc *mvcc.ConcurrencyControl, workers []*mvcc.WorkerContext, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, w := range workers {
				cc.GarbageCollection(w)
			}
		case <-stop:
			return
		}
	}
}
