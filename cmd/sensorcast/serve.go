package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tunogya/sensorcast/pkg/aggregate"
	"github.com/tunogya/sensorcast/pkg/api"
	"github.com/tunogya/sensorcast/pkg/forecast"
	"github.com/tunogya/sensorcast/pkg/live"
	"github.com/tunogya/sensorcast/pkg/metrics"
	"github.com/tunogya/sensorcast/pkg/queue/kafka"
	"github.com/tunogya/sensorcast/pkg/queue/nats"
	"golang.org/x/sync/errgroup"
)

var serveFlags struct {
	host string
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API: ingestion, history, live websocket stream, forecasts,
model management and, when MILVUS_ADDR is set, analog search.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "listen host (env HOST)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port (env PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	log := app.log
	if cmd.Flags().Changed("host") {
		cfg.Host = serveFlags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = serveFlags.port
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("store ready", "driver", cfg.StoreDriver)

	m := metrics.New()
	fopts := []forecast.Option{
		forecast.WithLogger(log),
		forecast.WithMetrics(m),
		forecast.WithRunRecorder(repo),
		forecast.WithRetrainInterval(cfg.RetrainInterval),
	}
	sopts := []api.Option{
		api.WithLogger(log),
		api.WithMetrics(m),
		api.WithRateLimit(cfg.IngestRate, cfg.IngestBurst),
	}

	if cfg.MilvusAddr != "" {
		svc, _, closeMilvus, err := openAnalogs(ctx, cfg, repo)
		if err != nil {
			return err
		}
		defer closeMilvus()
		fopts = append(fopts, forecast.WithWindowIndexer(svc))
		sopts = append(sopts, api.WithAnalogs(svc))
		log.Info("analog search enabled", "milvus", cfg.MilvusAddr)
	}

	if cfg.NATSURL != "" {
		nc, err := nats.NewClient(nats.Config{URL: cfg.NATSURL, StreamName: cfg.NATSStream, RetryAttempts: 3, RetryDelay: time.Second})
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := nc.CreateStream(ctx); err != nil {
			return err
		}
		sopts = append(sopts, api.WithPublishers(nc))
		log.Info("publishing samples to NATS", "url", cfg.NATSURL, "stream", cfg.NATSStream)
	}

	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := kafka.NewMirror(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
		if err != nil {
			return err
		}
		defer mirror.Close()
		sopts = append(sopts, api.WithPublishers(mirror))
		log.Info("mirroring samples to Kafka", "brokers", cfg.KafkaBrokers, "topic", mirror.Topic())
	}

	hub := live.NewHub(log)
	sopts = append(sopts, api.WithHub(hub))

	forecaster := forecast.New(repo, fopts...)
	agg := aggregate.New(repo, aggregate.WithLogger(log))
	srv := api.New(repo, agg, forecaster, cfg.AuthToken, sopts...)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		// hijacked websocket connections are not closed by Shutdown
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})

	return g.Wait()
}
