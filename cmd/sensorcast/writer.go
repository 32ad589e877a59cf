package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
	"github.com/tunogya/sensorcast/pkg/metrics"
	"github.com/tunogya/sensorcast/pkg/queue/nats"
	"golang.org/x/sync/errgroup"
)

var writerFlags struct {
	consumer    string
	metricsAddr string
}

var writerCmd = &cobra.Command{
	Use:   "writer",
	Short: "Consume samples from NATS JetStream into the store",
	Long: `Consume sample batches published by edge devices on sensorcast.samples.<sensor>
and insert them into the configured store. Redelivered samples keep their ID
and are ignored by the store.`,
	RunE: runWriter,
}

func init() {
	writerCmd.Flags().StringVar(&writerFlags.consumer, "consumer", "sample-writer", "durable consumer name")
	writerCmd.Flags().StringVar(&writerFlags.metricsAddr, "metrics-addr", ":9101", "prometheus listen address, empty to disable")
	rootCmd.AddCommand(writerCmd)
}

func runWriter(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	log := app.log.With("component", "writer")

	url := cfg.NATSURL
	if url == "" {
		url = nats.DefaultConfig().URL
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	nc, err := nats.NewClient(nats.Config{URL: url, StreamName: cfg.NATSStream, RetryAttempts: 10, RetryDelay: 2 * time.Second})
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := nc.CreateStream(ctx); err != nil {
		return err
	}
	log.Info("NATS stream ready", "url", url, "stream", cfg.NATSStream)

	m := metrics.New()
	consumer, err := nc.Subscribe(ctx, nats.SubjectAllSamples, writerFlags.consumer, func(msg jetstream.Msg) error {
		batch, err := nats.DecodeSampleBatch(msg.Data())
		if err != nil {
			log.Warn("failed to decode sample batch", "subject", msg.Subject(), "error", err)
			return err
		}
		if len(batch.Samples) == 0 {
			return nil
		}

		if err := repo.InsertSamples(ctx, batch.Samples); err != nil {
			log.Error("failed to insert samples", "count", len(batch.Samples), "error", err)
			return err
		}
		for _, s := range batch.Samples {
			m.SampleIngested(string(s.Sensor))
		}
		log.Debug("inserted samples", "count", len(batch.Samples), "subject", msg.Subject())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to samples: %w", err)
	}
	defer consumer.Stop()
	log.Info("writer started, waiting for messages", "consumer", writerFlags.consumer)

	g, gctx := errgroup.WithContext(ctx)
	if writerFlags.metricsAddr != "" {
		server := &http.Server{Addr: writerFlags.metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down writer")
		return nil
	})
	return g.Wait()
}
