package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/tunogya/sensorcast/pkg/window"
)

var backfillFlags struct {
	csvPath   string
	sensor    string
	batchSize int
	index     bool
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load samples from a CSV file into the store",
	Long: `Load samples from a CSV file with a timestamp,sensor,source,value header.
Timestamps may be RFC3339 or unix milliseconds. With --index and MILVUS_ADDR set,
the context windows are also written to the analog index.`,
	RunE: runBackfill,
}

func init() {
	f := backfillCmd.Flags()
	f.StringVar(&backfillFlags.csvPath, "csv", "", "path to CSV file (required)")
	f.StringVar(&backfillFlags.sensor, "sensor", "", "only load this sensor kind")
	f.IntVar(&backfillFlags.batchSize, "batch", 1000, "samples per insert transaction")
	f.BoolVar(&backfillFlags.index, "index", true, "index context windows in Milvus when configured")
	backfillCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	log := app.log
	ctx := cmd.Context()

	bcfg := data.DefaultBackfillConfig()
	bcfg.BatchSize = backfillFlags.batchSize
	if backfillFlags.sensor != "" {
		sensor, err := model.ParseSensorKind(backfillFlags.sensor)
		if err != nil {
			return err
		}
		bcfg.Sensor = sensor
	}

	log.Info("loading samples", "path", backfillFlags.csvPath)
	samples, err := data.NewCSVProvider(backfillFlags.csvPath).Samples()
	if err != nil {
		return err
	}
	log.Info("loaded samples", "count", len(samples))

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	start := time.Now()
	err = data.Backfill(ctx, samples, repo, bcfg, func(p data.BackfillProgress) {
		log.Info("backfill progress", "processed", p.ProcessedSamples, "total", p.TotalSamples)
	})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	log.Info("samples stored", "elapsed", time.Since(start).Round(time.Millisecond))

	if !backfillFlags.index || cfg.MilvusAddr == "" {
		return nil
	}

	svc, index, closeMilvus, err := openAnalogs(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeMilvus()

	bySensor := make(map[model.SensorKind][]model.Sample)
	for _, s := range samples {
		if bcfg.Sensor == "" || s.Sensor == bcfg.Sensor {
			bySensor[s.Sensor] = append(bySensor[s.Sensor], s)
		}
	}
	for _, sensor := range model.SensorKinds() {
		series := bySensor[sensor]
		if len(series) == 0 {
			continue
		}
		pairs := window.NewBuilder(window.DefaultConfig(sensor)).Pairs(series)
		if err := svc.IndexWindows(ctx, sensor, pairs); err != nil {
			return err
		}
		log.Info("windows indexed", "sensor", sensor, "windows", len(pairs))
	}
	if err := index.Flush(ctx); err != nil {
		log.Warn("failed to flush milvus", "error", err)
	}
	return nil
}
