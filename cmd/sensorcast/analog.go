package main

import (
	"context"
	"fmt"

	"github.com/tunogya/sensorcast/pkg/analog"
	"github.com/tunogya/sensorcast/pkg/config"
	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/feature"
	"github.com/tunogya/sensorcast/pkg/rerank"
	"github.com/tunogya/sensorcast/pkg/store/milvus"
)

// openAnalogs connects to Milvus and prepares the window collection
func openAnalogs(ctx context.Context, cfg *config.Config, reader data.SampleReader) (*analog.Service, *milvus.WindowIndex, func() error, error) {
	mc, err := milvus.NewClient(ctx, milvus.Config{
		Address:  cfg.MilvusAddr,
		Username: cfg.MilvusUser,
		Password: cfg.MilvusPassword,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := mc.EnsureCollection(ctx, milvus.DefaultCollectionConfig(feature.EmbeddingDim)); err != nil {
		mc.Close()
		return nil, nil, nil, fmt.Errorf("failed to prepare milvus collection: %w", err)
	}

	app.log.Info("connected to milvus", "addr", mc.Address(), "collection", milvus.DefaultCollectionName)

	decay := rerank.DefaultTimeDecayConfig()
	if cfg.AnalogDecay == config.DecaySegments {
		decay = rerank.SegmentConfig()
	}
	index := milvus.NewWindowIndex(mc, milvus.DefaultCollectionName)
	svc := analog.New(index, reader,
		analog.WithLogger(app.log),
		analog.WithReranker(rerank.NewReranker(decay)),
	)
	return svc, index, mc.Close, nil
}
