package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// DefaultCollectionName is the default collection name for sensor context windows
	DefaultCollectionName = "sensor_windows"

	embeddingField = "embedding"
)

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string
	Dimension int // Vector dimension
	Shards    int // Number of shards
}

// DefaultCollectionConfig returns default collection configuration
func DefaultCollectionConfig(dim int) CollectionConfig {
	return CollectionConfig{
		Name:      DefaultCollectionName,
		Dimension: dim,
		Shards:    2,
	}
}

// CreateCollection creates the window collection if it does not exist
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Sensor context window embeddings for analog search",
		Fields: []*entity.Field{
			{
				Name:       "window_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     embeddingField,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", cfg.Dimension),
				},
			},
			{
				Name:     "sensor",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "t_end",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "last_value",
				DataType: entity.FieldTypeDouble,
			},
			{
				Name:     "target",
				DataType: entity.FieldTypeDouble,
			},
		},
	}

	if err := c.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// EnsureCollection creates, indexes and loads the collection
func (c *Client) EnsureCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := c.CreateCollection(ctx, cfg); err != nil {
			return err
		}
		if err := c.CreateIndex(ctx, cfg.Name, embeddingField); err != nil {
			return err
		}
	}
	if err := c.LoadCollection(ctx, cfg.Name); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// WindowData holds one context window for the index
type WindowData struct {
	WindowID  string
	Embedding []float32
	Sensor    string
	TEnd      time.Time
	LastValue float64 // newest value in the context
	Target    float64 // value of the sample that followed the context
}

// WindowIndex reads and writes one window collection
type WindowIndex struct {
	client     *Client
	collection string
}

// NewWindowIndex binds a client to a collection
func NewWindowIndex(client *Client, collection string) *WindowIndex {
	return &WindowIndex{client: client, collection: collection}
}

// Upsert writes windows keyed by window_id, replacing existing entries
func (ix *WindowIndex) Upsert(ctx context.Context, dataList []*WindowData) error {
	if len(dataList) == 0 {
		return nil
	}

	windowIDs := make([]string, len(dataList))
	embeddings := make([][]float32, len(dataList))
	sensors := make([]string, len(dataList))
	tEnds := make([]int64, len(dataList))
	lastValues := make([]float64, len(dataList))
	targets := make([]float64, len(dataList))

	for i, d := range dataList {
		windowIDs[i] = d.WindowID
		embeddings[i] = d.Embedding
		sensors[i] = d.Sensor
		tEnds[i] = d.TEnd.UnixMilli()
		lastValues[i] = d.LastValue
		targets[i] = d.Target
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("window_id", windowIDs),
		entity.NewColumnFloatVector(embeddingField, len(embeddings[0]), embeddings),
		entity.NewColumnVarChar("sensor", sensors),
		entity.NewColumnInt64("t_end", tEnds),
		entity.NewColumnDouble("last_value", lastValues),
		entity.NewColumnDouble("target", targets),
	}

	if _, err := ix.client.conn.Upsert(ctx, ix.collection, "", columns...); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}

	return nil
}

// Flush persists pending writes
func (ix *WindowIndex) Flush(ctx context.Context) error {
	return ix.client.Flush(ctx, ix.collection)
}

// SearchResult represents a single search result
type SearchResult struct {
	WindowID  string
	Score     float32
	Sensor    string
	TEnd      time.Time
	LastValue float64
	Target    float64
}

// Search performs a TopK cosine similarity search restricted by filter
func (ix *WindowIndex) Search(ctx context.Context, embedding []float32, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	outputFields := []string{"window_id", "sensor", "t_end", "last_value", "target"}

	results, err := ix.client.conn.Search(
		ctx,
		ix.collection,
		nil, // partitions
		filter,
		outputFields,
		vectors,
		embeddingField,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	searchResults := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		result := SearchResult{
			Score: results[0].Scores[i],
		}

		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case "window_id":
					result.WindowID = val
				case "sensor":
					result.Sensor = val
				}
			case *entity.ColumnInt64:
				if col.Name() == "t_end" {
					val, _ := col.ValueByIdx(i)
					result.TEnd = time.UnixMilli(val).UTC()
				}
			case *entity.ColumnDouble:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case "last_value":
					result.LastValue = val
				case "target":
					result.Target = val
				}
			}
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// SensorFilter builds the boolean expression selecting one sensor
func SensorFilter(sensor string) string {
	return fmt.Sprintf("sensor == %q", sensor)
}
