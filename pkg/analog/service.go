// Package analog finds past context windows that resemble the current one and
// reports what the sensor did after them.
package analog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/feature"
	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/tunogya/sensorcast/pkg/outcome"
	"github.com/tunogya/sensorcast/pkg/rerank"
	"github.com/tunogya/sensorcast/pkg/store/milvus"
	"github.com/tunogya/sensorcast/pkg/window"
)

// FeatureVersion tags indexed windows; bump it when the embedding changes
const FeatureVersion = 1

const (
	upsertBatchSize = 1000
	oversample      = 3
	recentLookback  = 24 * time.Hour
)

// ErrNotEnoughContext means there are fewer recent samples than one context window
var ErrNotEnoughContext = errors.New("not enough recent samples for a context window")

// Index is the vector store holding window embeddings
type Index interface {
	Upsert(ctx context.Context, windows []*milvus.WindowData) error
	Search(ctx context.Context, embedding []float32, filter string, topK int) ([]milvus.SearchResult, error)
}

// Service indexes training windows and answers analog queries
type Service struct {
	index     Index
	reader    data.SampleReader
	extractor *feature.Extractor
	reranker  *rerank.Reranker
	outcomes  *outcome.Engine
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithReranker replaces the default time-decay reranker
func WithReranker(r *rerank.Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// New creates a Service
func New(index Index, reader data.SampleReader, opts ...Option) *Service {
	s := &Service{
		index:     index,
		reader:    reader,
		extractor: feature.NewExtractor(FeatureVersion),
		reranker:  rerank.NewReranker(rerank.DefaultTimeDecayConfig()),
		outcomes:  outcome.NewEngine(reader),
		now:       func() time.Time { return time.Now().UTC() },
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "analog")
	return s
}

// IndexWindows upserts the context windows of a training set
func (s *Service) IndexWindows(ctx context.Context, sensor model.SensorKind, pairs []window.Pair) error {
	batch := make([]*milvus.WindowData, 0, min(len(pairs), upsertBatchSize))
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.index.Upsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, p := range pairs {
		emb := s.extractor.Embed(p.Context)
		if emb == nil {
			continue
		}
		last := p.Context.Last()
		batch = append(batch, &milvus.WindowData{
			WindowID:  p.Context.WindowID,
			Embedding: emb,
			Sensor:    string(sensor),
			TEnd:      p.Context.TEnd,
			LastValue: last.Value,
			Target:    p.Target.Value,
		})
		if len(batch) == upsertBatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to index windows: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to index windows: %w", err)
	}

	s.log.Debug("indexed windows", "sensor", sensor, "count", total)
	return nil
}

// Match is one reranked analog window
type Match struct {
	WindowID   string    `json:"window_id"`
	TEnd       time.Time `json:"t_end"`
	Similarity float32   `json:"similarity"`
	TimeWeight float64   `json:"time_weight"`
	Score      float64   `json:"score"`
	LastValue  float64   `json:"last_value"`
	NextValue  float64   `json:"next_value"`
}

// Result is the answer to an analog query
type Result struct {
	Sensor   model.SensorKind                  `json:"sensor"`
	Context  []model.Sample                    `json:"context"`
	Matches  []Match                           `json:"matches"`
	Outcomes map[int]outcome.AggregatedOutcome `json:"outcomes"`
}

// Query selects analogs for one search
type Query struct {
	K        int     // number of analogs, 10 when unset
	Horizons []int   // outcome horizons in minutes
	MinScore float64 // drops matches whose reranked score is lower
}

// Search embeds the latest context of sensor, retrieves the k most similar past
// windows after time-decay reranking and aggregates their forward outcomes.
func (s *Service) Search(ctx context.Context, sensor model.SensorKind, q Query) (*Result, error) {
	k := q.K
	if k <= 0 {
		k = 10
	}
	now := s.now().UTC()

	recent, err := s.reader.ReadSamples(ctx, sensor, now.Add(-recentLookback), now)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent samples: %w", err)
	}
	if len(recent) < window.ContextSize {
		return nil, fmt.Errorf("%w: have %d", ErrNotEnoughContext, len(recent))
	}
	current := model.NewSampleWindow(sensor, window.ContextSize, FeatureVersion, recent[len(recent)-window.ContextSize:])

	hits, err := s.index.Search(ctx, s.extractor.Embed(current), milvus.SensorFilter(string(sensor)), k*oversample)
	if err != nil {
		return nil, fmt.Errorf("failed to search analogs: %w", err)
	}

	// the current context may already be indexed; it has no future yet
	past := hits[:0]
	for _, h := range hits {
		if h.WindowID != current.WindowID && h.TEnd.Before(current.TEnd) {
			past = append(past, h)
		}
	}

	ranked := s.reranker.TopN(past, now, k)
	if q.MinScore > 0 {
		ranked = rerank.FilterByMinScore(ranked, q.MinScore)
	}
	res := &Result{
		Sensor:  sensor,
		Context: current.Samples,
		Matches: make([]Match, 0, len(ranked)),
	}
	anchors := make([]outcome.Anchor, 0, len(ranked))
	for _, r := range ranked {
		res.Matches = append(res.Matches, Match{
			WindowID:   r.WindowID,
			TEnd:       r.TEnd,
			Similarity: r.OriginalScore,
			TimeWeight: r.TimeWeight,
			Score:      r.FinalScore,
			LastValue:  r.LastValue,
			NextValue:  r.Target,
		})
		anchors = append(anchors, outcome.Anchor{WindowID: r.WindowID, Sensor: sensor, TEnd: r.TEnd, Base: r.LastValue})
	}

	results, err := s.outcomes.Calculate(ctx, anchors, q.Horizons)
	if err != nil {
		return nil, err
	}
	res.Outcomes = outcome.AggregateResults(results)

	s.log.Debug("analog search", "sensor", sensor, "hits", len(hits), "matches", len(res.Matches))
	return res, nil
}
