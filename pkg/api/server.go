// Package api exposes ingestion, history, forecasts and model management over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tunogya/sensorcast/pkg/analog"
	"github.com/tunogya/sensorcast/pkg/live"
	"github.com/tunogya/sensorcast/pkg/metrics"
	"github.com/tunogya/sensorcast/pkg/model"
)

// Store persists samples and exposes training history
type Store interface {
	InsertSample(ctx context.Context, s model.Sample) (model.Sample, error)
	Runs(ctx context.Context, sensor model.SensorKind, limit int) ([]model.TrainingRun, error)
	Ping(ctx context.Context) error
}

// Aggregator produces bucketed history
type Aggregator interface {
	Aggregate(ctx context.Context, sensor model.SensorKind, r model.TimeRange) ([]model.TimeBucket, error)
}

// Predictor forecasts sensor values and manages per-sensor models
type Predictor interface {
	Predict(ctx context.Context, sensor model.SensorKind, horizons []int) (*model.Forecast, error)
	Clear(sensor model.SensorKind) bool
	ClearAll() int
	Status() []model.ModelStatus
}

// AnalogSearcher finds similar past contexts
type AnalogSearcher interface {
	Search(ctx context.Context, sensor model.SensorKind, q analog.Query) (*analog.Result, error)
}

// Publisher forwards ingested samples to a downstream transport
type Publisher interface {
	PublishSample(ctx context.Context, s model.Sample) error
}

// Server holds the HTTP handlers and their dependencies
type Server struct {
	store      Store
	agg        Aggregator
	predictor  Predictor
	analogs    AnalogSearcher
	hub        *live.Hub
	publishers []Publisher
	metrics    *metrics.Metrics
	limiter    *sourceLimiter
	token      string
	now        func() time.Time
	log        *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAnalogs enables GET /analogs/{sensor}
func WithAnalogs(a AnalogSearcher) Option {
	return func(s *Server) { s.analogs = a }
}

// WithHub enables the /ws-metrics live stream
func WithHub(h *live.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithPublishers adds transports that receive every ingested sample
func WithPublishers(p ...Publisher) Option {
	return func(s *Server) { s.publishers = append(s.publishers, p...) }
}

// WithMetrics records request metrics and exposes GET /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimit sets the per-source ingest rate (events/s) and burst
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = newSourceLimiter(perSecond, burst) }
}

// WithClock overrides the ingest timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a server. token guards every route except /health and /metrics.
func New(store Store, agg Aggregator, predictor Predictor, token string, opts ...Option) *Server {
	s := &Server{
		store:     store,
		agg:       agg,
		predictor: predictor,
		token:     token,
		limiter:   newSourceLimiter(20, 40),
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "api")
	return s
}

// Handler builds the routed handler with recovery and CORS applied
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	p := r.NewRoute().Subrouter()
	p.Use(s.authenticate)

	p.HandleFunc("/metric", s.createSample).Methods(http.MethodPost)
	p.HandleFunc("/metrics/history", s.history).Methods(http.MethodGet)
	if s.hub != nil {
		p.Handle("/ws-metrics", s.hub).Methods(http.MethodGet)
	}

	p.HandleFunc("/predict/{sensor}", s.predict).Methods(http.MethodGet)
	p.HandleFunc("/models", s.models).Methods(http.MethodGet)
	p.HandleFunc("/models/clear", s.clearModels).Methods(http.MethodPost)
	p.HandleFunc("/models/clear/{sensor}", s.clearModel).Methods(http.MethodPost)
	p.HandleFunc("/models/{sensor}/runs", s.runs).Methods(http.MethodGet)
	p.HandleFunc("/analogs/{sensor}", s.searchAnalogs).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", tokenHeader}),
	)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
	)(cors(r))
}

type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("handler panic", "error", fmt.Sprint(v...))
}
