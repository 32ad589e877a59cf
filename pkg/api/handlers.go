package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/tunogya/sensorcast/pkg/analog"
	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/forecast"
	"github.com/tunogya/sensorcast/pkg/model"
)

const (
	maxTargetPoints  = 500
	maxHorizon       = 7 * 24 * 60
	defaultRunsLimit = 20
	maxRunsLimit     = 500
	defaultAnalogK   = 10
	maxAnalogK       = 100
	publishTimeout   = 5 * time.Second
)

const invalidHorizons = "Invalid horizons format. Use comma-separated integers."

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func sensorVar(w http.ResponseWriter, r *http.Request) (model.SensorKind, bool) {
	sensor, err := model.ParseSensorKind(mux.Vars(r)["sensor"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sensor, true
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

type sampleRequest struct {
	Source string   `json:"source"`
	Sensor string   `json:"sensor"`
	Value  *float64 `json:"value"`
}

// createSample stores a reading stamped with the server clock, then pushes it
// to live subscribers and configured transports.
func (s *Server) createSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sensor, err := model.ParseSensorKind(req.Sensor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		writeError(w, http.StatusBadRequest, "value must be a finite number")
		return
	}

	now := s.now()
	if !s.limiter.allow(req.Source, now) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	stored, err := s.store.InsertSample(r.Context(), model.Sample{
		Timestamp: now.UTC(),
		Sensor:    sensor,
		Source:    req.Source,
		Value:     *req.Value,
	})
	if err != nil {
		s.log.Error("failed to store sample", "sensor", sensor, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store sample")
		return
	}
	s.metrics.SampleIngested(string(sensor))

	if s.hub != nil {
		if err := s.hub.Broadcast(stored); err != nil {
			s.log.Warn("failed to broadcast sample", "error", err)
		}
	}
	s.publish(r.Context(), stored)

	writeJSON(w, http.StatusCreated, map[string]string{"id": stored.ID})
}

func (s *Server) publish(ctx context.Context, sample model.Sample) {
	if len(s.publishers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, p := range s.publishers {
		if err := p.PublishSample(ctx, sample); err != nil {
			s.log.Warn("failed to publish sample", "sensor", sample.Sensor, "id", sample.ID, "error", err)
		}
	}
}

type historyResponse struct {
	Data  []model.TimeBucket `json:"data"`
	Count int                `json:"count"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sensor, err := model.ParseSensorKind(q.Get("sensor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var tr model.TimeRange
	if tr.From, err = optionalTime(q.Get("from_time")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from_time: "+err.Error())
		return
	}
	if tr.To, err = optionalTime(q.Get("to_time")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_time: "+err.Error())
		return
	}

	tr.TargetPoints = 60
	if v := q.Get("target_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTargetPoints {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("target_points must be an integer between 1 and %d", maxTargetPoints))
			return
		}
		tr.TargetPoints = n
	}

	buckets, err := s.agg.Aggregate(r.Context(), sensor, tr)
	if err != nil {
		s.log.Error("failed to aggregate history", "sensor", sensor, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Data: buckets, Count: len(buckets)})
}

func optionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := data.ParseTimestamp(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseHorizons parses "15,60,360". An empty string selects def.
func parseHorizons(v string, def []int) ([]int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || h < 1 || h > maxHorizon {
			return nil, errors.New(invalidHorizons)
		}
		out = append(out, h)
	}
	return out, nil
}

type predictionBody struct {
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

type forecastBody struct {
	Sensor       model.SensorKind          `json:"sensor"`
	Predictions  map[string]predictionBody `json:"predictions"`
	ModelTrained *time.Time                `json:"model_trained"`
}

type sensorError struct {
	Error  string           `json:"error"`
	Sensor model.SensorKind `json:"sensor"`
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	sensor, ok := sensorVar(w, r)
	if !ok {
		return
	}
	horizons, err := parseHorizons(r.URL.Query().Get("horizons"), forecast.DefaultHorizons)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fc, err := s.predictor.Predict(r.Context(), sensor, horizons)
	if err != nil {
		var ferr *forecast.Error
		if errors.As(err, &ferr) {
			writeJSON(w, http.StatusOK, sensorError{Error: ferr.Error(), Sensor: sensor})
			return
		}
		s.log.Error("prediction failed", "sensor", sensor, "error", err)
		writeJSON(w, http.StatusInternalServerError, sensorError{Error: "prediction failed", Sensor: sensor})
		return
	}

	body := forecastBody{
		Sensor:       fc.Sensor,
		Predictions:  make(map[string]predictionBody, len(fc.Predictions)),
		ModelTrained: fc.ModelTrained,
	}
	for h, p := range fc.Predictions {
		body.Predictions[fmt.Sprintf("%dmin", h)] = predictionBody{
			Value:      p.Value,
			Timestamp:  p.Timestamp,
			Confidence: p.Confidence,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.predictor.Status()})
}

func (s *Server) clearModels(w http.ResponseWriter, r *http.Request) {
	n := s.predictor.ClearAll()
	s.log.Info("models cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]string{"message": "All models cleared successfully"})
}

func (s *Server) clearModel(w http.ResponseWriter, r *http.Request) {
	sensor, ok := sensorVar(w, r)
	if !ok {
		return
	}
	s.predictor.Clear(sensor)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Model for sensor %s cleared successfully", sensor),
	})
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	sensor, ok := sensorVar(w, r)
	if !ok {
		return
	}
	limit, err := boundedInt(r.URL.Query().Get("limit"), defaultRunsLimit, maxRunsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit "+err.Error())
		return
	}

	runs, err := s.store.Runs(r.Context(), sensor, limit)
	if err != nil {
		s.log.Error("failed to load training runs", "sensor", sensor, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load training runs")
		return
	}
	if runs == nil {
		runs = []model.TrainingRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensor": sensor, "runs": runs})
}

func (s *Server) searchAnalogs(w http.ResponseWriter, r *http.Request) {
	if s.analogs == nil {
		writeError(w, http.StatusServiceUnavailable, "analog search is not configured")
		return
	}
	sensor, ok := sensorVar(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	k, err := boundedInt(q.Get("k"), defaultAnalogK, maxAnalogK)
	if err != nil {
		writeError(w, http.StatusBadRequest, "k "+err.Error())
		return
	}
	horizons, err := parseHorizons(q.Get("horizons"), []int{15, 60})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	minScore := 0.0
	if v := q.Get("min_score"); v != "" {
		minScore, err = strconv.ParseFloat(v, 64)
		if err != nil || minScore < 0 || minScore > 1 {
			writeError(w, http.StatusBadRequest, "min_score must be a number between 0 and 1")
			return
		}
	}

	res, err := s.analogs.Search(r.Context(), sensor, analog.Query{K: k, Horizons: horizons, MinScore: minScore})
	if err != nil {
		if errors.Is(err, analog.ErrNotEnoughContext) {
			writeJSON(w, http.StatusUnprocessableEntity, sensorError{Error: err.Error(), Sensor: sensor})
			return
		}
		s.log.Error("analog search failed", "sensor", sensor, "error", err)
		writeJSON(w, http.StatusInternalServerError, sensorError{Error: "analog search failed", Sensor: sensor})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func boundedInt(v string, def, max int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("must be an integer between 1 and %d", max)
	}
	return n, nil
}
