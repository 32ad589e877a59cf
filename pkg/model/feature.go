package model

import "time"

// Prediction is a point forecast for one horizon
type Prediction struct {
	HorizonMinutes int       `json:"horizon_minutes"`
	Value          float64   `json:"value"`
	Timestamp      time.Time `json:"timestamp"`  // now + horizon
	Confidence     float64   `json:"confidence"` // heuristic score in [0, 1], not a statistical interval
}

// Forecast is the result of a prediction request for one sensor
type Forecast struct {
	Sensor       SensorKind         `json:"sensor"`
	Predictions  map[int]Prediction `json:"predictions"`
	ModelTrained *time.Time         `json:"model_trained"`
}

// TrainingRun records a successful training pass
type TrainingRun struct {
	Sensor        SensorKind `json:"sensor"`
	TrainedAt     time.Time  `json:"trained_at"`
	Samples       int        `json:"samples"`        // raw samples read
	Rows          int        `json:"rows"`           // supervised rows built
	TrainRows     int        `json:"train_rows"`
	ValidRows     int        `json:"valid_rows"`
	BestIteration int        `json:"best_iteration"` // boosting rounds kept after early stopping
	ValidRMSE     float64    `json:"valid_rmse"`
}

// ModelStatus describes the in-memory model held for a sensor
type ModelStatus struct {
	Sensor    SensorKind   `json:"sensor"`
	Trained   bool         `json:"trained"`
	TrainedAt *time.Time   `json:"trained_at"`
	Stale     bool         `json:"stale"`
	LastRun   *TrainingRun `json:"last_run,omitempty"`
}
