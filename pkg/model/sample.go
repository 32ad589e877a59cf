package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SensorKind identifies what a sample measures
type SensorKind string

// Supported sensor kinds
const (
	Temperature SensorKind = "temperature"
	Humidity    SensorKind = "humidity"
	Light       SensorKind = "light"
)

// ErrUnknownSensor is returned when a sensor name is not one of the supported kinds
var ErrUnknownSensor = errors.New("unknown sensor")

// SensorKinds lists every supported kind in a stable order
func SensorKinds() []SensorKind {
	return []SensorKind{Temperature, Humidity, Light}
}

// ParseSensorKind validates a sensor name
func ParseSensorKind(s string) (SensorKind, error) {
	k := SensorKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Temperature, Humidity, Light:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSensor, s)
}

// String implements fmt.Stringer
func (k SensorKind) String() string {
	return string(k)
}

// Sample is a single scalar reading reported by a source device
type Sample struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Sensor    SensorKind `json:"sensor"`
	Source    string     `json:"source"` // device id, not tied to sensor kind
	Value     float64    `json:"value"`
}

// Values extracts the values of samples in order
func Values(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// Times extracts the timestamps of samples in order
func Times(samples []Sample) []time.Time {
	out := make([]time.Time, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}

// TimeBucket is the mean of all samples with Start <= ts < Start+duration
type TimeBucket struct {
	Start  time.Time  `json:"timestamp"`
	Value  float64    `json:"value"`
	Sensor SensorKind `json:"sensor"`
	Source string     `json:"source"` // source of the first contributing sample; arbitrary tie-break
}

// TimeRange describes an aggregation query. Nil bounds take defaults.
type TimeRange struct {
	From         *time.Time
	To           *time.Time
	TargetPoints int
}
