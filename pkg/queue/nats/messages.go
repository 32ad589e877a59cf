package nats

import (
	"encoding/json"
	"fmt"

	"github.com/tunogya/sensorcast/pkg/model"
)

// Subject constants
const (
	SubjectSamplesPrefix = "sensorcast.samples"
	SubjectAllSamples    = SubjectSamplesPrefix + ".*"
)

// SubjectFor returns the subject samples of sensor are published on
func SubjectFor(sensor model.SensorKind) string {
	return SubjectSamplesPrefix + "." + string(sensor)
}

// SampleBatchMsg represents a batch sample write request. Edge devices may
// send several readings per message.
type SampleBatchMsg struct {
	Samples []model.Sample `json:"samples"`
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeSampleBatch deserializes a SampleBatchMsg and validates each sample's sensor
func DecodeSampleBatch(data []byte) (*SampleBatchMsg, error) {
	var msg SampleBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	for i, s := range msg.Samples {
		kind, err := model.ParseSensorKind(string(s.Sensor))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		msg.Samples[i].Sensor = kind
	}
	return &msg, nil
}
