package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tunogya/sensorcast/pkg/model"
)

// CSVProvider reads samples from a CSV file with a timestamp,sensor,source,value header
type CSVProvider struct {
	filePath string
	samples  []model.Sample
	loaded   bool
}

// NewCSVProvider creates a new CSV-based sample provider
func NewCSVProvider(filePath string) *CSVProvider {
	return &CSVProvider{
		filePath: filePath,
		samples:  make([]model.Sample, 0),
	}
}

// loadIfNeeded loads the CSV file if not already loaded
func (p *CSVProvider) loadIfNeeded() error {
	if p.loaded {
		return nil
	}

	file, err := os.Open(p.filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	if err := p.load(file); err != nil {
		return err
	}
	p.loaded = true
	return nil
}

func (p *CSVProvider) load(r io.Reader) error {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.TrimSpace(col)] = i
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		s, err := parseRecord(record, colMap)
		if err != nil {
			continue // Skip invalid records
		}
		p.samples = append(p.samples, s)
	}

	sort.SliceStable(p.samples, func(i, j int) bool {
		return p.samples[i].Timestamp.Before(p.samples[j].Timestamp)
	})
	return nil
}

// parseRecord parses a CSV record into a Sample
func parseRecord(record []string, colMap map[string]int) (model.Sample, error) {
	getValue := func(name string) string {
		if idx, ok := colMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	ts, err := ParseTimestamp(getValue("timestamp"))
	if err != nil {
		return model.Sample{}, err
	}

	sensor, err := model.ParseSensorKind(getValue("sensor"))
	if err != nil {
		return model.Sample{}, err
	}

	value, err := strconv.ParseFloat(getValue("value"), 64)
	if err != nil {
		return model.Sample{}, fmt.Errorf("invalid value: %w", err)
	}

	return model.Sample{
		Timestamp: ts,
		Sensor:    sensor,
		Source:    getValue("source"),
		Value:     value,
	}, nil
}

// ParseTimestamp accepts RFC3339 (with or without zone) or unix milliseconds and returns UTC
func ParseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	// no zone designator means UTC
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
}

// Samples returns every parsed sample, oldest first
func (p *CSVProvider) Samples() ([]model.Sample, error) {
	if err := p.loadIfNeeded(); err != nil {
		return nil, err
	}
	return p.samples, nil
}

// ReadSamples retrieves samples within the specified time range
func (p *CSVProvider) ReadSamples(ctx context.Context, sensor model.SensorKind, from, to time.Time) ([]model.Sample, error) {
	if err := p.loadIfNeeded(); err != nil {
		return nil, err
	}
	return filterRange(p.samples, sensor, from, to), nil
}

// MemoryProvider implements SampleStore with in-memory storage
type MemoryProvider struct {
	mu      sync.RWMutex
	samples map[model.SensorKind][]model.Sample
}

// NewMemoryProvider creates a new in-memory sample store
func NewMemoryProvider(samples ...model.Sample) *MemoryProvider {
	p := &MemoryProvider{samples: make(map[model.SensorKind][]model.Sample)}
	for _, s := range samples {
		p.add(s)
	}
	return p
}

func (p *MemoryProvider) add(s model.Sample) model.Sample {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Timestamp = s.Timestamp.UTC()
	arr := p.samples[s.Sensor]
	// keep sorted by time; samples usually arrive in order
	idx := sort.Search(len(arr), func(i int) bool { return arr[i].Timestamp.After(s.Timestamp) })
	arr = append(arr, model.Sample{})
	copy(arr[idx+1:], arr[idx:])
	arr[idx] = s
	p.samples[s.Sensor] = arr
	return s
}

// InsertSample adds a sample
func (p *MemoryProvider) InsertSample(ctx context.Context, s model.Sample) (model.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(s), nil
}

// InsertSamples adds samples
func (p *MemoryProvider) InsertSamples(ctx context.Context, samples []model.Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range samples {
		p.add(s)
	}
	return nil
}

// ReadSamples retrieves samples within the specified time range
func (p *MemoryProvider) ReadSamples(ctx context.Context, sensor model.SensorKind, from, to time.Time) ([]model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return filterRange(p.samples[sensor], sensor, from, to), nil
}

// Len returns the number of samples stored for sensor
func (p *MemoryProvider) Len(sensor model.SensorKind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.samples[sensor])
}

func filterRange(samples []model.Sample, sensor model.SensorKind, from, to time.Time) []model.Sample {
	var result []model.Sample
	for _, s := range samples {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		if sensor != "" && s.Sensor != sensor {
			continue
		}
		result = append(result, s)
	}
	return result
}
