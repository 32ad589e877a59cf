// Package config loads process settings from the environment. Command line
// flags override individual fields after Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Analog rerank decay modes
const (
	DecayExponential = "exponential"
	DecaySegments    = "segments"
)

// Config holds every runtime setting
type Config struct {
	Host      string
	Port      int
	Debug     bool
	LogLevel  string
	LogFormat string
	LogFile   string

	AuthToken string

	StoreDriver string
	StoreDSN    string

	NATSURL    string
	NATSStream string

	KafkaBrokers []string
	KafkaTopic   string

	MilvusAddr     string
	MilvusUser     string
	MilvusPassword string
	AnalogDecay    string

	IngestRate  float64 // requests per second per source
	IngestBurst int

	RetrainInterval time.Duration
}

// Load reads the environment, applying defaults for unset keys
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	rate, err := strconv.ParseFloat(getEnv("INGEST_RATE", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_RATE: %w", err)
	}
	burst, err := strconv.Atoi(getEnv("INGEST_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_BURST: %w", err)
	}
	retrain, err := time.ParseDuration(getEnv("MODEL_RETRAIN_INTERVAL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_RETRAIN_INTERVAL: %w", err)
	}

	cfg := &Config{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            port,
		Debug:           parseBool(getEnv("DEBUG", "false")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		LogFile:         getEnv("LOG_FILE", ""),
		AuthToken:       getEnv("AUTH_TOKEN", ""),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", DriverDuckDB)),
		StoreDSN:        getEnv("STORE_DSN", "sensorcast.duckdb"),
		NATSURL:         getEnv("NATS_URL", ""),
		NATSStream:      getEnv("NATS_STREAM", "sensorcast"),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "sensor-samples"),
		MilvusAddr:      getEnv("MILVUS_ADDR", ""),
		MilvusUser:      getEnv("MILVUS_USER", ""),
		MilvusPassword:  getEnv("MILVUS_PASSWORD", ""),
		AnalogDecay:     strings.ToLower(getEnv("ANALOG_DECAY", DecayExponential)),
		IngestRate:      rate,
		IngestBurst:     burst,
		RetrainInterval: retrain,
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks settings that every command depends on
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverDuckDB, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (want duckdb, postgres or sqlite)", c.StoreDriver)
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.IngestRate <= 0 || c.IngestBurst < 1 {
		return fmt.Errorf("ingest rate and burst must be positive")
	}
	switch c.AnalogDecay {
	case "", DecayExponential, DecaySegments:
	default:
		return fmt.Errorf("unsupported ANALOG_DECAY %q (want exponential or segments)", c.AnalogDecay)
	}
	if c.RetrainInterval <= 0 {
		return fmt.Errorf("MODEL_RETRAIN_INTERVAL must be positive")
	}
	return nil
}

// ValidateServe additionally requires the API token
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required to serve the API")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
