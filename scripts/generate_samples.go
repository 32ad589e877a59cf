package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type profile struct {
	sensor    string
	base      float64
	amplitude float64
	noise     float64
	min, max  float64
}

var profiles = []profile{
	{sensor: "temperature", base: 21, amplitude: 4, noise: 0.3, min: -40, max: 85},
	{sensor: "humidity", base: 55, amplitude: -12, noise: 1.5, min: 0, max: 100},
	{sensor: "light", base: 300, amplitude: 300, noise: 20, min: 0, max: 100000},
}

func main() {
	days := flag.Int("days", 7, "Days of history to generate")
	interval := flag.Duration("interval", 5*time.Minute, "Time between samples")
	source := flag.String("source", "sim-01", "Source device id")
	seed := flag.Uint64("seed", 42, "Random seed")
	output := flag.String("output", "data/samples.csv", "Output CSV file path")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	file, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// header matches CSVProvider
	writer.Write([]string{"timestamp", "sensor", "source", "value"})

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	end := time.Now().UTC().Truncate(*interval)
	start := end.Add(-time.Duration(*days) * 24 * time.Hour)

	rows := 0
	for ts := start; !ts.After(end); ts = ts.Add(*interval) {
		// peaks mid-afternoon, troughs before dawn
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		phase := math.Sin(2 * math.Pi * (hour - 9) / 24)

		for _, p := range profiles {
			v := p.base + p.amplitude*phase + rng.NormFloat64()*p.noise
			v = math.Min(p.max, math.Max(p.min, v))
			writer.Write([]string{
				ts.Format(time.RFC3339),
				p.sensor,
				*source,
				strconv.FormatFloat(v, 'f', 2, 64),
			})
			rows++
		}
	}

	fmt.Printf("Wrote %d samples (%s to %s) to %s\n", rows, start.Format(time.RFC3339), end.Format(time.RFC3339), *output)
}
