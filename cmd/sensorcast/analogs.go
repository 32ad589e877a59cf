package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tunogya/sensorcast/pkg/analog"
	"github.com/tunogya/sensorcast/pkg/model"
)

var analogsFlags struct {
	sensor   string
	k        int
	horizons string
	minScore float64
}

var analogsCmd = &cobra.Command{
	Use:   "analogs",
	Short: "Find past contexts similar to a sensor's latest readings",
	RunE:  runAnalogs,
}

func init() {
	f := analogsCmd.Flags()
	f.StringVar(&analogsFlags.sensor, "sensor", "temperature", "sensor kind")
	f.IntVar(&analogsFlags.k, "k", 10, "number of analogs")
	f.StringVar(&analogsFlags.horizons, "horizons", "15,60", "comma-separated outcome horizons in minutes")
	f.Float64Var(&analogsFlags.minScore, "min-score", 0, "drop analogs whose reranked score is lower")
	rootCmd.AddCommand(analogsCmd)
}

func runAnalogs(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	ctx := cmd.Context()
	if cfg.MilvusAddr == "" {
		return errors.New("MILVUS_ADDR is required for analog search")
	}

	sensor, err := model.ParseSensorKind(analogsFlags.sensor)
	if err != nil {
		return err
	}
	var horizons []int
	for _, p := range strings.Split(analogsFlags.horizons, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || h < 1 {
			return fmt.Errorf("invalid horizon %q", p)
		}
		horizons = append(horizons, h)
	}

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, _, closeMilvus, err := openAnalogs(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeMilvus()

	res, err := svc.Search(ctx, sensor, analog.Query{
		K:        analogsFlags.k,
		Horizons: horizons,
		MinScore: analogsFlags.minScore,
	})
	if err != nil {
		return err
	}

	last := res.Context[len(res.Context)-1]
	fmt.Printf("Context: %d samples ending %s (last %.2f)\n\n", len(res.Context), last.Timestamp.Format("2006-01-02 15:04"), last.Value)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tWINDOW\tEND\tSIM\tWEIGHT\tSCORE\tLAST\tNEXT")
	for i, m := range res.Matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.3f\t%.4f\t%.2f\t%.2f\n",
			i+1, m.WindowID, m.TEnd.Format("2006-01-02 15:04"), m.Similarity, m.TimeWeight, m.Score, m.LastValue, m.NextValue)
	}
	tw.Flush()

	fmt.Println("\nForward outcomes:")
	keys := make([]int, 0, len(res.Outcomes))
	for h := range res.Outcomes {
		keys = append(keys, h)
	}
	sort.Ints(keys)
	for _, h := range keys {
		fmt.Println("  " + res.Outcomes[h].String())
	}
	return nil
}
