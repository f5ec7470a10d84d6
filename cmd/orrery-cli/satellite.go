package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orrery/internal/passes"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
)

var (
	flagTLEFile   string
	flagCacheDir  string
	flagModel     string
	flagLat       float64
	flagLon       float64
	flagAltKm     float64
	flagHours     float64
	flagMinEl     float64
	flagMaxPasses int
)

var satelliteCmd = &cobra.Command{
	Use:   "satellite <norad-id>",
	Short: "Propagate one satellite and optionally predict passes",
	Long: `Propagate a satellite from a TLE catalogue file, or from the newest
snapshot in the service's TLE cache directory when --tle-file is not given.

Setting --lat and --lon also predicts passes over that observer.`,
	Args: cobra.ExactArgs(1),
	RunE: runSatellite,
}

func init() {
	rootCmd.AddCommand(satelliteCmd)
	f := satelliteCmd.Flags()
	f.StringVar(&flagTLEFile, "tle-file", "", "TLE catalogue file (2LE or 3LE)")
	f.StringVar(&flagCacheDir, "cache-dir", "/tmp/orrery/tle", "TLE cache directory used when --tle-file is empty")
	f.StringVar(&flagModel, "model", "", "propagation model: simple or sgp4 (default simple, sgp4 for passes)")
	f.Float64Var(&flagLat, "lat", 0, "observer latitude in degrees")
	f.Float64Var(&flagLon, "lon", 0, "observer longitude in degrees")
	f.Float64Var(&flagAltKm, "alt", 0, "observer altitude in km")
	f.Float64Var(&flagHours, "hours", 24, "pass search window in hours")
	f.Float64Var(&flagMinEl, "min-el", 10, "minimum pass elevation in degrees")
	f.IntVar(&flagMaxPasses, "max-passes", 10, "maximum passes to report")
}

func loadDataset(logger *slog.Logger) (*tle.TLEDataset, error) {
	if flagTLEFile == "" {
		return tle.NewCache(flagCacheDir, 0).LoadDataset(flagCacheDir, logger)
	}
	f, err := os.Open(flagTLEFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := tle.Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", flagTLEFile, err)
	}
	return tle.NewDataset(flagTLEFile, time.Now(), entries), nil
}

type satelliteReport struct {
	Model    propagation.Model             `json:"model"`
	Name     string                        `json:"name"`
	TLEEpoch time.Time                     `json:"tle_epoch"`
	Position propagation.SatellitePosition `json:"position"`
	Passes   []passes.PassEvent            `json:"passes,omitempty"`
}

func runSatellite(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr())

	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid NORAD ID %q", args[0])
	}
	t, err := queryTime()
	if err != nil {
		return err
	}
	wantPasses := cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")
	model, err := propagation.ParseModel(flagModel)
	if err != nil {
		return err
	}
	if flagModel == "" && wantPasses {
		model = propagation.ModelSGP4
	}

	ds, err := loadDataset(logger)
	if err != nil {
		return err
	}
	store := tle.NewStore()
	store.Set(ds)
	prop := propagation.NewPropagator(store, nil, propagation.PropConfig{Workers: 1, Model: model}, logger)

	src, entry, err := prop.Source(id, model)
	if err != nil {
		return err
	}
	st, err := src.StateAt(t)
	if err != nil {
		return err
	}

	report := satelliteReport{
		Model:    model,
		Name:     entry.Name,
		TLEEpoch: entry.Epoch,
		Position: propagation.NewSatellitePosition(id, st),
	}

	if wantPasses {
		results := passes.Predict(cmd.Context(), passes.Request{
			Observer:     transform.NewObserverPosition(flagLat, flagLon, flagAltKm),
			Entries:      []tle.TLEEntry{entry},
			Start:        t,
			HorizonHours: flagHours,
			MinElevation: flagMinEl,
			MaxPasses:    flagMaxPasses,
			Source: func(e tle.TLEEntry) (propagation.StateSource, error) {
				s, _, err := prop.Source(e.NORADID, model)
				return s, err
			},
		})
		if results[0].Error != "" {
			return fmt.Errorf("pass prediction: %s", results[0].Error)
		}
		report.Passes = results[0].Passes
	}

	return emit(out, report, func(w io.Writer) {
		fmt.Fprintf(w, "%s (NORAD %d) at %s, model %s\n", entry.Name, id, t.Format(time.RFC3339), model)
		fmt.Fprintf(w, "  TLE epoch %s (%.1f days old)\n", entry.Epoch.Format(time.RFC3339), t.Sub(entry.Epoch).Hours()/24)
		fmt.Fprintf(w, "  lat %.4f  lon %.4f  alt %.1f km  speed %.3f km/s\n", st.Latitude, st.Longitude, st.Altitude, st.Speed)
		if !wantPasses {
			return
		}
		fmt.Fprintf(w, "  %d passes in %.0f h above %.0f°\n", len(report.Passes), flagHours, flagMinEl)
		for i, p := range report.Passes {
			fmt.Fprintf(w, "    pass %d: start=%s maxEl=%.1f° dur=%.0fs\n",
				i, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.DurationSeconds)
		}
	})
}
