package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/timectrl"
)

var (
	flagSpeed    float64
	flagFrames   int
	flagInterval time.Duration
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Step the simulation clock and print scene frames",
	Long: `Advance a simulation clock by --interval of wall time per frame at
--speed, printing the scene built at each simulated instant. Mission
milestones crossed between frames are reported.`,
	Args: cobra.NoArgs,
	RunE: runClock,
}

func init() {
	rootCmd.AddCommand(clockCmd)
	f := clockCmd.Flags()
	f.Float64Var(&flagSpeed, "speed", 86400, "simulated seconds per wall second (negative runs backwards)")
	f.IntVar(&flagFrames, "frames", 10, "number of frames to print")
	f.DurationVar(&flagInterval, "interval", time.Second, "wall time between frames")
}

func runClock(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr())
	if flagFrames < 1 {
		return fmt.Errorf("--frames must be at least 1")
	}
	start, err := queryTime()
	if err != nil {
		return err
	}

	eph, err := celestial.NewMeeusEphemeris(celestial.Config{}, logger)
	if err != nil {
		return err
	}
	builder := scene.NewBuilder(nil, celestial.NewProvider(eph, logger), logger)
	clock := timectrl.New(start, timectrl.WithSpeed(flagSpeed))
	req := scene.Request{Comets: true, Bodies: true, Missions: true}

	frames := make([]scene.Frame, 0, flagFrames)
	prev := clock.Now()
	for i := 0; i < flagFrames; i++ {
		if i > 0 {
			clock.Advance(flagInterval)
		}
		snap := clock.Snapshot()
		f := builder.Build(snap, req)
		f.Milestones = scene.MilestonesBetween(prev, snap.Now)
		prev = snap.Now
		frames = append(frames, f)
	}

	return emit(out, frames, func(w io.Writer) {
		for _, f := range frames {
			fmt.Fprintf(w, "%s  comets=%d bodies=%d missions=%d\n", f.T, len(f.Comets), len(f.Bodies), len(f.Missions))
			for _, m := range f.Milestones {
				fmt.Fprintf(w, "  milestone: %s\n", m)
			}
		}
	})
}
