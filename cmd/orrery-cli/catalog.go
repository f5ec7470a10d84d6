package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/kepler"
	"github.com/star/orrery/internal/trajectory"
	"github.com/star/orrery/internal/transform"
)

var flagVSOP87Dir string

var cometCmd = &cobra.Command{
	Use:   "comet [id]",
	Short: "List comets or print one comet's heliocentric position",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runComet,
}

var bodyCmd = &cobra.Command{
	Use:   "body [name]",
	Short: "Print planet, Sun and Moon positions from the ephemeris",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBody,
}

var missionCmd = &cobra.Command{
	Use:   "mission [id]",
	Short: "List missions or print a spacecraft position and milestones",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMission,
}

func init() {
	rootCmd.AddCommand(cometCmd, bodyCmd, missionCmd)
	bodyCmd.Flags().StringVar(&flagVSOP87Dir, "vsop87-dir", "", "directory of VSOP87B files (default mean elements)")
}

type cometPosition struct {
	ID          string     `json:"id"`
	T           time.Time  `json:"t"`
	PositionAU  [3]float64 `json:"position_au"`
	DistanceAU  float64    `json:"distance_au"`
	SpeedKmS    float64    `json:"speed_km_s"`
	Iterations  int        `json:"solver_iterations"`
	Converged   bool       `json:"solver_converged"`
	Perihelion  *time.Time `json:"next_perihelion,omitempty"`
	PeriodYears float64    `json:"period_years"`
}

func runComet(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		comets := kepler.Comets()
		return emit(out, comets, func(w io.Writer) {
			for _, c := range comets {
				fmt.Fprintf(w, "%-14s %-28s q=%.3f AU  e=%.4f  P=%.2f y\n",
					c.ID, c.Designation, c.Elements.Perihelion(), c.Elements.E, c.PeriodYears)
			}
		})
	}

	c, ok := kepler.CometByID(args[0])
	if !ok {
		return fmt.Errorf("unknown comet %q", args[0])
	}
	t, err := queryTime()
	if err != nil {
		return err
	}

	st := kepler.Position(c.Elements, t)
	p := cometPosition{
		ID:          c.ID,
		T:           t,
		PositionAU:  [3]float64{st.Position.X, st.Position.Y, st.Position.Z},
		DistanceAU:  st.Radius,
		SpeedKmS:    st.SpeedKmPerSec(),
		Iterations:  st.Solution.Iterations,
		Converged:   st.Solution.Converged,
		PeriodYears: c.PeriodYears,
	}
	if next, ok := c.NextPerihelion(t); ok {
		p.Perihelion = &next
	}
	return emit(out, p, func(w io.Writer) {
		fmt.Fprintf(w, "%s at %s\n", c.Name, t.Format(time.RFC3339))
		fmt.Fprintf(w, "  position  (%.5f, %.5f, %.5f) AU\n", st.Position.X, st.Position.Y, st.Position.Z)
		fmt.Fprintf(w, "  distance  %.5f AU, speed %.3f km/s\n", st.Radius, st.SpeedKmPerSec())
		fmt.Fprintf(w, "  solver    %d iterations, converged=%t\n", st.Solution.Iterations, st.Solution.Converged)
		if p.Perihelion != nil {
			fmt.Fprintf(w, "  next perihelion %s\n", p.Perihelion.Format("2006-01-02"))
		}
	})
}

func runBody(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr())
	t, err := queryTime()
	if err != nil {
		return err
	}
	eph, err := celestial.NewMeeusEphemeris(celestial.Config{VSOP87Dir: flagVSOP87Dir}, logger)
	if err != nil {
		return err
	}
	provider := celestial.NewProvider(eph, logger)

	var positions []celestial.Position
	if len(args) == 0 {
		positions, err = provider.All(t)
		if len(positions) == 0 {
			return err
		}
		if err != nil {
			logger.Warn("some bodies unavailable", "error", err)
		}
	} else {
		body, err := celestial.ParseBody(args[0])
		if err != nil {
			return err
		}
		pos, err := provider.Position(body, t)
		if err != nil {
			return err
		}
		positions = []celestial.Position{pos}
	}

	return emit(out, positions, func(w io.Writer) {
		fmt.Fprintf(w, "heliocentric ecliptic positions at %s\n", t.Format(time.RFC3339))
		for _, p := range positions {
			fmt.Fprintf(w, "  %-8s %9.5f AU  scene (%8.2f, %8.2f, %8.2f)\n",
				p.Body, p.DistanceKm/transform.KmPerAU, p.Scene.X, p.Scene.Y, p.Scene.Z)
		}
	})
}

type missionStatus struct {
	ID         string                 `json:"id"`
	T          time.Time              `json:"t"`
	Available  bool                   `json:"available"`
	PositionKm *[3]float64            `json:"position_km,omitempty"`
	DistanceKm float64                `json:"distance_km,omitempty"`
	Reached    []trajectory.Milestone `json:"reached_milestones,omitempty"`
	Next       *trajectory.Milestone  `json:"next_milestone,omitempty"`
}

func runMission(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		missions := trajectory.Missions()
		return emit(out, missions, func(w io.Writer) {
			for _, m := range missions {
				start, end, _ := m.Trajectory.Span()
				fmt.Fprintf(w, "%-12s %-12s %s to %s, %d milestones\n",
					m.ID, m.Name, start.Format("2006-01-02"), end.Format("2006-01-02"), len(m.Milestones))
			}
		})
	}

	m, ok := trajectory.MissionByID(args[0])
	if !ok {
		return fmt.Errorf("unknown mission %q", args[0])
	}
	t, err := queryTime()
	if err != nil {
		return err
	}

	st := missionStatus{ID: m.ID, T: t, Reached: trajectory.ActiveMilestones(m.Milestones, t)}
	if s, ok := m.Trajectory.PositionAt(t); ok {
		p := [3]float64{s.Position.X, s.Position.Y, s.Position.Z}
		st.Available = true
		st.PositionKm = &p
		st.DistanceKm = s.Distance
	}
	if next, ok := trajectory.NextMilestone(m.Milestones, t); ok {
		st.Next = &next
	}

	return emit(out, st, func(w io.Writer) {
		fmt.Fprintf(w, "%s at %s\n", m.Name, t.Format(time.RFC3339))
		if !st.Available {
			fmt.Fprintln(w, "  no position before launch")
		} else {
			fmt.Fprintf(w, "  geocentric distance %.0f km (%.2f lunar distances)\n", st.DistanceKm, st.DistanceKm/384400)
		}
		if n := len(st.Reached); n > 0 {
			fmt.Fprintf(w, "  last milestone: %s\n", st.Reached[n-1].Name)
		}
		if st.Next != nil {
			fmt.Fprintf(w, "  next milestone: %s in %s\n", st.Next.Name, st.Next.Time.Sub(t).Round(time.Minute))
		}
	})
}
