// Command orrery-cli prints comet, planet, mission and satellite positions
// without running the service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagTime     string
	flagJSON     bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "orrery-cli",
	Short: "Offline queries against the orrery models",
	Long: `Compute positions with the same models the orrery service uses.

Examples:
  orrery-cli comet halley --time 1986-02-09T00:00:00Z
  orrery-cli body --time 2026-01-03T00:00:00Z
  orrery-cli mission artemis-1 --time 2022-11-28T00:00:00Z
  orrery-cli satellite 25544 --tle-file stations.txt --lat 40.7 --lon -74
  orrery-cli clock --speed 3600 --frames 5`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTime, "time", "", "simulation time, RFC 3339 (default now)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// queryTime parses --time, defaulting to now.
func queryTime() (time.Time, error) {
	if flagTime == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, flagTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --time %q, must be RFC 3339", flagTime)
	}
	return t.UTC(), nil
}

func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flagLogLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// emit prints v as indented JSON when --json is set, otherwise calls text.
func emit(w io.Writer, v any, text func(io.Writer)) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
