package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagTime, flagJSON, flagTLEFile, flagModel = "", false, "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCometCommand(t *testing.T) {
	out, err := run(t, "comet")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1P/Halley") {
		t.Errorf("listing missing Halley:\n%s", out)
	}

	out, err = run(t, "comet", "halley", "--time", "1986-02-09T11:00:00Z", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var p cometPosition
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if p.DistanceAU < 0.58 || p.DistanceAU > 0.59 || !p.Converged {
		t.Errorf("distance %.4f AU converged=%t", p.DistanceAU, p.Converged)
	}

	if _, err := run(t, "comet", "nope"); err == nil {
		t.Error("expected error for unknown comet")
	}
}

func TestMissionCommand(t *testing.T) {
	out, err := run(t, "mission", "artemis-1", "--time", "2020-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no position before launch") || !strings.Contains(out, "next milestone: Launch") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBodyCommand(t *testing.T) {
	out, err := run(t, "body", "earth", "--time", "2026-01-03T12:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "earth") || !strings.Contains(out, "0.98") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSatelliteCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iss.txt")
	data := "ISS (ZARYA)\n" +
		"1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927\n" +
		"2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "satellite", "25544", "--tle-file", path, "--time", "2008-09-20T13:00:00Z", "--model", "sgp4", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var rep satelliteReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if rep.Name != "ISS (ZARYA)" || rep.Position.Altitude < 300 || rep.Position.Altitude > 450 {
		t.Errorf("report = %+v", rep)
	}

	if _, err := run(t, "satellite", "99999", "--tle-file", path); err == nil {
		t.Error("expected error for satellite missing from the file")
	}
}

func TestClockCommand(t *testing.T) {
	out, err := run(t, "clock", "--time", "2022-11-16T00:00:00Z", "--speed", "86400", "--frames", "3", "--interval", "1s", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var frames []struct {
		T          string   `json:"t"`
		Milestones []string `json:"milestones"`
	}
	if err := json.Unmarshal([]byte(out), &frames); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if frames[2].T != "2022-11-18T00:00:00Z" {
		t.Errorf("third frame at %s, want two simulated days later", frames[2].T)
	}
	if len(frames[1].Milestones) == 0 {
		t.Error("launch milestone should be reported in the second frame")
	}
}
