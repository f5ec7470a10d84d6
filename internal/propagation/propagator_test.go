package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// ISS-like TLE at 15.5 rev/day (~420 km).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// Starlink TLE (typical LEO constellation satellite).
const (
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

var issEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testStore(entries ...tle.TLEEntry) *tle.Store {
	s := tle.NewStore()
	s.Set(tle.NewDataset("test", time.Now(), entries))
	return s
}

var (
	issEntry      = tle.TLEEntry{NORADID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2}
	starlinkEntry = tle.TLEEntry{NORADID: 44713, Name: "STARLINK-1007", Line1: starlinkLine1, Line2: starlinkLine2}
)

func TestSimplePropagatorISS(t *testing.T) {
	el := tle.ParseElements(issLine1, issLine2)
	if !el.Epoch.Equal(issEpoch) {
		t.Fatalf("epoch = %v, want %v", el.Epoch, issEpoch)
	}

	for _, dt := range []time.Duration{0, 17 * time.Minute, 3 * time.Hour, 36 * time.Hour} {
		st := SimplePropagator{}.Propagate(el, issEpoch.Add(dt))
		if st.Altitude < 400 || st.Altitude > 430 {
			t.Errorf("+%v: altitude = %.1f km, want 400-430", dt, st.Altitude)
		}
		if math.Abs(st.Speed-7.66) > 0.02 {
			t.Errorf("+%v: speed = %.3f km/s, want ≈7.66", dt, st.Speed)
		}
		if math.Abs(st.Latitude) > 51.64+1e-6 {
			t.Errorf("+%v: |latitude| %.3f exceeds inclination", dt, st.Latitude)
		}
		if st.Longitude < -180 || st.Longitude > 180 {
			t.Errorf("+%v: longitude %.3f out of range", dt, st.Longitude)
		}
		// Earth rotation preserves the radius.
		if math.Abs(r3.Norm(st.ECI)-r3.Norm(st.ECEF)) > 1e-6 {
			t.Errorf("+%v: |ECI| %v != |ECEF| %v", dt, r3.Norm(st.ECI), r3.Norm(st.ECEF))
		}
		if d := r3.Norm(r3.Sub(st.Scene, transform.VecKmToScene(st.ECI))); d > 1e-12 {
			t.Errorf("+%v: scene position not scaled from ECI", dt)
		}
	}
}

func TestSimplePropagatorAtEpoch(t *testing.T) {
	// RAAN 100°, ω = 0, M = 0: at epoch the satellite sits on the ascending node.
	el := tle.ParseElements(issLine1, issLine2)
	st := SimplePropagator{}.Propagate(el, issEpoch)

	if math.Abs(st.ECI.Z) > 1e-6 {
		t.Errorf("ECI z at ascending node = %v, want 0", st.ECI.Z)
	}
	node := math.Atan2(st.ECI.Y, st.ECI.X)
	if math.Abs(transform.Rad2Deg(node)-100) > 1e-6 {
		t.Errorf("node longitude = %.6f°, want 100°", transform.Rad2Deg(node))
	}
	if math.Abs(st.Latitude) > 1e-6 {
		t.Errorf("latitude = %v, want 0", st.Latitude)
	}
}

func TestSimplePropagatorNaN(t *testing.T) {
	el := tle.ParseElements(issLine1, issLine2[:52]+"garbage!!!!"+issLine2[63:])
	if !math.IsNaN(el.MeanMotion) {
		t.Fatalf("mean motion = %v, want NaN", el.MeanMotion)
	}
	st := SimplePropagator{}.Propagate(el, issEpoch)
	if !math.IsNaN(st.Altitude) || !math.IsNaN(st.ECI.X) {
		t.Errorf("NaN input produced %+v", st)
	}
}

func TestGroundTrack(t *testing.T) {
	el := tle.ParseElements(issLine1, issLine2)
	pts := SimplePropagator{}.GroundTrack(el, issEpoch, 90)
	if len(pts) != 90 {
		t.Fatalf("points = %d, want 90", len(pts))
	}
	period := Period(el)
	if want := 86400.0 / 15.5; math.Abs(period.Seconds()-want) > 1e-6 {
		t.Errorf("period = %v, want %.1fs", period, want)
	}
	if span := pts[len(pts)-1].Time.Sub(pts[0].Time); span >= period {
		t.Errorf("track spans %v, want less than one period", span)
	}

	var maxLat float64
	for _, p := range pts {
		maxLat = math.Max(maxLat, math.Abs(p.Latitude))
	}
	if maxLat < 50 || maxLat > 51.65 {
		t.Errorf("max |latitude| over an orbit = %.2f, want ≈ inclination", maxLat)
	}

	if (SimplePropagator{}).GroundTrack(el, issEpoch, 0) != nil {
		t.Error("steps=0 should yield no points")
	}
	bad := el
	bad.MeanMotion = math.NaN()
	if (SimplePropagator{}).GroundTrack(bad, issEpoch, 10) != nil {
		t.Error("NaN mean motion should yield no points")
	}
}

func TestSGP4Propagator(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	teme, err := prop.Propagate(target)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	mag := r3.Norm(teme.Position)
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km (ISS orbit)", mag)
	}

	st, err := prop.StateAt(target)
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}
	if !transform.ValidateECEF(st.ECEF) {
		t.Errorf("ECEF position failed validation: %+v", st.ECEF)
	}
	if math.Abs(r3.Norm(st.ECEF)-mag) > 0.01 {
		t.Errorf("ECEF magnitude = %.3f km, TEME magnitude = %.3f km (should match)", r3.Norm(st.ECEF), mag)
	}
	if st.Altitude < 350 || st.Altitude > 450 {
		t.Errorf("altitude = %.1f km", st.Altitude)
	}
}

// TestSimpleAgreesWithSGP4 bounds how far the two-body model drifts from
// SGP4 near epoch for a near-circular orbit.
func TestSimpleAgreesWithSGP4(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatal(err)
	}
	el := tle.ParseElements(issLine1, issLine2)
	target := issEpoch.Add(10 * time.Minute)

	sgp, err := prop.StateAt(target)
	if err != nil {
		t.Fatal(err)
	}
	simple := SimplePropagator{}.Propagate(el, target)
	if math.Abs(sgp.Altitude-simple.Altitude) > 40 {
		t.Errorf("altitude simple %.1f vs sgp4 %.1f km", simple.Altitude, sgp.Altitude)
	}
	if math.Abs(sgp.Latitude-simple.Latitude) > 5 {
		t.Errorf("latitude simple %.2f vs sgp4 %.2f", simple.Latitude, sgp.Latitude)
	}
}

// TestSGP4InvalidTLE verifies that an invalid TLE returns an error.
func TestSGP4InvalidTLE(t *testing.T) {
	if _, err := NewSGP4Propagator("invalid line 1", "invalid line 2", 99999); err == nil {
		t.Fatal("expected error for invalid TLE, got nil")
	}
	// Well-formed apart from one column; must error instead of exiting.
	badMotion := issLine2[:52] + "15.5000000x" + issLine2[63:]
	if _, err := NewSGP4Propagator(issLine1, badMotion, 25544); err == nil {
		t.Fatal("expected error for non-numeric mean motion, got nil")
	}
}

// TestSGP4SubSecond checks that fractional seconds move the satellite
// between the whole-second states instead of being dropped.
func TestSGP4SubSecond(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	at0, err := prop.Propagate(base)
	if err != nil {
		t.Fatal(err)
	}
	at1, err := prop.Propagate(base.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	half, err := prop.Propagate(base.Add(500 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	mid := r3.Scale(0.5, r3.Add(at0.Position, at1.Position))
	if d := r3.Norm(r3.Sub(half.Position, mid)); d > 1e-9 {
		t.Errorf("half-second position off midpoint by %g km", d)
	}
	// ~7.7 km/s, so half a second is a few km from either end.
	if d := r3.Norm(r3.Sub(half.Position, at0.Position)); d < 3 || d > 4.5 {
		t.Errorf("half-second displacement = %.3f km, want ~3.8", d)
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{"", ModelSimple, false},
		{"simple", ModelSimple, false},
		{"SGP4", ModelSGP4, false},
		{"kepler", "", true},
	}
	for _, tt := range tests {
		got, err := ParseModel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseModel(%q) = %q, %v", tt.in, got, err)
		}
	}
}

// TestWorkerPoolBatch verifies the worker pool processes multiple satellites correctly.
func TestWorkerPoolBatch(t *testing.T) {
	pool := NewWorkerPool(4, testLogger())
	cache := tle.NewElementCache()
	fn := func(e tle.TLEEntry, ts time.Time) (SatellitePosition, error) {
		if e.NORADID == 1 {
			return SatellitePosition{}, errors.New("boom")
		}
		return NewSatellitePosition(e.NORADID, SimplePropagator{}.Propagate(cache.Get(e), ts)), nil
	}

	entries := []tle.TLEEntry{issEntry, starlinkEntry, {NORADID: 1}}
	positions, successCount, errorCount := pool.PropagateBatch(context.Background(), entries, issEpoch, fn)
	if successCount != 2 || errorCount != 1 || len(positions) != 2 {
		t.Fatalf("success=%d errors=%d positions=%d", successCount, errorCount, len(positions))
	}
	for _, pos := range positions {
		p := r3.Vec{X: pos.PositionECEF[0], Y: pos.PositionECEF[1], Z: pos.PositionECEF[2]}
		if !transform.ValidateECEF(p) {
			t.Errorf("NORAD %d: ECEF position failed validation: %v", pos.NORADID, pos.PositionECEF)
		}
	}
}

// TestWorkerPoolCancellation verifies the worker pool respects context cancellation.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())

	entries := make([]tle.TLEEntry, 100)
	for i := range entries {
		entries[i] = tle.TLEEntry{NORADID: 25544 + i, Line1: issLine1, Line2: issLine2}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := func(e tle.TLEEntry, ts time.Time) (SatellitePosition, error) {
		time.Sleep(time.Millisecond)
		return SatellitePosition{NORADID: e.NORADID}, nil
	}
	positions, _, _ := pool.PropagateBatch(ctx, entries, issEpoch, fn)
	if len(positions) >= len(entries) {
		t.Errorf("expected fewer results with cancelled context, got %d/%d", len(positions), len(entries))
	}
}

func TestPropagatorSatellite(t *testing.T) {
	store := testStore(issEntry, starlinkEntry)
	prop := NewPropagator(store, tle.NewElementCache(), PropConfig{Workers: 2}, testLogger())

	for _, model := range []Model{ModelSimple, ModelSGP4} {
		st, err := prop.Satellite(25544, issEpoch.Add(time.Hour), model)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if st.Altitude < 350 || st.Altitude > 450 {
			t.Errorf("%s: altitude = %.1f", model, st.Altitude)
		}
	}

	if _, err := prop.Satellite(1, issEpoch, ModelSimple); !errors.Is(err, ErrUnknownSatellite) {
		t.Errorf("unknown satellite err = %v", err)
	}

	track, err := prop.GroundTrack(44713, issEpoch, 10)
	if err != nil || len(track) != 10 {
		t.Errorf("ground track = %d points, err %v", len(track), err)
	}
}

// TestPropagatorReplaceReparses checks that replacing lines in the store is
// visible to the next propagation call.
func TestPropagatorReplaceReparses(t *testing.T) {
	store := testStore(issEntry)
	cache := tle.NewElementCache()
	prop := NewPropagator(store, cache, PropConfig{Workers: 1}, testLogger())

	before, err := prop.Satellite(25544, issEpoch, ModelSimple)
	if err != nil {
		t.Fatal(err)
	}

	// Same satellite, RAAN moved from 100° to 190°.
	line2 := issLine2[:17] + "190.0000" + issLine2[25:]
	if _, err := store.Replace(25544, issLine1, line2); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	after, err := prop.Satellite(25544, issEpoch, ModelSimple)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Norm(r3.Sub(before.ECI, after.ECI)) < 1000 {
		t.Errorf("position did not change after replace: %+v vs %+v", before.ECI, after.ECI)
	}
}

// TestPropagatorGenerateKeyframes verifies keyframe generation over a horizon.
func TestPropagatorGenerateKeyframes(t *testing.T) {
	for _, model := range []Model{ModelSimple, ModelSGP4} {
		t.Run(string(model), func(t *testing.T) {
			cfg := PropConfig{
				Workers: 2,
				Step:    5 * time.Second,
				Horizon: 15 * time.Second,
				Model:   model,
			}
			prop := NewPropagator(testStore(issEntry), nil, cfg, testLogger())
			start := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

			keyframes, err := prop.GenerateKeyframes(context.Background(), start)
			if err != nil {
				t.Fatalf("GenerateKeyframes failed: %v", err)
			}
			// 0s, 5s, 10s, 15s.
			if len(keyframes) != 4 {
				t.Fatalf("got %d keyframes, want 4", len(keyframes))
			}
			for i, kf := range keyframes {
				if want := start.Add(time.Duration(i) * cfg.Step); !kf.Timestamp.Equal(want) {
					t.Errorf("keyframe %d: time = %v, want %v", i, kf.Timestamp, want)
				}
				if len(kf.Satellites) != 1 || kf.Model != model {
					t.Errorf("keyframe %d: %d satellites, model %q", i, len(kf.Satellites), kf.Model)
				}
			}
		})
	}
}

// TestPropagatorNoDataset verifies error when no TLE data is loaded.
func TestPropagatorNoDataset(t *testing.T) {
	prop := NewPropagator(tle.NewStore(), nil, PropConfig{Workers: 2}, testLogger())

	if _, err := prop.PropagateToTime(context.Background(), time.Now()); !errors.Is(err, tle.ErrNoDataset) {
		t.Fatalf("err = %v, want ErrNoDataset", err)
	}
	if _, err := prop.GroundTrack(25544, time.Now(), 10); !errors.Is(err, tle.ErrNoDataset) {
		t.Fatalf("ground track err = %v, want ErrNoDataset", err)
	}
}

// BenchmarkPropagate1000 benchmarks propagating 1000 satellites.
func BenchmarkPropagate1000(b *testing.B) {
	entries := make([]tle.TLEEntry, 1000)
	for i := range entries {
		entries[i] = tle.TLEEntry{NORADID: 25544 + i, Line1: issLine1, Line2: issLine2}
	}

	cfg := PropConfig{Workers: 4, Step: 5 * time.Second, Horizon: 5 * time.Second}
	prop := NewPropagator(testStore(entries...), nil, cfg, testLogger())
	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := prop.PropagateToTime(ctx, target); err != nil {
			b.Fatal(err)
		}
	}
}
