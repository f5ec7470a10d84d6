package propagation

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Model selects the propagation algorithm.
type Model string

const (
	// ModelSimple is the two-body mean-element model: fast, total, and
	// adequate for near-circular low orbits.
	ModelSimple Model = "simple"
	// ModelSGP4 is full SGP4 via go-satellite.
	ModelSGP4 Model = "sgp4"
)

// ParseModel maps a query value to a Model. The empty string selects
// ModelSimple.
func ParseModel(s string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModelSimple:
		return ModelSimple, nil
	case ModelSGP4:
		return ModelSGP4, nil
	}
	return "", fmt.Errorf("unknown propagation model %q (want simple or sgp4)", s)
}

// SatState is a satellite's state at one instant. Positions are in km;
// ECI is the inertial frame of the elements, ECEF is Earth-fixed and Scene
// is the geocentric inertial position in scene units.
type SatState struct {
	Time      time.Time
	Latitude  float64 // degrees
	Longitude float64 // degrees, (-180, 180]
	Altitude  float64 // km
	Speed     float64 // km/s
	ECI       r3.Vec
	ECEF      r3.Vec
	Scene     r3.Vec
}

// StateSource yields the state of one satellite at arbitrary times.
type StateSource interface {
	StateAt(t time.Time) (SatState, error)
}

// Keyframe holds the positions of all satellites at a single point in time.
type Keyframe struct {
	Timestamp  time.Time           `json:"timestamp"`
	Model      Model               `json:"model"`
	Satellites []SatellitePosition `json:"satellites"`
}

// SatellitePosition is the serialised form of one satellite in a keyframe.
type SatellitePosition struct {
	NORADID      int        `json:"norad_id"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Altitude     float64    `json:"altitude_km"`
	Speed        float64    `json:"speed_km_s"`
	PositionECEF [3]float64 `json:"position_ecef_km"`
	Scene        [3]float64 `json:"scene"`
}

// NewSatellitePosition flattens a state for serialisation.
func NewSatellitePosition(noradID int, st SatState) SatellitePosition {
	return SatellitePosition{
		NORADID:      noradID,
		Latitude:     st.Latitude,
		Longitude:    st.Longitude,
		Altitude:     st.Altitude,
		Speed:        st.Speed,
		PositionECEF: [3]float64{st.ECEF.X, st.ECEF.Y, st.ECEF.Z},
		Scene:        [3]float64{st.Scene.X, st.Scene.Y, st.Scene.Z},
	}
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers int           // Worker pool size (default: runtime.NumCPU())
	Step    time.Duration // Keyframe interval (default: 5s)
	Horizon time.Duration // Propagation horizon (default: 600s)
	Model   Model         // Batch model (default: simple)
}
