package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// queryTime reads ?t= as RFC 3339, defaulting to now.
func queryTime(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid t parameter, must be RFC 3339")
	}
	return t.UTC(), nil
}

// queryInt reads an optional integer within [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, lo, hi)
	}
	return n, nil
}

// queryFloat reads a float within [lo, hi]. A missing value yields def,
// or an error when required.
func queryFloat(r *http.Request, name string, def, lo, hi float64, required bool) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if required {
			return 0, fmt.Errorf("missing %s parameter", name)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %g to %g", name, lo, hi)
	}
	return f, nil
}

// pathNORADID reads the {norad_id} path value.
func pathNORADID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid NORAD ID %q", r.PathValue("norad_id"))
	}
	return id, nil
}

func arr(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
