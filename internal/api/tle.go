package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/tle"
)

// TLEConfig controls TLE acquisition.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration // a younger dataset is not refetched unless forced
}

const maxReplaceBody = 4 << 10

type tleMetadata struct {
	Loaded       bool    `json:"loaded"`
	Source       string  `json:"source,omitempty"`
	FetchedAt    string  `json:"fetched_at,omitempty"`
	AgeSeconds   float64 `json:"age_seconds,omitempty"`
	Count        int     `json:"count"`
	EpochMin     string  `json:"epoch_min,omitempty"`
	EpochMax     string  `json:"epoch_max,omitempty"`
	FetchEnabled bool    `json:"fetch_enabled"`
}

func (s *Server) metadata() tleMetadata {
	md := tleMetadata{FetchEnabled: s.deps.TLE.EnableFetch && s.deps.Fetcher != nil}
	if s.deps.Store == nil {
		return md
	}
	ds := s.deps.Store.Get()
	if ds == nil {
		return md
	}
	md.Loaded = true
	md.Source = ds.Source
	md.FetchedAt = ds.FetchedAt.UTC().Format(time.RFC3339)
	md.AgeSeconds = time.Since(ds.FetchedAt).Seconds()
	md.Count = len(ds.Satellites)
	if len(ds.Satellites) > 0 {
		md.EpochMin = ds.EpochRange.Min.UTC().Format(time.RFC3339)
		md.EpochMax = ds.EpochRange.Max.UTC().Format(time.RFC3339)
	}
	return md
}

// GET /api/v1/tle/metadata
func (s *Server) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metadata())
}

// errFetchDisabled is returned by RefreshTLE when fetching is off.
var errFetchDisabled = errors.New("TLE fetch is disabled")

// RefreshTLE fetches and publishes a new catalogue, writing it to the disk
// cache. A dataset younger than MaxAge is kept unless force is set; the
// returned status is then "fresh" instead of "fetched".
func (s *Server) RefreshTLE(ctx context.Context, force bool) (string, error) {
	if !s.deps.TLE.EnableFetch || s.deps.Fetcher == nil || s.deps.Store == nil {
		return "", errFetchDisabled
	}

	store := s.deps.Store
	store.Lock()
	defer store.Unlock()

	if ds := store.Get(); ds != nil && !force && s.deps.TLE.MaxAge > 0 && time.Since(ds.FetchedAt) < s.deps.TLE.MaxAge {
		metrics.IncTLEFetch("skipped")
		return "fresh", nil
	}

	start := time.Now()
	data, err := s.deps.Fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncTLEFetch("error")
		return "", err
	}
	entries, err := tle.Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		metrics.IncTLEFetch("error")
		return "", fmt.Errorf("parsing fetched catalogue: %w", err)
	}
	if len(entries) == 0 {
		metrics.IncTLEFetch("error")
		return "", errors.New("TLE source returned no valid entries")
	}

	fetchedAt := time.Now().UTC()
	if s.deps.TLECache != nil {
		if err := s.deps.TLECache.Write(data, fetchedAt); err != nil {
			s.logger.Warn("failed to write TLE cache", "error", err)
		}
	}

	store.Set(tle.NewDataset(s.deps.Fetcher.SourceURL(), fetchedAt, entries))
	metrics.IncTLEFetch("success")
	metrics.SetTLEDatasetCount(len(entries))
	metrics.SetTLEDatasetAge(0)
	s.logger.Info("TLE dataset fetched",
		"count", len(entries),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return "fetched", nil
}

// POST /api/v1/tle/fetch?force=true
func (s *Server) handleTLEFetch(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	status, err := s.RefreshTLE(r.Context(), force)
	switch {
	case errors.Is(err, errFetchDisabled):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		s.logger.Warn("TLE fetch failed", "source_url", s.deps.Fetcher.SourceURL(), "error", err)
		writeError(w, http.StatusBadGateway, "TLE fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "metadata": s.metadata()})
}

type replaceRequest struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// PUT /api/v1/tle/{norad_id}
// Body: {"line1": "...", "line2": "..."}. Adds the satellite when absent.
func (s *Server) handleTLEReplace(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "TLE store not configured")
		return
	}
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req replaceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplaceBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, err := s.deps.Store.Replace(id, req.Line1, req.Line2)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.IncTLEReplacements()
	metrics.SetTLEDatasetCount(len(s.deps.Store.Get().Satellites))
	s.logger.Info("TLE replaced", "norad_id", id, "epoch", entry.Epoch.UTC().Format(time.RFC3339))

	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id": entry.NORADID,
		"name":     entry.Name,
		"epoch":    entry.Epoch.UTC().Format(time.RFC3339),
		"line1":    entry.Line1,
		"line2":    entry.Line2,
	})
}
