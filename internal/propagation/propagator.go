package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
)

// ErrUnknownSatellite is returned for a NORAD ID absent from the dataset.
var ErrUnknownSatellite = errors.New("satellite not in dataset")

// sgp4Cache holds initialised SGP4 propagators for one published dataset.
// Immutable after construction.
type sgp4Cache struct {
	props   map[int]*SGP4Propagator
	dataset *tle.TLEDataset
}

// Propagator serves single-satellite queries and batch keyframes over the
// current TLE dataset.
type Propagator struct {
	store    *tle.Store
	elements *tle.ElementCache
	pool     *WorkerPool
	config   PropConfig
	logger   *slog.Logger
	sgp4     atomic.Pointer[sgp4Cache]
	sgp4Mu   sync.Mutex // serializes cache rebuilds
}

// NewPropagator creates a propagator reading from store and parsing through
// elements. The element cache is registered with the store so replaced
// lines are reparsed.
func NewPropagator(store *tle.Store, elements *tle.ElementCache, config PropConfig, logger *slog.Logger) *Propagator {
	if config.Model == "" {
		config.Model = ModelSimple
	}
	if elements == nil {
		elements = tle.NewElementCache()
	}
	store.AddInvalidator(elements)
	return &Propagator{
		store:    store,
		elements: elements,
		pool:     NewWorkerPool(config.Workers, logger),
		config:   config,
		logger:   logger,
	}
}

// Elements returns the parsed-element cache.
func (p *Propagator) Elements() *tle.ElementCache { return p.elements }

// cachedProps returns initialised SGP4 propagators for ds, rebuilding when
// the published dataset changes (double-checked locking).
func (p *Propagator) cachedProps(ds *tle.TLEDataset) map[int]*SGP4Propagator {
	if c := p.sgp4.Load(); c != nil && c.dataset == ds {
		return c.props
	}

	p.sgp4Mu.Lock()
	defer p.sgp4Mu.Unlock()

	if c := p.sgp4.Load(); c != nil && c.dataset == ds {
		return c.props
	}

	props := make(map[int]*SGP4Propagator, len(ds.Satellites))
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := props[entry.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
		if err != nil {
			p.logger.Warn("sgp4 cache init failed", "norad_id", entry.NORADID, "error", err)
			skipped++
			continue
		}
		props[entry.NORADID] = sp
	}

	p.logger.Info("sgp4 propagator cache rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	p.sgp4.Store(&sgp4Cache{props: props, dataset: ds})
	return props
}

// Source returns a StateSource for one satellite under model.
func (p *Propagator) Source(noradID int, model Model) (StateSource, tle.TLEEntry, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, tle.TLEEntry{}, tle.ErrNoDataset
	}
	entry, ok := ds.Find(noradID)
	if !ok {
		return nil, tle.TLEEntry{}, fmt.Errorf("NORAD %d: %w", noradID, ErrUnknownSatellite)
	}

	switch model {
	case ModelSGP4:
		sp, ok := p.cachedProps(ds)[noradID]
		if !ok {
			return nil, entry, fmt.Errorf("NORAD %d: sgp4 unavailable for this element set", noradID)
		}
		return sp, entry, nil
	default:
		return simpleSource{el: p.elements.Get(entry)}, entry, nil
	}
}

// Satellite returns one satellite's state at t.
func (p *Propagator) Satellite(noradID int, t time.Time, model Model) (SatState, error) {
	src, _, err := p.Source(noradID, model)
	if err != nil {
		return SatState{}, err
	}
	return src.StateAt(t)
}

// GroundTrack returns steps sub-satellite points over one period from start,
// using the simplified model.
func (p *Propagator) GroundTrack(noradID int, start time.Time, steps int) ([]GroundPoint, error) {
	entry, ok := p.store.Lookup(noradID)
	if !ok {
		if p.store.Get() == nil {
			return nil, tle.ErrNoDataset
		}
		return nil, fmt.Errorf("NORAD %d: %w", noradID, ErrUnknownSatellite)
	}
	return SimplePropagator{}.GroundTrack(p.elements.Get(entry), start, steps), nil
}

func (p *Propagator) batchFunc(ds *tle.TLEDataset, model Model, targetTime time.Time) PropagateFunc {
	if model == ModelSGP4 {
		props := p.cachedProps(ds)
		// GMST is shared by every satellite in the batch.
		gmst := transform.GMST(targetTime)
		return func(entry tle.TLEEntry, t time.Time) (SatellitePosition, error) {
			sp, ok := props[entry.NORADID]
			if !ok {
				return SatellitePosition{}, fmt.Errorf("no sgp4 propagator for NORAD %d", entry.NORADID)
			}
			teme, err := sp.Propagate(t)
			if err != nil {
				return SatellitePosition{}, err
			}
			return NewSatellitePosition(entry.NORADID, stateFromTEME(teme, t, gmst)), nil
		}
	}

	return func(entry tle.TLEEntry, t time.Time) (SatellitePosition, error) {
		st := SimplePropagator{}.Propagate(p.elements.Get(entry), t)
		if !finite(st.ECEF) {
			return SatellitePosition{}, fmt.Errorf("non-finite position for NORAD %d", entry.NORADID)
		}
		return NewSatellitePosition(entry.NORADID, st), nil
	}
}

// PropagateToTime generates a keyframe of every satellite at targetTime
// with the configured model.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Keyframe, error) {
	return p.PropagateModel(ctx, targetTime, p.config.Model)
}

// PropagateModel generates a keyframe at targetTime with an explicit model.
func (p *Propagator) PropagateModel(ctx context.Context, targetTime time.Time, model Model) (*Keyframe, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, tle.ErrNoDataset
	}

	p.logger.Debug("propagating",
		"satellite_count", len(ds.Satellites),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", p.config.Workers,
		"model", model,
	)

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, ds.Satellites, targetTime, p.batchFunc(ds, model, targetTime))
	duration := time.Since(start)

	metrics.RecordPropagation(string(model), duration, successCount, errorCount)

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Keyframe{
		Timestamp:  targetTime,
		Model:      model,
		Satellites: positions,
	}, nil
}

// GenerateKeyframes generates keyframes from startTime over the configured
// horizon at the configured step interval.
func (p *Propagator) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	if p.store.Get() == nil {
		return nil, tle.ErrNoDataset
	}

	numFrames := int(p.config.Horizon/p.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return keyframes, ctx.Err()
		default:
		}

		targetTime := startTime.Add(time.Duration(i) * p.config.Step)
		kf, err := p.PropagateToTime(ctx, targetTime)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, targetTime.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}
