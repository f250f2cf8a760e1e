package cat

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Report summarizes one processed event.
type Report struct {
	Clusters      int
	Scenarios     int
	Dropped       int
	Incomplete    bool
	CaloFallbacks int
}

// Driver turns the hits of one event into clustering solutions.
type Driver interface {
	Name() string
	Process(ctx context.Context, trackerHits []*snemo.TrackerHit, caloHits []*snemo.CaloHit, sink SolutionSink) (Report, error)
}

type Factory func(Setup, Geometry) (Driver, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry that knows the CAT, SULTAN and
// SULTAN_THEN_CAT drivers.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.factories[CATID] = func(s Setup, g Geometry) (Driver, error) {
		return NewCAT(s, g)
	}
	r.factories[SultanID] = func(s Setup, g Geometry) (Driver, error) {
		return NewSultan(s, g)
	}
	r.factories[SultanThenCATID] = func(s Setup, g Geometry) (Driver, error) {
		return NewSultanThenCAT(s, g)
	}
	return r
}

func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("algorithm %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) New(name string, setup Setup, geom Geometry) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &snemo.ConfigurationError{Key: "algorithm", Reason: fmt.Sprintf("unknown algorithm %q", name)}
	}
	return f(setup, geom)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// sequencer orders the cells of the clusters into scenarios.
type sequencer interface {
	Sequentiate(ctx context.Context, res Result) ([]Scenario, bool)
}

// Chain runs the adapter, the clusterizer, a sequencer and the exporter. It
// keeps no per-event state and may be shared by workers.
type Chain struct {
	name        string
	setup       Setup
	adapter     *Adapter
	clusterizer *Clusterizer
	sequencer   sequencer
	exporter    *Exporter
}

func newChain(name string, setup Setup, geom Geometry, seq func() sequencer) (*Chain, error) {
	if err := setup.Check(); err != nil {
		return nil, err
	}
	if geom.Cells == nil {
		return nil, &snemo.ConfigurationError{Key: "geometry", Reason: "no cell locator"}
	}
	return &Chain{
		name:        name,
		setup:       setup,
		adapter:     NewAdapter(setup, geom),
		clusterizer: NewClusterizer(setup, geom),
		sequencer:   seq(),
		exporter:    NewExporter(setup, name),
	}, nil
}

// NewCAT sequentiates with the cellular automaton walk.
func NewCAT(setup Setup, geom Geometry) (*Chain, error) {
	return newChain(CATID, setup, geom, func() sequencer {
		return NewSequentiator(setup)
	})
}

// NewSultan sequentiates by helix assignment only.
func NewSultan(setup Setup, geom Geometry) (*Chain, error) {
	return newChain(SultanID, setup, geom, func() sequencer {
		return NewSultanSequentiator(setup, geom, nil)
	})
}

// NewSultanThenCAT assigns cells to helices first and walks the rest with
// CAT.
func NewSultanThenCAT(setup Setup, geom Geometry) (*Chain, error) {
	return newChain(SultanThenCATID, setup, geom, func() sequencer {
		return NewSultanSequentiator(setup, geom, NewSequentiator(setup))
	})
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) Setup() Setup { return c.setup }

func (c *Chain) Process(ctx context.Context, trackerHits []*snemo.TrackerHit, caloHits []*snemo.CaloHit, sink SolutionSink) (Report, error) {
	var report Report
	in, err := c.adapter.Adapt(trackerHits, caloHits)
	if err != nil {
		return report, err
	}
	report.CaloFallbacks = in.CaloFallbacks

	res := c.clusterizer.Clusterize(ctx, in)
	report.Clusters = len(res.Clusters)
	scenarios, incomplete := c.sequencer.Sequentiate(ctx, res)
	report.Scenarios = len(scenarios)
	report.Incomplete = res.Incomplete || incomplete
	if report.Incomplete {
		c.setup.logf(Normal, "%s: time budget of %s exhausted, partial result kept", c.name, c.setup.MaxTime)
	}

	report.Dropped, err = c.exporter.Export(scenarios, in, sink)
	return report, err
}
