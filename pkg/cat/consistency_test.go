package cat

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// requirePartition fails when a cell shows up in two sequences of the same
// scenario.
func requirePartition(t *testing.T, scenarios []Scenario) {
	t.Helper()
	for i, sc := range scenarios {
		seen := map[int]int{}
		for j, seq := range sc.Sequences {
			for _, id := range seq.IDs() {
				if k, dup := seen[id]; dup {
					t.Errorf("scenario %d: cell %d in sequences %d and %d", i, id, k, j)
				}
				seen[id] = j
			}
		}
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// requireFinite checks that every value whose flag is set is a number.
func requireFinite(t *testing.T, seq *Sequence) {
	t.Helper()
	measures := map[string]Measure{
		"charge":         seq.Charge,
		"helix charge":   seq.HelixCharge,
		"detailed":       seq.DetailedCharge,
		"tangent length": seq.TangentLength,
		"helix length":   seq.HelixLength,
	}
	for name, m := range measures {
		if m.Valid {
			assert.True(t, finite(m.Value, m.Error), "%s %v", name, m)
		}
	}
	if seq.HasMomentum {
		assert.True(t, finite(seq.Momentum.X, seq.Momentum.Y, seq.Momentum.Z), "momentum %v", seq.Momentum)
	}
	vertices := map[string]*Vertex{
		"helix":         seq.HelixVertex,
		"tangent":       seq.TangentVertex,
		"helix decay":   seq.HelixDecayVertex,
		"tangent decay": seq.TangentDecayVertex,
	}
	for name, v := range vertices {
		if v != nil {
			assert.True(t, finite(v.Pos.X, v.Pos.Y, v.Pos.Z, v.Err.X, v.Err.Y, v.Err.Z), "%s vertex %v", name, v)
		}
	}
}

// alteredDiagonal is the diagonal with larger drift radii at both ends.
func alteredDiagonal() []*snemo.TrackerHit {
	hits := diagonal()
	for i, r := range map[int]float64{0: 5, 1: 8, 7: 8, 8: 5} {
		hits[i].R = r
	}
	return hits
}

func TestScenariosPartitionCells(t *testing.T) {
	branch := append(diagonal()[:5], trackerHit(20, 1, 3, 45, 1.5))
	tests := []struct {
		name      string
		scenarios func(t *testing.T) []Scenario
	}{
		{"CAT diagonal", func(t *testing.T) []Scenario {
			return sequentiate(t, DefaultSetup(), adapt(t, diagonal()...))
		}},
		{"CAT branch", func(t *testing.T) []Scenario {
			return sequentiate(t, DefaultSetup(), adapt(t, branch...))
		}},
		{"CAT altered radii", func(t *testing.T) []Scenario {
			return sequentiate(t, DefaultSetup(), adapt(t, alteredDiagonal()...))
		}},
		{"SULTAN", func(t *testing.T) []Scenario {
			return sultanSequentiate(t, DefaultSetup(), twoTracks(), nil)
		}},
		{"SULTAN then CAT", func(t *testing.T) []Scenario {
			return sultanSequentiate(t, DefaultSetup(), twoTracks(), NewSequentiator(DefaultSetup()))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenarios := tt.scenarios(t)
			require.NotEmpty(t, scenarios)
			requirePartition(t, scenarios)
			for _, sc := range scenarios {
				for _, seq := range sc.Sequences {
					requireFinite(t, seq)
				}
			}
		})
	}
}

func TestSwapScenariosPartitionCells(t *testing.T) {
	sb := sequenceBuilder{setup: DefaultSetup()}
	cells := arc(1000).Cells
	first := sb.build(0, cells[:5])
	alt := sb.build(0, []*Cell{cells[1], cells[0], cells[2], cells[3], cells[4]})
	second := sb.build(1, cells[5:])

	scenarios := makeScenarios([]*Sequence{first, second}, []swap{{index: 0, alt: alt}})
	require.Len(t, scenarios, 2)
	assert.Equal(t, []int{1, 0, 2, 3, 4}, scenarios[1].Sequences[0].IDs())
	assert.Same(t, second, scenarios[1].Sequences[1])
	assert.Same(t, first, scenarios[0].Sequences[0], "the primary scenario is untouched")
	requirePartition(t, scenarios)
	for _, sc := range scenarios {
		for _, seq := range sc.Sequences {
			requireFinite(t, seq)
		}
	}
}

func TestAlteredRadiiKeepTheTrack(t *testing.T) {
	hits := alteredDiagonal()
	var sink Solutions
	report, err := newCAT(t, DefaultSetup()).Process(context.Background(), hits, nil, &sink)
	require.NoError(t, err)
	assert.Equal(t, Report{Clusters: 1, Scenarios: 1}, report)
	require.Len(t, sink, 1)
	require.Len(t, sink[0].Clusters, 1)
	assert.Len(t, sink[0].Clusters[0].Hits, 9)

	scenarios := sequentiate(t, DefaultSetup(), adapt(t, hits...))
	require.Len(t, scenarios, 1)
	require.Len(t, scenarios[0].Sequences, 1)
	seq := scenarios[0].Sequences[0]
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, seq.IDs())
	assert.False(t, seq.Nodes[0].Cell.Small)
	assert.True(t, seq.Nodes[4].Cell.Small)
}

func TestProcessIsDeterministic(t *testing.T) {
	noise := trackerHit(42, 0, 4, 100, 5)
	calo := &snemo.CaloHit{ID: 3, GeomID: snemo.NewGeomID(snemo.MainCaloType, 0, 1, 9, 6), Energy: 1.2}
	hits := append(alteredDiagonal(), noise)

	for _, name := range NewRegistry().Names() {
		t.Run(name, func(t *testing.T) {
			driver, err := NewRegistry().New(name, DefaultSetup(), DemonstratorGeometry())
			require.NoError(t, err)

			var once, twice Solutions
			r1, err := driver.Process(context.Background(), hits, []*snemo.CaloHit{calo}, &once)
			require.NoError(t, err)
			r2, err := driver.Process(context.Background(), hits, []*snemo.CaloHit{calo}, &twice)
			require.NoError(t, err)

			assert.Equal(t, r1, r2)
			if diff := cmp.Diff(once, twice, cmpopts.EquateNaNs()); diff != "" {
				t.Errorf("second run differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestSequentiateIsDeterministic(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T) []Scenario
	}{
		{"CAT", func(t *testing.T) []Scenario { return sequentiate(t, DefaultSetup(), twoTracks()) }},
		{"SULTAN then CAT", func(t *testing.T) []Scenario {
			return sultanSequentiate(t, DefaultSetup(), twoTracks(), NewSequentiator(DefaultSetup()))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once, twice := tt.run(t), tt.run(t)
			if diff := cmp.Diff(once, twice, cmpopts.EquateNaNs()); diff != "" {
				t.Errorf("second run differs (-first +second):\n%s", diff)
			}
		})
	}
}
