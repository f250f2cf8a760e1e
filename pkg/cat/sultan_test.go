package cat

import (
	"context"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellIDs(cells []*Cell) []int {
	ids := make([]int, len(cells))
	for i, c := range cells {
		ids[i] = c.ID
	}
	return ids
}

// twoTracks is the arc of radius 1 m on side 1 plus five aligned cells
// climbing one row per layer on side -1.
func twoTracks() Input {
	in := arc(1000)
	for layer := 0; layer < 5; layer++ {
		in.Cells = append(in.Cells, &Cell{
			ID: 20 + layer, Side: -1, Layer: -layer, Row: layer,
			Pos: Point{X: 44 * float64(layer), Z: -(52 + 44*float64(layer))},
			ER:  0.3, Fast: true, Small: true,
		})
	}
	return in
}

func sultanSequentiate(t *testing.T, setup Setup, in Input, then *Sequentiator) []Scenario {
	t.Helper()
	res := NewClusterizer(setup, DemonstratorGeometry()).Clusterize(context.Background(), in)
	require.False(t, res.Incomplete)
	scenarios, incomplete := NewSultanSequentiator(setup, DemonstratorGeometry(), then).Sequentiate(context.Background(), res)
	require.False(t, incomplete)
	return scenarios
}

func TestSultanArc(t *testing.T) {
	scenarios := sultanSequentiate(t, DefaultSetup(), arc(1000), nil)
	require.Len(t, scenarios, 1)
	require.Len(t, scenarios[0].Sequences, 1)

	seq := scenarios[0].Sequences[0]
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, seq.IDs())
	require.True(t, seq.Helix)
	assert.InDelta(t, 1000, seq.Radius, 1e-3)
	require.True(t, seq.HasMomentum)
	assert.InDelta(t, 0.75, seq.Momentum.Norm(), 1e-6)
}

func TestSultanLeftover(t *testing.T) {
	tests := []struct {
		name string
		then *Sequentiator
		want [][]int
	}{
		{"singletons", nil, [][]int{{0, 1, 2, 3, 4, 5, 6, 7, 8}, {20}, {21}, {22}, {23}, {24}}},
		{"walked by CAT", NewSequentiator(DefaultSetup()), [][]int{{0, 1, 2, 3, 4, 5, 6, 7, 8}, {20, 21, 22, 23, 24}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenarios := sultanSequentiate(t, DefaultSetup(), twoTracks(), tt.then)
			require.Len(t, scenarios, 1)
			var got [][]int
			for _, seq := range scenarios[0].Sequences {
				got = append(got, seq.IDs())
			}
			assert.Equal(t, tt.want, got)
			assert.True(t, scenarios[0].Sequences[0].Helix)
		})
	}
}

func TestTripletHelixRadiusWindow(t *testing.T) {
	sb := sequenceBuilder{setup: DefaultSetup()}
	cells := arc(500).Cells[:3]

	h, ok := tripletHelix(sb, cells, 0, math.Inf(1))
	require.True(t, ok)
	assert.InDelta(t, 500, h.t.radius, 1e-6)

	rmin, rmax := DefaultSetup().Sultan.radii(DefaultSetup().MagField)
	_, ok = tripletHelix(sb, cells, rmin, rmax)
	assert.False(t, ok, "below 200 keV")

	_, ok = tripletHelix(sb, twoTracks().Cells[9:12], rmin, rmax)
	assert.False(t, ok, "aligned cells")
}

func TestSultanAssignKeepsLongestPiece(t *testing.T) {
	sb := sequenceBuilder{setup: DefaultSetup()}
	s := NewSultanSequentiator(DefaultSetup(), DemonstratorGeometry(), nil)
	all := arc(1000).Cells

	tests := []struct {
		name     string
		drop     []int
		assigned []int
		leftover []int
	}{
		{"continuous", nil, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, nil},
		{"two layers missing", []int{3, 4}, []int{5, 6, 7, 8}, []int{0, 1, 2}},
		{"no piece long enough", []int{2, 3, 4, 7, 8}, nil, []int{0, 1, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := slices.DeleteFunc(slices.Clone(all), func(c *Cell) bool { return slices.Contains(tt.drop, c.ID) })
			h, ok := tripletHelix(sb, []*Cell{cells[0], cells[1], cells[len(cells)-1]}, 0, math.Inf(1))
			require.True(t, ok)

			assigned, leftover := s.assign(sb, h, cells, NewOccupancy(cells))
			assert.Equal(t, tt.assigned, nilIfEmpty(cellIDs(assigned)))
			assert.Equal(t, tt.leftover, nilIfEmpty(cellIDs(leftover)))
		})
	}
}

func nilIfEmpty(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func TestSultanCancelled(t *testing.T) {
	setup := DefaultSetup()
	res := NewClusterizer(setup, DemonstratorGeometry()).Clusterize(context.Background(), arc(1000))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scenarios, incomplete := NewSultanSequentiator(setup, DemonstratorGeometry(), nil).Sequentiate(ctx, res)
	assert.True(t, incomplete)
	assert.Empty(t, scenarios)
}

func TestClusterRestrict(t *testing.T) {
	res := NewClusterizer(DefaultSetup(), DemonstratorGeometry()).Clusterize(context.Background(), adapt(t, diagonal()...))
	require.Len(t, res.Clusters, 1)
	cl := res.Clusters[0]

	sub := cl.restrict(cl.Cells[3:6])
	assert.Equal(t, cl.ID, sub.ID)
	assert.Equal(t, []int{3, 4, 5}, cellIDs(sub.Cells))
	assert.Same(t, cl.Cells[4], sub.Cell(4))
	assert.Nil(t, sub.Cell(2))
	assert.ElementsMatch(t, []int{3, 5}, sub.Links[4])
	assert.Equal(t, []int{4}, sub.Links[3], "the link to cell 2 is gone")
}

func TestSultanDrivers(t *testing.T) {
	tests := []struct {
		name    string
		new     func(Setup, Geometry) (*Chain, error)
		report  Report
		cluster int
	}{
		{"SULTAN", NewSultan, Report{Clusters: 1, Scenarios: 1, Dropped: 9}, 0},
		{"SULTAN_THEN_CAT", NewSultanThenCAT, Report{Clusters: 1, Scenarios: 1}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := tt.new(DefaultSetup(), DemonstratorGeometry())
			require.NoError(t, err)

			var sink Solutions
			report, err := driver.Process(context.Background(), diagonal(), nil, &sink)
			require.NoError(t, err)
			assert.Equal(t, tt.report, report)

			require.Len(t, sink, 1)
			id, _ := sink[0].Aux.Text("clusterizer_id")
			assert.Equal(t, tt.name, id)
			if tt.cluster == 0 {
				assert.Empty(t, sink[0].Clusters)
				return
			}
			require.Len(t, sink[0].Clusters, 1)
			assert.Len(t, sink[0].Clusters[0].Hits, tt.cluster)
		})
	}
}
