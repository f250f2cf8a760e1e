package cat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

func adapt(t *testing.T, hits ...*snemo.TrackerHit) Input {
	t.Helper()
	in, err := NewAdapter(DefaultSetup(), DemonstratorGeometry()).Adapt(hits, nil)
	require.NoError(t, err)
	return in
}

func newClusterizer(setup Setup) *Clusterizer {
	return NewClusterizer(setup, DemonstratorGeometry())
}

func TestNearLevel(t *testing.T) {
	in := adapt(t,
		trackerHit(0, 1, 3, 50, 5),
		trackerHit(1, 1, 4, 50, 5), // next layer
		trackerHit(2, 1, 3, 51, 5), // next row
		trackerHit(3, 1, 4, 51, 5), // diagonal
		trackerHit(4, 1, 5, 49, 5), // two layers, one row away
		trackerHit(5, 0, 3, 50, 5), // other side
		trackerHit(6, 1, 7, 52, 5),
		trackerHit(7, 1, 5, 52, 5), // same row, layer 6 missing
		trackerHit(8, 1, 5, 50, 5), // same row, layer 4 hit
	)
	c := newClusterizer(DefaultSetup())
	hit := NewOccupancy(in.Cells)
	cell := in.Cells

	assert.Equal(t, 2, c.NearLevel(cell[0], cell[1], hit))
	assert.Equal(t, 2, c.NearLevel(cell[0], cell[2], hit))
	assert.Equal(t, 1, c.NearLevel(cell[0], cell[3], hit))
	assert.Equal(t, 0, c.NearLevel(cell[0], cell[4], hit))
	assert.Equal(t, 0, c.NearLevel(cell[0], cell[5], hit))
	assert.Equal(t, 0, c.NearLevel(cell[0], cell[0], hit))
	assert.Equal(t, 1, c.NearLevel(cell[6], cell[7], hit))
	assert.Equal(t, 0, c.NearLevel(cell[0], cell[8], hit))

	setup := DefaultSetup()
	setup.NOffLayers = 0
	assert.Equal(t, 0, newClusterizer(setup).NearLevel(cell[6], cell[7], hit))
}

func TestClusterizeDiagonal(t *testing.T) {
	in := adapt(t, diagonal()...)
	res := newClusterizer(DefaultSetup()).Clusterize(context.Background(), in)
	require.False(t, res.Incomplete)
	require.Len(t, res.Clusters, 1)

	cl := res.Clusters[0]
	assert.Len(t, cl.Cells, 9)
	assert.Equal(t, 1, cl.Side)
	assert.True(t, cl.Fast)
	assert.Equal(t, []int{1}, cl.Links[0])
	assert.Equal(t, []int{3, 5}, cl.Links[4])
	assert.Equal(t, []int{7}, cl.Links[8])
	assert.Same(t, in.Cells[4], cl.Cell(4))
}

func TestClusterizeSplitsSidesAndTiming(t *testing.T) {
	slow := trackerHit(2, 1, 1, 11, 5)
	slow.Delayed = true
	in := adapt(t,
		trackerHit(0, 1, 0, 10, 5),
		trackerHit(1, 0, 0, 10, 5),
		slow,
		trackerHit(3, 1, 5, 100, 5),
	)
	res := newClusterizer(DefaultSetup()).Clusterize(context.Background(), in)
	require.Len(t, res.Clusters, 4)

	var sizes []int
	for i, cl := range res.Clusters {
		assert.Equal(t, i, cl.ID)
		sizes = append(sizes, len(cl.Cells))
	}
	assert.Equal(t, []int{1, 1, 1, 1}, sizes)
	assert.Equal(t, 1, res.Clusters[0].Side)
	assert.True(t, res.Clusters[0].Fast)
	assert.False(t, res.Clusters[2].Fast)
	assert.Equal(t, -1, res.Clusters[3].Side)
}

func TestClusterizeDropsShortcut(t *testing.T) {
	// a and c are diagonal, b touches both side by side.
	in := adapt(t,
		trackerHit(0, 1, 0, 10, 1),
		trackerHit(1, 1, 0, 11, 1),
		trackerHit(2, 1, 1, 11, 1),
	)
	res := newClusterizer(DefaultSetup()).Clusterize(context.Background(), in)
	require.Len(t, res.Clusters, 1)
	links := res.Clusters[0].Links
	assert.Equal(t, []int{1}, links[0])
	assert.Equal(t, []int{0, 2}, links[1])
	assert.Equal(t, []int{1}, links[2])

	setup := DefaultSetup()
	setup.ProbMin = 0.5
	res = newClusterizer(setup).Clusterize(context.Background(), in)
	assert.Equal(t, []int{1, 2}, res.Clusters[0].Links[0], "b is far off the a-c line")
}

func TestClusterizeBudget(t *testing.T) {
	in := adapt(t, trackerHit(0, 1, 0, 10, 5), trackerHit(1, 1, 8, 100, 5))

	setup := DefaultSetup()
	setup.MaxTime = 1500 * time.Millisecond
	c := newClusterizer(setup)
	clock := time.Unix(0, 0)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	res := c.Clusterize(context.Background(), in)
	assert.True(t, res.Incomplete)
	assert.Len(t, res.Clusters, 1, "the first cluster was finished in time")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = newClusterizer(DefaultSetup()).Clusterize(ctx, in)
	assert.True(t, res.Incomplete)
	assert.Empty(t, res.Clusters)
}
