package cat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func circlePoints(xc, zc, r float64, phases ...float64) []Point {
	pts := make([]Point, len(phases))
	for i, u := range phases {
		pts[i] = Point{X: xc + r*math.Cos(u), Z: zc + r*math.Sin(u)}
	}
	return pts
}

func TestFitCircle(t *testing.T) {
	pts := circlePoints(120, -40, 500, 0.1, 0.3, 0.5, 0.7, 0.9)
	xc, zc, r, err := fitCircle(pts)
	require.NoError(t, err)
	assert.InDelta(t, 120, xc, 1e-6)
	assert.InDelta(t, -40, zc, 1e-6)
	assert.InDelta(t, 500, r, 1e-6)

	tr := planarFit(pts)
	assert.True(t, tr.circle)
	for _, p := range pts {
		assert.InDelta(t, 0, tr.distance(p), 1e-6)
	}
}

func TestPlanarFitFallsBackToLine(t *testing.T) {
	collinear := []Point{{X: 0, Z: 0}, {X: 10, Z: 10}, {X: 20, Z: 20}, {X: 30, Z: 30}}
	tr := planarFit(collinear)
	require.False(t, tr.circle)
	assert.InDelta(t, 0, tr.distance(Point{X: 50, Z: 50}), 1e-9)
	assert.InDelta(t, math.Sqrt2*5, tr.distance(Point{X: 10, Z: 20}), 1e-9)

	two := planarFit([]Point{{X: 1, Z: 1}, {X: 2, Z: 3}})
	assert.False(t, two.circle)
}

func TestFitLineAlongRows(t *testing.T) {
	pts := []Point{{X: 30, Z: 100}, {X: 20, Z: 100}, {X: 10, Z: 100}}
	p0, dir := fitLine(pts)
	assert.InDelta(t, 100, p0.Z, 1e-9)
	assert.InDelta(t, -1, dir.X, 1e-9, "oriented from the first point to the last")
	assert.InDelta(t, 0, dir.Z, 1e-9)

	tr := &track{p0: p0, dir: dir}
	assert.InDelta(t, 3, tr.distance(Point{X: 5, Z: 103}), 1e-9)
	assert.Equal(t, Point{X: 5, Z: 100}, tr.closest(Point{X: 5, Z: 103}))
}

func TestUnwrap(t *testing.T) {
	tr := &track{circle: true, radius: 10}
	us := tr.unwrap(circlePoints(0, 0, 10, 3.0, 3.1, -3.1, -3.0))
	assert.InDelta(t, 3.0, us[0], 1e-9)
	assert.InDelta(t, 2*math.Pi-3.0, us[3], 1e-9)

	assert.InDelta(t, -math.Pi/2, wrapAngle(3*math.Pi/2), 1e-12)
	assert.InDelta(t, math.Pi, wrapAngle(-math.Pi), 1e-12)
}

func TestTrackCrossing(t *testing.T) {
	tr := &track{circle: true, radius: 100}
	p, pl, ok := tr.crossing(0, 1, []plane{{2, 50, KindMain}, {2, -50, KindMain}})
	require.True(t, ok)
	assert.Equal(t, 50.0, pl.value)
	assert.InDelta(t, 100*math.Cos(math.Pi/6), p.X, 1e-9)
	assert.InDelta(t, 50, p.Z, 1e-9)

	p, pl, ok = tr.crossing(0, -1, []plane{{2, 50, KindMain}, {2, -50, KindMain}})
	require.True(t, ok)
	assert.Equal(t, -50.0, pl.value, "going clockwise reaches the other plane first")
	assert.InDelta(t, -50, p.Z, 1e-9)

	_, _, ok = tr.crossing(0, 1, []plane{{0, 500, KindXWall}})
	assert.False(t, ok, "the circle never reaches x = 500")

	tr.beta = 10
	p, pl, ok = tr.crossing(0, 1, []plane{{1, 5, KindGveto}})
	require.True(t, ok)
	assert.Equal(t, KindGveto, pl.kind)
	assert.InDelta(t, 5, p.Y, 1e-9)
}

func TestRayCrossing(t *testing.T) {
	p, pl, ok := rayCrossing(Point{X: 3, Z: 10}, Point{X: 1, Z: -1}, foilPlanes)
	require.True(t, ok)
	assert.Equal(t, KindFoil, pl.kind)
	assert.Equal(t, Point{X: 13, Z: 0}, p)

	_, _, ok = rayCrossing(Point{Z: 10}, Point{X: 1}, foilPlanes)
	assert.False(t, ok)
	_, _, ok = rayCrossing(Point{Z: 10}, Point{Z: 1}, foilPlanes)
	assert.False(t, ok, "the foil is behind")
}
