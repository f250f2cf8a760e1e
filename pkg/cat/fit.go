package cat

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// maxRadius is the largest circle radius (mm) still fitted as a circle.
const maxRadius = 1e6

var errDegenerateCircle = errors.New("degenerate circle")

// track is a helix, or a straight line when the bending plane fit did not
// give a usable circle. The vertical coordinate is y = alpha + beta*u where
// u is the phase on the circle or the path length along the line.
type track struct {
	circle bool
	xc, zc float64
	radius float64
	p0     Point
	dir    Point
	alpha  float64
	beta   float64
}

// fitCircle is the algebraic (Kasa) circle fit
// x^2 + z^2 + D x + E z + F = 0 in the least squares sense.
func fitCircle(pts []Point) (xc, zc, r float64, err error) {
	n := len(pts)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range pts {
		a.Set(i, 0, p.X)
		a.Set(i, 1, p.Z)
		a.Set(i, 2, 1)
		b.SetVec(i, -(p.X*p.X + p.Z*p.Z))
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return 0, 0, 0, err
	}
	xc, zc = -sol.AtVec(0)/2, -sol.AtVec(1)/2
	r2 := xc*xc + zc*zc - sol.AtVec(2)
	if r2 <= 0 || math.IsNaN(r2) {
		return 0, 0, 0, errDegenerateCircle
	}
	return xc, zc, math.Sqrt(r2), nil
}

// fitLine regresses the coordinate with the smaller spread against the other
// one, so that rows and layers are both handled.
func fitLine(pts []Point) (p0, dir Point) {
	xs := make([]float64, len(pts))
	zs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], zs[i] = p.X, p.Z
	}
	if len(pts) == 1 {
		return pts[0], Point{Z: 1}
	}
	if floats.Max(zs)-floats.Min(zs) >= floats.Max(xs)-floats.Min(xs) {
		a, b := stat.LinearRegression(zs, xs, nil, false)
		p0, dir = Point{X: a}, Point{X: b, Z: 1}.Unit()
	} else {
		a, b := stat.LinearRegression(xs, zs, nil, false)
		p0, dir = Point{Z: a}, Point{X: 1, Z: b}.Unit()
	}
	if dir.Dot(pts[len(pts)-1].Sub(pts[0])) < 0 {
		dir = dir.Scale(-1)
	}
	return p0, dir
}

// planarFit fits the bending plane points with a circle when possible.
func planarFit(pts []Point) *track {
	if len(pts) >= 3 {
		if xc, zc, r, err := fitCircle(pts); err == nil && r <= maxRadius {
			return &track{circle: true, xc: xc, zc: zc, radius: r}
		}
	}
	p0, dir := fitLine(pts)
	return &track{p0: p0, dir: dir}
}

// distance is the bending plane distance from p to the track.
func (t *track) distance(p Point) float64 {
	if t.circle {
		return math.Abs(math.Hypot(p.X-t.xc, p.Z-t.zc) - t.radius)
	}
	return math.Abs(cross2(p.Sub(t.p0).Planar(), t.dir))
}

// closest is the point of the track nearest to p in the bending plane.
func (t *track) closest(p Point) Point {
	if t.circle {
		d := Point{X: p.X - t.xc, Z: p.Z - t.zc}.Unit()
		return Point{X: t.xc, Z: t.zc}.Add(d.Scale(t.radius))
	}
	rel := p.Sub(t.p0).Planar()
	return t.p0.Add(t.dir.Scale(rel.Dot(t.dir))).Planar()
}

// phase is the track parameter of a bending plane point, wrapped for circles.
func (t *track) phase(p Point) float64 {
	if t.circle {
		return math.Atan2(p.Z-t.zc, p.X-t.xc)
	}
	return p.Sub(t.p0).Planar().Dot(t.dir)
}

// unwrap returns the track parameters of consecutive points without 2 pi
// jumps.
func (t *track) unwrap(pts []Point) []float64 {
	us := make([]float64, len(pts))
	for i, p := range pts {
		us[i] = t.phase(p)
		if t.circle && i > 0 {
			us[i] = us[i-1] + wrapAngle(us[i]-us[i-1])
		}
	}
	return us
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// at is the helix point for the parameter u.
func (t *track) at(u float64) Point {
	y := t.alpha + t.beta*u
	if t.circle {
		return Point{X: t.xc + t.radius*math.Cos(u), Y: y, Z: t.zc + t.radius*math.Sin(u)}
	}
	p := t.p0.Add(t.dir.Scale(u))
	p.Y = y
	return p
}

// derivative is dP/du.
func (t *track) derivative(u float64) Point {
	if t.circle {
		return Point{X: -t.radius * math.Sin(u), Y: t.beta, Z: t.radius * math.Cos(u)}
	}
	return Point{X: t.dir.X, Y: t.beta, Z: t.dir.Z}
}

// fitVertical fits y against the track parameter.
func (t *track) fitVertical(us, ys, sigmas []float64) {
	if len(us) < 2 || floats.Max(us)-floats.Min(us) == 0 {
		t.alpha, t.beta = stat.Mean(ys, nil), 0
		return
	}
	weights := make([]float64, len(sigmas))
	for i, s := range sigmas {
		weights[i] = 1 / (s * s)
	}
	t.alpha, t.beta = stat.LinearRegression(us, ys, weights, false)
}
