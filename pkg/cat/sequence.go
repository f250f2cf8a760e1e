package cat

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Measure is a derived quantity that may be missing.
type Measure struct {
	Value float64
	Error float64
	Valid bool
}

type Vertex struct {
	Type   string
	Pos    Point
	Err    Point
	CaloID int // -1 when no block matches
}

type Node struct {
	Cell        *Cell
	Tangency    Point
	TangencyErr Point
	Helix       Point
	HelixErr    Point
	Chi2        float64
	Prob        float64
	HelixChi2   float64
}

// Sequence is an ordered walk through the cells of a cluster with its helix
// (or line) fit. The first node is the one closest to the foil.
type Sequence struct {
	Cluster int
	Nodes   []Node
	Helix   bool
	Center  Point
	Radius  float64
	Pitch   float64
	Chi2    float64

	Chi2sAll   []float64
	ProbsAll   []float64
	Chi2s      []float64
	Probs      []float64
	HelixChi2s []float64

	Charge         Measure
	HelixCharge    Measure
	DetailedCharge Measure
	Momentum       Point
	HasMomentum    bool
	TangentLength  Measure
	HelixLength    Measure

	HelixVertex        *Vertex
	TangentVertex      *Vertex
	HelixDecayVertex   *Vertex
	TangentDecayVertex *Vertex
}

func (s *Sequence) IDs() []int {
	ids := make([]int, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.Cell.ID
	}
	return ids
}

func (s *Sequence) NDOF() int {
	params := 2
	if s.Helix {
		params = 3
	}
	return max(len(s.Nodes)-params, 0)
}

type plane struct {
	axis  int // 0 x, 1 y, 2 z
	value float64
	kind  string
}

func coord(p Point, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	}
	return p.Z
}

var foilPlanes = []plane{{axis: 2, value: 0, kind: KindFoil}}

func (s Setup) decayPlanes() []plane {
	return []plane{
		{2, s.ZSize, KindMain}, {2, -s.ZSize, KindMain},
		{0, s.XSize, KindXWall}, {0, -s.XSize, KindXWall},
		{1, s.YSize, KindGveto}, {1, -s.YSize, KindGveto},
	}
}

// sequenceBuilder fits an ordered list of cells and derives the track
// quantities.
type sequenceBuilder struct {
	setup Setup
	calos []*CaloBlock
}

func (sb sequenceBuilder) sigma(c *Cell) float64 {
	return math.Max(c.ER, sb.setup.SmallNumber)
}

func (sb sequenceBuilder) radius(c *Cell) float64 {
	if c.Small {
		return 0
	}
	return c.R
}

func (sb sequenceBuilder) build(cluster int, cells []*Cell) *Sequence {
	seq := &Sequence{Cluster: cluster, Nodes: make([]Node, len(cells))}
	for i, c := range cells {
		seq.Nodes[i] = Node{Cell: c, Tangency: c.Pos, Helix: c.Pos, Prob: 1}
	}
	if len(cells) < 2 {
		return seq
	}

	centres := make([]Point, len(cells))
	for i, c := range cells {
		centres[i] = c.Pos.Planar()
	}
	t := sb.planarFit(cells, centres)
	pts := centres
	if slices.ContainsFunc(cells, func(c *Cell) bool { return !c.Small }) {
		pts = make([]Point, len(cells))
		for i, c := range cells {
			pts[i] = sb.tangency(t, c)
		}
		t = sb.planarFit(cells, pts)
	}

	us := t.unwrap(pts)
	ys := make([]float64, len(cells))
	sys := make([]float64, len(cells))
	for i, c := range cells {
		ys[i] = c.Pos.Y
		sys[i] = math.Max(c.Err.Y, sb.setup.SmallNumber)
	}
	t.fitVertical(us, ys, sys)

	chi2dist := distuv.ChiSquared{K: 1}
	for i, c := range cells {
		n := &seq.Nodes[i]
		sigma := sb.sigma(c)
		res := (t.distance(c.Pos) - sb.radius(c)) / sigma
		n.Chi2 = res * res
		n.Prob = chi2dist.Survival(n.Chi2)
		vres := (c.Pos.Y - (t.alpha + t.beta*us[i])) / sys[i]
		n.HelixChi2 = n.Chi2 + vres*vres
		n.Tangency = Point{X: pts[i].X, Y: c.Pos.Y, Z: pts[i].Z}
		n.TangencyErr = Point{X: sigma, Y: sys[i], Z: sigma}
		n.Helix = t.at(us[i])
		n.HelixErr = n.TangencyErr

		seq.Chi2 += n.Chi2
		seq.Chi2sAll = append(seq.Chi2sAll, n.Chi2)
		seq.ProbsAll = append(seq.ProbsAll, n.Prob)
		seq.HelixChi2s = append(seq.HelixChi2s, n.HelixChi2)
		if n.Prob >= sb.setup.ProbMin && n.Chi2 <= sb.setup.NSigma*sb.setup.NSigma {
			seq.Chi2s = append(seq.Chi2s, n.Chi2)
			seq.Probs = append(seq.Probs, n.Prob)
		}
	}

	seq.Helix = t.circle
	seq.Pitch = t.beta
	if t.circle {
		seq.Center = Point{X: t.xc, Z: t.zc}
		seq.Radius = t.radius
	}
	sb.derive(seq, t, pts, us)
	return seq
}

// planarFit prefers a circle, unless a straight line already describes the
// cells within max_chi2 per degree of freedom.
func (sb sequenceBuilder) planarFit(cells []*Cell, pts []Point) *track {
	t := planarFit(pts)
	if !t.circle || len(pts) < 3 {
		return t
	}
	p0, dir := fitLine(pts)
	line := &track{p0: p0, dir: dir}
	var chi2 float64
	for _, c := range cells {
		res := (line.distance(c.Pos) - sb.radius(c)) / sb.sigma(c)
		chi2 += res * res
	}
	if chi2/float64(len(pts)-2) <= sb.setup.MaxChi2 {
		return line
	}
	return t
}

// tangency moves the cell centre onto its drift circle, on the side facing
// the track.
func (sb sequenceBuilder) tangency(t *track, c *Cell) Point {
	centre := c.Pos.Planar()
	r := sb.radius(c)
	d := t.closest(centre).Sub(centre)
	if r == 0 || d.Norm() == 0 {
		return centre
	}
	return centre.Add(d.Unit().Scale(r))
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// minTurn (degrees) is the smallest triplet turn that carries a sign.
const minTurn = 1e-6

func (sb sequenceBuilder) derive(seq *Sequence, t *track, pts []Point, us []float64) {
	n := len(pts)
	first, last := seq.Nodes[0], seq.Nodes[n-1]
	travel := sign(us[n-1] - us[0])
	if travel == 0 {
		travel = 1
	}

	if t.circle {
		if c := cross2(pts[1].Sub(pts[0]), pts[n-1].Sub(pts[n-2])); c != 0 {
			seq.Charge = Measure{Value: -sign(c), Valid: true}
		}
		if us[n-1] != us[0] {
			seq.HelixCharge = Measure{Value: travel, Valid: true}
		}
	}
	var signs, weights []float64
	for i := 1; i < n-1; i++ {
		v1, v2 := pts[i].Sub(pts[i-1]), pts[i+1].Sub(pts[i])
		angle, c := turnAngle(v1, v2), cross2(v1, v2)
		if c == 0 || angle < minTurn || angle > sb.setup.TangentPhi {
			continue
		}
		signs = append(signs, -sign(c))
		weights = append(weights, angle)
	}
	if len(signs) > 0 {
		m := stat.Mean(signs, nil)
		if m == 0 {
			m = stat.Mean(signs, weights)
		}
		if m != 0 {
			seq.DetailedCharge = Measure{Value: sign(m), Valid: true}
		}
	}

	if t.circle && sb.setup.MagField > 0 {
		p := 0.3 * sb.setup.MagField * math.Hypot(t.radius, t.beta)
		seq.Momentum = t.derivative(us[0]).Scale(travel).Unit().Scale(p)
		seq.HasMomentum = true
	}

	var length, errSum float64
	for i, node := range seq.Nodes {
		if i > 0 {
			length += node.Tangency.Distance(seq.Nodes[i-1].Tangency)
		}
		errSum += node.TangencyErr.X * node.TangencyErr.X
	}
	lengthErr := math.Sqrt(errSum)
	seq.TangentLength = Measure{Value: length, Error: lengthErr, Valid: true}
	scale := math.Hypot(1, t.beta)
	if t.circle {
		scale = math.Hypot(t.radius, t.beta)
	}
	seq.HelixLength = Measure{Value: math.Abs(us[n-1]-us[0]) * scale, Error: lengthErr, Valid: true}

	if p, pl, ok := t.crossing(us[0], -travel, foilPlanes); ok {
		seq.HelixVertex = &Vertex{Type: pl.kind, Pos: p, Err: first.TangencyErr, CaloID: -1}
	}
	if p, pl, ok := rayCrossing(first.Tangency, first.Tangency.Sub(seq.Nodes[1].Tangency), foilPlanes); ok {
		seq.TangentVertex = &Vertex{Type: pl.kind, Pos: p, Err: first.TangencyErr, CaloID: -1}
	}
	decay := sb.setup.decayPlanes()
	if p, pl, ok := t.crossing(us[n-1], travel, decay); ok {
		seq.HelixDecayVertex = &Vertex{Type: pl.kind, Pos: p, Err: last.TangencyErr, CaloID: sb.matchCalo(p, pl)}
	}
	if p, pl, ok := rayCrossing(last.Tangency, last.Tangency.Sub(seq.Nodes[n-2].Tangency), decay); ok {
		seq.TangentDecayVertex = &Vertex{Type: pl.kind, Pos: p, Err: last.TangencyErr, CaloID: sb.matchCalo(p, pl)}
	}
}

// matchCalo returns the id of the calorimeter hit whose block faces p, or -1.
func (sb sequenceBuilder) matchCalo(p Point, pl plane) int {
	id, best := -1, math.Inf(1)
	a1, a2 := (pl.axis+1)%3, (pl.axis+2)%3
	for _, b := range sb.calos {
		if b.Kind != pl.kind || sign(coord(b.Pos, pl.axis)) != sign(pl.value) {
			continue
		}
		d1 := math.Abs(coord(p, a1) - coord(b.Pos, a1))
		d2 := math.Abs(coord(p, a2) - coord(b.Pos, a2))
		if d1 > sb.setup.CompatDist+b.Width/2 || d2 > sb.setup.CompatDist+b.Height/2 {
			continue
		}
		if d := math.Hypot(d1, d2); d < best || (d == best && b.ID < id) {
			id, best = b.ID, d
		}
	}
	return id
}

const crossingEpsilon = 1e-9

// rayCrossing returns the first plane hit by the ray o + t*d, t > 0.
func rayCrossing(o, d Point, planes []plane) (Point, plane, bool) {
	best := math.Inf(1)
	var hit plane
	for _, pl := range planes {
		dc := coord(d, pl.axis)
		if dc == 0 {
			continue
		}
		if t := (pl.value - coord(o, pl.axis)) / dc; t > crossingEpsilon && t < best {
			best, hit = t, pl
		}
	}
	if math.IsInf(best, 1) {
		return Point{}, plane{}, false
	}
	return o.Add(d.Scale(best)), hit, true
}

// crossing follows the track from u0 in the direction s (+1 or -1) and
// returns the first plane reached within one turn.
func (t *track) crossing(u0, s float64, planes []plane) (Point, plane, bool) {
	if !t.circle {
		return rayCrossing(t.at(u0), t.derivative(u0).Scale(s), planes)
	}
	best := math.Inf(1)
	var hit plane
	consider := func(u float64, pl plane) {
		d := math.Mod(s*(u-u0), 2*math.Pi)
		if d < 0 {
			d += 2 * math.Pi
		}
		if d > crossingEpsilon && d < best {
			best, hit = d, pl
		}
	}
	for _, pl := range planes {
		switch pl.axis {
		case 0:
			if c := (pl.value - t.xc) / t.radius; math.Abs(c) <= 1 {
				a := math.Acos(c)
				consider(a, pl)
				consider(-a, pl)
			}
		case 1:
			if t.beta == 0 {
				continue
			}
			u := (pl.value - t.alpha) / t.beta
			if d := s * (u - u0); d > crossingEpsilon && d <= 2*math.Pi && d < best {
				best, hit = d, pl
			}
		case 2:
			if sn := (pl.value - t.zc) / t.radius; math.Abs(sn) <= 1 {
				a := math.Asin(sn)
				consider(a, pl)
				consider(math.Pi-a, pl)
			}
		}
	}
	if math.IsInf(best, 1) {
		return Point{}, plane{}, false
	}
	return t.at(u0 + s*best), hit, true
}
