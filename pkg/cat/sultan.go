package cat

import (
	"context"
	"math"
	"slices"
	"time"
)

// SultanSequentiator builds sequences by assigning cells to helices. Each
// triplet of cells with a suitable spacing proposes a helix; the helix
// compatible with the most remaining cells takes them, provided they form a
// continuous piece, and the search repeats on what is left. When a CAT
// sequentiator is attached, the cells no helix takes are walked by CAT.
type SultanSequentiator struct {
	setup Setup
	near  *Clusterizer
	pitch float64
	then  *Sequentiator
	now   func() time.Time
}

func NewSultanSequentiator(setup Setup, geom Geometry, then *Sequentiator) *SultanSequentiator {
	return &SultanSequentiator{
		setup: setup,
		near:  NewClusterizer(setup, geom),
		pitch: geom.Cells.CellDiameter(),
		then:  then,
		now:   time.Now,
	}
}

// helixCandidate is a helix proposed by a triplet. u0 anchors the phase of
// the cells on it.
type helixCandidate struct {
	t  *track
	u0 float64
}

// Sequentiate returns a single scenario holding the helix sequences of every
// cluster, followed by the CAT sequences of the cells left over, or by one
// node sequences for them when no CAT sequentiator is attached. CAT
// alternatives of the left over cells add scenarios as in CAT.
func (s *SultanSequentiator) Sequentiate(ctx context.Context, res Result) (scenarios []Scenario, incomplete bool) {
	b := newBudget(ctx, s.now, s.setup.MaxTime)
	sb := sequenceBuilder{setup: s.setup, calos: res.Calos}
	hit := res.occupancy()

	var primary []*Sequence
	var swaps []swap
	for _, cl := range res.Clusters {
		seqs, leftover, ok := s.cluster(b, sb, cl, hit)
		if !ok {
			incomplete = true
			break
		}
		if len(leftover) > 0 && s.then != nil {
			rest, alt, ok := s.then.cluster(b, sb, cl.restrict(leftover))
			if !ok {
				incomplete = true
				break
			}
			if alt != nil {
				swaps = append(swaps, swap{index: len(primary) + len(seqs), alt: alt})
			}
			seqs = append(seqs, rest...)
		} else {
			for _, c := range leftover {
				seqs = append(seqs, sb.build(cl.ID, []*Cell{c}))
			}
		}
		primary = append(primary, seqs...)
	}
	scenarios = makeScenarios(primary, swaps)
	s.setup.logf(Verbose, "%d sequences, %d scenarios", len(primary), len(scenarios))
	return scenarios, incomplete
}

// cluster extracts helix sequences from one cluster until no helix takes a
// continuous piece of the remaining cells.
func (s *SultanSequentiator) cluster(b budget, sb sequenceBuilder, cl *Cluster, hit Occupancy) (seqs []*Sequence, leftover []*Cell, ok bool) {
	leftover = slices.Clone(cl.Cells)
	rmin, rmax := s.setup.Sultan.radii(s.setup.MagField)
	minCells := max(3, s.setup.Sultan.MinCells)
	for len(leftover) >= minCells {
		h, found := s.bestHelix(b, sb, leftover, rmin, rmax)
		if b.expired() {
			return seqs, leftover, false
		}
		if !found {
			break
		}
		var assigned []*Cell
		assigned, leftover = s.assign(sb, h, leftover, hit)
		if len(assigned) == 0 {
			break
		}
		seqs = append(seqs, sb.build(cl.ID, assigned))
		s.setup.logf(VVerbose, "cluster %d: helix of radius %.1f mm takes %d cells, %d left",
			cl.ID, h.t.radius, len(assigned), len(leftover))
	}
	return seqs, leftover, true
}

// candidates returns the helices of the triplets (i, j, k), i < j, i < k,
// whose neighbouring distances lie within the configured gap window.
func (s *SultanSequentiator) candidates(b budget, sb sequenceBuilder, cells []*Cell, rmin, rmax float64) []helixCandidate {
	lo := float64(s.setup.Sultan.TripletGapMin) * s.pitch
	hi := float64(s.setup.Sultan.TripletGapMin+s.setup.Sultan.TripletGapRange) * s.pitch
	inGap := func(a, c *Cell) bool {
		d := planarDistance(a.Pos, c.Pos)
		return d >= lo && d <= hi
	}
	var out []helixCandidate
	n := len(cells)
	for i := 0; i < n-2; i++ {
		if b.expired() {
			return out
		}
		for j := i + 1; j < n-1; j++ {
			if !inGap(cells[i], cells[j]) {
				continue
			}
			for k := i + 1; k < n; k++ {
				if k == j || !inGap(cells[j], cells[k]) || planarDistance(cells[i].Pos, cells[k].Pos) < lo {
					continue
				}
				if h, ok := tripletHelix(sb, []*Cell{cells[i], cells[j], cells[k]}, rmin, rmax); ok {
					out = append(out, h)
				}
			}
		}
	}
	return out
}

// tripletHelix fits a circle through the three cells, moves the points onto
// the drift circles and fits again, then fits y against the phase.
func tripletHelix(sb sequenceBuilder, cells []*Cell, rmin, rmax float64) (helixCandidate, bool) {
	pts := make([]Point, len(cells))
	for i, c := range cells {
		pts[i] = c.Pos.Planar()
	}
	xc, zc, r, err := fitCircle(pts)
	if err != nil {
		return helixCandidate{}, false
	}
	t := &track{circle: true, xc: xc, zc: zc, radius: r}
	if slices.ContainsFunc(cells, func(c *Cell) bool { return !c.Small }) {
		for i, c := range cells {
			pts[i] = sb.tangency(t, c)
		}
		if xc, zc, r, err = fitCircle(pts); err != nil {
			return helixCandidate{}, false
		}
		t = &track{circle: true, xc: xc, zc: zc, radius: r}
	}
	if t.radius < rmin || t.radius > rmax {
		return helixCandidate{}, false
	}

	us := t.unwrap(pts)
	ys := make([]float64, len(cells))
	sys := make([]float64, len(cells))
	for i, c := range cells {
		ys[i] = c.Pos.Y
		sys[i] = math.Max(c.Err.Y, sb.setup.SmallNumber)
	}
	t.fitVertical(us, ys, sys)
	return helixCandidate{t: t, u0: us[0]}, true
}

// residuals returns the bending plane distance of c to the helix less the
// drift radius, the vertical distance, and the phase of c.
func (h helixCandidate) residuals(sb sequenceBuilder, c *Cell) (dr, dh, u float64) {
	dr = h.t.distance(c.Pos) - sb.radius(c)
	u = h.u0 + wrapAngle(h.t.phase(c.Pos.Planar())-h.u0)
	dh = c.Pos.Y - (h.t.alpha + h.t.beta*u)
	return dr, dh, u
}

func (s *SultanSequentiator) compatible(sb sequenceBuilder, h helixCandidate, c *Cell) (u, chi2 float64, ok bool) {
	dr, dh, u := h.residuals(sb, c)
	sigma := sb.sigma(c)
	sy := math.Max(c.Err.Y, s.setup.SmallNumber)
	if math.Abs(dr) >= s.setup.Sultan.NSigmaR*sigma || math.Abs(dh) >= s.setup.Sultan.NSigmaZ*sy {
		return u, 0, false
	}
	return u, dr*dr/(sigma*sigma) + dh*dh/(sy*sy), true
}

// bestHelix picks the candidate compatible with the most cells, the lowest
// chi2 breaking ties. A helix that does not take at least three cells is not
// a track.
func (s *SultanSequentiator) bestHelix(b budget, sb sequenceBuilder, cells []*Cell, rmin, rmax float64) (helixCandidate, bool) {
	var best helixCandidate
	bestN, bestChi2 := 0, math.Inf(1)
	for _, h := range s.candidates(b, sb, cells, rmin, rmax) {
		n, sum := 0, 0.0
		for _, c := range cells {
			if _, chi2, ok := s.compatible(sb, h, c); ok {
				n++
				sum += chi2
			}
		}
		if n > bestN || (n == bestN && sum < bestChi2) {
			best, bestN, bestChi2 = h, n, sum
		}
	}
	return best, bestN >= 3
}

// assign takes the cells compatible with h, ordered along the helix. When
// they split into several pieces of neighbouring cells only the longest
// piece is kept, and only if it has at least three cells.
func (s *SultanSequentiator) assign(sb sequenceBuilder, h helixCandidate, cells []*Cell, hit Occupancy) (assigned, leftover []*Cell) {
	type onHelix struct {
		cell *Cell
		u    float64
	}
	var on []onHelix
	for _, c := range cells {
		if u, _, ok := s.compatible(sb, h, c); ok {
			on = append(on, onHelix{c, u})
		}
	}
	slices.SortFunc(on, func(a, b onHelix) int {
		switch {
		case a.u < b.u:
			return -1
		case a.u > b.u:
			return 1
		}
		return a.cell.ID - b.cell.ID
	})

	var pieces [][]*Cell
	for i, o := range on {
		if i == 0 || s.near.NearLevel(on[i-1].cell, o.cell, hit) == 0 {
			pieces = append(pieces, nil)
		}
		pieces[len(pieces)-1] = append(pieces[len(pieces)-1], o.cell)
	}
	var longest []*Cell
	for _, p := range pieces {
		if len(p) > len(longest) {
			longest = p
		}
	}
	if len(pieces) > 1 && len(longest) < 3 {
		longest = nil
	}

	taken := make(map[int]bool, len(longest))
	for _, c := range longest {
		taken[c.ID] = true
	}
	for _, c := range cells {
		if !taken[c.ID] {
			leftover = append(leftover, c)
		}
	}
	if len(longest) > 0 {
		foilFirst(longest)
	}
	return longest, leftover
}
