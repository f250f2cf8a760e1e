package cat

import (
	"context"
	"math"
	"slices"
	"time"
)

// Scenario is one consistent set of sequences covering the clusters of an
// event.
type Scenario struct {
	Sequences []*Sequence
	Chi2      float64
	NDOF      int
}

func newScenario(seqs []*Sequence) Scenario {
	s := Scenario{Sequences: seqs}
	for _, seq := range seqs {
		s.Chi2 += seq.Chi2
		s.NDOF += seq.NDOF()
	}
	return s
}

type Sequentiator struct {
	setup Setup
	now   func() time.Time
}

func NewSequentiator(setup Setup) *Sequentiator {
	return &Sequentiator{setup: setup, now: time.Now}
}

// candidate is one walk through the remaining cells of a cluster.
type candidate struct {
	start int
	seq   *Sequence
}

// better ranks walks: more cells, then lower chi2, then lower start id.
func (c candidate) better(o candidate) bool {
	if len(c.seq.Nodes) != len(o.seq.Nodes) {
		return len(c.seq.Nodes) > len(o.seq.Nodes)
	}
	if c.seq.Chi2 != o.seq.Chi2 {
		return c.seq.Chi2 < o.seq.Chi2
	}
	return c.start < o.start
}

// Sequentiate orders the cells of every cluster into sequences. The first
// scenario holds the best sequences; each cluster with a near equivalent
// alternative ordering adds one scenario where that ordering replaces the
// best one. On timeout or cancellation the sequences built so far are
// returned and incomplete is true.
func (s *Sequentiator) Sequentiate(ctx context.Context, res Result) (scenarios []Scenario, incomplete bool) {
	b := newBudget(ctx, s.now, s.setup.MaxTime)
	sb := sequenceBuilder{setup: s.setup, calos: res.Calos}

	var primary []*Sequence
	var swaps []swap
	for _, cl := range res.Clusters {
		seqs, alt, ok := s.cluster(b, sb, cl)
		if !ok {
			incomplete = true
			break
		}
		if alt != nil {
			swaps = append(swaps, swap{index: len(primary), alt: alt})
		}
		primary = append(primary, seqs...)
	}
	scenarios = makeScenarios(primary, swaps)
	s.setup.logf(Verbose, "%d sequences, %d scenarios", len(primary), len(scenarios))
	return scenarios, incomplete
}

// swap replaces the sequence at index of the primary scenario by an
// alternative ordering of the same cells.
type swap struct {
	index int
	alt   *Sequence
}

func makeScenarios(primary []*Sequence, swaps []swap) []Scenario {
	if len(primary) == 0 {
		return nil
	}
	scenarios := []Scenario{newScenario(primary)}
	for _, sw := range swaps {
		seqs := slices.Clone(primary)
		seqs[sw.index] = sw.alt
		scenarios = append(scenarios, newScenario(seqs))
	}
	return scenarios
}

// cluster splits one cluster into sequences, longest walk first, until every
// cell is used. alt is the alternative ordering of the first sequence, if
// one qualifies.
func (s *Sequentiator) cluster(b budget, sb sequenceBuilder, cl *Cluster) (seqs []*Sequence, alt *Sequence, ok bool) {
	remaining := make(map[int]bool, len(cl.Cells))
	for _, c := range cl.Cells {
		remaining[c.ID] = true
	}
	for len(remaining) > 0 {
		var cands []candidate
		for _, start := range s.starts(cl, remaining) {
			if b.expired() {
				return seqs, nil, false
			}
			cells := s.walk(cl, start, remaining)
			cands = append(cands, candidate{start: start.ID, seq: sb.build(cl.ID, cells)})
		}
		best := cands[0]
		for _, c := range cands[1:] {
			if c.better(best) {
				best = c
			}
		}
		if len(seqs) == 0 {
			alt = s.alternative(best, cands)
		}
		seqs = append(seqs, best.seq)
		for _, n := range best.seq.Nodes {
			delete(remaining, n.Cell.ID)
		}
	}
	return seqs, alt, true
}

// alternative returns the best other ordering of the same cells when its
// chi2 is within ratio of the best one.
func (s *Sequentiator) alternative(best candidate, cands []candidate) *Sequence {
	ids := best.seq.IDs()
	slices.Sort(ids)
	order := best.seq.IDs()
	reverse := slices.Clone(order)
	slices.Reverse(reverse)

	var alt *candidate
	for i, c := range cands {
		cids := c.seq.IDs()
		if slices.Equal(cids, order) || slices.Equal(cids, reverse) {
			continue
		}
		slices.Sort(cids)
		if !slices.Equal(cids, ids) {
			continue
		}
		if alt == nil || c.better(*alt) {
			alt = &cands[i]
		}
	}
	if alt == nil || math.Abs(alt.seq.Chi2-best.seq.Chi2)*s.setup.Ratio > best.seq.Chi2 {
		return nil
	}
	return alt.seq
}

// starts returns the end cells of the remaining graph, or the cells of the
// innermost and outermost layers when there is no end cell.
func (s *Sequentiator) starts(cl *Cluster, remaining map[int]bool) []*Cell {
	var ends, left []*Cell
	for _, c := range cl.Cells {
		if !remaining[c.ID] {
			continue
		}
		left = append(left, c)
		degree := 0
		for _, id := range cl.Links[c.ID] {
			if remaining[id] {
				degree++
			}
		}
		if degree == 1 {
			ends = append(ends, c)
		}
	}
	if len(ends) > 0 {
		return ends
	}
	inner, outer := left[0], left[0]
	for _, c := range left[1:] {
		if abs(c.Layer) < abs(inner.Layer) {
			inner = c
		}
		if abs(c.Layer) > abs(outer.Layer) {
			outer = c
		}
	}
	if inner == outer {
		return []*Cell{inner}
	}
	return []*Cell{inner, outer}
}

// walk follows the links from start, always taking the unvisited neighbour
// with the smallest turn. The first step goes to the nearest neighbour.
func (s *Sequentiator) walk(cl *Cluster, start *Cell, remaining map[int]bool) []*Cell {
	path := []*Cell{start}
	visited := map[int]bool{start.ID: true}
	cur := start
	for {
		var next *Cell
		var score float64
		for _, id := range cl.Links[cur.ID] {
			if !remaining[id] || visited[id] {
				continue
			}
			cand := cl.Cell(id)
			step := cand.Pos.Sub(cur.Pos)
			v := planarDistance(cand.Pos, cur.Pos)
			if len(path) > 1 {
				prev := cur.Pos.Sub(path[len(path)-2].Pos)
				v = turnAngle(prev, step)
				if v > s.setup.QuadrantAngle || verticalTurn(prev, step) > s.setup.TangentTheta {
					continue
				}
			}
			if next == nil || v < score || (v == score && cand.ID < next.ID) {
				next, score = cand, v
			}
		}
		if next == nil {
			break
		}
		visited[next.ID] = true
		path = append(path, next)
		cur = next
	}
	foilFirst(path)
	return path
}

// foilFirst reverses path when its last cell is closer to the foil.
func foilFirst(path []*Cell) {
	first, last := path[0], path[len(path)-1]
	if abs(first.Layer) > abs(last.Layer) || (abs(first.Layer) == abs(last.Layer) && first.ID > last.ID) {
		slices.Reverse(path)
	}
}

// verticalTurn is the angle in degrees between two steps seen in the plane
// of the path length and y.
func verticalTurn(a, b Point) float64 {
	sa, sb := math.Hypot(a.X, a.Z), math.Hypot(b.X, b.Z)
	na, nb := math.Hypot(sa, a.Y), math.Hypot(sb, b.Y)
	if na == 0 || nb == 0 {
		return 0
	}
	c := (sa*sb + a.Y*b.Y) / (na * nb)
	return math.Acos(math.Max(-1, math.Min(1, c))) * 180 / math.Pi
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
