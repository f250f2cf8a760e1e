package cat

import (
	"context"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Cluster is a set of connected cells of one side and one timing class.
// Links holds the couplets kept after the triplet test, by cell id.
type Cluster struct {
	ID    int
	Side  int
	Fast  bool
	Cells []*Cell
	Links map[int][]int

	byID map[int]*Cell
}

func (c *Cluster) Cell(id int) *Cell {
	return c.byID[id]
}

// restrict returns the cluster reduced to cells, keeping the links between
// them.
func (c *Cluster) restrict(cells []*Cell) *Cluster {
	out := &Cluster{
		ID:    c.ID,
		Side:  c.Side,
		Fast:  c.Fast,
		Cells: cells,
		Links: make(map[int][]int, len(cells)),
		byID:  make(map[int]*Cell, len(cells)),
	}
	for _, cell := range cells {
		out.byID[cell.ID] = cell
	}
	for _, cell := range cells {
		for _, id := range c.Links[cell.ID] {
			if _, ok := out.byID[id]; ok {
				out.Links[cell.ID] = append(out.Links[cell.ID], id)
			}
		}
	}
	return out
}

// Result carries the clusters and the calorimeter blocks on to the
// sequentiator.
type Result struct {
	Clusters   []*Cluster
	Calos      []*CaloBlock
	Incomplete bool
}

func (r Result) occupancy() Occupancy {
	var cells []*Cell
	for _, cl := range r.Clusters {
		cells = append(cells, cl.Cells...)
	}
	return NewOccupancy(cells)
}

type cellKey struct{ side, layer, row int }

// Occupancy tells which cells of the event were hit.
type Occupancy map[cellKey]bool

func NewOccupancy(cells []*Cell) Occupancy {
	o := make(Occupancy, len(cells))
	for _, c := range cells {
		o[cellKey{c.Side, c.Layer, c.Row}] = true
	}
	return o
}

func (o Occupancy) Has(side, layer, row int) bool {
	return o[cellKey{side, layer, row}]
}

// budget is the soft wall clock limit shared by the clusterizer and the
// sequentiator.
type budget struct {
	ctx      context.Context
	now      func() time.Time
	deadline time.Time
}

func newBudget(ctx context.Context, now func() time.Time, d time.Duration) budget {
	return budget{ctx: ctx, now: now, deadline: now().Add(d)}
}

func (b budget) expired() bool {
	return b.ctx.Err() != nil || b.now().After(b.deadline)
}

type Clusterizer struct {
	setup Setup
	pitch float64
	now   func() time.Time
}

func NewClusterizer(setup Setup, geom Geometry) *Clusterizer {
	return &Clusterizer{setup: setup, pitch: geom.Cells.CellDiameter(), now: time.Now}
}

// NearLevel returns 2 for side by side cells, 1 for diagonal cells or cells
// of the same row separated by at most nofflayers missing layers, 0 otherwise.
func (c *Clusterizer) NearLevel(a, b *Cell, hit Occupancy) int {
	if a.Side != b.Side || a.ID == b.ID {
		return 0
	}
	d := planarDistance(a.Pos, b.Pos)
	tolerance := 0.15 * c.pitch
	if math.Abs(d-c.pitch) < tolerance && (a.Layer == b.Layer || a.Row == b.Row) {
		return 2
	}
	if math.Abs(d-math.Sqrt2*c.pitch) < tolerance {
		return 1
	}
	if c.setup.NOffLayers == 0 || a.Row != b.Row {
		return 0
	}
	lo, hi := min(a.Layer, b.Layer), max(a.Layer, b.Layer)
	if hi-lo < 2 || hi-lo > c.setup.NOffLayers+1 {
		return 0
	}
	for layer := lo + 1; layer < hi; layer++ {
		if hit.Has(a.Side, layer, a.Row) {
			return 0
		}
	}
	return 1
}

// Clusterize groups the cells of each side and timing class into connected
// clusters. When the time budget runs out or ctx is cancelled the clusters
// finished so far are returned and the result is marked incomplete.
func (c *Clusterizer) Clusterize(ctx context.Context, in Input) Result {
	b := newBudget(ctx, c.now, c.setup.MaxTime)
	hit := NewOccupancy(in.Cells)
	cells := slices.Clone(in.Cells)
	slices.SortFunc(cells, func(x, y *Cell) int { return x.ID - y.ID })

	res := Result{Calos: in.Calos}
	for _, side := range []int{1, -1} {
		for _, fast := range []bool{true, false} {
			var group []*Cell
			for _, cell := range cells {
				if cell.Side == side && cell.Fast == fast {
					group = append(group, cell)
				}
			}
			visited := make(map[int]bool, len(group))
			for _, seed := range group {
				if visited[seed.ID] {
					continue
				}
				if b.expired() {
					res.Incomplete = true
					return res
				}
				members := c.flood(seed, group, hit, visited)
				cluster, ok := c.link(b, len(res.Clusters), members, hit)
				if !ok {
					res.Incomplete = true
					return res
				}
				cluster.Side, cluster.Fast = side, fast
				res.Clusters = append(res.Clusters, cluster)
			}
		}
	}
	c.setup.logf(Verbose, "%d cells in %d clusters", len(cells), len(res.Clusters))
	return res
}

func (c *Clusterizer) flood(seed *Cell, group []*Cell, hit Occupancy, visited map[int]bool) []*Cell {
	visited[seed.ID] = true
	members := []*Cell{seed}
	for i := 0; i < len(members); i++ {
		cur := members[i]
		for _, other := range group {
			if !visited[other.ID] && c.NearLevel(cur, other, hit) > 0 {
				visited[other.ID] = true
				members = append(members, other)
			}
		}
	}
	slices.SortFunc(members, func(x, y *Cell) int { return x.ID - y.ID })
	return members
}

// link builds the couplets of a cluster and drops a-c whenever a cell b
// between them makes a good triplet.
func (c *Clusterizer) link(b budget, id int, members []*Cell, hit Occupancy) (*Cluster, bool) {
	cluster := &Cluster{
		ID:    id,
		Cells: members,
		Links: make(map[int][]int, len(members)),
		byID:  make(map[int]*Cell, len(members)),
	}
	near := make(map[int][]*Cell, len(members))
	for _, m := range members {
		cluster.byID[m.ID] = m
		for _, o := range members {
			if c.NearLevel(m, o, hit) > 0 {
				near[m.ID] = append(near[m.ID], o)
			}
		}
	}
	for _, a := range members {
		for _, other := range near[a.ID] {
			keep := true
			for _, mid := range near[a.ID] {
				if mid == other || !slices.Contains(near[other.ID], mid) || !between(a, mid, other) {
					continue
				}
				if b.expired() {
					return nil, false
				}
				if c.tripletProb(a, mid, other) >= c.setup.ProbMin {
					keep = false
					break
				}
			}
			if keep {
				cluster.Links[a.ID] = append(cluster.Links[a.ID], other.ID)
			}
		}
	}
	return cluster, true
}

// between reports whether b projects strictly inside the segment a-c in the
// bending plane.
func between(a, b, c *Cell) bool {
	ac := c.Pos.Sub(a.Pos).Planar()
	l2 := ac.Dot(ac)
	if l2 == 0 {
		return false
	}
	t := b.Pos.Sub(a.Pos).Planar().Dot(ac) / l2
	return t > 0 && t < 1
}

// tripletProb is the probability that the middle cell of a triplet lies on
// the straight line joining the outer ones.
func (c *Clusterizer) tripletProb(a, b, cc *Cell) float64 {
	dir := cc.Pos.Sub(a.Pos).Planar().Unit()
	rel := b.Pos.Sub(a.Pos).Planar()
	dist := math.Abs(cross2(rel, dir))
	r := b.R
	if b.Small {
		r = 0
	}
	sigma := math.Max(b.ER, c.setup.SmallNumber)
	chi2 := (dist - r) * (dist - r) / (sigma * sigma)
	return distuv.ChiSquared{K: 1}.Survival(chi2)
}
