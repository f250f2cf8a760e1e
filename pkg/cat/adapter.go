package cat

import (
	"fmt"
	"math"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Cell is a drift cell hit in the engine frame.
type Cell struct {
	ID    int
	Side  int // -1 or +1
	Layer int // signed, negative on side 0
	Row   int // centred on the middle of the tracker
	Pos   Point
	Err   Point
	R     float64
	ER    float64
	Fast  bool
	Small bool
}

func (c *Cell) String() string {
	return fmt.Sprintf("cell %d (side %+d layer %+d row %+d)", c.ID, c.Side, c.Layer, c.Row)
}

// Calorimeter kinds, as written in vertex types.
const (
	KindMain  = "calo"
	KindXWall = "xcalo"
	KindGveto = "gveto"
	KindFoil  = "foil"
)

// CaloBlock is a calorimeter hit with the geometry of its block.
type CaloBlock struct {
	ID        int
	Kind      string // empty when no locator claimed the hit
	Pos       Point
	Normal    Point
	Width     float64
	Height    float64
	Thickness float64
	Energy    float64
	Time      float64
}

// Input is the adapted event. The maps route engine ids back to host hits.
type Input struct {
	Cells         []*Cell
	Calos         []*CaloBlock
	CellHits      map[int]*snemo.TrackerHit
	CaloHits      map[int]*snemo.CaloHit
	CaloFallbacks int
}

// Geometry bundles the locators used by the adapter.
type Geometry struct {
	Cells    snemo.CellLocator
	MainWall snemo.BlockLocator
	XWall    snemo.BlockLocator
	Gveto    snemo.BlockLocator
}

func DemonstratorGeometry() Geometry {
	d := snemo.NewDemonstrator()
	return Geometry{Cells: d, MainWall: d.MainWall(), XWall: d.XWall(), Gveto: d.Gveto()}
}

type Adapter struct {
	setup Setup
	geom  Geometry
}

func NewAdapter(setup Setup, geom Geometry) *Adapter {
	return &Adapter{setup: setup, geom: geom}
}

// Adapt converts host hits into engine cells and calorimeter blocks.
func (a *Adapter) Adapt(trackerHits []*snemo.TrackerHit, caloHits []*snemo.CaloHit) (Input, error) {
	in := Input{
		CellHits: make(map[int]*snemo.TrackerHit, len(trackerHits)),
		CaloHits: make(map[int]*snemo.CaloHit, len(caloHits)),
	}
	half := a.geom.Cells.NumberOfRows() / 2
	for _, hit := range trackerHits {
		if hit == nil {
			continue
		}
		if !a.geom.Cells.IsDriftCell(hit.GeomID) {
			return in, &snemo.GeometryMismatch{GeomID: hit.GeomID, Reason: "not a drift cell"}
		}
		if !a.geom.Cells.InModule(hit.GeomID) {
			continue
		}
		if _, dup := in.CellHits[hit.ID]; dup {
			return in, &snemo.InvalidInputData{EventID: -1, Reason: fmt.Sprintf("duplicate tracker hit id %d", hit.ID)}
		}
		if math.IsNaN(hit.X) || math.IsNaN(hit.Y) || math.IsNaN(hit.Z) || math.IsNaN(hit.R) {
			return in, &snemo.InvalidInputData{EventID: -1, Reason: fmt.Sprintf("tracker hit %d has no position", hit.ID)}
		}
		in.Cells = append(in.Cells, a.cell(hit, half))
		in.CellHits[hit.ID] = hit
	}

	if !a.setup.ProcessCalo {
		return in, nil
	}
	for _, hit := range caloHits {
		if hit == nil {
			continue
		}
		block := a.block(hit)
		if block.Kind == "" {
			in.CaloFallbacks++
			a.setup.logf(Verbose, "calorimeter hit %d %s matches no block locator", hit.ID, hit.GeomID)
		}
		in.Calos = append(in.Calos, block)
		in.CaloHits[hit.ID] = hit
	}
	return in, nil
}

func (a *Adapter) cell(hit *snemo.TrackerHit, half int) *Cell {
	c := &Cell{
		ID:    hit.ID,
		Side:  1,
		Layer: hit.Layer(),
		Row:   hit.Row() - half,
		Pos:   ToCAT(Point{X: hit.X, Y: hit.Y, Z: hit.Z}),
		Err:   Point{Y: a.setup.SigmaZFactor * hit.SigmaZ},
		Fast:  hit.Prompt(),
	}
	if hit.Side() == 0 {
		c.Side = -1
		c.Layer = -c.Layer
	}
	if c.Fast {
		c.R, c.ER = hit.R, hit.SigmaR
	} else {
		c.R = 0.25 * a.geom.Cells.CellDiameter()
		c.ER = c.R
	}
	c.Small = c.R < a.setup.SmallRadius
	return c
}

func (a *Adapter) block(hit *snemo.CaloHit) *CaloBlock {
	b := &CaloBlock{ID: hit.ID, Energy: hit.Energy, Time: hit.Time}
	locators := []struct {
		kind string
		loc  snemo.BlockLocator
		// normal in the detector frame for side +1
		normal Point
	}{
		{KindMain, a.geom.MainWall, Point{X: 1}},
		{KindXWall, a.geom.XWall, Point{Y: 1}},
		{KindGveto, a.geom.Gveto, Point{Z: 1}},
	}
	for _, l := range locators {
		if l.loc == nil || !l.loc.InModule(hit.GeomID) {
			continue
		}
		x, y, z := l.loc.BlockPosition(hit.GeomID)
		b.Kind = l.kind
		b.Pos = ToCAT(Point{X: x, Y: y, Z: z})
		b.Width, b.Height, b.Thickness = l.loc.BlockSize()
		sign := 1.0
		switch l.kind {
		case KindMain:
			if l.loc.Side(hit.GeomID) == 0 {
				sign = -1
			}
		case KindXWall, KindGveto:
			// wall index
			if hit.GeomID.Get(2) == 0 {
				sign = -1
			}
		}
		b.Normal = ToCAT(l.normal.Scale(sign))
		return b
	}
	return b
}
