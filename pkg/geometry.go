package snemo

import (
	"fmt"
	"strconv"
	"strings"
)

// Geometry categories understood by the locators.
const (
	DriftCellType = 1204 // path: module, side, layer, row
	MainCaloType  = 1302 // path: module, side, column, row
	XCaloType     = 1232 // path: module, side, wall, column, row
	GvetoType     = 1252 // path: module, side, wall, column
)

type GeomID struct {
	Type int   `json:"type" yaml:"type"`
	Path []int `json:"path" yaml:"path"`
}

func NewGeomID(geomType int, path ...int) GeomID {
	return GeomID{Type: geomType, Path: path}
}

func (g GeomID) String() string {
	parts := make([]string, len(g.Path))
	for i, p := range g.Path {
		parts[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("[%d:%s]", g.Type, strings.Join(parts, "."))
}

func (g GeomID) Valid() bool {
	return g.Type > 0 && len(g.Path) > 0
}

// Get returns the i-th address of the path or -1.
func (g GeomID) Get(i int) int {
	if i < 0 || i >= len(g.Path) {
		return -1
	}
	return g.Path[i]
}

// CellLocator answers drift cell geometry queries. Implementations are
// read-only and may be shared between workers.
type CellLocator interface {
	IsDriftCell(id GeomID) bool
	InModule(id GeomID) bool
	CellPosition(id GeomID) (x, y, z float64)
	CellDiameter() float64
	CellLength() float64
	NumberOfLayers() int
	NumberOfRows() int
}

// BlockLocator answers scintillator block queries for one calorimeter
// sub-detector.
type BlockLocator interface {
	InModule(id GeomID) bool
	BlockPosition(id GeomID) (x, y, z float64)
	BlockSize() (width, height, thickness float64)
	Side(id GeomID) int
	Column(id GeomID) int
}

// Demonstrator geometry, all lengths in mm.
const (
	DemonstratorModule = 0

	NumberOfSides  = 2
	NumberOfLayers = 9
	NumberOfRows   = 113

	CellDiameter   = 44.0
	CellLength     = 2920.0
	FirstLayerGap  = 30.0 // foil to first cell centre minus half a cell
	MainWallX      = 435.0
	MainColumns    = 20
	MainRows       = 13
	MainBlockSize  = 256.0
	MainBlockDepth = 194.0
	XWallY         = 2505.0
	XWallColumns   = 2
	XWallRows      = 16
	XBlockSize     = 212.0
	XBlockDepth    = 150.0
	GvetoZ         = 1550.0
	GvetoColumns   = 16
	GvetoBlockSize = 290.0
	GvetoDepth     = 20.0
)

// Demonstrator locates cells and blocks of module 0 with fixed pitches.
type Demonstrator struct {
	Module int
}

func NewDemonstrator() *Demonstrator {
	return &Demonstrator{Module: DemonstratorModule}
}

func sideSign(side int) float64 {
	if side == 0 {
		return -1
	}
	return 1
}

func (d *Demonstrator) IsDriftCell(id GeomID) bool {
	if id.Type != DriftCellType || len(id.Path) != 4 {
		return false
	}
	side, layer, row := id.Path[1], id.Path[2], id.Path[3]
	return side >= 0 && side < NumberOfSides &&
		layer >= 0 && layer < NumberOfLayers &&
		row >= 0 && row < NumberOfRows
}

func (d *Demonstrator) InModule(id GeomID) bool {
	return d.IsDriftCell(id) && id.Path[0] == d.Module
}

func (d *Demonstrator) CellPosition(id GeomID) (x, y, z float64) {
	side, layer, row := id.Get(1), id.Get(2), id.Get(3)
	x = sideSign(side) * (FirstLayerGap + (float64(layer)+0.5)*CellDiameter)
	y = (float64(row) - float64(NumberOfRows/2)) * CellDiameter
	return x, y, 0
}

func (d *Demonstrator) CellDiameter() float64 { return CellDiameter }
func (d *Demonstrator) CellLength() float64   { return CellLength }
func (d *Demonstrator) NumberOfLayers() int   { return NumberOfLayers }
func (d *Demonstrator) NumberOfRows() int     { return NumberOfRows }

// MainWall, XWall and Gveto return the block locators of the three
// calorimeter sub-detectors.
func (d *Demonstrator) MainWall() BlockLocator { return mainWall{module: d.Module} }
func (d *Demonstrator) XWall() BlockLocator    { return xWall{module: d.Module} }
func (d *Demonstrator) Gveto() BlockLocator    { return gveto{module: d.Module} }

type mainWall struct{ module int }

func (m mainWall) InModule(id GeomID) bool {
	if id.Type != MainCaloType || len(id.Path) != 4 || id.Path[0] != m.module {
		return false
	}
	return id.Path[1] >= 0 && id.Path[1] < NumberOfSides &&
		id.Path[2] >= 0 && id.Path[2] < MainColumns &&
		id.Path[3] >= 0 && id.Path[3] < MainRows
}

func (m mainWall) BlockPosition(id GeomID) (x, y, z float64) {
	x = sideSign(id.Get(1)) * MainWallX
	y = (float64(id.Get(2)) - float64(MainColumns-1)/2) * MainBlockSize
	z = (float64(id.Get(3)) - float64(MainRows-1)/2) * MainBlockSize
	return x, y, z
}

func (m mainWall) BlockSize() (float64, float64, float64) {
	return MainBlockSize, MainBlockSize, MainBlockDepth
}

func (m mainWall) Side(id GeomID) int   { return id.Get(1) }
func (m mainWall) Column(id GeomID) int { return id.Get(2) }

type xWall struct{ module int }

func (w xWall) InModule(id GeomID) bool {
	if id.Type != XCaloType || len(id.Path) != 5 || id.Path[0] != w.module {
		return false
	}
	return id.Path[1] >= 0 && id.Path[1] < NumberOfSides &&
		id.Path[2] >= 0 && id.Path[2] < 2 &&
		id.Path[3] >= 0 && id.Path[3] < XWallColumns &&
		id.Path[4] >= 0 && id.Path[4] < XWallRows
}

func (w xWall) BlockPosition(id GeomID) (x, y, z float64) {
	x = sideSign(id.Get(1)) * (FirstLayerGap + (float64(id.Get(3))+0.5)*XBlockDepth)
	y = sideSign(id.Get(2)) * XWallY
	z = (float64(id.Get(4)) - float64(XWallRows-1)/2) * XBlockSize
	return x, y, z
}

func (w xWall) BlockSize() (float64, float64, float64) {
	return XBlockSize, XBlockSize, XBlockDepth
}

func (w xWall) Side(id GeomID) int   { return id.Get(1) }
func (w xWall) Column(id GeomID) int { return id.Get(3) }

type gveto struct{ module int }

func (g gveto) InModule(id GeomID) bool {
	if id.Type != GvetoType || len(id.Path) != 4 || id.Path[0] != g.module {
		return false
	}
	return id.Path[1] >= 0 && id.Path[1] < NumberOfSides &&
		id.Path[2] >= 0 && id.Path[2] < 2 &&
		id.Path[3] >= 0 && id.Path[3] < GvetoColumns
}

func (g gveto) BlockPosition(id GeomID) (x, y, z float64) {
	x = sideSign(id.Get(1)) * (FirstLayerGap + float64(NumberOfLayers)*CellDiameter/2)
	y = (float64(id.Get(3)) - float64(GvetoColumns-1)/2) * GvetoBlockSize
	z = sideSign(id.Get(2)) * GvetoZ
	return x, y, z
}

func (g gveto) BlockSize() (float64, float64, float64) {
	return GvetoBlockSize, GvetoBlockSize, GvetoDepth
}

func (g gveto) Side(id GeomID) int   { return id.Get(1) }
func (g gveto) Column(id GeomID) int { return id.Get(3) }
