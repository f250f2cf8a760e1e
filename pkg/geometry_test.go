package snemo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeomID(t *testing.T) {
	id := NewGeomID(DriftCellType, 0, 1, 3, 56)
	assert.Equal(t, "[1204:0.1.3.56]", id.String())
	assert.True(t, id.Valid())
	assert.Equal(t, 3, id.Get(2))
	assert.Equal(t, -1, id.Get(4))
	assert.False(t, GeomID{}.Valid())

	hit := &TrackerHit{GeomID: id}
	assert.Equal(t, 1, hit.Side())
	assert.Equal(t, 3, hit.Layer())
	assert.Equal(t, 56, hit.Row())
	assert.True(t, hit.Prompt())
}

func TestDemonstratorCells(t *testing.T) {
	d := NewDemonstrator()

	tests := []struct {
		name string
		id   GeomID
		ok   bool
	}{
		{"cell", NewGeomID(DriftCellType, 0, 0, 8, 112), true},
		{"row out of range", NewGeomID(DriftCellType, 0, 0, 8, 113), false},
		{"layer out of range", NewGeomID(DriftCellType, 0, 1, 9, 0), false},
		{"short path", NewGeomID(DriftCellType, 0, 1, 2), false},
		{"calo", NewGeomID(MainCaloType, 0, 1, 2, 3), false},
		{"other module", NewGeomID(DriftCellType, 3, 1, 2, 3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, d.InModule(tt.id))
		})
	}
	assert.True(t, d.IsDriftCell(NewGeomID(DriftCellType, 3, 1, 2, 3)), "any module is a drift cell")

	x, y, z := d.CellPosition(NewGeomID(DriftCellType, 0, 1, 0, 56))
	assert.Equal(t, [3]float64{52, 0, 0}, [3]float64{x, y, z})
	x, y, _ = d.CellPosition(NewGeomID(DriftCellType, 0, 0, 8, 0))
	assert.Equal(t, -(30 + 8.5*44), x)
	assert.Equal(t, -56*44.0, y)
	assert.Equal(t, 44.0, d.CellDiameter())
	assert.Equal(t, 9, d.NumberOfLayers())
	assert.Equal(t, 113, d.NumberOfRows())
}

func TestDemonstratorBlocks(t *testing.T) {
	d := NewDemonstrator()

	main := NewGeomID(MainCaloType, 0, 1, 9, 6)
	assert.True(t, d.MainWall().InModule(main))
	x, y, z := d.MainWall().BlockPosition(main)
	assert.Equal(t, [3]float64{435, -128, 0}, [3]float64{x, y, z})
	assert.Equal(t, 9, d.MainWall().Column(main))
	assert.False(t, d.MainWall().InModule(NewGeomID(MainCaloType, 0, 1, 20, 6)))

	xcalo := NewGeomID(XCaloType, 0, 0, 1, 0, 15)
	assert.True(t, d.XWall().InModule(xcalo))
	_, y, _ = d.XWall().BlockPosition(xcalo)
	assert.Equal(t, 2505.0, y)
	assert.False(t, d.Gveto().InModule(xcalo))

	veto := NewGeomID(GvetoType, 0, 1, 0, 3)
	assert.True(t, d.Gveto().InModule(veto))
	_, _, z = d.Gveto().BlockPosition(veto)
	assert.Equal(t, -1550.0, z)
	assert.Equal(t, 1, d.Gveto().Side(veto))
}
