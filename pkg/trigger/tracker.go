package trigger

import (
	"fmt"
	"sort"
	"strings"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Bits of the per-zone tracker finale data.
const (
	ZoneInner = iota
	ZoneOuter
	ZoneRight
	ZoneMiddle
	ZoneLeft
	ZoneNearSourceRight
	ZoneNearSourceLeft
	ZoneDataBits
)

// ZoneData is the 7-bit tracker classification of one zone.
type ZoneData uint8

func (d ZoneData) Has(bit int) bool {
	return d&(1<<bit) != 0
}

func (d *ZoneData) Set(bit int) {
	*d |= 1 << bit
}

// Pattern keeps the right, middle and left pattern bits.
func (d ZoneData) Pattern() ZoneData {
	return d & (1<<ZoneRight | 1<<ZoneMiddle | 1<<ZoneLeft)
}

// NearSource keeps the two near-source bits.
func (d ZoneData) NearSource() ZoneData {
	return d & (1<<ZoneNearSourceRight | 1<<ZoneNearSourceLeft)
}

func (d ZoneData) String() string {
	return formatBits(uint32(d), ZoneDataBits)
}

// GeigerMatrix holds the fired cells of one 1600 ns clocktick.
type GeigerMatrix [NSides][NLayers][NRows]bool

func (m *GeigerMatrix) Empty() bool {
	for side := range m {
		for layer := range m[side] {
			for _, hit := range m[side][layer] {
				if hit {
					return false
				}
			}
		}
	}
	return true
}

// TrackerRecord is the zone level tracker classification at one 1600 ns
// clocktick.
type TrackerRecord struct {
	Clocktick1600  int
	Zones          [NSides][NZones]ZoneData
	FinaleDecision bool
}

func (r *TrackerRecord) Empty() bool {
	for side := range r.Zones {
		for _, d := range r.Zones[side] {
			if d != 0 {
				return false
			}
		}
	}
	return true
}

func (r TrackerRecord) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CT1600=%d decision=%t", r.Clocktick1600, r.FinaleDecision)
	for side := range r.Zones {
		fmt.Fprintf(&sb, " S%d[", side)
		for iz, d := range r.Zones[side] {
			if iz > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(d.String())
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// TrackerRecordBuilder turns geiger trigger words into tracker records
// through the five memories.
type TrackerRecordBuilder struct {
	memories *Memories

	// Ignored counts the cell addresses outside the tracker seen by the
	// last call to Matrices or Build.
	Ignored int
}

func NewTrackerRecordBuilder(memories *Memories) *TrackerRecordBuilder {
	return &TrackerRecordBuilder{memories: memories}
}

// Matrices groups the geiger words by 1600 ns clocktick. Odd 800 ns
// clockticks are dropped.
func (b *TrackerRecordBuilder) Matrices(ctws []snemo.GeigerCTW) map[int]*GeigerMatrix {
	b.Ignored = 0
	matrices := map[int]*GeigerMatrix{}
	for _, ctw := range ctws {
		ct, ok := Clocktick800To1600(ctw.Clocktick800)
		if !ok {
			continue
		}
		matrix, ok := matrices[ct]
		if !ok {
			matrix = &GeigerMatrix{}
			matrices[ct] = matrix
		}
		for _, cell := range ctw.Cells {
			if cell.Side < 0 || cell.Side >= NSides ||
				cell.Layer < 0 || cell.Layer >= NLayers ||
				cell.Row < 0 || cell.Row >= NRows {
				b.Ignored++
				continue
			}
			matrix[cell.Side][cell.Layer][cell.Row] = true
		}
	}
	return matrices
}

// Build returns the non-empty tracker records, clockticks ascending.
func (b *TrackerRecordBuilder) Build(ctws []snemo.GeigerCTW) []TrackerRecord {
	matrices := b.Matrices(ctws)
	cts := make([]int, 0, len(matrices))
	for ct := range matrices {
		cts = append(cts, ct)
	}
	sort.Ints(cts)

	var records []TrackerRecord
	for _, ct := range cts {
		record := b.Process(ct, matrices[ct])
		if !record.Empty() {
			records = append(records, record)
		}
	}
	return records
}

// Process classifies one geiger matrix.
func (b *TrackerRecordBuilder) Process(ct1600 int, matrix *GeigerMatrix) TrackerRecord {
	record := TrackerRecord{Clocktick1600: ct1600}
	mem := b.memories
	for side := 0; side < NSides; side++ {
		var vertical, horizontal [NSlidingZones]uint32
		for isz, sz := range SlidingZones {
			var layerAddr, rowAddr uint32
			for layer := 0; layer < NLayers; layer++ {
				for row := sz.RowBegin; row <= sz.RowEnd; row++ {
					if matrix[side][layer][row] {
						layerAddr |= 1 << layer
						rowAddr |= 1 << (row - sz.RowBegin)
					}
				}
			}
			vertical[isz] = mem.Mem1.Fetch(layerAddr)
			horizontal[isz] = mem.Mem2.Fetch(rowAddr)
		}

		for iz, z := range Zones {
			l, m, r := zoneSlidingZones[iz][0], zoneSlidingZones[iz][1], zoneSlidingZones[iz][2]
			vAddr := vertical[l] | vertical[m]<<2 | vertical[r]<<4
			hAddr := horizontal[l] | horizontal[m]<<2 | horizontal[r]<<4

			data := ZoneData(mem.Mem3.Fetch(vAddr))
			if mem.Mem5.Fetch(vAddr) != 0 {
				data |= ZoneData(mem.Mem4.Fetch(hAddr)) << ZoneRight
			}

			middle := z.RowBegin + z.Width()/2
			for layer := 0; layer < NearSourceLayers; layer++ {
				for row := z.RowBegin; row <= z.RowEnd; row++ {
					if !matrix[side][layer][row] {
						continue
					}
					if row < middle {
						data.Set(ZoneNearSourceLeft)
					} else {
						data.Set(ZoneNearSourceRight)
					}
				}
			}

			record.Zones[side][iz] = data
			if data.Pattern() != 0 {
				record.FinaleDecision = true
			}
		}
	}
	return record
}
