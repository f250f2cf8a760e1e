package trigger

// Zone is a contiguous run of tracker rows, both limits included.
type Zone struct {
	RowBegin int
	RowEnd   int
}

func (z Zone) Contains(row int) bool {
	return row >= z.RowBegin && row <= z.RowEnd
}

func (z Zone) Width() int {
	return z.RowEnd - z.RowBegin + 1
}

// Zones are the ten trigger zones of one tracker side.
var Zones = [NZones]Zone{
	{0, 8}, {9, 20}, {21, 32}, {33, 44}, {45, 56},
	{57, 67}, {68, 79}, {80, 91}, {92, 103}, {104, 112},
}

const (
	slidingZoneWidth     = 8
	slidingZoneEdgeWidth = 5
)

// SlidingZones overlap by half their width; the first and the last are
// narrower.
var SlidingZones = buildSlidingZones()

func buildSlidingZones() [NSlidingZones]Zone {
	var szs [NSlidingZones]Zone
	for i := range szs {
		stop := 4 + 4*i
		if i > 15 {
			stop--
		}
		if stop > NRows-1 {
			stop = NRows - 1
		}
		width := slidingZoneWidth
		if i == 0 || i == NSlidingZones-1 {
			width = slidingZoneEdgeWidth
		}
		start := stop - width + 1
		if start < 0 {
			start = 0
		}
		szs[i] = Zone{RowBegin: start, RowEnd: stop}
	}
	return szs
}

// ZoneIndex returns the zone holding row, or -1.
func ZoneIndex(row int) int {
	for i, z := range Zones {
		if z.Contains(row) {
			return i
		}
	}
	return -1
}

// zoneSlidingZones maps each zone onto the sliding zones read by the zone
// memories: the one starting closest to the zone start (left), the one
// centred closest to the zone centre (middle) and the one ending closest to
// the zone end (right).
var zoneSlidingZones = buildZoneSlidingZones()

func buildZoneSlidingZones() [NZones][3]int {
	abs := func(x int) int {
		if x < 0 {
			return -x
		}
		return x
	}
	closest := func(distance func(Zone) int) int {
		best := 0
		for i, sz := range SlidingZones {
			if distance(sz) < distance(SlidingZones[best]) {
				best = i
			}
		}
		return best
	}
	var out [NZones][3]int
	for iz, z := range Zones {
		out[iz][0] = closest(func(sz Zone) int { return abs(sz.RowBegin - z.RowBegin) })
		out[iz][1] = closest(func(sz Zone) int { return abs(sz.RowBegin + sz.RowEnd - z.RowBegin - z.RowEnd) })
		out[iz][2] = closest(func(sz Zone) int { return abs(sz.RowEnd - z.RowEnd) })
	}
	return out
}
