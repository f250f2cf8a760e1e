package trigger

import (
	"fmt"
	"strings"
)

// Mode tells which coincidence produced a decision.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeCaloOnly
	ModeCaraco
	ModeCaloTrackerTimeCoinc
	ModeAPE
	ModeDAVE
	ModeDelayed
)

var modeNames = [...]string{
	ModeInvalid:              "INVALID",
	ModeCaloOnly:             "CALO_ONLY",
	ModeCaraco:               "CARACO",
	ModeCaloTrackerTimeCoinc: "CALO_TRACKER_TIME_COINC",
	ModeAPE:                  "APE",
	ModeDAVE:                 "DAVE",
	ModeDelayed:              "DELAYED",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Prompt reports whether the mode is one that builds a previous event record.
func (m Mode) Prompt() bool {
	return m == ModeCaraco || m == ModeCaloTrackerTimeCoinc
}

// L1CaloDecision is a rising edge of the calorimeter decision.
type L1CaloDecision struct {
	Clocktick25 int
}

// L2Decision is an accepted coincidence.
type L2Decision struct {
	Clocktick1600 int
	Mode          Mode
}

func (d L2Decision) String() string {
	return fmt.Sprintf("L2 CT1600=%d mode=%s", d.Clocktick1600, d.Mode)
}

// CoincidenceEventRecord pairs calorimeter and tracker information at one
// 1600 ns clocktick.
type CoincidenceEventRecord struct {
	Clocktick1600 int
	Mode          Mode
	Decision      bool
	// CoincidenceZoning holds, per side, the zones where calorimeter and
	// tracker agreed.
	CoincidenceZoning [NSides]uint16
	Calo              CaloSummary
	TrackerZones      [NSides][NZones]ZoneData
}

func (r CoincidenceEventRecord) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CT1600=%d mode=%s decision=%t", r.Clocktick1600, r.Mode, r.Decision)
	for side := range r.CoincidenceZoning {
		fmt.Fprintf(&sb, " S%d=%s", side, formatBits(uint32(r.CoincidenceZoning[side]), NZones))
	}
	return sb.String()
}

func newCoincidenceRecord(ct int, mode Mode, calo *CoincidenceCaloRecord, tracker *TrackerRecord) CoincidenceEventRecord {
	rec := CoincidenceEventRecord{Clocktick1600: ct, Mode: mode, Decision: true}
	if calo != nil {
		rec.Calo = calo.CaloSummary
	}
	if tracker != nil {
		rec.TrackerZones = tracker.Zones
	}
	return rec
}

// caraco looks, per side and zone, for a tracker pattern next to a fired
// calorimeter zone. A middle pattern needs the same calorimeter zone, a right
// pattern the same or the next one and a left pattern the same or the
// previous one.
func caraco(calo *CoincidenceCaloRecord, tracker *TrackerRecord) (CoincidenceEventRecord, bool) {
	var zoning [NSides]uint16
	found := false
	for side := 0; side < NSides; side++ {
		word := calo.ZoningWord[side]
		fired := func(iz int) bool {
			return iz >= 0 && iz < NZones && word&(1<<iz) != 0
		}
		for iz, d := range tracker.Zones[side] {
			match := d.Has(ZoneMiddle) && fired(iz) ||
				d.Has(ZoneRight) && (fired(iz) || fired(iz+1)) ||
				d.Has(ZoneLeft) && (fired(iz) || fired(iz-1))
			if match {
				zoning[side] |= 1 << iz
				found = true
			}
		}
	}
	if !found {
		return CoincidenceEventRecord{}, false
	}
	rec := newCoincidenceRecord(tracker.Clocktick1600, ModeCaraco, calo, tracker)
	rec.CoincidenceZoning = zoning
	return rec, true
}

// timeCoincidence accepts any clocktick where both subsystems decided.
func timeCoincidence(calo *CoincidenceCaloRecord, tracker *TrackerRecord) (CoincidenceEventRecord, bool) {
	if !calo.Decision || !tracker.FinaleDecision {
		return CoincidenceEventRecord{}, false
	}
	return newCoincidenceRecord(tracker.Clocktick1600, ModeCaloTrackerTimeCoinc, calo, tracker), true
}

// adjacent reports whether a delayed pattern in zone iz continues one of the
// previous event patterns. left, middle and right are the bits tested on the
// delayed side; the same bits are looked up in the previous event zones.
func adjacent(delayed ZoneData, iz int, prev *[NSides][NZones]ZoneData, left, middle, right int) bool {
	has := func(z, bit int) bool {
		if z < 0 || z >= NZones {
			return false
		}
		for side := 0; side < NSides; side++ {
			if prev[side][z].Has(bit) {
				return true
			}
		}
		return false
	}
	// Without a middle bit the two remaining bits of the same zone match
	// each other.
	near := func(bit, other int) bool {
		if middle >= 0 {
			return has(iz, bit) || has(iz, middle)
		}
		return has(iz, bit) || has(iz, other)
	}
	if delayed.Has(left) && (near(left, right) || has(iz-1, right)) {
		return true
	}
	if middle >= 0 && delayed.Has(middle) && (has(iz, left) || has(iz, middle) || has(iz, right)) {
		return true
	}
	if delayed.Has(right) && (near(right, left) || has(iz+1, left)) {
		return true
	}
	return false
}

// ape matches delayed tracker patterns against the alive previous events.
func ape(tracker *TrackerRecord, previous []PreviousEventRecord) bool {
	return delayedMatch(tracker, previous, ZoneLeft, ZoneMiddle, ZoneRight)
}

// dave matches delayed near-source activity against the alive previous
// events.
func dave(tracker *TrackerRecord, previous []PreviousEventRecord) bool {
	return delayedMatch(tracker, previous, ZoneNearSourceLeft, -1, ZoneNearSourceRight)
}

func delayedMatch(tracker *TrackerRecord, previous []PreviousEventRecord, left, middle, right int) bool {
	for i := range previous {
		prev := &previous[i].TrackerZones
		for side := 0; side < NSides; side++ {
			for iz, d := range tracker.Zones[side] {
				if adjacent(d, iz, prev, left, middle, right) {
					return true
				}
			}
		}
	}
	return false
}
