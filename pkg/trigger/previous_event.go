package trigger

import (
	"fmt"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// PreviousEventRecord remembers a prompt coincidence for the delayed alpha
// search. Counter is the number of 1600 ns clockticks left to live.
type PreviousEventRecord struct {
	Clocktick1600     int
	Counter           int
	CoincidenceZoning [NSides]uint16
	CaloSummary
	TrackerZones [NSides][NZones]ZoneData

	marked bool
}

func (r *PreviousEventRecord) merge(rec CoincidenceEventRecord, first bool) {
	for side := 0; side < NSides; side++ {
		r.CoincidenceZoning[side] |= rec.CoincidenceZoning[side]
		for iz := range r.TrackerZones[side] {
			r.TrackerZones[side][iz] |= rec.TrackerZones[side][iz]
		}
	}
	if first {
		r.CaloSummary = rec.Calo
		r.normalize()
		return
	}
	r.CaloSummary.merge(rec.Calo)
}

// PreviousEventTracker is a bounded circular buffer of previous event
// records. When it is full the oldest record is overwritten.
type PreviousEventTracker struct {
	depth   int
	living  int
	records []PreviousEventRecord
}

func NewPreviousEventTracker(depth, living int) (*PreviousEventTracker, error) {
	if depth < 1 {
		return nil, &snemo.ConfigurationError{Key: "previous_event_buffer_depth", Reason: "must be at least 1"}
	}
	if living < 1 {
		return nil, &snemo.ConfigurationError{Key: "previous_event_living_clockticks", Reason: "must be at least 1"}
	}
	return &PreviousEventTracker{depth: depth, living: living}, nil
}

// Build merges the prompt coincidences found in the gate
// [l2.Clocktick1600, l2.Clocktick1600+gate], both ends included, into a new
// record. It reports whether a record was added.
func (t *PreviousEventTracker) Build(records []CoincidenceEventRecord, l2 L2Decision, gate int) bool {
	per := PreviousEventRecord{Clocktick1600: l2.Clocktick1600, Counter: t.living}
	found := false
	for _, rec := range records {
		if !rec.Mode.Prompt() {
			continue
		}
		if rec.Clocktick1600 < l2.Clocktick1600 || rec.Clocktick1600 > l2.Clocktick1600+gate {
			continue
		}
		per.merge(rec, !found)
		found = true
	}
	if !found {
		return false
	}
	if len(t.records) == t.depth {
		t.records = t.records[1:]
	}
	t.records = append(t.records, per)
	return true
}

// Tick ages every record by one clocktick and drops the expired ones.
func (t *PreviousEventTracker) Tick() error {
	return t.Advance(1)
}

// Advance ages every record by n clockticks and drops the expired ones.
func (t *PreviousEventTracker) Advance(n int) error {
	if n < 1 {
		return &snemo.InvariantViolation{
			Where:  "previous event tracker",
			Reason: fmt.Sprintf("clock moved by %d", n),
		}
	}
	for i := range t.records {
		r := &t.records[i]
		if r.Counter < 0 || r.Counter > t.living {
			return &snemo.InvariantViolation{
				Where:  "previous event tracker",
				Reason: fmt.Sprintf("record at CT1600=%d has counter %d out of [0, %d]", r.Clocktick1600, r.Counter, t.living),
			}
		}
		r.Counter -= n
		r.marked = r.Counter <= 0
	}

	alive := t.records[:0]
	for _, r := range t.records {
		if !r.marked {
			alive = append(alive, r)
		}
	}
	t.records = alive
	return nil
}

// Records returns a copy of the alive records, oldest first.
func (t *PreviousEventTracker) Records() []PreviousEventRecord {
	out := make([]PreviousEventRecord, len(t.records))
	copy(out, t.records)
	return out
}

func (t *PreviousEventTracker) Len() int {
	return len(t.records)
}

func (t *PreviousEventTracker) Reset() {
	t.records = nil
}
