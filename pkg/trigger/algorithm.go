package trigger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Config is the trigger algorithm setup, usually read from the "trigger"
// properties block.
type Config struct {
	CalorimeterOnly      bool
	AnyCoincidences      bool
	CaloTrackerTimeCoinc bool
	Caraco               bool
	TakeAllDelayed       bool
	APEDave              bool
	APEOnly              bool

	CaloGateSize        int
	L2GateSize          int
	PreviousEventDepth  int
	PreviousEventLiving int
	// EventWindow bounds, in 1600 ns clockticks after the earliest record,
	// the records one event may span.
	EventWindow int
	Calo        CaloConfig
	Memories    MemoryConfig
	MemoriesDir string
}

func DefaultConfig() Config {
	return Config{
		AnyCoincidences:      true,
		CaloTrackerTimeCoinc: true,
		Caraco:               true,
		APEDave:              true,
		CaloGateSize:         4,
		L2GateSize:           5,
		PreviousEventDepth:   10,
		PreviousEventLiving:  PreviousEventLivingClockticks,
		EventWindow:          PreviousEventLivingClockticks,
		Calo:                 DefaultCaloConfig(),
		Memories:             DefaultMemoryConfig(),
	}
}

// ConfigFromProperties reads the trigger keys on top of the defaults.
func ConfigFromProperties(p snemo.Properties) (Config, error) {
	c := DefaultConfig()
	var err error
	booleans := []struct {
		key string
		dst *bool
	}{
		{"activate_calorimeter_only", &c.CalorimeterOnly},
		{"activate_any_coincidences", &c.AnyCoincidences},
		{"activate_calo_tracker_time_coincidence", &c.CaloTrackerTimeCoinc},
		{"activate_caraco", &c.Caraco},
		{"activate_take_all_delayed", &c.TakeAllDelayed},
		{"activate_ape_dave_coincidence", &c.APEDave},
		{"activate_ape_coincidence_only", &c.APEOnly},
		{"calo.single_side_coinc", &c.Calo.SingleSideCoinc},
	}
	for _, b := range booleans {
		if *b.dst, err = p.GetBoolean(b.key, *b.dst); err != nil {
			return c, err
		}
	}
	integers := []struct {
		key string
		dst *int
	}{
		{"coincidence_calorimeter_gate_size", &c.CaloGateSize},
		{"L2_decision_coincidence_gate_size", &c.L2GateSize},
		{"previous_event_buffer_depth", &c.PreviousEventDepth},
		{"previous_event_living_clockticks", &c.PreviousEventLiving},
		{"event_window_clockticks", &c.EventWindow},
		{"calo.circular_buffer_depth", &c.Calo.CircularBufferDepth},
		{"calo.total_multiplicity_threshold", &c.Calo.TotalMultiplicityThreshold},
	}
	for _, i := range integers {
		if *i.dst, err = p.GetInteger(i.key, *i.dst); err != nil {
			return c, err
		}
	}
	if c.MemoriesDir, err = p.GetString("tracker.memories_dir", ""); err != nil {
		return c, err
	}
	if p.Has("tracker.mem2_mode") {
		s, err := p.FetchString("tracker.mem2_mode")
		if err != nil {
			return c, err
		}
		if c.Memories.Mem2.Mode, err = ParseMem2Mode(s); err != nil {
			return c, err
		}
	}
	return c, c.Check()
}

func (c Config) Check() error {
	positive := []struct {
		key   string
		value int
	}{
		{"coincidence_calorimeter_gate_size", c.CaloGateSize},
		{"L2_decision_coincidence_gate_size", c.L2GateSize},
		{"previous_event_buffer_depth", c.PreviousEventDepth},
		{"previous_event_living_clockticks", c.PreviousEventLiving},
		{"event_window_clockticks", c.EventWindow},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &snemo.ConfigurationError{Key: p.key, Reason: fmt.Sprintf("%d must be positive", p.value)}
		}
	}
	switch {
	case c.CalorimeterOnly && c.AnyCoincidences:
		return &snemo.ConfigurationError{Key: "activate_calorimeter_only", Reason: "exclusive with activate_any_coincidences"}
	case !c.CalorimeterOnly && !c.AnyCoincidences:
		return &snemo.ConfigurationError{Key: "activate_any_coincidences", Reason: "no trigger mode active"}
	case c.APEOnly && c.APEDave:
		return &snemo.ConfigurationError{Key: "activate_ape_coincidence_only", Reason: "exclusive with activate_ape_dave_coincidence"}
	}
	if err := c.Calo.Check(); err != nil {
		return err
	}
	if err := c.Memories.Mem1.Check(); err != nil {
		return err
	}
	return c.Memories.Mem2.Check()
}

// Result holds every intermediate collection of one Process call.
type Result struct {
	CaloRecords            []CaloSummaryRecord
	L1                     []L1CaloDecision
	CoincidenceCaloRecords []CoincidenceCaloRecord
	TrackerRecords         []TrackerRecord
	CoincidenceRecords     []CoincidenceEventRecord
	L2                     []L2Decision
	PreviousEvents         []PreviousEventRecord
	Decision               bool

	// IgnoredCells counts geiger cell addresses outside the tracker.
	IgnoredCells int
	// OutOfWindow counts the calorimeter and tracker records dropped for
	// lying beyond the event window.
	OutOfWindow int
}

// Algorithm is the clocked trigger emulation. The previous event buffer is
// kept between calls to Process.
type Algorithm struct {
	mu       sync.Mutex
	config   Config
	calo     *CaloSummaryBuilder
	tracker  *TrackerRecordBuilder
	previous *PreviousEventTracker
}

// NewAlgorithm builds the algorithm. When memories is nil they are loaded
// from config.MemoriesDir, or built from config.Memories.
func NewAlgorithm(config Config, memories *Memories) (*Algorithm, error) {
	if err := config.Check(); err != nil {
		return nil, err
	}
	var err error
	if memories == nil {
		if config.MemoriesDir != "" {
			memories, err = LoadMemories(config.MemoriesDir)
		} else {
			memories, err = BuildMemories(config.Memories)
		}
		if err != nil {
			return nil, err
		}
	}
	calo, err := NewCaloSummaryBuilder(config.Calo)
	if err != nil {
		return nil, err
	}
	previous, err := NewPreviousEventTracker(config.PreviousEventDepth, config.PreviousEventLiving)
	if err != nil {
		return nil, err
	}
	return &Algorithm{
		config:   config,
		calo:     calo,
		tracker:  NewTrackerRecordBuilder(memories),
		previous: previous,
	}, nil
}

func (a *Algorithm) Config() Config {
	return a.config
}

// Reset forgets the previous events.
func (a *Algorithm) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.previous.Reset()
}

// Process runs the trigger over the words of one event. When ctx is
// cancelled mid-event the error is returned and the previous event buffer
// keeps the ageing and the records of the clockticks already walked.
func (a *Algorithm) Process(ctx context.Context, caloCTWs []snemo.CaloCTW, geigerCTWs []snemo.GeigerCTW) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &Result{}
	result.CaloRecords = a.calo.Build(caloCTWs)
	result.L1 = l1Decisions(result.CaloRecords)

	if a.config.CalorimeterOnly {
		for _, l1 := range result.L1 {
			result.L2 = append(result.L2, L2Decision{Clocktick1600: Clocktick25To1600(l1.Clocktick25), Mode: ModeCaloOnly})
		}
	} else if err := a.coincidences(ctx, result, geigerCTWs); err != nil {
		return nil, err
	}

	result.PreviousEvents = a.previous.Records()
	result.Decision = len(result.L2) > 0
	if snemo.Verbosity() > 1 {
		snemo.Log().Info(fmt.Sprintf("%d calo records, %d tracker records, %d L1, %d L2",
			len(result.CaloRecords), len(result.TrackerRecords), len(result.L1), len(result.L2)), "trigger")
	}
	return result, nil
}

// l1Decisions keeps the rising edges of the calorimeter decision.
func l1Decisions(records []CaloSummaryRecord) []L1CaloDecision {
	var out []L1CaloDecision
	for i, rec := range records {
		if !rec.Decision {
			continue
		}
		if i > 0 && records[i-1].Decision && records[i-1].Clocktick25 == rec.Clocktick25-1 {
			continue
		}
		out = append(out, L1CaloDecision{Clocktick25: rec.Clocktick25})
	}
	return out
}

func (a *Algorithm) coincidences(ctx context.Context, result *Result, geigerCTWs []snemo.GeigerCTW) error {
	result.CoincidenceCaloRecords = Rescale(result.CaloRecords, a.config.CaloGateSize)
	result.TrackerRecords = a.tracker.Build(geigerCTWs)
	result.IgnoredCells = a.tracker.Ignored
	a.window(result)
	if len(result.CoincidenceCaloRecords) == 0 && len(result.TrackerRecords) == 0 {
		return nil
	}

	caloAt := map[int]*CoincidenceCaloRecord{}
	trackerAt := map[int]*TrackerRecord{}
	for i := range result.CoincidenceCaloRecords {
		rec := &result.CoincidenceCaloRecords[i]
		caloAt[rec.Clocktick1600] = rec
	}
	for i := range result.TrackerRecords {
		rec := &result.TrackerRecords[i]
		trackerAt[rec.Clocktick1600] = rec
	}
	occupied := map[int]bool{}
	for ct := range caloAt {
		occupied[ct] = true
	}
	for ct := range trackerAt {
		occupied[ct] = true
	}
	cts := slices.Sorted(maps.Keys(occupied))

	// Only the clockticks holding a record or closing an L2 gate are
	// visited; the buffer ages by the gap in between.
	gate := a.config.L2GateSize
	var pending []L2Decision
	next := func() (int, bool) {
		ct, ok := 0, false
		if len(cts) > 0 {
			ct, ok = cts[0], true
		}
		for _, l2 := range pending {
			if end := l2.Clocktick1600 + gate; !ok || end < ct {
				ct, ok = end, true
			}
		}
		return ct, ok
	}
	prev := cts[0] - 1
	for {
		ct, more := next()
		if !more {
			break
		}
		if len(cts) > 0 && cts[0] == ct {
			cts = cts[1:]
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.previous.Advance(ct - prev); err != nil {
			return err
		}
		prev = ct

		if rec, ok := a.pair(caloAt[ct], trackerAt[ct]); ok {
			rec.Clocktick1600 = ct
			result.CoincidenceRecords = append(result.CoincidenceRecords, rec)
			if !rateLimited(result.L2, rec.Mode, ct, gate) {
				l2 := L2Decision{Clocktick1600: ct, Mode: rec.Mode}
				result.L2 = append(result.L2, l2)
				if rec.Mode.Prompt() {
					pending = append(pending, l2)
				}
			}
		}

		// The gate end is inclusive: the coincidence paired at this
		// clocktick is merged too.
		remaining := pending[:0]
		for _, l2 := range pending {
			if l2.Clocktick1600+gate == ct {
				a.previous.Build(result.CoincidenceRecords, l2, gate)
				continue
			}
			remaining = append(remaining, l2)
		}
		pending = remaining
	}
	return nil
}

// window drops the records lying more than EventWindow clockticks after the
// earliest record of the event.
func (a *Algorithm) window(result *Result) {
	first, found := 0, false
	for _, rec := range result.CoincidenceCaloRecords {
		if !found || rec.Clocktick1600 < first {
			first, found = rec.Clocktick1600, true
		}
	}
	for _, rec := range result.TrackerRecords {
		if !found || rec.Clocktick1600 < first {
			first, found = rec.Clocktick1600, true
		}
	}
	limit := first + a.config.EventWindow
	n := len(result.CoincidenceCaloRecords) + len(result.TrackerRecords)
	result.CoincidenceCaloRecords = slices.DeleteFunc(result.CoincidenceCaloRecords, func(r CoincidenceCaloRecord) bool {
		return r.Clocktick1600 > limit
	})
	result.TrackerRecords = slices.DeleteFunc(result.TrackerRecords, func(r TrackerRecord) bool {
		return r.Clocktick1600 > limit
	})
	result.OutOfWindow = n - len(result.CoincidenceCaloRecords) - len(result.TrackerRecords)
	if result.OutOfWindow > 0 {
		snemo.Log().Info(fmt.Sprintf("%d records beyond CT1600=%d ignored", result.OutOfWindow, limit), "trigger")
	}
}

// pair tries the coincidences in order: spatial, time, then delayed.
func (a *Algorithm) pair(calo *CoincidenceCaloRecord, tracker *TrackerRecord) (CoincidenceEventRecord, bool) {
	if calo != nil && tracker != nil {
		if a.config.Caraco {
			if rec, ok := caraco(calo, tracker); ok {
				return rec, true
			}
		}
		if a.config.CaloTrackerTimeCoinc {
			if rec, ok := timeCoincidence(calo, tracker); ok {
				return rec, true
			}
		}
	}
	if tracker == nil || a.previous.Len() == 0 {
		return CoincidenceEventRecord{}, false
	}

	previous := a.previous.Records()
	if a.config.APEDave || a.config.APEOnly {
		if ape(tracker, previous) {
			return newCoincidenceRecord(tracker.Clocktick1600, ModeAPE, calo, tracker), true
		}
	}
	if a.config.APEDave && dave(tracker, previous) {
		return newCoincidenceRecord(tracker.Clocktick1600, ModeDAVE, calo, tracker), true
	}
	if a.config.TakeAllDelayed && tracker.FinaleDecision {
		return newCoincidenceRecord(tracker.Clocktick1600, ModeDelayed, calo, tracker), true
	}
	return CoincidenceEventRecord{}, false
}

// rateLimited reports whether ct falls in the gate of an earlier L2 of the
// same class: prompt decisions gate prompt ones, delayed decisions gate
// delayed ones.
func rateLimited(l2s []L2Decision, mode Mode, ct, gate int) bool {
	for _, l2 := range l2s {
		if l2.Mode.Prompt() != mode.Prompt() {
			continue
		}
		if ct >= l2.Clocktick1600 && ct < l2.Clocktick1600+gate {
			return true
		}
	}
	return false
}
