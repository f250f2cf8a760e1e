package trigger

import (
	"fmt"
	"math/bits"
	"sort"

	snemo "github.com/next-exp/snemo_go/pkg"
)

const (
	zoningMask      = 1<<NZones - 1
	gvetoZoningMask = 1<<NGvetoZones - 1
)

// CaloConfig configures the calorimeter summary.
type CaloConfig struct {
	CircularBufferDepth        int
	TotalMultiplicityThreshold int
	SingleSideCoinc            bool
}

func DefaultCaloConfig() CaloConfig {
	return CaloConfig{
		CircularBufferDepth:        4,
		TotalMultiplicityThreshold: 1,
	}
}

func (c CaloConfig) Check() error {
	if c.CircularBufferDepth < 1 {
		return &snemo.ConfigurationError{Key: "calo.circular_buffer_depth", Reason: "must be at least 1"}
	}
	if c.TotalMultiplicityThreshold < 1 {
		return &snemo.ConfigurationError{Key: "calo.total_multiplicity_threshold", Reason: "must be at least 1"}
	}
	return nil
}

// CaloSummary holds the fields shared by the 25 ns summary and the 1600 ns
// coincidence records.
type CaloSummary struct {
	ZoningWord                 [NSides]uint16
	Multiplicity               [NSides]int
	MultiplicityGveto          int
	LTO                        [NSides]bool
	LTOGveto                   bool
	XTInfo                     uint8 // one bit per side
	GvetoZoning                uint8
	SingleSide                 bool
	TotalMultiplicityThreshold bool
	Decision                   bool
}

func (s *CaloSummary) empty() bool {
	return s.ZoningWord[0] == 0 && s.ZoningWord[1] == 0 && s.GvetoZoning == 0 &&
		s.Multiplicity[0] == 0 && s.Multiplicity[1] == 0 && s.MultiplicityGveto == 0 &&
		!s.LTO[0] && !s.LTO[1] && !s.LTOGveto && s.XTInfo == 0
}

// normalize raises each side multiplicity to at least the number of fired
// zones, capped to the 2-bit range.
func (s *CaloSummary) normalize() {
	for side := 0; side < NSides; side++ {
		if n := bits.OnesCount16(s.ZoningWord[side]); n > s.Multiplicity[side] {
			s.Multiplicity[side] = n
		}
		s.Multiplicity[side] = min(s.Multiplicity[side], MaxMultiplicity)
	}
	s.MultiplicityGveto = min(s.MultiplicityGveto, MaxMultiplicity)
}

// merge ORs other into s. Multiplicities keep their running maximum and the
// single side flag only survives if both agree and one side stays silent.
func (s *CaloSummary) merge(other CaloSummary) {
	for side := 0; side < NSides; side++ {
		s.ZoningWord[side] |= other.ZoningWord[side]
		s.Multiplicity[side] = max(s.Multiplicity[side], other.Multiplicity[side])
		s.LTO[side] = s.LTO[side] || other.LTO[side]
	}
	s.MultiplicityGveto = max(s.MultiplicityGveto, other.MultiplicityGveto)
	s.LTOGveto = s.LTOGveto || other.LTOGveto
	s.XTInfo |= other.XTInfo
	s.GvetoZoning |= other.GvetoZoning
	s.SingleSide = s.SingleSide && other.SingleSide &&
		!(s.ZoningWord[0] != 0 && s.ZoningWord[1] != 0)
	s.TotalMultiplicityThreshold = s.TotalMultiplicityThreshold || other.TotalMultiplicityThreshold
	s.Decision = s.Decision || other.Decision
	s.normalize()
}

// CaloSummaryRecord is the calorimeter summary at one 25 ns clocktick.
type CaloSummaryRecord struct {
	Clocktick25 int
	CaloSummary
}

func (r CaloSummaryRecord) String() string {
	return fmt.Sprintf("CT25=%d zoning=[%s %s] mult=[%d %d %d] decision=%t",
		r.Clocktick25, formatBits(uint32(r.ZoningWord[0]), NZones), formatBits(uint32(r.ZoningWord[1]), NZones),
		r.Multiplicity[0], r.Multiplicity[1], r.MultiplicityGveto, r.Decision)
}

// CoincidenceCaloRecord is the calorimeter summary rescaled onto one 1600 ns
// clocktick.
type CoincidenceCaloRecord struct {
	Clocktick1600 int
	CaloSummary
}

// CaloSummaryBuilder emulates the calorimeter circular buffer.
type CaloSummaryBuilder struct {
	config CaloConfig
}

func NewCaloSummaryBuilder(config CaloConfig) (*CaloSummaryBuilder, error) {
	if err := config.Check(); err != nil {
		return nil, err
	}
	return &CaloSummaryBuilder{config: config}, nil
}

// Build ORs, at every 25 ns clocktick, the words of the last
// CircularBufferDepth clockticks. Clockticks with nothing in the buffer
// produce no record.
func (b *CaloSummaryBuilder) Build(ctws []snemo.CaloCTW) []CaloSummaryRecord {
	if len(ctws) == 0 {
		return nil
	}
	byClocktick := map[int][]snemo.CaloCTW{}
	first, last := ctws[0].Clocktick25, ctws[0].Clocktick25
	for _, ctw := range ctws {
		byClocktick[ctw.Clocktick25] = append(byClocktick[ctw.Clocktick25], ctw)
		first = min(first, ctw.Clocktick25)
		last = max(last, ctw.Clocktick25)
	}

	depth := b.config.CircularBufferDepth
	var records []CaloSummaryRecord
	for ct := first; ct <= last+depth-1; ct++ {
		record := CaloSummaryRecord{Clocktick25: ct}
		for past := ct - depth + 1; past <= ct; past++ {
			b.accumulate(&record.CaloSummary, byClocktick[past])
		}
		if record.empty() {
			continue
		}
		b.decide(&record.CaloSummary)
		records = append(records, record)
	}
	return records
}

// accumulate adds the words of one clocktick. Multiplicities of the same
// clocktick add up, across clockticks the maximum is kept.
func (b *CaloSummaryBuilder) accumulate(s *CaloSummary, ctws []snemo.CaloCTW) {
	var mult [NSides]int
	var multGveto int
	for _, ctw := range ctws {
		switch ctw.Side {
		case 0, 1:
			s.ZoningWord[ctw.Side] |= uint16(ctw.ZoningWord & zoningMask)
			mult[ctw.Side] += ctw.Multiplicity
			s.LTO[ctw.Side] = s.LTO[ctw.Side] || ctw.LTO
			if ctw.XT {
				s.XTInfo |= 1 << ctw.Side
			}
		case snemo.GvetoSide:
			s.GvetoZoning |= uint8(ctw.GvetoZoning & gvetoZoningMask)
			multGveto += ctw.Multiplicity
			s.LTOGveto = s.LTOGveto || ctw.LTO
		}
	}
	for side := range mult {
		s.Multiplicity[side] = max(s.Multiplicity[side], min(mult[side], MaxMultiplicity))
	}
	s.MultiplicityGveto = max(s.MultiplicityGveto, min(multGveto, MaxMultiplicity))
}

func (b *CaloSummaryBuilder) decide(s *CaloSummary) {
	s.normalize()
	s.SingleSide = (s.ZoningWord[0] != 0) != (s.ZoningWord[1] != 0)
	total := s.Multiplicity[0] + s.Multiplicity[1] + s.MultiplicityGveto
	s.TotalMultiplicityThreshold = total >= b.config.TotalMultiplicityThreshold
	s.Decision = s.TotalMultiplicityThreshold && (!b.config.SingleSideCoinc || s.SingleSide)
}

// Rescale merges the deciding 25 ns records onto the 1600 ns clock. The
// first record seen at a coarse clocktick opens a gate of gate clockticks
// padded with copies. A later record at an existing clocktick is OR-merged
// into it, the merge is propagated to the rest of its gate, and the gate is
// grown so that it covers gate clockticks from the merged one. Every
// clocktick appears at most once.
func Rescale(records []CaloSummaryRecord, gate int) []CoincidenceCaloRecord {
	sorted := make([]CaloSummaryRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Clocktick25 < sorted[j].Clocktick25 })

	var out []CoincidenceCaloRecord
	index := map[int]int{}
	for _, rec := range sorted {
		if !rec.Decision {
			continue
		}
		ct := Clocktick25To1600(rec.Clocktick25)
		i, ok := index[ct]
		if ok {
			out[i].merge(rec.CaloSummary)
		} else {
			fresh := CoincidenceCaloRecord{Clocktick1600: ct, CaloSummary: rec.CaloSummary}
			fresh.normalize()
			i = len(out)
			index[ct] = i
			out = append(out, fresh)
		}

		merged := out[i].CaloSummary
		for next := ct + 1; next < ct+gate; next++ {
			if j, ok := index[next]; ok {
				out[j].merge(merged)
				continue
			}
			index[next] = len(out)
			out = append(out, CoincidenceCaloRecord{Clocktick1600: next, CaloSummary: merged})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clocktick1600 < out[j].Clocktick1600 })
	return out
}
