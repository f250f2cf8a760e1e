package trigger

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Vertical (layer) classification codes of mem1.
const (
	VerticalVoid  uint32 = 0x0
	VerticalInner uint32 = 0x1
	VerticalOuter uint32 = 0x2
	VerticalFull  uint32 = 0x3
)

// Horizontal (row) classification codes of mem2.
const (
	NoTrack     uint32 = 0x0
	NarrowRight uint32 = 0x1
	NarrowLeft  uint32 = 0x2
	WideTrack   uint32 = 0x3
)

// Rows seen by a sliding zone.
const horizontalWidth = 8

// Bits of the mem4 output.
const (
	mem4Right  = 0
	mem4Middle = 1
	mem4Left   = 2
)

// Pattern search limits of the mem2 pattern mode. The right limit is one
// position shorter than the left one for every run except "111", which
// favours the left classification at equal distance.
const (
	LeftPatternLimit  = 2
	RightPatternLimit = 1
)

type Mem2Mode int

const (
	ModeMult Mem2Mode = iota + 1
	ModePattern
)

func (m Mem2Mode) String() string {
	switch m {
	case ModeMult:
		return "mult"
	case ModePattern:
		return "pattern"
	default:
		return "Unknown"
	}
}

func ParseMem2Mode(s string) (Mem2Mode, error) {
	switch strings.ToLower(s) {
	case "mult", "multiplicity":
		return ModeMult, nil
	case "pattern":
		return ModePattern, nil
	}
	return 0, &snemo.ConfigurationError{Key: "tracker.mem2_mode", Reason: "must be mult or pattern, got " + s}
}

// Mem1Config classifies the 9 layer bits of a sliding zone.
type Mem1Config struct {
	InnerLayerMin int
	InnerLayerMax int
	OuterLayerMin int
	OuterLayerMax int
	InnerMultMin  int
	OuterMultMin  int
	FullMultMin   int
}

func DefaultMem1Config() Mem1Config {
	return Mem1Config{
		InnerLayerMin: 0,
		InnerLayerMax: 4,
		OuterLayerMin: 4,
		OuterLayerMax: 8,
		InnerMultMin:  3,
		OuterMultMin:  3,
		FullMultMin:   6,
	}
}

func (c Mem1Config) Check() error {
	if c.InnerLayerMin < 0 || c.InnerLayerMax >= NLayers || c.InnerLayerMin > c.InnerLayerMax {
		return &snemo.ConfigurationError{Key: "mem1.inner_layers", Reason: fmt.Sprintf("[%d, %d] is not a layer range", c.InnerLayerMin, c.InnerLayerMax)}
	}
	if c.OuterLayerMin < 0 || c.OuterLayerMax >= NLayers || c.OuterLayerMin > c.OuterLayerMax {
		return &snemo.ConfigurationError{Key: "mem1.outer_layers", Reason: fmt.Sprintf("[%d, %d] is not a layer range", c.OuterLayerMin, c.OuterLayerMax)}
	}
	if c.InnerMultMin < 1 || c.OuterMultMin < 1 || c.FullMultMin < 1 {
		return &snemo.ConfigurationError{Key: "mem1.mult_min", Reason: "multiplicity thresholds must be positive"}
	}
	return nil
}

// Mem2Config classifies the 8 row bits of a sliding zone.
type Mem2Config struct {
	Mode               Mem2Mode
	WideRowMin         int
	WideRowMax         int
	WideMultMin        int
	WideMultMax        int
	NarrowLeftRowMin   int
	NarrowLeftRowMax   int
	NarrowLeftMultMin  int
	NarrowLeftMultMax  int
	NarrowRightRowMin  int
	NarrowRightRowMax  int
	NarrowRightMultMin int
	NarrowRightMultMax int
}

func DefaultMem2Config() Mem2Config {
	return Mem2Config{
		Mode:               ModeMult,
		WideRowMin:         0,
		WideRowMax:         7,
		WideMultMin:        6,
		WideMultMax:        8,
		NarrowLeftRowMin:   0,
		NarrowLeftRowMax:   4,
		NarrowLeftMultMin:  3,
		NarrowLeftMultMax:  5,
		NarrowRightRowMin:  3,
		NarrowRightRowMax:  7,
		NarrowRightMultMin: 3,
		NarrowRightMultMax: 5,
	}
}

func (c Mem2Config) Check() error {
	if c.Mode != ModeMult && c.Mode != ModePattern {
		return &snemo.ConfigurationError{Key: "mem2.mode", Reason: "invalid mode"}
	}
	ranges := []struct {
		name             string
		rowMin, rowMax   int
		multMin, multMax int
	}{
		{"wide", c.WideRowMin, c.WideRowMax, c.WideMultMin, c.WideMultMax},
		{"narrow_left", c.NarrowLeftRowMin, c.NarrowLeftRowMax, c.NarrowLeftMultMin, c.NarrowLeftMultMax},
		{"narrow_right", c.NarrowRightRowMin, c.NarrowRightRowMax, c.NarrowRightMultMin, c.NarrowRightMultMax},
	}
	for _, r := range ranges {
		if r.rowMin < 0 || r.rowMax >= horizontalWidth || r.rowMin > r.rowMax {
			return &snemo.ConfigurationError{Key: "mem2." + r.name + "_rows", Reason: fmt.Sprintf("[%d, %d] is not a row range", r.rowMin, r.rowMax)}
		}
		if r.multMin < 0 || r.multMin > r.multMax {
			return &snemo.ConfigurationError{Key: "mem2." + r.name + "_mult", Reason: fmt.Sprintf("[%d, %d] is not a multiplicity range", r.multMin, r.multMax)}
		}
	}
	return nil
}

// MemoryConfig gathers the parameters of the five trigger memories.
type MemoryConfig struct {
	Mem1 Mem1Config
	Mem2 Mem2Config
}

func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{Mem1: DefaultMem1Config(), Mem2: DefaultMem2Config()}
}

func countBits(address uint32, lo, hi int) int {
	n := 0
	for i := lo; i <= hi; i++ {
		if address&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// BuildMem1 builds the sliding zone vertical memory (9 address bits, one per
// layer, 2 data bits).
func BuildMem1(c Mem1Config) (*Memory, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	mem, err := NewMemory(NLayers, 2)
	if err != nil {
		return nil, err
	}
	for addr := uint32(0); int(addr) < mem.NumberOfAddresses(); addr++ {
		if err := mem.Push(addr, c.classify(addr)); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

func (c Mem1Config) classify(addr uint32) uint32 {
	inner := countBits(addr, c.InnerLayerMin, c.InnerLayerMax) >= c.InnerMultMin
	outer := countBits(addr, c.OuterLayerMin, c.OuterLayerMax) >= c.OuterMultMin
	switch {
	case inner && outer, bits.OnesCount32(addr) >= c.FullMultMin:
		return VerticalFull
	case inner:
		return VerticalInner
	case outer:
		return VerticalOuter
	}
	return VerticalVoid
}

// BuildMem2 builds the sliding zone horizontal memory (8 address bits, one
// per row, 2 data bits). Bit 0 is the leftmost row.
func BuildMem2(c Mem2Config) (*Memory, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	mem, err := NewMemory(horizontalWidth, 2)
	if err != nil {
		return nil, err
	}
	for addr := uint32(0); int(addr) < mem.NumberOfAddresses(); addr++ {
		var code uint32
		if c.Mode == ModePattern {
			code = classifyPattern(addr, LeftPatternLimit, RightPatternLimit)
		} else {
			code = c.classifyMult(addr)
		}
		if err := mem.Push(addr, code); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

// classifyMult applies the narrow right, narrow left then wide rules, each
// later match overriding the previous one.
func (c Mem2Config) classifyMult(addr uint32) uint32 {
	code := NoTrack
	if n := countBits(addr, c.NarrowRightRowMin, c.NarrowRightRowMax); n >= c.NarrowRightMultMin && n <= c.NarrowRightMultMax {
		code = NarrowRight
	}
	if n := countBits(addr, c.NarrowLeftRowMin, c.NarrowLeftRowMax); n >= c.NarrowLeftMultMin && n <= c.NarrowLeftMultMax {
		code = NarrowLeft
	}
	if n := countBits(addr, c.WideRowMin, c.WideRowMax); n >= c.WideMultMin && n <= c.WideMultMax {
		code = WideTrack
	}
	return code
}

var horizontalRuns = []string{"1111", "111", "1101", "1011"}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// matchRuns reports whether one of the runs starts within limit characters
// of the beginning of s. "111" always uses the left limit.
func matchRuns(s string, limit int) bool {
	for _, run := range horizontalRuns {
		l := limit
		if run == "111" {
			l = LeftPatternLimit
		}
		if pos := strings.Index(s, run); pos >= 0 && pos <= l {
			return true
		}
	}
	return false
}

func classifyPattern(addr uint32, leftLimit, rightLimit int) uint32 {
	full := bits.OnesCount32(addr)
	rightStr := formatBits(addr, horizontalWidth) // highest row first
	leftStr := reverse(rightStr)                  // lowest row first

	left := matchRuns(leftStr, leftLimit)
	right := matchRuns(rightStr, rightLimit)

	var code uint32
	switch {
	case full >= 6, left && right:
		code = WideTrack
	case left:
		code = NarrowLeft
	case right:
		code = NarrowRight
	default:
		return NoTrack
	}

	// A wide track leaning on one edge is narrow on the other one.
	if full < 6 && code == WideTrack {
		rightEmpty := rightStr[:2] == "00"
		leftEmpty := leftStr[:2] == "00"
		switch {
		case rightEmpty:
			code = NarrowLeft
		case leftEmpty:
			code = NarrowRight
		}
	}
	return code
}

// SymmetricPatternDiff lists the mem2 addresses whose pattern classification
// changes when the right limit is made equal to the left one.
func SymmetricPatternDiff() []PatternDiff {
	var diffs []PatternDiff
	for addr := uint32(0); addr < 1<<horizontalWidth; addr++ {
		asym := classifyPattern(addr, LeftPatternLimit, RightPatternLimit)
		sym := classifyPattern(addr, LeftPatternLimit, LeftPatternLimit)
		if asym != sym {
			diffs = append(diffs, PatternDiff{Address: addr, Asymmetric: asym, Symmetric: sym})
		}
	}
	return diffs
}

type PatternDiff struct {
	Address    uint32
	Asymmetric uint32
	Symmetric  uint32
}

func (d PatternDiff) String() string {
	return fmt.Sprintf("%s %s %s", formatBits(d.Address, horizontalWidth), formatBits(d.Asymmetric, 2), formatBits(d.Symmetric, 2))
}

// The zone memories read three 2-bit sliding zone codes packed as
// left (bits 0-1), middle (bits 2-3) and right (bits 4-5).
func unpackZone(addr uint32) (left, middle, right uint32) {
	return addr & 0x3, addr >> 2 & 0x3, addr >> 4 & 0x3
}

func buildZoneMemory(dataSize int, rule func(left, middle, right uint32) uint32) (*Memory, error) {
	mem, err := NewMemory(6, dataSize)
	if err != nil {
		return nil, err
	}
	for addr := uint32(0); int(addr) < mem.NumberOfAddresses(); addr++ {
		if err := mem.Push(addr, rule(unpackZone(addr))); err != nil {
			return nil, err
		}
	}
	return mem, nil
}

// BuildMem3 ORs the inner and outer bits of three mem1 codes.
func BuildMem3() (*Memory, error) {
	return buildZoneMemory(2, func(left, middle, right uint32) uint32 {
		return left | middle | right
	})
}

// BuildMem4 turns three mem2 codes into the right, middle and left pattern
// bits of a zone.
func BuildMem4() (*Memory, error) {
	return buildZoneMemory(3, func(left, middle, right uint32) uint32 {
		var out uint32
		if right == NarrowRight || right == WideTrack {
			out |= 1 << mem4Right
		}
		if middle != NoTrack {
			out |= 1 << mem4Middle
		}
		if left == NarrowLeft || left == WideTrack {
			out |= 1 << mem4Left
		}
		return out
	})
}

// BuildMem5 validates the horizontal pattern of a zone from its three mem1
// codes: a full sliding zone, or inner and outer activity across the zone.
func BuildMem5() (*Memory, error) {
	return buildZoneMemory(1, func(left, middle, right uint32) uint32 {
		if left == VerticalFull || middle == VerticalFull || right == VerticalFull {
			return 1
		}
		all := left | middle | right
		if all&VerticalInner != 0 && all&VerticalOuter != 0 {
			return 1
		}
		return 0
	})
}

// Memories holds the five tracker trigger memories. Built once, then shared
// read-only.
type Memories struct {
	Mem1 *Memory
	Mem2 *Memory
	Mem3 *Memory
	Mem4 *Memory
	Mem5 *Memory
}

func BuildMemories(c MemoryConfig) (*Memories, error) {
	var (
		m   Memories
		err error
	)
	if m.Mem1, err = BuildMem1(c.Mem1); err != nil {
		return nil, err
	}
	if m.Mem2, err = BuildMem2(c.Mem2); err != nil {
		return nil, err
	}
	if m.Mem3, err = BuildMem3(); err != nil {
		return nil, err
	}
	if m.Mem4, err = BuildMem4(); err != nil {
		return nil, err
	}
	if m.Mem5, err = BuildMem5(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Memories) list() []*Memory {
	return []*Memory{m.Mem1, m.Mem2, m.Mem3, m.Mem4, m.Mem5}
}

var memoryDescriptions = []string{
	"sliding zone vertical classification (layers -> VOID/INNER/OUTER/FULL)",
	"sliding zone horizontal classification (rows -> NO/NARROW_RIGHT/NARROW_LEFT/WIDE)",
	"zone vertical classification (3 x mem1 -> INNER/OUTER)",
	"zone horizontal classification (3 x mem2 -> RIGHT/MIDDLE/LEFT)",
	"zone vertical for horizontal validation (3 x mem1 -> VALID)",
}

func memoryFilename(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("mem%d.def", i+1))
}

// Store writes mem1.def to mem5.def into dir.
func (m *Memories) Store(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, mem := range m.list() {
		filename := memoryFilename(dir, i)
		file, err := os.Create(filename)
		if err != nil {
			return &snemo.ErrOpenFile{Filename: filename, Err: err}
		}
		err = mem.Store(file, memoryDescriptions[i])
		if err = errors.Join(err, file.Close()); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
	}
	return nil
}

// LoadMemories reads mem1.def to mem5.def from dir and checks their sizes.
func LoadMemories(dir string) (*Memories, error) {
	sizes := [][2]int{{NLayers, 2}, {horizontalWidth, 2}, {6, 2}, {6, 3}, {6, 1}}
	loaded := make([]*Memory, len(sizes))
	for i := range sizes {
		filename := memoryFilename(dir, i)
		file, err := os.Open(filename)
		if err != nil {
			return nil, &snemo.ErrOpenFile{Filename: filename, Err: err}
		}
		mem, err := Load(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filename, err)
		}
		if mem.AddressSize() != sizes[i][0] || mem.DataSize() != sizes[i][1] {
			return nil, &snemo.ConfigurationError{
				Key:    filename,
				Reason: fmt.Sprintf("expected a %dx%d memory, got %dx%d", sizes[i][0], sizes[i][1], mem.AddressSize(), mem.DataSize()),
			}
		}
		loaded[i] = mem
	}
	return &Memories{Mem1: loaded[0], Mem2: loaded[1], Mem3: loaded[2], Mem4: loaded[3], Mem5: loaded[4]}, nil
}
