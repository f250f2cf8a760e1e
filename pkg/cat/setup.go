package cat

import (
	"fmt"
	"math"
	"time"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Level is the printout level of the engine. It only gates messages that are
// also allowed by the global verbosity.
type Level int

const (
	Mute Level = iota
	Normal
	Verbose
	VVerbose
)

var levelNames = map[string]Level{
	"mute":     Mute,
	"normal":   Normal,
	"verbose":  Verbose,
	"vverbose": VVerbose,
}

func (l Level) String() string {
	for name, level := range levelNames {
		if level == l {
			return name
		}
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Setup holds the tunables of the clusterizer and the sequentiator. Lengths
// are in mm, angles in degrees and the field in tesla.
type Setup struct {
	MagField      float64
	Level         Level
	MaxTime       time.Duration
	SmallRadius   float64
	ProbMin       float64
	NOffLayers    int
	FirstEvent    int
	Ratio         float64
	SigmaZFactor  float64
	StoreAsProps  bool
	ProcessCalo   bool
	XSize         float64
	YSize         float64
	ZSize         float64
	NSigma        float64
	TangentPhi    float64
	TangentTheta  float64
	SmallNumber   float64
	QuadrantAngle float64
	CompatDist    float64
	MaxChi2       float64

	// RecordUnclustered moves the hits of dropped one-node sequences to the
	// unclustered slot of the solution instead of forgetting them.
	RecordUnclustered bool

	Sultan SultanSetup
}

// SultanSetup holds the tunables of the helix assignment sequentiator.
// Triplet gaps are counted in cell diameters, energies are in MeV.
type SultanSetup struct {
	NSigmaR         float64
	NSigmaZ         float64
	MinCells        int
	TripletGapMin   int
	TripletGapRange int
	EMin            float64
	EMax            float64
}

func DefaultSultanSetup() SultanSetup {
	return SultanSetup{
		NSigmaR:         5,
		NSigmaZ:         3,
		MinCells:        3,
		TripletGapMin:   1,
		TripletGapRange: 3,
		EMin:            0.2,
		EMax:            7,
	}
}

const electronMass = 0.511 // MeV

// radii converts the energy window into the window of helix radii (mm) in
// the field b (tesla). Without a field every radius is accepted.
func (s SultanSetup) radii(b float64) (rmin, rmax float64) {
	if b <= 0 {
		return 0, math.Inf(1)
	}
	p := func(e float64) float64 {
		return math.Sqrt((e+electronMass)*(e+electronMass) - electronMass*electronMass)
	}
	return p(s.EMin) / (0.3 * b), p(s.EMax) / (0.3 * b)
}

func (s SultanSetup) check() error {
	switch {
	case s.NSigmaR <= 0:
		return &snemo.ConfigurationError{Key: "sultan.nsigma_r", Reason: "must be positive"}
	case s.NSigmaZ <= 0:
		return &snemo.ConfigurationError{Key: "sultan.nsigma_z", Reason: "must be positive"}
	case s.MinCells < 0:
		return &snemo.ConfigurationError{Key: "sultan.min_ncells_in_cluster", Reason: "must not be negative"}
	case s.TripletGapMin < 0:
		return &snemo.ConfigurationError{Key: "sultan.ncells_between_triplet_min", Reason: "must not be negative"}
	case s.TripletGapRange <= 0:
		return &snemo.ConfigurationError{Key: "sultan.ncells_between_triplet_range", Reason: "must be positive"}
	case s.EMin <= 0 || s.EMax <= s.EMin:
		return &snemo.ConfigurationError{Key: "sultan.Emin", Reason: "need 0 < Emin < Emax"}
	}
	return nil
}

func DefaultSetup() Setup {
	return Setup{
		MagField:      25e-4,
		Level:         Normal,
		MaxTime:       5000 * time.Millisecond,
		SmallRadius:   2,
		ProbMin:       0,
		NOffLayers:    1,
		FirstEvent:    -1,
		Ratio:         10000,
		SigmaZFactor:  1,
		StoreAsProps:  true,
		ProcessCalo:   true,
		XSize:         2500,
		YSize:         1350,
		ZSize:         450,
		NSigma:        10,
		TangentPhi:    20,
		TangentTheta:  160,
		SmallNumber:   0.1,
		QuadrantAngle: 90,
		CompatDist:    4,
		MaxChi2:       3,
		Sultan:        DefaultSultanSetup(),
	}
}

// SetupFromProperties reads the cat property block on top of the defaults.
// Plain numbers are taken in the default unit of each key.
func SetupFromProperties(p snemo.Properties) (Setup, error) {
	s := DefaultSetup()
	var err error

	level, err := p.GetString("level", s.Level.String())
	if err != nil {
		return s, err
	}
	l, ok := levelNames[level]
	if !ok {
		return s, &snemo.ConfigurationError{Key: "level", Reason: fmt.Sprintf("unknown level %q", level)}
	}
	s.Level = l

	if p.Has("magfield") {
		if s.MagField, err = p.FetchReal("magfield", snemo.MagneticField); err != nil {
			return s, err
		}
	}
	maxTime, err := p.GetReal("max_time", snemo.Time, float64(s.MaxTime/time.Millisecond))
	if err != nil {
		return s, err
	}
	s.MaxTime = time.Duration(maxTime * float64(time.Millisecond))

	reals := []struct {
		key string
		dim snemo.Dimension
		dst *float64
	}{
		{"small_radius", snemo.Length, &s.SmallRadius},
		{"probmin", snemo.Dimensionless, &s.ProbMin},
		{"ratio", snemo.Dimensionless, &s.Ratio},
		{"sigma_z_factor", snemo.Dimensionless, &s.SigmaZFactor},
		{"xsize", snemo.Length, &s.XSize},
		{"ysize", snemo.Length, &s.YSize},
		{"zsize", snemo.Length, &s.ZSize},
		{"nsigma", snemo.Dimensionless, &s.NSigma},
		{"tangent_phi", snemo.Angle, &s.TangentPhi},
		{"tangent_theta", snemo.Angle, &s.TangentTheta},
		{"small_number", snemo.Length, &s.SmallNumber},
		{"quadrant_angle", snemo.Angle, &s.QuadrantAngle},
		{"compatibility_distance", snemo.Length, &s.CompatDist},
		{"max_chi2", snemo.Dimensionless, &s.MaxChi2},
		{"sultan.nsigma_r", snemo.Dimensionless, &s.Sultan.NSigmaR},
		{"sultan.nsigma_z", snemo.Dimensionless, &s.Sultan.NSigmaZ},
		{"sultan.Emin", snemo.Energy, &s.Sultan.EMin},
		{"sultan.Emax", snemo.Energy, &s.Sultan.EMax},
	}
	for _, r := range reals {
		if *r.dst, err = p.GetReal(r.key, r.dim, *r.dst); err != nil {
			return s, err
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"nofflayers", &s.NOffLayers},
		{"first_event", &s.FirstEvent},
		{"sultan.min_ncells_in_cluster", &s.Sultan.MinCells},
		{"sultan.ncells_between_triplet_min", &s.Sultan.TripletGapMin},
		{"sultan.ncells_between_triplet_range", &s.Sultan.TripletGapRange},
	}
	for _, i := range ints {
		if *i.dst, err = p.GetInteger(i.key, *i.dst); err != nil {
			return s, err
		}
	}
	if s.StoreAsProps, err = p.GetBoolean("store_result_as_properties", s.StoreAsProps); err != nil {
		return s, err
	}
	if s.ProcessCalo, err = p.GetBoolean("process_calo_hits", s.ProcessCalo); err != nil {
		return s, err
	}
	if s.RecordUnclustered, err = p.GetBoolean("record_unclustered_hits", s.RecordUnclustered); err != nil {
		return s, err
	}
	return s, s.Check()
}

func (s Setup) Check() error {
	switch {
	case s.NOffLayers < 0:
		return &snemo.ConfigurationError{Key: "nofflayers", Reason: "must not be negative"}
	case s.SigmaZFactor <= 0 || s.SigmaZFactor >= 100:
		return &snemo.ConfigurationError{Key: "sigma_z_factor", Reason: "must be in (0, 100)"}
	case s.MaxTime <= 0:
		return &snemo.ConfigurationError{Key: "max_time", Reason: "must be positive"}
	case s.Ratio <= 0:
		return &snemo.ConfigurationError{Key: "ratio", Reason: "must be positive"}
	case s.ProbMin < 0 || s.ProbMin > 1:
		return &snemo.ConfigurationError{Key: "probmin", Reason: "must be in [0, 1]"}
	case s.SmallNumber <= 0:
		return &snemo.ConfigurationError{Key: "small_number", Reason: "must be positive"}
	case s.XSize <= 0 || s.YSize <= 0 || s.ZSize <= 0:
		return &snemo.ConfigurationError{Key: "xsize", Reason: "detector sizes must be positive"}
	}
	if _, ok := levelNames[s.Level.String()]; !ok {
		return &snemo.ConfigurationError{Key: "level", Reason: "unknown level"}
	}
	return s.Sultan.check()
}

// logf prints through the host logger when both the global verbosity and the
// engine level allow it.
func (s Setup) logf(level Level, format string, args ...any) {
	if s.Level < level || snemo.Verbosity() < 1 {
		return
	}
	snemo.Log().Info(fmt.Sprintf(format, args...), "cat")
}
