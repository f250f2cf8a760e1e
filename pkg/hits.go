package snemo

// TrackerHit is a calibrated drift cell hit. Positions are in the detector
// frame (mm), times in ns. Hits are shared by pointer between the input
// collection and every cluster that references them.
type TrackerHit struct {
	ID          int     `json:"id" yaml:"id"`
	GeomID      GeomID  `json:"geom_id" yaml:"geom_id"`
	X           float64 `json:"x" yaml:"x"`
	Y           float64 `json:"y" yaml:"y"`
	Z           float64 `json:"z" yaml:"z"`
	SigmaZ      float64 `json:"sigma_z" yaml:"sigma_z"`
	R           float64 `json:"r" yaml:"r"`
	SigmaR      float64 `json:"sigma_r" yaml:"sigma_r"`
	Delayed     bool    `json:"delayed" yaml:"delayed"`
	DelayedTime float64 `json:"delayed_time" yaml:"delayed_time"`
}

func (h *TrackerHit) Prompt() bool {
	return !h.Delayed
}

func (h *TrackerHit) Side() int  { return h.GeomID.Get(1) }
func (h *TrackerHit) Layer() int { return h.GeomID.Get(2) }
func (h *TrackerHit) Row() int   { return h.GeomID.Get(3) }

// CaloHit is a calibrated scintillator block hit. Energy in MeV, time in ns.
type CaloHit struct {
	ID          int     `json:"id" yaml:"id"`
	GeomID      GeomID  `json:"geom_id" yaml:"geom_id"`
	Energy      float64 `json:"energy" yaml:"energy"`
	SigmaEnergy float64 `json:"sigma_energy" yaml:"sigma_energy"`
	Time        float64 `json:"time" yaml:"time"`
	SigmaTime   float64 `json:"sigma_time" yaml:"sigma_time"`
}

// Event is one calibrated event as read from the input file. Trigger
// telegrams are optional and only used by the trigger command.
type Event struct {
	Number      int           `json:"event" yaml:"event"`
	TrackerHits []*TrackerHit `json:"tracker_hits" yaml:"tracker_hits"`
	CaloHits    []*CaloHit    `json:"calo_hits" yaml:"calo_hits"`
	CaloCTWs    []CaloCTW     `json:"calo_ctws,omitempty" yaml:"calo_ctws,omitempty"`
	GeigerCTWs  []GeigerCTW   `json:"geiger_ctws,omitempty" yaml:"geiger_ctws,omitempty"`
}

// CaloCTW is a calorimeter crate trigger word at 25 ns granularity.
type CaloCTW struct {
	Clocktick25  int  `json:"clocktick_25ns" yaml:"clocktick_25ns"`
	Side         int  `json:"side" yaml:"side"` // 0, 1 or GvetoSide
	ZoningWord   uint `json:"zoning_word" yaml:"zoning_word"`
	Multiplicity int  `json:"htm" yaml:"htm"`
	LTO          bool `json:"lto" yaml:"lto"`
	XT           bool `json:"xt" yaml:"xt"`
	GvetoZoning  uint `json:"gveto_zoning" yaml:"gveto_zoning"`
}

// GvetoSide marks a CaloCTW coming from the gamma veto crate.
const GvetoSide = 2

// CellAddress addresses one geiger cell of the tracker.
type CellAddress struct {
	Side  int `json:"side" yaml:"side"`
	Layer int `json:"layer" yaml:"layer"`
	Row   int `json:"row" yaml:"row"`
}

// GeigerCTW is a tracker trigger word at 800 ns granularity.
type GeigerCTW struct {
	Clocktick800 int           `json:"clocktick_800ns" yaml:"clocktick_800ns"`
	Cells        []CellAddress `json:"cells" yaml:"cells"`
}
