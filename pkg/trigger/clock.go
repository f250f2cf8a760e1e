package trigger

// Detector and clock constants of the trigger electronics.
const (
	NSides           = 2
	NLayers          = 9
	NRows            = 113
	NZones           = 10
	NSlidingZones    = 29
	NCaloColumns     = 20
	NGvetoZones      = 4
	NearSourceLayers = 3

	MainClocktick    = 25   // ns
	GeigerClocktick  = 800  // ns
	TriggerClocktick = 1600 // ns

	// Shift applied when a 25 ns clocktick is rescaled to 1600 ns.
	Clocktick1600Shift = 1

	// Liveness of a previous event record, in 1600 ns clockticks (1 ms).
	PreviousEventLivingClockticks = 625

	MaxMultiplicity = 3
)

// Clocktick25To1600 maps a calorimeter clocktick onto the trigger clock.
func Clocktick25To1600(ct25 int) int {
	return ct25*MainClocktick/TriggerClocktick + Clocktick1600Shift
}

// Clocktick800To1600 maps an even geiger clocktick onto the trigger clock.
// Odd clockticks have no 1600 ns counterpart.
func Clocktick800To1600(ct800 int) (int, bool) {
	if ct800 < 0 || ct800%2 == 1 {
		return 0, false
	}
	return ct800 / 2, true
}
