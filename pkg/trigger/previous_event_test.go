package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

func caracoRecord(ct int, zone int) CoincidenceEventRecord {
	rec := CoincidenceEventRecord{Clocktick1600: ct, Mode: ModeCaraco, Decision: true}
	rec.CoincidenceZoning[0] = 1 << zone
	rec.Calo.ZoningWord[0] = 1 << zone
	rec.Calo.Multiplicity[0] = 1
	rec.Calo.SingleSide = true
	rec.TrackerZones[0][zone] = 1<<ZoneMiddle | 1<<ZoneInner
	return rec
}

func TestPreviousEventLiveness(t *testing.T) {
	const living = 5
	tracker, err := NewPreviousEventTracker(10, living)
	require.NoError(t, err)

	built := tracker.Build([]CoincidenceEventRecord{caracoRecord(100, 4)}, L2Decision{Clocktick1600: 100, Mode: ModeCaraco}, 5)
	require.True(t, built)
	require.Equal(t, 1, tracker.Len())
	assert.Equal(t, living, tracker.Records()[0].Counter)

	for i := 0; i < living-1; i++ {
		require.NoError(t, tracker.Tick())
	}
	require.Equal(t, 1, tracker.Len(), "alive after N-1 ticks")
	assert.Equal(t, 1, tracker.Records()[0].Counter)

	require.NoError(t, tracker.Tick())
	assert.Zero(t, tracker.Len(), "gone after N ticks")
}

func TestPreviousEventAdvance(t *testing.T) {
	tracker, err := NewPreviousEventTracker(10, 5)
	require.NoError(t, err)
	require.True(t, tracker.Build([]CoincidenceEventRecord{caracoRecord(100, 4)}, L2Decision{Clocktick1600: 100}, 5))

	require.NoError(t, tracker.Advance(3))
	require.Equal(t, 1, tracker.Len())
	assert.Equal(t, 2, tracker.Records()[0].Counter)

	var violation *snemo.InvariantViolation
	assert.ErrorAs(t, tracker.Advance(0), &violation, "the clock only moves forward")

	require.NoError(t, tracker.Advance(1000))
	assert.Zero(t, tracker.Len())
}

func TestPreviousEventGateEnds(t *testing.T) {
	tests := []struct {
		ct    int
		built bool
	}{
		{99, false},
		{100, true},
		{105, true},
		{106, false},
	}
	for _, tt := range tests {
		tracker, err := NewPreviousEventTracker(10, 625)
		require.NoError(t, err)
		assert.Equal(t, tt.built, tracker.Build([]CoincidenceEventRecord{caracoRecord(tt.ct, 1)}, L2Decision{Clocktick1600: 100}, 5), "CT1600=%d", tt.ct)
	}
}

func TestPreviousEventMerge(t *testing.T) {
	tracker, err := NewPreviousEventTracker(10, 625)
	require.NoError(t, err)

	other := caracoRecord(102, 6)
	other.Mode = ModeCaloTrackerTimeCoinc
	other.Calo.Multiplicity[0] = 2
	records := []CoincidenceEventRecord{
		caracoRecord(99, 1),  // before the gate
		caracoRecord(100, 4), // gate start
		other,                // inside
		caracoRecord(106, 8), // after the gate
		{Clocktick1600: 101, Mode: ModeAPE, Decision: true},
	}
	require.True(t, tracker.Build(records, L2Decision{Clocktick1600: 100, Mode: ModeCaraco}, 5))

	per := tracker.Records()[0]
	assert.Equal(t, 100, per.Clocktick1600)
	assert.Equal(t, uint16(1<<4|1<<6), per.CoincidenceZoning[0])
	assert.Equal(t, uint16(1<<4|1<<6), per.ZoningWord[0])
	assert.Equal(t, 2, per.Multiplicity[0])
	assert.True(t, per.SingleSide)
	assert.True(t, per.TrackerZones[0][4].Has(ZoneMiddle))
	assert.True(t, per.TrackerZones[0][6].Has(ZoneMiddle))
	assert.Zero(t, per.TrackerZones[0][8])
}

func TestPreviousEventNothingInGate(t *testing.T) {
	tracker, err := NewPreviousEventTracker(10, 625)
	require.NoError(t, err)
	assert.False(t, tracker.Build([]CoincidenceEventRecord{caracoRecord(50, 1)}, L2Decision{Clocktick1600: 100}, 5))
	assert.Zero(t, tracker.Len())
}

func TestPreviousEventBufferDepth(t *testing.T) {
	tracker, err := NewPreviousEventTracker(2, 625)
	require.NoError(t, err)
	for _, ct := range []int{10, 20, 30} {
		require.True(t, tracker.Build([]CoincidenceEventRecord{caracoRecord(ct, 1)}, L2Decision{Clocktick1600: ct}, 5))
	}
	records := tracker.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 20, records[0].Clocktick1600, "oldest overwritten")
	assert.Equal(t, 30, records[1].Clocktick1600)
}

func TestPreviousEventCounterInvariant(t *testing.T) {
	tracker, err := NewPreviousEventTracker(2, 10)
	require.NoError(t, err)
	require.True(t, tracker.Build([]CoincidenceEventRecord{caracoRecord(10, 1)}, L2Decision{Clocktick1600: 10}, 5))
	tracker.records[0].Counter = 11

	var violation *snemo.InvariantViolation
	assert.ErrorAs(t, tracker.Tick(), &violation)
}

func TestPreviousEventTrackerConfig(t *testing.T) {
	_, err := NewPreviousEventTracker(0, 10)
	var cfgErr *snemo.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	_, err = NewPreviousEventTracker(10, 0)
	assert.ErrorAs(t, err, &cfgErr)
}
