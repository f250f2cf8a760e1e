package cat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

type countingDriver struct{ calls int }

func (d *countingDriver) Name() string { return "count" }

func (d *countingDriver) Process(_ context.Context, hits []*snemo.TrackerHit, _ []*snemo.CaloHit, _ SolutionSink) (Report, error) {
	d.calls++
	return Report{Clusters: len(hits)}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"CAT", "SULTAN", "SULTAN_THEN_CAT"}, r.Names())

	for _, name := range r.Names() {
		driver, err := r.New(name, DefaultSetup(), DemonstratorGeometry())
		require.NoError(t, err, name)
		assert.Equal(t, name, driver.Name())
	}

	_, err := r.New("TrackerPreClustering", DefaultSetup(), DemonstratorGeometry())
	var cfgErr *snemo.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "algorithm", cfgErr.Key)

	counter := &countingDriver{}
	require.NoError(t, r.Register("count", func(Setup, Geometry) (Driver, error) { return counter, nil }))
	assert.Error(t, r.Register("count", nil), "names are unique")
	assert.Equal(t, []string{"CAT", "SULTAN", "SULTAN_THEN_CAT", "count"}, r.Names())

	d, err := r.New("count", DefaultSetup(), Geometry{})
	require.NoError(t, err)
	report, err := d.Process(context.Background(), diagonal(), nil, &Solutions{})
	require.NoError(t, err)
	assert.Equal(t, 9, report.Clusters)
	assert.Equal(t, 1, counter.calls)
}

func TestNewCATChecksSetup(t *testing.T) {
	setup := DefaultSetup()
	setup.NOffLayers = -2
	_, err := NewRegistry().New("CAT", setup, DemonstratorGeometry())
	var cfgErr *snemo.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "nofflayers", cfgErr.Key)

	_, err = NewCAT(DefaultSetup(), Geometry{})
	assert.ErrorAs(t, err, &cfgErr)

	setup = DefaultSetup()
	setup.Sultan.EMax = setup.Sultan.EMin
	_, err = NewRegistry().New("SULTAN", setup, DemonstratorGeometry())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sultan.Emin", cfgErr.Key)
}
