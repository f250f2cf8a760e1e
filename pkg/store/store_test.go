package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
	"github.com/next-exp/snemo_go/pkg/trigger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Migrate(), "migrations are idempotent")
	return s
}

func solution(id int, hits ...*snemo.TrackerHit) cat.ClusteringSolution {
	sol := cat.ClusteringSolution{SolutionID: id, Aux: cat.AuxMap{}, HitAux: cat.HitAux{}}
	sol.Aux.SetString("clusterizer_id", cat.CATID)
	aux := cat.AuxMap{}
	aux.SetFlag("CAT_has_charge", true)
	aux.SetReal("CAT_charge", -1)
	sol.Clusters = []cat.SolutionCluster{{ID: 0, Hits: hits, Aux: aux}}
	return sol
}

func TestSolutions(t *testing.T) {
	s := openStore(t)
	run, err := s.NewRun("calibration")
	require.NoError(t, err)

	hits := []*snemo.TrackerHit{{ID: 4}, {ID: 7}, {ID: 9}}
	noise := &snemo.TrackerHit{ID: 12}
	first := solution(0, hits...)
	first.Unclustered = []*snemo.TrackerHit{noise}
	require.NoError(t, s.SaveSolutions(run, 3, []cat.ClusteringSolution{first, solution(1, hits[:2]...)}))
	require.NoError(t, s.SaveSolutions(run, 1, []cat.ClusteringSolution{solution(2, hits[0])}))

	rows, err := s.Solutions(run)
	require.NoError(t, err)
	want := []SolutionRow{
		{RunID: run.String(), Event: 1, SolutionID: 2, Clusterizer: "CAT", NClusters: 1},
		{RunID: run.String(), Event: 3, SolutionID: 0, Clusterizer: "CAT", NClusters: 1, NUnclustered: 1},
		{RunID: run.String(), Event: 3, SolutionID: 1, Clusterizer: "CAT", NClusters: 1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("solutions mismatch (-want +got):\n%s", diff)
	}

	clusters, err := s.Clusters(run, 3)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "[4,7,9]", clusters[0].HitIDs)
	assert.Equal(t, 3, clusters[0].NHits)
	assert.JSONEq(t, `{"CAT_has_charge": true, "CAT_charge": -1}`, clusters[0].Aux)

	other, err := s.Solutions(uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSolutionsRollBack(t *testing.T) {
	s := openStore(t)
	run, err := s.NewRun("dup")
	require.NoError(t, err)

	sol := solution(0, &snemo.TrackerHit{ID: 1})
	require.NoError(t, s.SaveSolutions(run, 5, []cat.ClusteringSolution{sol}))
	// the second copy of the same key fails, the first insert of the batch
	// must not stay behind
	err = s.SaveSolutions(run, 6, []cat.ClusteringSolution{solution(0), sol, sol})
	assert.Error(t, err)

	rows, err := s.Solutions(run)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDecisions(t *testing.T) {
	s := openStore(t)
	run, err := s.NewRun("trigger")
	require.NoError(t, err)

	result := &trigger.Result{L2: []trigger.L2Decision{
		{Clocktick1600: 3, Mode: trigger.ModeCaraco},
		{Clocktick1600: 9, Mode: trigger.ModeDelayed},
	}}
	require.NoError(t, s.SaveDecisions(run, 0, result))
	require.NoError(t, s.SaveDecisions(run, 1, &trigger.Result{}))

	rows, err := s.Decisions(run)
	require.NoError(t, err)
	want := []DecisionRow{
		{RunID: run.String(), Event: 0, Index: 0, Clocktick1600: 3, Mode: "CARACO"},
		{RunID: run.String(), Event: 0, Index: 1, Clocktick1600: 9, Mode: "DELAYED"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("decisions mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "trigger", runs[0].Label)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	var cfgErr *snemo.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
