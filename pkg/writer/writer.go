package writer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	hdf5 "github.com/jmbenlloch/go-hdf5"

	snemo "github.com/next-exp/snemo_go/pkg"
	"github.com/next-exp/snemo_go/pkg/cat"
	"github.com/next-exp/snemo_go/pkg/trigger"
)

// Writer stores reconstruction and trigger results in one HDF5 file. It is
// not safe for concurrent use; the pipeline writes from a single goroutine.
type Writer struct {
	File         *hdf5.File
	Filename     string
	RunGroup     *hdf5.Group
	RecoGroup    *hdf5.Group
	TriggerGroup *hdf5.Group
	RunInfoTable *table
	EventTable   *table
	ClusterTable *table
	HitTable     *table
	L1Table      *table
	L2Table      *table
}

func NewWriter(filename string, compression int) (*Writer, error) {
	if snemo.Verbosity() > 0 {
		snemo.Log().Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")
	}
	f, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &snemo.ErrOpenFile{Filename: filename, Err: err}
	}
	w := &Writer{File: f, Filename: filename}

	groups := []struct {
		name string
		dst  **hdf5.Group
	}{
		{"Run", &w.RunGroup},
		{"Reco", &w.RecoGroup},
		{"Trigger", &w.TriggerGroup},
	}
	for _, g := range groups {
		if *g.dst, err = f.CreateGroup(g.name); err != nil {
			return nil, errors.Join(fmt.Errorf("error creating group %s: %w", g.name, err), w.Close())
		}
	}

	tables := []struct {
		group    *hdf5.Group
		name     string
		datatype interface{}
		dst      **table
	}{
		{w.RunGroup, "runInfo", RunInfoHDF5{}, &w.RunInfoTable},
		{w.RunGroup, "events", EventDataHDF5{}, &w.EventTable},
		{w.RecoGroup, "clusters", ClusterHDF5{}, &w.ClusterTable},
		{w.RecoGroup, "hits", HitHDF5{}, &w.HitTable},
		{w.TriggerGroup, "L1", L1HDF5{}, &w.L1Table},
		{w.TriggerGroup, "L2", L2HDF5{}, &w.L2Table},
	}
	for _, t := range tables {
		if *t.dst, err = createTable(t.group, t.name, t.datatype, compression); err != nil {
			return nil, errors.Join(err, w.Close())
		}
	}
	return w, nil
}

func (w *Writer) WriteRun(run uuid.UUID, label string) error {
	return writeEntryToTable(w.RunInfoTable, RunInfoHDF5{
		run_id: convertToHdf5String(run.String()),
		label:  convertToHdf5String(label),
	})
}

func auxReal(m cat.AuxMap, key string) float64 {
	v, _ := m.Real(key)
	return v
}

func auxFlag(m cat.AuxMap, key string) int8 {
	v, _ := m.Flag(key)
	return boolToInt8(v)
}

// clusterRows flattens the solutions of one event into cluster and hit rows.
func clusterRows(evt int32, solutions []cat.ClusteringSolution) ([]ClusterHDF5, []HitHDF5) {
	var clusters []ClusterHDF5
	var hits []HitHDF5
	for _, sol := range solutions {
		tag, _ := sol.Aux.Text("clusterizer_id")
		for _, cl := range sol.Clusters {
			m := cl.Aux
			row := ClusterHDF5{
				evt_number:      evt,
				solution_id:     int32(sol.SolutionID),
				cluster_id:      int32(cl.ID),
				n_hits:          int32(len(cl.Hits)),
				has_charge:      auxFlag(m, "CAT_has_charge"),
				charge:          auxReal(m, "CAT_charge"),
				has_momentum:    auxFlag(m, "CAT_has_momentum"),
				momentum_x:      auxReal(m, "CAT_momentum_x"),
				momentum_y:      auxReal(m, "CAT_momentum_y"),
				momentum_z:      auxReal(m, "CAT_momentum_z"),
				tangent_length:  auxReal(m, "CAT_tangent_length"),
				helix_length:    auxReal(m, "CAT_helix_length"),
				has_vertex:      auxFlag(m, "CAT_has_helix_vertex"),
				vertex_x:        auxReal(m, "CAT_helix_vertex_x"),
				vertex_y:        auxReal(m, "CAT_helix_vertex_y"),
				vertex_z:        auxReal(m, "CAT_helix_vertex_z"),
				has_decay:       auxFlag(m, "CAT_has_helix_decay_vertex"),
				decay_x:         auxReal(m, "CAT_helix_decay_vertex_x"),
				decay_y:         auxReal(m, "CAT_helix_decay_vertex_y"),
				decay_z:         auxReal(m, "CAT_helix_decay_vertex_z"),
				decay_calo_id:   -1,
				n_unclustered:   int32(len(sol.Unclustered)),
				clusterizer_tag: convertToHdf5String(tag),
			}
			if id, ok := m.Real("CAT_helix_decay_vertex_calo_id"); ok {
				row.decay_calo_id = int32(id)
			}
			clusters = append(clusters, row)

			for _, hit := range cl.Hits {
				h := sol.HitAux[hit]
				hits = append(hits, HitHDF5{
					evt_number:  evt,
					solution_id: int32(sol.SolutionID),
					cluster_id:  int32(cl.ID),
					hit_id:      int32(hit.ID),
					tangency_x:  auxReal(h, "CAT_tangency_x"),
					tangency_y:  auxReal(h, "CAT_tangency_y"),
					tangency_z:  auxReal(h, "CAT_tangency_z"),
					helix_x:     auxReal(h, "CAT_helix_x"),
					helix_y:     auxReal(h, "CAT_helix_y"),
					helix_z:     auxReal(h, "CAT_helix_z"),
				})
			}
		}
	}
	return clusters, hits
}

// WriteReco appends one event with its clustering solutions.
func (w *Writer) WriteReco(event *snemo.Event, solutions []cat.ClusteringSolution) error {
	evt := int32(event.Number)
	err := writeEntryToTable(w.EventTable, EventDataHDF5{
		evt_number:     evt,
		n_tracker_hits: int32(len(event.TrackerHits)),
		n_calo_hits:    int32(len(event.CaloHits)),
		n_solutions:    int32(len(solutions)),
	})
	if err != nil {
		return fmt.Errorf("error writing event %d: %w", event.Number, err)
	}
	clusters, hits := clusterRows(evt, solutions)
	if err := writeArrayToTable(w.ClusterTable, &clusters); err != nil {
		return fmt.Errorf("error writing clusters of event %d: %w", event.Number, err)
	}
	if err := writeArrayToTable(w.HitTable, &hits); err != nil {
		return fmt.Errorf("error writing hits of event %d: %w", event.Number, err)
	}
	return nil
}

// WriteTrigger appends the L1 and L2 decisions of one event.
func (w *Writer) WriteTrigger(event int, result *trigger.Result) error {
	evt := int32(event)
	l1 := make([]L1HDF5, len(result.L1))
	for i, d := range result.L1 {
		l1[i] = L1HDF5{evt_number: evt, clocktick_25ns: int32(d.Clocktick25)}
	}
	l2 := make([]L2HDF5, len(result.L2))
	for i, d := range result.L2 {
		l2[i] = L2HDF5{
			evt_number:       evt,
			clocktick_1600ns: int32(d.Clocktick1600),
			mode:             convertToHdf5String(d.Mode.String()),
			decision:         boolToInt8(result.Decision),
		}
	}
	if err := writeArrayToTable(w.L1Table, &l1); err != nil {
		return fmt.Errorf("error writing L1 of event %d: %w", event, err)
	}
	if err := writeArrayToTable(w.L2Table, &l2); err != nil {
		return fmt.Errorf("error writing L2 of event %d: %w", event, err)
	}
	return nil
}

func (w *Writer) Close() error {
	if snemo.Verbosity() > 0 {
		snemo.Log().Info(fmt.Sprintf("Closing file %s", w.Filename), "hdf5writer")
	}
	var errs []error

	tables := []struct {
		name string
		t    *table
	}{
		{"run info table", w.RunInfoTable},
		{"event table", w.EventTable},
		{"cluster table", w.ClusterTable},
		{"hit table", w.HitTable},
		{"L1 table", w.L1Table},
		{"L2 table", w.L2Table},
	}
	for _, t := range tables {
		if t.t == nil {
			continue
		}
		if err := t.t.dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", t.name, err))
		}
	}
	groups := []struct {
		name string
		g    *hdf5.Group
	}{
		{"run group", w.RunGroup},
		{"reco group", w.RecoGroup},
		{"trigger group", w.TriggerGroup},
	}
	for _, g := range groups {
		if g.g == nil {
			continue
		}
		if err := g.g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", g.name, err))
		}
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}
	return errors.Join(errs...)
}
