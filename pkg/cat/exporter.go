package cat

import (
	"fmt"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// Clusterizer ids, as registered and written in the solutions.
const (
	CATID           = "CAT"
	SultanID        = "SULTAN"
	SultanThenCATID = "SULTAN_THEN_CAT"
)

type SolutionCluster struct {
	ID   int
	Hits []*snemo.TrackerHit
	Aux  AuxMap
}

type ClusteringSolution struct {
	SolutionID  int
	Clusters    []SolutionCluster
	Unclustered []*snemo.TrackerHit
	Aux         AuxMap
	HitAux      HitAux
}

// SolutionSink receives the exported solutions. Solutions are only ever
// appended.
type SolutionSink interface {
	Len() int
	Append(ClusteringSolution)
}

// Solutions is the in-memory sink.
type Solutions []ClusteringSolution

func (s *Solutions) Len() int                      { return len(*s) }
func (s *Solutions) Append(sol ClusteringSolution) { *s = append(*s, sol) }

type Exporter struct {
	setup Setup
	id    string
}

// NewExporter returns an exporter that stamps the solutions with the
// clusterizer id.
func NewExporter(setup Setup, id string) *Exporter {
	return &Exporter{setup: setup, id: id}
}

// Export appends one solution per scenario to sink and returns the number of
// sequences dropped for having fewer than two nodes.
func (e *Exporter) Export(scenarios []Scenario, in Input, sink SolutionSink) (dropped int, err error) {
	for _, sc := range scenarios {
		sol := ClusteringSolution{
			SolutionID: sink.Len(),
			Aux:        AuxMap{},
			HitAux:     HitAux{},
		}
		sol.Aux.SetString("clusterizer_id", e.id)
		for _, seq := range sc.Sequences {
			hits := make([]*snemo.TrackerHit, len(seq.Nodes))
			for i, n := range seq.Nodes {
				hit, ok := in.CellHits[n.Cell.ID]
				if !ok {
					return dropped, &snemo.InvariantViolation{
						Where:  "exporter",
						Reason: fmt.Sprintf("%s has no host hit", n.Cell),
					}
				}
				hits[i] = hit
			}
			if len(seq.Nodes) < 2 {
				dropped++
				if e.setup.RecordUnclustered {
					sol.Unclustered = append(sol.Unclustered, hits...)
				}
				continue
			}
			cluster := SolutionCluster{ID: len(sol.Clusters), Hits: hits, Aux: AuxMap{}}
			if e.setup.StoreAsProps {
				storeSequence(cluster.Aux, seq)
				for i, n := range seq.Nodes {
					storeNode(sol.HitAux.Of(hits[i]), n)
				}
			}
			sol.Clusters = append(sol.Clusters, cluster)
		}
		sink.Append(sol)
	}
	return dropped, nil
}

func setPoint(m AuxMap, prefix string, p, err Point) {
	p, err = ToDetector(p), ToDetector(err)
	m.SetReal(prefix+"_x", p.X)
	m.SetReal(prefix+"_y", p.Y)
	m.SetReal(prefix+"_z", p.Z)
	m.SetReal(prefix+"_x_error", err.X)
	m.SetReal(prefix+"_y_error", err.Y)
	m.SetReal(prefix+"_z_error", err.Z)
}

func setMeasure(m AuxMap, name string, v Measure, withError bool) {
	m.SetFlag("CAT_has_"+name, v.Valid)
	if !v.Valid {
		return
	}
	m.SetReal("CAT_"+name, v.Value)
	if withError {
		m.SetReal("CAT_"+name+"_error", v.Error)
	}
}

func setVertex(m AuxMap, name string, v *Vertex) {
	m.SetFlag("CAT_has_"+name, v != nil)
	if v == nil {
		return
	}
	m.SetString("CAT_"+name+"_type", v.Type)
	setPoint(m, "CAT_"+name, v.Pos, v.Err)
	if v.CaloID >= 0 {
		m.SetReal("CAT_"+name+"_calo_id", float64(v.CaloID))
	}
}

func storeSequence(m AuxMap, seq *Sequence) {
	m.SetFlag("CAT_has_momentum", seq.HasMomentum)
	if seq.HasMomentum {
		p := ToDetector(seq.Momentum)
		m.SetReal("CAT_momentum_x", p.X)
		m.SetReal("CAT_momentum_y", p.Y)
		m.SetReal("CAT_momentum_z", p.Z)
	}
	setMeasure(m, "charge", seq.Charge, false)
	setMeasure(m, "helix_charge", seq.HelixCharge, false)
	setMeasure(m, "detailed_charge", seq.DetailedCharge, false)
	setMeasure(m, "tangent_length", seq.TangentLength, true)
	setMeasure(m, "helix_length", seq.HelixLength, true)

	setVertex(m, "helix_vertex", seq.HelixVertex)
	setVertex(m, "helix_decay_vertex", seq.HelixDecayVertex)
	setVertex(m, "tangent_vertex", seq.TangentVertex)
	setVertex(m, "tangent_decay_vertex", seq.TangentDecayVertex)

	m.SetReals("CAT_chi2s_all", seq.Chi2sAll)
	m.SetReals("CAT_probs_all", seq.ProbsAll)
	m.SetReals("CAT_chi2s", seq.Chi2s)
	m.SetReals("CAT_probs", seq.Probs)
	m.SetReals("CAT_helix_chi2s", seq.HelixChi2s)
}

func storeNode(m AuxMap, n Node) {
	setPoint(m, "CAT_tangency", n.Tangency, n.TangencyErr)
	setPoint(m, "CAT_helix", n.Helix, n.HelixErr)
}
