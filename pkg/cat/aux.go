package cat

import (
	"encoding/json"
	"slices"

	"golang.org/x/exp/maps"

	snemo "github.com/next-exp/snemo_go/pkg"
)

type AuxKind int

const (
	AuxFlag AuxKind = iota
	AuxReal
	AuxString
	AuxReals
)

type AuxValue struct {
	Kind  AuxKind
	Flag  bool
	Real  float64
	Str   string
	Reals []float64
}

// Any returns the value as a plain Go value.
func (v AuxValue) Any() any {
	switch v.Kind {
	case AuxFlag:
		return v.Flag
	case AuxReal:
		return v.Real
	case AuxString:
		return v.Str
	default:
		return v.Reals
	}
}

// AuxMap holds the auxiliary annotations of a solution, a cluster or a hit.
type AuxMap map[string]AuxValue

func (m AuxMap) SetFlag(key string, v bool)     { m[key] = AuxValue{Kind: AuxFlag, Flag: v} }
func (m AuxMap) SetReal(key string, v float64)  { m[key] = AuxValue{Kind: AuxReal, Real: v} }
func (m AuxMap) SetString(key string, v string) { m[key] = AuxValue{Kind: AuxString, Str: v} }
func (m AuxMap) SetReals(key string, v []float64) {
	m[key] = AuxValue{Kind: AuxReals, Reals: slices.Clone(v)}
}

func (m AuxMap) Flag(key string) (bool, bool) {
	v, ok := m[key]
	return v.Flag, ok && v.Kind == AuxFlag
}

func (m AuxMap) Real(key string) (float64, bool) {
	v, ok := m[key]
	return v.Real, ok && v.Kind == AuxReal
}

func (m AuxMap) Text(key string) (string, bool) {
	v, ok := m[key]
	return v.Str, ok && v.Kind == AuxString
}

func (m AuxMap) Reals(key string) ([]float64, bool) {
	v, ok := m[key]
	return v.Reals, ok && v.Kind == AuxReals
}

func (m AuxMap) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

func (m AuxMap) MarshalJSON() ([]byte, error) {
	plain := make(map[string]any, len(m))
	for k, v := range m {
		plain[k] = v.Any()
	}
	return json.Marshal(plain)
}

// HitAux is the per-hit side table of a solution. Keys are the host hit
// pointers, so the annotations are reachable from the input collection and
// from the clusters alike.
type HitAux map[*snemo.TrackerHit]AuxMap

// Of returns the annotations of hit, creating them if needed.
func (h HitAux) Of(hit *snemo.TrackerHit) AuxMap {
	m, ok := h[hit]
	if !ok {
		m = AuxMap{}
		h[hit] = m
	}
	return m
}
