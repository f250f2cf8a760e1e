package snemo

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Properties is a flat key/value store with typed lookups. Nested maps (as
// written in YAML) are reachable with dotted keys.
type Properties map[string]any

// Dimension selects the unit table used by FetchReal.
type Dimension int

const (
	Dimensionless Dimension = iota
	Length                  // mm
	Time                    // ms
	MagneticField           // tesla
	Angle                   // degree
	Energy                  // MeV
)

func (d Dimension) String() string {
	switch d {
	case Dimensionless:
		return "dimensionless"
	case Length:
		return "length"
	case Time:
		return "time"
	case MagneticField:
		return "magnetic_field"
	case Angle:
		return "angle"
	case Energy:
		return "energy"
	default:
		return "Unknown"
	}
}

var units = map[Dimension]map[string]float64{
	Length:        {"um": 1e-3, "mm": 1, "cm": 10, "m": 1000},
	Time:          {"ns": 1e-6, "us": 1e-3, "ms": 1, "s": 1000},
	MagneticField: {"T": 1, "tesla": 1, "kG": 0.1, "gauss": 1e-4, "G": 1e-4},
	Angle:         {"deg": 1, "degree": 1, "rad": 180 / math.Pi, "radian": 180 / math.Pi},
	Energy:        {"eV": 1e-6, "keV": 1e-3, "MeV": 1, "GeV": 1000},
}

func (p Properties) lookup(key string) (any, bool) {
	if v, ok := p[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	sub, ok := p[head]
	if !ok {
		return nil, false
	}
	switch m := sub.(type) {
	case Properties:
		return m.lookup(rest)
	case map[string]any:
		return Properties(m).lookup(rest)
	}
	return nil, false
}

func (p Properties) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// Keys returns the top level keys in sorted order.
func (p Properties) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Subset returns the entries whose key starts with prefix, with the prefix
// removed. A nested map stored under the prefix name is merged in as well.
func (p Properties) Subset(prefix string) Properties {
	out := Properties{}
	name := strings.TrimSuffix(prefix, ".")
	switch m := p[name].(type) {
	case Properties:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			out[k] = v
		}
	}
	for k, v := range p {
		if strings.HasPrefix(k, prefix) && k != prefix {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

func (p Properties) FetchString(key string) (string, error) {
	v, ok := p.lookup(key)
	if !ok {
		return "", &ConfigurationError{Key: key, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected a string, got %T", v)}
	}
	return s, nil
}

func (p Properties) FetchBoolean(key string) (bool, error) {
	v, ok := p.lookup(key)
	if !ok {
		return false, &ConfigurationError{Key: key, Reason: "missing"}
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, &ConfigurationError{Key: key, Reason: "not a boolean: " + b}
		}
		return parsed, nil
	}
	return false, &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected a boolean, got %T", v)}
}

func (p Properties) FetchInteger(key string) (int, error) {
	v, ok := p.lookup(key)
	if !ok {
		return 0, &ConfigurationError{Key: key, Reason: "missing"}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("not an integer: %v", n)}
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &ConfigurationError{Key: key, Reason: "not an integer: " + n}
		}
		return parsed, nil
	}
	return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected an integer, got %T", v)}
}

// FetchReal returns the value of key converted to the base unit of dim. A
// bare number is taken to be in the base unit already; a string such as
// "25 gauss" is converted.
func (p Properties) FetchReal(key string, dim Dimension) (float64, error) {
	v, ok := p.lookup(key)
	if !ok {
		return 0, &ConfigurationError{Key: key, Reason: "missing"}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return parseQuantity(key, n, dim)
	}
	return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected a real, got %T", v)}
}

func parseQuantity(key string, s string, dim Dimension) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, &ConfigurationError{Key: key, Reason: "malformed quantity: " + s}
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: "malformed quantity: " + s}
	}
	if len(fields) == 1 {
		return value, nil
	}
	factor, ok := units[dim][fields[1]]
	if !ok {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("unit %q is not a %s unit", fields[1], dim)}
	}
	return value * factor, nil
}

func (p Properties) FetchStrings(key string) ([]string, error) {
	v, ok := p.lookup(key)
	if !ok {
		return nil, &ConfigurationError{Key: key, Reason: "missing"}
	}
	switch l := v.(type) {
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected strings, got %T", item)}
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, &ConfigurationError{Key: key, Reason: fmt.Sprintf("expected a list of strings, got %T", v)}
}

// The Get* helpers return def when key is absent and the typed error when the
// stored value has the wrong type.

func (p Properties) GetString(key string, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.FetchString(key)
}

func (p Properties) GetBoolean(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.FetchBoolean(key)
}

func (p Properties) GetInteger(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.FetchInteger(key)
}

func (p Properties) GetReal(key string, dim Dimension, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.FetchReal(key, dim)
}
