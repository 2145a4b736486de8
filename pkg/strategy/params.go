package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidParameter is returned when input parameters do not match a
// strategy's schema
var ErrInvalidParameter = errors.New("invalid strategy parameter")

// ParamType is the JSON type of a strategy parameter
type ParamType string

const (
	TypeNumber ParamType = "number"
	TypeString ParamType = "string"
	TypeArray  ParamType = "array"
	TypeObject ParamType = "object"
)

// ParamSpec describes one strategy parameter
type ParamSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Default     any       `json:"default" yaml:"default"`
	Description string    `json:"description" yaml:"description"`
}

// Parameters are the input parameters of a strategy run. After Resolve,
// numbers are float64, arrays are []string and objects are map[string]any.
type Parameters map[string]any

// Resolve checks params against a schema and fills in defaults. Unknown
// parameters are rejected.
func Resolve(specs []ParamSpec, params Parameters) (Parameters, error) {
	known := make(map[string]ParamSpec, len(specs))
	for _, s := range specs {
		known[s.Name] = s
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
		}
	}

	resolved := make(Parameters, len(specs))
	for _, s := range specs {
		raw, ok := params[s.Name]
		if !ok || raw == nil {
			raw = s.Default
		}
		v, err := coerce(s.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, s.Name, err)
		}
		resolved[s.Name] = v
	}
	return resolved, nil
}

func coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeArray:
		switch a := v.(type) {
		case []string:
			return append([]string(nil), a...), nil
		case []any:
			out := make([]string, 0, len(a))
			for _, e := range a {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("array element %v is not a string", e)
				}
				out = append(out, s)
			}
			return out, nil
		}
	case TypeObject:
		switch o := v.(type) {
		case map[string]any:
			out := make(map[string]any, len(o))
			for k, e := range o {
				out[k] = e
			}
			return out, nil
		case map[string]float64:
			out := make(map[string]any, len(o))
			for k, e := range o {
				out[k] = e
			}
			return out, nil
		case map[string]string:
			out := make(map[string]any, len(o))
			for k, e := range o {
				out[k] = e
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Float returns a number parameter
func (p Parameters) Float(name string) float64 {
	f, _ := toFloat(p[name])
	return f
}

// String returns a string parameter
func (p Parameters) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Strings returns an array parameter
func (p Parameters) Strings(name string) []string {
	s, _ := p[name].([]string)
	return s
}

// FloatMap returns an object parameter whose values must all be numbers
func (p Parameters) FloatMap(name string) (map[string]float64, error) {
	obj, _ := p[name].(map[string]any)
	out := make(map[string]float64, len(obj))
	for k, v := range obj {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a number", ErrInvalidParameter, name, k)
		}
		out[k] = f
	}
	return out, nil
}

// StringMap returns an object parameter whose values must all be strings
func (p Parameters) StringMap(name string) (map[string]string, error) {
	obj, _ := p[name].(map[string]any)
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a string", ErrInvalidParameter, name, k)
		}
		out[k] = s
	}
	return out, nil
}
