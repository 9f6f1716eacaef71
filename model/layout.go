package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Layout describes how named parameters are packed into a flat
// vector, e.g. for optimization.
type Layout struct {
	names []string
	sizes []int
}

// NewLayout creates a layout for the parameters in the given order,
// sizes are taken from p.
func NewLayout(names []string, p Parameters) (Layout, error) {
	l := Layout{
		names: append([]string(nil), names...),
		sizes: make([]int, len(names)),
	}
	for i, name := range names {
		v, ok := p[name]
		if !ok {
			return Layout{}, fmt.Errorf("%w: parameter %s", ErrMissing, name)
		}
		l.sizes[i] = len(v)
	}
	return l, nil
}

// Len returns the length of the flat vector.
func (l Layout) Len() (n int) {
	for _, s := range l.sizes {
		n += s
	}
	return
}

// FlatNames returns a name for every element of the flat vector.
// Vector parameters are indexed, e.g. beta[0].
func (l Layout) FlatNames() []string {
	res := make([]string, 0, l.Len())
	for i, name := range l.names {
		if l.sizes[i] == 1 {
			res = append(res, name)
			continue
		}
		for j := 0; j < l.sizes[i]; j++ {
			res = append(res, name+"["+strconv.Itoa(j)+"]")
		}
	}
	return res
}

// Flatten packs p into a flat vector.
func (l Layout) Flatten(p Parameters) ([]float64, error) {
	x := make([]float64, 0, l.Len())
	for i, name := range l.names {
		v, ok := p[name]
		if !ok {
			return nil, fmt.Errorf("%w: parameter %s", ErrMissing, name)
		}
		if len(v) != l.sizes[i] {
			return nil, fmt.Errorf("%w: parameter %s has length %d, expected %d",
				ErrShapeMismatch, name, len(v), l.sizes[i])
		}
		x = append(x, v...)
	}
	return x, nil
}

// Unflatten unpacks a flat vector. The values are copied.
func (l Layout) Unflatten(x []float64) Parameters {
	if len(x) != l.Len() {
		panic("incorrect number of parameters")
	}
	p := make(Parameters, len(l.names))
	k := 0
	for i, name := range l.names {
		p[name] = append([]float64(nil), x[k:k+l.sizes[i]]...)
		k += l.sizes[i]
	}
	return p
}

// NamesString returns tab-separated flat names.
func (l Layout) NamesString() string {
	return strings.Join(l.FlatNames(), "\t")
}

// ValuesString returns tab-separated values.
func ValuesString(x []float64) string {
	s := make([]string, len(x))
	for i, v := range x {
		s[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(s, "\t")
}

// Map returns flat names mapped to values.
func (l Layout) Map(x []float64) map[string]float64 {
	res := make(map[string]float64, len(x))
	for i, name := range l.FlatNames() {
		res[name] = x[i]
	}
	return res
}

// FromMap is the inverse of Map. Missing names give an error.
func (l Layout) FromMap(m map[string]float64) ([]float64, error) {
	names := l.FlatNames()
	x := make([]float64, len(names))
	for i, name := range names {
		v, ok := m[name]
		if !ok {
			return nil, fmt.Errorf("%w: parameter %s", ErrMissing, name)
		}
		x[i] = v
	}
	return x, nil
}
