package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Data stores named observation vectors and design matrices.
type Data struct {
	Vectors  map[string][]float64
	Matrices map[string]*mat.Dense
}

// NewData creates an empty data set.
func NewData() *Data {
	return &Data{
		Vectors:  make(map[string][]float64),
		Matrices: make(map[string]*mat.Dense),
	}
}

// Vector returns a named vector.
func (d *Data) Vector(name string) ([]float64, error) {
	v, ok := d.Vectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: data vector %s", ErrMissing, name)
	}
	return v, nil
}

// Matrix returns a named matrix.
func (d *Data) Matrix(name string) (*mat.Dense, error) {
	m, ok := d.Matrices[name]
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: data matrix %s", ErrMissing, name)
	}
	return m, nil
}

// sameLength returns the named vectors, all of them have to be present
// and have the same length.
func (d *Data) sameLength(names ...string) ([][]float64, error) {
	res := make([][]float64, len(names))
	for i, name := range names {
		v, err := d.Vector(name)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(v) != len(res[0]) {
			return nil, fmt.Errorf("%w: data vector %s has length %d, %s has length %d",
				ErrShapeMismatch, name, len(v), names[0], len(res[0]))
		}
		res[i] = v
	}
	return res, nil
}

// Copy creates a deep copy of the data.
func (d *Data) Copy() *Data {
	c := NewData()
	for name, v := range d.Vectors {
		c.Vectors[name] = append([]float64(nil), v...)
	}
	for name, m := range d.Matrices {
		c.Matrices[name] = mat.DenseCopyOf(m)
	}
	return c
}

// Update returns a copy of d where vectors present in upd are
// replaced. It is used to score simulated data.
func (d *Data) Update(upd *Data) *Data {
	c := d.Copy()
	for name, v := range upd.Vectors {
		c.Vectors[name] = append([]float64(nil), v...)
	}
	return c
}

// Parameters maps parameter names to values on the unconstrained
// scale. Scalars are stored as one-element slices.
type Parameters map[string][]float64

// Scalar returns a scalar parameter.
func (p Parameters) Scalar(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("%w: parameter %s", ErrMissing, name)
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("%w: parameter %s has length %d, expected scalar",
			ErrShapeMismatch, name, len(v))
	}
	return v[0], nil
}

// Vector returns a vector parameter.
func (p Parameters) Vector(name string) ([]float64, error) {
	v, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("%w: parameter %s", ErrMissing, name)
	}
	return v, nil
}
