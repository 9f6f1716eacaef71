// Package dataio reads and writes model input files. An input file is
// YAML (or JSON, which is a subset of YAML):
//
//	data:
//	  y: [1.2, 0.3, 2.5]
//	matrices:
//	  X: [[1, 0], [1, 1], [1, 2]]
//	parameters:
//	  log_resid_sd: 0
//	  beta: [0.5, 1]
//
// Parameters are either scalars or lists.
package dataio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/simlh/model"
)

// ErrNull is returned by Read for fields without a value.
var ErrNull = errors.New("null value")

// vector is a list of values, a scalar is read as a list of length
// one. Vectors are written in the flow style.
type vector []float64

// UnmarshalYAML accepts both scalars and sequences.
func (v *vector) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		var f float64
		if err := n.Decode(&f); err != nil {
			return err
		}
		*v = vector{f}
		return nil
	}
	var s []float64
	if err := n.Decode(&s); err != nil {
		return err
	}
	*v = s
	return nil
}

// MarshalYAML writes a flow style sequence.
func (v vector) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{}
	if err := n.Encode([]float64(v)); err != nil {
		return nil, err
	}
	n.Style = yaml.FlowStyle
	return n, nil
}

// scalar is a parameter value, written as a plain number if it has a
// single element.
type scalar vector

// UnmarshalYAML accepts both scalars and sequences.
func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	return (*vector)(s).UnmarshalYAML(n)
}

// MarshalYAML writes a number or a flow style sequence.
func (s scalar) MarshalYAML() (interface{}, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return vector(s).MarshalYAML()
}

// matrix is a list of rows, every row has to be a sequence.
type matrix []vector

// UnmarshalYAML rejects rows which are not sequences.
func (m *matrix) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: expected a list of rows", model.ErrShapeMismatch, n.Line)
	}
	for i, row := range n.Content {
		if row.Kind != yaml.SequenceNode {
			return fmt.Errorf("%w: line %d: row %d is not a list", model.ErrShapeMismatch, row.Line, i)
		}
	}
	var rows []vector
	if err := n.Decode(&rows); err != nil {
		return err
	}
	*m = rows
	return nil
}

// file is the input file structure.
type file struct {
	Data       map[string]vector `yaml:"data,omitempty"`
	Matrices   map[string]matrix `yaml:"matrices,omitempty"`
	Parameters map[string]scalar `yaml:"parameters,omitempty"`
}

// Read reads data and parameters.
func Read(r io.Reader) (*model.Data, model.Parameters, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("empty input file")
		}
		return nil, nil, err
	}

	data := model.NewData()
	for name, v := range f.Data {
		// null values are not decoded
		if v == nil {
			return nil, nil, fmt.Errorf("%w: data vector %s has no value", ErrNull, name)
		}
		data.Vectors[name] = []float64(v)
	}
	for name, rows := range f.Matrices {
		if rows == nil {
			return nil, nil, fmt.Errorf("%w: matrix %s has no value", ErrNull, name)
		}
		m, err := dense(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("matrix %s: %w", name, err)
		}
		data.Matrices[name] = m
	}

	par := make(model.Parameters, len(f.Parameters))
	for name, v := range f.Parameters {
		if v == nil {
			return nil, nil, fmt.Errorf("%w: parameter %s has no value", ErrNull, name)
		}
		par[name] = []float64(v)
	}

	return data, par, nil
}

// ReadFile reads data and parameters from a file.
func ReadFile(path string) (*model.Data, model.Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, par, err := Read(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, par, nil
}

// Write writes data and parameters in the input file format.
func Write(w io.Writer, data *model.Data, par model.Parameters) error {
	var f file
	if data != nil {
		f.Data = make(map[string]vector, len(data.Vectors))
		for name, v := range data.Vectors {
			f.Data[name] = v
		}
		f.Matrices = make(map[string]matrix, len(data.Matrices))
		for name, m := range data.Matrices {
			f.Matrices[name] = rows(m)
		}
	}
	f.Parameters = make(map[string]scalar, len(par))
	for name, v := range par {
		f.Parameters[name] = v
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// WriteFile writes data and parameters to a file.
func WriteFile(path string, data *model.Data, par model.Parameters) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, data, par); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// dense creates a matrix from rows, all the rows have to be of the
// same non-zero length.
func dense(rows matrix) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", model.ErrShapeMismatch)
	}
	c := len(rows[0])
	v := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: row %d has length %d, expected %d",
				model.ErrShapeMismatch, i, len(row), c)
		}
		v = append(v, row...)
	}
	return mat.NewDense(len(rows), c, v), nil
}

// rows is the inverse of dense.
func rows(m *mat.Dense) matrix {
	r, c := m.Dims()
	res := make(matrix, r)
	for i := range res {
		res[i] = make(vector, c)
		mat.Row(res[i], i, m)
	}
	return res
}
