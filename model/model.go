// Package model provides the statistical models. Every model can be
// evaluated in two modes: score mode computes the negative
// log-likelihood of the data, simulate mode draws a new data set from
// the same distributions. Both modes share the parameter transforms
// and the distributions.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/simlh/dist"
	"bitbucket.org/Davydov/simlh/transform"
)

// log is the package logger.
var log = logging.MustGetLogger("model")

var (
	// ErrShapeMismatch is returned if data or parameter sizes
	// are inconsistent.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrMissing is returned if a data field or a parameter is
	// missing.
	ErrMissing = errors.New("missing field")
	// ErrUnknownMode is returned for a mode other than Score or
	// Simulate.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrNoSource is returned if simulation is requested without
	// a random source.
	ErrNoSource = errors.New("simulate mode requires a random source")
	// ErrUnknownModel is returned by New for unknown model names.
	ErrUnknownModel = errors.New("unknown model")
)

// Mode is an evaluation mode. The zero value is not a valid mode.
type Mode int

// Evaluation modes.
const (
	// Score computes the negative log-likelihood.
	Score Mode = iota + 1
	// Simulate draws a new data set.
	Simulate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Score:
		return "score"
	case Simulate:
		return "simulate"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Input is everything needed for a single evaluation.
type Input struct {
	Data       *Data
	Parameters Parameters
	Mode       Mode
	// Src is the random source, it is only used in the simulate
	// mode.
	Src rand.Source
}

// check validates the mode and the random source.
func (in *Input) check() error {
	switch in.Mode {
	case Score:
	case Simulate:
		if in.Src == nil {
			return ErrNoSource
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnknownMode, in.Mode)
	}
	if in.Data == nil {
		return fmt.Errorf("%w: no data", ErrMissing)
	}
	return nil
}

// Quantity is a reported transformed parameter.
type Quantity struct {
	Name  string
	Value float64
	// StdErr is NaN unless computed by sdreport.
	StdErr float64
}

// Reported is the ordered list of reported quantities.
type Reported []Quantity

// Get returns the value of the named quantity.
func (r Reported) Get(name string) (float64, bool) {
	for _, q := range r {
		if q.Name == name {
			return q.Value, true
		}
	}
	return math.NaN(), false
}

// Values returns all the values in order.
func (r Reported) Values() []float64 {
	v := make([]float64, len(r))
	for i, q := range r {
		v[i] = q.Value
	}
	return v
}

// Result is the result of an evaluation.
type Result struct {
	// NLL is the negative log-likelihood, it is zero in the
	// simulate mode.
	NLL float64
	// Reported holds transformed parameters in both modes.
	Reported Reported
	// Simulated is the simulated data, nil in the score mode.
	Simulated *Data
}

// Model is a statistical model.
type Model interface {
	// Name returns the model name.
	Name() string
	// ParameterNames returns parameter names in the order used
	// for optimization.
	ParameterNames() []string
	// Evaluate scores or simulates depending on in.Mode.
	Evaluate(in *Input) (*Result, error)
}

// constructors maps model names to model constructors.
var constructors = map[string]func() Model{
	"FE":        func() Model { return NewFE() },
	"FE0":       func() Model { return NewFE0() },
	"MultiDist": func() Model { return NewMultiDist() },
}

// New returns a model by its name.
func New(name string) (Model, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	log.Debugf("Using %s model", name)
	return c(), nil
}

// Names returns the names of all the models.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// binder reads and transforms parameters, remembering the reported
// quantities and the first error.
type binder struct {
	par      Parameters
	reported Reported
	err      error
}

// scalar returns a raw scalar parameter.
func (b *binder) scalar(name string) float64 {
	if b.err != nil {
		return math.NaN()
	}
	v, err := b.par.Scalar(name)
	if err != nil {
		b.err = err
	}
	return v
}

// vector returns a raw vector parameter.
func (b *binder) vector(name string) []float64 {
	if b.err != nil {
		return nil
	}
	v, err := b.par.Vector(name)
	if err != nil {
		b.err = err
	}
	return v
}

// transformed reads a raw scalar, transforms it and reports it under
// the given name if needed.
func (b *binder) transformed(raw, name string, k transform.Kind) float64 {
	v, rep := transform.Apply(b.scalar(raw), k)
	if rep && b.err == nil {
		b.reported = append(b.reported, Quantity{Name: name, Value: v, StdErr: math.NaN()})
	}
	return v
}

// term is a data vector together with its per-observation
// distributions.
type term struct {
	field string
	obs   []float64
	at    func(i int) dist.Distribution
}

// evaluate runs the terms in the requested mode.
func evaluate(in *Input, reported Reported, terms ...term) *Result {
	res := &Result{Reported: reported}
	switch in.Mode {
	case Score:
		for _, t := range terms {
			res.NLL += dist.NegLogLik(t.obs, t.at)
		}
	case Simulate:
		res.Simulated = NewData()
		for _, t := range terms {
			res.Simulated.Vectors[t.field] = dist.Simulate(len(t.obs), t.at, in.Src)
		}
	}
	return res
}
