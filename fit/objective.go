package fit

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/diff/fd"

	"bitbucket.org/Davydov/simlh/model"
)

// Objective is the negative log-likelihood of a model given the data
// as a function of a flat parameter vector.
type Objective struct {
	model  model.Model
	data   *model.Data
	layout model.Layout
	start  []float64
	calls  atomic.Int64
	// Step is the finite differences step for the gradient, zero
	// means default.
	Step float64
}

// NewObjective creates an objective. The model is evaluated once at
// the start parameters, so shape errors are reported here.
func NewObjective(m model.Model, data *model.Data, start model.Parameters) (*Objective, error) {
	layout, err := model.NewLayout(m.ParameterNames(), start)
	if err != nil {
		return nil, err
	}
	x, err := layout.Flatten(start)
	if err != nil {
		return nil, err
	}
	res, err := m.Evaluate(&model.Input{Data: data, Parameters: start, Mode: model.Score})
	if err != nil {
		return nil, err
	}
	log.Debugf("Starting NLL=%v", res.NLL)

	return &Objective{
		model:  m,
		data:   data,
		layout: layout,
		start:  x,
	}, nil
}

// Layout returns the parameter layout.
func (o *Objective) Layout() model.Layout {
	return o.layout
}

// Start returns a copy of the starting point.
func (o *Objective) Start() []float64 {
	return append([]float64(nil), o.start...)
}

// Parameters returns named parameters for the flat vector x.
func (o *Objective) Parameters(x []float64) model.Parameters {
	return o.layout.Unflatten(x)
}

// Calls returns the number of NLL evaluations.
func (o *Objective) Calls() int {
	return int(o.calls.Load())
}

// NLL returns the negative log-likelihood at x. Non-finite values
// are returned as +Inf. It is safe for concurrent use.
func (o *Objective) NLL(x []float64) float64 {
	o.calls.Add(1)
	res, err := o.model.Evaluate(&model.Input{
		Data:       o.data,
		Parameters: o.layout.Unflatten(x),
		Mode:       model.Score,
	})
	if err != nil {
		log.Debugf("Error evaluating model: %v", err)
		return math.Inf(+1)
	}
	if math.IsNaN(res.NLL) || math.IsInf(res.NLL, 0) {
		return math.Inf(+1)
	}
	return res.NLL
}

// Gradient computes the NLL gradient at x using central finite
// differences. If grad is nil, a new slice is allocated.
func (o *Objective) Gradient(grad, x []float64) []float64 {
	return fd.Gradient(grad, o.NLL, x, &fd.Settings{
		Formula:    fd.Central,
		Step:       o.Step,
		Concurrent: true,
	})
}
