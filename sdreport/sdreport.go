// Package sdreport computes standard errors of the parameters and of
// the reported quantities of a model. Derivatives of the negative
// log-likelihood are approximated by finite differences, the
// covariance is the inverse of the Hessian and it is propagated to
// the reported quantities using the delta method.
package sdreport

import (
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/simlh/model"
)

var log = logging.MustGetLogger("sdreport")

// Settings are finite differences settings.
type Settings struct {
	// Step is the finite differences step, zero means default.
	Step float64
	// Concurrent evaluates the stencil points in parallel.
	Concurrent bool
}

// DefaultSettings returns default settings.
func DefaultSettings() *Settings {
	return &Settings{Concurrent: true}
}

// Report stores the results.
type Report struct {
	// NLL is the negative log-likelihood at the parameter values.
	NLL float64
	// Names are the flat parameter names.
	Names []string
	// Values are the flat parameter values.
	Values []float64
	// Gradient is the NLL gradient.
	Gradient []float64
	// MaxGradient is the maximum absolute gradient component.
	MaxGradient float64
	// ParameterSE are the parameter standard errors.
	ParameterSE []float64
	// PDHess is true if the Hessian is positive definite.
	PDHess bool
	// Reported are the reported quantities with standard errors.
	Reported model.Reported

	Hessian    *mat.SymDense
	Covariance *mat.SymDense
}

// Compute computes the report for model m at parameters p.
func Compute(m model.Model, data *model.Data, p model.Parameters, settings *Settings) (*Report, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	layout, err := model.NewLayout(m.ParameterNames(), p)
	if err != nil {
		return nil, err
	}
	x, err := layout.Flatten(p)
	if err != nil {
		return nil, err
	}
	res, err := m.Evaluate(&model.Input{Data: data, Parameters: p, Mode: model.Score})
	if err != nil {
		return nil, err
	}

	// shapes are validated above, so errors are not expected
	eval := func(x []float64) *model.Result {
		r, err := m.Evaluate(&model.Input{Data: data, Parameters: layout.Unflatten(x), Mode: model.Score})
		if err != nil {
			return nil
		}
		return r
	}
	nll := func(x []float64) float64 {
		if r := eval(x); r != nil {
			return r.NLL
		}
		return math.NaN()
	}

	n := len(x)
	r := &Report{
		NLL:         res.NLL,
		Names:       layout.FlatNames(),
		Values:      x,
		ParameterSE: make([]float64, n),
		Reported:    append(model.Reported(nil), res.Reported...),
	}

	fds := &fd.Settings{
		Formula:     fd.Central,
		Step:        settings.Step,
		OriginKnown: true,
		OriginValue: res.NLL,
		Concurrent:  settings.Concurrent,
	}
	r.Gradient = fd.Gradient(nil, nll, x, fds)
	for _, g := range r.Gradient {
		r.MaxGradient = math.Max(r.MaxGradient, math.Abs(g))
	}

	r.Hessian = mat.NewSymDense(n, nil)
	fd.Hessian(r.Hessian, nll, x, fds)

	var chol mat.Cholesky
	if ok := chol.Factorize(r.Hessian); ok {
		r.Covariance = mat.NewSymDense(n, nil)
		if err := chol.InverseTo(r.Covariance); err == nil {
			r.PDHess = true
		} else {
			log.Warningf("Error inverting Hessian: %v", err)
		}
	}
	if !r.PDHess {
		log.Warning("Hessian is not positive definite, standard errors are not available")
		for i := range r.ParameterSE {
			r.ParameterSE[i] = math.NaN()
		}
		return r, nil
	}

	for i := range r.ParameterSE {
		r.ParameterSE[i] = math.Sqrt(r.Covariance.At(i, i))
	}

	k := len(r.Reported)
	if k == 0 {
		return r, nil
	}
	rep := func(y, x []float64) {
		res := eval(x)
		if res == nil {
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		copy(y, res.Reported.Values())
	}
	jac := mat.NewDense(k, n, nil)
	fd.Jacobian(jac, rep, x, &fd.JacobianSettings{
		Formula:    fd.Central,
		Step:       settings.Step,
		Concurrent: settings.Concurrent,
	})

	var jc, v mat.Dense
	jc.Mul(jac, r.Covariance)
	v.Mul(&jc, jac.T())
	for i := range r.Reported {
		r.Reported[i].StdErr = math.Sqrt(v.At(i, i))
	}
	log.Debugf("Max gradient component: %g", r.MaxGradient)

	return r, nil
}
