package fit

import (
	"errors"

	"gonum.org/v1/gonum/optimize"
)

// GonumMethod is a local optimization method from gonum.
type GonumMethod int

// Gonum methods.
const (
	// BFGS is the quasi-Newton BFGS method.
	BFGS GonumMethod = iota
	// LBFGS is the limited-memory BFGS method.
	LBFGS
	// NelderMead is the downhill simplex method, it does not
	// use the gradient.
	NelderMead
)

// String returns the method name.
func (m GonumMethod) String() string {
	switch m {
	case BFGS:
		return "bfgs"
	case LBFGS:
		return "lbfgs"
	case NelderMead:
		return "simplex"
	}
	return "unknown"
}

// Gonum is an optimizer using gonum optimize package.
type Gonum struct {
	BaseOptimizer
	m GonumMethod
	// GradientThreshold stops the optimization once the gradient
	// norm is below it, zero means default.
	GradientThreshold float64
}

// NewGonum creates a new optimizer with the given method.
func NewGonum(m GonumMethod) *Gonum {
	return &Gonum{
		BaseOptimizer: BaseOptimizer{
			method:    m.String(),
			repPeriod: 10,
		},
		m:                 m,
		GradientThreshold: 1e-6,
	}
}

// Init is a part of the optimize.Recorder interface.
func (g *Gonum) Init() error {
	return nil
}

// Record is a part of the optimize.Recorder interface.
func (g *Gonum) Record(l *optimize.Location, op optimize.Operation, s *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	return g.iteration(s.MajorIterations, l.X, l.F)
}

// local returns the gonum method.
func (g *Gonum) local() optimize.Method {
	switch g.m {
	case LBFGS:
		return &optimize.LBFGS{}
	case NelderMead:
		return &optimize.NelderMead{}
	}
	return &optimize.BFGS{}
}

// Run starts the optimization.
func (g *Gonum) Run(iterations int) error {
	x, done, err := g.start()
	if err != nil {
		return err
	}
	if done {
		return g.resumeFinal(x)
	}
	left, ok := g.budget(iterations)
	if !ok {
		return g.exhausted(x)
	}
	g.PrintHeader()

	p := optimize.Problem{
		Func: g.nll,
	}
	if g.m != NelderMead {
		p.Grad = func(grad, x []float64) {
			g.obj.Gradient(grad, x)
		}
	}
	settings := &optimize.Settings{
		MajorIterations:   left,
		GradientThreshold: g.GradientThreshold,
		Recorder:          g,
	}

	res, err := optimize.Minimize(p, x, settings, g.local())
	switch {
	case errors.Is(err, ErrInterrupted):
		g.finish("interrupted", err)
		return err
	case err != nil:
		// failed line searches still leave the best point found
		log.Warningf("Optimization error: %v", err)
	}
	status := "failure"
	if res != nil {
		status = res.Status.String()
	}
	g.finish(status, nil)
	return nil
}
