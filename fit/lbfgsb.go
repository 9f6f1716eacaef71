package fit

import (
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is the limited-memory BFGS optimizer with bounds. The
// parameters are unconstrained, so no bounds are set.
type LBFGSB struct {
	BaseOptimizer
	iterations int
	// stop is set to stop the optimizer, the remaining function
	// calls return +Inf.
	stop error
}

// NewLBFGSB creates a new LBFGSB optimizer.
func NewLBFGSB() *LBFGSB {
	return &LBFGSB{
		BaseOptimizer: BaseOptimizer{
			method:    "lbfgsb",
			repPeriod: 10,
		},
	}
}

// Logger is called by the optimizer after every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	if l.stop != nil {
		return
	}
	if err := l.iteration(info.Iteration, info.X, info.F); err != nil {
		l.stop = err
		return
	}
	if l.iterations > 0 && info.Iteration >= l.iterations {
		l.stop = errMaxIterations
	}
}

// EvaluateFunction returns the NLL.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.stop != nil {
		return math.Inf(+1)
	}
	return l.nll(x)
}

// EvaluateGradient returns the NLL gradient.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.stop != nil {
		return make([]float64, len(x))
	}
	return l.obj.Gradient(nil, x)
}

// Run starts the optimization.
func (l *LBFGSB) Run(iterations int) error {
	x, done, err := l.start()
	if err != nil {
		return err
	}
	if done {
		return l.resumeFinal(x)
	}
	left, ok := l.budget(iterations)
	if !ok {
		return l.exhausted(x)
	}
	l.iterations = left
	l.stop = nil
	l.PrintHeader()

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, x)
	log.Debug("Exit status: ", exitStatus)

	switch {
	case l.stop == errMaxIterations:
		l.finish("iteration limit", nil)
	case l.stop != nil:
		l.finish("interrupted", l.stop)
		return l.stop
	default:
		l.finish(fmt.Sprint(exitStatus), nil)
	}
	return nil
}
