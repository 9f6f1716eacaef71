// Package fit minimizes the negative log-likelihood of a model with
// respect to its parameters.
package fit

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/simlh/checkpoint"
	"bitbucket.org/Davydov/simlh/model"
)

// log is the package logger.
var log = logging.MustGetLogger("fit")

var (
	// ErrUnknownMethod is returned by NewOptimizer for unknown
	// methods.
	ErrUnknownMethod = errors.New("unknown optimization method")
	// ErrNoObjective is returned by Run if no objective was set.
	ErrNoObjective = errors.New("objective is not set")
	// ErrInterrupted is returned by Run if a watched signal was
	// received.
	ErrInterrupted = errors.New("interrupted by signal")

	// errMaxIterations stops the optimizers at the iteration limit.
	errMaxIterations = errors.New("maximum number of iterations reached")
)

// Methods lists all the optimization methods.
var Methods = []string{"lbfgsb", "bfgs", "lbfgs", "simplex", "none"}

// NewOptimizer returns an optimizer by the method name.
func NewOptimizer(method string) (Optimizer, error) {
	switch method {
	case "lbfgsb":
		return NewLBFGSB(), nil
	case "bfgs":
		return NewGonum(BFGS), nil
	case "lbfgs":
		return NewGonum(LBFGS), nil
	case "simplex":
		return NewGonum(NelderMead), nil
	case "none":
		return NewNone(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}

// Optimizer is the optimizer interface.
type Optimizer interface {
	SetObjective(*Objective)
	// SetReportPeriod sets the number of iterations between the
	// trajectory lines.
	SetReportPeriod(period int)
	// SetOutput sets the trajectory output, nil disables it.
	SetOutput(io.Writer)
	SetCheckpointIO(*checkpoint.CheckpointIO)
	WatchSignals(...os.Signal)
	// SetQuiet disables the trajectory and the results logging.
	SetQuiet(bool)
	// Run performs at most iterations iterations.
	Run(iterations int) error
	Summary() *Summary
}

// Summary stores the optimization results.
type Summary struct {
	Method string `json:"method"`
	// NLL is the minimum negative log-likelihood found.
	NLL float64 `json:"nll"`
	// Parameters are the flat parameters at the minimum.
	Parameters map[string]float64 `json:"parameters"`
	// X is the flat vector at the minimum.
	X          []float64 `json:"-"`
	Iterations int       `json:"iterations"`
	// Calls is the number of NLL evaluations.
	Calls  int    `json:"calls"`
	Status string `json:"status"`
	// Resumed is true if the starting point came from a
	// checkpoint.
	Resumed bool `json:"resumed,omitempty"`
}

// BaseOptimizer holds the state shared by all the optimizers.
type BaseOptimizer struct {
	obj       *Objective
	method    string
	i         int
	// offset is the iteration of a resumed checkpoint.
	offset    int
	minNLL    float64
	minX      []float64
	repPeriod int
	out       io.Writer
	sig       chan os.Signal
	cio       *checkpoint.CheckpointIO
	status    string
	resumed   bool
	// Quiet disables trajectory output and logging of the
	// results.
	Quiet bool
}

// SetObjective sets the function to minimize.
func (o *BaseOptimizer) SetObjective(obj *Objective) {
	o.obj = obj
}

// SetReportPeriod sets the reporting period.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetOutput sets the trajectory output.
func (o *BaseOptimizer) SetOutput(w io.Writer) {
	o.out = w
}

// SetCheckpointIO sets the checkpoint storage.
func (o *BaseOptimizer) SetCheckpointIO(cio *checkpoint.CheckpointIO) {
	o.cio = cio
}

// WatchSignals makes the optimizer stop gracefully on signals.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetQuiet sets Quiet.
func (o *BaseOptimizer) SetQuiet(quiet bool) {
	o.Quiet = quiet
}

// PrintHeader prints the trajectory header.
func (o *BaseOptimizer) PrintHeader() {
	if o.out != nil && !o.Quiet {
		fmt.Fprintf(o.out, "iteration\tnll\t%s\n", o.obj.Layout().NamesString())
	}
}

// PrintLine prints a trajectory line.
func (o *BaseOptimizer) PrintLine(x []float64, nll float64) {
	if o.out != nil && !o.Quiet {
		fmt.Fprintf(o.out, "%d\t%f\t%s\n", o.i, nll, model.ValuesString(x))
	}
}

// start resets the state and returns the starting point. If a final
// checkpoint is found, done is true and no optimization is needed.
func (o *BaseOptimizer) start() (x []float64, done bool, err error) {
	if o.obj == nil {
		return nil, false, ErrNoObjective
	}
	o.i = 0
	o.offset = 0
	o.minNLL = math.Inf(+1)
	o.minX = nil
	o.status = ""
	o.resumed = false
	x = o.obj.Start()

	if o.cio == nil {
		return x, false, nil
	}
	o.cio.SetNow()
	data, err := o.cio.Load()
	if err != nil {
		log.Warningf("Error loading checkpoint: %v", err)
		return x, false, nil
	}
	if data == nil {
		return x, false, nil
	}
	cx, err := o.obj.Layout().FromMap(data.Parameters)
	if err != nil {
		log.Warningf("Ignoring checkpoint: %v", err)
		return x, false, nil
	}
	o.resumed = true
	o.i = data.Iter
	o.offset = data.Iter
	return cx, data.Final, nil
}

// evaluated records a function value.
func (o *BaseOptimizer) evaluated(x []float64, nll float64) {
	if nll < o.minNLL {
		o.minNLL = nll
		o.minX = append(o.minX[:0], x...)
	}
}

// nll evaluates the objective and records the value.
func (o *BaseOptimizer) nll(x []float64) float64 {
	v := o.obj.NLL(x)
	o.evaluated(x, v)
	return v
}

// iteration is called after every major iteration of the current
// run. It prints the trajectory, saves checkpoints and checks for
// signals.
func (o *BaseOptimizer) iteration(i int, x []float64, nll float64) error {
	o.i = o.offset + i
	if o.repPeriod > 0 && o.i%o.repPeriod == 0 {
		o.PrintLine(x, nll)
	}
	if o.cio != nil && o.cio.Old() {
		o.saveCheckpoint(false)
	}
	select {
	case s := <-o.sig:
		log.Noticef("Received signal %v, exiting.", s)
		return fmt.Errorf("%w: %v", ErrInterrupted, s)
	default:
	}
	return nil
}

// budget returns the number of iterations left for this run, the
// iterations of a resumed checkpoint are included in the limit. ok is
// false if no iterations are left. Zero means no limit.
func (o *BaseOptimizer) budget(iterations int) (left int, ok bool) {
	if iterations <= 0 {
		return 0, true
	}
	left = iterations - o.offset
	return left, left > 0
}

// exhausted evaluates the point from a checkpoint which used up all
// the iterations.
func (o *BaseOptimizer) exhausted(x []float64) error {
	log.Noticef("No iterations left after %d checkpointed iterations", o.offset)
	o.nll(x)
	o.finish("iteration limit", nil)
	return nil
}

// resumeFinal evaluates the point from a final checkpoint.
func (o *BaseOptimizer) resumeFinal(x []float64) error {
	log.Notice("Optimization already finished, using checkpoint")
	o.nll(x)
	o.finish("checkpoint", nil)
	return nil
}

// saveCheckpoint saves the best point.
func (o *BaseOptimizer) saveCheckpoint(final bool) {
	if o.cio == nil || o.minX == nil {
		return
	}
	o.cio.Save(&checkpoint.Data{
		Parameters: o.obj.Layout().Map(o.minX),
		NLL:        o.minNLL,
		Iter:       o.i,
		Final:      final,
	})
}

// finish stores the status, saves the final checkpoint and logs the
// results.
func (o *BaseOptimizer) finish(status string, err error) {
	o.status = status
	if o.minX != nil {
		o.PrintLine(o.minX, o.minNLL)
	}
	o.saveCheckpoint(err == nil)
	if o.Quiet {
		return
	}
	log.Infof("Finished %s: %s", o.method, status)
	log.Noticef("Minimum NLL: %v", o.minNLL)
	log.Infof("NLL function calls: %v", o.obj.Calls())
	log.Infof("Parameter  names: %v", o.obj.Layout().NamesString())
	log.Infof("Parameter values: %v", model.ValuesString(o.minX))
}

// Summary returns the optimization summary.
func (o *BaseOptimizer) Summary() *Summary {
	s := &Summary{
		Method:     o.method,
		NLL:        o.minNLL,
		X:          append([]float64(nil), o.minX...),
		Iterations: o.i,
		Status:     o.status,
		Resumed:    o.resumed,
	}
	if o.obj != nil {
		s.Calls = o.obj.Calls()
		if o.minX != nil {
			s.Parameters = o.obj.Layout().Map(o.minX)
		}
	}
	return s
}
