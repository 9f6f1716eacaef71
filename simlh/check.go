package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/Davydov/simlh/fit"
	"bitbucket.org/Davydov/simlh/model"
)

// checkSettings stores settings of the check command.
type checkSettings struct {
	replicates int
	workers    int
	refit      bool
	method     string
	iterations int
}

// replicate is the result for one simulated data set.
type replicate struct {
	// nll is the NLL of the simulated data at the generating
	// parameters.
	nll float64
	// estimates are the refitted flat parameters followed by the
	// reported quantities, nil without refit.
	estimates []float64
}

// runCheck simulates data sets from the model, scores them and
// optionally refits them.
func runCheck(name, input string, s *checkSettings) (*CheckSummary, error) {
	m, data, par, err := load(name, input)
	if err != nil {
		return nil, err
	}
	summary, err := check(context.Background(), m, data, par, s)
	if err != nil {
		return nil, err
	}
	printCheck(os.Stdout, summary)
	return summary, nil
}

// check runs the replicates in parallel.
func check(ctx context.Context, m model.Model, data *model.Data, par model.Parameters, s *checkSettings) (*CheckSummary, error) {
	layout, err := model.NewLayout(m.ParameterNames(), par)
	if err != nil {
		return nil, err
	}
	truth, err := layout.Flatten(par)
	if err != nil {
		return nil, err
	}
	observed, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Score})
	if err != nil {
		return nil, err
	}
	log.Infof("Running %d replicates", s.replicates)

	reps := make([]replicate, s.replicates)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))
	for i := range reps {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := runReplicate(m, data, par, uint64(i), s)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", i, err)
			}
			reps[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &CheckSummary{
		Model:      m.Name(),
		Replicates: s.replicates,
	}
	nll := make([]float64, len(reps))
	for i, r := range reps {
		nll[i] = r.nll
		if math.IsNaN(r.nll) || math.IsInf(r.nll, 0) {
			summary.NonFinite++
		}
	}
	if summary.NonFinite > 0 {
		log.Warningf("%d replicates with non-finite NLL", summary.NonFinite)
	}
	// the observed NLL is the reference
	summary.NLL = estimate("nll", observed.NLL, nll)

	if !s.refit {
		return summary, nil
	}
	names := append(layout.FlatNames(), reportedNames(observed.Reported)...)
	truth = append(truth, observed.Reported.Values()...)
	column := make([]float64, len(reps))
	for j, name := range names {
		for i, r := range reps {
			column[i] = r.estimates[j]
		}
		summary.Estimates = append(summary.Estimates, estimate(name, truth[j], column))
	}
	return summary, nil
}

// runReplicate simulates, scores and refits a single data set. The
// replicate number is the random stream.
func runReplicate(m model.Model, data *model.Data, par model.Parameters, i uint64, s *checkSettings) (replicate, error) {
	var r replicate
	sim, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Simulate, Src: source(i)})
	if err != nil {
		return r, err
	}
	simData := data.Update(sim.Simulated)
	res, err := m.Evaluate(&model.Input{Data: simData, Parameters: par, Mode: model.Score})
	if err != nil {
		return r, err
	}
	r.nll = res.NLL
	if !s.refit {
		return r, nil
	}

	obj, err := fit.NewObjective(m, simData, par)
	if err != nil {
		return r, err
	}
	opt, err := fit.NewOptimizer(s.method)
	if err != nil {
		return r, err
	}
	opt.SetObjective(obj)
	opt.SetQuiet(true)
	if err := opt.Run(s.iterations); err != nil {
		return r, err
	}
	x := opt.Summary().X
	if len(x) == 0 {
		// no finite NLL, all the estimates are missing
		r.estimates = make([]float64, obj.Layout().Len()+len(res.Reported))
		for j := range r.estimates {
			r.estimates[j] = math.NaN()
		}
		return r, nil
	}
	est, err := m.Evaluate(&model.Input{Data: simData, Parameters: obj.Parameters(x), Mode: model.Score})
	if err != nil {
		return r, err
	}
	r.estimates = append(append(r.estimates, x...), est.Reported.Values()...)
	return r, nil
}

// reportedNames returns the names of the reported quantities.
func reportedNames(r model.Reported) []string {
	names := make([]string, len(r))
	for i, q := range r {
		names[i] = q.Name
	}
	return names
}

// estimate summarises the finite values.
func estimate(name string, truth float64, values []float64) EstimateSummary {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	nan := number(math.NaN())
	e := EstimateSummary{
		Name:   name,
		True:   number(truth),
		Mean:   nan,
		SD:     nan,
		Lower:  nan,
		Upper:  nan,
		Finite: len(finite),
	}
	if v, err := stats.Mean(finite); err == nil {
		e.Mean = number(v)
	}
	if v, err := stats.StandardDeviationSample(finite); err == nil && len(finite) > 1 {
		e.SD = number(v)
	}
	// nearest rank is defined for any number of values
	if v, err := stats.PercentileNearestRank(finite, 2.5); err == nil {
		e.Lower = number(v)
	}
	if v, err := stats.PercentileNearestRank(finite, 97.5); err == nil {
		e.Upper = number(v)
	}
	return e
}

// printCheck prints the replicates summary.
func printCheck(w io.Writer, s *CheckSummary) {
	fmt.Fprintf(w, "replicates\t%d\nnonFinite\t%d\n", s.Replicates, s.NonFinite)
	fmt.Fprintf(w, "statistic\ttrue\tmean\tsd\tq2.5\tq97.5\tfinite\n")
	for _, e := range append([]EstimateSummary{s.NLL}, s.Estimates...) {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\t%v\t%d\n",
			e.Name, float64(e.True), float64(e.Mean), float64(e.SD),
			float64(e.Lower), float64(e.Upper), e.Finite)
	}
}
