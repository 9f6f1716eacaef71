package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/simlh/checkpoint"
	"bitbucket.org/Davydov/simlh/dataio"
	"bitbucket.org/Davydov/simlh/fit"
	"bitbucket.org/Davydov/simlh/model"
	"bitbucket.org/Davydov/simlh/sdreport"
	"bitbucket.org/Davydov/simlh/transform"
)

// printReported prints the reported quantities.
func printReported(w io.Writer, r model.Reported) {
	for _, q := range r {
		fmt.Fprintf(w, "%s\t%v\t%v\n", q.Name, q.Value, q.StdErr)
	}
}

// printReport prints the standard errors.
func printReport(w io.Writer, r *sdreport.Report) {
	fmt.Fprintf(w, "parameter\tvalue\tstdErr\tgradient\n")
	for i, name := range r.Names {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", name, r.Values[i], r.ParameterSE[i], r.Gradient[i])
	}
	fmt.Fprintf(w, "reported\tvalue\tstdErr\n")
	printReported(w, r.Reported)
	if !r.PDHess {
		log.Warning("Hessian is not positive definite")
	}
	log.Infof("Max gradient component: %v", r.MaxGradient)
}

// runScore computes the NLL and optionally the standard errors.
func runScore(name, input string, sd bool) (*ScoreSummary, error) {
	m, data, par, err := load(name, input)
	if err != nil {
		return nil, err
	}
	res, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Score})
	if err != nil {
		return nil, err
	}
	log.Noticef("NLL=%v", res.NLL)
	fmt.Printf("nll\t%v\n", res.NLL)

	summary := &ScoreSummary{
		Model:    m.Name(),
		NLL:      number(res.NLL),
		Reported: quantities(res.Reported),
	}
	if !sd {
		printReported(os.Stdout, res.Reported)
		return summary, nil
	}

	r, err := sdreport.Compute(m, data, par, sdreport.DefaultSettings())
	if err != nil {
		return nil, err
	}
	printReport(os.Stdout, r)
	summary.SD = newSDSummary(r)
	summary.Reported = quantities(r.Reported)
	return summary, nil
}

// runSimulate simulates a data set. The simulated fields replace the
// observed ones, the result is written in the input file format.
func runSimulate(name, input, out string) (*SimulateSummary, error) {
	m, data, par, err := load(name, input)
	if err != nil {
		return nil, err
	}
	res, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Simulate, Src: source(0)})
	if err != nil {
		return nil, err
	}

	summary := &SimulateSummary{
		Model:  m.Name(),
		Fields: make(map[string]int, len(res.Simulated.Vectors)),
		Output: out,
	}
	fields := make([]string, 0, len(res.Simulated.Vectors))
	for field, v := range res.Simulated.Vectors {
		summary.Fields[field] = len(v)
		fields = append(fields, field)
	}
	sort.Strings(fields)
	log.Infof("Simulated fields: %v", fields)

	sim := data.Update(res.Simulated)
	if out == "" {
		return summary, dataio.Write(os.Stdout, sim, par)
	}
	return summary, dataio.WriteFile(out, sim, par)
}

// naturalStart adds the unconstrained values missing from start which
// can be computed from the natural scale ones, e.g. log_resid_sd from
// resid_sd or logit_prob from prob.
func naturalStart(names []string, start map[string]float64) (map[string]float64, error) {
	res := make(map[string]float64, len(start))
	for name, v := range start {
		res[name] = v
	}
	for _, name := range names {
		if _, ok := res[name]; ok {
			continue
		}
		prefix, natural, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		k, err := transform.ParseKind(prefix)
		if err != nil {
			continue
		}
		v, ok := start[natural]
		if !ok {
			continue
		}
		raw := transform.Invert(v, k)
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return nil, fmt.Errorf("%s=%v is out of the %v transformation domain", natural, v, k)
		}
		log.Debugf("Start %s=%v from %s=%v", name, raw, natural, v)
		res[name] = raw
	}
	return res, nil
}

// readStart reads the starting point from a JSON file, e.g. the
// parameters from a previous fit summary. Transformed parameters can
// be given on the natural scale.
func readStart(fn string, m model.Model, par model.Parameters) (model.Parameters, error) {
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	var start map[string]float64
	if err := json.Unmarshal(b, &start); err != nil {
		return nil, fmt.Errorf("error reading start position: %w", err)
	}
	layout, err := model.NewLayout(m.ParameterNames(), par)
	if err != nil {
		return nil, err
	}
	start, err = naturalStart(layout.FlatNames(), start)
	if err != nil {
		return nil, err
	}
	x, err := layout.FromMap(start)
	if err != nil {
		return nil, err
	}
	log.Infof("Start position from %s", fn)
	return layout.Unflatten(x), nil
}

// runFit minimizes the NLL and computes the standard errors at the
// minimum.
func runFit(name, input string) (*FitSummary, error) {
	m, data, par, err := load(name, input)
	if err != nil {
		return nil, err
	}
	if *startF != "" {
		if par, err = readStart(*startF, m, par); err != nil {
			return nil, err
		}
	}
	obj, err := fit.NewObjective(m, data, par)
	if err != nil {
		return nil, err
	}
	log.Infof("Model has %d parameters.", obj.Layout().Len())

	opt, err := fit.NewOptimizer(*method)
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s optimization.", *method)

	f := os.Stdout
	if *trajF != "" {
		f, err = os.Create(*trajF)
		if err != nil {
			return nil, fmt.Errorf("error creating trajectory file: %w", err)
		}
		defer f.Close()
	}
	opt.SetOutput(f)
	opt.SetObjective(obj)
	opt.SetReportPeriod(*report)
	opt.WatchSignals(os.Interrupt, syscall.SIGTERM)

	if *checkF != "" {
		db, err := bolt.Open(*checkF, 0666, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("error opening checkpoint database: %w", err)
		}
		defer db.Close()
		key := checkpoint.Key(m.Name(), data)
		log.Debugf("Checkpoint key: %s", key)
		opt.SetCheckpointIO(checkpoint.NewCheckpointIO(db, key, *checkSec))
	}

	startTime := time.Now()
	if err := opt.Run(*iterations); err != nil {
		return nil, err
	}
	summary := &FitSummary{
		Model:     m.Name(),
		Optimizer: opt.Summary(),
		Time:      time.Since(startTime).Seconds(),
	}

	if len(summary.Optimizer.X) == 0 {
		return nil, errors.New("no finite NLL found")
	}
	if *noSD {
		return summary, nil
	}
	best := obj.Parameters(summary.Optimizer.X)
	r, err := sdreport.Compute(m, data, best, sdreport.DefaultSettings())
	if err != nil {
		return nil, err
	}
	printReport(os.Stdout, r)
	summary.SD = newSDSummary(r)

	return summary, nil
}
