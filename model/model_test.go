package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

const smallDiff = 1e-3

func init() {
	logging.SetLevel(logging.WARNING, "model")
}

// feData returns data for the FE model with n observations.
func feData(n int) *Data {
	d := NewData()
	y := make([]float64, n)
	x := make([]float64, 0, 2*n)
	for i := range y {
		xi := float64(i) / float64(n)
		x = append(x, 1, xi)
		y[i] = 0.5 + 2*xi + math.Sin(float64(i))
	}
	d.Vectors["y"] = y
	d.Matrices["X"] = mat.NewDense(n, 2, x)
	return d
}

// multiData returns data for MultiDist.
func multiData() *Data {
	d := NewData()
	d.Vectors["B"] = []float64{5, 3, 7, 4}
	d.Vectors["P"] = []float64{0, 2, 1, 1}
	d.Vectors["NB"] = []float64{4, 0, 11, 2}
	d.Vectors["G"] = []float64{0.4, 2.2, 1.1, 5.3}
	return d
}

// multiPar returns parameters for MultiDist.
func multiPar() Parameters {
	return Parameters{
		"logit_prob": {0},
		"log_lambda": {0},
		"log_mu":     {math.Log(3)},
		"log_var":    {math.Log(7)},
		"log_shape":  {math.Log(2)},
		"log_scale":  {0.1},
	}
}

func score(tst *testing.T, m Model, d *Data, p Parameters) *Result {
	tst.Helper()
	res, err := m.Evaluate(&Input{Data: d, Parameters: p, Mode: Score})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return res
}

func TestFE0Scenario(tst *testing.T) {
	d := NewData()
	d.Vectors["y"] = []float64{1, 2, 3}
	p := Parameters{"mu": {2}, "log_resid_sd": {0}}

	res := score(tst, NewFE0(), d, p)
	sd, ok := res.Reported.Get("resid_sd")
	if !ok || sd != 1 {
		tst.Error("Expected resid_sd=1, got", sd, ok)
	}
	refNLL := 1 + 1.5*math.Log(2*math.Pi)
	tst.Log("NLL=", res.NLL, ", Ref=", refNLL)
	if math.Abs(res.NLL-refNLL) > smallDiff || math.Abs(res.NLL-3.7568) > smallDiff {
		tst.Error("Expected ", refNLL, ", got", res.NLL)
	}
	if res.Simulated != nil {
		tst.Error("Score mode should not return simulated data")
	}
}

func TestMultiDistScenario(tst *testing.T) {
	d := NewData()
	d.Vectors["B"] = []float64{5}
	d.Vectors["P"] = []float64{0}
	d.Vectors["NB"] = []float64{0}
	d.Vectors["G"] = []float64{1}
	p := multiPar()
	res := score(tst, NewMultiDist(), d, p)

	if v, _ := res.Reported.Get("prob"); v != 0.5 {
		tst.Error("Expected prob=0.5, got", v)
	}
	if v, _ := res.Reported.Get("lambda"); v != 1 {
		tst.Error("Expected lambda=1, got", v)
	}
	names := []string{"prob", "lambda", "mu", "var", "shape", "scale"}
	if len(res.Reported) != len(names) {
		tst.Fatal("Wrong number of reported quantities:", len(res.Reported))
	}
	for i, q := range res.Reported {
		if q.Name != names[i] {
			tst.Errorf("Reported quantity %d: expected %s, got %s", i, names[i], q.Name)
		}
	}

	// Only binomial contribution changes with B.
	binom := -math.Log(252 / 1024.0)
	if math.Abs(binom-1.4016) > smallDiff {
		tst.Fatal("Reference value is wrong:", binom)
	}
	d.Vectors["B"] = []float64{0}
	res0 := score(tst, NewMultiDist(), d, p)
	// B=0 has probability 0.5^10
	diff := res.NLL - res0.NLL
	if ref := binom - 10*math.Log(2); math.Abs(diff-ref) > 1e-9 {
		tst.Error("Binomial contribution mismatch:", diff, ref)
	}
}

func TestFEMatchesFE0(tst *testing.T) {
	y := []float64{0.3, -1.2, 2.5, 0.9, 1.1}
	d0 := NewData()
	d0.Vectors["y"] = y
	d := NewData()
	d.Vectors["y"] = y
	d.Matrices["X"] = mat.NewDense(len(y), 1, []float64{1, 1, 1, 1, 1})

	r0 := score(tst, NewFE0(), d0, Parameters{"mu": {0.7}, "log_resid_sd": {-0.2}})
	r1 := score(tst, NewFE(), d, Parameters{"beta": {0.7}, "log_resid_sd": {-0.2}})
	if math.Abs(r0.NLL-r1.NLL) > 1e-12 {
		tst.Error("FE with intercept only differs from FE0:", r1.NLL, r0.NLL)
	}
}

func TestOrderInvariance(tst *testing.T) {
	d := feData(30)
	p := Parameters{"beta": {0.4, 1.5}, "log_resid_sd": {0.3}}
	ref := score(tst, NewFE(), d, p).NLL

	// reverse rows of X together with y
	n := len(d.Vectors["y"])
	rev := NewData()
	rev.Vectors["y"] = make([]float64, n)
	rev.Matrices["X"] = mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		j := n - 1 - i
		rev.Vectors["y"][j] = d.Vectors["y"][i]
		rev.Matrices["X"].SetRow(j, d.Matrices["X"].RawRowView(i))
	}
	if nll := score(tst, NewFE(), rev, p).NLL; math.Abs(nll-ref) > 1e-9 {
		tst.Error("FE NLL depends on observation order:", nll, ref)
	}

	md := multiData()
	ref = score(tst, NewMultiDist(), md, multiPar()).NLL
	perm := multiData()
	for _, name := range []string{"B", "P", "NB", "G"} {
		v := perm.Vectors[name]
		v[0], v[2] = v[2], v[0]
		v[1], v[3] = v[3], v[1]
	}
	if nll := score(tst, NewMultiDist(), perm, multiPar()).NLL; math.Abs(nll-ref) > 1e-9 {
		tst.Error("MultiDist NLL depends on observation order:", nll, ref)
	}
}

func TestIdempotence(tst *testing.T) {
	d := multiData()
	p := multiPar()
	r1 := score(tst, NewMultiDist(), d, p)
	r2 := score(tst, NewMultiDist(), d, p)
	if r1.NLL != r2.NLL {
		tst.Error("NLL is not reproducible:", r1.NLL, r2.NLL)
	}
	for i := range r1.Reported {
		if r1.Reported[i].Name != r2.Reported[i].Name || r1.Reported[i].Value != r2.Reported[i].Value {
			tst.Error("Reported values are not reproducible:", r1.Reported[i], r2.Reported[i])
		}
	}
}

func TestShapeMismatch(tst *testing.T) {
	fe := NewFE()
	d := feData(5)
	_, err := fe.Evaluate(&Input{Data: d, Parameters: Parameters{"beta": {1, 2, 3}, "log_resid_sd": {0}}, Mode: Score})
	if !errors.Is(err, ErrShapeMismatch) {
		tst.Error("Expected shape mismatch for beta, got", err)
	}

	d.Vectors["y"] = d.Vectors["y"][:4]
	_, err = fe.Evaluate(&Input{Data: d, Parameters: Parameters{"beta": {1, 2}, "log_resid_sd": {0}}, Mode: Score})
	if !errors.Is(err, ErrShapeMismatch) {
		tst.Error("Expected shape mismatch for X rows, got", err)
	}

	md := multiData()
	md.Vectors["G"] = md.Vectors["G"][:3]
	_, err = NewMultiDist().Evaluate(&Input{Data: md, Parameters: multiPar(), Mode: Score})
	if !errors.Is(err, ErrShapeMismatch) {
		tst.Error("Expected shape mismatch for G, got", err)
	}

	d0 := NewData()
	d0.Vectors["y"] = []float64{1}
	_, err = NewFE0().Evaluate(&Input{Data: d0, Parameters: Parameters{"mu": {1, 2}, "log_resid_sd": {0}}, Mode: Score})
	if !errors.Is(err, ErrShapeMismatch) {
		tst.Error("Expected shape mismatch for mu, got", err)
	}
}

func TestMissing(tst *testing.T) {
	d0 := NewData()
	d0.Vectors["y"] = []float64{1}
	_, err := NewFE0().Evaluate(&Input{Data: d0, Parameters: Parameters{"mu": {1}}, Mode: Score})
	if !errors.Is(err, ErrMissing) {
		tst.Error("Expected missing parameter error, got", err)
	}
	_, err = NewFE().Evaluate(&Input{Data: d0, Parameters: Parameters{"beta": {1}, "log_resid_sd": {0}}, Mode: Score})
	if !errors.Is(err, ErrMissing) {
		tst.Error("Expected missing matrix error, got", err)
	}
}

func TestMode(tst *testing.T) {
	d0 := NewData()
	d0.Vectors["y"] = []float64{1}
	p := Parameters{"mu": {1}, "log_resid_sd": {0}}
	for _, mode := range []Mode{0, 3} {
		_, err := NewFE0().Evaluate(&Input{Data: d0, Parameters: p, Mode: mode})
		if !errors.Is(err, ErrUnknownMode) {
			tst.Errorf("Expected unknown mode error for %v, got %v", mode, err)
		}
	}
	_, err := NewFE0().Evaluate(&Input{Data: d0, Parameters: p, Mode: Simulate})
	if !errors.Is(err, ErrNoSource) {
		tst.Error("Expected no source error, got", err)
	}
	if Score.String() != "score" || Simulate.String() != "simulate" {
		tst.Error("Wrong mode names:", Score, Simulate)
	}
}

func TestSimulateDeterminism(tst *testing.T) {
	md := multiData()
	orig := md.Copy()
	sim := func() *Result {
		res, err := NewMultiDist().Evaluate(&Input{
			Data:       md,
			Parameters: multiPar(),
			Mode:       Simulate,
			Src:        rand.NewPCG(11, 3),
		})
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		return res
	}
	r1, r2 := sim(), sim()
	if len(r1.Reported) != 6 {
		tst.Error("Simulate mode should report quantities, got", len(r1.Reported))
	}
	for _, name := range []string{"B", "P", "NB", "G"} {
		a, b := r1.Simulated.Vectors[name], r2.Simulated.Vectors[name]
		if len(a) != len(orig.Vectors[name]) {
			tst.Errorf("Simulated %s has length %d, expected %d", name, len(a), len(orig.Vectors[name]))
		}
		for i := range a {
			if a[i] != b[i] {
				tst.Errorf("Simulated %s differs at %d: %v != %v", name, i, a[i], b[i])
			}
			if md.Vectors[name][i] != orig.Vectors[name][i] {
				tst.Errorf("Input %s was modified", name)
			}
		}
	}
	if len(r1.Simulated.Vectors) != 4 || len(r1.Simulated.Matrices) != 0 {
		tst.Error("Unexpected simulated fields:", r1.Simulated.Vectors)
	}
}

// roundTrip simulates and scores the simulated data n times and
// returns the number of non-finite NLL values.
func roundTrip(tst *testing.T, m Model, d *Data, p Parameters, n int) (bad int) {
	src := rand.NewPCG(2024, 1)
	for i := 0; i < n; i++ {
		sim, err := m.Evaluate(&Input{Data: d, Parameters: p, Mode: Simulate, Src: src})
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		res := score(tst, m, d.Update(sim.Simulated), p)
		if math.IsNaN(res.NLL) || math.IsInf(res.NLL, 0) {
			bad++
		}
	}
	return
}

func TestRoundTrip(tst *testing.T) {
	n := 1000
	if testing.Short() {
		n = 50
	}
	if bad := roundTrip(tst, NewFE(), feData(20), Parameters{"beta": {0.5, 2}, "log_resid_sd": {-0.5}}, n); bad > 0 {
		tst.Error("FE: non-finite NLL in round trips:", bad)
	}
	d0 := NewData()
	d0.Vectors["y"] = make([]float64, 20)
	if bad := roundTrip(tst, NewFE0(), d0, Parameters{"mu": {3}, "log_resid_sd": {1}}, n); bad > 0 {
		tst.Error("FE0: non-finite NLL in round trips:", bad)
	}
	if bad := roundTrip(tst, NewMultiDist(), multiData(), multiPar(), n); bad > 0 {
		tst.Error("MultiDist: non-finite NLL in round trips:", bad)
	}
}

func TestFESimulatedMean(tst *testing.T) {
	d := feData(2000)
	beta := []float64{1, -3}
	res, err := NewFE().Evaluate(&Input{
		Data:       d,
		Parameters: Parameters{"beta": beta, "log_resid_sd": {math.Log(0.01)}},
		Mode:       Simulate,
		Src:        rand.NewPCG(5, 5),
	})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	X := d.Matrices["X"]
	for i, y := range res.Simulated.Vectors["y"] {
		mean := beta[0]*X.At(i, 0) + beta[1]*X.At(i, 1)
		if math.Abs(y-mean) > 0.1 {
			tst.Errorf("Simulated y[%d]=%g too far from X*beta=%g", i, y, mean)
			break
		}
	}
}

func TestNew(tst *testing.T) {
	for _, name := range Names() {
		m, err := New(name)
		if err != nil {
			tst.Error("Error: ", err)
			continue
		}
		if m.Name() != name {
			tst.Errorf("Model name mismatch: %s != %s", m.Name(), name)
		}
	}
	if _, err := New("M0"); !errors.Is(err, ErrUnknownModel) {
		tst.Error("Expected unknown model error, got", err)
	}
}
