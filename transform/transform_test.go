package transform

import (
	"math"
	"testing"
)

const smallDiff = 1e-12

// relEq tests if a and b are equal within relative tolerance.
func relEq(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= smallDiff*math.Max(math.Abs(a), math.Abs(b))
}

func TestLogBoundaries(tst *testing.T) {
	for _, raw := range []float64{-50, -1, 0, 1, 50} {
		v, rep := Apply(raw, Log)
		if !rep {
			tst.Errorf("log-scale value for raw=%g is not reportable", raw)
		}
		if !relEq(v, math.Exp(raw)) {
			tst.Errorf("exp(%g): expected %g, got %g", raw, math.Exp(raw), v)
		}
		if v <= 0 {
			tst.Errorf("exp(%g) is not positive: %g", raw, v)
		}
	}
}

func TestLogit(tst *testing.T) {
	v, rep := Apply(0, Logit)
	if !rep || v != 0.5 {
		tst.Errorf("invlogit(0): expected reportable 0.5, got %v (%v)", v, rep)
	}
	for _, raw := range []float64{-800, -50, -3, 3, 50, 800} {
		v, _ := Apply(raw, Logit)
		if math.IsNaN(v) || v < 0 || v > 1 {
			tst.Errorf("invlogit(%g) out of [0, 1]: %g", raw, v)
		}
	}
	v, _ = Apply(2, Logit)
	if !relEq(v, 1/(1+math.Exp(-2))) {
		tst.Error("invlogit(2) mismatch:", v)
	}
}

func TestIdentity(tst *testing.T) {
	v, rep := Apply(-3.5, Identity)
	if rep || v != -3.5 {
		tst.Errorf("identity: expected non-reportable -3.5, got %v (%v)", v, rep)
	}
}

func TestInvert(tst *testing.T) {
	for _, k := range []Kind{Identity, Log, Logit} {
		for _, raw := range []float64{-4, -0.3, 0, 1.7, 6} {
			v, _ := Apply(raw, k)
			if back := Invert(v, k); math.Abs(back-raw) > 1e-9 {
				tst.Errorf("%v: Invert(Apply(%g)) = %g", k, raw, back)
			}
		}
	}
	if v := Invert(0.5, Logit); v != 0 {
		tst.Error("logit(0.5) should be zero, got", v)
	}
	if v := Invert(1/(1+math.Exp(-2)), Logit); !relEq(v, 2) {
		tst.Error("logit mismatch:", v)
	}
}

func TestParseKind(tst *testing.T) {
	for _, k := range []Kind{Identity, Log, Logit} {
		p, err := ParseKind(k.String())
		if err != nil || p != k {
			tst.Errorf("ParseKind(%q) = %v, %v", k.String(), p, err)
		}
	}
	if _, err := ParseKind("probit"); err == nil {
		tst.Error("expected an error for an unknown transformation")
	}
}
