// Package transform maps unconstrained free parameters onto their
// natural (constrained) scale.
package transform

import (
	"fmt"
	"math"
)

// Kind is a parameter transformation.
type Kind int

// Supported transformations. The catalog is fixed.
const (
	// Identity leaves the value unchanged, the output is on (-Inf, Inf).
	Identity Kind = iota
	// Log is a log-scale parameter, constrained = exp(raw) on (0, Inf).
	Log
	// Logit is a logit-scale parameter, constrained =
	// 1/(1+exp(-raw)) on (0, 1).
	Logit
)

var kindNames = map[Kind]string{
	Identity: "identity",
	Log:      "log",
	Logit:    "logit",
}

// String returns the transformation name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns a transformation given its name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return Identity, fmt.Errorf("unknown transformation: %s", s)
}

// Apply transforms a raw value. The second return value tells if the
// constrained value has to be reported (log and logit scale
// parameters are always reported). Finiteness of raw is not checked.
func Apply(raw float64, k Kind) (float64, bool) {
	switch k {
	case Log:
		return math.Exp(raw), true
	case Logit:
		return InvLogit(raw), true
	}
	return raw, false
}

// Invert maps a constrained value back to the unconstrained scale.
func Invert(value float64, k Kind) float64 {
	switch k {
	case Log:
		return math.Log(value)
	case Logit:
		return logit(value)
	}
	return value
}

// InvLogit returns 1/(1+exp(-x)).
func InvLogit(x float64) float64 {
	// exp(-x) overflows for very negative x
	if x < 0 {
		e := math.Exp(x)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(-x))
}

// logit returns log(p/(1-p)).
func logit(p float64) float64 {
	return math.Log(p) - math.Log1p(-p)
}
