package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/simlh/dist"
	"bitbucket.org/Davydov/simlh/transform"
)

// FE is a fixed effects regression: y ~ Normal(X*beta, resid_sd).
//
// Data: vector y, design matrix X. Parameters: log_resid_sd, beta
// (one value per column of X). Reports resid_sd, simulates y.
type FE struct{}

// NewFE creates a new fixed effects regression model.
func NewFE() *FE {
	return &FE{}
}

// Name returns the model name.
func (m *FE) Name() string {
	return "FE"
}

// ParameterNames returns parameter names.
func (m *FE) ParameterNames() []string {
	return []string{"log_resid_sd", "beta"}
}

// Evaluate scores or simulates the model.
func (m *FE) Evaluate(in *Input) (*Result, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	y, err := in.Data.Vector("y")
	if err != nil {
		return nil, err
	}
	X, err := in.Data.Matrix("X")
	if err != nil {
		return nil, err
	}

	b := &binder{par: in.Parameters}
	residSD := b.transformed("log_resid_sd", "resid_sd", transform.Log)
	beta := b.vector("beta")
	if b.err != nil {
		return nil, b.err
	}

	r, c := X.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("%w: X has %d rows, y has length %d", ErrShapeMismatch, r, len(y))
	}
	if c != len(beta) {
		return nil, fmt.Errorf("%w: X has %d columns, beta has length %d", ErrShapeMismatch, c, len(beta))
	}

	xbeta := mat.NewVecDense(r, nil)
	xbeta.MulVec(X, mat.NewVecDense(c, beta))

	at := func(i int) dist.Distribution {
		return dist.Normal{Mu: xbeta.AtVec(i), SD: residSD}
	}
	return evaluate(in, b.reported, term{"y", y, at}), nil
}
