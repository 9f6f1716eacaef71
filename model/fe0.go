package model

import (
	"bitbucket.org/Davydov/simlh/dist"
	"bitbucket.org/Davydov/simlh/transform"
)

// FE0 is an intercept-only regression: y ~ Normal(mu, resid_sd). It is
// FE with a single column of ones, without a design matrix.
type FE0 struct{}

// NewFE0 creates a new intercept-only model.
func NewFE0() *FE0 {
	return &FE0{}
}

// Name returns the model name.
func (m *FE0) Name() string {
	return "FE0"
}

// ParameterNames returns parameter names.
func (m *FE0) ParameterNames() []string {
	return []string{"mu", "log_resid_sd"}
}

// Evaluate scores or simulates the model.
func (m *FE0) Evaluate(in *Input) (*Result, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	y, err := in.Data.Vector("y")
	if err != nil {
		return nil, err
	}

	b := &binder{par: in.Parameters}
	mu := b.scalar("mu")
	residSD := b.transformed("log_resid_sd", "resid_sd", transform.Log)
	if b.err != nil {
		return nil, b.err
	}

	normal := dist.Normal{Mu: mu, SD: residSD}
	return evaluate(in, b.reported, term{"y", y, dist.Same(normal)}), nil
}
