package model

import (
	"bitbucket.org/Davydov/simlh/dist"
	"bitbucket.org/Davydov/simlh/transform"
)

// BinomialTrials is the number of trials for the binomial data in
// MultiDist.
const BinomialTrials = 10

// MultiDist scores four independent data vectors under four
// different families:
//
//	B  ~ Binomial(10, prob)
//	P  ~ Poisson(lambda)
//	NB ~ NegBinom2(mu, var)
//	G  ~ Gamma(shape, scale)
//
// No parameters are shared. All the vectors have the same length.
type MultiDist struct{}

// NewMultiDist creates a new multi-distribution model.
func NewMultiDist() *MultiDist {
	return &MultiDist{}
}

// Name returns the model name.
func (m *MultiDist) Name() string {
	return "MultiDist"
}

// ParameterNames returns parameter names.
func (m *MultiDist) ParameterNames() []string {
	return []string{"logit_prob", "log_lambda", "log_mu", "log_var", "log_shape", "log_scale"}
}

// Evaluate scores or simulates the model.
func (m *MultiDist) Evaluate(in *Input) (*Result, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	vs, err := in.Data.sameLength("B", "P", "NB", "G")
	if err != nil {
		return nil, err
	}

	b := &binder{par: in.Parameters}
	prob := b.transformed("logit_prob", "prob", transform.Logit)
	lambda := b.transformed("log_lambda", "lambda", transform.Log)
	mu := b.transformed("log_mu", "mu", transform.Log)
	vr := b.transformed("log_var", "var", transform.Log)
	shape := b.transformed("log_shape", "shape", transform.Log)
	scale := b.transformed("log_scale", "scale", transform.Log)
	if b.err != nil {
		return nil, b.err
	}

	return evaluate(in, b.reported,
		term{"B", vs[0], dist.Same(dist.Binomial{N: BinomialTrials, P: prob})},
		term{"P", vs[1], dist.Same(dist.Poisson{Lambda: lambda})},
		term{"NB", vs[2], dist.Same(dist.NegBinom2{Mu: mu, Var: vr})},
		term{"G", vs[3], dist.Same(dist.Gamma{Shape: shape, Scale: scale})},
	), nil
}
