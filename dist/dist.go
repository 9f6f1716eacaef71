// Package dist implements the distribution families used by the
// models. Every family provides a log-density, used for scoring, and
// a sampler, used for simulation. Both take their parameters from the
// same value, so scoring and simulation can not disagree on the
// parameterization.
package dist

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is a univariate distribution on the real line.
type Distribution interface {
	// LogProb returns the log-density (or log-probability mass)
	// at x. Values outside of the support give -Inf.
	LogProb(x float64) float64
	// Rand draws a value using src.
	Rand(src rand.Source) float64
}

// Normal is a normal distribution with mean Mu and standard
// deviation SD.
type Normal struct {
	Mu, SD float64
}

// LogProb returns the normal log-density.
func (d Normal) LogProb(x float64) float64 {
	return distuv.Normal{Mu: d.Mu, Sigma: d.SD}.LogProb(x)
}

// Rand draws from the normal distribution.
func (d Normal) Rand(src rand.Source) float64 {
	return distuv.Normal{Mu: d.Mu, Sigma: d.SD, Src: src}.Rand()
}

// Binomial is a binomial distribution with N trials and success
// probability P.
type Binomial struct {
	N float64
	P float64
}

// LogProb returns the binomial log-probability.
func (d Binomial) LogProb(x float64) float64 {
	return distuv.Binomial{N: d.N, P: d.P}.LogProb(x)
}

// Rand draws a number of successes.
func (d Binomial) Rand(src rand.Source) float64 {
	return distuv.Binomial{N: d.N, P: d.P, Src: src}.Rand()
}

// Poisson is a Poisson distribution with rate Lambda.
type Poisson struct {
	Lambda float64
}

// LogProb returns the Poisson log-probability.
func (d Poisson) LogProb(x float64) float64 {
	return distuv.Poisson{Lambda: d.Lambda}.LogProb(x)
}

// Rand draws a count.
func (d Poisson) Rand(src rand.Source) float64 {
	return distuv.Poisson{Lambda: d.Lambda, Src: src}.Rand()
}

// Gamma is a gamma distribution with shape and scale.
type Gamma struct {
	Shape, Scale float64
}

// gamma converts to distuv parameterization (shape, rate).
func (d Gamma) gamma(src rand.Source) distuv.Gamma {
	return distuv.Gamma{Alpha: d.Shape, Beta: 1 / d.Scale, Src: src}
}

// LogProb returns the gamma log-density.
func (d Gamma) LogProb(x float64) float64 {
	return d.gamma(nil).LogProb(x)
}

// Rand draws from the gamma distribution.
func (d Gamma) Rand(src rand.Source) float64 {
	return d.gamma(src).Rand()
}

// NegBinom2 is a negative binomial distribution given by its mean
// and variance (Var > Mu).
type NegBinom2 struct {
	Mu, Var float64
}

// SizeProb returns the classical (size, prob) parameterization:
// size = mu^2/(var-mu), prob = mu/var.
func (d NegBinom2) SizeProb() (size, prob float64) {
	return d.Mu * d.Mu / (d.Var - d.Mu), d.Mu / d.Var
}

// LogProb returns the negative binomial log-probability.
func (d NegBinom2) LogProb(x float64) float64 {
	if x < 0 || math.Floor(x) != x {
		return math.Inf(-1)
	}
	n, p := d.SizeProb()
	// log(Gamma(x+n)/(Gamma(n)Gamma(x+1))) = -log(x+n) - lbeta(n, x+1)
	return -math.Log(x+n) - mathext.Lbeta(n, x+1) + n*math.Log(p) + x*math.Log1p(-p)
}

// Rand draws a count as a gamma-Poisson mixture. Invalid parameters
// (var <= mu) give NaN.
func (d NegBinom2) Rand(src rand.Source) float64 {
	n, p := d.SizeProb()
	if !(n > 0) || !(p > 0 && p <= 1) {
		return math.NaN()
	}
	lambda := distuv.Gamma{Alpha: n, Beta: p / (1 - p), Src: src}.Rand()
	return distuv.Poisson{Lambda: lambda, Src: src}.Rand()
}

// NegLogLik returns the negative log-likelihood of the observations,
// at(i) is the distribution of obs[i]. Values outside of the support
// make the result infinite or NaN.
func NegLogLik(obs []float64, at func(i int) Distribution) float64 {
	nll := 0.0
	for i, x := range obs {
		nll -= at(i).LogProb(x)
	}
	return nll
}

// Simulate draws n values, the value i is drawn from at(i).
func Simulate(n int, at func(i int) Distribution, src rand.Source) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = at(i).Rand(src)
	}
	return res
}

// Same returns a function which gives d for every observation.
func Same(d Distribution) func(int) Distribution {
	return func(int) Distribution {
		return d
	}
}
