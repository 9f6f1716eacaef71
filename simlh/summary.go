package main

import (
	"encoding/json"
	"math"

	"bitbucket.org/Davydov/simlh/fit"
	"bitbucket.org/Davydov/simlh/model"
	"bitbucket.org/Davydov/simlh/sdreport"
)

// RunSummary is storing simlh run summary information.
type RunSummary struct {
	// RunID is a unique run identifier.
	RunID string `json:"runID"`
	// Version stores simlh version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Command is the command name.
	Command string `json:"command"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
	// Result is the command result.
	Result interface{} `json:"result,omitempty"`
}

// number is a float which is written as null if it is not finite.
type number float64

// MarshalJSON implements json.Marshaler.
func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// numbers converts a slice.
func numbers(v []float64) []number {
	if v == nil {
		return nil
	}
	res := make([]number, len(v))
	for i, f := range v {
		res[i] = number(f)
	}
	return res
}

// QuantitySummary is a reported quantity.
type QuantitySummary struct {
	Name   string `json:"name"`
	Value  number `json:"value"`
	StdErr number `json:"stdErr"`
}

// quantities converts reported quantities.
func quantities(r model.Reported) []QuantitySummary {
	res := make([]QuantitySummary, len(r))
	for i, q := range r {
		res[i] = QuantitySummary{Name: q.Name, Value: number(q.Value), StdErr: number(q.StdErr)}
	}
	return res
}

// SDSummary stores the standard errors.
type SDSummary struct {
	// Names are the flat parameter names.
	Names       []string          `json:"names"`
	Values      []number          `json:"values"`
	StdErr      []number          `json:"stdErr"`
	Gradient    []number          `json:"gradient"`
	MaxGradient number            `json:"maxGradient"`
	PDHess      bool              `json:"pdHess"`
	Reported    []QuantitySummary `json:"reported"`
}

// newSDSummary converts sdreport results.
func newSDSummary(r *sdreport.Report) *SDSummary {
	if r == nil {
		return nil
	}
	return &SDSummary{
		Names:       r.Names,
		Values:      numbers(r.Values),
		StdErr:      numbers(r.ParameterSE),
		Gradient:    numbers(r.Gradient),
		MaxGradient: number(r.MaxGradient),
		PDHess:      r.PDHess,
		Reported:    quantities(r.Reported),
	}
}

// ScoreSummary is the score command result.
type ScoreSummary struct {
	Model    string            `json:"model"`
	NLL      number            `json:"nll"`
	Reported []QuantitySummary `json:"reported"`
	SD       *SDSummary        `json:"sdreport,omitempty"`
}

// FitSummary is the fit command result.
type FitSummary struct {
	Model     string       `json:"model"`
	Optimizer *fit.Summary `json:"optimizer"`
	// Time is the optimization time in seconds.
	Time float64    `json:"optimizationTime"`
	SD   *SDSummary `json:"sdreport,omitempty"`
}

// SimulateSummary is the simulate command result.
type SimulateSummary struct {
	Model  string         `json:"model"`
	Fields map[string]int `json:"fields"`
	Output string         `json:"output,omitempty"`
}

// EstimateSummary describes the distribution of a statistic over
// replicates.
type EstimateSummary struct {
	Name string `json:"name"`
	// True is the generating value.
	True   number `json:"true"`
	Mean   number `json:"mean"`
	SD     number `json:"sd"`
	Lower  number `json:"q2.5"`
	Upper  number `json:"q97.5"`
	Finite int    `json:"finite"`
}

// CheckSummary is the check command result.
type CheckSummary struct {
	Model      string `json:"model"`
	Replicates int    `json:"replicates"`
	// NonFinite is the number of replicates with non-finite NLL.
	NonFinite int               `json:"nonFinite"`
	NLL       EstimateSummary   `json:"nll"`
	Estimates []EstimateSummary `json:"estimates,omitempty"`
}
