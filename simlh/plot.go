package main

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/simlh/model"
)

// simulateField pools a simulated field over reps data sets.
func simulateField(m model.Model, data *model.Data, par model.Parameters, field string, reps int) (plotter.Values, error) {
	var values plotter.Values
	for i := 0; i < reps; i++ {
		res, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Simulate, Src: source(uint64(i))})
		if err != nil {
			return nil, err
		}
		v, ok := res.Simulated.Vectors[field]
		if !ok {
			return nil, fmt.Errorf("%w: simulated field %s", model.ErrMissing, field)
		}
		values = append(values, v...)
	}
	if len(values) == 0 {
		return nil, errors.New("nothing to plot")
	}
	return values, nil
}

// histogram creates a normalized histogram plot.
func histogram(title, field string, values plotter.Values, bins int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = field
	p.Y.Label.Text = "density"

	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return nil, err
	}
	h.Normalize(1)
	p.Add(h)
	return p, nil
}

// runPlot saves a histogram of a simulated field.
func runPlot(name, input, field, out string, bins, reps int) error {
	m, data, par, err := load(name, input)
	if err != nil {
		return err
	}
	values, err := simulateField(m, data, par, field, reps)
	if err != nil {
		return err
	}
	p, err := histogram(fmt.Sprintf("%s: simulated %s", m.Name(), field), field, values, bins)
	if err != nil {
		return err
	}
	if out == "" {
		out = field + ".png"
	}
	log.Infof("Saving plot of %d values to %s", len(values), out)
	return p.Save(4*vg.Inch, 4*vg.Inch, out)
}
