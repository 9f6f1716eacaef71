package dataio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"bitbucket.org/Davydov/simlh/model"
)

const feInput = `
data:
  y: [1.2, 0.3, 2.5]
matrices:
  X:
    - [1, 0]
    - [1, 1]
    - [1, 2]
parameters:
  log_resid_sd: 0
  beta: [0.5, 1]
`

func TestRead(tst *testing.T) {
	data, par, err := Read(strings.NewReader(feInput))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	y, err := data.Vector("y")
	if err != nil || len(y) != 3 || y[2] != 2.5 {
		tst.Error("Wrong y:", y, err)
	}
	X, err := data.Matrix("X")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if r, c := X.Dims(); r != 3 || c != 2 || X.At(2, 1) != 2 {
		tst.Error("Wrong X:", r, c)
	}
	if v, err := par.Scalar("log_resid_sd"); err != nil || v != 0 {
		tst.Error("Wrong log_resid_sd:", v, err)
	}
	if v, err := par.Vector("beta"); err != nil || len(v) != 2 || v[1] != 1 {
		tst.Error("Wrong beta:", v, err)
	}

	m, err := model.New("FE")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := m.Evaluate(&model.Input{Data: data, Parameters: par, Mode: model.Score}); err != nil {
		tst.Error("Input should be scorable:", err)
	}
}

func TestReadJSON(tst *testing.T) {
	in := `{"data": {"y": [1, 2]}, "parameters": {"mu": 1.5, "log_resid_sd": [0]}}`
	data, par, err := Read(strings.NewReader(in))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(data.Vectors["y"]) != 2 || par["mu"][0] != 1.5 || len(par["log_resid_sd"]) != 1 {
		tst.Error("Wrong JSON input:", data.Vectors, par)
	}
}

func TestReadErrors(tst *testing.T) {
	ragged := "matrices:\n  X: [[1, 2], [3]]\n"
	if _, _, err := Read(strings.NewReader(ragged)); !errors.Is(err, model.ErrShapeMismatch) {
		tst.Error("Expected shape mismatch, got", err)
	}
	empty := "matrices:\n  X: []\n"
	if _, _, err := Read(strings.NewReader(empty)); !errors.Is(err, model.ErrShapeMismatch) {
		tst.Error("Expected shape mismatch for an empty matrix, got", err)
	}
	if _, _, err := Read(strings.NewReader("datta: {}\n")); err == nil {
		tst.Error("Expected error for an unknown field")
	}
	if _, _, err := Read(strings.NewReader("data:\n  y: [a, b]\n")); err == nil {
		tst.Error("Expected error for non-numeric data")
	}
	if _, _, err := Read(strings.NewReader("")); err == nil {
		tst.Error("Expected error for empty input")
	}
	for _, flat := range []string{"matrices:\n  X: [1, 2, 3]\n", "matrices:\n  X: [[1], 2]\n", "matrices:\n  X: 1\n"} {
		if _, _, err := Read(strings.NewReader(flat)); !errors.Is(err, model.ErrShapeMismatch) {
			tst.Errorf("Expected shape mismatch for %q, got %v", flat, err)
		}
	}
	for _, null := range []string{"data:\n  y:\n", "parameters:\n  mu: null\n", "matrices:\n  X: ~\n"} {
		if _, _, err := Read(strings.NewReader(null)); !errors.Is(err, ErrNull) {
			tst.Errorf("Expected null value error for %q, got %v", null, err)
		}
	}
	data, _, err := Read(strings.NewReader("data:\n  y: []\n"))
	if err != nil || data.Vectors["y"] == nil || len(data.Vectors["y"]) != 0 {
		tst.Error("Explicit empty vector should be accepted:", err)
	}
}

func TestWriteRead(tst *testing.T) {
	data, par, err := Read(strings.NewReader(feInput))
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, data, par); err != nil {
		tst.Fatal("Error writing: ", err)
	}
	if !strings.Contains(buf.String(), "log_resid_sd: 0") {
		tst.Error("Scalar parameters should be written as numbers:\n", buf.String())
	}

	data2, par2, err := Read(&buf)
	if err != nil {
		tst.Fatal("Error reading back: ", err)
	}
	if len(data2.Vectors["y"]) != 3 || data2.Vectors["y"][1] != 0.3 {
		tst.Error("Vectors differ:", data2.Vectors)
	}
	X := data2.Matrices["X"]
	if X == nil || X.At(1, 1) != 1 {
		tst.Error("Matrices differ")
	}
	if par2["beta"][0] != 0.5 || par2["log_resid_sd"][0] != 0 {
		tst.Error("Parameters differ:", par2)
	}
}
