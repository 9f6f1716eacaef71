/*
Simlh scores, simulates and fits small statistical models: fixed
effects regression (FE), intercept-only regression (FE0) and a model
with four independent distributions (MultiDist).

The input is a YAML or JSON file with the data and the parameters on
the unconstrained scale:

	simlh score FE0 input.yaml

computes the negative log-likelihood and the reported quantities,

	simlh fit --method bfgs FE input.yaml

minimizes the negative log-likelihood and computes standard errors,

	simlh check --replicates 1000 MultiDist input.yaml

simulates data sets from the model and scores them.

To see all the options run:

	simlh --help
*/
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/simlh/dataio"
	"bitbucket.org/Davydov/simlh/fit"
	"bitbucket.org/Davydov/simlh/model"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("simlh")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers are the package loggers which follow --loglevel.
var loggers = []string{"simlh", "model", "fit", "sdreport", "checkpoint"}

// command-line options
var (
	// application
	app = kingpin.New("simlh", "statistical models scorer, simulator and optimizer").Version(version)

	// technical
	seed = app.Flag("seed", "random generator seed, default time based").
		Default("-1").Envar("SIMLH_SEED").Int64()
	nThreads = app.Flag("nt", "number of threads to use").Envar("SIMLH_NT").Int()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").Envar("SIMLH_LOGLEVEL").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// score
	scoreCmd   = app.Command("score", "compute negative log-likelihood")
	scoreModel = scoreCmd.Arg("model", "model name").Required().Enum(model.Names()...)
	scoreInput = scoreCmd.Arg("input", "input file (data and parameters)").Required().ExistingFile()
	scoreSD    = scoreCmd.Flag("sdreport", "compute standard errors").Bool()

	// simulate
	simCmd   = app.Command("simulate", "simulate a data set")
	simModel = simCmd.Arg("model", "model name").Required().Enum(model.Names()...)
	simInput = simCmd.Arg("input", "input file (data and parameters)").Required().ExistingFile()
	simOut   = simCmd.Flag("out", "write simulated input file").String()

	// fit
	fitCmd   = app.Command("fit", "minimize negative log-likelihood")
	fitModel = fitCmd.Arg("model", "model name").Required().Enum(model.Names()...)
	fitInput = fitCmd.Arg("input", "input file (data and starting parameters)").Required().ExistingFile()
	method   = fitCmd.Flag("method", "optimization method to use "+
		"(lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"bfgs: BFGS from gonum, "+
		"lbfgs: limited-memory BFGS from gonum, "+
		"simplex: Nelder-Mead downhill simplex, "+
		"none: just compute NLL, no optimization"+
		")").Default("lbfgsb").Enum(fit.Methods...)
	iterations = fitCmd.Flag("iter", "number of iterations").Default("10000").Int()
	report     = fitCmd.Flag("report", "report every N iterations").Default("10").Int()
	trajF      = fitCmd.Flag("traj", "write optimization trajectory to a file").String()
	checkF     = fitCmd.Flag("checkpoint", "checkpoint database file").String()
	checkSec   = fitCmd.Flag("checkpoint-seconds", "save checkpoint every N seconds").Default("60").Float64()
	noSD       = fitCmd.Flag("nosd", "don't compute standard errors").Bool()
	startF     = fitCmd.Flag("start", "read start position from a JSON file "+
		"(flat parameter names to values, e.g. resid_sd can replace log_resid_sd)").ExistingFile()

	// check
	checkCmd   = app.Command("check", "simulate and score replicate data sets")
	checkModel = checkCmd.Arg("model", "model name").Required().Enum(model.Names()...)
	checkInput = checkCmd.Arg("input", "input file (data and parameters)").Required().ExistingFile()
	replicates = checkCmd.Flag("replicates", "number of replicates").Default("1000").Int()
	refit      = checkCmd.Flag("refit", "fit every replicate").Bool()
	refitMeth  = checkCmd.Flag("method", "optimization method for --refit").Default("bfgs").Enum(fit.Methods...)
	refitIter  = checkCmd.Flag("iter", "number of iterations for --refit").Default("1000").Int()

	// plot
	plotCmd   = app.Command("plot", "plot a histogram of a simulated field")
	plotModel = plotCmd.Arg("model", "model name").Required().Enum(model.Names()...)
	plotInput = plotCmd.Arg("input", "input file (data and parameters)").Required().ExistingFile()
	plotField = plotCmd.Arg("field", "simulated field name").Required().String()
	plotOut   = plotCmd.Flag("out", "output image file, <field>.png by default").String()
	plotBins  = plotCmd.Flag("bins", "number of histogram bins").Default("30").Int()
	plotReps  = plotCmd.Flag("replicates", "number of pooled simulated data sets").Default("1").Int()
)

// load reads the input file and creates the model.
func load(name, input string) (model.Model, *model.Data, model.Parameters, error) {
	m, err := model.New(name)
	if err != nil {
		return nil, nil, nil, err
	}
	data, par, err := dataio.ReadFile(input)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Infof("Read %d data vectors, %d matrices, %d parameters from %s",
		len(data.Vectors), len(data.Matrices), len(par), input)
	return m, data, par, nil
}

// source returns the random source for a stream.
func source(stream uint64) rand.Source {
	return rand.NewPCG(uint64(*seed), stream)
}

// setupLogging configures the logging backend, the returned function
// closes the log file.
func setupLogging() func() {
	logging.SetFormatter(formatter)

	closeLog := func() {}
	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		closeLog = func() { f.Close() }
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, l := range loggers {
		logging.SetLevel(level, l)
	}
	return closeLog
}

// writeSummary writes the summary in json format.
func writeSummary(summary *RunSummary) {
	j, err := json.Marshal(summary)
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	if err := os.WriteFile(*jsonF, j, 0666); err != nil {
		log.Error("Error creating json output file:", err)
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog := setupLogging()
	defer closeLog()

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	startTime := time.Now()
	summary := &RunSummary{
		RunID:       uuid.NewString(),
		Version:     version,
		CommandLine: os.Args,
		Command:     cmd,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
	}
	log.Debugf("Run id: %s", summary.RunID)

	var err error
	switch cmd {
	case scoreCmd.FullCommand():
		summary.Result, err = runScore(*scoreModel, *scoreInput, *scoreSD)
	case simCmd.FullCommand():
		summary.Result, err = runSimulate(*simModel, *simInput, *simOut)
	case fitCmd.FullCommand():
		summary.Result, err = runFit(*fitModel, *fitInput)
	case checkCmd.FullCommand():
		summary.Result, err = runCheck(*checkModel, *checkInput, &checkSettings{
			replicates: *replicates,
			workers:    effectiveNThreads,
			refit:      *refit,
			method:     *refitMeth,
			iterations: *refitIter,
		})
	case plotCmd.FullCommand():
		err = runPlot(*plotModel, *plotInput, *plotField, *plotOut, *plotBins, *plotReps)
	}
	if err != nil {
		log.Fatal(err)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	if *jsonF != "" {
		writeSummary(summary)
	}
}
