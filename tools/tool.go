// Package tools runs overlay operations over feature layers. A Tool owns the
// lifecycle (prepare, one or more parallel phases, finalize) and delegates
// the per-operation logic to a Strategy.
package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bsaid97/go-geoprocessing/feature"
	"github.com/bsaid97/go-geoprocessing/utils"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
)

// Task tags a job so a strategy knows what to do with it.
type Task int

const (
	TaskLayerA Task = iota
	TaskLayerB
	TaskCluster
	TaskDetect
	TaskMerge
)

func (t Task) String() string {
	switch t {
	case TaskLayerA:
		return "layer-a"
	case TaskLayerB:
		return "layer-b"
	case TaskCluster:
		return "cluster"
	case TaskDetect:
		return "detect"
	case TaskMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Job is one unit of work. Cluster is set for cluster jobs only.
type Job struct {
	FeatureID feature.ID
	Task      Task
	Cluster   string
}

// Strategy is the operation-specific part of a tool.
type Strategy struct {
	Name string
	// Phases is the number of Execute calls a full run makes (at least 1).
	Phases int
	// Fields and CRS describe the output layer.
	Fields feature.Fields
	CRS    string
	// Prepare builds the phase 0 job list and any read-only state (indices,
	// clusters). It runs once, single-threaded.
	Prepare func(ctx context.Context, log logrus.FieldLogger) ([]Job, error)
	// Plan builds the job list of a later phase from the state left by the
	// previous one. It runs single-threaded between phases.
	Plan func(ctx context.Context, phase int, log logrus.FieldLogger) ([]Job, error)
	// Process handles one job. It runs concurrently with other jobs of the
	// same phase.
	Process func(jc *JobContext, job Job)
}

// Tool runs a Strategy over a worker pool and writes the results to a sink.
//
// The error lists and the sink are only touched by the aggregator goroutine
// of the running phase. Accessors are valid once that phase's handle is done.
type Tool struct {
	strategy Strategy
	sink     feature.Sink
	log      logrus.FieldLogger
	workers  int

	mu          sync.Mutex
	jobs        []Job
	initialized bool
	running     bool
	aborted     bool
	finalized   bool

	featureErrors  []Error
	geometryErrors []Error
	writeErrors    []string
	exceptions     []string
}

// Option configures a Tool.
type Option func(*Tool)

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Tool) { t.log = log }
}

// WithWorkers bounds the worker pool. Zero or less means one per CPU.
func WithWorkers(n int) Option {
	return func(t *Tool) { t.workers = n }
}

// NewTool creates a tool for strategy writing to sink.
func NewTool(strategy Strategy, sink feature.Sink, opts ...Option) *Tool {
	if strategy.Phases < 1 {
		strategy.Phases = 1
	}
	t := &Tool{strategy: strategy, sink: sink, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithField("tool", strategy.Name)
	return t
}

func (t *Tool) Name() string { return t.strategy.Name }

func (t *Tool) Phases() int { return t.strategy.Phases }

// Fields returns the output schema.
func (t *Tool) Fields() feature.Fields { return t.strategy.Fields }

// Init opens the sink and runs Prepare in the background.
func (t *Tool) Init(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, t.strategy.Name+": prepare", t.log)
	h.tracker.SetTotal(1)

	go func() {
		defer cancel()
		err := t.prepare(ctx)
		h.tracker.Increment()
		h.finish(err)
	}()
	return h
}

func (t *Tool) prepare(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: prepare: %v", ErrJobFailed, r)
		}
		if err != nil {
			t.setAborted()
		}
	}()

	if err := t.sink.Open(t.strategy.Fields, t.strategy.CRS); err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	jobs, err := t.strategy.Prepare(ctx, t.log)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}

	t.mu.Lock()
	t.jobs = jobs
	t.initialized = true
	t.mu.Unlock()
	t.log.WithField("jobs", len(jobs)).Debug("prepared")
	return nil
}

// Execute runs phase over the worker pool. Phases after the first are planned
// from the state the previous phase left behind.
func (t *Tool) Execute(ctx context.Context, phase int) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, fmt.Sprintf("%s: phase %d", t.strategy.Name, phase), t.log)

	go func() {
		defer cancel()
		h.finish(t.execute(ctx, phase, h.tracker))
	}()
	return h
}

func (t *Tool) execute(ctx context.Context, phase int, tracker *utils.ProgressTracker) error {
	t.mu.Lock()
	switch {
	case !t.initialized:
		t.mu.Unlock()
		return ErrNotInitialized
	case t.finalized:
		t.mu.Unlock()
		return ErrAlreadyFinalized
	case t.running:
		t.mu.Unlock()
		return errors.New("a phase is already running")
	case phase < 0 || phase >= t.strategy.Phases:
		t.mu.Unlock()
		return fmt.Errorf("phase %d out of range [0, %d)", phase, t.strategy.Phases)
	}
	t.running = true
	jobs := t.jobs
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	if phase > 0 {
		if t.strategy.Plan == nil {
			return fmt.Errorf("phase %d has no planner", phase)
		}
		planned, err := t.strategy.Plan(ctx, phase, t.log)
		if err != nil {
			t.setAborted()
			return fmt.Errorf("planning phase %d: %w", phase, err)
		}
		jobs = planned
		t.mu.Lock()
		t.jobs = planned
		t.mu.Unlock()
	}
	tracker.SetTotal(int64(len(jobs)))

	pool := utils.NewWorkerPool[Job, jobResult](t.workers, 0, 0)
	contexts := make([]*geos.Context, pool.NumWorkers)
	for i := range contexts {
		contexts[i] = geos.NewContext()
	}
	pool.StartWorkers(func(workerID int, job Job) jobResult {
		if ctx.Err() != nil {
			return jobResult{job: job, skipped: true}
		}
		return t.runJob(ctx, contexts[workerID], phase, job)
	})

	go func() {
		defer pool.Shutdown()
		for _, job := range jobs {
			if ctx.Err() != nil {
				return
			}
			pool.SubmitJob(job)
		}
	}()

	failed := 0
	for res := range pool.Results {
		if t.collect(res) {
			failed++
		}
		tracker.Increment()
	}

	if ctx.Err() != nil {
		t.setAborted()
		return ErrCancelled
	}
	if failed > 0 {
		t.setAborted()
		return fmt.Errorf("%w: %d of %d jobs in phase %d", ErrJobFailed, failed, len(jobs), phase)
	}
	return nil
}

// runJob processes one job on the calling worker's GEOS context. A panic is
// recorded as an exception and drops whatever the job produced.
func (t *Tool) runJob(ctx context.Context, gctx *geos.Context, phase int, job Job) (res jobResult) {
	res.job = job
	jc := &JobContext{
		Context: ctx,
		Geos:    gctx,
		Phase:   phase,
		Log:     t.log.WithFields(logrus.Fields{"feature": job.FeatureID, "task": job.Task}),
		result:  &res,
	}
	defer func() {
		if r := recover(); r != nil {
			res.outputs = nil
			res.panic = fmt.Sprintf("%s job %d (%s): %v", t.strategy.Name, job.FeatureID, job.Task, r)
			jc.Log.WithField("stack", string(debug.Stack())).Error(res.panic)
		}
	}()
	t.strategy.Process(jc, job)
	return res
}

// collect merges one job result into the run state. It reports whether the
// job panicked.
func (t *Tool) collect(res jobResult) bool {
	t.featureErrors = append(t.featureErrors, res.featureErrors...)
	t.geometryErrors = append(t.geometryErrors, res.geometryErrors...)
	for _, f := range res.outputs {
		if err := t.sink.AddFeature(f); err != nil {
			t.writeErrors = append(t.writeErrors, err.Error())
		}
	}
	if res.panic != "" {
		t.exceptions = append(t.exceptions, res.panic)
		return true
	}
	return false
}

func (t *Tool) setAborted() {
	t.mu.Lock()
	t.aborted = true
	t.mu.Unlock()
}

// FinalizeOutput closes the sink. A cancelled or failed run discards it
// instead so no truncated output is left behind. It may only be called once.
func (t *Tool) FinalizeOutput() error {
	t.mu.Lock()
	if t.finalized {
		t.mu.Unlock()
		return ErrAlreadyFinalized
	}
	if t.running {
		t.mu.Unlock()
		return errors.New("cannot finalize while a phase is running")
	}
	t.finalized = true
	aborted := t.aborted
	t.mu.Unlock()

	if aborted {
		t.log.Warn("run aborted, discarding output")
		return t.sink.Discard()
	}
	return t.sink.Close()
}

// Run executes the whole lifecycle and waits for it.
func (t *Tool) Run(ctx context.Context) error {
	if err := t.Init(ctx).Wait(); err != nil {
		return errors.Join(err, t.FinalizeOutput())
	}
	for phase := 0; phase < t.strategy.Phases; phase++ {
		if err := t.Execute(ctx, phase).Wait(); err != nil {
			return errors.Join(err, t.FinalizeOutput())
		}
	}
	return t.FinalizeOutput()
}

func (t *Tool) FeatureErrors() []Error { return t.featureErrors }

func (t *Tool) GeometryErrors() []Error { return t.geometryErrors }

func (t *Tool) WriteErrors() []string { return t.writeErrors }

// Exceptions lists the jobs that panicked. A non-empty list means the run
// was aborted.
func (t *Tool) Exceptions() []string { return t.exceptions }

// ErrorsOccurred reports whether any job recorded an error of any kind.
func (t *Tool) ErrorsOccurred() bool {
	return len(t.featureErrors) > 0 || len(t.geometryErrors) > 0 ||
		len(t.writeErrors) > 0 || len(t.exceptions) > 0
}

// Aborted reports whether the run was cancelled or a job failed.
func (t *Tool) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// Report collects the run outcome.
func (t *Tool) Report() Report {
	return Report{
		Tool:           t.strategy.Name,
		Aborted:        t.Aborted(),
		FeatureErrors:  t.featureErrors,
		GeometryErrors: t.geometryErrors,
		WriteErrors:    t.writeErrors,
		Exceptions:     t.exceptions,
	}
}
