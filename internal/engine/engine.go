// Package engine implements the execution engine (spec.md §4.7): a
// worker pool that, for each accepted job, loads its process and
// package, builds an execution plan, dispatches each step to the
// adapter C5 selects, and merges step progress into the job's overall
// progress (spec.md §5's per-job single-writer discipline: exactly one
// worker goroutine ever mutates a given job record).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crim-ca/weaver-ems/internal/adapter"
	"github.com/crim-ca/weaver-ems/internal/container"
	"github.com/crim-ca/weaver-ems/internal/datasource"
	"github.com/crim-ca/weaver-ems/internal/job"
	"github.com/crim-ca/weaver-ems/internal/metrics"
	"github.com/crim-ca/weaver-ems/internal/pkgload"
	"github.com/crim-ca/weaver-ems/internal/process"
	"github.com/crim-ca/weaver-ems/internal/staging"
	"github.com/crim-ca/weaver-ems/internal/statusjson"
)

// prepLogProgress is the job-level progress point reached once the
// process/package have been loaded and the plan built (spec.md §4.7
// step 2: "Set status running, progress PREP_LOG = 1").
const prepLogProgress = 1

// Config configures one Engine instance.
type Config struct {
	// Workers bounds the worker pool size; defaults to runtime.NumCPU().
	Workers int
	// Mode selects the fallback adapter for steps without a provider
	// hint: ModeEMS delegates to ADESEndpoint, ModeADES runs locally.
	Mode adapter.Mode
	// ADESEndpoint is the default remote ADES used in EMS mode when no
	// data source resolves a step's inputs to a more specific one.
	ADESEndpoint string
	// WorkDir is the root directory under which each job gets its own
	// staging subtree (<WorkDir>/<job-id>/<step-name>/...).
	WorkDir string
	// OutputDir/OutputURL are passed through to the staging.Stager used
	// for publishing each step's final outputs.
	OutputDir string
	OutputURL string
	// QueueSize bounds the number of jobs that may be queued awaiting a
	// free worker before Submit starts rejecting with ErrQueueFull.
	QueueSize int
	// ShutdownTimeout bounds how long Stop waits for workers to drain.
	ShutdownTimeout time.Duration
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c Config) queueSize() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return 256
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout > 0 {
		return c.ShutdownTimeout
	}
	return 30 * time.Second
}

// Engine drives accepted jobs to completion.
type Engine struct {
	cfg Config

	jobs        job.Store
	processes   process.Store
	loader      *pkgload.Loader
	datasources *datasource.Registry
	runner      container.Runner
	httpClient  *http.Client
	logger      *zap.Logger

	statusWriter *statusjson.Writer

	queue  chan uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cancelsMu sync.Mutex
	cancels   map[uuid.UUID]context.CancelFunc
	dismissed map[uuid.UUID]bool
	started   map[uuid.UUID]time.Time
}

// New builds an Engine. datasources may be nil (every step resolves to
// cfg.ADESEndpoint / the local container runtime).
func New(cfg Config, jobs job.Store, processes process.Store, loader *pkgload.Loader, datasources *datasource.Registry, runner container.Runner, httpClient *http.Client, logger *zap.Logger) *Engine {
	if loader == nil {
		loader = pkgload.NewLoader()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	var statusWriter *statusjson.Writer
	if cfg.OutputDir != "" {
		statusWriter = statusjson.NewWriter(cfg.OutputDir, cfg.OutputURL)
	}
	return &Engine{
		cfg:          cfg,
		jobs:         jobs,
		processes:    processes,
		loader:       loader,
		datasources:  datasources,
		runner:       runner,
		httpClient:   httpClient,
		logger:       logger.With(zap.String("component", "engine")),
		statusWriter: statusWriter,
		queue:        make(chan uuid.UUID, cfg.queueSize()),
		ctx:          ctx,
		cancel:       cancel,
		cancels:      map[uuid.UUID]context.CancelFunc{},
		dismissed:    map[uuid.UUID]bool{},
		started:      map[uuid.UUID]time.Time{},
	}
}

// persist writes j's external status documents and appends any new log
// lines, a no-op when no wps_output_dir is configured (spec.md §4.8's
// writer is best-effort supplementary output, not the system of record —
// the job.Store record is).
func (e *Engine) persist(j *job.Job) {
	if e.statusWriter == nil {
		return
	}
	e.cancelsMu.Lock()
	started, ok := e.started[j.ID]
	e.cancelsMu.Unlock()
	var startedPtr *time.Time
	if ok {
		startedPtr = &started
	}
	if err := e.statusWriter.WriteStatus(j, startedPtr, time.Now()); err != nil {
		e.logger.Warn("writing status document failed", zap.String("job_id", j.ID.String()), zap.Error(err))
	}
	if err := e.statusWriter.AppendLog(j); err != nil {
		e.logger.Warn("appending job log failed", zap.String("job_id", j.ID.String()), zap.Error(err))
	}
}

// StartedAt reports when jobID's dispatch reached the running transition,
// for HTTP handlers rendering the same status document persist() writes.
func (e *Engine) StartedAt(id uuid.UUID) (time.Time, bool) {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	t, ok := e.started[id]
	return t, ok
}

func (e *Engine) markStarted(id uuid.UUID) {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	if _, ok := e.started[id]; !ok {
		e.started[id] = time.Now()
	}
}

// Start launches the worker pool.
func (e *Engine) Start() {
	workers := e.cfg.workers()
	e.logger.Info("starting engine", zap.Int("workers", workers), zap.String("mode", string(e.cfg.Mode)))
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
}

// Stop signals every worker to finish its current job and return,
// waiting up to cfg.ShutdownTimeout before giving up.
func (e *Engine) Stop() error {
	e.cancel()
	close(e.queue)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(e.cfg.shutdownTimeout()):
		return ErrShutdownTimeout
	}
}

// Submit enqueues an already-saved, accepted job for dispatch.
func (e *Engine) Submit(jobID uuid.UUID) error {
	select {
	case e.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dismiss cancels a running job's context (the owning worker finalizes
// the dismissal), or, if the job has no worker yet (still accepted and
// unqueued), transitions it directly since no worker holds the write
// lock on it.
func (e *Engine) Dismiss(jobID uuid.UUID) error {
	if cancel, ok := e.getCancel(jobID); ok {
		e.cancelsMu.Lock()
		e.dismissed[jobID] = true
		e.cancelsMu.Unlock()
		cancel()
		return nil
	}

	ctx := context.Background()
	j, err := e.jobs.FetchByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminalStatus(j.Status) {
		return fmt.Errorf("%w: job %s already terminal", ErrNotRunning, jobID)
	}
	if err := j.SetStatus(job.StatusDismissed, "cancelled before dispatch"); err != nil {
		return err
	}
	return e.jobs.UpdateJob(ctx, j)
}

func (e *Engine) registerCancel(id uuid.UUID, cancel context.CancelFunc) {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	e.cancels[id] = cancel
}

func (e *Engine) unregisterCancel(id uuid.UUID) {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	delete(e.cancels, id)
	delete(e.dismissed, id)
	delete(e.started, id)
}

func (e *Engine) getCancel(id uuid.UUID) (context.CancelFunc, bool) {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	cancel, ok := e.cancels[id]
	return cancel, ok
}

func (e *Engine) wasDismissed(id uuid.UUID) bool {
	e.cancelsMu.Lock()
	defer e.cancelsMu.Unlock()
	return e.dismissed[id]
}

func (e *Engine) runWorker(id int) {
	defer e.wg.Done()
	log := e.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")
	for jobID := range e.queue {
		e.runJob(jobID)
	}
	log.Info("worker stopped")
}

// runJob owns jobID's record exclusively for the duration of this call,
// matching spec.md §5's single-writer-per-job discipline.
func (e *Engine) runJob(jobID uuid.UUID) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.registerCancel(jobID, cancel)
	defer e.unregisterCancel(jobID)
	defer cancel()

	log := e.logger.With(zap.String("job_id", jobID.String()))

	j, err := e.jobs.FetchByID(ctx, jobID)
	if err != nil {
		log.Error("fetching job failed", zap.Error(err))
		return
	}

	if err := e.dispatch(ctx, j, log); err != nil {
		e.finalizeFailure(context.Background(), jobID, j, err, log)
		return
	}
}

func (e *Engine) dispatch(ctx context.Context, j *job.Job, log *zap.Logger) error {
	if err := j.SetStatus(job.StatusRunning, "dispatching"); err != nil {
		return err
	}
	metrics.JobStatusTransitionsTotal.WithLabelValues(string(job.StatusRunning)).Inc()
	metrics.JobsInFlight.WithLabelValues(string(job.StatusRunning)).Inc()
	if err := j.SetProgress(prepLogProgress); err != nil {
		return err
	}
	j.SaveLog("INFO", "job dispatch started")
	if err := e.jobs.UpdateJob(ctx, j); err != nil {
		return err
	}
	e.markStarted(j.ID)
	e.persist(j)

	proc, err := e.processes.FetchByID(ctx, j.Process)
	if err != nil {
		return fmt.Errorf("loading process %s: %w", j.Process, err)
	}

	pkgBytes, err := json.Marshal(proc.Package)
	if err != nil {
		return fmt.Errorf("re-encoding process package: %w", err)
	}
	root, resolved, err := e.loader.Load(ctx, pkgBytes, "inline.json")
	if err != nil {
		return fmt.Errorf("loading package: %w", err)
	}

	plan, err := pkgload.BuildPlan(root, resolved)
	if err != nil {
		return fmt.Errorf("building execution plan: %w", err)
	}

	results, err := e.runPlan(ctx, j, plan, log)
	if err != nil {
		return err
	}

	j.Results = results
	j.SaveLog("INFO", "job completed successfully")
	if err := j.SetStatus(job.StatusSucceeded, "completed"); err != nil {
		return err
	}
	metrics.JobStatusTransitionsTotal.WithLabelValues(string(job.StatusSucceeded)).Inc()
	metrics.JobsInFlight.WithLabelValues(string(job.StatusRunning)).Dec()
	if err := e.jobs.UpdateJob(ctx, j); err != nil {
		return err
	}
	e.persist(j)
	return nil
}

// runPlan executes every step of plan in topological order, threading
// each step's outputs into the inputs of later steps per the plan's
// edges (spec.md §4.7 step 3), and folds each step's local progress
// into the job's overall [Schedule.Execute, Schedule.Results] window
// (spec.md §9's StepWindow design note).
func (e *Engine) runPlan(ctx context.Context, j *job.Job, plan *pkgload.ExecutionPlan, log *zap.Logger) ([]job.IOValue, error) {
	stepOutputs := make(map[pkgload.StepIx][]job.IOValue, len(plan.Steps))

	var last []job.IOValue
	for i, step := range plan.Steps {
		stepInputs := e.gatherStepInputs(plan, pkgload.StepIx(i), j.Inputs, stepOutputs)

		lo, hi := adapter.StepWindow(i, len(plan.Steps), adapter.Schedule.Execute, adapter.Schedule.Results)
		report := func(percent int, message string) {
			if message != "" {
				j.SaveLog("INFO", fmt.Sprintf("%s: %s", step.Name, message))
			}
			if err := j.SetProgress(percent); err == nil {
				_ = e.jobs.UpdateJob(ctx, j)
				e.persist(j)
			}
		}

		hooks, err := adapter.SelectHooks(step.Package, e.cfg.Mode, e.stepDependencies(step, stepInputs))
		if err != nil {
			return nil, fmt.Errorf("selecting adapter for step %q: %w", step.Name, err)
		}

		stageDir := filepath.Join(e.cfg.WorkDir, j.ID.String(), step.Name)
		expected := expectedOutputIDs(step.Package)

		rp := adapter.NewRemoteProcess(hooks, lo, hi, report)
		log.Info("dispatching step", zap.String("step", step.Name), zap.Int("lo", lo), zap.Int("hi", hi))
		label := adapterLabel(hooks)
		timer := metrics.NewTimer()
		results, err := rp.Execute(ctx, stepInputs, stageDir, expected)
		timer.ObserveDuration(metrics.StepDispatchDuration, label)
		if err != nil {
			metrics.StepDispatchFailuresTotal.WithLabelValues(label).Inc()
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}

		stager := staging.NewStager(stageDir, e.cfg.OutputDir, e.cfg.OutputURL, "")
		published, err := e.publishStepOutputs(ctx, stager, j.ID.String(), results)
		if err != nil {
			return nil, fmt.Errorf("step %q: publishing outputs: %w", step.Name, err)
		}

		stepOutputs[pkgload.StepIx(i)] = published
		last = published
	}

	return last, nil
}

func (e *Engine) publishStepOutputs(ctx context.Context, stager *staging.Stager, jobID string, results []job.IOValue) ([]job.IOValue, error) {
	local := map[string]string{}
	for _, r := range results {
		if r.Href != "" {
			local[r.ID] = r.Href
		}
	}
	if len(local) == 0 {
		return results, nil
	}

	forPublish := map[string]string{}
	for id, href := range local {
		if path, ok := stripFileScheme(href); ok {
			forPublish[id] = path
		}
	}
	if len(forPublish) == 0 {
		return results, nil
	}

	published, err := stager.PublishOutputs(ctx, jobID, "", "", forPublish)
	if err != nil {
		return nil, err
	}

	byID := map[string]staging.PublishedOutput{}
	for _, p := range published {
		byID[p.ID] = p
	}
	out := make([]job.IOValue, len(results))
	copy(out, results)
	for i, r := range out {
		if p, ok := byID[r.ID]; ok {
			out[i].Href = p.Href
		}
	}
	return out, nil
}

func stripFileScheme(href string) (string, bool) {
	const prefix = "file://"
	if len(href) > len(prefix) && href[:len(prefix)] == prefix {
		return href[len(prefix):], true
	}
	return "", false
}

// gatherStepInputs resolves a step's inputs from the job's top-level
// inputs (edges with no source step) and from prior steps' outputs
// (edges whose FromStep is already resolved, given topological order).
func (e *Engine) gatherStepInputs(plan *pkgload.ExecutionPlan, stepIx pkgload.StepIx, jobInputs []job.IOValue, stepOutputs map[pkgload.StepIx][]job.IOValue) []job.IOValue {
	byID := make(map[string]job.IOValue, len(jobInputs))
	for _, in := range jobInputs {
		byID[in.ID] = in
	}

	var inputs []job.IOValue
	for _, edge := range plan.Edges {
		if edge.ToStep != stepIx {
			continue
		}
		var value job.IOValue
		if edge.FromStep == -1 {
			src, ok := byID[edge.FromName]
			if !ok {
				continue
			}
			value = src
		} else {
			outs := stepOutputs[edge.FromStep]
			var found bool
			for _, o := range outs {
				if o.ID == edge.FromName {
					value = o
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		value.ID = edge.ToName
		inputs = append(inputs, value)
	}

	// A synthetic single-step plan (CommandLineTool application) has no
	// edges at all; every job input applies directly.
	if len(plan.Steps) == 1 && len(plan.Edges) == 0 {
		inputs = append(inputs, jobInputs...)
	}

	return inputs
}

func expectedOutputIDs(pkg *pkgload.Package) []string {
	ids := make([]string, 0, len(pkg.Outputs))
	for _, o := range pkg.Outputs {
		ids = append(ids, o.ID)
	}
	return ids
}

// stepDependencies builds the adapter.Dependencies for one step,
// resolving the EMS-mode ADES target from the data-source registry when
// a step's inputs match a configured source, falling back to
// cfg.ADESEndpoint otherwise (spec.md §4.3's resolver feeding §4.7 step
// 4's adapter choice).
func (e *Engine) stepDependencies(step pkgload.Step, inputs []job.IOValue) adapter.Dependencies {
	deps := adapter.Dependencies{
		Runner:     e.runner,
		WorkDir:    filepath.Join(e.cfg.WorkDir, "containers", step.Name),
		PullPolicy: container.PullIfNotPresent,
		HTTPClient: e.httpClient,
		ADESEndpoint: e.cfg.ADESEndpoint,
	}

	if e.datasources == nil {
		return deps
	}
	for _, in := range inputs {
		if in.Href == "" {
			continue
		}
		if src, err := e.datasources.ResolveByURL(in.Href); err == nil {
			if ades, err := e.datasources.ResolveToADES(src.Name); err == nil && ades != "" {
				deps.ADESEndpoint = ades
				break
			}
		}
	}
	return deps
}

// finalizeFailure records a step/job failure, or, if the caller asked
// to dismiss this job (Dismiss was called and canceled its context
// rather than the engine shutting down), records a dismissal instead
// (spec.md §5's cancellation path: "aborts any in-flight HTTP request
// via context cancellation and sets status dismissed").
func (e *Engine) finalizeFailure(ctx context.Context, jobID uuid.UUID, j *job.Job, cause error, log *zap.Logger) {
	if e.wasDismissed(jobID) {
		log.Info("job dismissed", zap.Error(cause))
		j.SaveLog("INFO", "job cancelled by user request")
		if err := j.SetStatus(job.StatusDismissed, "dismissed"); err != nil {
			log.Error("failed to transition dismissed job", zap.Error(err))
		} else {
			metrics.JobStatusTransitionsTotal.WithLabelValues(string(job.StatusDismissed)).Inc()
			metrics.JobsInFlight.WithLabelValues(string(job.StatusRunning)).Dec()
		}
		if err := e.jobs.UpdateJob(ctx, j); err != nil {
			log.Error("failed to persist job dismissal", zap.Error(err))
		}
		e.persist(j)
		return
	}

	log.Error("job failed", zap.Error(cause))
	_ = j.AddException(job.Exception{Code: "NoApplicableCode", Text: cause.Error()})
	j.SaveLog("ERROR", cause.Error())
	if e.ctx.Err() != nil {
		// Engine is shutting down and this job was not individually
		// dismissed; leave the record for a future worker run rather
		// than recording a false failure.
		return
	}
	metrics.JobStatusTransitionsTotal.WithLabelValues(string(j.Status)).Inc()
	metrics.JobsInFlight.WithLabelValues(string(job.StatusRunning)).Dec()
	if err := e.jobs.UpdateJob(ctx, j); err != nil {
		log.Error("failed to persist job failure", zap.Error(err))
	}
	e.persist(j)
}

// adapterLabel names the adapter kind hooks resolved to, for the step
// dispatch metrics' "adapter" label.
func adapterLabel(hooks adapter.Hooks) string {
	switch hooks.(type) {
	case *adapter.APIProcessesAdapter:
		return "api_processes"
	case *adapter.WPS1Adapter:
		return "wps1"
	case *adapter.LocalContainerAdapter:
		return "local_container"
	default:
		return "unknown"
	}
}
