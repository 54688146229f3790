// Package grid runs the worker loop: claim a row, train it, journal the
// result, mark the row done, and repeat until no eligible row is left.
package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/gridrunner/internal/claim"
	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/internal/runner"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
	"github.com/kiranshivaraju/gridrunner/pkg/taskparams"
)

// Task outcomes reported to the Observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// State is the coordinator's position in its loop.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateRunning    State = "running"
	StateJournaling State = "journaling"
	StateCompleting State = "completing"
	StateExhausted  State = "exhausted"
	StateStopped    State = "stopped"
	StateAborted    State = "aborted"
)

// Claimer hands out rows. *claim.Claimer implements it.
type Claimer interface {
	Claim(ctx context.Context, vet claim.VetFunc) (*models.Task, error)
	Worker() string
}

// Runner trains one model. *runner.Runner implements it.
type Runner interface {
	Run(ctx context.Context, p models.Params) (runner.Artifacts, error)
}

// Journal records completed jobs. *journal.Journal implements it.
type Journal interface {
	Append(rec models.ResultRecord) error
}

// Observer receives progress events. *metrics.Metrics implements it.
type Observer interface {
	TaskFinished(outcome string)
	JobFinished(d time.Duration)
	RowStarted(row int)
}

// Summary counts what happened during one Run.
type Summary struct {
	Claimed       int `json:"claimed"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	JournalErrors int `json:"journal_errors"`
}

// Snapshot is a point-in-time copy of the run state.
type Snapshot struct {
	RunID         string    `json:"run_id"`
	Worker        string    `json:"worker"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	CurrentRow    int       `json:"current_row,omitempty"`
	CurrentParams string    `json:"current_params,omitempty"`
	Summary       Summary   `json:"summary"`
}

// Options wires a Coordinator. Table, Claimer, Runner and Journal are required.
type Options struct {
	Table    queue.Table
	Claimer  Claimer
	Runner   Runner
	Journal  Journal
	Corpus   string
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Coordinator owns all mutable state of a worker run. Run is sequential;
// Snapshot may be called from any goroutine.
type Coordinator struct {
	table    queue.Table
	claimer  Claimer
	runner   Runner
	journal  Journal
	corpus   string
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state runState
}

// runState is reset at the start of every Run.
type runState struct {
	snap Snapshot
	// ineligible holds rows whose params failed to parse. They are never
	// claimed again during the run.
	ineligible map[int]error
	logger     *slog.Logger
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		table:    opts.Table,
		claimer:  opts.Claimer,
		runner:   opts.Runner,
		journal:  opts.Journal,
		corpus:   opts.Corpus,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.state.snap = Snapshot{Worker: c.claimer.Worker(), State: StateIdle}
	return c
}

// Snapshot returns the current run state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snap
}

// Run loops until the table has no eligible unset row, the context is
// cancelled, or the queue fails. Per-task failures are logged and counted but
// never end the run. A job in progress always runs to completion; the
// context is only checked between tasks.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runID := newRunID()
	c.mu.Lock()
	c.state = runState{
		snap: Snapshot{
			RunID:     runID,
			Worker:    c.claimer.Worker(),
			State:     StatePolling,
			StartedAt: c.now().UTC(),
		},
		ineligible: make(map[int]error),
		logger:     c.logger.With("run_id", runID, "worker", c.claimer.Worker()),
	}
	logger := c.state.logger
	c.mu.Unlock()

	logger.InfoContext(ctx, "grid run started")

	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateStopped, 0, "")
			summary := c.Snapshot().Summary
			logger.WarnContext(ctx, "grid run interrupted", "summary", summary)
			return summary, err
		}

		c.setState(StatePolling, 0, "")
		task, err := c.claimer.Claim(ctx, c.vet)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				continue
			}
			c.setState(StateAborted, 0, "")
			logger.ErrorContext(ctx, "queue failure, aborting run", "error", err)
			return c.Snapshot().Summary, fmt.Errorf("claiming task: %w", err)
		}
		if task == nil {
			c.setState(StateExhausted, 0, "")
			summary := c.Snapshot().Summary
			logger.InfoContext(ctx, "no eligible rows left, grid run finished", "summary", summary)
			return summary, nil
		}

		c.count(func(s *Summary) { s.Claimed++ })
		if err := c.process(ctx, logger.With("row", task.Row), *task); err != nil {
			c.setState(StateAborted, 0, "")
			logger.ErrorContext(ctx, "queue failure, aborting run", "row", task.Row, "error", err)
			return c.Snapshot().Summary, err
		}
	}
}

// vet runs inside Claim for every unset row, before anything is written.
func (c *Coordinator) vet(task models.Task) error {
	c.mu.Lock()
	if err, seen := c.state.ineligible[task.Row]; seen {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if _, err := taskparams.ParseTask(task); err != nil {
		c.mu.Lock()
		c.state.ineligible[task.Row] = err
		c.state.snap.Summary.Skipped++
		logger := c.state.logger
		c.mu.Unlock()

		attrs := []any{"row", task.Row, "params", task.Params, "error", err}
		var pe *taskparams.ParseError
		if errors.As(err, &pe) {
			attrs = append(attrs, "rule", pe.Rule.String())
		}
		logger.Warn("skipping row with malformed params", attrs...)
		c.observer.TaskFinished(OutcomeSkipped)
		return err
	}
	return nil
}

// process runs one claimed task. Only queue errors are returned; job and
// journal failures are logged and counted.
func (c *Coordinator) process(ctx context.Context, logger *slog.Logger, task models.Task) error {
	params, err := taskparams.ParseTask(task)
	if err != nil {
		c.count(func(s *Summary) { s.Failed++ })
		logger.ErrorContext(ctx, "claimed row has malformed params, leaving it Processing", "error", err)
		c.observer.TaskFinished(OutcomeFailed)
		return nil
	}

	c.setState(StateRunning, task.Row, task.Params)
	c.observer.RowStarted(task.Row)
	defer c.observer.RowStarted(0)

	logger.InfoContext(ctx, "task claimed", "params", task.Params, "description", task.Description)

	art, err := c.runJob(ctx, params)
	if err != nil {
		c.count(func(s *Summary) { s.Failed++ })
		attrs := []any{"params", task.Params, "error", err}
		var execErr *runner.ExecError
		if errors.As(err, &execErr) {
			attrs = append(attrs, "exit_code", execErr.ExitCode)
		}
		logger.ErrorContext(ctx, "training failed, row left Processing", attrs...)
		c.observer.TaskFinished(OutcomeFailed)
		return nil
	}
	c.observer.JobFinished(art.Elapsed)

	c.setState(StateJournaling, task.Row, task.Params)
	rec := models.ResultRecord{
		Vectors: art.Model,
		Corpus:  c.corpus,
		Params:  params,
		DT:      models.FormatTimestamp(c.now()),
	}
	if err := c.journal.Append(rec); err != nil {
		c.count(func(s *Summary) { s.JournalErrors++ })
		logger.ErrorContext(ctx, "could not journal result, artifact kept on disk", "model", art.Model, "error", err)
	}

	// The job already ran; record it even if shutdown was requested meanwhile.
	c.setState(StateCompleting, task.Row, task.Params)
	if err := c.complete(context.WithoutCancel(ctx), task.Row); err != nil {
		return fmt.Errorf("completing row %d: %w", task.Row, err)
	}

	c.count(func(s *Summary) { s.Succeeded++ })
	logger.InfoContext(ctx, "task computed", "model", art.Model)
	c.observer.TaskFinished(OutcomeSucceeded)
	return nil
}

// runJob converts a panic in the runner into a job failure so one bad task
// cannot take the worker down.
func (c *Coordinator) runJob(ctx context.Context, params models.Params) (art runner.Artifacts, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", runner.ErrJobExecutionFailed, r)
		}
	}()
	return c.runner.Run(ctx, params)
}

func (c *Coordinator) complete(ctx context.Context, row int) error {
	if err := c.table.WriteCell(ctx, row, queue.ColStatus, models.StatusComputed); err != nil {
		return err
	}
	return c.table.WriteCell(ctx, row, queue.ColTimestamp, models.FormatTimestamp(c.now()))
}

func (c *Coordinator) setState(s State, row int, params string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.snap.State = s
	c.state.snap.CurrentRow = row
	c.state.snap.CurrentParams = params
}

func (c *Coordinator) count(f func(*Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.state.snap.Summary)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type nopObserver struct{}

func (nopObserver) TaskFinished(string) {}

func (nopObserver) JobFinished(time.Duration) {}

func (nopObserver) RowStarted(int) {}
