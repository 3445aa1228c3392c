package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/notify"
	"golang.org/x/sync/errgroup"
)

var now = time.Now

// Runner executes tasks under a single error policy.
type Runner struct {
	logger   logging.Logger
	notifier notify.Notifier
	policy   siteerrors.Policy
	recorder Recorder
}

// NewRunner creates a runner. A nil notifier discards notifications.
func NewRunner(logger logging.Logger, notifier notify.Notifier, policy siteerrors.Policy) *Runner {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Runner{
		logger:   logger,
		notifier: notifier,
		policy:   policy,
		recorder: NoopRecorder{},
	}
}

// WithRecorder sets the metrics recorder.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// Policy returns the runner's error policy.
func (r *Runner) Policy() siteerrors.Policy {
	return r.policy
}

// RunNamed looks a task up and runs it.
func (r *Runner) RunNamed(ctx context.Context, reg *Registry, name string) error {
	t, ok := reg.Get(name)
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return r.Run(ctx, t)
}

// Run executes t. Recoverable errors are notified and swallowed; fatal errors
// are returned. A canceled context is returned as is.
func (r *Runner) Run(ctx context.Context, t *Task) error {
	switch t.kind {
	case kindSeries:
		return r.runSeries(ctx, t)
	case kindParallel:
		return r.runParallel(ctx, t)
	default:
		return r.runLeaf(ctx, t)
	}
}

func (r *Runner) runSeries(ctx context.Context, t *Task) error {
	for _, child := range t.children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Run(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// runParallel starts every child at once. The first child to return an error
// cancels the context of its siblings, so long-running children such as the
// watcher stop too; the first error is returned once all children are done.
func (r *Runner) runParallel(ctx context.Context, t *Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, child := range t.children {
		g.Go(func() error {
			return r.Run(gctx, child)
		})
	}
	return g.Wait()
}

func (r *Runner) runLeaf(ctx context.Context, t *Task) error {
	log := r.logger.WithComponent(t.Name)
	perf := logging.StartOperation(log, t.Name)
	log.Debug(ctx, "Starting task")

	err := t.run(ctx)
	var se *siteerrors.SiteError
	if errors.As(err, &se) && se.Task == "" {
		se.WithTask(t.Name)
	}

	switch r.policy.Classify(err) {
	case siteerrors.ClassNone:
		if err != nil {
			r.recorder.ObserveTask(t.Name, perf.Elapsed(), OutcomeCanceled)
			log.Info(ctx, "Task stopped")
			return err
		}
		r.recorder.ObserveTask(t.Name, perf.Elapsed(), OutcomeSuccess)
		perf.End(ctx)
		return nil

	case siteerrors.ClassRecoverable:
		r.recorder.ObserveTask(t.Name, perf.Elapsed(), OutcomeRecoverable)
		log.Warn(ctx, err, "Task failed, pipeline continues")
		r.notifier.Notify(ctx, notify.Notification{
			Title:   notificationTitle(t.Name, err),
			Message: err.Error(),
			Task:    t.Name,
			Time:    now(),
		})
		return nil

	default:
		r.recorder.ObserveTask(t.Name, perf.Elapsed(), OutcomeFatal)
		perf.EndWithError(ctx, err)
		return &TaskError{Task: t.Name, Err: err}
	}
}

// TaskError is returned for a fatal failure of a leaf task.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	var se *siteerrors.SiteError
	if errors.As(e.Err, &se) && se.Task == e.Task {
		return e.Err.Error()
	}
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// FailedTask returns the name of the leaf task behind err, if any.
func FailedTask(err error) (string, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Task, true
	}
	return "", false
}

func notificationTitle(task string, err error) string {
	return fmt.Sprintf("%s: %s error", task, siteerrors.TypeOf(err))
}
