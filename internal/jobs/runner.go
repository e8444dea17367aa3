// Package jobs holds the periodic finance jobs and the single-flight runner that drives them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/storage"
)

// Job scans for due rows and mutates each one at most once per run.
type Job interface {
	Name() string
	Run(ctx context.Context) (Summary, error)
}

// ItemResult is the outcome for one row. A row that was already handled is neither applied nor failed.
type ItemResult struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
	Err     error  `json:"-"`
}

// Summary accumulates per-row results so one bad row is reported without stopping the run.
type Summary struct {
	Job      string       `json:"job"`
	Items    []ItemResult `json:"items"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

func (s *Summary) Add(id string, applied bool, err error) {
	s.Items = append(s.Items, ItemResult{ID: id, Applied: applied, Err: err})
	result := "skipped"
	switch {
	case err != nil:
		result = "failed"
	case applied:
		result = "applied"
	}
	metrics.JobItems.WithLabelValues(s.Job, result).Inc()
}

func (s Summary) Applied() int {
	n := 0
	for _, it := range s.Items {
		if it.Applied {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int {
	n := 0
	for _, it := range s.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

func (s Summary) Skipped() int {
	return len(s.Items) - s.Applied() - s.Failed()
}

// Err joins the per-row errors, or returns nil when every row succeeded.
func (s Summary) Err() error {
	var errs []error
	for _, it := range s.Items {
		if it.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.ID, it.Err))
		}
	}
	return errors.Join(errs...)
}

// Runner makes sure a job runs at most once at a time: in process through a mutex per job,
// across processes through the storage locker.
type Runner struct {
	locker storage.Locker
	mu     sync.Mutex
	active map[string]*sync.Mutex
	log    *slog.Logger
}

func NewRunner(locker storage.Locker, log *slog.Logger) *Runner {
	return &Runner{
		locker: locker,
		active: make(map[string]*sync.Mutex),
		log:    log.With("layer", "jobs", "component", "runner"),
	}
}

func (r *Runner) jobMutex(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.active[name]
	if !ok {
		m = &sync.Mutex{}
		r.active[name] = m
	}
	return m
}

// Run executes job unless another run of it holds the lock, in which case it returns appErr.ErrJobBusy.
// The returned error covers the run as a whole; per-row failures are reported through Summary.Err.
func (r *Runner) Run(ctx context.Context, job Job) (Summary, error) {
	name := job.Name()
	m := r.jobMutex(name)
	if !m.TryLock() {
		metrics.JobRuns.WithLabelValues(name, "busy").Inc()
		return Summary{Job: name}, fmt.Errorf("%s: %w", name, appErr.ErrJobBusy)
	}
	defer m.Unlock()

	release, ok, err := r.locker.TryLock(ctx, name)
	if err != nil {
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		return Summary{Job: name}, err
	}
	if !ok {
		metrics.JobRuns.WithLabelValues(name, "busy").Inc()
		r.log.InfoContext(ctx, "Job already running elsewhere", slog.String("job", name))
		return Summary{Job: name}, fmt.Errorf("%s: %w", name, appErr.ErrJobBusy)
	}
	defer release()

	r.log.InfoContext(ctx, "Job started", slog.String("job", name))
	summary, err := job.Run(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		r.log.ErrorContext(ctx, "Job failed", slog.String("job", name), slog.Any("error", err))
		return summary, err
	}

	result := "ok"
	if summary.Failed() > 0 {
		result = "partial"
	}
	metrics.JobRuns.WithLabelValues(name, result).Inc()
	r.log.InfoContext(ctx, "Job finished",
		slog.String("job", name), slog.Int("applied", summary.Applied()), slog.Int("skipped", summary.Skipped()),
		slog.Int("failed", summary.Failed()), slog.Duration("took", summary.Finished.Sub(summary.Started)))
	if perItem := summary.Err(); perItem != nil {
		r.log.WarnContext(ctx, "Job finished with failed rows", slog.String("job", name), slog.Any("error", perItem))
	}
	return summary, nil
}
