package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/metrics"
	"github.com/samims/tradenotify/internal/model"
	"github.com/samims/tradenotify/internal/storage"
	"github.com/samims/tradenotify/pkg/tracing"
)

const bookkeepingTimeout = 5 * time.Second

// DeliveryService handles the actual delivery of a notification over its channel.
// Errors wrapped with appErr.Permanent are never retried.
type DeliveryService interface {
	Deliver(ctx context.Context, n *model.QueueEntry) error
}

// DeliveryWorker drains due notification queue rows
type DeliveryWorker interface {
	// RunOnce claims one batch of due rows and attempts each of them once.
	RunOnce(ctx context.Context) (DeliverySummary, error)
}

type WorkerConfig struct {
	// Owner identifies this worker in claimed_by.
	Owner          string
	BatchSize      int
	Concurrency    int
	AttemptTimeout time.Duration
	// Lease is how long a claimed row stays invisible to other workers; it must outlast AttemptTimeout.
	Lease time.Duration
}

// DeliverySummary counts what one RunOnce did with the rows it claimed.
type DeliverySummary struct {
	Claimed      int `json:"claimed"`
	Sent         int `json:"sent"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
	Suppressed   int `json:"suppressed"`
	LeaseLost    int `json:"lease_lost"`
}

type outcome string

const (
	outcomeSent       outcome = "sent"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
	outcomeSuppressed outcome = "suppressed"
	outcomeLeaseLost  outcome = "lease_lost"
)

func (s *DeliverySummary) add(o outcome) {
	switch o {
	case outcomeSent:
		s.Sent++
	case outcomeRetry:
		s.Retried++
	case outcomeDeadLetter:
		s.DeadLettered++
	case outcomeSuppressed:
		s.Suppressed++
	case outcomeLeaseLost:
		s.LeaseLost++
	}
}

type deliveryWorker struct {
	queue    storage.QueueStorage
	prefs    PreferenceResolver
	delivery DeliveryService
	backoff  *Backoff
	tracer   tracing.TracerInterface
	cfg      WorkerConfig
	now      func() time.Time
	l        *slog.Logger
}

func NewDeliveryWorker(
	queue storage.QueueStorage,
	prefs PreferenceResolver,
	delivery DeliveryService,
	backoff *Backoff,
	tracer tracing.TracerInterface,
	cfg WorkerConfig,
	logger *slog.Logger,
) DeliveryWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &deliveryWorker{
		queue:    queue,
		prefs:    prefs,
		delivery: delivery,
		backoff:  backoff,
		tracer:   tracer,
		cfg:      cfg,
		now:      time.Now,
		l:        logger.With("layer", "service", "component", "deliveryWorker", "owner", cfg.Owner),
	}
}

func (w *deliveryWorker) RunOnce(ctx context.Context) (DeliverySummary, error) {
	var summary DeliverySummary
	now := w.now()
	entries, err := w.queue.ClaimDue(ctx, w.cfg.Owner, now, now.Add(w.cfg.Lease), w.cfg.BatchSize)
	if err != nil {
		w.l.ErrorContext(ctx, "Error claiming due notifications", slog.Any("error", err))
		return summary, err
	}
	summary.Claimed = len(entries)
	if len(entries) == 0 {
		w.l.DebugContext(ctx, "No due notifications")
		return summary, nil
	}
	w.l.InfoContext(ctx, "Processing batch of due notifications", slog.Int("count", len(entries)))

	// One failing row must not cancel its siblings, so the group has no shared context.
	var (
		eg  errgroup.Group
		mu  sync.Mutex
		sem = make(chan struct{}, w.cfg.Concurrency)
	)
	for i := range entries {
		entry := &entries[i]
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			o, err := w.process(ctx, entry)
			mu.Lock()
			summary.add(o)
			mu.Unlock()
			return err
		})
	}
	err = eg.Wait()

	w.l.InfoContext(ctx, "Notification batch finished",
		slog.Int("sent", summary.Sent), slog.Int("retried", summary.Retried),
		slog.Int("dead_lettered", summary.DeadLettered), slog.Int("suppressed", summary.Suppressed),
		slog.Int("lease_lost", summary.LeaseLost))
	return summary, err
}

// process runs one attempt for a claimed row and records the resulting transition.
// The returned error is reserved for bookkeeping failures; delivery failures are recorded on the row.
func (w *deliveryWorker) process(ctx context.Context, n *model.QueueEntry) (outcome, error) {
	ctx, span := w.tracer.StartInternalSpan(ctx, "DeliveryWorker.process")
	defer span.End()
	w.tracer.AddDeliveryAttributes(span, n.ID, string(n.Channel), n.AttemptCount+1)

	if n.Channel != model.ChannelSystemMessage {
		pref, err := w.prefs.ResolvePreferences(ctx, n.RecipientID, n.Category)
		switch {
		case appErr.IsNotFound(err):
			return w.fail(ctx, n, appErr.Permanent(err))
		case err != nil:
			return w.fail(ctx, n, fmt.Errorf("resolve preferences: %w", err))
		case !pref.EmailEnabled:
			return w.suppress(ctx, n, "recipient disabled notifications")
		case !pref.CategoryEnabled:
			return w.suppress(ctx, n, fmt.Sprintf("recipient disabled %s", n.Category))
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	start := time.Now()
	err := w.delivery.Deliver(attemptCtx, n)
	cancel()
	metrics.DeliveryDuration.WithLabelValues(string(n.Channel)).Observe(time.Since(start).Seconds())

	if err != nil {
		w.tracer.RecordError(span, err)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("delivery timed out after %s: %w", w.cfg.AttemptTimeout, err)
		}
		return w.fail(ctx, n, err)
	}

	bctx, bcancel := w.bookkeepingContext(ctx)
	defer bcancel()
	if err := w.queue.MarkSent(bctx, n.ID, n.ClaimToken, w.now()); err != nil {
		return w.markFailed(ctx, n, err)
	}
	w.record(n, outcomeSent)
	w.l.InfoContext(ctx, "Notification delivered",
		slog.String("id", n.ID), slog.String("channel", string(n.Channel)), slog.Duration("duration", time.Since(start)))
	return outcomeSent, nil
}

// fail applies the retry policy: a permanent error or the last allowed attempt dead-letters the row,
// anything else schedules a retry with backoff.
func (w *deliveryWorker) fail(ctx context.Context, n *model.QueueEntry, cause error) (outcome, error) {
	attempts := n.AttemptCount + 1
	at := w.now()
	bctx, cancel := w.bookkeepingContext(ctx)
	defer cancel()

	if appErr.IsPermanent(cause) || attempts >= n.MaxAttempts {
		if err := w.queue.MarkDeadLetter(bctx, n.ID, n.ClaimToken, attempts, cause.Error(), at); err != nil {
			return w.markFailed(ctx, n, err)
		}
		w.record(n, outcomeDeadLetter)
		w.l.ErrorContext(ctx, "Notification dead-lettered",
			slog.String("id", n.ID), slog.Int("attempts", attempts),
			slog.Bool("permanent", appErr.IsPermanent(cause)), slog.Any("error", cause))
		return outcomeDeadLetter, nil
	}

	next := at.Add(w.backoff.Delay(n.AttemptCount))
	if err := w.queue.MarkRetry(bctx, n.ID, n.ClaimToken, attempts, next, cause.Error(), at); err != nil {
		return w.markFailed(ctx, n, err)
	}
	w.record(n, outcomeRetry)
	w.l.WarnContext(ctx, "Notification delivery failed, retrying",
		slog.String("id", n.ID), slog.Int("attempts", attempts), slog.Time("next_attempt_at", next), slog.Any("error", cause))
	return outcomeRetry, nil
}

func (w *deliveryWorker) suppress(ctx context.Context, n *model.QueueEntry, reason string) (outcome, error) {
	bctx, cancel := w.bookkeepingContext(ctx)
	defer cancel()
	if err := w.queue.MarkSuppressed(bctx, n.ID, n.ClaimToken, reason, w.now()); err != nil {
		return w.markFailed(ctx, n, err)
	}
	w.record(n, outcomeSuppressed)
	w.l.InfoContext(ctx, "Notification suppressed", slog.String("id", n.ID), slog.String("reason", reason))
	return outcomeSuppressed, nil
}

// markFailed handles an error from a state transition. A lost lease means another worker owns
// the row now, which is expected after a slow attempt and is not reported as an error.
func (w *deliveryWorker) markFailed(ctx context.Context, n *model.QueueEntry, err error) (outcome, error) {
	if errors.Is(err, appErr.ErrLeaseLost) {
		w.record(n, outcomeLeaseLost)
		w.l.WarnContext(ctx, "Lease lost before the outcome was recorded", slog.String("id", n.ID))
		return outcomeLeaseLost, nil
	}
	w.l.ErrorContext(ctx, "Failed to record delivery outcome", slog.String("id", n.ID), slog.Any("error", err))
	return "", fmt.Errorf("record outcome for %s: %w", n.ID, err)
}

// bookkeepingContext outlives cancellation of ctx, so an attempt that finished during shutdown
// still gets its outcome written.
func (w *deliveryWorker) bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (w *deliveryWorker) record(n *model.QueueEntry, o outcome) {
	metrics.DeliveryOutcomes.WithLabelValues(string(n.Channel), string(o)).Inc()
}
