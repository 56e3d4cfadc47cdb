// Package reminder sends the due deadline reminders, once per pass, on a cron schedule.
package reminder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/edulens/core"
	"github.com/trezcool/edulens/core/deadline"
	"github.com/trezcool/edulens/core/notification"
)

const (
	lockKey          = "edulens:lock:reminders"
	maxBackoff       = 24 * time.Hour
	maxBatches       = 100
	defaultBatchSize = 100
)

type (
	// Store is the part of deadline.Repository a pass needs.
	Store interface {
		ClaimDueReminders(ctx context.Context, now time.Time, limit, maxAttempts int, lease time.Duration) ([]deadline.DueReminder, error)
		MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error
		MarkReminderFailed(ctx context.Context, id string, errMsg string, retryAt time.Time) error
	}

	Notifier interface {
		Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error
	}

	Metrics interface {
		ObserveReminderPass(claimed, sent, failed int, took time.Duration)
	}

	// Summary describes one pass.
	Summary struct {
		Claimed int  `json:"claimed"`
		Sent    int  `json:"sent"`
		Failed  int  `json:"failed"`
		Skipped bool `json:"skipped"` // another pass held the lock
	}

	Processor struct {
		store    Store
		notifier Notifier
		locker   core.Locker
		metrics  Metrics
		conf     core.RemindersConfig
		logger   core.Logger
	}
)

// NewProcessor creates a Processor. locker and metrics are optional.
func NewProcessor(store Store, notifier Notifier, locker core.Locker, metrics Metrics, conf *core.Config, logger core.Logger) *Processor {
	rc := conf.Reminders
	if rc.BatchSize < 1 {
		rc.BatchSize = defaultBatchSize
	}
	return &Processor{
		store:    store,
		notifier: notifier,
		locker:   locker,
		metrics:  metrics,
		conf:     rc,
		logger:   logger,
	}
}

// RunOnce runs a single pass: it claims due reminders batch by batch and notifies their owners.
func (p *Processor) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()

	if p.locker != nil {
		lock, err := p.locker.Obtain(ctx, lockKey, p.conf.LockTTL)
		if err != nil {
			if err == core.ErrLockNotObtained {
				sum.Skipped = true
				return sum, nil
			}
			return sum, errors.Wrap(err, "obtaining reminders lock")
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				p.logger.Warn("failed to release reminders lock", errors.Wrap(err, "releasing lock"))
			}
		}()
	}

	now := core.NowFunc()
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		batch, err := p.store.ClaimDueReminders(ctx, now, p.conf.BatchSize, p.conf.MaxAttempts, p.conf.LockTTL)
		if err != nil {
			return sum, errors.Wrap(err, "claiming due reminders")
		}
		sum.Claimed += len(batch)
		for _, rem := range batch {
			if err := p.send(ctx, rem); err != nil {
				sum.Failed++
				p.fail(ctx, rem, err)
				continue
			}
			if err := p.store.MarkReminderSent(ctx, rem.ID, core.NowFunc()); err != nil {
				// the lease expires and the reminder is retried
				sum.Failed++
				p.logger.Error("failed to mark reminder as sent", errors.Wrap(err, "marking reminder "+rem.ID))
				continue
			}
			sum.Sent++
		}
		if len(batch) == 0 || len(batch) < p.conf.BatchSize {
			break
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveReminderPass(sum.Claimed, sum.Sent, sum.Failed, time.Since(start))
	}
	return sum, nil
}

func (p *Processor) send(ctx context.Context, rem deadline.DueReminder) error {
	title := "Reminder: " + rem.Title
	data := map[string]interface{}{
		"deadline_id": rem.DeadlineID,
		"due_at":      rem.DueAt,
		"link":        "/deadlines/" + rem.DeadlineID,
	}
	if rem.ApplicationID != nil {
		data["application_id"] = *rem.ApplicationID
	}
	return p.notifier.Notify(ctx, rem.UserID, notification.TypeDeadlineReminder, title, reminderMessage(rem, core.NowFunc()), data)
}

func (p *Processor) fail(ctx context.Context, rem deadline.DueReminder, cause error) {
	retryAt := core.NowFunc().Add(Backoff(p.conf.RetryBackoff, rem.Attempts))
	if rem.Attempts >= p.conf.MaxAttempts {
		p.logger.Error(fmt.Sprintf("giving up on reminder %s after %d attempts", rem.ID, rem.Attempts), cause)
	}
	if err := p.store.MarkReminderFailed(ctx, rem.ID, core.Truncate(cause.Error(), 500), retryAt); err != nil {
		p.logger.Error("failed to mark reminder as failed", errors.Wrap(err, "marking reminder "+rem.ID))
	}
}

// Backoff returns the delay before retrying a reminder attempted `attempts` times: base*2^(attempts-1), capped to 24h.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	exp := math.Pow(2, float64(attempts-1))
	if float64(base)*exp >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(float64(base) * exp)
}

func reminderMessage(rem deadline.DueReminder, now time.Time) string {
	left := rem.DueAt.Sub(now)
	due := rem.DueAt.Format("Mon, 02 Jan 2006 15:04 MST")
	switch {
	case left <= 0:
		return fmt.Sprintf("%s is due now (%s).", rem.Title, due)
	case left >= 48*time.Hour:
		return fmt.Sprintf("%s is due in %d days (%s).", rem.Title, int(left.Hours()/24), due)
	case left >= 2*time.Hour:
		return fmt.Sprintf("%s is due in %d hours (%s).", rem.Title, int(left.Hours()), due)
	default:
		return fmt.Sprintf("%s is due in less than 2 hours (%s).", rem.Title, due)
	}
}
