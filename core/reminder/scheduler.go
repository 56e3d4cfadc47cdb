package reminder

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/edulens/core"
)

// Scheduler runs reminder passes on a cron schedule. A pass still running when the next tick fires
// makes that tick a no-op.
type Scheduler struct {
	cron     *cron.Cron
	proc     *Processor
	logger   core.Logger
	schedule string
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewScheduler(proc *Processor, schedule string, logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		proc:     proc,
		logger:   logger,
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the job, starts the scheduler and runs a first pass right away.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("scheduling reminders with %q", s.schedule))
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("reminder scheduler started: %s", s.schedule))

	// through the job wrapper, so the first pass is also skipped by a concurrent tick
	go s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) run() {
	sum, err := s.proc.RunOnce(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("reminder pass failed", err)
		}
		return
	}
	if sum.Skipped {
		s.logger.Debug("reminder pass skipped: lock held elsewhere")
		return
	}
	s.logger.Info("reminder pass done", map[string]interface{}{"claimed": sum.Claimed, "sent": sum.Sent, "failed": sum.Failed})
}

// cronLogger adapts a core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvFields(keysAndValues))
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
