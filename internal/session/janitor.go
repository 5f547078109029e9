package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/diewo77/ejaar/internal/metrics"
)

// Job is a housekeeping task run by the Janitor.
type Job func(ctx context.Context) error

// Janitor runs housekeeping jobs on cron schedules.
type Janitor struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewJanitor(log logrus.FieldLogger) *Janitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(log)),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return &Janitor{cron: c, log: log, timeout: time.Minute}
}

// Add runs job on a cron schedule, e.g. "@every 15m" or "0 3 * * *".
func (j *Janitor) Add(schedule, name string, job Job) error {
	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		start := time.Now()
		if err := job(ctx); err != nil {
			j.log.WithError(err).WithField("job", name).Error("janitor job failed")
			return
		}
		j.log.WithFields(logrus.Fields{"job": name, "duration_ms": time.Since(start).Milliseconds()}).Debug("janitor job done")
	})
	if err != nil {
		return fmt.Errorf("janitor: schedule %s %q: %w", name, schedule, err)
	}
	return nil
}

// Len returns the number of scheduled jobs.
func (j *Janitor) Len() int { return len(j.cron.Entries()) }

func (j *Janitor) Start() { j.cron.Start() }

// Stop stops scheduling and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// PurgeJob deletes expired sessions and records how many went away.
func PurgeJob(m *Manager, log logrus.FieldLogger) Job {
	return func(ctx context.Context) error {
		n, err := m.Purge(ctx)
		if err != nil {
			return err
		}
		metrics.RecordSessionsPurged(n)
		if n > 0 {
			log.WithField("count", n).Info("expired sessions purged")
		}
		return nil
	}
}
