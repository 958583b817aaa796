// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// Job is one unit of scheduled work. Name must be unique within a Runner.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Runner fires each job on its schedule. A job whose previous run is still
// in progress is skipped rather than stacked.
type Runner struct {
	cron    *cron.Cron
	jobs    []Job
	running mapset.Set[string]
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRunner(jobs ...Job) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:    cron.New(),
		jobs:    jobs,
		running: mapset.NewSet[string](),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers every job and starts the scheduler in its own goroutine.
func (r *Runner) Start() error {
	for _, job := range r.jobs {
		if err := r.cron.AddFunc(job.Schedule(), func() { r.run(job) }); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"job": job.Name(), "schedule": job.Schedule()}).Debug("job scheduled")
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and cancels any run in progress.
func (r *Runner) Stop() {
	logrus.Info("stopping scheduled jobs")
	r.cron.Stop()
	r.cancel()
}

func (r *Runner) run(job Job) {
	if !r.running.Add(job.Name()) {
		logrus.WithField("job", job.Name()).Warn("job is still running, skipping")
		return
	}
	defer r.running.Remove(job.Name())

	log := logrus.WithField("job", job.Name())
	if err := job.Run(r.ctx); err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.Debug("job finished")
}
