package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of background work run on a schedule
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobScheduler runs registered jobs on cron schedules. Jobs share one
// logrus logger so background activity stays distinguishable from request
// logs in aggregation.
type JobScheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	ids    map[string]cron.EntryID
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() *JobScheduler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		ids:    make(map[string]cron.EntryID),
	}
}

// Logger returns the shared background-job logger
func (s *JobScheduler) Logger() *logrus.Logger {
	return s.logger
}

// RegisterEvery schedules a job at a fixed interval
func (s *JobScheduler) RegisterEvery(interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.runJob(job)
	}))
	s.ids[job.Name()] = id

	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"interval": interval.String(),
	}).Info("Registered job")
}

func (s *JobScheduler) runJob(job Job) {
	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		s.logger.WithFields(logrus.Fields{
			"job":   job.Name(),
			"error": err.Error(),
		}).Error("Job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"duration": time.Since(start).String(),
	}).Info("Job completed")
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.ids)).Info("Job scheduler started")
}

// Stop cancels running jobs and waits for in-flight runs to finish
func (s *JobScheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Job scheduler stopped")
}
