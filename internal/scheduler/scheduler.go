package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rentals/server/internal/database"
	"rentals/server/internal/logging"
)

// JobType represents the periodic maintenance jobs
type JobType int

const (
	JobTypeGeocodeBackfill JobType = iota
	JobTypeCachePurge
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeGeocodeBackfill:
		return "geocode_backfill"
	case JobTypeCachePurge:
		return "cache_purge"
	default:
		return "unknown"
	}
}

// Backfiller geocodes listings that were never attempted
type Backfiller interface {
	UpdateMissingCoordinates(geocoder database.Geocoder) error
}

// CachePurger drops cached listing responses
type CachePurger interface {
	Invalidate(ctx context.Context) error
}

// Scheduler runs maintenance jobs on a minute ticker
type Scheduler struct {
	backfiller Backfiller
	geocoder   database.Geocoder
	cache      CachePurger
	logger     *logrus.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
	jobMutex   sync.Mutex // Ensures sequential job execution
	startupRun atomic.Bool
}

// NewScheduler creates a scheduler. A nil geocoder disables the backfill job.
func NewScheduler(backfiller Backfiller, geocoder database.Geocoder, cache CachePurger, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Scheduler{
		backfiller: backfiller,
		geocoder:   geocoder,
		cache:      cache,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.startupRun.Store(true)
	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup jobs")
		s.runJob(JobTypeGeocodeBackfill)
		s.startupRun.Store(false)
		s.logger.Info("Startup jobs completed")
	}()

	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

// dueJobs lists the jobs scheduled for the given minute
func dueJobs(t time.Time) []JobType {
	var jobs []JobType
	if t.Minute() == 0 {
		jobs = append(jobs, JobTypeGeocodeBackfill)
	}
	if t.Hour() == 0 && t.Minute() == 0 {
		jobs = append(jobs, JobTypeCachePurge)
	}
	return jobs
}

func (s *Scheduler) executeScheduledJobs(t time.Time) {
	if s.startupRun.Load() {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"hour":   t.Hour(),
		"minute": t.Minute(),
	}).Debug("Checking scheduled jobs")

	for _, job := range dueJobs(t) {
		s.runJob(job)
	}
}

func (s *Scheduler) runJob(job JobType) {
	fields := logrus.Fields{"job_type": job.String()}
	started := time.Now()

	var err error
	switch job {
	case JobTypeGeocodeBackfill:
		if s.geocoder == nil || s.backfiller == nil {
			s.logger.WithFields(fields).Debug("Geocoding disabled, skipping job")
			return
		}
		err = s.backfiller.UpdateMissingCoordinates(s.geocoder)
	case JobTypeCachePurge:
		if s.cache == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = s.cache.Invalidate(ctx)
		cancel()
	default:
		return
	}

	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Scheduled job failed")
		return
	}
	s.logger.WithFields(fields).WithField("duration", time.Since(started).String()).Info("Scheduled job completed")
}

// Stop gracefully stops the scheduler, waiting for a running job
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
