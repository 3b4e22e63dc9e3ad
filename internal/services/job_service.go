package services

import (
	"context"
	"time"

	"github.com/sjperalta/schoolfees-api/internal/jobs"
)

// OverdueSweepJob is the schedule name of the overdue sweep
const OverdueSweepJob = "overdue_sweep"

type JobService struct {
	worker *jobs.Worker
	engine *AssignmentEngine
}

func NewJobService(worker *jobs.Worker, engine *AssignmentEngine) *JobService {
	return &JobService{
		worker: worker,
		engine: engine,
	}
}

// StartSchedules registers the recurring jobs. The overdue sweep runs once at
// startup and then every interval.
func (s *JobService) StartSchedules(overdueInterval time.Duration) {
	s.worker.ScheduleEveryImmediate(OverdueSweepJob, overdueInterval, s.RunOverdueSweep)
}

// RunOverdueSweep marks past-due open assignments as overdue
func (s *JobService) RunOverdueSweep(ctx context.Context) error {
	_, err := s.SweepOverdue(ctx)
	return err
}

// SweepOverdue runs the overdue sweep in the caller's goroutine and reports
// how many assignments changed
func (s *JobService) SweepOverdue(ctx context.Context) (int64, error) {
	return s.engine.MarkOverdue(ctx)
}

func (s *JobService) GetStatus() map[string]interface{} {
	stats := s.worker.GetStats()
	return map[string]interface{}{
		"active_jobs":    stats.ActiveJobs,
		"completed_jobs": stats.CompletedJobs,
		"failed_jobs":    stats.FailedJobs,
		"max_concurrent": stats.MaxConcurrent,
	}
}
