package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hrleave/internal/platform/querier"
)

var ErrUnknownJob = errors.New("unknown job")

// Job is a unit of scheduled work. Run returns a details value that is
// persisted as JSON on the job run row.
type Job interface {
	Name() string
	Run(ctx context.Context) (any, error)
}

type periodic struct {
	job      Job
	interval time.Duration
}

type Service struct {
	DB    querier.Querier
	queue chan Job

	mu       sync.RWMutex
	jobs     map[string]Job
	periodic []periodic
}

// New builds a scheduler. db may be nil, in which case runs are not recorded.
func New(db querier.Querier) *Service {
	return &Service{
		DB:    db,
		queue: make(chan Job, 128),
		jobs:  map[string]Job{},
	}
}

// Register makes a job available to RunNow without scheduling it.
func (s *Service) Register(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Name()] = j
}

// RegisterPeriodic schedules j every interval once Start is called.
// A non-positive interval only registers the job.
func (s *Service) RegisterPeriodic(j Job, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Name()] = j
	if interval > 0 {
		s.periodic = append(s.periodic, periodic{job: j, interval: interval})
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.periodic {
		go s.schedule(ctx, p.job, p.interval)
	}
}

func (s *Service) Enqueue(j Job) {
	select {
	case s.queue <- j:
	default:
		slog.Warn("job queue full", "jobType", j.Name())
	}
}

// RunNow executes a registered job synchronously on the caller's goroutine.
func (s *Service) RunNow(ctx context.Context, name string) (any, error) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	return s.runJob(ctx, j)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Name(), "err", err)
			}
		}
	}
}

func (s *Service) schedule(ctx context.Context, j Job, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(j)
		}
	}
}

func (s *Service) runJob(ctx context.Context, j Job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, status)
      VALUES ($1,$2)
      RETURNING id
    `, j.Name(), "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	slog.Info("job run finished", "jobType", j.Name(), "status", status, "durationMs", time.Since(started).Milliseconds())

	if runID == "" {
		return details, err
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if _, updErr := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, runID); updErr != nil {
		slog.Warn("job run update failed", "err", updErr)
	}
	return details, err
}
