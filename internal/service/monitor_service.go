package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/veducate/examgate-backend/internal/model"
)

// MonitorReader is the aggregate view the proctoring dashboard consumes.
type MonitorReader interface {
	GetAttemptProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptProgress, error)
	GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

// MonitorService builds live dashboard snapshots for one exam.
type MonitorService struct {
	monitors MonitorReader
}

func NewMonitorService(monitors MonitorReader) *MonitorService {
	return &MonitorService{monitors: monitors}
}

// ExamSnapshot is the per-exam dashboard payload: every attempt's progress
// plus aggregate violation totals.
type ExamSnapshot struct {
	Attempts        []model.AttemptProgress `json:"attempts"`
	TotalViolations int64                   `json:"total_violations"`
}

// GetExamSnapshot fetches attempt progress and violation counts in parallel.
// Progress is critical; violation counts are best-effort and default to the
// counts already embedded in the attempt rows.
func (s *MonitorService) GetExamSnapshot(ctx context.Context, examID uuid.UUID) (*ExamSnapshot, error) {
	var (
		progress    []model.AttemptProgress
		violations  map[int]int64
		progressErr error
		violErr     error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		progress, progressErr = s.monitors.GetAttemptProgress(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violations, violErr = s.monitors.GetViolationCounts(ctx, examID)
	}()

	wg.Wait()

	if progressErr != nil {
		return nil, progressErr
	}

	snapshot := &ExamSnapshot{Attempts: progress}
	if violErr == nil {
		for i := range snapshot.Attempts {
			if n, ok := violations[snapshot.Attempts[i].StudentID]; ok {
				snapshot.Attempts[i].ViolationCount = int(n)
			}
			snapshot.TotalViolations += int64(snapshot.Attempts[i].ViolationCount)
		}
	} else {
		for i := range snapshot.Attempts {
			snapshot.TotalViolations += int64(snapshot.Attempts[i].ViolationCount)
		}
	}

	return snapshot, nil
}
