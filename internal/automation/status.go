package automation

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultRecentErrorLimit = 50

type ErrorRecord struct {
	JobID     string    `json:"jobId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusSnapshot struct {
	IsRunning      bool          `json:"isRunning"`
	LastRunAt      *time.Time    `json:"lastRunAt"`
	TotalProcessed int64         `json:"totalProcessed"`
	SuccessCount   int64         `json:"successCount"`
	FailureCount   int64         `json:"failureCount"`
	RecentErrors   []ErrorRecord `json:"recentErrors"`
}

// Status is the scheduler's run state. The running flag is a CAS so at most
// one tick holds it; counters and the error ring sit behind mu.
type Status struct {
	running atomic.Bool

	mu             sync.Mutex
	lastRunAt      time.Time
	totalProcessed int64
	successCount   int64
	failureCount   int64
	recentErrors   []ErrorRecord
	errorLimit     int
}

func NewStatus(recentErrorLimit int) *Status {
	if recentErrorLimit <= 0 {
		recentErrorLimit = defaultRecentErrorLimit
	}
	return &Status{errorLimit: recentErrorLimit}
}

// TryStart reports whether the caller acquired the running flag.
func (s *Status) TryStart() bool {
	return s.running.CompareAndSwap(false, true)
}

func (s *Status) Finish(at time.Time) {
	s.mu.Lock()
	s.lastRunAt = at
	s.mu.Unlock()
	s.running.Store(false)
}

func (s *Status) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalProcessed++
	s.successCount++
}

func (s *Status) RecordFailure(jobID, message string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalProcessed++
	s.failureCount++
	s.appendError(ErrorRecord{JobID: jobID, Message: message, Timestamp: at})
}

// RecordError keeps an error that is not tied to a processed job.
func (s *Status) RecordError(message string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendError(ErrorRecord{Message: message, Timestamp: at})
}

func (s *Status) appendError(rec ErrorRecord) {
	s.recentErrors = append(s.recentErrors, rec)
	if over := len(s.recentErrors) - s.errorLimit; over > 0 {
		s.recentErrors = append(s.recentErrors[:0:0], s.recentErrors[over:]...)
	}
}

func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatusSnapshot{
		IsRunning:      s.running.Load(),
		TotalProcessed: s.totalProcessed,
		SuccessCount:   s.successCount,
		FailureCount:   s.failureCount,
		RecentErrors:   append([]ErrorRecord{}, s.recentErrors...),
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		snap.LastRunAt = &t
	}
	return snap
}
