// Package pipeline orchestrates the daily research cycle: fetch candidates,
// rank them, synthesize deep reports through a bounded worker pool, archive
// everything and deliver the digest. One cycle runs at a time; one run
// exists per calendar date.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/helixir/research-pipeline-service/internal/domain"
)

// maxLogLines bounds the in-memory cycle log.
const maxLogLines = 200

// JobState is the orchestrator's shared progress record. All access goes
// through the mutex; the lock is never held across blocking calls.
type JobState struct {
	mu         sync.Mutex
	status     domain.JobStatus
	date       string
	logs       []string
	total      int
	reports    int
	startedAt  *time.Time
	finishedAt *time.Time
	err        string
}

// NewJobState creates an idle job state.
func NewJobState() *JobState {
	return &JobState{status: domain.JobStatusIdle}
}

// TryStart transitions to running if no cycle is in flight. It resets the
// log and counters for the new date and reports whether the transition
// happened.
func (s *JobState) TryStart(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.CanAccept() {
		return false
	}
	now := time.Now().UTC()
	s.status = domain.JobStatusRunning
	s.date = date
	s.logs = nil
	s.total = 0
	s.reports = 0
	s.startedAt = &now
	s.finishedAt = nil
	s.err = ""
	return true
}

// AppendLog records one timestamped progress line, dropping the oldest
// once the buffer is full.
func (s *JobState) AppendLog(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), fmt.Sprintf(format, args...))
	s.logs = append(s.logs, line)
	if len(s.logs) > maxLogLines {
		s.logs = s.logs[len(s.logs)-maxLogLines:]
	}
}

// SetCounts updates the progress counters.
func (s *JobState) SetCounts(total, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.reports = reports
}

// FinishDone transitions to done with final counters.
func (s *JobState) FinishDone(total, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.status = domain.JobStatusDone
	s.total = total
	s.reports = reports
	s.finishedAt = &now
	s.err = ""
}

// FinishError transitions to error with the causing message.
func (s *JobState) FinishError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.status = domain.JobStatusError
	s.finishedAt = &now
	s.err = message
}

// Snapshot returns an immutable copy of the current state.
func (s *JobState) Snapshot() domain.JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]string, len(s.logs))
	copy(logs, s.logs)

	snap := domain.JobSnapshot{
		Status:  s.status,
		Date:    s.date,
		Logs:    logs,
		Total:   s.total,
		Reports: s.reports,
		Error:   s.err,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		snap.StartedAt = &t
	}
	if s.finishedAt != nil {
		t := *s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}
