// Package memory holds job status and progress logs in process memory.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"jumpcut/internal/domain"
	"jumpcut/internal/metrics"
)

const (
	DefaultGlobalLogCapacity = 1000
	DefaultJobLogCapacity    = 500
	DefaultPageSize          = 100
)

type UpdateKind string

const (
	UpdateLog UpdateKind = "log"
	UpdateJob UpdateKind = "job"
)

// Update is delivered to subscribers after every mutation.
type Update struct {
	Kind UpdateKind
	Log  *domain.LogEntry
	Job  *domain.Job
}

// JobStore keeps a bounded global log, a bounded log per job and the status
// record of every job seen since start. All state sits behind one lock;
// subscribers and the process logger are called after it is released.
type JobStore struct {
	mu          sync.RWMutex
	global      *ring[domain.LogEntry]
	perJob      map[domain.JobID]*ring[domain.LogEntry]
	jobs        map[domain.JobID]*domain.Job
	seq         int64
	jobCap      int
	defaultPage int
	listeners   []func(Update)

	now    func() time.Time
	logger *slog.Logger
}

type Option func(*JobStore)

func WithGlobalCapacity(n int) Option {
	return func(s *JobStore) {
		if n > 0 {
			s.global = newRing[domain.LogEntry](n)
		}
	}
}

func WithJobCapacity(n int) Option {
	return func(s *JobStore) {
		if n > 0 {
			s.jobCap = n
		}
	}
}

func WithDefaultPageSize(n int) Option {
	return func(s *JobStore) {
		if n > 0 {
			s.defaultPage = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *JobStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *JobStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewJobStore(opts ...Option) *JobStore {
	s := &JobStore{
		global:      newRing[domain.LogEntry](DefaultGlobalLogCapacity),
		perJob:      make(map[domain.JobID]*ring[domain.LogEntry]),
		jobs:        make(map[domain.JobID]*domain.Job),
		jobCap:      DefaultJobLogCapacity,
		defaultPage: DefaultPageSize,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive every subsequent update. fn runs on the
// mutating goroutine and must not block.
func (s *JobStore) Subscribe(fn func(Update)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *JobStore) AppendLog(level domain.LogLevel, message string, jobID domain.JobID, metadata domain.Metadata) {
	s.mu.Lock()
	s.seq++
	entry := domain.LogEntry{
		Seq:       s.seq,
		Timestamp: s.now(),
		Level:     level,
		Message:   message,
		JobID:     jobID,
		Metadata:  metadata.Clone(),
	}
	s.global.push(entry)
	if jobID != "" {
		buf, ok := s.perJob[jobID]
		if !ok {
			buf = newRing[domain.LogEntry](s.jobCap)
			s.perJob[jobID] = buf
		}
		buf.push(entry)
	}
	listeners := s.listeners
	s.mu.Unlock()

	metrics.LogEntriesTotal.WithLabelValues(string(level)).Inc()
	if len(listeners) > 0 {
		out := entry.Clone()
		notify(listeners, Update{Kind: UpdateLog, Log: &out})
	}
}

// GetLogs returns up to limit most recent entries, oldest first. An empty
// jobID selects the global log. limit <= 0 selects the default page size.
func (s *JobStore) GetLogs(jobID domain.JobID, limit int) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = s.defaultPage
	}
	buf, err := s.bufferLocked(jobID)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return []domain.LogEntry{}, nil
	}
	return cloneEntries(buf.last(limit)), nil
}

// GetLogsSince returns up to limit entries with Seq greater than afterSeq,
// oldest first.
func (s *JobStore) GetLogsSince(jobID domain.JobID, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = s.defaultPage
	}
	buf, err := s.bufferLocked(jobID)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return []domain.LogEntry{}, nil
	}
	return cloneEntries(buf.after(limit, func(e domain.LogEntry) bool { return e.Seq > afterSeq })), nil
}

func (s *JobStore) bufferLocked(jobID domain.JobID) (*ring[domain.LogEntry], error) {
	if jobID == "" {
		return s.global, nil
	}
	if buf, ok := s.perJob[jobID]; ok {
		return buf, nil
	}
	if _, ok := s.jobs[jobID]; ok {
		return nil, nil
	}
	return nil, domain.ErrNotFound
}

// SetStatus creates the job on first sight or overwrites its status and
// merges metadata. The last write wins, including after a terminal status.
func (s *JobStore) SetStatus(jobID domain.JobID, status domain.JobStatus, metadata domain.Metadata) {
	s.mu.Lock()
	now := s.now()
	job, ok := s.jobs[jobID]
	var prev domain.JobStatus
	if !ok {
		job = &domain.Job{
			ID:        jobID,
			Status:    status,
			CreatedAt: now,
			Metadata:  metadata.Clone(),
		}
		s.jobs[jobID] = job
	} else {
		prev = job.Status
		job.Status = status
		ts := now
		job.UpdatedAt = &ts
		job.Metadata.Merge(metadata)
	}
	snapshot := job.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	if prev.IsTerminal() && prev != status {
		s.logger.Warn("job status overwritten after terminal state",
			slog.String("jobId", string(jobID)),
			slog.String("from", string(prev)),
			slog.String("to", string(status)),
		)
	}
	if len(listeners) > 0 {
		notify(listeners, Update{Kind: UpdateJob, Job: &snapshot})
	}
}

// Create registers a pending job only if the id is unused.
func (s *JobStore) Create(jobID domain.JobID, metadata domain.Metadata) error {
	s.mu.Lock()
	if _, ok := s.jobs[jobID]; ok {
		s.mu.Unlock()
		return domain.ErrJobExists
	}
	job := &domain.Job{
		ID:        jobID,
		Status:    domain.JobPending,
		CreatedAt: s.now(),
		Metadata:  metadata.Clone(),
	}
	s.jobs[jobID] = job
	snapshot := job.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	if len(listeners) > 0 {
		notify(listeners, Update{Kind: UpdateJob, Job: &snapshot})
	}
	return nil
}

func (s *JobStore) GetStatus(jobID domain.JobID) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *JobStore) ListJobs() map[domain.JobID]domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.JobID]domain.Job, len(s.jobs))
	for id, job := range s.jobs {
		out[id] = job.Clone()
	}
	return out
}

func cloneEntries(entries []domain.LogEntry) []domain.LogEntry {
	for i := range entries {
		entries[i] = entries[i].Clone()
	}
	return entries
}

func notify(listeners []func(Update), u Update) {
	for _, fn := range listeners {
		fn(u)
	}
}
