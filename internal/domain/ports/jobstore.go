package ports

import "jumpcut/internal/domain"

// JobStore holds job status and progress logs. Implementations must be safe
// for concurrent use.
type JobStore interface {
	AppendLog(level domain.LogLevel, message string, jobID domain.JobID, metadata domain.Metadata)
	GetLogs(jobID domain.JobID, limit int) ([]domain.LogEntry, error)
	SetStatus(jobID domain.JobID, status domain.JobStatus, metadata domain.Metadata)
	// Create registers a pending job, failing with domain.ErrJobExists when
	// the id is already known.
	Create(jobID domain.JobID, metadata domain.Metadata) error
	GetStatus(jobID domain.JobID) (domain.Job, error)
	ListJobs() map[domain.JobID]domain.Job
}
