package domain

import "time"

type JobID string

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobError
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobError:
		return true
	}
	return false
}

type Job struct {
	ID        JobID      `json:"id"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Metadata  Metadata   `json:"metadata"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	out := j
	if j.UpdatedAt != nil {
		ts := *j.UpdatedAt
		out.UpdatedAt = &ts
	}
	out.Metadata = j.Metadata.Clone()
	return out
}
