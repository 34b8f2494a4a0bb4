package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JobStatus represents where a job is in its lifecycle
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusReady     JobStatus = "ready"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// LiveJobStatuses are the statuses covered by the one-live-job-per-identity rule
var LiveJobStatuses = []JobStatus{JobStatusWaiting, JobStatusReady, JobStatusActive}

// String returns the string representation of the status
func (s JobStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusWaiting, JobStatusReady, JobStatusActive,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsLive reports whether the status is waiting, ready or active
func (s JobStatus) IsLive() bool {
	return s == JobStatusWaiting || s == JobStatusReady || s == JobStatusActive
}

// Restartable reports whether an operator or the scheduler may bring the job back
func (s JobStatus) Restartable() bool {
	return s == JobStatusFailed || s == JobStatusCancelled
}

// Scan implements the sql.Scanner interface for JobStatus
func (s *JobStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = JobStatus(v)
	case []byte:
		*s = JobStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into JobStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for JobStatus
func (s JobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid JobStatus: %s", s)
	}
	return string(s), nil
}

// JobType is the closed set of work kinds the queue knows about
type JobType string

const (
	JobTypeFetchAccountEntries   JobType = "entries.updateAccountEntries"
	JobTypeRefetchAccountEntries JobType = "entries.refetchAccountEntries"
	JobTypeUpdateAccountAudience JobType = "audiences.updateAccountAudience"
	JobTypeFetchAccountAudience  JobType = "audiences.fetchAndCreateSpecAudience"
	JobTypeSyncFacebookUsers     JobType = "people.updateFBUsers"
	JobTypeCampaignHealthCheck   JobType = "campaigns.healthCheck"
	JobTypeExpireExport          JobType = "people.expireExport"
)

// String returns the string representation of the job type
func (t JobType) String() string {
	return string(t)
}

// Valid checks if the job type is one of the known kinds
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFetchAccountEntries, JobTypeRefetchAccountEntries,
		JobTypeUpdateAccountAudience, JobTypeFetchAccountAudience,
		JobTypeSyncFacebookUsers, JobTypeCampaignHealthCheck,
		JobTypeExpireExport:
		return true
	default:
		return false
	}
}

// ForeverDate is the run-at of a job that is ready but intentionally not scheduled yet.
// Arming such a job moves its run-at to now.
var ForeverDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// JobData holds the JSON encoded payload of a job
type JobData []byte

// Scan implements the sql.Scanner interface for JobData
func (d *JobData) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = nil
	case string:
		*d = JobData(v)
	case []byte:
		*d = append(JobData(nil), v...)
	default:
		return fmt.Errorf("cannot scan %T into JobData", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for JobData
func (d JobData) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	return string(d), nil
}

// MarshalJSON keeps the payload embedded as raw JSON
func (d JobData) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("{}"), nil
	}
	return d, nil
}

// Job is a durable unit of asynchronous work
type Job struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	Type              JobType    `gorm:"type:varchar(64);not null;index:idx_jobs_claim,priority:1" json:"type"`
	IdentityKey       string     `gorm:"size:40;not null;index:idx_jobs_identity_key" json:"identity_key"`
	Data              JobData    `gorm:"type:text;not null" json:"data"`
	Status            JobStatus  `gorm:"type:varchar(16);not null;index:idx_jobs_claim,priority:2" json:"status"`
	RunAt             time.Time  `gorm:"not null;index:idx_jobs_claim,priority:3" json:"run_at"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	Error             *string    `gorm:"type:text" json:"error,omitempty"`
	CampaignID        string     `gorm:"size:64;index:idx_jobs_campaign_id" json:"campaign_id,omitempty"`
	FacebookAccountID string     `gorm:"size:64;index:idx_jobs_facebook_account_id" json:"facebook_account_id,omitempty"`
	ExportID          string     `gorm:"size:64;index:idx_jobs_export_id" json:"export_id,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// Scheduled reports whether the job carries a real run-at instead of ForeverDate
func (j *Job) Scheduled() bool {
	return j.RunAt.Before(ForeverDate)
}

// JobChange carries the optional column updates applied together with a status transition
type JobChange struct {
	RunAt      *time.Time
	Error      *string
	ClearError bool
	// Data replaces the stored payload. Identity fields must not change.
	Data JobData
}

// EnqueueOptions controls the initial state of a new job
type EnqueueOptions struct {
	// Waiting inserts the job in waiting state; it is claimable only after it is armed.
	Waiting bool
	// RunAt defaults to now. Use ForeverDate for ready jobs that must not run yet.
	RunAt *time.Time
}

// JobFilter selects jobs for listing and owner-scoped removal
type JobFilter struct {
	Types             []JobType
	Statuses          []JobStatus
	CampaignID        *string
	FacebookAccountID *string
	ExportID          *string
}

// HasOwner reports whether the filter is scoped to a campaign, account or export
func (f JobFilter) HasOwner() bool {
	return f.CampaignID != nil || f.FacebookAccountID != nil || f.ExportID != nil
}
