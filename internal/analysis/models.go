package analysis

import (
	"time"

	"gorm.io/datatypes"
)

type RunKind string

const (
	RunFull   RunKind = "full"
	RunModule RunKind = "module"
	RunChart  RunKind = "chart"
)

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Run is one stored generation result.
type Run struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientID  uint64         `gorm:"index:idx_analysis_run_client_kind,priority:1;not null" json:"client_id"`
	Kind      RunKind        `gorm:"type:varchar(16);index:idx_analysis_run_client_kind,priority:2;not null" json:"kind"`
	Module    string         `gorm:"type:varchar(8)" json:"module,omitempty"`
	Status    RunStatus      `gorm:"type:varchar(16);not null" json:"status"`
	Result    datatypes.JSON `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Run) TableName() string { return "analysis_runs" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job tracks one asynchronous full analysis.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID length

	ClientID uint64    `gorm:"index;not null" json:"client_id"`
	UserID   uint64    `gorm:"index;index:uniq_analysis_job_idempo,unique,priority:1;not null" json:"-"`
	Status   JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_analysis_job_idempo,unique,priority:2" json:"-"`

	// Filled when succeeded
	RunID *uint64 `json:"run_id,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "analysis_jobs" }
