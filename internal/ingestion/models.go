// Package ingestion orchestrates the bill processing pipeline: store the
// upload, scan it for duplicates, extract it, persist the bill, then run the
// post-processing passes. Every run leaves a durable job record behind.
package ingestion

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Terminal and in-flight job statuses.
const (
	JobStatusUploaded   = "uploaded"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusDuplicate  = "duplicate"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Pipeline stages, in execution order. The job record always shows the last
// stage reached, so a failed job tells you where it died.
const (
	StageUploaded       = "uploaded"
	StagePreScan        = "pre_scan"
	StageRendering      = "rendering"
	StageExtracting     = "extracting"
	StagePersisting     = "persisting"
	StagePostProcessing = "post_processing"
	StageDone           = "done"
)

// IngestionJob is the durable record of one pipeline run.
type IngestionJob struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	JobID        string        `gorm:"type:text;not null;uniqueIndex:ux_ingestion_jobs_job_id" json:"job_id"`
	FileName     string        `gorm:"type:text;not null" json:"file_name"`
	FilePath     string        `gorm:"type:text;not null" json:"-"`
	FileHash     string        `gorm:"type:text;not null" json:"file_hash"`
	Status       string        `gorm:"type:text;not null;default:uploaded" json:"status"`
	Stage        string        `gorm:"type:text;not null;default:uploaded" json:"stage"`
	BillID       *snowflake.ID `json:"bill_id,omitempty"`
	ErrorKind    *string       `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage *string       `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (IngestionJob) TableName() string { return "ingestion_jobs" }
