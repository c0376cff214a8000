package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Activity is a single activity record exactly as returned by the source API.
// It is never decoded into a fixed struct; the warehouse infers its schema.
type Activity = json.RawMessage

// Destination identifies the warehouse table a run loads into.
type Destination struct {
	ProjectID string `json:"project_id"`
	Dataset   string `json:"dataset"`
	Table     string `json:"table"`
}

// String returns the fully qualified project.dataset.table name.
func (d Destination) String() string {
	return fmt.Sprintf("%s.%s.%s", d.ProjectID, d.Dataset, d.Table)
}

// Run statuses recorded in IngestionStatus.
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusNeverRun = "never_run"
)

// IngestionStatus tracks the status of ingestion runs
type IngestionStatus struct {
	RunID             string    `json:"run_id" bson:"run_id" gorm:"column:run_id"`
	Mode              RunMode   `json:"mode" bson:"mode" gorm:"column:mode"`
	LastSuccessfulRun time.Time `json:"last_successful_run" bson:"last_successful_run" gorm:"column:last_successful_run"`
	LastAttempt       time.Time `json:"last_attempt" bson:"last_attempt" gorm:"column:last_attempt"`
	Status            string    `json:"status" bson:"status" gorm:"column:status"` // "success", "failure", "running"
	ErrorKind         string    `json:"error_kind,omitempty" bson:"error_kind,omitempty" gorm:"column:error_kind"`
	ErrorMessage      string    `json:"error_message,omitempty" bson:"error_message,omitempty" gorm:"column:error_message"`
	RecordsIngested   int       `json:"records_ingested" bson:"records_ingested" gorm:"column:records_ingested"`
	PagesFetched      int       `json:"pages_fetched" bson:"pages_fetched" gorm:"column:pages_fetched"`
	CursorBefore      string    `json:"cursor_before" bson:"cursor_before" gorm:"column:cursor_before"`
	CursorAfter       string    `json:"cursor_after" bson:"cursor_after" gorm:"column:cursor_after"`
	LoadJobID         string    `json:"load_job_id,omitempty" bson:"load_job_id,omitempty" gorm:"column:load_job_id"`
	ArchiveObject     string    `json:"archive_object,omitempty" bson:"archive_object,omitempty" gorm:"column:archive_object"`
}
