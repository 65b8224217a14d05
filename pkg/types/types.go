package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadSession tracks the progress of one multi-file chunked upload.
// Sessions live in memory only; they are created when the client announces
// an upload and removed exactly once when the last file lands or a chunk
// write fails.
type UploadSession struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	TotalFiles    int       `json:"total_files"`
	FilesUploaded int       `json:"files_uploaded"`
	CreatedAt     time.Time `json:"created_at"`
}

// PipelineState is the lifecycle state of a model-configuration session.
type PipelineState string

const (
	StateInitialized       PipelineState = "Initialized"
	StateDownloaded        PipelineState = "Downloaded"
	StateCleaned           PipelineState = "Cleaned"
	StateTrainingStarted   PipelineState = "TrainingStarted"
	StateTrainingCompleted PipelineState = "TrainingCompleted"
	StateError             PipelineState = "Error"
)

// PipelineSession tracks one download/clean/train run against the compute
// service. WorkingDir is the server-side directory handle returned by the
// last successful step.
type PipelineSession struct {
	SessionID  string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	State      PipelineState `json:"state"`
	WorkingDir string        `json:"working_dir"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Notification is the durable record of a terminal session event
type Notification struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Message   string    `json:"message" gorm:"not null"`
	IsRead    bool      `json:"is_read" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID for the notification ID
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// ChunkUpload is one slice of a larger file submitted by the client
type ChunkUpload struct {
	Label       string `form:"label" binding:"required"`
	FileName    string `form:"fileName" binding:"required"`
	ChunkIndex  int    `form:"chunkIndex"`
	TotalChunks int    `form:"totalChunks" binding:"required"`
}

// DownloadRequest is the compute service's download_files payload
type DownloadRequest struct {
	BucketName string `json:"bucket_name"`
	UserID     string `json:"user_id"`
	Label      string `json:"label"`
}

// DownloadResponse carries the working directory created by download_files
type DownloadResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
}

// CleaningRequest is the compute service's clean_files payload. Empty
// caller-supplied fields are replaced with defaults before dispatch.
type CleaningRequest struct {
	InputPath         string   `json:"input_path"`
	PatientIdentifier string   `json:"patient_identifier"`
	EncodingMethod    string   `json:"encoding_method"`
	ScaleMethod       string   `json:"scale_method"`
	RowThreshold      float64  `json:"row_threshold"`
	ColumnThreshold   float64  `json:"column_threshold"`
	ExcludedColumns   []string `json:"excluded_columns"`
}

// CleaningResponse carries the directory holding the cleaned files
type CleaningResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"cleaned_files_path"`
}

// TrainingRequest is the compute service's train_model payload
type TrainingRequest struct {
	BucketName      string   `json:"bucket_name"`
	UserID          string   `json:"user_id"`
	Label           string   `json:"label"`
	InputPath       string   `json:"input_path"`
	TargetColumn    string   `json:"target_column"`
	MaxDepth        int      `json:"max_depth"`
	RandomState     int      `json:"random_state"`
	ChunkSize       int      `json:"chunk_size"`
	ExcludedColumns []string `json:"excluded_columns"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
