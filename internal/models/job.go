package models

import "time"

// TranscriptionJob は文字起こしジョブ
type TranscriptionJob struct {
	ID               int64      `json:"id"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	ModelName        string     `json:"model_name"`
	Language         string     `json:"language"`
	Diarize          bool       `json:"diarize"`
	InputRef         string     `json:"input_ref"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	OutputText       string     `json:"output_text,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// ジョブステータス
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// IsTerminal reports whether the job has reached a final state.
func (j *TranscriptionJob) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}
