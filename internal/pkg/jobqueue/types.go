package jobqueue

import (
	"encoding/json"
	"errors"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeSendSignature         JobType = "send_signature"
	JobTypeCheckSignatureStatus  JobType = "check_signature_status"
	JobTypeUploadSignedDocuments JobType = "upload_signed_documents"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	RunAt       *time.Time             `json:"run_at,omitempty"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ErrMissingEventID is returned for payloads without an event id
var ErrMissingEventID = errors.New("job payload has no event_id")

// EventJobPayload is the only payload signature jobs carry
type EventJobPayload struct {
	EventID string `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p EventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

// EventJobPayloadFromMap creates a payload from a map
func EventJobPayloadFromMap(data map[string]interface{}) (*EventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload EventJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	if payload.EventID == "" {
		return nil, ErrMissingEventID
	}
	return &payload, nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// RetryDelay is the linear backoff before the next attempt
func (j *Job) RetryDelay(base time.Duration) time.Duration {
	if j.RetryCount <= 0 {
		return base
	}
	return base * time.Duration(j.RetryCount)
}

// MarkAsScheduled records when a delayed job becomes due
func (j *Job) MarkAsScheduled(runAt time.Time) {
	j.Status = JobStatusScheduled
	j.RunAt = &runAt
	j.UpdatedAt = time.Now()
}

// MarkAsProcessing marks the job as being processed
func (j *Job) MarkAsProcessing() {
	j.Status = JobStatusProcessing
	now := time.Now()
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkAsCompleted marks the job as completed
func (j *Job) MarkAsCompleted() {
	j.Status = JobStatusCompleted
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.ErrorMsg = ""
}

// MarkAsFailed marks the job as failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// MarkAsPermanentlyFailed marks the job as failed without further attempts
func (j *Job) MarkAsPermanentlyFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.RetryCount = j.MaxRetries
	j.UpdatedAt = time.Now()
}

// MarkAsRetrying marks the job as retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
