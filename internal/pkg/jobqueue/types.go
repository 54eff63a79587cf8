package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeRoomEvent    JobType = "room_event"
	JobTypeBillingEvent JobType = "billing_event"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
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
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// RoomEventJobPayload carries one raw room-server delivery into background
// reconciliation. Normalization runs again in the worker; the ingress only
// validated the minimum needed to accept the delivery.
type RoomEventJobPayload struct {
	RawJSON    string    `json:"raw_json"`
	ReceivedAt time.Time `json:"received_at"`
}

// ToMap converts the payload to a map for storage
func (p RoomEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"raw_json":    p.RawJSON,
		"received_at": p.ReceivedAt.Format(time.RFC3339Nano),
	}
}

// RoomEventJobPayloadFromMap creates a payload from a map
func RoomEventJobPayloadFromMap(data map[string]interface{}) (*RoomEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload RoomEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// BillingEventJobPayload carries one raw billing delivery plus the id of its
// stored audit row so the worker can record the processing outcome.
type BillingEventJobPayload struct {
	WebhookEventID uint      `json:"webhook_event_id"`
	RawJSON        string    `json:"raw_json"`
	ReceivedAt     time.Time `json:"received_at"`
}

// ToMap converts the payload to a map for storage
func (p BillingEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"webhook_event_id": p.WebhookEventID,
		"raw_json":         p.RawJSON,
		"received_at":      p.ReceivedAt.Format(time.RFC3339Nano),
	}
}

// BillingEventJobPayloadFromMap creates a payload from a map
func BillingEventJobPayloadFromMap(data map[string]interface{}) (*BillingEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BillingEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
