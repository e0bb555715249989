package models

import "github.com/google/uuid"

// TaskType keys the broker queue a work message is published to.
type TaskType string

const (
	TaskGenerateContent TaskType = "GenerateContent"
	TaskCreateProduct   TaskType = "CreateProduct"
)

// GenerateContentMessage asks the AI worker to draft content from the
// uploaded sources. Field names are part of the worker contract.
type GenerateContentMessage struct {
	JobID           uuid.UUID `json:"jobId"`
	TaskType        TaskType  `json:"taskType"`
	Topic           string    `json:"topic"`
	SourceBlobNames []string  `json:"sourceBlobNames"`
}

// CreateProductMessage asks the AI worker to render the final audio or video.
type CreateProductMessage struct {
	JobID           uuid.UUID   `json:"jobId"`
	JobType         ServiceType `json:"jobType"`
	TaskType        TaskType    `json:"taskType"`
	ContentBlobName string      `json:"contentBlobName"`
	VoiceConfig     JSON        `json:"voiceConfig"`
}

// ProgressReport is a worker-originated update. Nil fields are absent and
// leave the stored value untouched.
type ProgressReport struct {
	JobID               uuid.UUID `json:"jobId"`
	Status              JobStatus `json:"status"`
	WordCount           *int      `json:"wordCount,omitempty"`
	ContentBlobName     *string   `json:"contentBlobName,omitempty"`
	PreviewContent      *string   `json:"previewContent,omitempty"`
	VideoOutputBlobName *string   `json:"videoOutputBlobName,omitempty"`
	AudioOutputBlobName *string   `json:"audioOutputBlobName,omitempty"`
	DurationMinutes     *float64  `json:"durationMinutes,omitempty"`
	FailureReason       *string   `json:"failureReason,omitempty"`
}
