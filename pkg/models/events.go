package models

import "github.com/google/uuid"

// EventJobStatusUpdated is the event name pushed after every job transition.
const EventJobStatusUpdated = "JobStatusUpdated"

// Event is a live notification payload. Each event name has exactly one
// concrete type.
type Event interface {
	EventName() string
}

// JobStatusUpdated mirrors the public fields of a Job after a transition.
type JobStatusUpdated struct {
	JobID          uuid.UUID `json:"jobId"`
	Status         JobStatus `json:"status"`
	AudioCost      *int64    `json:"audioCost,omitempty"`
	VideoCost      *int64    `json:"videoCost,omitempty"`
	VideoOutputURL *string   `json:"videoOutputUrl,omitempty"`
	AudioOutputURL *string   `json:"audioOutputUrl,omitempty"`
	FailureReason  *string   `json:"failureReason,omitempty"`
}

func (JobStatusUpdated) EventName() string { return EventJobStatusUpdated }

// NewJobStatusUpdated snapshots a job into its status event.
func NewJobStatusUpdated(job *Job) JobStatusUpdated {
	return JobStatusUpdated{
		JobID:          job.ID,
		Status:         job.Status,
		AudioCost:      job.AudioCost,
		VideoCost:      job.VideoCost,
		VideoOutputURL: job.VideoOutputURL,
		AudioOutputURL: job.AudioOutputURL,
		FailureReason:  job.FailureReason,
	}
}
