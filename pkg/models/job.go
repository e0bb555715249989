package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobStatus string

const (
	StatusProcessing       JobStatus = "Processing"
	StatusContentGenerated JobStatus = "ContentGenerated"
	StatusCreatingProduct  JobStatus = "CreatingProduct"
	StatusCompleted        JobStatus = "Completed"
	StatusFailed           JobStatus = "Failed"
)

// MaxTopicLength bounds the free-text prompt supplied at submission.
const MaxTopicLength = 500

// transitions lists the legal successors of each status reachable through a
// worker progress report. ContentGenerated -> CreatingProduct is absent on
// purpose: only the confirmation step performs it.
var transitions = map[JobStatus][]JobStatus{
	StatusProcessing:       {StatusProcessing, StatusContentGenerated, StatusFailed},
	StatusContentGenerated: {},
	StatusCreatingProduct:  {StatusCreatingProduct, StatusCompleted, StatusFailed},
	StatusCompleted:        {},
	StatusFailed:           {},
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal retourne true si le job est dans un état final
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanReportTransition reports whether a worker progress report may move a job
// from s to next.
func (s JobStatus) CanReportTransition(next JobStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// JSON type for PostgreSQL compatibility
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan %T into JSON", value)
	}
	if len(bytes) == 0 {
		*j = make(map[string]interface{})
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// StringSlice type for PostgreSQL JSON arrays
type StringSlice []string

func (ss StringSlice) Value() (driver.Value, error) {
	if ss == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(ss))
}

func (ss *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*ss = []string{}
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
	if len(bytes) == 0 {
		*ss = []string{}
		return nil
	}

	return json.Unmarshal(bytes, ss)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

// Job is one user request to turn source material into narrated content.
type Job struct {
	ID              uuid.UUID   `gorm:"type:uuid;primary_key"`
	UserID          string      `gorm:"type:varchar(64);not null;index"`
	Status          JobStatus   `gorm:"type:varchar(32);not null;index"`
	Topic           string      `gorm:"type:varchar(500);not null"`
	SourceBlobNames StringSlice `gorm:"type:jsonb;default:'[]'"`

	WordCount       *int    `gorm:"column:word_count"`
	ContentBlobName *string `gorm:"type:text"`
	ContentURL      *string `gorm:"column:content_url;type:text"`
	PreviewContent  *string `gorm:"type:text"`
	VideoOutputURL  *string `gorm:"column:video_output_url;type:text"`
	AudioOutputURL  *string `gorm:"column:audio_output_url;type:text"`
	FailureReason   *string `gorm:"type:text"`
	DurationMinutes *float64

	AudioCost *int64
	VideoCost *int64

	// Recorded at confirmation so an unanswered CreateProduct request can be
	// rebuilt by the reconciliation sweep.
	ProductType *ServiceType `gorm:"type:varchar(16)"`
	VoiceConfig JSON         `gorm:"type:jsonb;default:'{}'"`

	DispatchedAt     time.Time `gorm:"index"`
	DispatchAttempts int       `gorm:"default:0"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName spécifie le nom de la table
func (Job) TableName() string {
	return "ai_jobs"
}

// BeforeCreate hook GORM pour initialiser l'ID et les timestamps
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	if j.DispatchedAt.IsZero() {
		j.DispatchedAt = now
	}
	if j.SourceBlobNames == nil {
		j.SourceBlobNames = StringSlice{}
	}
	if j.VoiceConfig == nil {
		j.VoiceConfig = JSON{}
	}
	return nil
}

// SetStatus met à jour le statut et le timestamp de modification
func (j *Job) SetStatus(status JobStatus, now time.Time) {
	j.Status = status
	j.UpdatedAt = now
}

// CostFor returns the precomputed cost for a service type, or nil when it has
// not been computed yet.
func (j *Job) CostFor(serviceType ServiceType) *int64 {
	switch serviceType {
	case ServiceGenAudio:
		return j.AudioCost
	case ServiceGenVideo:
		return j.VideoCost
	default:
		return nil
	}
}

// Clone returns a deep copy, used wherever a job is handed across a
// transaction boundary.
func (j *Job) Clone() *Job {
	c := *j
	c.SourceBlobNames = append(StringSlice(nil), j.SourceBlobNames...)
	c.WordCount = clonePtr(j.WordCount)
	c.ContentBlobName = clonePtr(j.ContentBlobName)
	c.ContentURL = clonePtr(j.ContentURL)
	c.PreviewContent = clonePtr(j.PreviewContent)
	c.VideoOutputURL = clonePtr(j.VideoOutputURL)
	c.AudioOutputURL = clonePtr(j.AudioOutputURL)
	c.FailureReason = clonePtr(j.FailureReason)
	c.DurationMinutes = clonePtr(j.DurationMinutes)
	c.AudioCost = clonePtr(j.AudioCost)
	c.VideoCost = clonePtr(j.VideoCost)
	c.ProductType = clonePtr(j.ProductType)
	if j.VoiceConfig != nil {
		c.VoiceConfig = make(JSON, len(j.VoiceConfig))
		for k, v := range j.VoiceConfig {
			c.VoiceConfig[k] = v
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// JobResponse représente la réponse contenant les détails d'un job
type JobResponse struct {
	ID              uuid.UUID `json:"id"`
	Status          JobStatus `json:"status"`
	Topic           string    `json:"topic"`
	WordCount       *int      `json:"wordCount,omitempty"`
	ContentURL      *string   `json:"contentUrl,omitempty"`
	PreviewContent  *string   `json:"previewContent,omitempty"`
	VideoOutputURL  *string   `json:"videoOutputUrl,omitempty"`
	AudioOutputURL  *string   `json:"audioOutputUrl,omitempty"`
	FailureReason   *string   `json:"failureReason,omitempty"`
	DurationMinutes *float64  `json:"durationMinutes,omitempty"`
	AudioCost       *int64    `json:"audioCost,omitempty"`
	VideoCost       *int64    `json:"videoCost,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ToResponse builds the client view; blob names are never exposed.
func (j *Job) ToResponse() *JobResponse {
	return &JobResponse{
		ID:              j.ID,
		Status:          j.Status,
		Topic:           j.Topic,
		WordCount:       j.WordCount,
		ContentURL:      j.ContentURL,
		PreviewContent:  j.PreviewContent,
		VideoOutputURL:  j.VideoOutputURL,
		AudioOutputURL:  j.AudioOutputURL,
		FailureReason:   j.FailureReason,
		DurationMinutes: j.DurationMinutes,
		AudioCost:       j.AudioCost,
		VideoCost:       j.VideoCost,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}
