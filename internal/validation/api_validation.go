// internal/validation/api_validation.go - Validation spécifique à l'API

package validation

import (
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

var (
	dotRuns       = regexp.MustCompile(`\.\.+`)
	dangerousRuns = regexp.MustCompile(`[\/\\:*?"<>|]+`)
	strayDots     = regexp.MustCompile(`^\.+|\.+`)
	underscores   = regexp.MustCompile(`_+`)
)

// APIValidator gère la validation des requêtes API
type APIValidator struct {
	validationService *ValidationService
}

// NewAPIValidator crée un nouveau validateur d'API
func NewAPIValidator(config *ValidationConfig) *APIValidator {
	return &APIValidator{
		validationService: NewValidationService(config),
	}
}

// ValidateSubmission valide les fichiers sources et le sujet d'une soumission
func (av *APIValidator) ValidateSubmission(files []*multipart.FileHeader, topic string) *ValidationResult {
	result := &ValidationResult{Valid: true}
	result.Merge(av.validationService.ValidateFiles(files))
	result.Merge(av.validationService.ValidateTopic(topic))
	return result
}

// ValidateJobIDParam valide un paramètre job_id depuis l'URL
func (av *APIValidator) ValidateJobIDParam(jobIDStr string) (uuid.UUID, *ValidationResult) {
	result := av.validationService.ValidateJobID(jobIDStr)

	if !result.Valid {
		return uuid.Nil, result
	}

	jobID, _ := uuid.Parse(jobIDStr)
	return jobID, result
}

// ValidateConfirmRequest valide le choix de service d'une confirmation
func (av *APIValidator) ValidateConfirmRequest(req *models.ConfirmJobRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req.ServiceType == "" {
		result.AddError("serviceType", "", "service type is required", "REQUIRED")
	} else if !req.ServiceType.Valid() {
		result.AddError("serviceType", string(req.ServiceType),
			"invalid service type (must be: GenAudio, GenVideo)",
			"INVALID_SERVICE_TYPE")
	}

	result.Merge(av.validationService.ValidateVoiceConfig(req.VoiceConfig))
	return result
}

// ValidateProgressReport valide un rapport de progression d'un worker.
// pathID is the job id of the route; a body carrying another id is refused.
func (av *APIValidator) ValidateProgressReport(pathID uuid.UUID, report *models.ProgressReport) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if report.JobID == uuid.Nil {
		report.JobID = pathID
	} else if report.JobID != pathID {
		result.AddError("jobId", report.JobID.String(), "job ID does not match the URL", "JOB_ID_MISMATCH")
	}

	if !report.Status.Valid() {
		result.AddError("status", string(report.Status),
			"invalid status (must be: Processing, ContentGenerated, CreatingProduct, Completed, Failed)",
			"INVALID_STATUS")
	}
	if report.WordCount != nil && *report.WordCount < 0 {
		result.AddError("wordCount", "", "word count cannot be negative", "NEGATIVE_VALUE")
	}
	if report.DurationMinutes != nil && *report.DurationMinutes < 0 {
		result.AddError("durationMinutes", "", "duration cannot be negative", "NEGATIVE_VALUE")
	}
	for field, name := range map[string]*string{
		"contentBlobName":     report.ContentBlobName,
		"videoOutputBlobName": report.VideoOutputBlobName,
		"audioOutputBlobName": report.AudioOutputBlobName,
	} {
		if name != nil && strings.Contains(*name, "..") {
			result.AddError(field, *name, "path traversal not allowed", "PATH_TRAVERSAL")
		}
	}

	return result
}

// SanitizeFilename nettoie un nom de fichier en supprimant les caractères dangereux
func (av *APIValidator) SanitizeFilename(filename string) string {
	// Séparer l'extension du nom de base pour la protéger
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	if base == "" && ext != "" {
		base = "hidden_file" // cas des fichiers cachés
	}

	base = dotRuns.ReplaceAllString(base, "_")
	base = dangerousRuns.ReplaceAllString(base, "_")
	base = strayDots.ReplaceAllString(base, "_")
	base = underscores.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	ext = strings.Trim(ext, "_")
	if len(ext) < 2 {
		ext = ""
	}

	switch base {
	case "":
		base = "unnamed_file"
	case "hidden_file":
		base = ""
	}

	sanitized := base + ext

	// Limiter la longueur totale
	if len(sanitized) > 200 {
		if len(ext) < 200 {
			maxBaseLen := 200 - len(ext)
			if len(base) > maxBaseLen {
				base = base[:maxBaseLen]
			}
			sanitized = base + ext
		} else {
			sanitized = sanitized[:200]
		}
	}

	return sanitized
}
