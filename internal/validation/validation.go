// internal/validation/validation.go - Service de validation des entrées

package validation

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// ValidationConfig contient la configuration de validation
type ValidationConfig struct {
	MaxFileSize       int64           // Taille max par fichier (bytes)
	MaxTotalSize      int64           // Taille max totale (bytes)
	MaxFiles          int             // Nombre max de fichiers
	AllowedExtensions map[string]bool // Extensions autorisées
	MaxFilenameLength int             // Longueur max du nom de fichier
	AllowedMimeTypes  map[string]bool // Types MIME autorisés
	MaxVoiceKeys      int             // Nombre max de clés dans voiceConfig
}

// DefaultValidationConfig retourne une configuration par défaut sécurisée
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxFileSize:       20 * 1024 * 1024, // 20MB par fichier
		MaxTotalSize:      50 * 1024 * 1024, // 50MB total
		MaxFiles:          10,
		MaxFilenameLength: 255,
		MaxVoiceKeys:      20,
		AllowedExtensions: map[string]bool{
			".pdf":  true,
			".doc":  true,
			".docx": true,
			".ppt":  true,
			".pptx": true,
			".txt":  true,
			".md":   true,
		},
		AllowedMimeTypes: setOf(
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"text/plain",
			"text/markdown",
			"application/octet-stream", // Navigateurs sans type connu
		),
	}
}

func setOf(values ...string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// ValidationService gère la validation des entrées
type ValidationService struct {
	config *ValidationConfig
}

// NewValidationService crée un nouveau service de validation
func NewValidationService(config *ValidationConfig) *ValidationService {
	if config == nil {
		config = DefaultValidationConfig()
	}

	return &ValidationService{
		config: config,
	}
}

// ValidationError représente une erreur de validation avec détails
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ValidationResult contient le résultat de validation
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []*ValidationError `json:"errors,omitempty"`
}

// AddError ajoute une erreur de validation
func (vr *ValidationResult) AddError(field, value, message, code string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// Merge ajoute les erreurs d'un autre résultat
func (vr *ValidationResult) Merge(other *ValidationResult) {
	if other == nil || other.Valid {
		return
	}
	vr.Valid = false
	vr.Errors = append(vr.Errors, other.Errors...)
}

// HasCode reports whether one of the errors carries code.
func (vr *ValidationResult) HasCode(code string) bool {
	for _, err := range vr.Errors {
		if err.Code == code {
			return true
		}
	}
	return false
}

// ValidateJobID valide un ID de job
func (vs *ValidationService) ValidateJobID(jobID string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if jobID == "" {
		result.AddError("job_id", "", "job ID is required", "REQUIRED")
		return result
	}

	// Vérifier que c'est un UUID valide
	if id, err := uuid.Parse(jobID); err != nil {
		result.AddError("job_id", jobID, "job ID must be a valid UUID", "INVALID_UUID")
	} else if id == uuid.Nil {
		result.AddError("job_id", jobID, "job ID must not be the nil UUID", "INVALID_UUID")
	}

	return result
}

// ValidateTopic valide le sujet libre fourni à la soumission
func (vs *ValidationService) ValidateTopic(topic string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		result.AddError("topic", "", "topic is required", "REQUIRED")
		return result
	}
	if !utf8.ValidString(topic) {
		result.AddError("topic", "", "topic must be valid UTF-8", "INVALID_ENCODING")
		return result
	}
	if n := utf8.RuneCountInString(topic); n > models.MaxTopicLength {
		result.AddError("topic", fmt.Sprintf("%d characters", n),
			fmt.Sprintf("topic too long (max %d characters)", models.MaxTopicLength),
			"TOO_LONG")
	}

	return result
}

// ValidateFilename valide un nom de fichier de manière robuste
func (vs *ValidationService) ValidateFilename(filename string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if filename == "" {
		result.AddError("filename", "", "filename is required", "REQUIRED")
		return result
	}

	// Vérifier la longueur
	if len(filename) > vs.config.MaxFilenameLength {
		result.AddError("filename", filename,
			fmt.Sprintf("filename too long (max %d characters)", vs.config.MaxFilenameLength),
			"TOO_LONG")
	}

	// Vérifier que c'est un UTF-8 valide
	if !utf8.ValidString(filename) {
		result.AddError("filename", filename, "filename must be valid UTF-8", "INVALID_ENCODING")
	}

	// Vérifier les caractères interdits
	forbidden := []string{"..", "/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range forbidden {
		if strings.Contains(filename, char) {
			result.AddError("filename", filename,
				fmt.Sprintf("filename contains forbidden character: %q", char),
				"FORBIDDEN_CHAR")
		}
	}
	for _, r := range filename {
		if r < 0x20 || r == 0x7f {
			result.AddError("filename", filename,
				fmt.Sprintf("filename contains control character: %q", r),
				"FORBIDDEN_CHAR")
			break
		}
	}

	// Vérifier l'extension
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		result.AddError("filename", filename, "filename must have an extension", "NO_EXTENSION")
	} else if !vs.config.AllowedExtensions[ext] {
		result.AddError("filename", filename,
			fmt.Sprintf("file extension %s not allowed", ext),
			"FORBIDDEN_EXTENSION")
	}

	return result
}

// ValidateFileHeader valide un header de fichier multipart
func (vs *ValidationService) ValidateFileHeader(header *multipart.FileHeader) *ValidationResult {
	result := &ValidationResult{Valid: true}

	result.Merge(vs.ValidateFilename(header.Filename))

	// Vérifier la taille
	if header.Size > vs.config.MaxFileSize {
		result.AddError("file_size", fmt.Sprintf("%d", header.Size),
			fmt.Sprintf("file too large (max %d bytes)", vs.config.MaxFileSize),
			"FILE_TOO_LARGE")
	}

	if header.Size == 0 {
		result.AddError("file_size", "0", "file is empty", "EMPTY_FILE")
	}

	// Vérifier le type MIME si disponible
	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		mainType := strings.TrimSpace(strings.Split(contentType, ";")[0])
		if !vs.config.AllowedMimeTypes[mainType] {
			result.AddError("content_type", contentType,
				fmt.Sprintf("content type %s not allowed", mainType),
				"FORBIDDEN_MIME_TYPE")
		}
	}

	return result
}

// ValidateFiles valide un ensemble de fichiers
func (vs *ValidationService) ValidateFiles(files []*multipart.FileHeader) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(files) == 0 {
		result.AddError("files", "", "no files provided", "NO_FILES")
		return result
	}

	if len(files) > vs.config.MaxFiles {
		result.AddError("files", fmt.Sprintf("%d files", len(files)),
			fmt.Sprintf("too many files (max %d)", vs.config.MaxFiles),
			"TOO_MANY_FILES")
	}

	var totalSize int64
	for i, file := range files {
		fileResult := vs.ValidateFileHeader(file)
		if !fileResult.Valid {
			// Préfixer les erreurs avec l'index du fichier
			for _, err := range fileResult.Errors {
				err.Field = fmt.Sprintf("files[%d].%s", i, err.Field)
			}
			result.Merge(fileResult)
		}
		totalSize += file.Size
	}

	if totalSize > vs.config.MaxTotalSize {
		result.AddError("total_size", fmt.Sprintf("%d", totalSize),
			fmt.Sprintf("total size too large (max %d bytes)", vs.config.MaxTotalSize),
			"TOTAL_SIZE_TOO_LARGE")
	}

	return result
}

// ValidateVoiceConfig borne la configuration de voix transmise au worker
func (vs *ValidationService) ValidateVoiceConfig(voice models.JSON) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if voice == nil {
		return result // Optionnel
	}

	if len(voice) > vs.config.MaxVoiceKeys {
		result.AddError("voiceConfig", fmt.Sprintf("%d keys", len(voice)),
			fmt.Sprintf("too many voice settings (max %d)", vs.config.MaxVoiceKeys),
			"TOO_MANY_KEYS")
	}

	for key, value := range voice {
		if len(key) > 100 {
			result.AddError("voiceConfig", key, "voice setting name too long (max 100 characters)", "KEY_TOO_LONG")
		}
		if len(fmt.Sprintf("%v", value)) > 1000 {
			result.AddError("voiceConfig", key, "voice setting value too long (max 1000 characters)", "VALUE_TOO_LONG")
		}
	}

	return result
}
