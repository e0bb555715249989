// internal/validation/middleware.go
package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// Clés du contexte gin renseignées par les validators
const (
	ValidatedJobIDKey    = "validated_job_id"
	ValidatedFilesKey    = "validated_files"
	ValidatedTopicKey    = "validated_topic"
	ValidatedConfirmKey  = "validated_confirm"
	ValidatedProgressKey = "validated_progress"
	parsedRequestKey     = "parsed_request"
	validatorKey         = "validator"
)

// RequestValidator définit une fonction de validation pour une requête
type RequestValidator func(*gin.Context, *APIValidator) *ValidationResult

// Middleware injecte l'APIValidator dans le contexte
func Middleware(validator *APIValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(validatorKey, validator)
		c.Next()
	}
}

// ValidateRequest est le middleware principal qui exécute une liste de validators
func ValidateRequest(validators ...RequestValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		validator := GetValidator(c)
		if validator == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Validation service unavailable"})
			return
		}

		// Exécuter toutes les validations dans l'ordre
		for _, validate := range validators {
			if result := validate(c, validator); !result.Valid {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":             "Validation failed",
					"code":              "INVALID_INPUT",
					"validation_errors": result.Errors,
				})
				return
			}
		}

		c.Next()
	}
}

// GetValidator helper pour récupérer le validator du contexte
func GetValidator(c *gin.Context) *APIValidator {
	if validator, exists := c.Get(validatorKey); exists {
		if apiValidator, ok := validator.(*APIValidator); ok {
			return apiValidator
		}
	}
	return nil
}

func ValidateJobIDParam(paramName string) RequestValidator {
	return func(c *gin.Context, v *APIValidator) *ValidationResult {
		jobID, result := v.ValidateJobIDParam(c.Param(paramName))
		if result.Valid {
			c.Set(ValidatedJobIDKey, jobID)
		}
		return result
	}
}

// ValidateSubmissionForm valide le formulaire multipart d'une soumission
func ValidateSubmissionForm(c *gin.Context, v *APIValidator) *ValidationResult {
	form, err := c.MultipartForm()
	if err != nil {
		result := &ValidationResult{Valid: true}
		result.AddError("files", "", "Failed to parse multipart form: "+err.Error(), "MULTIPART_PARSE_ERROR")
		return result
	}

	files := form.File["files"]
	var topic string
	if values := form.Value["topic"]; len(values) > 0 {
		topic = values[0]
	}

	result := v.ValidateSubmission(files, topic)
	if result.Valid {
		c.Set(ValidatedFilesKey, files)
		c.Set(ValidatedTopicKey, topic)
	}
	return result
}

// ParseJSONRequest décode le corps JSON dans T avant les validators
func ParseJSONRequest[T any]() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid JSON format",
				"code":    "INVALID_INPUT",
				"details": err.Error(),
			})
			return
		}

		c.Set(parsedRequestKey, req)
		c.Next()
	}
}

func ValidateConfirmRequest(c *gin.Context, v *APIValidator) *ValidationResult {
	req, ok := parsed[models.ConfirmJobRequest](c)
	if !ok {
		return parseFailure()
	}

	result := v.ValidateConfirmRequest(&req)
	if result.Valid {
		c.Set(ValidatedConfirmKey, req)
	}
	return result
}

// ValidateProgressReport doit suivre ValidateJobIDParam
func ValidateProgressReport(c *gin.Context, v *APIValidator) *ValidationResult {
	report, ok := parsed[models.ProgressReport](c)
	if !ok {
		return parseFailure()
	}
	jobID, _ := c.Get(ValidatedJobIDKey)
	pathID, _ := jobID.(uuid.UUID)

	result := v.ValidateProgressReport(pathID, &report)
	if result.Valid {
		c.Set(ValidatedProgressKey, report)
	}
	return result
}

// CombineValidators combine plusieurs validators (tous doivent passer)
func CombineValidators(validators ...RequestValidator) RequestValidator {
	return func(c *gin.Context, v *APIValidator) *ValidationResult {
		for _, validator := range validators {
			if result := validator(c, v); !result.Valid {
				return result // Arrêter à la première erreur
			}
		}
		return &ValidationResult{Valid: true}
	}
}

func parsed[T any](c *gin.Context) (T, bool) {
	var zero T
	raw, exists := c.Get(parsedRequestKey)
	if !exists {
		// Si pas encore parsée, on la parse ici
		if err := c.ShouldBindJSON(&zero); err != nil {
			return zero, false
		}
		return zero, true
	}
	req, ok := raw.(T)
	return req, ok
}

func parseFailure() *ValidationResult {
	result := &ValidationResult{Valid: true}
	result.AddError("json", "", "JSON parsing failed", "JSON_PARSE_ERROR")
	return result
}
