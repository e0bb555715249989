// internal/validation/validation_security_test.go - Tests de sécurité pour la validation

package validation

import (
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

func TestFilenameValidationSecurity(t *testing.T) {
	validator := NewValidationService(DefaultValidationConfig())

	testCases := []struct {
		name     string
		filename string
		valid    bool
		code     string
	}{
		// Path traversal attacks
		{"path traversal double dot", "../../../etc/passwd", false, "FORBIDDEN_CHAR"},
		{"hidden path traversal", "notes.txt/../../../etc/shadow", false, "FORBIDDEN_CHAR"},

		// Forbidden characters
		{"colon character", "lesson:one.pdf", false, "FORBIDDEN_CHAR"},
		{"pipe character", "lesson|one.pdf", false, "FORBIDDEN_CHAR"},
		{"null byte", "lesson\x00one.pdf", false, "FORBIDDEN_CHAR"},
		{"control characters", "lesson\x01one.pdf", false, "FORBIDDEN_CHAR"},

		{"too long", strings.Repeat("a", 300) + ".pdf", false, "TOO_LONG"},
		{"no extension", "syllabus", false, "NO_EXTENSION"},
		{"exe extension", "malware.exe", false, "FORBIDDEN_EXTENSION"},
		{"sh extension", "script.sh", false, "FORBIDDEN_EXTENSION"},

		// Valid files
		{"valid pdf", "Chapter 3 - Photosynthesis.pdf", true, ""},
		{"valid docx", "notes.DOCX", true, ""},
		{"valid slides", "lecture.pptx", true, ""},
		{"valid text", "summary.txt", true, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := validator.ValidateFilename(tc.filename)

			if tc.valid {
				assert.True(t, result.Valid, "Expected filename to be valid: %s", tc.filename)
				assert.Empty(t, result.Errors)
				return
			}
			assert.False(t, result.Valid, "Expected filename to be invalid: %s", tc.filename)
			assert.True(t, result.HasCode(tc.code), "Expected error code %s for filename %s", tc.code, tc.filename)
		})
	}
}

func TestTopicValidation(t *testing.T) {
	validator := NewValidationService(nil)

	assert.True(t, validator.ValidateTopic("Photosynthesis for grade 7").Valid)
	assert.True(t, validator.ValidateTopic(strings.Repeat("é", models.MaxTopicLength)).Valid)

	assert.True(t, validator.ValidateTopic("   ").HasCode("REQUIRED"))
	assert.True(t, validator.ValidateTopic(strings.Repeat("a", models.MaxTopicLength+1)).HasCode("TOO_LONG"))
	assert.True(t, validator.ValidateTopic("bad \xff topic").HasCode("INVALID_ENCODING"))
}

func TestFileUploadValidation(t *testing.T) {
	validator := NewValidationService(DefaultValidationConfig())

	t.Run("Multiple file validation", func(t *testing.T) {
		files := []*multipart.FileHeader{
			createTestFileHeader("chapter1.pdf", "application/pdf", 1000),
			createTestFileHeader("notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 2000),
			createTestFileHeader("summary.txt", "text/plain; charset=utf-8", 3000),
		}

		result := validator.ValidateFiles(files)
		assert.True(t, result.Valid, "Valid files should pass validation: %v", result.Errors)
	})

	t.Run("No files", func(t *testing.T) {
		assert.True(t, validator.ValidateFiles(nil).HasCode("NO_FILES"))
	})

	t.Run("Too many files", func(t *testing.T) {
		config := DefaultValidationConfig()
		config.MaxFiles = 2
		validator := NewValidationService(config)

		files := []*multipart.FileHeader{
			createTestFileHeader("a.pdf", "application/pdf", 1000),
			createTestFileHeader("b.pdf", "application/pdf", 1000),
			createTestFileHeader("c.pdf", "application/pdf", 1000),
		}

		result := validator.ValidateFiles(files)
		assert.False(t, result.Valid)
		assert.True(t, result.HasCode("TOO_MANY_FILES"))
	})

	t.Run("Total size too large", func(t *testing.T) {
		config := DefaultValidationConfig()
		config.MaxTotalSize = 5000
		validator := NewValidationService(config)

		files := []*multipart.FileHeader{
			createTestFileHeader("a.pdf", "application/pdf", 3000),
			createTestFileHeader("b.pdf", "application/pdf", 3000),
		}

		assert.True(t, validator.ValidateFiles(files).HasCode("TOTAL_SIZE_TOO_LARGE"))
	})

	t.Run("Per file errors are indexed", func(t *testing.T) {
		files := []*multipart.FileHeader{
			createTestFileHeader("ok.pdf", "application/pdf", 10),
			createTestFileHeader("empty.pdf", "application/pdf", 0),
			createTestFileHeader("page.html", "text/html", 10),
		}

		result := validator.ValidateFiles(files)
		assert.False(t, result.Valid)
		fields := make([]string, 0, len(result.Errors))
		for _, err := range result.Errors {
			fields = append(fields, err.Field)
		}
		assert.Contains(t, fields, "files[1].file_size")
		assert.Contains(t, fields, "files[2].filename")
		assert.Contains(t, fields, "files[2].content_type")
	})
}

func TestConfirmRequestValidation(t *testing.T) {
	validator := NewAPIValidator(nil)

	valid := &models.ConfirmJobRequest{ServiceType: models.ServiceGenVideo, VoiceConfig: models.JSON{"voice": "alloy"}}
	assert.True(t, validator.ValidateConfirmRequest(valid).Valid)

	assert.True(t, validator.ValidateConfirmRequest(&models.ConfirmJobRequest{}).HasCode("REQUIRED"))
	assert.True(t, validator.ValidateConfirmRequest(&models.ConfirmJobRequest{ServiceType: "GenPodcast"}).HasCode("INVALID_SERVICE_TYPE"))

	voice := models.JSON{}
	for i := 0; i < 25; i++ {
		voice[strings.Repeat("k", i+1)] = i
	}
	assert.True(t, validator.ValidateConfirmRequest(&models.ConfirmJobRequest{
		ServiceType: models.ServiceGenAudio,
		VoiceConfig: voice,
	}).HasCode("TOO_MANY_KEYS"))
}

func TestProgressReportValidation(t *testing.T) {
	validator := NewAPIValidator(nil)
	pathID := uuid.New()

	t.Run("job id taken from path", func(t *testing.T) {
		report := &models.ProgressReport{Status: models.StatusContentGenerated}
		result := validator.ValidateProgressReport(pathID, report)
		assert.True(t, result.Valid)
		assert.Equal(t, pathID, report.JobID)
	})

	t.Run("mismatched job id", func(t *testing.T) {
		report := &models.ProgressReport{JobID: uuid.New(), Status: models.StatusProcessing}
		assert.True(t, validator.ValidateProgressReport(pathID, report).HasCode("JOB_ID_MISMATCH"))
	})

	t.Run("bad fields", func(t *testing.T) {
		words := -1
		blob := "../../etc/passwd"
		report := &models.ProgressReport{Status: "Done", WordCount: &words, ContentBlobName: &blob}
		result := validator.ValidateProgressReport(pathID, report)
		assert.True(t, result.HasCode("INVALID_STATUS"))
		assert.True(t, result.HasCode("NEGATIVE_VALUE"))
		assert.True(t, result.HasCode("PATH_TRAVERSAL"))
	})
}

func TestJobIDParam(t *testing.T) {
	validator := NewAPIValidator(nil)

	id := uuid.New()
	parsed, result := validator.ValidateJobIDParam(id.String())
	assert.True(t, result.Valid)
	assert.Equal(t, id, parsed)

	_, result = validator.ValidateJobIDParam("invalid-uuid")
	assert.True(t, result.HasCode("INVALID_UUID"))

	_, result = validator.ValidateJobIDParam(uuid.Nil.String())
	assert.True(t, result.HasCode("INVALID_UUID"))

	_, result = validator.ValidateJobIDParam("")
	assert.True(t, result.HasCode("REQUIRED"))
}

func createTestFileHeader(filename, contentType string, size int64) *multipart.FileHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	return &multipart.FileHeader{
		Filename: filename,
		Header:   header,
		Size:     size,
	}
}

func BenchmarkFilenameValidation(b *testing.B) {
	validator := NewValidationService(DefaultValidationConfig())
	filenames := []string{"chapter1.pdf", "../../../etc/passwd", "notes.docx", "malware.exe"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		validator.ValidateFilename(filenames[i%len(filenames)])
	}
}
