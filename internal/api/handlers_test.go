package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs/jobstest"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/metrics"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/notify"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/worker"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

const (
	testSecret      = "test-secret"
	testWorkerToken = "worker-token"
	testUser        = "user-1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	store     *jobstest.MemoryStore
	publisher *jobstest.RecordingPublisher
	hub       *notify.Hub
	checks    map[string]HealthCheck
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		store:     jobstest.NewMemoryStore(),
		publisher: &jobstest.RecordingPublisher{},
		hub:       notify.NewHub(4, zerolog.Nop()),
		checks:    map[string]HealthCheck{},
	}
	s.store.SetPrice(models.ServiceGenAudio, 10)
	s.store.SetPrice(models.ServiceGenVideo, 20)
	s.store.SetBalance(testUser, 100)

	reg := prometheus.NewRegistry()
	service := jobs.NewJobService(jobs.Dependencies{
		Store:          s.store,
		Blobs:          jobstest.NewFakeBlobs(),
		Publisher:      s.publisher,
		Notifier:       s.hub,
		Metrics:        metrics.NewPipeline(reg),
		Logger:         zerolog.Nop(),
		PublishTimeout: time.Second,
		NotifyTimeout:  time.Second,
	})

	s.router = SetupRouter(RouterConfig{
		JobService:     service,
		Hub:            s.hub,
		Logger:         zerolog.Nop(),
		JWTSecret:      testSecret,
		WorkerToken:    testWorkerToken,
		MaxUploadBytes: 1 << 20,
		Heartbeat:      time.Hour,
		Checks:         s.checks,
		ConsumerStats:  func() worker.PoolStats { return worker.PoolStats{WorkerCount: 2, Running: true} },
		Gatherer:       reg,
		Environment:    "test",
	})
	return s
}

func tokenFor(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func userToken(t *testing.T, userID string) string {
	return tokenFor(t, &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) authed(t *testing.T, method, path string, body *bytes.Buffer) *http.Request {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+userToken(t, testUser))
	return req
}

func submission(t *testing.T, topic string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("topic", topic))
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) seed(status models.JobStatus, mutate ...func(*models.Job)) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:              uuid.New(),
		UserID:          testUser,
		Status:          status,
		Topic:           "Photosynthesis",
		SourceBlobNames: models.StringSlice{"temp/source.pdf"},
		VoiceConfig:     models.JSON{},
		DispatchedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, m := range mutate {
		m(job)
	}
	s.store.PutJob(job)
	return job
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.checks["database"] = func(ctx context.Context) error { return nil }

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, serviceName, resp.Service)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Contains(t, resp.Details, "consumer")

	s.checks["broker"] = func(ctx context.Context) error { return errors.New("connection closed") }
	w = s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "connection closed", decode[models.HealthResponse](t, w).Checks["broker"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	body, contentType := submission(t, "Photosynthesis", map[string]string{"lesson.pdf": "chlorophyll"})
	req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs", body)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusAccepted, s.do(req).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "eduva_ai_jobs_submitted_total 1")
}

func TestSwaggerDocs(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Eduva AI Pipeline API")
	assert.Contains(t, w.Body.String(), "/ai-jobs/{id}/confirm")

	prod := gin.New()
	SetupSwagger(prod, "production")
	w = httptest.NewRecorder()
	prod.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateJobEndpoint(t *testing.T) {
	s := newTestServer(t)

	body, contentType := submission(t, "  Photosynthesis  ", map[string]string{
		"Chapter 3.pdf": "light reactions",
		"notes.txt":     "calvin cycle",
	})
	req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs", body)
	req.Header.Set("Content-Type", contentType)

	w := s.do(req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	result := decode[jobs.SubmitResult](t, w)
	assert.Equal(t, models.StatusProcessing, result.Status)

	job := s.store.Job(result.JobID)
	require.NotNil(t, job)
	assert.Equal(t, "Photosynthesis", job.Topic)
	assert.Equal(t, testUser, job.UserID)
	assert.Len(t, job.SourceBlobNames, 2)
	require.Len(t, s.publisher.Messages(), 1)
	assert.Equal(t, models.TaskGenerateContent, s.publisher.Messages()[0].Task)
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		topic string
		files map[string]string
	}{
		{"missing topic", "", map[string]string{"lesson.pdf": "x"}},
		{"no files", "Photosynthesis", nil},
		{"forbidden extension", "Photosynthesis", map[string]string{"virus.exe": "x"}},
		{"empty file", "Photosynthesis", map[string]string{"lesson.pdf": ""}},
		{"topic too long", strings.Repeat("a", models.MaxTopicLength+1), map[string]string{"lesson.pdf": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := submission(t, tt.topic, tt.files)
			req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs", body)
			req.Header.Set("Content-Type", contentType)

			w := s.do(req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "validation_errors")
		})
	}
	assert.Equal(t, 0, s.store.JobCount())
}

func TestCreateJobBodyTooLarge(t *testing.T) {
	s := newTestServer(t)

	body, contentType := submission(t, "Photosynthesis", map[string]string{
		"lesson.pdf": strings.Repeat("x", 2<<20),
	})
	req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs", body)
	req.Header.Set("Content-Type", contentType)

	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
	assert.Equal(t, 0, s.store.JobCount())
}

func TestGetJobEndpoint(t *testing.T) {
	s := newTestServer(t)
	job := s.seed(models.StatusContentGenerated, func(j *models.Job) {
		words, audio, video := 500, int64(20), int64(40)
		blob := "outputs/content.json"
		j.WordCount, j.AudioCost, j.VideoCost = &words, &audio, &video
		j.ContentBlobName = &blob
	})

	w := s.do(s.authed(t, http.MethodGet, "/api/v1/ai-jobs/"+job.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.JobResponse](t, w)
	assert.Equal(t, job.ID, resp.ID)
	assert.Equal(t, models.StatusContentGenerated, resp.Status)
	require.NotNil(t, resp.VideoCost)
	assert.Equal(t, int64(40), *resp.VideoCost)
	assert.NotContains(t, w.Body.String(), "outputs/content.json")
}

func TestGetJobErrors(t *testing.T) {
	s := newTestServer(t)
	other := s.seed(models.StatusProcessing, func(j *models.Job) { j.UserID = "user-2" })

	w := s.do(s.authed(t, http.MethodGet, "/api/v1/ai-jobs/invalid-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(s.authed(t, http.MethodGet, "/api/v1/ai-jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, jobs.CodeJobNotFound, decode[models.ErrorResponse](t, w).Code)

	w = s.do(s.authed(t, http.MethodGet, "/api/v1/ai-jobs/"+other.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func confirmBody(t *testing.T, serviceType models.ServiceType) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(models.ConfirmJobRequest{ServiceType: serviceType, VoiceConfig: models.JSON{"voice": "alloy"}})
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func generatedJob(s *testServer) *models.Job {
	return s.seed(models.StatusContentGenerated, func(j *models.Job) {
		words, minutes, audio, video := 500, 2.0, int64(20), int64(40)
		blob := "outputs/content.json"
		j.WordCount, j.DurationMinutes = &words, &minutes
		j.AudioCost, j.VideoCost = &audio, &video
		j.ContentBlobName = &blob
	})
}

func TestConfirmJobEndpoint(t *testing.T) {
	s := newTestServer(t)
	job := generatedJob(s)

	req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs/"+job.ID.String()+"/confirm", confirmBody(t, models.ServiceGenVideo))
	req.Header.Set("Content-Type", "application/json")

	w := s.do(req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, models.StatusCreatingProduct, decode[jobs.SubmitResult](t, w).Status)
	assert.Equal(t, int64(60), s.store.Balance(testUser))
	assert.Equal(t, models.StatusCreatingProduct, s.store.Job(job.ID).Status)

	// Une seconde confirmation ne débite pas
	req = s.authed(t, http.MethodPost, "/api/v1/ai-jobs/"+job.ID.String()+"/confirm", confirmBody(t, models.ServiceGenVideo))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, jobs.CodeAlreadyConfirmed, decode[models.ErrorResponse](t, w).Code)
	assert.Equal(t, int64(60), s.store.Balance(testUser))
}

func TestConfirmJobErrors(t *testing.T) {
	s := newTestServer(t)
	s.store.SetBalance(testUser, 10)
	job := generatedJob(s)
	processing := s.seed(models.StatusProcessing)

	tests := []struct {
		name   string
		id     string
		body   *bytes.Buffer
		status int
		code   string
	}{
		{"insufficient credits", job.ID.String(), confirmBody(t, models.ServiceGenVideo), http.StatusPaymentRequired, jobs.CodeInsufficientCredits},
		{"still generating", processing.ID.String(), confirmBody(t, models.ServiceGenAudio), http.StatusConflict, jobs.CodeStillGenerating},
		{"unknown job", uuid.NewString(), confirmBody(t, models.ServiceGenAudio), http.StatusNotFound, jobs.CodeJobNotFound},
		{"bad service type", job.ID.String(), confirmBody(t, "GenPodcast"), http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed json", job.ID.String(), bytes.NewBufferString("{"), http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := s.authed(t, http.MethodPost, "/api/v1/ai-jobs/"+tt.id+"/confirm", tt.body)
			req.Header.Set("Content-Type", "application/json")

			w := s.do(req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[models.ErrorResponse](t, w).Code)
		})
	}
	assert.Equal(t, int64(10), s.store.Balance(testUser))
}

func progressRequest(t *testing.T, id uuid.UUID, report models.ProgressReport) *http.Request {
	t.Helper()
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/ai-jobs/"+id.String()+"/progress", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WorkerTokenHeader, testWorkerToken)
	return req
}

func TestReportProgressEndpoint(t *testing.T) {
	s := newTestServer(t)
	job := s.seed(models.StatusProcessing)

	words := 125
	blob := "outputs/" + job.ID.String() + "/content.json"
	w := s.do(progressRequest(t, job.ID, models.ProgressReport{
		Status:          models.StatusContentGenerated,
		WordCount:       &words,
		ContentBlobName: &blob,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored := s.store.Job(job.ID)
	assert.Equal(t, models.StatusContentGenerated, stored.Status)
	require.NotNil(t, stored.AudioCost)
	assert.Equal(t, int64(5), *stored.AudioCost)
	assert.Equal(t, int64(10), *stored.VideoCost)

	// Completed -> Processing est refusé
	done := s.seed(models.StatusCompleted)
	w = s.do(progressRequest(t, done.ID, models.ProgressReport{Status: models.StatusProcessing}))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, jobs.CodeInvalidTransition, decode[models.ErrorResponse](t, w).Code)

	w = s.do(progressRequest(t, job.ID, models.ProgressReport{JobID: uuid.New(), Status: models.StatusFailed}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportProgressRequiresWorkerToken(t *testing.T) {
	s := newTestServer(t)
	job := s.seed(models.StatusProcessing)

	req := progressRequest(t, job.ID, models.ProgressReport{Status: models.StatusFailed})
	req.Header.Set(WorkerTokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)

	req = progressRequest(t, job.ID, models.ProgressReport{Status: models.StatusFailed})
	req.Header.Set("Authorization", "Bearer "+userToken(t, testUser))
	req.Header.Del(WorkerTokenHeader)
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)

	assert.Equal(t, models.StatusProcessing, s.store.Job(job.ID).Status)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{jobs.NewError(jobs.KindNotFound, jobs.CodeJobNotFound, "x"), http.StatusNotFound},
		{jobs.NewError(jobs.KindInvalidState, jobs.CodeJobFailed, "x"), http.StatusConflict},
		{jobs.NewError(jobs.KindConflict, jobs.CodeConcurrentUpdate, "x"), http.StatusConflict},
		{jobs.NewError(jobs.KindValidation, jobs.CodeInvalidInput, "x"), http.StatusBadRequest},
		{jobs.NewError(jobs.KindInsufficientFunds, jobs.CodeInsufficientCredits, "x"), http.StatusPaymentRequired},
		{jobs.NewError(jobs.KindUpstream, jobs.CodeUploadFailed, "x"), http.StatusBadGateway},
		{jobs.NewError(jobs.KindUpstream, jobs.CodeStorageFailed, "x"), http.StatusServiceUnavailable},
		{jobs.NewError(jobs.KindInternal, jobs.CodeInternal, "x"), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
