package jobs_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs/jobstest"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

const testUser = "user-1"

type fixture struct {
	store     *jobstest.MemoryStore
	publisher *jobstest.RecordingPublisher
	notifier  *jobstest.RecordingNotifier
	blobs     *jobstest.FakeBlobs
	now       time.Time
	deps      jobs.Dependencies
	svc       jobs.JobService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPrices(t, map[models.ServiceType]int64{
		models.ServiceGenAudio: 10,
		models.ServiceGenVideo: 20,
	})
}

func newFixtureWithPrices(t *testing.T, prices map[models.ServiceType]int64) *fixture {
	t.Helper()

	f := &fixture{
		store:     jobstest.NewMemoryStore(),
		publisher: &jobstest.RecordingPublisher{},
		notifier:  &jobstest.RecordingNotifier{},
		blobs:     jobstest.NewFakeBlobs(),
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	for serviceType, price := range prices {
		f.store.SetPrice(serviceType, price)
	}
	f.store.SetBalance(testUser, 100)

	f.deps = jobs.Dependencies{
		Store:          f.store,
		Blobs:          f.blobs,
		Publisher:      f.publisher,
		Notifier:       f.notifier,
		Logger:         zerolog.Nop(),
		PublishTimeout: time.Second,
		NotifyTimeout:  time.Second,
		Now:            func() time.Time { return f.now },
	}
	f.svc = jobs.NewJobService(f.deps)
	return f
}

// seed stores a job directly, bypassing submission.
func (f *fixture) seed(t *testing.T, status models.JobStatus, mutate ...func(*models.Job)) *models.Job {
	t.Helper()

	job := &models.Job{
		ID:              uuid.New(),
		UserID:          testUser,
		Status:          status,
		Topic:           "Photosynthesis",
		SourceBlobNames: models.StringSlice{"temp/source.pdf"},
		VoiceConfig:     models.JSON{},
		DispatchedAt:    f.now,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	for _, m := range mutate {
		m(job)
	}
	f.store.PutJob(job)
	require.NotNil(t, f.store.Job(job.ID))
	return job
}

// generated prepares a job ready for confirmation.
func generated(job *models.Job) {
	job.WordCount = ptr(500)
	job.DurationMinutes = ptr(2.0)
	job.AudioCost = ptr(int64(20))
	job.VideoCost = ptr(int64(40))
	job.ContentBlobName = ptr("generated/content.json")
	job.ContentURL = ptr("https://blobs.test/generated/content.json")
}

func textFile(name, content string) storage.SourceFile {
	return storage.SourceFile{
		Filename: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, jobs.CodeOf(err), err.Error())
}

func statuses(events []jobstest.Notification) []models.JobStatus {
	out := make([]models.JobStatus, 0, len(events))
	for _, e := range events {
		out = append(out, e.Event.(models.JobStatusUpdated).Status)
	}
	return out
}
