package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

func TestSubmitJob(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.SubmitJob(context.Background(), testUser, []storage.SourceFile{
		textFile("Chapter 1.PDF", "chlorophyll"),
		textFile("notes.docx", "light"),
	}, "  Photosynthesis ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, result.Status)

	job := f.store.Job(result.JobID)
	require.NotNil(t, job)
	assert.Equal(t, testUser, job.UserID)
	assert.Equal(t, "Photosynthesis", job.Topic)
	assert.Equal(t, f.now, job.DispatchedAt)
	require.Len(t, job.SourceBlobNames, 2)
	assert.True(t, strings.HasPrefix(job.SourceBlobNames[0], "temp/"))
	assert.True(t, strings.HasSuffix(job.SourceBlobNames[0], ".pdf"))
	assert.True(t, strings.HasSuffix(job.SourceBlobNames[1], ".docx"))

	published := f.publisher.Messages()
	require.Len(t, published, 1)
	assert.Equal(t, models.TaskGenerateContent, published[0].Task)
	msg, ok := published[0].Message.(models.GenerateContentMessage)
	require.True(t, ok)
	assert.Equal(t, result.JobID, msg.JobID)
	assert.Equal(t, models.TaskGenerateContent, msg.TaskType)
	assert.Equal(t, "Photosynthesis", msg.Topic)
	assert.Equal(t, []string(job.SourceBlobNames), msg.SourceBlobNames)
}

func TestSubmitJobValidation(t *testing.T) {
	f := newFixture(t)
	files := []storage.SourceFile{textFile("a.pdf", "x")}

	tests := []struct {
		name   string
		userID string
		files  []storage.SourceFile
		topic  string
	}{
		{"missing user", "", files, "Photosynthesis"},
		{"no files", testUser, nil, "Photosynthesis"},
		{"blank topic", testUser, files, "   "},
		{"topic too long", testUser, files, strings.Repeat("é", models.MaxTopicLength+1)},
		{"file without content", testUser, []storage.SourceFile{{Filename: "a.pdf"}}, "Photosynthesis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitJob(context.Background(), tt.userID, tt.files, tt.topic)
			requireCode(t, err, jobs.CodeInvalidInput)
			assert.True(t, jobs.IsKind(err, jobs.KindValidation))
		})
	}

	assert.Zero(t, f.store.JobCount())
	assert.Empty(t, f.publisher.Messages())
}

func TestSubmitJobTopicAtLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitJob(context.Background(), testUser,
		[]storage.SourceFile{textFile("a.pdf", "x")}, strings.Repeat("é", models.MaxTopicLength))
	assert.NoError(t, err)
}

func TestSubmitJobUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.UploadErr = errors.New("bucket unreachable")

	_, err := f.svc.SubmitJob(context.Background(), testUser,
		[]storage.SourceFile{textFile("a.pdf", "x")}, "Photosynthesis")

	requireCode(t, err, jobs.CodeUploadFailed)
	assert.True(t, jobs.Retryable(err))
	assert.Zero(t, f.store.JobCount())
	assert.Empty(t, f.publisher.Messages())
}

func TestSubmitJobPersistFailureRemovesBlobs(t *testing.T) {
	f := newFixture(t)
	f.store.FailCommits(errors.New("database is down"))

	_, err := f.svc.SubmitJob(context.Background(), testUser,
		[]storage.SourceFile{textFile("a.pdf", "x"), textFile("b.pdf", "y")}, "Photosynthesis")

	requireCode(t, err, jobs.CodeInternal)
	assert.ElementsMatch(t, f.blobs.Uploaded(), f.blobs.Deleted())
	assert.Empty(t, f.publisher.Messages())
}

func TestSubmitJobPublishFailureKeepsJob(t *testing.T) {
	f := newFixture(t)
	f.publisher.SetErr(errors.New("broker closed"))

	result, err := f.svc.SubmitJob(context.Background(), testUser,
		[]storage.SourceFile{textFile("a.pdf", "x")}, "Photosynthesis")
	require.NoError(t, err)

	job := f.store.Job(result.JobID)
	require.NotNil(t, job)
	assert.Equal(t, models.StatusProcessing, job.Status)
	assert.Equal(t, 1, f.publisher.Attempts())
	assert.Empty(t, f.blobs.Deleted())
}

func TestSubmitJobCancelledBeforeCommit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.SubmitJob(ctx, testUser, []storage.SourceFile{textFile("a.pdf", "x")}, "Photosynthesis")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.store.JobCount())
	assert.Empty(t, f.publisher.Messages())
}

func TestGetJobHidesOtherUsers(t *testing.T) {
	f := newFixture(t)
	job := f.seed(t, models.StatusProcessing)

	got, err := f.svc.GetJob(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = f.svc.GetJob(context.Background(), "someone-else", job.ID)
	requireCode(t, err, jobs.CodeJobNotFound)
	assert.True(t, jobs.IsKind(err, jobs.KindNotFound))
}
