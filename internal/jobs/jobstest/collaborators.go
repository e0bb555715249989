package jobstest

import (
	"context"
	"errors"
	"sync"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// Published is one message accepted by RecordingPublisher.
type Published struct {
	Task    models.TaskType
	Message any
}

// RecordingPublisher keeps every published message. When Err is set, Publish
// fails and records nothing.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Published
	attempts int
	Err      error
}

func (p *RecordingPublisher) Publish(ctx context.Context, task models.TaskType, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.Err != nil {
		return p.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.messages = append(p.messages, Published{Task: task, Message: message})
	return nil
}

func (p *RecordingPublisher) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

func (p *RecordingPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.messages...)
}

func (p *RecordingPublisher) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Notification is one event handed to RecordingNotifier.
type Notification struct {
	UserID string
	Event  models.Event
}

type RecordingNotifier struct {
	mu     sync.Mutex
	events []Notification
	Err    error
}

func (n *RecordingNotifier) NotifyUser(ctx context.Context, userID string, event models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.events = append(n.events, Notification{UserID: userID, Event: event})
	return nil
}

func (n *RecordingNotifier) Events() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.events...)
}

// FakeBlobs is an object store that keeps names only.
type FakeBlobs struct {
	mu         sync.Mutex
	BaseURL    string
	UploadErr  error
	ResolveErr error
	uploaded   []string
	deleted    []string
}

func NewFakeBlobs() *FakeBlobs {
	return &FakeBlobs{BaseURL: "https://blobs.test/"}
}

func (b *FakeBlobs) UploadSources(ctx context.Context, files []storage.SourceFile) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.UploadErr != nil {
		return nil, b.UploadErr
	}
	names := make([]string, len(files))
	for i, f := range files {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		rc.Close()
		names[i] = storage.NewTempBlobName(f.Filename)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploaded = append(b.uploaded, names...)
	return names, nil
}

func (b *FakeBlobs) ResolveURL(ctx context.Context, blobName string) (string, string, error) {
	if b.ResolveErr != nil {
		return "", "", b.ResolveErr
	}
	canonical, err := storage.CanonicalBlobName(blobName)
	if err != nil {
		return "", "", err
	}
	if b.BaseURL == "" {
		return "", "", errors.New("no base url")
	}
	return canonical, b.BaseURL + canonical, nil
}

func (b *FakeBlobs) DeleteBlobs(ctx context.Context, blobNames []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, blobNames...)
}

func (b *FakeBlobs) Uploaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploaded...)
}

func (b *FakeBlobs) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}
