package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/src/core/rag"
	"pdfrag/src/infrastructure/job"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]*job.Job
	trail  map[int][]job.JobStatus
	// failCompleted makes that many "completed" updates fail.
	failCompleted int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{jobs: map[int]*job.Job{}, trail: map[int][]job.JobStatus{}}
}

func (r *memoryRepo) Create(ctx context.Context, taskType string, payload json.RawMessage) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	j := &job.Job{ID: r.nextID, TaskType: taskType, Payload: payload, Status: job.JobStatusPending}
	r.jobs[j.ID] = j
	r.trail[j.ID] = []job.JobStatus{job.JobStatusPending}
	return j, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *j
	return &copied, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int, status job.JobStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	if status == job.JobStatusCompleted && r.failCompleted > 0 {
		r.failCompleted--
		return errors.New("connection reset")
	}
	j.Status = status
	j.Error = errMsg
	r.trail[id] = append(r.trail[id], status)
	return nil
}

type fakeObjects map[string][]byte

func (f fakeObjects) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f fakeObjects) Remove(ctx context.Context, url string) error {
	delete(f, url)
	return nil
}

type textExtractor struct{}

func (textExtractor) ExtractPages(ctx context.Context, filename string, content []byte) ([]rag.PageText, error) {
	var pages []rag.PageText
	for i, p := range strings.Split(string(content), "\f") {
		pages = append(pages, rag.PageText{PageNumber: i + 1, Text: p})
	}
	return pages, nil
}

type fakeUploader struct {
	err  error
	reqs []rag.IngestRequest
}

func (u *fakeUploader) Upload(ctx context.Context, req rag.IngestRequest) (*rag.IngestionSummary, error) {
	u.reqs = append(u.reqs, req)
	if u.err != nil {
		return nil, u.err
	}
	return &rag.IngestionSummary{DocumentName: req.DocumentName, ChunkCount: len(req.Pages), PageCount: len(req.Pages)}, nil
}

func newService(t *testing.T, uploader *fakeUploader) (*job.JobService, *memoryRepo, <-chan *message.Message) {
	svc, repo, messages, _ := newServiceWithObjects(t, uploader)
	return svc, repo, messages
}

func newServiceWithObjects(t *testing.T, uploader *fakeUploader) (*job.JobService, *memoryRepo, <-chan *message.Message, fakeObjects) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	messages, err := pubSub.Subscribe(context.Background(), job.JobsTopic)
	require.NoError(t, err)

	repo := newMemoryRepo()
	objects := fakeObjects{"uploads/a.txt": []byte("page one\fpage two")}
	task := job.NewIngestTask(objects, textExtractor{}, uploader)
	return job.NewJobService(pubSub, repo, job.NewLoggerAdapter(), task), repo, messages, objects
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no job message published")
		return nil
	}
}

func TestJobService_EnqueueAndProcess(t *testing.T) {
	uploader := &fakeUploader{}
	svc, repo, messages := newService(t, uploader)

	created, err := svc.EnqueueIngest(context.Background(), job.IngestPayload{
		DocumentName: "handbook",
		FileName:     "a.txt",
		ObjectURL:    "uploads/a.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusPending, created.Status)

	msg := receive(t, messages)
	var jobMsg job.JobMessage
	require.NoError(t, json.Unmarshal(msg.Payload, &jobMsg))
	assert.Equal(t, created.ID, jobMsg.JobID)
	assert.Equal(t, job.TaskTypeIngest, jobMsg.TaskType)

	require.NoError(t, svc.ProcessJobMessage(msg))

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusCompleted, stored.Status)
	assert.Nil(t, stored.Error)
	assert.Equal(t, []job.JobStatus{job.JobStatusPending, job.JobStatusRunning, job.JobStatusCompleted}, repo.trail[created.ID])

	require.Len(t, uploader.reqs, 1)
	assert.Equal(t, "handbook", uploader.reqs[0].DocumentName)
	assert.Equal(t, []rag.PageText{{PageNumber: 1, Text: "page one"}, {PageNumber: 2, Text: "page two"}}, uploader.reqs[0].Pages)
}

func TestJobService_ProcessFailures(t *testing.T) {
	tests := []struct {
		name        string
		uploadErr   error
		objectURL   string
		wantReturn  bool
		wantRemoved bool
	}{
		{
			name:        "duplicate document is not retried and its upload is removed",
			uploadErr:   rag.ErrDuplicateDocument,
			objectURL:   "uploads/a.txt",
			wantRemoved: true,
		},
		{
			name:        "validation failure removes the upload",
			uploadErr:   rag.ErrValidation,
			objectURL:   "uploads/a.txt",
			wantRemoved: true,
		},
		{
			name:       "backend failure is returned for retry and keeps the upload",
			uploadErr:  rag.NewBackendError("embedding", errors.New("503")),
			objectURL:  "uploads/a.txt",
			wantReturn: true,
		},
		{
			name:       "missing object is returned for retry",
			objectURL:  "uploads/missing.txt",
			wantReturn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, messages, objects := newServiceWithObjects(t, &fakeUploader{err: tt.uploadErr})

			created, err := svc.EnqueueIngest(context.Background(), job.IngestPayload{
				DocumentName: "doc",
				FileName:     "a.txt",
				ObjectURL:    tt.objectURL,
			})
			require.NoError(t, err)

			err = svc.ProcessJobMessage(receive(t, messages))
			if tt.wantReturn {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			stored, err := repo.Get(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, job.JobStatusFailed, stored.Status)
			require.NotNil(t, stored.Error)

			_, kept := objects["uploads/a.txt"]
			assert.Equal(t, !tt.wantRemoved, kept)
		})
	}
}

func TestJobService_UnknownTaskAndMalformedMessages(t *testing.T) {
	svc, repo, messages := newService(t, &fakeUploader{})

	created, err := svc.EnqueueJob(context.Background(), "reindex", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, svc.ProcessJobMessage(receive(t, messages)))

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusFailed, stored.Status)
	assert.Contains(t, *stored.Error, "unknown task type")

	assert.NoError(t, svc.ProcessJobMessage(message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	assert.NoError(t, svc.ProcessJobMessage(message.NewMessage(watermill.NewUUID(), []byte(`{"job_id":999}`))))
}

func TestJobService_RedeliveryAfterStatusWriteFailure(t *testing.T) {
	uploader := &fakeUploader{}
	svc, repo, messages := newService(t, uploader)
	repo.failCompleted = 1

	created, err := svc.EnqueueIngest(context.Background(), job.IngestPayload{
		DocumentName: "handbook",
		FileName:     "a.txt",
		ObjectURL:    "uploads/a.txt",
	})
	require.NoError(t, err)
	msg := receive(t, messages)

	require.Error(t, svc.ProcessJobMessage(msg), "a lost status write is returned for retry")
	require.NoError(t, svc.ProcessJobMessage(msg))

	assert.Len(t, uploader.reqs, 1, "the document is ingested once")
	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusCompleted, stored.Status)
	assert.Nil(t, stored.Error)

	require.NoError(t, svc.ProcessJobMessage(msg))
	assert.Len(t, uploader.reqs, 1, "completed jobs are not run again")
}
