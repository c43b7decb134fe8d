package pipeline

import (
	"context"
	"errors"
	"testing"

	"policyqa-go/internal/model"
	"policyqa-go/internal/repository"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	jobs map[string]*model.IngestJob
}

func newFakeJobs(ids ...string) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*model.IngestJob{}}
	for _, id := range ids {
		f.jobs[id] = &model.IngestJob{ID: id, Status: model.JobStatusPending}
	}
	return f
}

func (f *fakeJobs) Create(job *model.IngestJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) Get(id string) (*model.IngestJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) MarkRunning(id string) error {
	f.jobs[id].Status = model.JobStatusRunning
	return nil
}

func (f *fakeJobs) Finish(id string, chunks int, errMsg string) error {
	job := f.jobs[id]
	job.Chunks, job.Error, job.Status = chunks, errMsg, model.JobStatusDone
	if errMsg != "" {
		job.Status = model.JobStatusFailed
	}
	return nil
}

func archive(t *testing.T, blobs storage.BlobStore, userID, name, content string) {
	ns, err := storage.Namespace(userID)
	require.NoError(t, err)
	require.NoError(t, blobs.Upload(context.Background(), ns, storage.ArchiveName(name), []byte(content)))
}

func TestProcessor_Success(t *testing.T) {
	p, blobs, _, _ := newTestPipeline(t)
	jobs := newFakeJobs("j1")
	archive(t, blobs, "alice", "a.pdf", "a b c d e f")

	err := NewProcessor(p, blobs, jobs).Process(context.Background(), tasks.IngestTask{JobID: "j1", UserID: "alice", FileNames: []string{"a.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusDone, jobs.jobs["j1"].Status)
	assert.Equal(t, 2, jobs.jobs["j1"].Chunks)
	_, err = p.Query(context.Background(), "alice", "a b", 1)
	assert.NoError(t, err)
}

func TestProcessor_PermanentFailuresAreNotRetried(t *testing.T) {
	p, blobs, _, _ := newTestPipeline(t)
	jobs := newFakeJobs("missing", "empty")
	archive(t, blobs, "alice", "blank.pdf", "  ")
	proc := NewProcessor(p, blobs, jobs)

	err := proc.Process(context.Background(), tasks.IngestTask{JobID: "missing", UserID: "alice", FileNames: []string{"gone.pdf"}})
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, jobs.jobs["missing"].Status)

	err = proc.Process(context.Background(), tasks.IngestTask{JobID: "empty", UserID: "alice", FileNames: []string{"blank.pdf"}})
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, jobs.jobs["empty"].Status)
	assert.Contains(t, jobs.jobs["empty"].Error, model.ErrEmptyCorpus.Error())
}

func TestProcessor_TransientFailureIsReturned(t *testing.T) {
	p, blobs, emb, _ := newTestPipeline(t)
	emb.err = errors.New("embedding api returned non-200 status: 503")
	jobs := newFakeJobs("j1")
	archive(t, blobs, "alice", "a.pdf", "a b c")

	proc := NewProcessor(p, blobs, jobs)
	task := tasks.IngestTask{JobID: "j1", UserID: "alice", FileNames: []string{"a.pdf"}}
	err := proc.Process(context.Background(), task)
	assert.Error(t, err)
	// 等待消费者重试，任务保持 running
	assert.Equal(t, model.JobStatusRunning, jobs.jobs["j1"].Status)
	assert.Empty(t, jobs.jobs["j1"].Error)

	proc.Abandon(context.Background(), task, err)
	assert.Equal(t, model.JobStatusFailed, jobs.jobs["j1"].Status)
	assert.Contains(t, jobs.jobs["j1"].Error, "503")
}

func TestProcessor_InvalidUserIDIsPermanent(t *testing.T) {
	p, blobs, _, _ := newTestPipeline(t)
	jobs := newFakeJobs("j1")

	err := NewProcessor(p, blobs, jobs).Process(context.Background(), tasks.IngestTask{JobID: "j1", UserID: "x/../../victim", FileNames: []string{"a.pdf"}})
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, jobs.jobs["j1"].Status)
	assert.Contains(t, jobs.jobs["j1"].Error, storage.ErrInvalidUserID.Error())
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(model.ErrEmptyCorpus))
	assert.False(t, retryable(model.ErrUnsupportedInput))
	assert.True(t, retryable(model.ErrRemoteStoreUnavailable))
	assert.True(t, retryable(errors.New("timeout")))
}
