package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"policyqa-go/internal/config"
	"policyqa-go/internal/model"
	"policyqa-go/internal/pipeline"
	"policyqa-go/internal/repository"
	"policyqa-go/pkg/llm"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterEmbedder 统计 a-h 八个字母的出现次数作为向量。
type letterEmbedder struct{}

func (letterEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 8)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'h' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type textExtractor struct{}

func (textExtractor) ExtractPages(_ context.Context, _ string, data []byte) ([]model.Page, error) {
	return []model.Page{{Number: 1, Text: string(data)}}, nil
}

type okInspector struct{}

func (okInspector) PageCount([]byte) (int, error) { return 1, nil }

func newPipeline(t *testing.T, blobs storage.BlobStore) *pipeline.Pipeline {
	cfg := config.DefaultRetrievalConfig()
	cfg.Dimensions = 8
	cfg.DataDir = t.TempDir()
	p, err := pipeline.New(cfg, pipeline.Dependencies{
		Embedder:  letterEmbedder{},
		Extractor: textExtractor{},
		Inspector: okInspector{},
		Blobs:     blobs,
	})
	require.NoError(t, err)
	return p
}

type memJobs struct {
	jobs map[string]*model.IngestJob
}

func (m *memJobs) Create(job *model.IngestJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) Get(id string) (*model.IngestJob, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, repository.ErrJobNotFound
}

func (m *memJobs) MarkRunning(id string) error {
	m.jobs[id].Status = model.JobStatusRunning
	return nil
}

func (m *memJobs) Finish(id string, chunks int, errMsg string) error {
	m.jobs[id].Chunks, m.jobs[id].Error, m.jobs[id].Status = chunks, errMsg, model.JobStatusFailed
	if errMsg == "" {
		m.jobs[id].Status = model.JobStatusDone
	}
	return nil
}

type recordingProducer struct {
	tasks []tasks.IngestTask
	err   error
}

func (p *recordingProducer) ProduceIngestTask(_ context.Context, task tasks.IngestTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type stubLLM struct {
	answer   string
	err      error
	messages []llm.Message
}

func (s *stubLLM) Chat(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	s.messages = messages
	return s.answer, s.err
}

func TestDocumentService_IngestNowArchivesRawPDF(t *testing.T) {
	blobs := storage.NewMemoryStore()
	svc := NewDocumentService(newPipeline(t, blobs), blobs, nil, nil)

	res, err := svc.IngestNow(context.Background(), "alice", []pipeline.Document{{Name: "leave.pdf", Data: []byte("annual leave is twenty days")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	raw, err := blobs.Download(context.Background(), "user_alice", "pdfs/leave.pdf")
	require.NoError(t, err)
	assert.Equal(t, "annual leave is twenty days", string(raw))
	assert.Contains(t, blobs.Keys(), "user_alice/index.flat")
}

func TestDocumentService_RejectsBeforeArchiving(t *testing.T) {
	blobs := storage.NewMemoryStore()
	svc := NewDocumentService(newPipeline(t, blobs), blobs, nil, nil)

	_, err := svc.IngestNow(context.Background(), "alice", []pipeline.Document{{Name: "notes.docx", Data: []byte("x")}})
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)
	assert.Empty(t, blobs.Keys())
}

func TestDocumentService_RejectsDuplicateNamesAndUnsafeUser(t *testing.T) {
	blobs := storage.NewMemoryStore()
	jobs := &memJobs{jobs: map[string]*model.IngestJob{}}
	producer := &recordingProducer{}
	svc := NewDocumentService(newPipeline(t, blobs), blobs, jobs, producer)

	_, err := svc.Enqueue(context.Background(), "alice", []pipeline.Document{
		{Name: "a.pdf", Data: []byte("first")},
		{Name: "upload/a.pdf", Data: []byte("second")},
	})
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)

	_, err = svc.Enqueue(context.Background(), "x/../../victim", []pipeline.Document{{Name: "a.pdf", Data: []byte("a")}})
	assert.ErrorIs(t, err, model.ErrUnsupportedInput)

	assert.Empty(t, blobs.Keys())
	assert.Empty(t, jobs.jobs)
	assert.Empty(t, producer.tasks)
}

func TestDocumentService_EnqueueAndGetJob(t *testing.T) {
	blobs := storage.NewMemoryStore()
	jobs := &memJobs{jobs: map[string]*model.IngestJob{}}
	producer := &recordingProducer{}
	svc := NewDocumentService(newPipeline(t, blobs), blobs, jobs, producer)

	job, err := svc.Enqueue(context.Background(), "alice", []pipeline.Document{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.pdf", Data: []byte("b")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "a.pdf\nb.pdf", job.FileNames)
	require.Len(t, producer.tasks, 1)
	assert.Equal(t, tasks.IngestTask{JobID: job.ID, UserID: "alice", FileNames: []string{"a.pdf", "b.pdf"}}, producer.tasks[0])
	assert.ElementsMatch(t, []string{"user_alice/pdfs/a.pdf", "user_alice/pdfs/b.pdf"}, blobs.Keys())

	got, err := svc.GetJob("alice", job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.GetJob("bob", job.ID)
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestDocumentService_EnqueueProducerFailureMarksJobFailed(t *testing.T) {
	blobs := storage.NewMemoryStore()
	jobs := &memJobs{jobs: map[string]*model.IngestJob{}}
	svc := NewDocumentService(newPipeline(t, blobs), blobs, jobs, &recordingProducer{err: errors.New("broker down")})

	_, err := svc.Enqueue(context.Background(), "alice", []pipeline.Document{{Name: "a.pdf", Data: []byte("a")}})
	require.Error(t, err)
	require.Len(t, jobs.jobs, 1)
	for _, job := range jobs.jobs {
		assert.Equal(t, model.JobStatusFailed, job.Status)
	}
}

func TestDocumentService_AsyncDisabled(t *testing.T) {
	blobs := storage.NewMemoryStore()
	svc := NewDocumentService(newPipeline(t, blobs), blobs, nil, nil)

	_, err := svc.Enqueue(context.Background(), "alice", []pipeline.Document{{Name: "a.pdf"}})
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	_, err = svc.GetJob("alice", "x")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
}

func TestQAService_AskBuildsGroundedPrompt(t *testing.T) {
	blobs := storage.NewMemoryStore()
	p := newPipeline(t, blobs)
	long := strings.Repeat("h", 200)
	_, err := NewDocumentService(p, blobs, nil, nil).IngestNow(context.Background(), "alice", []pipeline.Document{
		{Name: "a.pdf", Data: []byte("aaa")},
		{Name: "h.pdf", Data: []byte(long)},
	})
	require.NoError(t, err)

	stub := &stubLLM{answer: "Twenty days [Doc: a.pdf, p.1]"}
	answer, err := NewQAService(p, stub, config.LLMPromptConfig{}).Ask(context.Background(), "alice", "aa", 2)
	require.NoError(t, err)

	assert.Equal(t, "aa", answer.Question)
	assert.Equal(t, "Twenty days [Doc: a.pdf, p.1]", answer.Answer)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, model.Source{DocumentName: "a.pdf", Page: 1, Score: 1, Preview: "aaa"}, answer.Sources[0])
	assert.Equal(t, strings.Repeat("h", 160)+"…", answer.Sources[1].Preview)

	require.Len(t, stub.messages, 2)
	assert.Equal(t, DefaultRules, stub.messages[0].Content)
	assert.Contains(t, stub.messages[1].Content, "Question: aa")
	assert.Contains(t, stub.messages[1].Content, "[1] DOC=a.pdf PAGE=1\naaa\n")
	assert.Contains(t, stub.messages[1].Content, "\n---\n[2] DOC=h.pdf PAGE=1\n")
}

func TestQAService_PropagatesErrors(t *testing.T) {
	blobs := storage.NewMemoryStore()
	p := newPipeline(t, blobs)
	qa := NewQAService(p, &stubLLM{err: errors.New("429")}, config.LLMPromptConfig{Rules: "custom"})

	_, err := qa.Ask(context.Background(), "ghost", "q", 0)
	assert.ErrorIs(t, err, model.ErrNamespaceNotFound)

	_, err = NewDocumentService(p, blobs, nil, nil).IngestNow(context.Background(), "alice", []pipeline.Document{{Name: "a.pdf", Data: []byte("abc")}})
	require.NoError(t, err)
	_, err = qa.Ask(context.Background(), "alice", "abc", 0)
	assert.ErrorContains(t, err, "429")
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]model.Snippet{
		{DocumentName: "a.pdf", Page: 1, Text: "x"},
		{DocumentName: "b.pdf", Page: 3, Text: "y"},
	})
	assert.Equal(t, "[1] DOC=a.pdf PAGE=1\nx\n\n---\n[2] DOC=b.pdf PAGE=3\ny\n", got)
	assert.Empty(t, BuildContext(nil))
}
