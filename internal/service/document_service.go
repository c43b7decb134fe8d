// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"policyqa-go/internal/model"
	"policyqa-go/internal/pipeline"
	"policyqa-go/internal/repository"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tasks"

	"github.com/google/uuid"
)

// ErrAsyncDisabled 表示未配置 Kafka/MySQL，无法异步入库。
var ErrAsyncDisabled = errors.New("async ingest is not configured")

// TaskProducer 发送异步入库任务。
type TaskProducer interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// DocumentService 定义了文档入库的接口。
type DocumentService interface {
	// IngestNow 同步入库，返回本次新增的分块数。
	IngestNow(ctx context.Context, userID string, docs []pipeline.Document) (*pipeline.IngestResult, error)
	// Enqueue 归档文件并投递异步任务，立即返回 pending 状态的任务。
	Enqueue(ctx context.Context, userID string, docs []pipeline.Document) (*model.IngestJob, error)
	// GetJob 返回属于该用户的任务。
	GetJob(userID, jobID string) (*model.IngestJob, error)
}

type documentService struct {
	pipeline *pipeline.Pipeline
	blobs    storage.BlobStore
	jobs     repository.IngestJobRepository
	producer TaskProducer
}

// NewDocumentService 创建一个新的 DocumentService 实例。jobs 与 producer 可以为 nil，此时异步入库不可用。
func NewDocumentService(p *pipeline.Pipeline, blobs storage.BlobStore, jobs repository.IngestJobRepository, producer TaskProducer) DocumentService {
	return &documentService{pipeline: p, blobs: blobs, jobs: jobs, producer: producer}
}

func (s *documentService) IngestNow(ctx context.Context, userID string, docs []pipeline.Document) (*pipeline.IngestResult, error) {
	if err := s.pipeline.Validate(docs); err != nil {
		return nil, err
	}
	if err := s.archive(ctx, userID, docs); err != nil {
		return nil, err
	}
	return s.pipeline.IngestValidated(ctx, userID, docs)
}

func (s *documentService) Enqueue(ctx context.Context, userID string, docs []pipeline.Document) (*model.IngestJob, error) {
	if s.jobs == nil || s.producer == nil {
		return nil, ErrAsyncDisabled
	}
	if err := s.pipeline.Validate(docs); err != nil {
		return nil, err
	}
	if err := s.archive(ctx, userID, docs); err != nil {
		return nil, err
	}

	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	job := &model.IngestJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileNames: repository.JoinFileNames(names),
		Status:    model.JobStatusPending,
	}
	if err := s.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("创建入库任务失败: %w", err)
	}

	task := tasks.IngestTask{JobID: job.ID, UserID: userID, FileNames: names}
	if err := s.producer.ProduceIngestTask(ctx, task); err != nil {
		log.Errorf("[DocumentService] 投递入库任务失败, JobID: %s, err: %v", job.ID, err)
		_ = s.jobs.Finish(job.ID, 0, "投递任务失败: "+err.Error())
		return nil, fmt.Errorf("投递入库任务失败: %w", err)
	}
	log.Infof("[DocumentService] 入库任务已投递, JobID: %s, UserID: %s, 文件数: %d", job.ID, userID, len(names))
	return job, nil
}

func (s *documentService) GetJob(userID, jobID string) (*model.IngestJob, error) {
	if s.jobs == nil {
		return nil, ErrAsyncDisabled
	}
	job, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	// 其他用户的任务视为不存在
	if job.UserID != userID {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

// archive 把原始 PDF 保存到用户命名空间的 pdfs/ 下，同名文件会被覆盖。
func (s *documentService) archive(ctx context.Context, userID string, docs []pipeline.Document) error {
	ns, err := storage.Namespace(userID)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	for _, d := range docs {
		name := storage.ArchiveName(d.Name)
		if err := s.blobs.Delete(ctx, ns, name); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			log.Warnf("[DocumentService] 删除旧归档失败, 继续上传, Object: %s/%s, err: %v", ns, name, err)
		}
		if err := s.blobs.Upload(ctx, ns, name, d.Data); err != nil {
			return fmt.Errorf("%w: 归档 %s 失败: %v", model.ErrRemoteStoreUnavailable, d.Name, err)
		}
	}
	return nil
}
