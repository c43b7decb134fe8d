package pipeline

import (
	"context"
	"errors"
	"fmt"

	"policyqa-go/internal/model"
	"policyqa-go/internal/repository"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/storage"
	"policyqa-go/pkg/tasks"
)

// Processor 处理异步入库任务：从对象存储取回归档的 PDF，执行 Ingest，并更新任务状态。
type Processor struct {
	pipeline *Pipeline
	blobs    storage.BlobStore
	jobs     repository.IngestJobRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(p *Pipeline, blobs storage.BlobStore, jobs repository.IngestJobRepository) *Processor {
	return &Processor{pipeline: p, blobs: blobs, jobs: jobs}
}

// Process 实现 kafka.TaskProcessor。不可重试的失败（输入不合法、没有可用文本、归档缺失）
// 会把任务标记为失败并返回 nil，让消费者直接提交 offset；可重试的失败只返回错误，
// 任务保持 running，直到消费者重试成功或调用 Abandon。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理入库任务, JobID: %s, UserID: %s, 文件数: %d", task.JobID, task.UserID, len(task.FileNames))
	if err := p.jobs.MarkRunning(task.JobID); err != nil {
		log.Warnf("[Processor] 更新任务状态失败, JobID: %s, err: %v", task.JobID, err)
	}

	// 1. 从对象存储取回归档的原始文件
	ns, err := storage.Namespace(task.UserID)
	if err != nil {
		return p.fail(task, fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err), false)
	}
	docs := make([]Document, 0, len(task.FileNames))
	for _, name := range task.FileNames {
		log.Infof("[Processor] 步骤1: 下载归档文件, Namespace: %s, Object: %s", ns, storage.ArchiveName(name))
		data, err := p.blobs.Download(ctx, ns, storage.ArchiveName(name))
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return p.fail(task, fmt.Errorf("归档文件 %s 不存在", name), false)
			}
			return p.fail(task, fmt.Errorf("%w: 下载归档文件 %s 失败: %v", model.ErrRemoteStoreUnavailable, name, err), true)
		}
		docs = append(docs, Document{Name: name, Data: data})
	}

	// 2. 入库
	log.Info("[Processor] 步骤2: 执行入库")
	result, err := p.pipeline.Ingest(ctx, task.UserID, docs)
	if err != nil {
		return p.fail(task, err, retryable(err))
	}

	if err := p.jobs.Finish(task.JobID, result.Chunks, ""); err != nil {
		log.Warnf("[Processor] 更新任务状态失败, JobID: %s, err: %v", task.JobID, err)
	}
	log.Infof("[Processor] 入库任务完成, JobID: %s, 新增分块: %d", task.JobID, result.Chunks)
	return nil
}

// Abandon 在消费者用尽重试次数后把任务标记为失败。
func (p *Processor) Abandon(_ context.Context, task tasks.IngestTask, cause error) {
	log.Errorf("[Processor] 入库任务重试次数用尽, JobID: %s, err: %v", task.JobID, cause)
	p.markFailed(task, cause)
}

func (p *Processor) fail(task tasks.IngestTask, err error, retry bool) error {
	if retry {
		log.Warnf("[Processor] 入库任务失败, 等待重试, JobID: %s, err: %v", task.JobID, err)
		return err
	}
	log.Errorf("[Processor] 入库任务失败, 不再重试, JobID: %s, err: %v", task.JobID, err)
	p.markFailed(task, err)
	return nil
}

func (p *Processor) markFailed(task tasks.IngestTask, err error) {
	if uerr := p.jobs.Finish(task.JobID, 0, err.Error()); uerr != nil {
		log.Warnf("[Processor] 更新任务状态失败, JobID: %s, err: %v", task.JobID, uerr)
	}
}

// retryable 判断错误是否值得由消费者重新投递。
func retryable(err error) bool {
	switch {
	case errors.Is(err, model.ErrUnsupportedInput),
		errors.Is(err, model.ErrEmptyCorpus),
		errors.Is(err, model.ErrConfigurationInvalid),
		errors.Is(err, model.ErrCorruptSnapshot),
		errors.Is(err, model.ErrDimensionMismatch):
		return false
	}
	return true
}
