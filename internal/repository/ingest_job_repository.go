// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"strings"
	"time"

	"policyqa-go/internal/model"

	"gorm.io/gorm"
)

// ErrJobNotFound 表示任务不存在。
var ErrJobNotFound = errors.New("ingest job not found")

// IngestJobRepository 定义了异步入库任务的持久化操作。
type IngestJobRepository interface {
	Create(job *model.IngestJob) error
	Get(id string) (*model.IngestJob, error)
	MarkRunning(id string) error
	// Finish 把任务置为终态；errMsg 为空表示成功。
	Finish(id string, chunks int, errMsg string) error
}

type ingestJobRepository struct {
	db *gorm.DB
}

// NewIngestJobRepository 创建一个新的 IngestJobRepository 实例。
func NewIngestJobRepository(db *gorm.DB) IngestJobRepository {
	return &ingestJobRepository{db: db}
}

func (r *ingestJobRepository) Create(job *model.IngestJob) error {
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	return r.db.Create(job).Error
}

func (r *ingestJobRepository) Get(id string) (*model.IngestJob, error) {
	var job model.IngestJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *ingestJobRepository) MarkRunning(id string) error {
	return r.db.Model(&model.IngestJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": model.JobStatusRunning, "error": ""}).Error
}

func (r *ingestJobRepository) Finish(id string, chunks int, errMsg string) error {
	status := model.JobStatusDone
	if errMsg != "" {
		status = model.JobStatusFailed
	}
	return r.db.Model(&model.IngestJob{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"chunks":      chunks,
		"error":       errMsg,
		"finished_at": time.Now(),
	}).Error
}

// JoinFileNames 把文件名编码为 FileNames 列的存储格式。
func JoinFileNames(names []string) string {
	return strings.Join(names, "\n")
}

// SplitFileNames 是 JoinFileNames 的逆操作。
func SplitFileNames(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
