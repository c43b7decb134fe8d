package model

import "time"

// 入库任务状态
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// IngestJob 定义了 ingest_jobs 表的 ORM 模型，记录异步入库任务的进度。
type IngestJob struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string     `gorm:"type:varchar(128);not null;index" json:"userId"`
	FileNames  string     `gorm:"type:text;not null" json:"fileNames"` // 以换行分隔
	Status     string     `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	Chunks     int        `gorm:"not null;default:0" json:"chunks"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	FinishedAt *time.Time `gorm:"default:null" json:"finishedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IngestJob) TableName() string {
	return "ingest_jobs"
}
