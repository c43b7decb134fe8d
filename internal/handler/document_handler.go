package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"policyqa-go/internal/model"
	"policyqa-go/internal/pipeline"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理文档入库与任务查询的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Ingest 同步入库：multipart 表单字段 user_id 与一个或多个 files。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	userID, docs, err := h.readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Infof("[DocumentHandler] 收到入库请求, UserID: %s, 文件数: %d", userID, len(docs))

	result, err := h.docService.IngestNow(c.Request.Context(), userID, docs)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, gin.H{
		"status":    "ingested",
		"chunks":    result.Chunks,
		"total":     result.Total,
		"documents": result.Documents,
	})
}

// IngestAsync 归档文件并投递异步任务，返回任务 id。
func (h *DocumentHandler) IngestAsync(c *gin.Context) {
	userID, docs, err := h.readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}

	job, err := h.docService.Enqueue(c.Request.Context(), userID, docs)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusAccepted, job)
}

// GetJob 查询异步任务状态。
func (h *DocumentHandler) GetJob(c *gin.Context) {
	userID, err := resolveUserID(c, c.Query("user_id"))
	if err != nil {
		writeUserError(c, err)
		return
	}
	job, err := h.docService.GetJob(userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, job)
}

func (h *DocumentHandler) readUpload(c *gin.Context) (string, []pipeline.Document, error) {
	userID, err := resolveUserID(c, c.PostForm("user_id"))
	if err != nil {
		if errors.Is(err, errMissingUserID) {
			return "", nil, fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
		}
		return "", nil, err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return "", nil, fmt.Errorf("%w: no files uploaded", model.ErrUnsupportedInput)
	}

	docs := make([]pipeline.Document, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return "", nil, fmt.Errorf("打开上传文件 %s 失败: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("读取上传文件 %s 失败: %w", fh.Filename, err)
		}
		docs = append(docs, pipeline.Document{Name: fh.Filename, Data: data})
	}
	return userID, docs, nil
}

// writeUserError 把缺少 user_id 视为请求错误。
func writeUserError(c *gin.Context, err error) {
	if errors.Is(err, errMissingUserID) {
		err = fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	writeError(c, err)
}
