package handler

import (
	"fmt"
	"net/http"

	"policyqa-go/internal/model"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QAHandler 处理检索与问答请求。
type QAHandler struct {
	qaService service.QAService
}

// NewQAHandler 创建一个新的 QAHandler 实例。
func NewQAHandler(qaService service.QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

// QueryRequest 是 /search 与 /query 的请求体。
type QueryRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"gte=0,lte=100"`
}

func (h *QAHandler) bind(c *gin.Context) (string, *QueryRequest, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: 无效的请求负载: %v", model.ErrUnsupportedInput, err))
		return "", nil, false
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		writeUserError(c, err)
		return "", nil, false
	}
	return userID, &req, true
}

// Search 返回排序后的检索片段，不调用 LLM。
func (h *QAHandler) Search(c *gin.Context) {
	userID, req, ok := h.bind(c)
	if !ok {
		return
	}
	log.Infof("[QAHandler] 收到检索请求, UserID: %s, topK: %d", userID, req.TopK)

	snippets, err := h.qaService.Search(c.Request.Context(), userID, req.Question, req.TopK)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, snippets)
}

// Query 检索并生成带引用的答案。
func (h *QAHandler) Query(c *gin.Context) {
	userID, req, ok := h.bind(c)
	if !ok {
		return
	}
	log.Infof("[QAHandler] 收到问答请求, UserID: %s, topK: %d", userID, req.TopK)

	answer, err := h.qaService.Ask(c.Request.Context(), userID, req.Question, req.TopK)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, answer)
}
