package handler

import (
	"net/http"

	"policyqa-go/internal/middleware"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterOptions 是构建路由所需的依赖。JWT 为 nil 时不启用鉴权。
type RouterOptions struct {
	Documents service.DocumentService
	QA        service.QAService
	JWT       *token.JWTManager
}

// NewRouter 注册全部路由。
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	docs := NewDocumentHandler(opts.Documents)
	qa := NewQAHandler(opts.QA)

	apiV1 := r.Group("/api/v1")
	if opts.JWT != nil {
		apiV1.Use(middleware.AuthMiddleware(opts.JWT))
	}
	{
		apiV1.POST("/ingest", docs.Ingest)
		apiV1.POST("/ingest/async", docs.IngestAsync)
		apiV1.GET("/jobs/:id", docs.GetJob)
		apiV1.POST("/search", qa.Search)
		apiV1.POST("/query", qa.Query)
	}
	return r
}
