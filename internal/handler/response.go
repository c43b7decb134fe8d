// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"

	"policyqa-go/internal/middleware"
	"policyqa-go/internal/model"
	"policyqa-go/internal/repository"
	"policyqa-go/internal/service"
	"policyqa-go/pkg/log"
	"policyqa-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

var (
	errForbiddenUser = errors.New("user_id does not match the authenticated user")
	errMissingUserID = errors.New("user_id is required")
)

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnsupportedInput), errors.Is(err, model.ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNamespaceNotFound), errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRemoteStoreUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, errForbiddenUser):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAsyncDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[Handler] %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Warnf("[Handler] %s %s 被拒绝: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": status, "message": err.Error()})
}

func writeOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": status, "data": data, "message": "success"})
}

// resolveUserID 优先使用 token 绑定的 user id；请求中显式给出的 user_id 必须与之一致。
// 未启用鉴权时 user_id 必须由请求给出。不能作为单个路径段的 user id 视为请求错误。
func resolveUserID(c *gin.Context, requested string) (string, error) {
	userID := requested
	if authed := c.GetString(middleware.UserIDKey); authed != "" {
		if requested != "" && requested != authed {
			return "", errForbiddenUser
		}
		userID = authed
	}
	if userID == "" {
		return "", errMissingUserID
	}
	if err := storage.ValidateUserID(userID); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUnsupportedInput, err)
	}
	return userID, nil
}
