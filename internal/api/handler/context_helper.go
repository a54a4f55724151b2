package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cfa-planning/internal/api/middleware"
	"cfa-planning/internal/api/validation"
	"cfa-planning/internal/recurrence"
	pkgerrors "cfa-planning/pkg/errors"
	"cfa-planning/pkg/response"
)

// MustGetUserID 从 Gin 上下文中提取 user_id。
// JWT 中间件未注入时写入 401 响应并返回 false，调用方应直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.ContextUserID)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// bindFailed 请求绑定失败：校验错误逐字段返回，其余统一 400
func bindFailed(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return
	}
	if vs := validation.Violations(err); len(vs) > 0 {
		response.ValidationFailed(c, vs)
		return
	}
	response.BadRequest(c, 10001, "参数校验失败")
}

// handleCommonError 处理各模块共有的错误，已写入响应时返回 true
func handleCommonError(c *gin.Context, err error) bool {
	var verr *recurrence.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ValidationFailed(c, verr.Violations)
	case errors.Is(err, recurrence.ErrInvalidInput):
		response.BadRequest(c, 10001, "参数校验失败")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Error(c, http.StatusConflict, 10006, pkgerrors.ErrOptimisticLock.Error())
	case errors.Is(err, pkgerrors.ErrLockBusy):
		response.Error(c, http.StatusConflict, 10007, pkgerrors.ErrLockBusy.Error())
	default:
		return false
	}
	return true
}
