package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/response"
)

// OccurrenceHandler 课次 HTTP 处理器
type OccurrenceHandler struct {
	occurrenceSvc service.OccurrenceService
}

// NewOccurrenceHandler 创建 OccurrenceHandler
func NewOccurrenceHandler(occurrenceSvc service.OccurrenceService) *OccurrenceHandler {
	return &OccurrenceHandler{occurrenceSvc: occurrenceSvc}
}

// ListOccurrences 分页查询课次
// GET /api/v1/occurrences?slot_id=&room_id=&instructor_id=&from=&to=&status=&page=&page_size=
func (h *OccurrenceHandler) ListOccurrences(c *gin.Context) {
	var req dto.OccurrenceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.occurrenceSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleOccurrenceError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetOccurrence 获取课次详情
// GET /api/v1/occurrences/:id
func (h *OccurrenceHandler) GetOccurrence(c *gin.Context) {
	occ, err := h.occurrenceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleOccurrenceError(c, err)
		return
	}

	response.OK(c, occ)
}

// CreateOccurrence 手工创建课次
// POST /api/v1/occurrences
func (h *OccurrenceHandler) CreateOccurrence(c *gin.Context) {
	var req dto.CreateOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.occurrenceSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleOccurrenceError(c, err)
		return
	}
	if !result.Applied {
		response.Conflict(c, 23004, "课次存在冲突，确认后请带 override_conflicts 重新提交", result)
		return
	}

	response.Created(c, result)
}

// UpdateOccurrence 修改课次
// PUT /api/v1/occurrences/:id
func (h *OccurrenceHandler) UpdateOccurrence(c *gin.Context) {
	var req dto.UpdateOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.occurrenceSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleOccurrenceError(c, err)
		return
	}
	if !result.Applied {
		response.Conflict(c, 23004, "课次存在冲突，确认后请带 override_conflicts 重新提交", result)
		return
	}

	response.OK(c, result)
}

// ChangeStatus 课次状态流转
// PUT /api/v1/occurrences/:id/status
func (h *OccurrenceHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.occurrenceSvc.ChangeStatus(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleOccurrenceError(c, err)
		return
	}
	if !result.Applied {
		response.Conflict(c, 23004, "恢复后的课次存在冲突，确认后请带 override_conflicts 重新提交", result)
		return
	}

	response.OK(c, result)
}

// DeleteOccurrence 删除课次
// DELETE /api/v1/occurrences/:id
func (h *OccurrenceHandler) DeleteOccurrence(c *gin.Context) {
	if err := h.occurrenceSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleOccurrenceError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleOccurrenceError 统一处理课次模块业务错误
func (h *OccurrenceHandler) handleOccurrenceError(c *gin.Context, err error) {
	if handleCommonError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrOccurrenceNotFound):
		response.NotFound(c, 23001, "课次不存在")
	case errors.Is(err, service.ErrOccurrenceInvalid):
		response.BadRequest(c, 23002, "课次参数无效")
	case errors.Is(err, recurrence.ErrInvalidTransition):
		response.BadRequest(c, 23003, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, 22002, "教室不存在")
	case errors.Is(err, service.ErrInstructorNotFound):
		response.NotFound(c, 22003, "教师不存在")
	case errors.Is(err, service.ErrSubjectOfferingNotFound):
		response.NotFound(c, 22005, "开课记录不存在")
	default:
		response.InternalError(c)
	}
}
