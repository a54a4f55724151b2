package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/response"
)

// RecurringSlotHandler 周循环课时 HTTP 处理器
type RecurringSlotHandler struct {
	slotSvc service.RecurringSlotService
}

// NewRecurringSlotHandler 创建 RecurringSlotHandler
func NewRecurringSlotHandler(slotSvc service.RecurringSlotService) *RecurringSlotHandler {
	return &RecurringSlotHandler{slotSvc: slotSvc}
}

// ListSlots 获取课时列表
// GET /api/v1/recurring-slots?calendar_id=&room_id=&instructor_id=&day_of_week=&is_active=
func (h *RecurringSlotHandler) ListSlots(c *gin.Context) {
	var req dto.RecurringSlotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	slots, err := h.slotSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": slots})
}

// GetSlot 获取课时详情
// GET /api/v1/recurring-slots/:id
func (h *RecurringSlotHandler) GetSlot(c *gin.Context) {
	slot, err := h.slotSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, slot)
}

// CreateSlot 创建课时；存在冲突且未确认时返回 409 与冲突明细
// POST /api/v1/recurring-slots
func (h *RecurringSlotHandler) CreateSlot(c *gin.Context) {
	var req dto.CreateRecurringSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.slotSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleSlotError(c, err)
		return
	}
	if !result.Applied {
		response.Conflict(c, 22009, "课时存在冲突，确认后请带 override_conflicts 重新提交", result)
		return
	}

	response.Created(c, result)
}

// UpdateSlot 更新课时
// PUT /api/v1/recurring-slots/:id
func (h *RecurringSlotHandler) UpdateSlot(c *gin.Context) {
	var req dto.UpdateRecurringSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.slotSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleSlotError(c, err)
		return
	}
	if !result.Applied {
		response.Conflict(c, 22009, "课时存在冲突，确认后请带 override_conflicts 重新提交", result)
		return
	}

	response.OK(c, result)
}

// DeleteSlot 删除课时，手工修改过的课次保留
// DELETE /api/v1/recurring-slots/:id
func (h *RecurringSlotHandler) DeleteSlot(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.slotSvc.Delete(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, result)
}

// ValidateDraft 草稿冲突检测，不写入
// POST /api/v1/recurring-slots/validate?exclude_id=
func (h *RecurringSlotHandler) ValidateDraft(c *gin.Context) {
	var req dto.SlotDraft
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	report, err := h.slotSvc.Validate(c.Request.Context(), &req, c.Query("exclude_id"))
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, report)
}

// GetSlotConflicts 已保存课时当前的冲突
// GET /api/v1/recurring-slots/:id/conflicts
func (h *RecurringSlotHandler) GetSlotConflicts(c *gin.Context) {
	report, err := h.slotSvc.ValidateExisting(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, report)
}

// handleSlotError 统一处理课时与生成课次相关的业务错误
func handleSlotError(c *gin.Context, err error) {
	if handleCommonError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrSlotNotFound):
		response.NotFound(c, 22001, "课时不存在")
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, 22002, "教室不存在")
	case errors.Is(err, service.ErrInstructorNotFound):
		response.NotFound(c, 22003, "教师不存在")
	case errors.Is(err, service.ErrInstructorInactive):
		response.BadRequest(c, 22004, err.Error())
	case errors.Is(err, service.ErrSubjectOfferingNotFound):
		response.NotFound(c, 22005, "开课记录不存在")
	case errors.Is(err, service.ErrRoomCapacityExceeded):
		response.BadRequest(c, 22006, err.Error())
	case errors.Is(err, service.ErrSlotOutsideCalendar):
		response.BadRequest(c, 22007, "课时日期超出学年日历范围")
	case errors.Is(err, service.ErrTooManyOccurrences):
		response.BadRequest(c, 22008, err.Error())
	case errors.Is(err, service.ErrSlotInactive):
		response.BadRequest(c, 22010, "课时已停用，不能生成课次")
	case errors.Is(err, service.ErrCalendarNotFound):
		response.NotFound(c, 21001, "学年日历不存在")
	default:
		response.InternalError(c)
	}
}
