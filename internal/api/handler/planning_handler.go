package handler

import (
	"github.com/gin-gonic/gin"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/response"
)

// PlanningHandler 课次生成、预览与数量估算
type PlanningHandler struct {
	materializerSvc service.MaterializerService
}

// NewPlanningHandler 创建 PlanningHandler
func NewPlanningHandler(materializerSvc service.MaterializerService) *PlanningHandler {
	return &PlanningHandler{materializerSvc: materializerSvc}
}

// Preview 列出每个展开日期将被如何处理，不写入
// GET /api/v1/recurring-slots/:id/preview
func (h *PlanningHandler) Preview(c *gin.Context) {
	preview, err := h.materializerSvc.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, preview)
}

// Materialize 生成课次
// POST /api/v1/recurring-slots/:id/materialize  body 可省略：{"force": false, "allow_conflicts": false}
func (h *PlanningHandler) Materialize(c *gin.Context) {
	var req dto.MaterializeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.materializerSvc.Materialize(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, result)
}

// EstimateSlot 已保存课时的课次数量
// GET /api/v1/recurring-slots/:id/estimate
func (h *PlanningHandler) EstimateSlot(c *gin.Context) {
	n, err := h.materializerSvc.EstimateCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, dto.EstimateResponse{Count: n})
}

// EstimateDraft 草稿的课次数量，不考虑停课日
// POST /api/v1/recurring-slots/estimate
func (h *PlanningHandler) EstimateDraft(c *gin.Context) {
	var req dto.SlotDraft
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	n, err := h.materializerSvc.EstimateDraft(c.Request.Context(), &req)
	if err != nil {
		handleSlotError(c, err)
		return
	}

	response.OK(c, dto.EstimateResponse{Count: n})
}
