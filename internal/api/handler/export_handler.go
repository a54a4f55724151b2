package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/response"
)

const (
	contentTypeICS  = "text/calendar; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportSlotICS 导出课时的课次为 iCalendar
// GET /api/v1/recurring-slots/:id/occurrences.ics
func (h *ExportHandler) ExportSlotICS(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportSlotICS(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename)
	c.Data(http.StatusOK, contentTypeICS, buf.Bytes())
}

// ExportOccurrences 按过滤条件导出课次为 Excel
// GET /api/v1/export/occurrences?slot_id=&room_id=&instructor_id=&from=&to=&status=
func (h *ExportHandler) ExportOccurrences(c *gin.Context) {
	var req dto.OccurrenceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	buf, filename, err := h.exportSvc.ExportOccurrencesXLSX(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename)
	c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
}

// attachment 设置下载响应头，文件名按 RFC 5987 编码
func attachment(c *gin.Context, filename string) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSlotNotFound):
		response.NotFound(c, 22001, "课时不存在")
	case errors.Is(err, service.ErrExportNoOccurrences):
		response.NotFound(c, 24001, "没有可导出的课次")
	default:
		response.InternalError(c)
	}
}
