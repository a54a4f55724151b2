package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/response"
)

// CalendarHandler 学年日历与停课日 HTTP 处理器
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// ListCalendars 获取学年日历列表
// GET /api/v1/calendars
func (h *CalendarHandler) ListCalendars(c *gin.Context) {
	calendars, err := h.calendarSvc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": calendars})
}

// GetCalendar 获取学年日历详情
// GET /api/v1/calendars/:id
func (h *CalendarHandler) GetCalendar(c *gin.Context) {
	cal, err := h.calendarSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, cal)
}

// GetCurrentCalendar 获取当前学年日历
// GET /api/v1/calendars/current
func (h *CalendarHandler) GetCurrentCalendar(c *gin.Context) {
	cal, err := h.calendarSvc.GetCurrent(c.Request.Context())
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, cal)
}

// CreateCalendar 创建学年日历
// POST /api/v1/calendars
func (h *CalendarHandler) CreateCalendar(c *gin.Context) {
	var req dto.CreateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cal, err := h.calendarSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.Created(c, cal)
}

// UpdateCalendar 更新学年日历
// PUT /api/v1/calendars/:id
func (h *CalendarHandler) UpdateCalendar(c *gin.Context) {
	var req dto.UpdateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cal, err := h.calendarSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, cal)
}

// ActivateCalendar 设为当前学年日历
// PUT /api/v1/calendars/:id/activate
func (h *CalendarHandler) ActivateCalendar(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.calendarSvc.Activate(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, nil)
}

// DeleteCalendar 删除学年日历
// DELETE /api/v1/calendars/:id
func (h *CalendarHandler) DeleteCalendar(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.calendarSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, nil)
}

// ── 停课日 ──

// ListClosedDays 获取停课日，缺省为整个日历跨度
// GET /api/v1/calendars/:id/closed-days?start=&end=
func (h *CalendarHandler) ListClosedDays(c *gin.Context) {
	var req dto.ClosedDayRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	days, err := h.calendarSvc.ListClosedDays(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, gin.H{"list": days})
}

// AddClosedDay 新增单个停课日
// POST /api/v1/calendars/:id/closed-days
func (h *CalendarHandler) AddClosedDay(c *gin.Context) {
	var req dto.CreateClosedDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	day, err := h.calendarSvc.AddClosedDay(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.Created(c, day)
}

// AddClosedPeriod 新增连续停课区间
// POST /api/v1/calendars/:id/closed-periods
func (h *CalendarHandler) AddClosedPeriod(c *gin.Context) {
	var req dto.CreateClosedPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.calendarSvc.AddClosedPeriod(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.Created(c, result)
}

// SeedHolidays 写入日历跨度内的法定节假日
// POST /api/v1/calendars/:id/holidays/seed
func (h *CalendarHandler) SeedHolidays(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.calendarSvc.SeedPublicHolidays(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, result)
}

// ImportClosures 从 .ics / .xlsx 文件导入停课日
// POST /api/v1/calendars/:id/closures/import  multipart/form-data, field="file"
func (h *CalendarHandler) ImportClosures(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			response.BadRequest(c, 21012, "请上传停课日文件")
			return
		}
		bindFailed(c, err)
		return
	}
	defer file.Close()

	result, err := h.calendarSvc.ImportClosures(c.Request.Context(), c.Param("id"), header.Filename, file, callerID)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.Created(c, result)
}

// DeleteClosedDay 删除停课日
// DELETE /api/v1/closed-days/:id
func (h *CalendarHandler) DeleteClosedDay(c *gin.Context) {
	if err := h.calendarSvc.DeleteClosedDay(c.Request.Context(), c.Param("id")); err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, nil)
}

// GetPublicHolidays 指定年份的法定节假日
// GET /api/v1/holidays/:year
func (h *CalendarHandler) GetPublicHolidays(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		response.BadRequest(c, 21008, "年份无效")
		return
	}

	holidays, err := h.calendarSvc.PublicHolidays(year)
	if err != nil {
		h.handleCalendarError(c, err)
		return
	}

	response.OK(c, gin.H{"list": holidays})
}

// handleCalendarError 统一处理日历模块业务错误
func (h *CalendarHandler) handleCalendarError(c *gin.Context, err error) {
	if handleCommonError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrCalendarNotFound):
		response.NotFound(c, 21001, "学年日历不存在")
	case errors.Is(err, service.ErrCalendarDateInvalid):
		response.BadRequest(c, 21002, "学年日历日期无效")
	case errors.Is(err, service.ErrCalendarReferenceLocked):
		response.Error(c, http.StatusConflict, 21003, "已有单双周课时，A 周基准不可修改")
	case errors.Is(err, service.ErrClosedDayNotFound):
		response.NotFound(c, 21004, "停课日不存在")
	case errors.Is(err, service.ErrClosedDayExists):
		response.Error(c, http.StatusConflict, 21005, "该日期已是停课日")
	case errors.Is(err, service.ErrClosedDayOutOfRange):
		response.BadRequest(c, 21006, "停课日超出学年日历范围")
	case errors.Is(err, service.ErrClosedDayInvalid):
		response.BadRequest(c, 21007, "停课日参数无效")
	case errors.Is(err, service.ErrHolidayYearInvalid):
		response.BadRequest(c, 21008, "年份无效")
	case errors.Is(err, service.ErrClosureFormat):
		response.BadRequest(c, 21009, "仅支持 .ics / .xlsx 文件")
	case errors.Is(err, service.ErrClosureParse):
		response.ErrorWithDetails(c, http.StatusBadRequest, 21010, "停课日文件解析失败", err.Error())
	case errors.Is(err, service.ErrClosureFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, 21011, "停课日文件过大")
	default:
		response.InternalError(c)
	}
}
