package dto

// ── 学年日历模块 DTO ──

// CreateCalendarRequest 创建学年日历请求
type CreateCalendarRequest struct {
	Name           string  `json:"name"             binding:"required,min=2,max=100"`
	StartDate      string  `json:"start_date"       binding:"required,isodate"` // "2024-09-02"
	EndDate        string  `json:"end_date"         binding:"required,isodate"`
	ReferenceWeekA *string `json:"reference_week_a" binding:"omitempty,isodate"` // 任意一天，规整到所在周的周一
	SeedHolidays   bool    `json:"seed_holidays"`
}

// UpdateCalendarRequest 更新学年日历请求
type UpdateCalendarRequest struct {
	Name           *string `json:"name"             binding:"omitempty,min=2,max=100"`
	StartDate      *string `json:"start_date"       binding:"omitempty,isodate"`
	EndDate        *string `json:"end_date"         binding:"omitempty,isodate"`
	ReferenceWeekA *string `json:"reference_week_a" binding:"omitempty,isodate"`
	ClearReference bool    `json:"clear_reference"`
	Status         *string `json:"status"           binding:"omitempty,oneof=active archived"`
}

// CalendarResponse 学年日历响应
type CalendarResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ReferenceWeekA *string `json:"reference_week_a,omitempty"`
	IsActive       bool    `json:"is_active"`
	Status         string  `json:"status"`
	Version        int     `json:"version"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ── 停课日 ──

// CreateClosedDayRequest 新增单个停课日
type CreateClosedDayRequest struct {
	Date   string `json:"date"   binding:"required,isodate"`
	Reason string `json:"reason" binding:"required,oneof=public_holiday closure break bridge"`
	Label  string `json:"label"  binding:"max=200"`
}

// CreateClosedPeriodRequest 新增连续停课区间（如假期）
type CreateClosedPeriodRequest struct {
	StartDate string `json:"start_date" binding:"required,isodate"`
	EndDate   string `json:"end_date"   binding:"required,isodate"`
	Reason    string `json:"reason"     binding:"omitempty,oneof=public_holiday closure break bridge"`
	Label     string `json:"label"      binding:"max=200"`
}

// ClosedDayRangeRequest 停课日查询参数，缺省为整个日历跨度
type ClosedDayRangeRequest struct {
	Start string `form:"start" binding:"omitempty,isodate"`
	End   string `form:"end"   binding:"omitempty,isodate"`
}

// ClosedDayResponse 停课日响应
type ClosedDayResponse struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id"`
	Date       string `json:"date"`
	Reason     string `json:"reason"`
	Label      string `json:"label"`
}

// ClosedDayBatchResponse 批量写入结果
type ClosedDayBatchResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// HolidayResponse 法定节假日
type HolidayResponse struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Movable bool   `json:"movable"`
}
