package dto

// ── 周循环课时模块 DTO ──

// SlotDraft 课时草稿，用于创建、冲突校验与数量估算
type SlotDraft struct {
	CalendarID        string   `json:"calendar_id"         binding:"required,uuid"`
	RoomID            string   `json:"room_id"             binding:"required,uuid"`
	InstructorIDs     []string `json:"instructor_ids"      binding:"required,min=1,dive,uuid"`
	SubjectOfferingID string   `json:"subject_offering_id" binding:"required,uuid"`
	DayOfWeek         int      `json:"day_of_week"         binding:"required,min=1,max=7"`
	StartTime         string   `json:"start_time"          binding:"required,clock15"` // "08:00"
	EndTime           string   `json:"end_time"            binding:"required,clock15"`
	StartDate         string   `json:"start_date"          binding:"required,isodate"`
	EndDate           string   `json:"end_date"            binding:"required,isodate"`
	WeekParity        string   `json:"week_parity"         binding:"omitempty,weekparity"`
}

// CreateRecurringSlotRequest 创建课时请求
type CreateRecurringSlotRequest struct {
	SlotDraft
	OverrideConflicts bool `json:"override_conflicts"`
}

// UpdateRecurringSlotRequest 更新课时请求，未提供的字段保持不变
type UpdateRecurringSlotRequest struct {
	RoomID            *string  `json:"room_id"             binding:"omitempty,uuid"`
	InstructorIDs     []string `json:"instructor_ids"      binding:"omitempty,min=1,dive,uuid"`
	SubjectOfferingID *string  `json:"subject_offering_id" binding:"omitempty,uuid"`
	DayOfWeek         *int     `json:"day_of_week"         binding:"omitempty,min=1,max=7"`
	StartTime         *string  `json:"start_time"          binding:"omitempty,clock15"`
	EndTime           *string  `json:"end_time"            binding:"omitempty,clock15"`
	StartDate         *string  `json:"start_date"          binding:"omitempty,isodate"`
	EndDate           *string  `json:"end_date"            binding:"omitempty,isodate"`
	WeekParity        *string  `json:"week_parity"         binding:"omitempty,weekparity"`
	IsActive          *bool    `json:"is_active"`
	Version           int      `json:"version"             binding:"required,min=1"`
	OverrideConflicts bool     `json:"override_conflicts"`
}

// RecurringSlotListRequest 课时列表查询参数
type RecurringSlotListRequest struct {
	CalendarID   string `form:"calendar_id"   binding:"omitempty,uuid"`
	RoomID       string `form:"room_id"       binding:"omitempty,uuid"`
	InstructorID string `form:"instructor_id" binding:"omitempty,uuid"`
	DayOfWeek    *int   `form:"day_of_week"   binding:"omitempty,min=1,max=7"`
	IsActive     *bool  `form:"is_active"`
}

// RecurringSlotResponse 课时响应
type RecurringSlotResponse struct {
	ID                string   `json:"id"`
	CalendarID        string   `json:"calendar_id"`
	RoomID            string   `json:"room_id"`
	InstructorIDs     []string `json:"instructor_ids"`
	SubjectOfferingID string   `json:"subject_offering_id"`
	DayOfWeek         int      `json:"day_of_week"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	StartDate         string   `json:"start_date"`
	EndDate           string   `json:"end_date"`
	WeekParity        string   `json:"week_parity"`
	IsActive          bool     `json:"is_active"`
	Version           int      `json:"version"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// SlotWriteResponse 创建/更新课时的结果
// Applied=false 时课时未写入，Conflicts 给出原因
type SlotWriteResponse struct {
	Applied         bool                   `json:"applied"`
	Slot            *RecurringSlotResponse `json:"slot,omitempty"`
	Conflicts       *ConflictReport        `json:"conflicts,omitempty"`
	CapacityWarning string                 `json:"capacity_warning,omitempty"`
}

// SlotDeleteResponse 删除课时的结果
type SlotDeleteResponse struct {
	DeletedOccurrences  int64 `json:"deleted_occurrences"`
	DetachedOccurrences int64 `json:"detached_occurrences"`
}
