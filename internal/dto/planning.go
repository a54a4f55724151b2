package dto

// ── 冲突检测 ──

// SlotConflict 与之冲突的周循环课时
type SlotConflict struct {
	SlotID       string `json:"slot_id"`
	InstructorID string `json:"instructor_id,omitempty"` // 教师冲突时填写
	RoomID       string `json:"room_id"`
	DayOfWeek    int    `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	WeekParity   string `json:"week_parity"`
}

// ConflictReport 课时级冲突汇总
type ConflictReport struct {
	RoomConflicts       []SlotConflict `json:"room_conflicts"`
	InstructorConflicts []SlotConflict `json:"instructor_conflicts"`
	RoomCheckSkipped    bool           `json:"room_check_skipped,omitempty"` // 虚拟教室
}

// HasConflicts 是否存在任一冲突
func (r *ConflictReport) HasConflicts() bool {
	return r != nil && (len(r.RoomConflicts) > 0 || len(r.InstructorConflicts) > 0)
}

// OccurrenceConflict 单日冲突的课次
type OccurrenceConflict struct {
	OccurrenceID    string  `json:"occurrence_id"`
	RecurringSlotID *string `json:"recurring_slot_id,omitempty"`
	InstructorID    string  `json:"instructor_id,omitempty"`
	RoomID          string  `json:"room_id"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	Status          string  `json:"status"`
}

// OccurrenceConflictReport 单日冲突汇总
type OccurrenceConflictReport struct {
	RoomConflict        *OccurrenceConflict  `json:"room_conflict,omitempty"`
	InstructorConflicts []OccurrenceConflict `json:"instructor_conflicts"`
}

// HasConflicts 是否存在任一冲突
func (r *OccurrenceConflictReport) HasConflicts() bool {
	return r != nil && (r.RoomConflict != nil || len(r.InstructorConflicts) > 0)
}

// ── 生成课次 ──

// 预览中每个日期的归类
const (
	OutcomeCreate   = "create"
	OutcomeClosed   = "closed"
	OutcomeExisting = "existing"
	OutcomeConflict = "conflict"
)

// PreviewDate 单个展开日期的归类结果
type PreviewDate struct {
	Date      string                    `json:"date"`
	Outcome   string                    `json:"outcome"`
	Reason    string                    `json:"reason,omitempty"` // 停课原因或冲突说明
	Conflicts *OccurrenceConflictReport `json:"conflicts,omitempty"`
}

// PreviewResponse 生成前预览
type PreviewResponse struct {
	SlotID   string        `json:"slot_id"`
	Total    int           `json:"total"`
	ToCreate int           `json:"to_create"`
	Closed   int           `json:"closed"`
	Existing int           `json:"existing"`
	Conflict int           `json:"conflict"`
	Dates    []PreviewDate `json:"dates"`
}

// MaterializeRequest 生成课次请求
type MaterializeRequest struct {
	Force          bool `json:"force"`           // 先删除未手工修改的课次再生成
	AllowConflicts bool `json:"allow_conflicts"` // 单日冲突时仍然生成
}

// MaterializeResult 生成课次结果
type MaterializeResult struct {
	Created   int           `json:"created"`
	Skipped   int           `json:"skipped"`
	Deleted   int           `json:"deleted"`
	Conflicts []PreviewDate `json:"conflicts,omitempty"` // 因单日冲突跳过的日期
}

// EstimateResponse 课次数量估算
type EstimateResponse struct {
	Count int `json:"count"`
}
