package dto

// ── 课次模块 DTO ──

// CreateOccurrenceRequest 手工创建课次（不关联课时模板）
type CreateOccurrenceRequest struct {
	RoomID            string   `json:"room_id"             binding:"required,uuid"`
	InstructorIDs     []string `json:"instructor_ids"      binding:"required,min=1,dive,uuid"`
	SubjectOfferingID string   `json:"subject_offering_id" binding:"required,uuid"`
	Date              string   `json:"date"                binding:"required,isodate"`
	StartTime         string   `json:"start_time"          binding:"required,clock15"`
	EndTime           string   `json:"end_time"            binding:"required,clock15"`
	Notes             string   `json:"notes"               binding:"max=2000"`
	OverrideConflicts bool     `json:"override_conflicts"`
}

// UpdateOccurrenceRequest 修改课次；修改快照字段会标记为手工修改
type UpdateOccurrenceRequest struct {
	RoomID            *string  `json:"room_id"             binding:"omitempty,uuid"`
	InstructorIDs     []string `json:"instructor_ids"      binding:"omitempty,min=1,dive,uuid"`
	SubjectOfferingID *string  `json:"subject_offering_id" binding:"omitempty,uuid"`
	Date              *string  `json:"date"                binding:"omitempty,isodate"`
	StartTime         *string  `json:"start_time"          binding:"omitempty,clock15"`
	EndTime           *string  `json:"end_time"            binding:"omitempty,clock15"`
	Notes             *string  `json:"notes"               binding:"omitempty,max=2000"`
	Version           int      `json:"version"             binding:"required,min=1"`
	OverrideConflicts bool     `json:"override_conflicts"`
}

// ChangeStatusRequest 课次状态流转
type ChangeStatusRequest struct {
	Status            string `json:"status"             binding:"required,oneof=planned confirmed cancelled postponed completed"`
	Version           int    `json:"version"            binding:"required,min=1"`
	OverrideConflicts bool   `json:"override_conflicts"` // 取消后恢复时若冲突仍然执行
}

// OccurrenceListRequest 课次列表查询参数
type OccurrenceListRequest struct {
	SlotID       string `form:"slot_id"       binding:"omitempty,uuid"`
	RoomID       string `form:"room_id"       binding:"omitempty,uuid"`
	InstructorID string `form:"instructor_id" binding:"omitempty,uuid"`
	From         string `form:"from"          binding:"omitempty,isodate"`
	To           string `form:"to"            binding:"omitempty,isodate"`
	Status       string `form:"status"        binding:"omitempty,oneof=planned confirmed cancelled postponed completed"`
	PaginationRequest
}

// OccurrenceResponse 课次响应
type OccurrenceResponse struct {
	ID                string   `json:"id"`
	RecurringSlotID   *string  `json:"recurring_slot_id,omitempty"`
	OriginDate        *string  `json:"origin_date,omitempty"`
	RoomID            string   `json:"room_id"`
	InstructorIDs     []string `json:"instructor_ids"`
	SubjectOfferingID string   `json:"subject_offering_id"`
	Date              string   `json:"date"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	Status            string   `json:"status"`
	ManuallyModified  bool     `json:"manually_modified"`
	Notes             string   `json:"notes"`
	Version           int      `json:"version"`
}

// OccurrenceWriteResponse 创建/修改课次的结果
type OccurrenceWriteResponse struct {
	Applied    bool                      `json:"applied"`
	Occurrence *OccurrenceResponse       `json:"occurrence,omitempty"`
	Conflicts  *OccurrenceConflictReport `json:"conflicts,omitempty"`
}
