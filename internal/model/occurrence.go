package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"cfa-planning/internal/recurrence"
)

// Occurrence 具体课次 — 对应 occurrences
// 教室、教师、开课与时间均为创建时快照，模板后续修改不影响已生成课次
type Occurrence struct {
	OccurrenceID      string                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"occurrence_id"`
	RecurringSlotID   *string                     `gorm:"type:uuid;index"                                json:"recurring_slot_id,omitempty"` // NULL 表示手工课次
	OriginDate        *time.Time                  `gorm:"type:date"                                      json:"origin_date,omitempty"`       // 展开产生该课次的日期
	RoomID            string                      `gorm:"type:uuid;not null"                             json:"room_id"`
	InstructorIDs     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null"                            json:"instructor_ids"`
	SubjectOfferingID string                      `gorm:"type:uuid;not null"                             json:"subject_offering_id"`
	Date              time.Time                   `gorm:"type:date;not null;index"                       json:"date"`
	StartTime         string                      `gorm:"type:time;not null"                             json:"start_time"`
	EndTime           string                      `gorm:"type:time;not null"                             json:"end_time"`
	Status            string                      `gorm:"type:varchar(20);not null;default:'planned'"    json:"status"`
	ManuallyModified  bool                        `gorm:"not null;default:false"                         json:"manually_modified"`
	Notes             string                      `gorm:"type:text;not null;default:''"                  json:"notes"`
	Version           int                         `gorm:"not null;default:1"                             json:"version"`
	BaseModel
}

// TableName 指定表名
func (Occurrence) TableName() string { return "occurrences" }

// Window 课次的起止时刻
func (o *Occurrence) Window() (recurrence.Clock, recurrence.Clock, error) {
	start, err := recurrence.ParseClock(o.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("课次 %s 开始时间无效: %w", o.OccurrenceID, err)
	}
	end, err := recurrence.ParseClock(o.EndTime)
	if err != nil {
		return 0, 0, fmt.Errorf("课次 %s 结束时间无效: %w", o.OccurrenceID, err)
	}
	return start, end, nil
}

// HasInstructor 教师是否在该课次的教师快照中
func (o *Occurrence) HasInstructor(id string) bool {
	for _, in := range o.InstructorIDs {
		if in == id {
			return true
		}
	}
	return false
}

// IsGenerated 是否由课时模板生成
func (o *Occurrence) IsGenerated() bool {
	return o.RecurringSlotID != nil
}
