package model

import "time"

// 停课原因
const (
	ClosedReasonPublicHoliday = "public_holiday"
	ClosedReasonClosure       = "closure"
	ClosedReasonBreak         = "break"
	ClosedReasonBridge        = "bridge"
)

// ClosedDay 停课日表 — 对应 closed_days，(calendar_id, date) 唯一
type ClosedDay struct {
	ClosedDayID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"  json:"closed_day_id"`
	CalendarID  string    `gorm:"type:uuid;not null;uniqueIndex:uq_closed_day"    json:"calendar_id"`
	Date        time.Time `gorm:"type:date;not null;uniqueIndex:uq_closed_day"    json:"date"`
	Reason      string    `gorm:"type:varchar(20);not null"                       json:"reason"`
	Label       string    `gorm:"type:varchar(200);not null;default:''"           json:"label"`
	BaseModel
}

// TableName 指定表名
func (ClosedDay) TableName() string { return "closed_days" }

// IsValidClosedReason 原因是否在枚举内
func IsValidClosedReason(reason string) bool {
	switch reason {
	case ClosedReasonPublicHoliday, ClosedReasonClosure, ClosedReasonBreak, ClosedReasonBridge:
		return true
	}
	return false
}
