package model

import (
	"time"

	"cfa-planning/internal/recurrence"
)

// AcademicCalendar 学年日历表 — 对应 academic_calendars
type AcademicCalendar struct {
	CalendarID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"calendar_id"`
	Name           string     `gorm:"type:varchar(100);not null"                     json:"name"`
	StartDate      time.Time  `gorm:"type:date;not null"                             json:"start_date"`
	EndDate        time.Time  `gorm:"type:date;not null"                             json:"end_date"`
	ReferenceWeekA *time.Time `gorm:"type:date"                                      json:"reference_week_a,omitempty"` // A 周的周一；NULL 时按 ISO 周数奇偶
	IsActive       bool       `gorm:"not null;default:false"                         json:"is_active"`
	Status         string     `gorm:"type:varchar(20);not null;default:'active'"     json:"status"` // active | archived
	VersionedModel
}

// TableName 指定表名
func (AcademicCalendar) TableName() string { return "academic_calendars" }

// WeekReference 该日历的单双周基准
func (c *AcademicCalendar) WeekReference() recurrence.WeekReference {
	return recurrence.NewWeekReference(c.ReferenceWeekA)
}

// Contains 日期是否落在日历跨度内
func (c *AcademicCalendar) Contains(date time.Time) bool {
	return recurrence.DateRangesOverlap(c.StartDate, c.EndDate, date, date)
}
