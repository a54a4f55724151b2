package model

import (
	"fmt"
	"time"

	"cfa-planning/internal/recurrence"
)

// RecurringSlot 周循环课时模板 — 对应 recurring_slots
type RecurringSlot struct {
	SlotID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"slot_id"`
	CalendarID        string    `gorm:"type:uuid;not null;index"                      json:"calendar_id"`
	RoomID            string    `gorm:"type:uuid;not null;index"                      json:"room_id"`
	SubjectOfferingID string    `gorm:"type:uuid;not null"                            json:"subject_offering_id"`
	DayOfWeek         int       `gorm:"type:smallint;not null"                        json:"day_of_week"` // 1-7，周一至周日
	StartTime         string    `gorm:"type:time;not null"                            json:"start_time"`
	EndTime           string    `gorm:"type:time;not null"                            json:"end_time"`
	StartDate         time.Time `gorm:"type:date;not null"                            json:"start_date"`
	EndDate           time.Time `gorm:"type:date;not null"                            json:"end_date"`
	WeekParity        string    `gorm:"type:varchar(1);not null;default:''"           json:"week_parity"` // "" | A | B
	IsActive          bool      `gorm:"not null;default:true"                         json:"is_active"`
	VersionedModel

	// 关联
	Instructors     []Instructor      `gorm:"many2many:recurring_slot_instructors;foreignKey:SlotID;joinForeignKey:RecurringSlotID;references:InstructorID;joinReferences:InstructorID" json:"instructors,omitempty"`
	Room            *Room             `gorm:"foreignKey:RoomID;references:RoomID"                       json:"room,omitempty"`
	SubjectOffering *SubjectOffering  `gorm:"foreignKey:SubjectOfferingID;references:SubjectOfferingID" json:"subject_offering,omitempty"`
	Calendar        *AcademicCalendar `gorm:"foreignKey:CalendarID;references:CalendarID"               json:"calendar,omitempty"`
}

// TableName 指定表名
func (RecurringSlot) TableName() string { return "recurring_slots" }

// RecurringSlotInstructor 课时-教师关联表 — 对应 recurring_slot_instructors
type RecurringSlotInstructor struct {
	RecurringSlotID string `gorm:"type:uuid;primaryKey"`
	InstructorID    string `gorm:"type:uuid;primaryKey"`
}

// TableName 指定表名
func (RecurringSlotInstructor) TableName() string { return "recurring_slot_instructors" }

// InstructorIDs 教师 ID 列表
func (s *RecurringSlot) InstructorIDs() []string {
	ids := make([]string, 0, len(s.Instructors))
	for _, in := range s.Instructors {
		ids = append(ids, in.InstructorID)
	}
	return ids
}

// SetInstructorIDs 以 ID 列表重建教师关联
func (s *RecurringSlot) SetInstructorIDs(ids []string) {
	s.Instructors = make([]Instructor, 0, len(ids))
	for _, id := range ids {
		s.Instructors = append(s.Instructors, Instructor{InstructorID: id})
	}
}

// Spec 转换为可展开、可校验的课时定义
func (s *RecurringSlot) Spec() (recurrence.SlotSpec, error) {
	start, err := recurrence.ParseClock(s.StartTime)
	if err != nil {
		return recurrence.SlotSpec{}, fmt.Errorf("课时 %s 开始时间无效: %w", s.SlotID, err)
	}
	end, err := recurrence.ParseClock(s.EndTime)
	if err != nil {
		return recurrence.SlotSpec{}, fmt.Errorf("课时 %s 结束时间无效: %w", s.SlotID, err)
	}
	return recurrence.SlotSpec{
		DayOfWeek:     s.DayOfWeek,
		Start:         start,
		End:           end,
		StartDate:     recurrence.Date(s.StartDate),
		EndDate:       recurrence.Date(s.EndDate),
		Parity:        recurrence.WeekParity(s.WeekParity),
		InstructorIDs: s.InstructorIDs(),
	}, nil
}
