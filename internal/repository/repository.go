package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Calendar        CalendarRepository
	ClosedDay       ClosedDayRepository
	Room            RoomRepository
	Instructor      InstructorRepository
	SubjectOffering SubjectOfferingRepository
	RecurringSlot   RecurringSlotRepository
	Occurrence      OccurrenceRepository

	db *gorm.DB
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Calendar:        NewCalendarRepo(db),
		ClosedDay:       NewClosedDayRepo(db),
		Room:            NewRoomRepo(db),
		Instructor:      NewInstructorRepo(db),
		SubjectOffering: NewSubjectOfferingRepo(db),
		RecurringSlot:   NewRecurringSlotRepo(db),
		Occurrence:      NewOccurrenceRepo(db),
		db:              db,
	}
}

// Transaction 在同一事务内执行 fn，fn 收到绑定到该事务的 Repository
// 未绑定数据库（单元测试中手工组装的聚合）时直接以自身调用 fn
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
