package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"cfa-planning/internal/model"
	pkgerrors "cfa-planning/pkg/errors"
)

// SlotWindow 冲突候选的粗筛条件：同星期、时段相交、日期范围相交
// 单双周兼容性由调用方最后过滤
type SlotWindow struct {
	DayOfWeek     int
	StartTime     string
	EndTime       string
	RangeStart    time.Time
	RangeEnd      time.Time
	ExcludeSlotID string
}

// SlotFilter 列表过滤条件
type SlotFilter struct {
	CalendarID   string
	RoomID       string
	InstructorID string
	DayOfWeek    *int
	IsActive     *bool
}

// RecurringSlotRepository 周循环课时数据访问接口
type RecurringSlotRepository interface {
	Create(ctx context.Context, slot *model.RecurringSlot) error
	GetByID(ctx context.Context, id string) (*model.RecurringSlot, error)
	List(ctx context.Context, filter SlotFilter) ([]model.RecurringSlot, error)
	Update(ctx context.Context, slot *model.RecurringSlot) error
	Delete(ctx context.Context, id string, deletedBy string) error
	// FindActiveByRoom 使用同一教室且窗口相交的有效课时
	FindActiveByRoom(ctx context.Context, roomID string, w SlotWindow) ([]model.RecurringSlot, error)
	// FindActiveByInstructor 教师在列的、窗口相交的有效课时
	FindActiveByInstructor(ctx context.Context, instructorID string, w SlotWindow) ([]model.RecurringSlot, error)
	// CountWithParity 日历下设置了单双周的课时数
	CountWithParity(ctx context.Context, calendarID string) (int64, error)
}

type recurringSlotRepo struct {
	db *gorm.DB
}

// NewRecurringSlotRepo 创建 RecurringSlotRepository 实例
func NewRecurringSlotRepo(db *gorm.DB) RecurringSlotRepository {
	return &recurringSlotRepo{db: db}
}

// Create 写入课时与教师关联；教师行本身不做 upsert
func (r *recurringSlotRepo) Create(ctx context.Context, slot *model.RecurringSlot) error {
	return r.db.WithContext(ctx).
		Omit("Instructors.*", "Room", "SubjectOffering", "Calendar").
		Create(slot).Error
}

func (r *recurringSlotRepo) GetByID(ctx context.Context, id string) (*model.RecurringSlot, error) {
	var slot model.RecurringSlot
	err := r.db.WithContext(ctx).
		Preload("Instructors").
		Preload("Room").
		Where("slot_id = ?", id).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *recurringSlotRepo) List(ctx context.Context, filter SlotFilter) ([]model.RecurringSlot, error) {
	var slots []model.RecurringSlot
	db := r.db.WithContext(ctx).Model(&model.RecurringSlot{})

	if filter.CalendarID != "" {
		db = db.Where("calendar_id = ?", filter.CalendarID)
	}
	if filter.RoomID != "" {
		db = db.Where("room_id = ?", filter.RoomID)
	}
	if filter.InstructorID != "" {
		db = db.Where("slot_id IN (?)", r.db.
			Model(&model.RecurringSlotInstructor{}).
			Select("recurring_slot_id").
			Where("instructor_id = ?", filter.InstructorID))
	}
	if filter.DayOfWeek != nil {
		db = db.Where("day_of_week = ?", *filter.DayOfWeek)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}

	err := db.Preload("Instructors").
		Order("day_of_week ASC, start_time ASC").
		Find(&slots).Error
	return slots, err
}

// Update 带乐观锁更新课时字段，并整体替换教师关联
func (r *recurringSlotRepo) Update(ctx context.Context, slot *model.RecurringSlot) error {
	oldVersion := slot.Version
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.RecurringSlot{}).
			Where("slot_id = ? AND version = ?", slot.SlotID, oldVersion).
			Updates(map[string]interface{}{
				"room_id":             slot.RoomID,
				"subject_offering_id": slot.SubjectOfferingID,
				"day_of_week":         slot.DayOfWeek,
				"start_time":          slot.StartTime,
				"end_time":            slot.EndTime,
				"start_date":          slot.StartDate,
				"end_date":            slot.EndDate,
				"week_parity":         slot.WeekParity,
				"is_active":           slot.IsActive,
				"updated_by":          slot.UpdatedBy,
				"updated_at":          gorm.Expr("NOW()"),
				"version":             oldVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}

		if err := tx.Where("recurring_slot_id = ?", slot.SlotID).
			Delete(&model.RecurringSlotInstructor{}).Error; err != nil {
			return err
		}
		links := make([]model.RecurringSlotInstructor, 0, len(slot.Instructors))
		for _, in := range slot.Instructors {
			links = append(links, model.RecurringSlotInstructor{RecurringSlotID: slot.SlotID, InstructorID: in.InstructorID})
		}
		if len(links) > 0 {
			if err := tx.Create(&links).Error; err != nil {
				return err
			}
		}

		slot.Version = oldVersion + 1
		return nil
	})
}

func (r *recurringSlotRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.RecurringSlot{}).
		Where("slot_id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

// windowQuery 时段半开相交、日期闭区间相交
func (r *recurringSlotRepo) windowQuery(ctx context.Context, w SlotWindow) *gorm.DB {
	db := r.db.WithContext(ctx).
		Model(&model.RecurringSlot{}).
		Where("is_active = ?", true).
		Where("day_of_week = ?", w.DayOfWeek).
		Where("start_time < ? AND ? < end_time", w.EndTime, w.StartTime).
		Where("start_date <= ? AND ? <= end_date", w.RangeEnd, w.RangeStart)
	if w.ExcludeSlotID != "" {
		db = db.Where("slot_id <> ?", w.ExcludeSlotID)
	}
	return db
}

func (r *recurringSlotRepo) FindActiveByRoom(ctx context.Context, roomID string, w SlotWindow) ([]model.RecurringSlot, error) {
	var slots []model.RecurringSlot
	err := r.windowQuery(ctx, w).
		Where("room_id = ?", roomID).
		Preload("Instructors").
		Order("start_time ASC").
		Find(&slots).Error
	return slots, err
}

func (r *recurringSlotRepo) FindActiveByInstructor(ctx context.Context, instructorID string, w SlotWindow) ([]model.RecurringSlot, error) {
	var slots []model.RecurringSlot
	err := r.windowQuery(ctx, w).
		Joins("JOIN recurring_slot_instructors rsi ON rsi.recurring_slot_id = recurring_slots.slot_id").
		Where("rsi.instructor_id = ?", instructorID).
		Preload("Instructors").
		Order("start_time ASC").
		Find(&slots).Error
	return slots, err
}

func (r *recurringSlotRepo) CountWithParity(ctx context.Context, calendarID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.RecurringSlot{}).
		Where("calendar_id = ? AND week_parity <> ''", calendarID).
		Count(&n).Error
	return n, err
}
