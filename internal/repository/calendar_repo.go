package repository

import (
	"context"

	"gorm.io/gorm"

	"cfa-planning/internal/model"
	pkgerrors "cfa-planning/pkg/errors"
)

// CalendarRepository 学年日历数据访问接口
type CalendarRepository interface {
	Create(ctx context.Context, cal *model.AcademicCalendar) error
	GetByID(ctx context.Context, id string) (*model.AcademicCalendar, error)
	GetCurrent(ctx context.Context) (*model.AcademicCalendar, error)
	List(ctx context.Context) ([]model.AcademicCalendar, error)
	Update(ctx context.Context, cal *model.AcademicCalendar) error
	Delete(ctx context.Context, id string, deletedBy string) error
	ClearActive(ctx context.Context) error
}

type calendarRepo struct {
	db *gorm.DB
}

// NewCalendarRepo 创建 CalendarRepository 实例
func NewCalendarRepo(db *gorm.DB) CalendarRepository {
	return &calendarRepo{db: db}
}

func (r *calendarRepo) Create(ctx context.Context, cal *model.AcademicCalendar) error {
	return r.db.WithContext(ctx).Create(cal).Error
}

func (r *calendarRepo) GetByID(ctx context.Context, id string) (*model.AcademicCalendar, error) {
	var cal model.AcademicCalendar
	err := r.db.WithContext(ctx).
		Where("calendar_id = ?", id).
		First(&cal).Error
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *calendarRepo) GetCurrent(ctx context.Context) (*model.AcademicCalendar, error) {
	var cal model.AcademicCalendar
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		First(&cal).Error
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *calendarRepo) List(ctx context.Context) ([]model.AcademicCalendar, error) {
	var cals []model.AcademicCalendar
	err := r.db.WithContext(ctx).
		Order("start_date DESC").
		Find(&cals).Error
	return cals, err
}

// Update 带乐观锁的更新
func (r *calendarRepo) Update(ctx context.Context, cal *model.AcademicCalendar) error {
	oldVersion := cal.Version
	result := r.db.WithContext(ctx).
		Model(&model.AcademicCalendar{}).
		Where("calendar_id = ? AND version = ?", cal.CalendarID, oldVersion).
		Updates(map[string]interface{}{
			"name":             cal.Name,
			"start_date":       cal.StartDate,
			"end_date":         cal.EndDate,
			"reference_week_a": cal.ReferenceWeekA,
			"is_active":        cal.IsActive,
			"status":           cal.Status,
			"updated_by":       cal.UpdatedBy,
			"updated_at":       gorm.Expr("NOW()"),
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	cal.Version = oldVersion + 1
	return nil
}

func (r *calendarRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.AcademicCalendar{}).
		Where("calendar_id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

// ClearActive 将所有日历的 is_active 设为 false
func (r *calendarRepo) ClearActive(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&model.AcademicCalendar{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}
