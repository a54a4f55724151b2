package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cfa-planning/internal/model"
)

// ClosedDayRepository 停课日数据访问接口
type ClosedDayRepository interface {
	// ListInRange 日历在 [start, end] 内的停课日，按日期升序
	ListInRange(ctx context.Context, calendarID string, start, end time.Time) ([]model.ClosedDay, error)
	GetByID(ctx context.Context, id string) (*model.ClosedDay, error)
	// CreateBatch 批量插入，(calendar_id, date) 已存在的行被跳过，返回实际插入行数
	CreateBatch(ctx context.Context, days []model.ClosedDay) (int64, error)
	Delete(ctx context.Context, id string) error
}

type closedDayRepo struct {
	db *gorm.DB
}

// NewClosedDayRepo 创建 ClosedDayRepository 实例
func NewClosedDayRepo(db *gorm.DB) ClosedDayRepository {
	return &closedDayRepo{db: db}
}

func (r *closedDayRepo) ListInRange(ctx context.Context, calendarID string, start, end time.Time) ([]model.ClosedDay, error) {
	var days []model.ClosedDay
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND date BETWEEN ? AND ?", calendarID, start, end).
		Order("date ASC").
		Find(&days).Error
	return days, err
}

func (r *closedDayRepo) GetByID(ctx context.Context, id string) (*model.ClosedDay, error) {
	var day model.ClosedDay
	err := r.db.WithContext(ctx).
		Where("closed_day_id = ?", id).
		First(&day).Error
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *closedDayRepo) CreateBatch(ctx context.Context, days []model.ClosedDay) (int64, error) {
	if len(days) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "calendar_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		CreateInBatches(&days, 200)
	return result.RowsAffected, result.Error
}

func (r *closedDayRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("closed_day_id = ?", id).
		Delete(&model.ClosedDay{}).Error
}
