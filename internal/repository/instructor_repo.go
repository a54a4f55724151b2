package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cfa-planning/internal/model"
)

// InstructorRepository 教师只读查询接口
type InstructorRepository interface {
	GetByID(ctx context.Context, id string) (*model.Instructor, error)
	// GetByIDs 返回存在的教师，缺失的 ID 不报错，由调用方比对
	GetByIDs(ctx context.Context, ids []string) ([]model.Instructor, error)
	// LockForUpdate 按 instructor_id 升序锁定教师行，事务结束释放
	LockForUpdate(ctx context.Context, ids []string) error
}

type instructorRepo struct {
	db *gorm.DB
}

// NewInstructorRepo 创建 InstructorRepository 实例
func NewInstructorRepo(db *gorm.DB) InstructorRepository {
	return &instructorRepo{db: db}
}

func (r *instructorRepo) GetByID(ctx context.Context, id string) (*model.Instructor, error) {
	var in model.Instructor
	err := r.db.WithContext(ctx).
		Where("instructor_id = ?", id).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *instructorRepo) GetByIDs(ctx context.Context, ids []string) ([]model.Instructor, error) {
	var list []model.Instructor
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Where("instructor_id IN ?", ids).
		Find(&list).Error
	return list, err
}

func (r *instructorRepo) LockForUpdate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var list []model.Instructor
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("instructor_id").
		Where("instructor_id IN ?", ids).
		Order("instructor_id ASC").
		Find(&list).Error
}
