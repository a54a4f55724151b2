package repository

import (
	"context"

	"gorm.io/gorm"

	"cfa-planning/internal/model"
)

// SubjectOfferingRepository 开课只读查询接口
type SubjectOfferingRepository interface {
	GetByID(ctx context.Context, id string) (*model.SubjectOffering, error)
}

type subjectOfferingRepo struct {
	db *gorm.DB
}

// NewSubjectOfferingRepo 创建 SubjectOfferingRepository 实例
func NewSubjectOfferingRepo(db *gorm.DB) SubjectOfferingRepository {
	return &subjectOfferingRepo{db: db}
}

func (r *subjectOfferingRepo) GetByID(ctx context.Context, id string) (*model.SubjectOffering, error) {
	var so model.SubjectOffering
	err := r.db.WithContext(ctx).
		Where("subject_offering_id = ?", id).
		First(&so).Error
	if err != nil {
		return nil, err
	}
	return &so, nil
}
