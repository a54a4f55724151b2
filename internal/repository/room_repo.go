package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cfa-planning/internal/model"
)

// RoomRepository 教室只读查询接口（教室由场地子系统维护）
type RoomRepository interface {
	GetByID(ctx context.Context, id string) (*model.Room, error)
	// LockForUpdate 在当前事务内以 SELECT ... FOR UPDATE 锁定教室行，事务结束释放
	LockForUpdate(ctx context.Context, id string) error
}

type roomRepo struct {
	db *gorm.DB
}

// NewRoomRepo 创建 RoomRepository 实例
func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("room_id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) LockForUpdate(ctx context.Context, id string) error {
	var room model.Room
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("room_id").
		Where("room_id = ?", id).
		First(&room).Error
}
