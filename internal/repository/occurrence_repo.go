package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cfa-planning/internal/model"
	pkgerrors "cfa-planning/pkg/errors"
)

// OccurrenceFilter 课次列表过滤条件
type OccurrenceFilter struct {
	SlotID       string
	RoomID       string
	InstructorID string
	From         *time.Time
	To           *time.Time
	Status       string
	Offset       int
	Limit        int // 0 表示不分页
}

// OccurrenceRepository 课次数据访问接口
type OccurrenceRepository interface {
	Create(ctx context.Context, occ *model.Occurrence) error
	// CreateBatch 批量插入，(recurring_slot_id, origin_date) 已存在的行被跳过，返回实际插入行数
	CreateBatch(ctx context.Context, occs []model.Occurrence) (int64, error)
	GetByID(ctx context.Context, id string) (*model.Occurrence, error)
	// List 返回当前页与总数
	List(ctx context.Context, filter OccurrenceFilter) ([]model.Occurrence, int64, error)
	ListBySlot(ctx context.Context, slotID string) ([]model.Occurrence, error)
	Update(ctx context.Context, occ *model.Occurrence) error
	Delete(ctx context.Context, id string) error
	// DeleteUnmodifiedBySlot 删除课时生成且未被手工修改的课次
	DeleteUnmodifiedBySlot(ctx context.Context, slotID string) (int64, error)
	// DetachModifiedBySlot 解除手工修改课次与课时的关联
	DetachModifiedBySlot(ctx context.Context, slotID string) (int64, error)
	// FindByRoomOnDate 同一教室当天的课次
	FindByRoomOnDate(ctx context.Context, roomID string, date time.Time, excludeID string) ([]model.Occurrence, error)
	// FindByInstructorOnDate 教师当天参与的课次
	FindByInstructorOnDate(ctx context.Context, instructorID string, date time.Time, excludeID string) ([]model.Occurrence, error)
}

type occurrenceRepo struct {
	db *gorm.DB
}

// NewOccurrenceRepo 创建 OccurrenceRepository 实例
func NewOccurrenceRepo(db *gorm.DB) OccurrenceRepository {
	return &occurrenceRepo{db: db}
}

func (r *occurrenceRepo) Create(ctx context.Context, occ *model.Occurrence) error {
	return r.db.WithContext(ctx).Create(occ).Error
}

func (r *occurrenceRepo) CreateBatch(ctx context.Context, occs []model.Occurrence) (int64, error) {
	if len(occs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&occs, 200)
	return result.RowsAffected, result.Error
}

func (r *occurrenceRepo) GetByID(ctx context.Context, id string) (*model.Occurrence, error) {
	var occ model.Occurrence
	err := r.db.WithContext(ctx).
		Where("occurrence_id = ?", id).
		First(&occ).Error
	if err != nil {
		return nil, err
	}
	return &occ, nil
}

func (r *occurrenceRepo) List(ctx context.Context, filter OccurrenceFilter) ([]model.Occurrence, int64, error) {
	var occs []model.Occurrence
	db := r.db.WithContext(ctx).Model(&model.Occurrence{})

	if filter.SlotID != "" {
		db = db.Where("recurring_slot_id = ?", filter.SlotID)
	}
	if filter.RoomID != "" {
		db = db.Where("room_id = ?", filter.RoomID)
	}
	if filter.InstructorID != "" {
		db = db.Where("instructor_ids @> ?::jsonb", instructorContains(filter.InstructorID))
	}
	if filter.From != nil {
		db = db.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("date <= ?", *filter.To)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	err := db.Order("date ASC, start_time ASC").Find(&occs).Error
	return occs, total, err
}

func (r *occurrenceRepo) ListBySlot(ctx context.Context, slotID string) ([]model.Occurrence, error) {
	var occs []model.Occurrence
	err := r.db.WithContext(ctx).
		Where("recurring_slot_id = ?", slotID).
		Order("date ASC").
		Find(&occs).Error
	return occs, err
}

// Update 带乐观锁的更新
func (r *occurrenceRepo) Update(ctx context.Context, occ *model.Occurrence) error {
	oldVersion := occ.Version
	result := r.db.WithContext(ctx).
		Model(&model.Occurrence{}).
		Where("occurrence_id = ? AND version = ?", occ.OccurrenceID, oldVersion).
		Updates(map[string]interface{}{
			"room_id":             occ.RoomID,
			"instructor_ids":      occ.InstructorIDs,
			"subject_offering_id": occ.SubjectOfferingID,
			"date":                occ.Date,
			"start_time":          occ.StartTime,
			"end_time":            occ.EndTime,
			"status":              occ.Status,
			"manually_modified":   occ.ManuallyModified,
			"notes":               occ.Notes,
			"updated_by":          occ.UpdatedBy,
			"updated_at":          gorm.Expr("NOW()"),
			"version":             oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	occ.Version = oldVersion + 1
	return nil
}

func (r *occurrenceRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("occurrence_id = ?", id).
		Delete(&model.Occurrence{}).Error
}

func (r *occurrenceRepo) DeleteUnmodifiedBySlot(ctx context.Context, slotID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recurring_slot_id = ? AND manually_modified = ?", slotID, false).
		Delete(&model.Occurrence{})
	return result.RowsAffected, result.Error
}

func (r *occurrenceRepo) DetachModifiedBySlot(ctx context.Context, slotID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Occurrence{}).
		Where("recurring_slot_id = ? AND manually_modified = ?", slotID, true).
		Updates(map[string]interface{}{
			"recurring_slot_id": nil,
			"updated_at":        gorm.Expr("NOW()"),
		})
	return result.RowsAffected, result.Error
}

func (r *occurrenceRepo) FindByRoomOnDate(ctx context.Context, roomID string, date time.Time, excludeID string) ([]model.Occurrence, error) {
	var occs []model.Occurrence
	db := r.db.WithContext(ctx).Where("room_id = ? AND date = ?", roomID, date)
	if excludeID != "" {
		db = db.Where("occurrence_id <> ?", excludeID)
	}
	err := db.Order("start_time ASC").Find(&occs).Error
	return occs, err
}

func (r *occurrenceRepo) FindByInstructorOnDate(ctx context.Context, instructorID string, date time.Time, excludeID string) ([]model.Occurrence, error) {
	var occs []model.Occurrence
	db := r.db.WithContext(ctx).
		Where("date = ?", date).
		Where("instructor_ids @> ?::jsonb", instructorContains(instructorID))
	if excludeID != "" {
		db = db.Where("occurrence_id <> ?", excludeID)
	}
	err := db.Order("start_time ASC").Find(&occs).Error
	return occs, err
}

// instructorContains 构造 jsonb 包含查询的参数 ["id"]
func instructorContains(id string) string {
	b, _ := json.Marshal([]string{id})
	return string(b)
}
