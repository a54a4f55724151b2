package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
	"cfa-planning/pkg/broker"
	pkgerrors "cfa-planning/pkg/errors"
)

// ── 课次模块业务错误 ──

var (
	ErrOccurrenceNotFound = errors.New("课次不存在")
	ErrOccurrenceInvalid  = errors.New("课次参数无效")
)

// OccurrenceService 课次业务接口
type OccurrenceService interface {
	// Create 手工创建课次，不关联课时模板，重新生成永远不会触及
	Create(ctx context.Context, req *dto.CreateOccurrenceRequest, callerID string) (*dto.OccurrenceWriteResponse, error)
	GetByID(ctx context.Context, id string) (*dto.OccurrenceResponse, error)
	List(ctx context.Context, req *dto.OccurrenceListRequest) ([]dto.OccurrenceResponse, int64, error)
	// Update 修改快照字段时标记为手工修改
	Update(ctx context.Context, id string, req *dto.UpdateOccurrenceRequest, callerID string) (*dto.OccurrenceWriteResponse, error)
	ChangeStatus(ctx context.Context, id string, req *dto.ChangeStatusRequest, callerID string) (*dto.OccurrenceWriteResponse, error)
	Delete(ctx context.Context, id string) error
}

type occurrenceService struct {
	repo      *repository.Repository
	publisher broker.Publisher
	logger    *zap.Logger
}

// NewOccurrenceService 创建 OccurrenceService 实例
func NewOccurrenceService(repo *repository.Repository, publisher broker.Publisher, logger *zap.Logger) OccurrenceService {
	return &occurrenceService{repo: repo, publisher: publisher, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *occurrenceService) Create(ctx context.Context, req *dto.CreateOccurrenceRequest, callerID string) (*dto.OccurrenceWriteResponse, error) {
	date, err := recurrence.ParseDate(req.Date)
	if err != nil {
		return nil, &recurrence.ValidationError{Violations: []recurrence.FieldViolation{{Field: "date", Message: "日期格式应为 YYYY-MM-DD"}}}
	}
	start, end, err := parseOccurrenceWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	occ := &model.Occurrence{
		RoomID:            req.RoomID,
		InstructorIDs:     uniqueStrings(req.InstructorIDs),
		SubjectOfferingID: req.SubjectOfferingID,
		Date:              date,
		StartTime:         start.String(),
		EndTime:           end.String(),
		Status:            string(recurrence.StatusPlanned),
		Notes:             req.Notes,
		Version:           1,
	}
	if len(occ.InstructorIDs) == 0 {
		return nil, &recurrence.ValidationError{Violations: []recurrence.FieldViolation{{Field: "instructor_ids", Message: "至少需要一名教师"}}}
	}
	occ.CreatedBy = &callerID
	occ.UpdatedBy = &callerID

	resp := &dto.OccurrenceWriteResponse{}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		room, err := s.checkReferences(ctx, tx, occ)
		if err != nil {
			return err
		}
		if err := lockResources(ctx, tx, occ.RoomID, occ.InstructorIDs); err != nil {
			return err
		}
		report, err := (&conflictService{repo: tx, logger: s.logger}).checkOccurrence(ctx, occ, room)
		if err != nil {
			return err
		}
		if report.HasConflicts() {
			resp.Conflicts = report
			if !req.OverrideConflicts {
				return nil
			}
		}
		if err := tx.Occurrence.Create(ctx, occ); err != nil {
			return err
		}
		resp.Applied = true
		return nil
	})
	if err != nil {
		if !isOccurrenceClientError(err) {
			s.logger.Error("创建课次失败", zap.Error(err))
		}
		return nil, err
	}

	if resp.Applied {
		resp.Occurrence = toOccurrenceResponse(occ)
	}
	return resp, nil
}

// ────────────────────── GetByID / List ──────────────────────

func (s *occurrenceService) GetByID(ctx context.Context, id string) (*dto.OccurrenceResponse, error) {
	occ, err := s.loadOccurrence(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return toOccurrenceResponse(occ), nil
}

func (s *occurrenceService) List(ctx context.Context, req *dto.OccurrenceListRequest) ([]dto.OccurrenceResponse, int64, error) {
	filter := repository.OccurrenceFilter{
		SlotID:       req.SlotID,
		RoomID:       req.RoomID,
		InstructorID: req.InstructorID,
		Status:       req.Status,
		Offset:       req.GetOffset(),
		Limit:        req.GetPageSize(),
	}
	if req.From != "" {
		d, err := recurrence.ParseDate(req.From)
		if err != nil {
			return nil, 0, ErrOccurrenceInvalid
		}
		filter.From = &d
	}
	if req.To != "" {
		d, err := recurrence.ParseDate(req.To)
		if err != nil {
			return nil, 0, ErrOccurrenceInvalid
		}
		filter.To = &d
	}

	occs, total, err := s.repo.Occurrence.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出课次失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.OccurrenceResponse, 0, len(occs))
	for i := range occs {
		result = append(result, *toOccurrenceResponse(&occs[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *occurrenceService) Update(ctx context.Context, id string, req *dto.UpdateOccurrenceRequest, callerID string) (*dto.OccurrenceWriteResponse, error) {
	resp := &dto.OccurrenceWriteResponse{}
	var occ *model.Occurrence

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if occ, err = s.loadOccurrence(ctx, tx, id); err != nil {
			return err
		}

		changed, err := applyOccurrenceUpdate(occ, req)
		if err != nil {
			return err
		}
		if changed {
			occ.ManuallyModified = true
		}
		occ.Version = req.Version
		occ.UpdatedBy = &callerID

		if changed {
			room, err := s.checkReferences(ctx, tx, occ)
			if err != nil {
				return err
			}
			if err := lockResources(ctx, tx, occ.RoomID, occ.InstructorIDs); err != nil {
				return err
			}
			report, err := (&conflictService{repo: tx, logger: s.logger}).checkOccurrence(ctx, occ, room)
			if err != nil {
				return err
			}
			if report.HasConflicts() {
				resp.Conflicts = report
				if !req.OverrideConflicts {
					return nil
				}
			}
		}

		if err := tx.Occurrence.Update(ctx, occ); err != nil {
			return err
		}
		resp.Applied = true
		return nil
	})
	if err != nil {
		if !isOccurrenceClientError(err) {
			s.logger.Error("更新课次失败", zap.String("occurrence_id", id), zap.Error(err))
		}
		return nil, err
	}

	if resp.Applied {
		resp.Occurrence = toOccurrenceResponse(occ)
	}
	return resp, nil
}

// ────────────────────── ChangeStatus ──────────────────────

func (s *occurrenceService) ChangeStatus(ctx context.Context, id string, req *dto.ChangeStatusRequest, callerID string) (*dto.OccurrenceWriteResponse, error) {
	to, err := recurrence.ParseStatus(req.Status)
	if err != nil {
		return nil, ErrOccurrenceInvalid
	}

	resp := &dto.OccurrenceWriteResponse{}
	var occ *model.Occurrence
	var from recurrence.Status

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if occ, err = s.loadOccurrence(ctx, tx, id); err != nil {
			return err
		}
		from = recurrence.Status(occ.Status)
		if err := recurrence.Transition(from, to); err != nil {
			return err
		}

		occ.Status = string(to)
		occ.Version = req.Version
		occ.UpdatedBy = &callerID

		// 从不占用变为占用（取消后恢复）时需要重新检测
		if !from.Occupies() && to.Occupies() {
			if err := lockResources(ctx, tx, occ.RoomID, occ.InstructorIDs); err != nil {
				return err
			}
			report, err := (&conflictService{repo: tx, logger: s.logger}).CheckOccurrence(ctx, occ)
			if err != nil {
				return err
			}
			if report.HasConflicts() {
				resp.Conflicts = report
				if !req.OverrideConflicts {
					return nil
				}
			}
		}

		if err := tx.Occurrence.Update(ctx, occ); err != nil {
			return err
		}
		resp.Applied = true
		return nil
	})
	if err != nil {
		if !isOccurrenceClientError(err) {
			s.logger.Error("变更课次状态失败", zap.String("occurrence_id", id), zap.Error(err))
		}
		return nil, err
	}

	if resp.Applied {
		resp.Occurrence = toOccurrenceResponse(occ)
		if s.publisher != nil {
			event := OccurrenceStatusChangedEvent{
				OccurrenceID: id,
				From:         string(from),
				To:           string(to),
				ActorID:      callerID,
				OccurredAt:   time.Now().UTC().Format(timestampLayout),
			}
			if err := s.publisher.Publish(ctx, RoutingKeyOccurrenceStatusChanged, event); err != nil {
				s.logger.Warn("发布事件失败", zap.String("routing_key", RoutingKeyOccurrenceStatusChanged), zap.Error(err))
			}
		}
	}
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *occurrenceService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadOccurrence(ctx, s.repo, id); err != nil {
		return err
	}
	if err := s.repo.Occurrence.Delete(ctx, id); err != nil {
		s.logger.Error("删除课次失败", zap.String("occurrence_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func (s *occurrenceService) loadOccurrence(ctx context.Context, repo *repository.Repository, id string) (*model.Occurrence, error) {
	occ, err := repo.Occurrence.GetByID(ctx, id)
	if err != nil {
		if err = notFound(err, ErrOccurrenceNotFound); err != ErrOccurrenceNotFound {
			s.logger.Error("查询课次失败", zap.String("occurrence_id", id), zap.Error(err))
		}
		return nil, err
	}
	return occ, nil
}

// checkReferences 校验教室、教师、开课存在，返回教室供冲突检测使用
func (s *occurrenceService) checkReferences(ctx context.Context, repo *repository.Repository, occ *model.Occurrence) (*model.Room, error) {
	room, err := repo.Room.GetByID(ctx, occ.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	if _, err := repo.SubjectOffering.GetByID(ctx, occ.SubjectOfferingID); err != nil {
		return nil, notFound(err, ErrSubjectOfferingNotFound)
	}
	instructors, err := repo.Instructor.GetByIDs(ctx, occ.InstructorIDs)
	if err != nil {
		return nil, err
	}
	if len(instructors) != len(occ.InstructorIDs) {
		return nil, ErrInstructorNotFound
	}
	return room, nil
}

func parseOccurrenceWindow(startStr, endStr string) (recurrence.Clock, recurrence.Clock, error) {
	var vs []recurrence.FieldViolation
	start, err := recurrence.ParseClock(startStr)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "start_time", Message: "时间格式应为 HH:MM"})
	}
	end, err := recurrence.ParseClock(endStr)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "end_time", Message: "时间格式应为 HH:MM"})
	}
	if len(vs) == 0 {
		vs = recurrence.CheckTimeWindow(start, end)
	}
	if len(vs) > 0 {
		return 0, 0, &recurrence.ValidationError{Violations: vs}
	}
	return start, end, nil
}

// applyOccurrenceUpdate 应用修改，返回快照字段是否发生变化
func applyOccurrenceUpdate(occ *model.Occurrence, req *dto.UpdateOccurrenceRequest) (bool, error) {
	changed := false

	if req.RoomID != nil && *req.RoomID != occ.RoomID {
		occ.RoomID = *req.RoomID
		changed = true
	}
	if len(req.InstructorIDs) > 0 {
		ids := uniqueStrings(req.InstructorIDs)
		if !sameStrings(ids, occ.InstructorIDs) {
			occ.InstructorIDs = ids
			changed = true
		}
	}
	if req.SubjectOfferingID != nil && *req.SubjectOfferingID != occ.SubjectOfferingID {
		occ.SubjectOfferingID = *req.SubjectOfferingID
		changed = true
	}
	if req.Date != nil {
		d, err := recurrence.ParseDate(*req.Date)
		if err != nil {
			return false, &recurrence.ValidationError{Violations: []recurrence.FieldViolation{{Field: "date", Message: "日期格式应为 YYYY-MM-DD"}}}
		}
		if !d.Equal(recurrence.Date(occ.Date)) {
			occ.Date = d
			changed = true
		}
	}

	startStr, endStr := clockString(occ.StartTime), clockString(occ.EndTime)
	if req.StartTime != nil {
		startStr = *req.StartTime
	}
	if req.EndTime != nil {
		endStr = *req.EndTime
	}
	start, end, err := parseOccurrenceWindow(startStr, endStr)
	if err != nil {
		return false, err
	}
	if start.String() != clockString(occ.StartTime) || end.String() != clockString(occ.EndTime) {
		occ.StartTime = start.String()
		occ.EndTime = end.String()
		changed = true
	}

	// 备注不属于快照字段
	if req.Notes != nil {
		occ.Notes = *req.Notes
	}
	return changed, nil
}

// sameStrings 忽略顺序比较
func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s]++
	}
	for _, s := range b {
		if set[s] == 0 {
			return false
		}
		set[s]--
	}
	return true
}

func isOccurrenceClientError(err error) bool {
	for _, target := range []error{
		recurrence.ErrInvalidInput, recurrence.ErrInvalidTransition,
		ErrOccurrenceNotFound, ErrOccurrenceInvalid,
		ErrRoomNotFound, ErrInstructorNotFound, ErrSubjectOfferingNotFound,
		pkgerrors.ErrOptimisticLock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
