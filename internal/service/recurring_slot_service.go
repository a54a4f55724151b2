package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cfa-planning/config"
	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
	"cfa-planning/pkg/broker"
	pkgerrors "cfa-planning/pkg/errors"
)

// ── 周循环课时模块业务错误 ──

var (
	ErrSlotNotFound            = errors.New("课时不存在")
	ErrRoomNotFound            = errors.New("教室不存在")
	ErrInstructorNotFound      = errors.New("教师不存在")
	ErrInstructorInactive      = errors.New("教师已停用")
	ErrSubjectOfferingNotFound = errors.New("开课记录不存在")
	ErrRoomCapacityExceeded    = errors.New("教室容量小于开课人数上限")
	ErrSlotOutsideCalendar     = errors.New("课时日期超出学年日历范围")
)

// RecurringSlotService 周循环课时业务接口
type RecurringSlotService interface {
	Create(ctx context.Context, req *dto.CreateRecurringSlotRequest, callerID string) (*dto.SlotWriteResponse, error)
	GetByID(ctx context.Context, id string) (*dto.RecurringSlotResponse, error)
	List(ctx context.Context, req *dto.RecurringSlotListRequest) ([]dto.RecurringSlotResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateRecurringSlotRequest, callerID string) (*dto.SlotWriteResponse, error)
	// Delete 删除课时：未手工修改的课次一并删除，手工修改过的解除关联后保留
	Delete(ctx context.Context, id string, callerID string) (*dto.SlotDeleteResponse, error)

	// Validate 草稿冲突检测，excludeID 非空时排除该课时自身
	Validate(ctx context.Context, draft *dto.SlotDraft, excludeID string) (*dto.ConflictReport, error)
	ValidateExisting(ctx context.Context, id string) (*dto.ConflictReport, error)
}

type recurringSlotService struct {
	repo      *repository.Repository
	locker    SlotLocker
	publisher broker.Publisher
	cfg       config.PlanningConfig
	logger    *zap.Logger
}

// NewRecurringSlotService 创建 RecurringSlotService 实例
func NewRecurringSlotService(
	cfg config.PlanningConfig,
	repo *repository.Repository,
	locker SlotLocker,
	publisher broker.Publisher,
	logger *zap.Logger,
) RecurringSlotService {
	return &recurringSlotService{repo: repo, locker: locker, publisher: publisher, cfg: cfg, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *recurringSlotService) Create(ctx context.Context, req *dto.CreateRecurringSlotRequest, callerID string) (*dto.SlotWriteResponse, error) {
	slot, err := slotFromDraft(&req.SlotDraft)
	if err != nil {
		return nil, err
	}

	resp := &dto.SlotWriteResponse{}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		refs, err := s.checkReferences(ctx, tx, slot)
		if err != nil {
			return err
		}

		// 容量只在创建时校验
		if warning := capacityWarning(refs.room, refs.offering); warning != "" {
			if s.cfg.EnforceRoomCapacity {
				return fmt.Errorf("%w: %s", ErrRoomCapacityExceeded, warning)
			}
			resp.CapacityWarning = warning
		}

		if err := lockResources(ctx, tx, slot.RoomID, slot.InstructorIDs()); err != nil {
			return err
		}
		report, err := (&conflictService{repo: tx, logger: s.logger}).ValidateSlot(ctx, slot)
		if err != nil {
			return err
		}
		if report.HasConflicts() {
			resp.Conflicts = report
			if !req.OverrideConflicts {
				return nil
			}
		}

		slot.CreatedBy = &callerID
		slot.UpdatedBy = &callerID
		if err := tx.RecurringSlot.Create(ctx, slot); err != nil {
			return err
		}
		resp.Applied = true
		return nil
	})
	if err != nil {
		if !isSlotClientError(err) {
			s.logger.Error("创建课时失败", zap.Error(err))
		}
		return nil, err
	}

	if resp.Applied {
		resp.Slot = toSlotResponse(slot)
		if resp.Conflicts != nil {
			s.logger.Warn("课时在冲突确认后创建",
				zap.String("slot_id", slot.SlotID),
				zap.Int("room_conflicts", len(resp.Conflicts.RoomConflicts)),
				zap.Int("instructor_conflicts", len(resp.Conflicts.InstructorConflicts)),
			)
		}
	}
	return resp, nil
}

// ────────────────────── GetByID / List ──────────────────────

func (s *recurringSlotService) GetByID(ctx context.Context, id string) (*dto.RecurringSlotResponse, error) {
	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSlotResponse(slot), nil
}

func (s *recurringSlotService) List(ctx context.Context, req *dto.RecurringSlotListRequest) ([]dto.RecurringSlotResponse, error) {
	filter := repository.SlotFilter{}
	if req != nil {
		filter = repository.SlotFilter{
			CalendarID:   req.CalendarID,
			RoomID:       req.RoomID,
			InstructorID: req.InstructorID,
			DayOfWeek:    req.DayOfWeek,
			IsActive:     req.IsActive,
		}
	}

	slots, err := s.repo.RecurringSlot.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出课时失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.RecurringSlotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, *toSlotResponse(&slots[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *recurringSlotService) Update(ctx context.Context, id string, req *dto.UpdateRecurringSlotRequest, callerID string) (*dto.SlotWriteResponse, error) {
	// 与生成课次互斥，避免生成过程中读到半更新的模板
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}

	draft := draftFromSlot(slot)
	applySlotUpdate(&draft, req)
	updated, err := slotFromDraft(&draft)
	if err != nil {
		return nil, err
	}
	updated.SlotID = slot.SlotID
	updated.IsActive = slot.IsActive
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	updated.VersionedModel = slot.VersionedModel
	updated.Version = req.Version
	updated.UpdatedBy = &callerID

	resp := &dto.SlotWriteResponse{}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := s.checkReferences(ctx, tx, updated); err != nil {
			return err
		}

		// 停用的课时不占用资源，无需检测
		if updated.IsActive {
			if err := lockResources(ctx, tx, updated.RoomID, updated.InstructorIDs()); err != nil {
				return err
			}
			report, err := (&conflictService{repo: tx, logger: s.logger}).ValidateSlot(ctx, updated)
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

		if err := tx.RecurringSlot.Update(ctx, updated); err != nil {
			return err
		}
		resp.Applied = true
		return nil
	})
	if err != nil {
		if !isSlotClientError(err) {
			s.logger.Error("更新课时失败", zap.String("slot_id", id), zap.Error(err))
		}
		return nil, err
	}

	if resp.Applied {
		resp.Slot = toSlotResponse(updated)
	}
	return resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *recurringSlotService) Delete(ctx context.Context, id string, callerID string) (*dto.SlotDeleteResponse, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.loadSlot(ctx, id); err != nil {
		return nil, err
	}

	resp := &dto.SlotDeleteResponse{}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		deleted, err := tx.Occurrence.DeleteUnmodifiedBySlot(ctx, id)
		if err != nil {
			return err
		}
		detached, err := tx.Occurrence.DetachModifiedBySlot(ctx, id)
		if err != nil {
			return err
		}
		resp.DeletedOccurrences = deleted
		resp.DetachedOccurrences = detached
		return tx.RecurringSlot.Delete(ctx, id, callerID)
	})
	if err != nil {
		s.logger.Error("删除课时失败", zap.String("slot_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("课时已删除",
		zap.String("slot_id", id),
		zap.Int64("deleted_occurrences", resp.DeletedOccurrences),
		zap.Int64("detached_occurrences", resp.DetachedOccurrences),
	)
	if s.publisher != nil {
		event := SlotDeletedEvent{
			SlotID:              id,
			DeletedOccurrences:  resp.DeletedOccurrences,
			DetachedOccurrences: resp.DetachedOccurrences,
			ActorID:             callerID,
			OccurredAt:          time.Now().UTC().Format(timestampLayout),
		}
		if err := s.publisher.Publish(ctx, RoutingKeySlotDeleted, event); err != nil {
			s.logger.Warn("发布事件失败", zap.String("routing_key", RoutingKeySlotDeleted), zap.Error(err))
		}
	}
	return resp, nil
}

// ────────────────────── Validate ──────────────────────

func (s *recurringSlotService) Validate(ctx context.Context, draft *dto.SlotDraft, excludeID string) (*dto.ConflictReport, error) {
	slot, err := slotFromDraft(draft)
	if err != nil {
		return nil, err
	}
	slot.SlotID = excludeID
	return s.validate(ctx, slot)
}

func (s *recurringSlotService) ValidateExisting(ctx context.Context, id string) (*dto.ConflictReport, error) {
	slot, err := s.loadSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.validate(ctx, slot)
}

func (s *recurringSlotService) validate(ctx context.Context, slot *model.RecurringSlot) (*dto.ConflictReport, error) {
	report, err := NewConflictService(s.repo, s.logger).ValidateSlot(ctx, slot)
	if err != nil {
		if !isSlotClientError(err) {
			s.logger.Error("课时冲突检测失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		}
		return nil, err
	}
	return report, nil
}

// ── 内部辅助方法 ──

func (s *recurringSlotService) loadSlot(ctx context.Context, id string) (*model.RecurringSlot, error) {
	slot, err := s.repo.RecurringSlot.GetByID(ctx, id)
	if err != nil {
		if err = notFound(err, ErrSlotNotFound); err != ErrSlotNotFound {
			s.logger.Error("查询课时失败", zap.String("slot_id", id), zap.Error(err))
		}
		return nil, err
	}
	return slot, nil
}

// slotRefs 课时引用的外部实体
type slotRefs struct {
	calendar *model.AcademicCalendar
	room     *model.Room
	offering *model.SubjectOffering
}

// checkReferences 校验日历、教室、教师、开课存在，并检查展开数量上限
func (s *recurringSlotService) checkReferences(ctx context.Context, repo *repository.Repository, slot *model.RecurringSlot) (*slotRefs, error) {
	refs := &slotRefs{}
	var err error

	if refs.calendar, err = repo.Calendar.GetByID(ctx, slot.CalendarID); err != nil {
		return nil, notFound(err, ErrCalendarNotFound)
	}
	if !refs.calendar.Contains(slot.StartDate) || !refs.calendar.Contains(slot.EndDate) {
		return nil, ErrSlotOutsideCalendar
	}
	if refs.room, err = repo.Room.GetByID(ctx, slot.RoomID); err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	if refs.offering, err = repo.SubjectOffering.GetByID(ctx, slot.SubjectOfferingID); err != nil {
		return nil, notFound(err, ErrSubjectOfferingNotFound)
	}

	ids := slot.InstructorIDs()
	instructors, err := repo.Instructor.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]*model.Instructor, len(instructors))
	for i := range instructors {
		found[instructors[i].InstructorID] = &instructors[i]
	}
	for _, id := range ids {
		in, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInstructorNotFound, id)
		}
		if !in.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrInstructorInactive, in.DisplayName)
		}
	}

	max := s.cfg.MaxOccurrencesPerSlot
	if n := recurrence.Count(slotPattern(slot), refs.calendar.WeekReference()); max > 0 && n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyOccurrences, n, max)
	}
	return refs, nil
}

// capacityWarning 教室容量不足时返回说明，虚拟教室与不限容量不检查
func capacityWarning(room *model.Room, offering *model.SubjectOffering) string {
	if room == nil || offering == nil || room.IsVirtual {
		return ""
	}
	if room.Capacity == nil || offering.MaxHeadcount == nil {
		return ""
	}
	if *room.Capacity >= *offering.MaxHeadcount {
		return ""
	}
	return fmt.Sprintf("教室 %s 容量 %d，开课 %s 人数上限 %d", room.Code, *room.Capacity, offering.Name, *offering.MaxHeadcount)
}

// slotFromDraft 解析草稿并校验全部不变量，字段错误汇总为 ValidationError
func slotFromDraft(d *dto.SlotDraft) (*model.RecurringSlot, error) {
	var vs []recurrence.FieldViolation
	start, err := recurrence.ParseClock(d.StartTime)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "start_time", Message: "时间格式应为 HH:MM"})
	}
	end, err := recurrence.ParseClock(d.EndTime)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "end_time", Message: "时间格式应为 HH:MM"})
	}
	startDate, err := recurrence.ParseDate(d.StartDate)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "start_date", Message: "日期格式应为 YYYY-MM-DD"})
	}
	endDate, err := recurrence.ParseDate(d.EndDate)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "end_date", Message: "日期格式应为 YYYY-MM-DD"})
	}
	parity, err := recurrence.ParseWeekParity(d.WeekParity)
	if err != nil {
		vs = append(vs, recurrence.FieldViolation{Field: "week_parity", Message: "只能为 A、B 或空"})
	}
	if len(vs) > 0 {
		return nil, &recurrence.ValidationError{Violations: vs}
	}

	spec := recurrence.SlotSpec{
		DayOfWeek:     d.DayOfWeek,
		Start:         start,
		End:           end,
		StartDate:     startDate,
		EndDate:       endDate,
		Parity:        parity,
		InstructorIDs: uniqueStrings(d.InstructorIDs),
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	slot := &model.RecurringSlot{
		CalendarID:        d.CalendarID,
		RoomID:            d.RoomID,
		SubjectOfferingID: d.SubjectOfferingID,
		DayOfWeek:         spec.DayOfWeek,
		StartTime:         spec.Start.String(),
		EndTime:           spec.End.String(),
		StartDate:         spec.StartDate,
		EndDate:           spec.EndDate,
		WeekParity:        string(spec.Parity),
		IsActive:          true,
	}
	slot.SetInstructorIDs(spec.InstructorIDs)
	return slot, nil
}

func draftFromSlot(slot *model.RecurringSlot) dto.SlotDraft {
	return dto.SlotDraft{
		CalendarID:        slot.CalendarID,
		RoomID:            slot.RoomID,
		InstructorIDs:     slot.InstructorIDs(),
		SubjectOfferingID: slot.SubjectOfferingID,
		DayOfWeek:         slot.DayOfWeek,
		StartTime:         clockString(slot.StartTime),
		EndTime:           clockString(slot.EndTime),
		StartDate:         recurrence.FormatDate(slot.StartDate),
		EndDate:           recurrence.FormatDate(slot.EndDate),
		WeekParity:        slot.WeekParity,
	}
}

func applySlotUpdate(d *dto.SlotDraft, req *dto.UpdateRecurringSlotRequest) {
	if req.RoomID != nil {
		d.RoomID = *req.RoomID
	}
	if len(req.InstructorIDs) > 0 {
		d.InstructorIDs = req.InstructorIDs
	}
	if req.SubjectOfferingID != nil {
		d.SubjectOfferingID = *req.SubjectOfferingID
	}
	if req.DayOfWeek != nil {
		d.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		d.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		d.EndTime = *req.EndTime
	}
	if req.StartDate != nil {
		d.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		d.EndDate = *req.EndDate
	}
	if req.WeekParity != nil {
		d.WeekParity = *req.WeekParity
	}
}

func isSlotClientError(err error) bool {
	for _, target := range []error{
		recurrence.ErrInvalidInput,
		ErrCalendarNotFound, ErrRoomNotFound, ErrInstructorNotFound, ErrInstructorInactive,
		ErrSubjectOfferingNotFound, ErrRoomCapacityExceeded, ErrSlotOutsideCalendar,
		ErrTooManyOccurrences, pkgerrors.ErrOptimisticLock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
