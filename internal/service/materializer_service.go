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
)

// ── 课次生成模块业务错误 ──

var (
	ErrSlotInactive        = errors.New("课时已停用，不能生成课次")
	ErrTooManyOccurrences  = errors.New("课时展开的课次数量超过上限")
	ErrSlotCalendarMissing = errors.New("课时所属学年日历不存在")
)

// MaterializerService 由周循环课时生成具体课次
//
// 每个展开日期按以下顺序归类：
//  1. 停课日：跳过，force 也不会生成
//  2. 已有同源课次（按 origin_date）：跳过，不覆盖
//  3. 与同日其他课次冲突：跳过并报告，除非调用方允许冲突
//  4. 其余：新建 planned 课次
//
// 同一课时的生成与删除由 SlotLocker 串行化，冲突复查与写入在同一事务内完成。
type MaterializerService interface {
	Preview(ctx context.Context, slotID string) (*dto.PreviewResponse, error)
	Materialize(ctx context.Context, slotID string, req *dto.MaterializeRequest, callerID string) (*dto.MaterializeResult, error)
	EstimateCount(ctx context.Context, slotID string) (int, error)
	EstimateDraft(ctx context.Context, draft *dto.SlotDraft) (int, error)
}

type materializerService struct {
	repo      *repository.Repository
	locker    SlotLocker
	publisher broker.Publisher
	cfg       config.PlanningConfig
	logger    *zap.Logger
}

// NewMaterializerService 创建 MaterializerService 实例
func NewMaterializerService(
	cfg config.PlanningConfig,
	repo *repository.Repository,
	locker SlotLocker,
	publisher broker.Publisher,
	logger *zap.Logger,
) MaterializerService {
	return &materializerService{repo: repo, locker: locker, publisher: publisher, cfg: cfg, logger: logger}
}

// plannedDate 单个展开日期的归类结果
type plannedDate struct {
	date      time.Time
	outcome   string
	reason    string
	conflicts *dto.OccurrenceConflictReport
	occ       *model.Occurrence // outcome=create 时待写入的课次
}

// ────────────────────── Preview ──────────────────────

func (s *materializerService) Preview(ctx context.Context, slotID string) (*dto.PreviewResponse, error) {
	slot, cal, err := s.loadSlot(ctx, s.repo, slotID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, s.repo, slot, cal, false, "")
	if err != nil {
		s.logger.Error("生成预览失败", zap.String("slot_id", slotID), zap.Error(err))
		return nil, err
	}

	resp := &dto.PreviewResponse{SlotID: slotID, Total: len(plan), Dates: make([]dto.PreviewDate, 0, len(plan))}
	for _, p := range plan {
		switch p.outcome {
		case dto.OutcomeCreate:
			resp.ToCreate++
		case dto.OutcomeClosed:
			resp.Closed++
		case dto.OutcomeExisting:
			resp.Existing++
		case dto.OutcomeConflict:
			resp.Conflict++
		}
		resp.Dates = append(resp.Dates, p.toDTO())
	}
	return resp, nil
}

// ────────────────────── Materialize ──────────────────────

func (s *materializerService) Materialize(ctx context.Context, slotID string, req *dto.MaterializeRequest, callerID string) (*dto.MaterializeResult, error) {
	if req == nil {
		req = &dto.MaterializeRequest{}
	}

	unlock, err := s.locker.Lock(ctx, slotID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &dto.MaterializeResult{Conflicts: []dto.PreviewDate{}}
	var calendarID string

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		slot, cal, err := s.loadSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if !slot.IsActive {
			return ErrSlotInactive
		}
		calendarID = cal.CalendarID

		if n := recurrence.Count(slotPattern(slot), cal.WeekReference()); s.cfg.MaxOccurrencesPerSlot > 0 && n > s.cfg.MaxOccurrencesPerSlot {
			return fmt.Errorf("%w: %d > %d", ErrTooManyOccurrences, n, s.cfg.MaxOccurrencesPerSlot)
		}

		if req.Force {
			deleted, err := tx.Occurrence.DeleteUnmodifiedBySlot(ctx, slotID)
			if err != nil {
				return err
			}
			result.Deleted = int(deleted)
		}

		// 分类在删除之后进行，冲突复查与写入同处一个事务
		if err := lockResources(ctx, tx, slot.RoomID, slot.InstructorIDs()); err != nil {
			return err
		}
		plan, err := s.plan(ctx, tx, slot, cal, req.AllowConflicts, callerID)
		if err != nil {
			return err
		}

		var toCreate []model.Occurrence
		for _, p := range plan {
			switch p.outcome {
			case dto.OutcomeCreate:
				toCreate = append(toCreate, *p.occ)
			case dto.OutcomeConflict:
				result.Skipped++
				result.Conflicts = append(result.Conflicts, p.toDTO())
			default:
				result.Skipped++
			}
		}
		if len(toCreate) == 0 {
			return nil
		}

		inserted, err := tx.Occurrence.CreateBatch(ctx, toCreate)
		if err != nil {
			return err
		}
		// 唯一约束挡掉的并发写入计入跳过
		result.Created = int(inserted)
		result.Skipped += len(toCreate) - int(inserted)
		return nil
	})
	if err != nil {
		if !isPlanningClientError(err) {
			s.logger.Error("生成课次失败", zap.String("slot_id", slotID), zap.Bool("force", req.Force), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("生成课次完成",
		zap.String("slot_id", slotID),
		zap.Bool("force", req.Force),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("deleted", result.Deleted),
	)

	s.publish(ctx, RoutingKeyOccurrencesMaterialized, MaterializedEvent{
		SlotID:     slotID,
		CalendarID: calendarID,
		Created:    result.Created,
		Skipped:    result.Skipped,
		Deleted:    result.Deleted,
		Force:      req.Force,
		ActorID:    callerID,
		OccurredAt: time.Now().UTC().Format(timestampLayout),
	})
	return result, nil
}

// ────────────────────── EstimateCount ──────────────────────

func (s *materializerService) EstimateCount(ctx context.Context, slotID string) (int, error) {
	slot, cal, err := s.loadSlot(ctx, s.repo, slotID)
	if err != nil {
		return 0, err
	}
	return recurrence.Count(slotPattern(slot), cal.WeekReference()), nil
}

func (s *materializerService) EstimateDraft(ctx context.Context, draft *dto.SlotDraft) (int, error) {
	slot, err := slotFromDraft(draft)
	if err != nil {
		return 0, err
	}
	cal, err := s.repo.Calendar.GetByID(ctx, slot.CalendarID)
	if err != nil {
		return 0, notFound(err, ErrCalendarNotFound)
	}
	return recurrence.Count(slotPattern(slot), cal.WeekReference()), nil
}

// ── 内部辅助方法 ──

func (s *materializerService) loadSlot(ctx context.Context, repo *repository.Repository, slotID string) (*model.RecurringSlot, *model.AcademicCalendar, error) {
	slot, err := repo.RecurringSlot.GetByID(ctx, slotID)
	if err != nil {
		return nil, nil, notFound(err, ErrSlotNotFound)
	}
	cal, err := repo.Calendar.GetByID(ctx, slot.CalendarID)
	if err != nil {
		return nil, nil, notFound(err, ErrSlotCalendarMissing)
	}
	return slot, cal, nil
}

// plan 展开课时并逐日归类，升序输出
func (s *materializerService) plan(
	ctx context.Context,
	repo *repository.Repository,
	slot *model.RecurringSlot,
	cal *model.AcademicCalendar,
	allowConflicts bool,
	callerID string,
) ([]plannedDate, error) {
	spec, err := slot.Spec()
	if err != nil {
		return nil, err
	}
	dates := recurrence.Expand(spec.Pattern(), cal.WeekReference())
	if len(dates) == 0 {
		return nil, nil
	}

	closed, err := closedDatesInRange(ctx, repo, slot.CalendarID, spec.StartDate, spec.EndDate)
	if err != nil {
		return nil, err
	}

	existing, err := repo.Occurrence.ListBySlot(ctx, slot.SlotID)
	if err != nil {
		return nil, err
	}
	existingDates := make(map[string]bool, len(existing))
	for _, o := range existing {
		if o.OriginDate != nil {
			existingDates[recurrence.FormatDate(*o.OriginDate)] = true
		}
	}

	room, err := repo.Room.GetByID(ctx, slot.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	checker := &conflictService{repo: repo, logger: s.logger}

	plan := make([]plannedDate, 0, len(dates))
	for _, d := range dates {
		if day, ok := closed.Get(d); ok {
			plan = append(plan, plannedDate{date: d, outcome: dto.OutcomeClosed, reason: closedReasonText(day)})
			continue
		}
		if existingDates[recurrence.FormatDate(d)] {
			plan = append(plan, plannedDate{date: d, outcome: dto.OutcomeExisting})
			continue
		}

		occ := newGeneratedOccurrence(slot, spec, d, callerID)
		if !allowConflicts {
			report, err := checker.checkOccurrence(ctx, occ, room)
			if err != nil {
				return nil, err
			}
			if report.HasConflicts() {
				plan = append(plan, plannedDate{date: d, outcome: dto.OutcomeConflict, reason: "与同日课次冲突", conflicts: report})
				continue
			}
		}
		plan = append(plan, plannedDate{date: d, outcome: dto.OutcomeCreate, occ: occ})
	}
	return plan, nil
}

func (s *materializerService) publish(ctx context.Context, routingKey string, event interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		s.logger.Warn("发布事件失败", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// newGeneratedOccurrence 按课时快照生成课次
func newGeneratedOccurrence(slot *model.RecurringSlot, spec recurrence.SlotSpec, date time.Time, callerID string) *model.Occurrence {
	slotID := slot.SlotID
	origin := date
	occ := &model.Occurrence{
		RecurringSlotID:   &slotID,
		OriginDate:        &origin,
		RoomID:            slot.RoomID,
		InstructorIDs:     append([]string(nil), spec.InstructorIDs...),
		SubjectOfferingID: slot.SubjectOfferingID,
		Date:              date,
		StartTime:         spec.Start.String(),
		EndTime:           spec.End.String(),
		Status:            string(recurrence.StatusPlanned),
		Version:           1,
	}
	if callerID != "" {
		occ.CreatedBy = &callerID
		occ.UpdatedBy = &callerID
	}
	return occ
}

func (p plannedDate) toDTO() dto.PreviewDate {
	return dto.PreviewDate{
		Date:      recurrence.FormatDate(p.date),
		Outcome:   p.outcome,
		Reason:    p.reason,
		Conflicts: p.conflicts,
	}
}

func closedReasonText(day model.ClosedDay) string {
	if day.Label != "" {
		return day.Reason + ": " + day.Label
	}
	return day.Reason
}

// slotPattern 展开只依赖日期与单双周，不解析时间字段
func slotPattern(slot *model.RecurringSlot) recurrence.Pattern {
	return recurrence.Pattern{
		DayOfWeek: slot.DayOfWeek,
		StartDate: recurrence.Date(slot.StartDate),
		EndDate:   recurrence.Date(slot.EndDate),
		Parity:    recurrence.WeekParity(slot.WeekParity),
	}
}

// isPlanningClientError 调用方可处理的业务错误，不记 Error 日志
func isPlanningClientError(err error) bool {
	for _, target := range []error{
		ErrSlotNotFound, ErrSlotInactive, ErrSlotCalendarMissing,
		ErrTooManyOccurrences, ErrRoomNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
