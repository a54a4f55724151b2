package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
)

// ConflictService 冲突检测接口
//
// 课时级：同一教室或同一教师，星期相同、时段半开相交、日期范围闭区间相交、单双周兼容。
// 跨日历比较时单双周按各自日历的 A 周基准展开后比较。
// 课次级：同一日期，时段半开相交，仅统计占用资源的状态（取消的课次不占用）。
// 虚拟教室不参与教室冲突检测。
type ConflictService interface {
	// FindRoomConflicts w.Reference 应为被检课时所属日历的基准
	FindRoomConflicts(ctx context.Context, roomID string, w recurrence.Window, excludeSlotID string) ([]model.RecurringSlot, error)
	FindInstructorConflicts(ctx context.Context, instructorID string, w recurrence.Window, excludeSlotID string) ([]model.RecurringSlot, error)
	FindRoomConflictForOccurrence(ctx context.Context, roomID string, date time.Time, start, end recurrence.Clock, excludeID string) (*model.Occurrence, error)
	FindInstructorConflictForOccurrence(ctx context.Context, instructorID string, date time.Time, start, end recurrence.Clock, excludeID string) (*model.Occurrence, error)

	// ValidateSlot 汇总课时与其他有效课时的全部冲突
	ValidateSlot(ctx context.Context, slot *model.RecurringSlot) (*dto.ConflictReport, error)
	// CheckOccurrence 汇总课次与同日其他课次的冲突
	CheckOccurrence(ctx context.Context, occ *model.Occurrence) (*dto.OccurrenceConflictReport, error)
}

type conflictService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewConflictService 创建 ConflictService 实例
func NewConflictService(repo *repository.Repository, logger *zap.Logger) ConflictService {
	return &conflictService{repo: repo, logger: logger}
}

// ────────────────────── 课时级 ──────────────────────

func (s *conflictService) FindRoomConflicts(ctx context.Context, roomID string, w recurrence.Window, excludeSlotID string) ([]model.RecurringSlot, error) {
	return s.findRoomConflicts(ctx, roomID, w, excludeSlotID, newCalendarRefs(s.repo))
}

func (s *conflictService) FindInstructorConflicts(ctx context.Context, instructorID string, w recurrence.Window, excludeSlotID string) ([]model.RecurringSlot, error) {
	return s.findInstructorConflicts(ctx, instructorID, w, excludeSlotID, newCalendarRefs(s.repo))
}

func (s *conflictService) findRoomConflicts(ctx context.Context, roomID string, w recurrence.Window, excludeSlotID string, refs *calendarRefs) ([]model.RecurringSlot, error) {
	candidates, err := s.repo.RecurringSlot.FindActiveByRoom(ctx, roomID, slotWindow(w, excludeSlotID))
	if err != nil {
		return nil, err
	}
	return collidingSlots(ctx, candidates, w, refs)
}

func (s *conflictService) findInstructorConflicts(ctx context.Context, instructorID string, w recurrence.Window, excludeSlotID string, refs *calendarRefs) ([]model.RecurringSlot, error) {
	candidates, err := s.repo.RecurringSlot.FindActiveByInstructor(ctx, instructorID, slotWindow(w, excludeSlotID))
	if err != nil {
		return nil, err
	}
	return collidingSlots(ctx, candidates, w, refs)
}

func (s *conflictService) ValidateSlot(ctx context.Context, slot *model.RecurringSlot) (*dto.ConflictReport, error) {
	spec, err := slot.Spec()
	if err != nil {
		return nil, err
	}
	w := spec.Window()

	refs := newCalendarRefs(s.repo)
	if w.Reference, err = refs.get(ctx, slot.CalendarID); err != nil {
		return nil, notFound(err, ErrCalendarNotFound)
	}

	report := &dto.ConflictReport{
		RoomConflicts:       []dto.SlotConflict{},
		InstructorConflicts: []dto.SlotConflict{},
	}

	room, err := s.repo.Room.GetByID(ctx, slot.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	if room.SkipsConflictCheck() {
		report.RoomCheckSkipped = true
	} else {
		others, err := s.findRoomConflicts(ctx, slot.RoomID, w, slot.SlotID, refs)
		if err != nil {
			s.logger.Error("教室冲突检测失败", zap.String("room_id", slot.RoomID), zap.Error(err))
			return nil, err
		}
		for i := range others {
			report.RoomConflicts = append(report.RoomConflicts, toSlotConflict(&others[i], ""))
		}
	}

	for _, instructorID := range uniqueStrings(spec.InstructorIDs) {
		others, err := s.findInstructorConflicts(ctx, instructorID, w, slot.SlotID, refs)
		if err != nil {
			s.logger.Error("教师冲突检测失败", zap.String("instructor_id", instructorID), zap.Error(err))
			return nil, err
		}
		for i := range others {
			report.InstructorConflicts = append(report.InstructorConflicts, toSlotConflict(&others[i], instructorID))
		}
	}

	return report, nil
}

// ────────────────────── 课次级 ──────────────────────

func (s *conflictService) FindRoomConflictForOccurrence(ctx context.Context, roomID string, date time.Time, start, end recurrence.Clock, excludeID string) (*model.Occurrence, error) {
	occs, err := s.repo.Occurrence.FindByRoomOnDate(ctx, roomID, recurrence.Date(date), excludeID)
	if err != nil {
		return nil, err
	}
	found, err := firstOccupying(occs, start, end)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (s *conflictService) FindInstructorConflictForOccurrence(ctx context.Context, instructorID string, date time.Time, start, end recurrence.Clock, excludeID string) (*model.Occurrence, error) {
	occs, err := s.repo.Occurrence.FindByInstructorOnDate(ctx, instructorID, recurrence.Date(date), excludeID)
	if err != nil {
		return nil, err
	}
	found, err := firstOccupying(occs, start, end)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (s *conflictService) CheckOccurrence(ctx context.Context, occ *model.Occurrence) (*dto.OccurrenceConflictReport, error) {
	room, err := s.repo.Room.GetByID(ctx, occ.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	return s.checkOccurrence(ctx, occ, room)
}

// checkOccurrence 教室已加载时复用，避免逐日重复查询
func (s *conflictService) checkOccurrence(ctx context.Context, occ *model.Occurrence, room *model.Room) (*dto.OccurrenceConflictReport, error) {
	report := &dto.OccurrenceConflictReport{InstructorConflicts: []dto.OccurrenceConflict{}}
	if !recurrence.Status(occ.Status).Occupies() {
		return report, nil
	}
	start, end, err := occ.Window()
	if err != nil {
		return nil, err
	}

	if !room.SkipsConflictCheck() {
		other, err := s.FindRoomConflictForOccurrence(ctx, occ.RoomID, occ.Date, start, end, occ.OccurrenceID)
		if err != nil {
			return nil, err
		}
		if other != nil {
			c := toOccurrenceConflict(other, "")
			report.RoomConflict = &c
		}
	}

	for _, instructorID := range uniqueStrings(occ.InstructorIDs) {
		other, err := s.FindInstructorConflictForOccurrence(ctx, instructorID, occ.Date, start, end, occ.OccurrenceID)
		if err != nil {
			return nil, err
		}
		if other != nil {
			report.InstructorConflicts = append(report.InstructorConflicts, toOccurrenceConflict(other, instructorID))
		}
	}

	return report, nil
}

// ── 内部辅助方法 ──

// lockResources 在事务内锁定教室与教师行，顺序固定为教室在前、教师按 ID 升序。
// 占用同一资源的写入（生成课次、课时与课次的增改）因此在复查冲突前串行化，
// 后进入的事务在前者提交后才读取候选。
func lockResources(ctx context.Context, tx *repository.Repository, roomID string, instructorIDs []string) error {
	if err := tx.Room.LockForUpdate(ctx, roomID); err != nil {
		return notFound(err, ErrRoomNotFound)
	}
	ids := uniqueStrings(instructorIDs)
	sort.Strings(ids)
	return tx.Instructor.LockForUpdate(ctx, ids)
}

func slotWindow(w recurrence.Window, excludeSlotID string) repository.SlotWindow {
	return repository.SlotWindow{
		DayOfWeek:     w.DayOfWeek,
		StartTime:     w.Start.String(),
		EndTime:       w.End.String(),
		RangeStart:    recurrence.Date(w.RangeStart),
		RangeEnd:      recurrence.Date(w.RangeEnd),
		ExcludeSlotID: excludeSlotID,
	}
}

// collidingSlots 数据库粗筛后按单双周等完整规则精确过滤
func collidingSlots(ctx context.Context, candidates []model.RecurringSlot, w recurrence.Window, refs *calendarRefs) ([]model.RecurringSlot, error) {
	out := make([]model.RecurringSlot, 0, len(candidates))
	for _, c := range candidates {
		spec, err := c.Spec()
		if err != nil {
			return nil, err
		}
		cw := spec.Window()
		if cw.Parity.IsSet() {
			if cw.Reference, err = refs.candidate(ctx, c.CalendarID); err != nil {
				return nil, err
			}
		}
		if w.Collides(cw) {
			out = append(out, c)
		}
	}
	return out, nil
}

// calendarRefs 一次检测内按日历缓存 A/B 周基准
type calendarRefs struct {
	repo  *repository.Repository
	cache map[string]recurrence.WeekReference
}

func newCalendarRefs(repo *repository.Repository) *calendarRefs {
	return &calendarRefs{repo: repo, cache: make(map[string]recurrence.WeekReference)}
}

func (r *calendarRefs) get(ctx context.Context, calendarID string) (recurrence.WeekReference, error) {
	if ref, ok := r.cache[calendarID]; ok {
		return ref, nil
	}
	cal, err := r.repo.Calendar.GetByID(ctx, calendarID)
	if err != nil {
		return recurrence.WeekReference{}, err
	}
	ref := cal.WeekReference()
	r.cache[calendarID] = ref
	return ref, nil
}

// candidate 候选课时所属日历已被删除时退回 ISO 周基准
func (r *calendarRefs) candidate(ctx context.Context, calendarID string) (recurrence.WeekReference, error) {
	ref, err := r.get(ctx, calendarID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ref = recurrence.NewWeekReference(nil)
		r.cache[calendarID] = ref
		return ref, nil
	}
	return ref, err
}

func firstOccupying(occs []model.Occurrence, start, end recurrence.Clock) ([]model.Occurrence, error) {
	for i := range occs {
		o := &occs[i]
		if !recurrence.Status(o.Status).Occupies() {
			continue
		}
		s, e, err := o.Window()
		if err != nil {
			return nil, err
		}
		if recurrence.TimesOverlap(start, end, s, e) {
			return occs[i : i+1], nil
		}
	}
	return nil, nil
}
