package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cfa-planning/config"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
	pkgerrors "cfa-planning/pkg/errors"
)

// errDuplicateKey 模拟唯一约束冲突
var errDuplicateKey = errors.New("duplicate key value violates unique constraint")

// ── Mock CalendarRepository ──

type mockCalendarRepo struct {
	calendars map[string]*model.AcademicCalendar
}

func newMockCalendarRepo() *mockCalendarRepo {
	return &mockCalendarRepo{calendars: make(map[string]*model.AcademicCalendar)}
}

func (m *mockCalendarRepo) Create(_ context.Context, cal *model.AcademicCalendar) error {
	if cal.CalendarID == "" {
		cal.CalendarID = "cal-" + cal.Name
	}
	if cal.Version == 0 {
		cal.Version = 1
	}
	c := *cal
	m.calendars[cal.CalendarID] = &c
	return nil
}

func (m *mockCalendarRepo) GetByID(_ context.Context, id string) (*model.AcademicCalendar, error) {
	if c, ok := m.calendars[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCalendarRepo) GetCurrent(_ context.Context) (*model.AcademicCalendar, error) {
	for _, c := range m.calendars {
		if c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCalendarRepo) List(_ context.Context) ([]model.AcademicCalendar, error) {
	var result []model.AcademicCalendar
	for _, c := range m.calendars {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.After(result[j].StartDate) })
	return result, nil
}

func (m *mockCalendarRepo) Update(_ context.Context, cal *model.AcademicCalendar) error {
	stored, ok := m.calendars[cal.CalendarID]
	if !ok || stored.Version != cal.Version {
		return pkgerrors.ErrOptimisticLock
	}
	cal.Version++
	c := *cal
	m.calendars[cal.CalendarID] = &c
	return nil
}

func (m *mockCalendarRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.calendars, id)
	return nil
}

func (m *mockCalendarRepo) ClearActive(_ context.Context) error {
	for _, c := range m.calendars {
		c.IsActive = false
	}
	return nil
}

// ── Mock ClosedDayRepository ──

type mockClosedDayRepo struct {
	days []model.ClosedDay
	seq  int
}

func newMockClosedDayRepo() *mockClosedDayRepo {
	return &mockClosedDayRepo{}
}

func (m *mockClosedDayRepo) ListInRange(_ context.Context, calendarID string, start, end time.Time) ([]model.ClosedDay, error) {
	var result []model.ClosedDay
	for _, d := range m.days {
		if d.CalendarID == calendarID && !d.Date.Before(start) && !d.Date.After(end) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *mockClosedDayRepo) GetByID(_ context.Context, id string) (*model.ClosedDay, error) {
	for i := range m.days {
		if m.days[i].ClosedDayID == id {
			d := m.days[i]
			return &d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClosedDayRepo) CreateBatch(_ context.Context, days []model.ClosedDay) (int64, error) {
	var inserted int64
	for i := range days {
		if m.exists(days[i].CalendarID, days[i].Date) {
			continue
		}
		m.seq++
		// 与 gorm 一致，主键回写到传入的切片
		days[i].ClosedDayID = fmt.Sprintf("closed-%d", m.seq)
		d := days[i]
		d.Date = recurrence.Date(d.Date)
		m.days = append(m.days, d)
		inserted++
	}
	return inserted, nil
}

func (m *mockClosedDayRepo) Delete(_ context.Context, id string) error {
	for i := range m.days {
		if m.days[i].ClosedDayID == id {
			m.days = append(m.days[:i], m.days[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockClosedDayRepo) exists(calendarID string, date time.Time) bool {
	for _, d := range m.days {
		if d.CalendarID == calendarID && d.Date.Equal(recurrence.Date(date)) {
			return true
		}
	}
	return false
}

// ── Mock RoomRepository / InstructorRepository / SubjectOfferingRepository ──

// resourceLockLog 记录行锁的获取顺序，教室与教师共用
type resourceLockLog struct {
	keys []string
}

func (l *resourceLockLog) add(key string) {
	if l != nil {
		l.keys = append(l.keys, key)
	}
}

type mockRoomRepo struct {
	rooms map[string]*model.Room
	locks *resourceLockLog
}

func (m *mockRoomRepo) LockForUpdate(_ context.Context, id string) error {
	if _, ok := m.rooms[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.locks.add("room:" + id)
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	if r, ok := m.rooms[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type mockInstructorRepo struct {
	instructors map[string]*model.Instructor
	locks       *resourceLockLog
}

func (m *mockInstructorRepo) LockForUpdate(_ context.Context, ids []string) error {
	for _, id := range ids {
		m.locks.add("instructor:" + id)
	}
	return nil
}

func (m *mockInstructorRepo) GetByID(_ context.Context, id string) (*model.Instructor, error) {
	if in, ok := m.instructors[id]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockInstructorRepo) GetByIDs(_ context.Context, ids []string) ([]model.Instructor, error) {
	var result []model.Instructor
	for _, id := range ids {
		if in, ok := m.instructors[id]; ok {
			result = append(result, *in)
		}
	}
	return result, nil
}

type mockSubjectOfferingRepo struct {
	offerings map[string]*model.SubjectOffering
}

func (m *mockSubjectOfferingRepo) GetByID(_ context.Context, id string) (*model.SubjectOffering, error) {
	if o, ok := m.offerings[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock RecurringSlotRepository ──

type mockRecurringSlotRepo struct {
	slots map[string]*model.RecurringSlot
	seq   int
}

func newMockRecurringSlotRepo() *mockRecurringSlotRepo {
	return &mockRecurringSlotRepo{slots: make(map[string]*model.RecurringSlot)}
}

func (m *mockRecurringSlotRepo) Create(_ context.Context, slot *model.RecurringSlot) error {
	if slot.SlotID == "" {
		m.seq++
		slot.SlotID = fmt.Sprintf("slot-%d", m.seq)
	}
	slot.Version = 1
	m.slots[slot.SlotID] = copySlot(slot)
	return nil
}

func (m *mockRecurringSlotRepo) GetByID(_ context.Context, id string) (*model.RecurringSlot, error) {
	if s, ok := m.slots[id]; ok {
		return copySlot(s), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecurringSlotRepo) List(_ context.Context, filter repository.SlotFilter) ([]model.RecurringSlot, error) {
	var result []model.RecurringSlot
	for _, s := range m.slots {
		if filter.CalendarID != "" && s.CalendarID != filter.CalendarID {
			continue
		}
		if filter.RoomID != "" && s.RoomID != filter.RoomID {
			continue
		}
		if filter.InstructorID != "" && !slotHasInstructor(s, filter.InstructorID) {
			continue
		}
		if filter.DayOfWeek != nil && s.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		result = append(result, *copySlot(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotID < result[j].SlotID })
	return result, nil
}

func (m *mockRecurringSlotRepo) Update(_ context.Context, slot *model.RecurringSlot) error {
	stored, ok := m.slots[slot.SlotID]
	if !ok || stored.Version != slot.Version {
		return pkgerrors.ErrOptimisticLock
	}
	slot.Version++
	m.slots[slot.SlotID] = copySlot(slot)
	return nil
}

func (m *mockRecurringSlotRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.slots, id)
	return nil
}

func (m *mockRecurringSlotRepo) FindActiveByRoom(_ context.Context, roomID string, w repository.SlotWindow) ([]model.RecurringSlot, error) {
	var result []model.RecurringSlot
	for _, s := range m.slots {
		if s.RoomID == roomID && inWindow(s, w) {
			result = append(result, *copySlot(s))
		}
	}
	return result, nil
}

func (m *mockRecurringSlotRepo) FindActiveByInstructor(_ context.Context, instructorID string, w repository.SlotWindow) ([]model.RecurringSlot, error) {
	var result []model.RecurringSlot
	for _, s := range m.slots {
		if slotHasInstructor(s, instructorID) && inWindow(s, w) {
			result = append(result, *copySlot(s))
		}
	}
	return result, nil
}

func (m *mockRecurringSlotRepo) CountWithParity(_ context.Context, calendarID string) (int64, error) {
	var n int64
	for _, s := range m.slots {
		if s.CalendarID == calendarID && s.WeekParity != "" {
			n++
		}
	}
	return n, nil
}

// inWindow 与 SQL 粗筛条件一致，单双周不在此过滤
func inWindow(s *model.RecurringSlot, w repository.SlotWindow) bool {
	if !s.IsActive || s.DayOfWeek != w.DayOfWeek || s.SlotID == w.ExcludeSlotID {
		return false
	}
	if !(clockString(s.StartTime) < w.EndTime && w.StartTime < clockString(s.EndTime)) {
		return false
	}
	return recurrence.DateRangesOverlap(s.StartDate, s.EndDate, w.RangeStart, w.RangeEnd)
}

func slotHasInstructor(s *model.RecurringSlot, id string) bool {
	for _, in := range s.Instructors {
		if in.InstructorID == id {
			return true
		}
	}
	return false
}

func copySlot(s *model.RecurringSlot) *model.RecurringSlot {
	cp := *s
	cp.Instructors = append([]model.Instructor(nil), s.Instructors...)
	return &cp
}

// ── Mock OccurrenceRepository ──

type mockOccurrenceRepo struct {
	occs []*model.Occurrence
	seq  int
	// beforeBatch 在 CreateBatch 写入前调用，用于模拟并发写入
	beforeBatch func(m *mockOccurrenceRepo)
}

func newMockOccurrenceRepo() *mockOccurrenceRepo {
	return &mockOccurrenceRepo{}
}

func (m *mockOccurrenceRepo) insert(occ *model.Occurrence) bool {
	if occ.RecurringSlotID != nil && occ.OriginDate != nil {
		for _, o := range m.occs {
			if o.RecurringSlotID != nil && o.OriginDate != nil &&
				*o.RecurringSlotID == *occ.RecurringSlotID && o.OriginDate.Equal(*occ.OriginDate) {
				return false
			}
		}
	}
	m.seq++
	if occ.OccurrenceID == "" {
		occ.OccurrenceID = fmt.Sprintf("occ-%d", m.seq)
	}
	if occ.Version == 0 {
		occ.Version = 1
	}
	m.occs = append(m.occs, copyOccurrence(occ))
	return true
}

func (m *mockOccurrenceRepo) Create(_ context.Context, occ *model.Occurrence) error {
	if !m.insert(occ) {
		return errDuplicateKey
	}
	return nil
}

func (m *mockOccurrenceRepo) CreateBatch(_ context.Context, occs []model.Occurrence) (int64, error) {
	if m.beforeBatch != nil {
		hook := m.beforeBatch
		m.beforeBatch = nil
		hook(m)
	}
	var inserted int64
	for i := range occs {
		occ := occs[i]
		if m.insert(&occ) {
			inserted++
		}
	}
	return inserted, nil
}

func (m *mockOccurrenceRepo) GetByID(_ context.Context, id string) (*model.Occurrence, error) {
	for _, o := range m.occs {
		if o.OccurrenceID == id {
			return copyOccurrence(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOccurrenceRepo) List(_ context.Context, filter repository.OccurrenceFilter) ([]model.Occurrence, int64, error) {
	var matched []model.Occurrence
	for _, o := range m.occs {
		if filter.SlotID != "" && (o.RecurringSlotID == nil || *o.RecurringSlotID != filter.SlotID) {
			continue
		}
		if filter.RoomID != "" && o.RoomID != filter.RoomID {
			continue
		}
		if filter.InstructorID != "" && !o.HasInstructor(filter.InstructorID) {
			continue
		}
		if filter.From != nil && o.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && o.Date.After(*filter.To) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, *copyOccurrence(o))
	}
	sortOccurrences(matched)

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []model.Occurrence{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *mockOccurrenceRepo) ListBySlot(_ context.Context, slotID string) ([]model.Occurrence, error) {
	var result []model.Occurrence
	for _, o := range m.occs {
		if o.RecurringSlotID != nil && *o.RecurringSlotID == slotID {
			result = append(result, *copyOccurrence(o))
		}
	}
	sortOccurrences(result)
	return result, nil
}

func (m *mockOccurrenceRepo) Update(_ context.Context, occ *model.Occurrence) error {
	for i, o := range m.occs {
		if o.OccurrenceID != occ.OccurrenceID {
			continue
		}
		if o.Version != occ.Version {
			return pkgerrors.ErrOptimisticLock
		}
		occ.Version++
		m.occs[i] = copyOccurrence(occ)
		return nil
	}
	return pkgerrors.ErrOptimisticLock
}

func (m *mockOccurrenceRepo) Delete(_ context.Context, id string) error {
	m.removeWhere(func(o *model.Occurrence) bool { return o.OccurrenceID == id })
	return nil
}

func (m *mockOccurrenceRepo) DeleteUnmodifiedBySlot(_ context.Context, slotID string) (int64, error) {
	n := m.removeWhere(func(o *model.Occurrence) bool {
		return o.RecurringSlotID != nil && *o.RecurringSlotID == slotID && !o.ManuallyModified
	})
	return n, nil
}

func (m *mockOccurrenceRepo) DetachModifiedBySlot(_ context.Context, slotID string) (int64, error) {
	var n int64
	for _, o := range m.occs {
		if o.RecurringSlotID != nil && *o.RecurringSlotID == slotID && o.ManuallyModified {
			o.RecurringSlotID = nil
			n++
		}
	}
	return n, nil
}

func (m *mockOccurrenceRepo) FindByRoomOnDate(_ context.Context, roomID string, date time.Time, excludeID string) ([]model.Occurrence, error) {
	var result []model.Occurrence
	for _, o := range m.occs {
		if o.RoomID == roomID && o.Date.Equal(date) && o.OccurrenceID != excludeID {
			result = append(result, *copyOccurrence(o))
		}
	}
	sortOccurrences(result)
	return result, nil
}

func (m *mockOccurrenceRepo) FindByInstructorOnDate(_ context.Context, instructorID string, date time.Time, excludeID string) ([]model.Occurrence, error) {
	var result []model.Occurrence
	for _, o := range m.occs {
		if o.HasInstructor(instructorID) && o.Date.Equal(date) && o.OccurrenceID != excludeID {
			result = append(result, *copyOccurrence(o))
		}
	}
	sortOccurrences(result)
	return result, nil
}

func (m *mockOccurrenceRepo) removeWhere(match func(o *model.Occurrence) bool) int64 {
	var n int64
	kept := m.occs[:0]
	for _, o := range m.occs {
		if match(o) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	m.occs = kept
	return n
}

// onDate 测试断言用：某课时在某日的课次
func (m *mockOccurrenceRepo) onDate(slotID string, date time.Time) []*model.Occurrence {
	var result []*model.Occurrence
	for _, o := range m.occs {
		if o.RecurringSlotID != nil && *o.RecurringSlotID == slotID && o.Date.Equal(date) {
			result = append(result, o)
		}
	}
	return result
}

func copyOccurrence(o *model.Occurrence) *model.Occurrence {
	cp := *o
	cp.InstructorIDs = append([]string(nil), o.InstructorIDs...)
	if o.RecurringSlotID != nil {
		id := *o.RecurringSlotID
		cp.RecurringSlotID = &id
	}
	if o.OriginDate != nil {
		d := *o.OriginDate
		cp.OriginDate = &d
	}
	return &cp
}

func sortOccurrences(occs []model.Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		if !occs[i].Date.Equal(occs[j].Date) {
			return occs[i].Date.Before(occs[j].Date)
		}
		return clockString(occs[i].StartTime) < clockString(occs[j].StartTime)
	})
}

// ════════════════════════════════════════════════════════════
// 测试夹具
// ════════════════════════════════════════════════════════════

const (
	testCalendarID  = "cal-2024"
	testRoomA101    = "room-a101"
	testRoomB202    = "room-b202"
	testRoomVisio   = "room-visio"
	testInstructor  = "ins-dupont"
	testInstructor2 = "ins-martin"
	testInactive    = "ins-retired"
	testOffering    = "off-bts-sio"
	testCaller      = "admin-001"
)

type planningFixture struct {
	repo        *repository.Repository
	calendars   *mockCalendarRepo
	closedDays  *mockClosedDayRepo
	rooms       *mockRoomRepo
	locks       *resourceLockLog
	slots       *mockRecurringSlotRepo
	occurrences *mockOccurrenceRepo
	cfg         *config.Config
	locker      SlotLocker
	logger      *zap.Logger
}

func mustDate(s string) time.Time {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(v int) *int { return &v }

// newPlanningFixture 2024-2025 学年，A 周基准为 2024-09-02 所在周
func newPlanningFixture() *planningFixture {
	ref := mustDate("2024-09-02")
	calendars := newMockCalendarRepo()
	calendars.calendars[testCalendarID] = &model.AcademicCalendar{
		CalendarID:     testCalendarID,
		Name:           "2024-2025",
		StartDate:      mustDate("2024-09-02"),
		EndDate:        mustDate("2025-07-04"),
		ReferenceWeekA: &ref,
		IsActive:       true,
		Status:         "active",
		VersionedModel: model.VersionedModel{Version: 1},
	}

	locks := &resourceLockLog{}
	rooms := &mockRoomRepo{locks: locks, rooms: map[string]*model.Room{
		testRoomA101:  {RoomID: testRoomA101, Code: "A101", Name: "Salle A101", Capacity: intPtr(20), IsActive: true},
		testRoomB202:  {RoomID: testRoomB202, Code: "B202", Name: "Salle B202", Capacity: intPtr(30), IsActive: true},
		testRoomVisio: {RoomID: testRoomVisio, Code: "VISIO", Name: "Visio", IsVirtual: true, IsActive: true},
	}}
	instructors := &mockInstructorRepo{locks: locks, instructors: map[string]*model.Instructor{
		testInstructor:  {InstructorID: testInstructor, DisplayName: "Claire Dupont", IsActive: true},
		testInstructor2: {InstructorID: testInstructor2, DisplayName: "Marc Martin", IsActive: true},
		testInactive:    {InstructorID: testInactive, DisplayName: "Ancien Formateur", IsActive: false},
	}}
	offerings := &mockSubjectOfferingRepo{offerings: map[string]*model.SubjectOffering{
		testOffering: {SubjectOfferingID: testOffering, Name: "Réseaux", Cohort: "BTS SIO 1", MaxHeadcount: intPtr(24)},
	}}

	f := &planningFixture{
		calendars:   calendars,
		closedDays:  newMockClosedDayRepo(),
		rooms:       rooms,
		locks:       locks,
		slots:       newMockRecurringSlotRepo(),
		occurrences: newMockOccurrenceRepo(),
		locker:      NewLocalSlotLocker(50 * time.Millisecond),
		logger:      zap.NewNop(),
		cfg: &config.Config{Planning: config.PlanningConfig{
			Timezone:              "Europe/Paris",
			LockTTL:               30 * time.Second,
			LockWait:              50 * time.Millisecond,
			MaxOccurrencesPerSlot: 400,
		}},
	}
	f.repo = &repository.Repository{
		Calendar:        calendars,
		ClosedDay:       f.closedDays,
		Room:            rooms,
		Instructor:      instructors,
		SubjectOffering: offerings,
		RecurringSlot:   f.slots,
		Occurrence:      f.occurrences,
	}
	return f
}

func (f *planningFixture) services(publisher *recordingPublisher) *Service {
	if publisher == nil {
		return NewService(f.cfg, f.repo, f.locker, nil, f.logger)
	}
	return NewService(f.cfg, f.repo, f.locker, publisher, f.logger)
}

// addSlot 直接写入一条有效课时
func (f *planningFixture) addSlot(id, roomID string, day int, start, end, from, to, parity string, instructorIDs ...string) *model.RecurringSlot {
	slot := &model.RecurringSlot{
		SlotID:            id,
		CalendarID:        testCalendarID,
		RoomID:            roomID,
		SubjectOfferingID: testOffering,
		DayOfWeek:         day,
		StartTime:         start,
		EndTime:           end,
		StartDate:         mustDate(from),
		EndDate:           mustDate(to),
		WeekParity:        parity,
		IsActive:          true,
	}
	slot.SetInstructorIDs(instructorIDs)
	_ = f.slots.Create(context.Background(), slot)
	return slot
}

// addOccurrence 直接写入一条课次
func (f *planningFixture) addOccurrence(occ *model.Occurrence) *model.Occurrence {
	if occ.Status == "" {
		occ.Status = string(recurrence.StatusPlanned)
	}
	f.occurrences.insert(occ)
	return occ
}

func (f *planningFixture) addClosedDay(d, reason, label string) {
	_, _ = f.closedDays.CreateBatch(context.Background(), []model.ClosedDay{{
		CalendarID: testCalendarID, Date: mustDate(d), Reason: reason, Label: label,
	}})
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	keys   []string
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event interface{}) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
