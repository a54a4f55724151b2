package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
)

func mondayDraft(roomID, start, end, parity string, instructorIDs ...string) *dto.SlotDraft {
	return &dto.SlotDraft{
		CalendarID:        testCalendarID,
		RoomID:            roomID,
		InstructorIDs:     instructorIDs,
		SubjectOfferingID: testOffering,
		DayOfWeek:         1,
		StartTime:         start,
		EndTime:           end,
		StartDate:         "2024-09-02",
		EndDate:           "2024-12-20",
		WeekParity:        parity,
	}
}

// ── 单双周兼容性 ──

func TestValidateSlot_ParityCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		draft    string
		want     int
	}{
		{"A 与 B 不冲突", "A", "B", 0},
		{"B 与 A 不冲突", "B", "A", 0},
		{"A 与 A 冲突", "A", "A", 1},
		{"B 与 B 冲突", "B", "B", 1},
		{"每周与 A 冲突", "", "A", 1},
		{"B 与每周冲突", "B", "", 1},
		{"每周与每周冲突", "", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlanningFixture()
			f.addSlot("slot-existing", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", tt.existing, testInstructor)
			svc := f.services(nil)

			report, err := svc.RecurringSlot.Validate(context.Background(),
				mondayDraft(testRoomA101, "08:00", "10:00", tt.draft, testInstructor2), "")
			if err != nil {
				t.Fatalf("Validate 应成功: %v", err)
			}
			if len(report.RoomConflicts) != tt.want {
				t.Errorf("期望 %d 个教室冲突，实际 %d", tt.want, len(report.RoomConflicts))
			}
		})
	}
}

func TestValidateSlot_TouchingEndpointsDoNotConflict(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-morning", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	report, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft(testRoomA101, "10:00", "12:00", "", testInstructor), "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if report.HasConflicts() {
		t.Errorf("首尾相接不应冲突: %+v", report)
	}
}

func TestValidateSlot_DisjointDateRanges(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-autumn", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	draft := mondayDraft(testRoomA101, "08:00", "10:00", "", testInstructor)
	draft.StartDate = "2025-01-06"
	draft.EndDate = "2025-03-28"

	report, err := svc.RecurringSlot.Validate(context.Background(), draft, "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if report.HasConflicts() {
		t.Errorf("日期范围不相交不应冲突: %+v", report)
	}
}

func TestValidateSlot_InstructorConflictAcrossRooms(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-b202", testRoomB202, 1, "09:00", "11:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	report, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft(testRoomA101, "08:00", "10:00", "", testInstructor, testInstructor2), "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if len(report.RoomConflicts) != 0 {
		t.Errorf("不同教室不应有教室冲突")
	}
	if len(report.InstructorConflicts) != 1 {
		t.Fatalf("期望 1 个教师冲突，实际 %d", len(report.InstructorConflicts))
	}
	c := report.InstructorConflicts[0]
	if c.SlotID != "slot-b202" || c.InstructorID != testInstructor {
		t.Errorf("教师冲突内容错误: %+v", c)
	}
}

func TestValidateSlot_VirtualRoomSkipped(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-visio", testRoomVisio, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	report, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft(testRoomVisio, "08:00", "10:00", "", testInstructor2), "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if !report.RoomCheckSkipped {
		t.Error("虚拟教室应跳过教室冲突检测")
	}
	if report.HasConflicts() {
		t.Errorf("虚拟教室不应报告冲突: %+v", report)
	}
}

func TestValidateSlot_ExcludesSelf(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-x", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	report, err := svc.RecurringSlot.ValidateExisting(context.Background(), "slot-x")
	if err != nil {
		t.Fatalf("ValidateExisting 应成功: %v", err)
	}
	if report.HasConflicts() {
		t.Errorf("课时不应与自身冲突: %+v", report)
	}

	report, err = svc.RecurringSlot.Validate(context.Background(),
		mondayDraft(testRoomA101, "09:00", "11:00", "", testInstructor), "slot-x")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if report.HasConflicts() {
		t.Errorf("编辑自身时不应与旧版本冲突: %+v", report)
	}
}

func TestValidateSlot_InactiveSlotIgnored(t *testing.T) {
	f := newPlanningFixture()
	slot := f.addSlot("slot-old", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	f.slots.slots[slot.SlotID].IsActive = false
	svc := f.services(nil)

	report, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft(testRoomA101, "08:00", "10:00", "", testInstructor), "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if report.HasConflicts() {
		t.Errorf("停用的课时不参与冲突检测: %+v", report)
	}
}

func TestValidateSlot_RoomNotFound(t *testing.T) {
	f := newPlanningFixture()
	svc := f.services(nil)

	_, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft("room-missing", "08:00", "10:00", "", testInstructor), "")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("期望 ErrRoomNotFound，实际: %v", err)
	}
}

// ── 课次级 ──

func TestFindRoomConflictForOccurrence(t *testing.T) {
	f := newPlanningFixture()
	f.addOccurrence(&model.Occurrence{
		OccurrenceID:      "occ-busy",
		RoomID:            testRoomA101,
		InstructorIDs:     []string{testInstructor},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-10-01"),
		StartTime:         "13:00",
		EndTime:           "15:00",
	})
	f.addOccurrence(&model.Occurrence{
		OccurrenceID:      "occ-cancelled",
		RoomID:            testRoomA101,
		InstructorIDs:     []string{testInstructor2},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-10-01"),
		StartTime:         "15:00",
		EndTime:           "17:00",
		Status:            string(recurrence.StatusCancelled),
	})
	svc := f.services(nil)
	ctx := context.Background()
	day := mustDate("2024-10-01")

	tests := []struct {
		name      string
		start     string
		end       string
		excludeID string
		wantID    string
	}{
		{"重叠", "14:00", "16:00", "", "occ-busy"},
		{"首尾相接", "15:00", "16:00", "", ""},
		{"只与已取消课次重叠", "16:00", "17:00", "", ""},
		{"排除自身", "13:00", "15:00", "occ-busy", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Conflict.FindRoomConflictForOccurrence(ctx, testRoomA101, day,
				recurrence.MustParseClock(tt.start), recurrence.MustParseClock(tt.end), tt.excludeID)
			if err != nil {
				t.Fatalf("FindRoomConflictForOccurrence 应成功: %v", err)
			}
			gotID := ""
			if got != nil {
				gotID = got.OccurrenceID
			}
			if gotID != tt.wantID {
				t.Errorf("期望 %q，实际 %q", tt.wantID, gotID)
			}
		})
	}
}

func TestFindInstructorConflictForOccurrence(t *testing.T) {
	f := newPlanningFixture()
	f.addOccurrence(&model.Occurrence{
		OccurrenceID:      "occ-two-teachers",
		RoomID:            testRoomB202,
		InstructorIDs:     []string{testInstructor, testInstructor2},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-10-01"),
		StartTime:         "08:00",
		EndTime:           "12:00",
	})
	svc := f.services(nil)

	got, err := svc.Conflict.FindInstructorConflictForOccurrence(context.Background(), testInstructor2,
		mustDate("2024-10-01"), recurrence.MustParseClock("11:45"), recurrence.MustParseClock("12:30"), "")
	if err != nil {
		t.Fatalf("FindInstructorConflictForOccurrence 应成功: %v", err)
	}
	if got == nil || got.OccurrenceID != "occ-two-teachers" {
		t.Errorf("期望与 occ-two-teachers 冲突，实际 %+v", got)
	}

	got, err = svc.Conflict.FindInstructorConflictForOccurrence(context.Background(), testInstructor2,
		mustDate("2024-10-02"), recurrence.MustParseClock("08:00"), recurrence.MustParseClock("12:00"), "")
	if err != nil {
		t.Fatalf("FindInstructorConflictForOccurrence 应成功: %v", err)
	}
	if got != nil {
		t.Errorf("不同日期不应冲突")
	}
}

func TestFindRoomConflicts_NoCandidates(t *testing.T) {
	f := newPlanningFixture()
	svc := f.services(nil)

	w := recurrence.Window{
		DayOfWeek:  3,
		Start:      recurrence.MustParseClock("08:00"),
		End:        recurrence.MustParseClock("10:00"),
		RangeStart: mustDate("2024-09-02"),
		RangeEnd:   mustDate("2024-12-20"),
	}
	got, err := svc.Conflict.FindRoomConflicts(context.Background(), testRoomA101, w, "")
	if err != nil {
		t.Fatalf("FindRoomConflicts 应成功: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("无冲突时应返回空切片，实际 %v", got)
	}
}

func TestValidateSlot_ParityAcrossCalendars(t *testing.T) {
	tests := []struct {
		name     string
		anchor   string
		existing string
		draft    string
		want     int
	}{
		{"锚点错开一周 B 与 A 同周", "2024-09-09", "B", "A", 1},
		{"锚点错开一周 A 与 A 不同周", "2024-09-09", "A", "A", 0},
		{"锚点错开两周 B 与 A 不同周", "2024-09-16", "B", "A", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlanningFixture()
			anchor := mustDate(tt.anchor)
			f.calendars.calendars["cal-apprentis"] = &model.AcademicCalendar{
				CalendarID:     "cal-apprentis",
				Name:           "Apprentis 2024-2025",
				StartDate:      mustDate("2024-09-02"),
				EndDate:        mustDate("2025-07-04"),
				ReferenceWeekA: &anchor,
				Status:         "active",
				VersionedModel: model.VersionedModel{Version: 1},
			}
			other := f.addSlot("slot-apprentis", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", tt.existing, testInstructor)
			other.CalendarID = "cal-apprentis"
			_ = f.slots.Create(context.Background(), other)
			svc := f.services(nil)

			report, err := svc.RecurringSlot.Validate(context.Background(),
				mondayDraft(testRoomA101, "08:00", "10:00", tt.draft, testInstructor2), "")
			if err != nil {
				t.Fatalf("Validate 应成功: %v", err)
			}
			if len(report.RoomConflicts) != tt.want {
				t.Errorf("期望 %d 个教室冲突，实际 %d", tt.want, len(report.RoomConflicts))
			}
		})
	}
}

// ── 资源行锁 ──

func TestResourceLocks_TakenBeforeConflictCheck(t *testing.T) {
	want := "room:" + testRoomA101 + ",instructor:" + testInstructor + ",instructor:" + testInstructor2

	tests := []struct {
		name string
		run  func(f *planningFixture, svc *Service) error
	}{
		{"生成课次", func(f *planningFixture, svc *Service) error {
			f.addSlot("slot-x", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor2, testInstructor)
			_, err := svc.Materializer.Materialize(context.Background(), "slot-x", &dto.MaterializeRequest{}, testCaller)
			return err
		}},
		{"创建课时", func(f *planningFixture, svc *Service) error {
			draft := mondayDraft(testRoomA101, "08:00", "10:00", "", testInstructor2, testInstructor)
			_, err := svc.RecurringSlot.Create(context.Background(), &dto.CreateRecurringSlotRequest{SlotDraft: *draft}, testCaller)
			return err
		}},
		{"创建课次", func(f *planningFixture, svc *Service) error {
			_, err := svc.Occurrence.Create(context.Background(), &dto.CreateOccurrenceRequest{
				RoomID:            testRoomA101,
				InstructorIDs:     []string{testInstructor2, testInstructor, testInstructor2},
				SubjectOfferingID: testOffering,
				Date:              "2024-10-09",
				StartTime:         "14:00",
				EndTime:           "17:00",
			}, testCaller)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlanningFixture()
			svc := f.services(nil)

			if err := tt.run(f, svc); err != nil {
				t.Fatalf("操作应成功: %v", err)
			}
			if got := strings.Join(f.locks.keys, ","); got != want {
				t.Errorf("行锁顺序期望 %s，实际 %s", want, got)
			}
		})
	}
}

func TestResourceLocks_InactiveSlotUpdateSkipsLocks(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-x", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	inactive := false
	resp, err := svc.RecurringSlot.Update(context.Background(), "slot-x", &dto.UpdateRecurringSlotRequest{
		IsActive: &inactive,
		Version:  1,
	}, testCaller)
	if err != nil || !resp.Applied {
		t.Fatalf("停用课时应成功: %v %+v", err, resp)
	}
	if len(f.locks.keys) != 0 {
		t.Errorf("停用不检测冲突，不应加锁: %v", f.locks.keys)
	}
}

func TestValidateSlot_UnlimitedCapacityRoomStillChecked(t *testing.T) {
	f := newPlanningFixture()
	f.rooms.rooms["room-amphi"] = &model.Room{RoomID: "room-amphi", Code: "AMPHI", Name: "Amphithéâtre", IsActive: true}
	f.addSlot("slot-amphi", "room-amphi", 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	svc := f.services(nil)

	report, err := svc.RecurringSlot.Validate(context.Background(),
		mondayDraft("room-amphi", "08:00", "10:00", "", testInstructor2), "")
	if err != nil {
		t.Fatalf("Validate 应成功: %v", err)
	}
	if report.RoomCheckSkipped || len(report.RoomConflicts) != 1 {
		t.Errorf("不限容量的实体教室仍应检测冲突: %+v", report)
	}
}
