package service

import (
	"context"
	"errors"
	"testing"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	pkgerrors "cfa-planning/pkg/errors"
)

// ── 测试辅助 ──

// setupMondaySlot A101 周一 08:00-10:00，2024-09-02 至 2024-12-20，共 16 个周一
func setupMondaySlot() (*planningFixture, *Service) {
	f := newPlanningFixture()
	f.addSlot("slot-x", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "", testInstructor)
	return f, f.services(nil)
}

func materialize(t *testing.T, svc *Service, slotID string, force bool) *dto.MaterializeResult {
	t.Helper()
	result, err := svc.Materializer.Materialize(context.Background(), slotID, &dto.MaterializeRequest{Force: force}, testCaller)
	if err != nil {
		t.Fatalf("Materialize 应成功: %v", err)
	}
	return result
}

// ── Materialize 测试 ──

func TestMaterializer_ClosedDaySkipped(t *testing.T) {
	f, svc := setupMondaySlot()
	f.addClosedDay("2024-11-11", model.ClosedReasonPublicHoliday, "Armistice")

	result := materialize(t, svc, "slot-x", false)
	if result.Created != 15 || result.Skipped != 1 || result.Deleted != 0 {
		t.Errorf("期望 created=15 skipped=1 deleted=0，实际 %+v", result)
	}
	if got := f.occurrences.onDate("slot-x", mustDate("2024-11-11")); len(got) != 0 {
		t.Errorf("停课日不应生成课次，实际 %d 条", len(got))
	}
	if len(f.occurrences.occs) != 15 {
		t.Errorf("期望 15 条课次，实际 %d", len(f.occurrences.occs))
	}
}

func TestMaterializer_SnapshotFields(t *testing.T) {
	f, svc := setupMondaySlot()
	materialize(t, svc, "slot-x", false)

	occs := f.occurrences.onDate("slot-x", mustDate("2024-09-02"))
	if len(occs) != 1 {
		t.Fatalf("期望 2024-09-02 有 1 条课次，实际 %d", len(occs))
	}
	occ := occs[0]
	if occ.RoomID != testRoomA101 || occ.SubjectOfferingID != testOffering {
		t.Errorf("教室/开课快照错误: %+v", occ)
	}
	if occ.StartTime != "08:00" || occ.EndTime != "10:00" {
		t.Errorf("期望 08:00-10:00，实际 %s-%s", occ.StartTime, occ.EndTime)
	}
	if len(occ.InstructorIDs) != 1 || occ.InstructorIDs[0] != testInstructor {
		t.Errorf("教师快照错误: %v", occ.InstructorIDs)
	}
	if occ.Status != string(recurrence.StatusPlanned) || occ.ManuallyModified {
		t.Errorf("新课次应为 planned 且未手工修改，实际 %s/%v", occ.Status, occ.ManuallyModified)
	}
	if occ.OriginDate == nil || !occ.OriginDate.Equal(occ.Date) {
		t.Errorf("origin_date 应等于 date")
	}
}

func TestMaterializer_Idempotent(t *testing.T) {
	f, svc := setupMondaySlot()

	first := materialize(t, svc, "slot-x", false)
	if first.Created != 16 {
		t.Fatalf("首次生成期望 16 条，实际 %d", first.Created)
	}

	second := materialize(t, svc, "slot-x", false)
	if second.Created != 0 || second.Skipped != 16 {
		t.Errorf("再次生成期望 created=0 skipped=16，实际 %+v", second)
	}
	if len(f.occurrences.occs) != 16 {
		t.Errorf("不应产生重复课次，实际 %d 条", len(f.occurrences.occs))
	}
}

func TestMaterializer_ForceRespectsClosedDay(t *testing.T) {
	f, svc := setupMondaySlot()
	materialize(t, svc, "slot-x", false)

	// 生成之后才登记的停课日，强制重新生成时同样生效
	f.addClosedDay("2024-11-11", model.ClosedReasonClosure, "Fermeture exceptionnelle")

	result := materialize(t, svc, "slot-x", true)
	if result.Deleted != 16 || result.Created != 15 || result.Skipped != 1 {
		t.Errorf("期望 deleted=16 created=15 skipped=1，实际 %+v", result)
	}
	if got := f.occurrences.onDate("slot-x", mustDate("2024-11-11")); len(got) != 0 {
		t.Errorf("强制重新生成后停课日不应有课次，实际 %d 条", len(got))
	}
}

func TestMaterializer_ForceKeepsManualEdits(t *testing.T) {
	f, svc := setupMondaySlot()
	materialize(t, svc, "slot-x", false)

	target := f.occurrences.onDate("slot-x", mustDate("2024-10-07"))[0]
	start, end := "08:30", "10:30"
	resp, err := svc.Occurrence.Update(context.Background(), target.OccurrenceID, &dto.UpdateOccurrenceRequest{
		StartTime: &start,
		EndTime:   &end,
		Version:   target.Version,
	}, testCaller)
	if err != nil || !resp.Applied {
		t.Fatalf("Update 应成功: %v", err)
	}

	result := materialize(t, svc, "slot-x", true)
	if result.Deleted != 15 || result.Created != 15 || result.Skipped != 1 {
		t.Errorf("期望 deleted=15 created=15 skipped=1，实际 %+v", result)
	}

	kept := f.occurrences.onDate("slot-x", mustDate("2024-10-07"))
	if len(kept) != 1 {
		t.Fatalf("手工修改的课次应保留且不重复，实际 %d 条", len(kept))
	}
	if kept[0].OccurrenceID != target.OccurrenceID || kept[0].StartTime != "08:30" || !kept[0].ManuallyModified {
		t.Errorf("手工修改的课次被覆盖: %+v", kept[0])
	}
	if len(f.occurrences.occs) != 16 {
		t.Errorf("期望共 16 条课次，实际 %d", len(f.occurrences.occs))
	}
}

func TestMaterializer_ConcurrentInsertCountedAsSkipped(t *testing.T) {
	f, svc := setupMondaySlot()

	// 另一个写入方在本次批量写入前抢先生成了 09-16
	f.occurrences.beforeBatch = func(m *mockOccurrenceRepo) {
		slotID := "slot-x"
		origin := mustDate("2024-09-16")
		m.insert(&model.Occurrence{
			RecurringSlotID:   &slotID,
			OriginDate:        &origin,
			RoomID:            testRoomA101,
			InstructorIDs:     []string{testInstructor},
			SubjectOfferingID: testOffering,
			Date:              origin,
			StartTime:         "08:00",
			EndTime:           "10:00",
			Status:            string(recurrence.StatusPlanned),
		})
	}

	result := materialize(t, svc, "slot-x", false)
	if result.Created != 15 || result.Skipped != 1 {
		t.Errorf("期望 created=15 skipped=1，实际 %+v", result)
	}
	if got := f.occurrences.onDate("slot-x", mustDate("2024-09-16")); len(got) != 1 {
		t.Errorf("09-16 应只有 1 条课次，实际 %d", len(got))
	}
}

func TestMaterializer_ConflictingDateReported(t *testing.T) {
	f, svc := setupMondaySlot()
	// 同一教师当天在另一间教室已有课
	f.addOccurrence(&model.Occurrence{
		RoomID:            testRoomB202,
		InstructorIDs:     []string{testInstructor},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-09-16"),
		StartTime:         "08:30",
		EndTime:           "09:30",
	})

	result := materialize(t, svc, "slot-x", false)
	if result.Created != 15 || result.Skipped != 1 {
		t.Errorf("期望 created=15 skipped=1，实际 %+v", result)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("期望报告 1 个冲突日期，实际 %d", len(result.Conflicts))
	}
	c := result.Conflicts[0]
	if c.Date != "2024-09-16" || c.Outcome != dto.OutcomeConflict {
		t.Errorf("冲突日期错误: %+v", c)
	}
	if c.Conflicts == nil || len(c.Conflicts.InstructorConflicts) != 1 || c.Conflicts.RoomConflict != nil {
		t.Errorf("应为教师冲突: %+v", c.Conflicts)
	}
}

func TestMaterializer_AllowConflicts(t *testing.T) {
	f, svc := setupMondaySlot()
	f.addOccurrence(&model.Occurrence{
		RoomID:            testRoomA101,
		InstructorIDs:     []string{testInstructor2},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-09-16"),
		StartTime:         "09:00",
		EndTime:           "11:00",
	})

	result, err := svc.Materializer.Materialize(context.Background(), "slot-x",
		&dto.MaterializeRequest{AllowConflicts: true}, testCaller)
	if err != nil {
		t.Fatalf("Materialize 应成功: %v", err)
	}
	if result.Created != 16 {
		t.Errorf("允许冲突时期望 created=16，实际 %d", result.Created)
	}
}

func TestMaterializer_CancelledOccurrenceDoesNotBlock(t *testing.T) {
	f, svc := setupMondaySlot()
	f.addOccurrence(&model.Occurrence{
		RoomID:            testRoomA101,
		InstructorIDs:     []string{testInstructor2},
		SubjectOfferingID: testOffering,
		Date:              mustDate("2024-09-16"),
		StartTime:         "08:00",
		EndTime:           "10:00",
		Status:            string(recurrence.StatusCancelled),
	})

	result := materialize(t, svc, "slot-x", false)
	if result.Created != 16 || len(result.Conflicts) != 0 {
		t.Errorf("已取消的课次不占用资源，期望 created=16，实际 %+v", result)
	}
}

func TestMaterializer_ParityA(t *testing.T) {
	f := newPlanningFixture()
	f.addSlot("slot-a", testRoomA101, 1, "08:00", "10:00", "2024-09-02", "2024-12-20", "A", testInstructor)
	svc := f.services(nil)

	n, err := svc.Materializer.EstimateCount(context.Background(), "slot-a")
	if err != nil {
		t.Fatalf("EstimateCount 应成功: %v", err)
	}
	if n != 8 {
		t.Errorf("A 周课时期望 8 次，实际 %d", n)
	}

	result := materialize(t, svc, "slot-a", false)
	if result.Created != 8 {
		t.Errorf("期望 created=8，实际 %d", result.Created)
	}
	for _, d := range []string{"2024-09-02", "2024-09-16", "2024-12-09"} {
		if got := f.occurrences.onDate("slot-a", mustDate(d)); len(got) != 1 {
			t.Errorf("%s 是 A 周，应有课次", d)
		}
	}
	if got := f.occurrences.onDate("slot-a", mustDate("2024-09-09")); len(got) != 0 {
		t.Errorf("2024-09-09 是 B 周，不应有课次")
	}
}

func TestMaterializer_InactiveSlot(t *testing.T) {
	f, svc := setupMondaySlot()
	f.slots.slots["slot-x"].IsActive = false

	_, err := svc.Materializer.Materialize(context.Background(), "slot-x", &dto.MaterializeRequest{}, testCaller)
	if !errors.Is(err, ErrSlotInactive) {
		t.Errorf("期望 ErrSlotInactive，实际: %v", err)
	}
}

func TestMaterializer_SlotNotFound(t *testing.T) {
	_, svc := setupMondaySlot()

	_, err := svc.Materializer.Materialize(context.Background(), "slot-missing", nil, testCaller)
	if !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("期望 ErrSlotNotFound，实际: %v", err)
	}
}

func TestMaterializer_LockBusy(t *testing.T) {
	f, svc := setupMondaySlot()

	unlock, err := f.locker.Lock(context.Background(), "slot-x")
	if err != nil {
		t.Fatalf("Lock 应成功: %v", err)
	}
	defer unlock()

	_, err = svc.Materializer.Materialize(context.Background(), "slot-x", &dto.MaterializeRequest{}, testCaller)
	if !errors.Is(err, pkgerrors.ErrLockBusy) {
		t.Errorf("期望 ErrLockBusy，实际: %v", err)
	}
	if len(f.occurrences.occs) != 0 {
		t.Errorf("未获得锁时不应写入课次")
	}
}

func TestMaterializer_TooManyOccurrences(t *testing.T) {
	f, svc := setupMondaySlot()
	f.cfg.Planning.MaxOccurrencesPerSlot = 10
	svc = f.services(nil)

	_, err := svc.Materializer.Materialize(context.Background(), "slot-x", &dto.MaterializeRequest{}, testCaller)
	if !errors.Is(err, ErrTooManyOccurrences) {
		t.Errorf("期望 ErrTooManyOccurrences，实际: %v", err)
	}
}

func TestMaterializer_PublishesEvent(t *testing.T) {
	f, _ := setupMondaySlot()
	pub := &recordingPublisher{}
	svc := f.services(pub)

	materialize(t, svc, "slot-x", false)
	if len(pub.keys) != 1 || pub.keys[0] != RoutingKeyOccurrencesMaterialized {
		t.Fatalf("期望发布 1 条生成事件，实际 %v", pub.keys)
	}
	event, ok := pub.events[0].(MaterializedEvent)
	if !ok || event.Created != 16 || event.CalendarID != testCalendarID {
		t.Errorf("事件内容错误: %+v", pub.events[0])
	}
}

// ── Preview / EstimateCount 测试 ──

func TestMaterializer_Preview(t *testing.T) {
	f, svc := setupMondaySlot()
	f.addClosedDay("2024-11-11", model.ClosedReasonPublicHoliday, "Armistice")

	preview, err := svc.Materializer.Preview(context.Background(), "slot-x")
	if err != nil {
		t.Fatalf("Preview 应成功: %v", err)
	}
	if preview.Total != 16 || preview.ToCreate != 15 || preview.Closed != 1 || preview.Existing != 0 {
		t.Errorf("预览统计错误: %+v", preview)
	}
	closed := preview.Dates[10]
	if closed.Date != "2024-11-11" || closed.Outcome != dto.OutcomeClosed || closed.Reason != "public_holiday: Armistice" {
		t.Errorf("2024-11-11 应归类为停课日，实际 %+v", closed)
	}
	if len(f.occurrences.occs) != 0 {
		t.Errorf("预览不应写入课次")
	}

	materialize(t, svc, "slot-x", false)
	preview, err = svc.Materializer.Preview(context.Background(), "slot-x")
	if err != nil {
		t.Fatalf("Preview 应成功: %v", err)
	}
	if preview.Existing != 15 || preview.ToCreate != 0 || preview.Closed != 1 {
		t.Errorf("生成后预览统计错误: %+v", preview)
	}
}

func TestMaterializer_EstimateMatchesMaterialize(t *testing.T) {
	f, svc := setupMondaySlot()
	f.addClosedDay("2024-12-02", model.ClosedReasonBridge, "")

	n, err := svc.Materializer.EstimateCount(context.Background(), "slot-x")
	if err != nil {
		t.Fatalf("EstimateCount 应成功: %v", err)
	}
	result := materialize(t, svc, "slot-x", false)
	if n != result.Created+result.Skipped {
		t.Errorf("估算 %d 应等于 created+skipped=%d", n, result.Created+result.Skipped)
	}
}

func TestMaterializer_EstimateDraft(t *testing.T) {
	f := newPlanningFixture()
	svc := f.services(nil)

	n, err := svc.Materializer.EstimateDraft(context.Background(), &dto.SlotDraft{
		CalendarID:        testCalendarID,
		RoomID:            testRoomA101,
		InstructorIDs:     []string{testInstructor},
		SubjectOfferingID: testOffering,
		DayOfWeek:         1,
		StartTime:         "08:00",
		EndTime:           "10:00",
		StartDate:         "2024-09-02",
		EndDate:           "2024-12-20",
		WeekParity:        "B",
	})
	if err != nil {
		t.Fatalf("EstimateDraft 应成功: %v", err)
	}
	if n != 8 {
		t.Errorf("B 周草稿期望 8 次，实际 %d", n)
	}

	_, err = svc.Materializer.EstimateDraft(context.Background(), &dto.SlotDraft{
		CalendarID:    testCalendarID,
		InstructorIDs: []string{testInstructor},
		DayOfWeek:     1,
		StartTime:     "10:00",
		EndTime:       "08:00",
		StartDate:     "2024-09-02",
		EndDate:       "2024-12-20",
	})
	if !errors.Is(err, recurrence.ErrInvalidInput) {
		t.Errorf("期望 ErrInvalidInput，实际: %v", err)
	}
}
