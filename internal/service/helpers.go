package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// notFound 将 gorm.ErrRecordNotFound 映射为模块哨兵错误，其余原样返回
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := recurrence.FormatDate(*t)
	return &s
}

// clockString 将 time 列的 "08:00:00" 规整为 "08:00"
func clockString(s string) string {
	c, err := recurrence.ParseClock(s)
	if err != nil {
		return s
	}
	return c.String()
}

// uniqueStrings 去重并保持顺序
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func toSlotConflict(slot *model.RecurringSlot, instructorID string) dto.SlotConflict {
	return dto.SlotConflict{
		SlotID:       slot.SlotID,
		InstructorID: instructorID,
		RoomID:       slot.RoomID,
		DayOfWeek:    slot.DayOfWeek,
		StartTime:    clockString(slot.StartTime),
		EndTime:      clockString(slot.EndTime),
		StartDate:    recurrence.FormatDate(slot.StartDate),
		EndDate:      recurrence.FormatDate(slot.EndDate),
		WeekParity:   slot.WeekParity,
	}
}

func toOccurrenceConflict(occ *model.Occurrence, instructorID string) dto.OccurrenceConflict {
	return dto.OccurrenceConflict{
		OccurrenceID:    occ.OccurrenceID,
		RecurringSlotID: occ.RecurringSlotID,
		InstructorID:    instructorID,
		RoomID:          occ.RoomID,
		Date:            recurrence.FormatDate(occ.Date),
		StartTime:       clockString(occ.StartTime),
		EndTime:         clockString(occ.EndTime),
		Status:          occ.Status,
	}
}

func toSlotResponse(slot *model.RecurringSlot) *dto.RecurringSlotResponse {
	return &dto.RecurringSlotResponse{
		ID:                slot.SlotID,
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
		IsActive:          slot.IsActive,
		Version:           slot.Version,
		CreatedAt:         slot.CreatedAt.Format(timestampLayout),
		UpdatedAt:         slot.UpdatedAt.Format(timestampLayout),
	}
}

func toOccurrenceResponse(occ *model.Occurrence) *dto.OccurrenceResponse {
	ids := []string(occ.InstructorIDs)
	if ids == nil {
		ids = []string{}
	}
	return &dto.OccurrenceResponse{
		ID:                occ.OccurrenceID,
		RecurringSlotID:   occ.RecurringSlotID,
		OriginDate:        formatDatePtr(occ.OriginDate),
		RoomID:            occ.RoomID,
		InstructorIDs:     ids,
		SubjectOfferingID: occ.SubjectOfferingID,
		Date:              recurrence.FormatDate(occ.Date),
		StartTime:         clockString(occ.StartTime),
		EndTime:           clockString(occ.EndTime),
		Status:            occ.Status,
		ManuallyModified:  occ.ManuallyModified,
		Notes:             occ.Notes,
		Version:           occ.Version,
	}
}
