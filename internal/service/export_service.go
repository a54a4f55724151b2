package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"cfa-planning/config"
	"cfa-planning/internal/dto"
	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
	"cfa-planning/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoOccurrences = errors.New("没有可导出的课次")
	ErrExportGenerateFail  = errors.New("生成导出文件失败")
)

const (
	icsProductID       = "-//CFA//Planning//FR"
	exportMaxRows      = 10000
	occurrenceSheet    = "课次"
	exportDefaultSheet = "Sheet1"
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
type ExportService interface {
	// ExportSlotICS 导出课时已生成的课次为 iCalendar，取消的课次标记为 CANCELLED
	ExportSlotICS(ctx context.Context, slotID string) (*bytes.Buffer, string, error)
	// ExportOccurrencesXLSX 按过滤条件导出课次为 Excel
	ExportOccurrencesXLSX(ctx context.Context, req *dto.OccurrenceListRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	tzName string
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(cfg config.PlanningConfig, repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: cfg.Location(), tzName: cfg.Timezone, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportSlotICS
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportSlotICS(ctx context.Context, slotID string) (*bytes.Buffer, string, error) {
	slot, err := s.repo.RecurringSlot.GetByID(ctx, slotID)
	if err != nil {
		if err = notFound(err, ErrSlotNotFound); err != ErrSlotNotFound {
			s.logger.Error("查询课时失败", zap.String("slot_id", slotID), zap.Error(err))
		}
		return nil, "", err
	}

	occs, err := s.repo.Occurrence.ListBySlot(ctx, slotID)
	if err != nil {
		s.logger.Error("查询课次失败", zap.String("slot_id", slotID), zap.Error(err))
		return nil, "", err
	}
	if len(occs) == 0 {
		return nil, "", ErrExportNoOccurrences
	}

	summary := slotID
	if offering, err := s.repo.SubjectOffering.GetByID(ctx, slot.SubjectOfferingID); err == nil {
		summary = offering.Name
		if offering.Cohort != "" {
			summary += " (" + offering.Cohort + ")"
		}
	}
	location := slot.RoomID
	if slot.Room != nil {
		location = slot.Room.Name
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName(summary)
	cal.SetXWRTimezone(s.tzName)

	now := time.Now().UTC()
	for i := range occs {
		occ := &occs[i]
		start, end, err := occ.Window()
		if err != nil {
			s.logger.Warn("跳过时间无效的课次", zap.String("occurrence_id", occ.OccurrenceID), zap.Error(err))
			continue
		}

		event := cal.AddEvent(occ.OccurrenceID + "@cfa-planning")
		event.SetDtStampTime(now)
		event.SetStartAt(start.On(occ.Date, s.loc))
		event.SetEndAt(end.On(occ.Date, s.loc))
		event.SetSummary(summary)
		event.SetLocation(location)
		if occ.Notes != "" {
			event.SetDescription(occ.Notes)
		}
		event.SetProperty(ics.ComponentPropertyStatus, icsStatus(recurrence.Status(occ.Status)))
		event.SetProperty(ics.ComponentPropertySequence, fmt.Sprintf("%d", occ.Version-1))
	}

	buf := bytes.NewBufferString(cal.Serialize())
	filename := fmt.Sprintf("slot_%s.ics", slotID)
	return buf, filename, nil
}

// icsStatus 映射到 RFC 5545 VEVENT STATUS
func icsStatus(st recurrence.Status) string {
	switch st {
	case recurrence.StatusCancelled:
		return string(ics.ObjectStatusCancelled)
	case recurrence.StatusPlanned, recurrence.StatusPostponed:
		return string(ics.ObjectStatusTentative)
	default:
		return string(ics.ObjectStatusConfirmed)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportOccurrencesXLSX
// ═══════════════════════════════════════════════════════════
//
// 表头：日期 | 星期 | 开始 | 结束 | 教室 | 教师 | 开课 | 状态 | 手工修改 | 备注

var weekdayNames = map[int]string{1: "周一", 2: "周二", 3: "周三", 4: "周四", 5: "周五", 6: "周六", 7: "周日"}

func (s *exportService) ExportOccurrencesXLSX(ctx context.Context, req *dto.OccurrenceListRequest) (*bytes.Buffer, string, error) {
	filter := repository.OccurrenceFilter{
		SlotID:       req.SlotID,
		RoomID:       req.RoomID,
		InstructorID: req.InstructorID,
		Status:       req.Status,
		Limit:        exportMaxRows,
	}
	if req.From != "" {
		if d, err := recurrence.ParseDate(req.From); err == nil {
			filter.From = &d
		}
	}
	if req.To != "" {
		if d, err := recurrence.ParseDate(req.To); err == nil {
			filter.To = &d
		}
	}

	occs, total, err := s.repo.Occurrence.List(ctx, filter)
	if err != nil {
		s.logger.Error("查询课次失败", zap.Error(err))
		return nil, "", err
	}
	if len(occs) == 0 {
		return nil, "", ErrExportNoOccurrences
	}
	if total > int64(len(occs)) {
		s.logger.Warn("导出课次被截断", zap.Int64("total", total), zap.Int("exported", len(occs)))
	}

	names := s.lookupNames(ctx, occs)

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(occurrenceSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet(exportDefaultSheet)

	headers := []string{"日期", "星期", "开始", "结束", "教室", "教师", "开课", "状态", "手工修改", "备注"}
	widths := []float64{12, 6, 8, 8, 16, 28, 28, 10, 8, 40}
	for i, h := range headers {
		col := colName(i)
		f.SetCellValue(occurrenceSheet, cell(col, 1), h)
		f.SetColWidth(occurrenceSheet, col, col, widths[i])
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	f.SetCellStyle(occurrenceSheet, "A1", cell(colName(len(headers)-1), 1), headerStyle)
	f.SetPanes(occurrenceSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i := range occs {
		occ := &occs[i]
		row := i + 2
		instructors := make([]string, 0, len(occ.InstructorIDs))
		for _, id := range occ.InstructorIDs {
			instructors = append(instructors, names.instructor(id))
		}
		modified := ""
		if occ.ManuallyModified {
			modified = "是"
		}
		values := []interface{}{
			recurrence.FormatDate(occ.Date),
			weekdayNames[recurrence.ISOWeekday(occ.Date)],
			clockString(occ.StartTime),
			clockString(occ.EndTime),
			names.room(occ.RoomID),
			strings.Join(instructors, ", "),
			names.offering(occ.SubjectOfferingID),
			occ.Status,
			modified,
			occ.Notes,
		}
		for j, v := range values {
			f.SetCellValue(occurrenceSheet, cell(colName(j), row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("课次_%s_%s.xlsx", recurrence.FormatDate(occs[0].Date), recurrence.FormatDate(occs[len(occs)-1].Date))
	return buf, filename, nil
}

// exportNames 导出时的 ID → 名称缓存，查不到时回退为 ID
type exportNames struct {
	rooms       map[string]string
	instructors map[string]string
	offerings   map[string]string
}

func (n exportNames) room(id string) string       { return fallback(n.rooms[id], id) }
func (n exportNames) instructor(id string) string { return fallback(n.instructors[id], id) }
func (n exportNames) offering(id string) string   { return fallback(n.offerings[id], id) }

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *exportService) lookupNames(ctx context.Context, occs []model.Occurrence) exportNames {
	names := exportNames{
		rooms:       map[string]string{},
		instructors: map[string]string{},
		offerings:   map[string]string{},
	}

	var instructorIDs []string
	for i := range occs {
		occ := &occs[i]
		if _, ok := names.rooms[occ.RoomID]; !ok {
			names.rooms[occ.RoomID] = ""
			if room, err := s.repo.Room.GetByID(ctx, occ.RoomID); err == nil {
				names.rooms[occ.RoomID] = room.Name
			}
		}
		if _, ok := names.offerings[occ.SubjectOfferingID]; !ok {
			names.offerings[occ.SubjectOfferingID] = ""
			if off, err := s.repo.SubjectOffering.GetByID(ctx, occ.SubjectOfferingID); err == nil {
				names.offerings[occ.SubjectOfferingID] = off.Name
			}
		}
		instructorIDs = append(instructorIDs, occ.InstructorIDs...)
	}

	instructors, err := s.repo.Instructor.GetByIDs(ctx, uniqueStrings(instructorIDs))
	if err != nil {
		s.logger.Warn("查询教师名称失败", zap.Error(err))
	}
	for _, in := range instructors {
		names.instructors[in.InstructorID] = in.DisplayName
	}
	return names
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
