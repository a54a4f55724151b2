package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"

	"cfa-planning/internal/model"
	"cfa-planning/internal/recurrence"
)

// ── 停课日导入 ──────────────────────────────────────────────
//
// 支持两种来源：
//   - .ics：每个 VEVENT 为一段停课，DTEND 为开区间（RFC 5545 全天事件）
//   - .xlsx：首个工作表，列为 日期 | 原因 | 说明，首行可为表头
//
// 同一日期出现多次时保留第一条。
// ─────────────────────────────────────────────────────────────

const (
	closureMaxFileSize = 5 * 1024 * 1024 // 5MB
	closureMaxSpanDays = 366
)

var (
	ErrClosureFormat       = errors.New("不支持的停课日文件格式，仅支持 .ics / .xlsx")
	ErrClosureParse        = errors.New("停课日文件解析失败")
	ErrClosureFileTooLarge = errors.New("停课日文件过大")
)

// ClosureEntry 导入文件中的一条停课日
type ClosureEntry struct {
	Date   time.Time
	Reason string
	Label  string
}

// ParseClosures 按扩展名选择解析器
func ParseClosures(filename string, r io.Reader) ([]ClosureEntry, error) {
	data, err := io.ReadAll(io.LimitReader(r, closureMaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosureParse, err)
	}
	if len(data) > closureMaxFileSize {
		return nil, ErrClosureFileTooLarge
	}

	var entries []ClosureEntry
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ics", ".ical":
		entries, err = parseClosuresICS(bytes.NewReader(data))
	case ".xlsx":
		entries, err = parseClosuresXLSX(bytes.NewReader(data))
	default:
		return nil, ErrClosureFormat
	}
	if err != nil {
		return nil, err
	}
	return dedupeClosures(entries), nil
}

// ── ICS ──

func parseClosuresICS(r io.Reader) ([]ClosureEntry, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosureParse, err)
	}

	var entries []ClosureEntry
	for _, evt := range cal.Events() {
		start, ok := icsDate(evt, ics.ComponentPropertyDtStart)
		if !ok {
			continue
		}
		// 缺少 DTEND 视为单日
		last := start
		if end, ok := icsDate(evt, ics.ComponentPropertyDtEnd); ok && end.After(start) {
			last = end.AddDate(0, 0, -1)
		}
		if recurrence.DaysBetween(start, last) > closureMaxSpanDays {
			return nil, fmt.Errorf("%w: 停课区间超过一年", ErrClosureParse)
		}

		label := ""
		if p := evt.GetProperty(ics.ComponentPropertySummary); p != nil {
			label = strings.TrimSpace(p.Value)
		}
		reason := model.ClosedReasonClosure
		if p := evt.GetProperty(ics.ComponentPropertyCategories); p != nil {
			reason = normalizeClosedReason(p.Value)
		}

		for _, d := range recurrence.DatesInRange(start, last) {
			entries = append(entries, ClosureEntry{Date: d, Reason: reason, Label: label})
		}
	}
	return entries, nil
}

// icsDate 取 DATE 或 DATE-TIME 属性的日历日期部分
func icsDate(evt *ics.VEvent, prop ics.ComponentProperty) (time.Time, bool) {
	p := evt.GetProperty(prop)
	if p == nil {
		return time.Time{}, false
	}
	val := strings.TrimSpace(p.Value)
	if len(val) < 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", val[:8])
	if err != nil {
		return time.Time{}, false
	}
	return recurrence.Date(t), true
}

// ── XLSX ──

var closureDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

func parseClosuresXLSX(r io.Reader) ([]ClosureEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosureParse, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: 工作簿为空", ErrClosureParse)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosureParse, err)
	}

	var entries []ClosureEntry
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		date, ok := parseCellDate(row[0])
		if !ok {
			// 首行允许为表头
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: 第 %d 行日期无法识别 %q", ErrClosureParse, i+1, row[0])
		}
		entry := ClosureEntry{Date: date, Reason: model.ClosedReasonClosure}
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			entry.Reason = normalizeClosedReason(row[1])
		}
		if len(row) > 2 {
			entry.Label = strings.TrimSpace(row[2])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseCellDate 支持文本日期与 Excel 序列号
func parseCellDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range closureDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return recurrence.Date(t), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return recurrence.Date(t), true
		}
	}
	return time.Time{}, false
}

// normalizeClosedReason 识别枚举值及常见法语写法，无法识别时归为 closure
func normalizeClosedReason(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if model.IsValidClosedReason(v) {
		return v
	}
	switch v {
	case "férié", "ferie", "jour férié", "holiday":
		return model.ClosedReasonPublicHoliday
	case "vacances", "congés", "conges", "vacation":
		return model.ClosedReasonBreak
	case "pont":
		return model.ClosedReasonBridge
	}
	return model.ClosedReasonClosure
}

func dedupeClosures(entries []ClosureEntry) []ClosureEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]ClosureEntry, 0, len(entries))
	for _, e := range entries {
		key := recurrence.FormatDate(e.Date)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
