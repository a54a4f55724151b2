package recurrence

import (
	"fmt"
	"time"
)

// DateLayout 民用日期格式
const DateLayout = "2006-01-02"

// Date 返回 t 所在的民用日期（UTC 零点）。
// 核心逻辑只处理单一本地民用日历，时区偏移一律丢弃。
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate 解析 "2006-01-02" 格式的日期
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效日期 %q: %w", s, err)
	}
	return t, nil
}

// FormatDate 格式化为 "2006-01-02"
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ISOWeekday 将 time.Weekday (0=Sunday) 转为 ISO 8601 (1=Monday … 7=Sunday)
func ISOWeekday(t time.Time) int {
	wd := t.Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// DaysBetween 返回 b - a 的日历天数（可为负）
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// MondayOf 返回 t 所在 ISO 周的周一
func MondayOf(t time.Time) time.Time {
	d := Date(t)
	return d.AddDate(0, 0, 1-ISOWeekday(d))
}

// DatesInRange 返回 [start, end] 内的每一天（升序）
func DatesInRange(start, end time.Time) []time.Time {
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return nil
	}
	dates := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// floorDiv 向下取整除法（b > 0），参考日之前的日期得到负周数
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
