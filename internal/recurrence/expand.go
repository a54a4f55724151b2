package recurrence

import "time"

// Pattern 周循环课时的展开参数（取自 RecurringSlot 的不可变字段）
type Pattern struct {
	DayOfWeek int // 1=Monday … 7=Sunday
	StartDate time.Time
	EndDate   time.Time
	Parity    WeekParity
}

// FirstDate 从 StartDate 起向后推到第一个星期几匹配的日期（0-6 天偏移）
func (p Pattern) FirstDate() time.Time {
	start := Date(p.StartDate)
	shift := (p.DayOfWeek - ISOWeekday(start) + 7) % 7
	return start.AddDate(0, 0, shift)
}

// Expand 展开为升序、无重复的日期序列。
// 每次调用都从模式字段重新计算，没有游标状态。
// EndDate 早于 StartDate 的模式应在上游被拒绝，这里返回空。
func Expand(p Pattern, ref WeekReference) []time.Time {
	end := Date(p.EndDate)
	first := p.FirstDate()
	if first.After(end) {
		return nil
	}

	dates := make([]time.Time, 0, DaysBetween(first, end)/7+1)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 7) {
		if p.Parity.IsSet() && ref.ParityOf(d) != p.Parity {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// Count 等价于 len(Expand(p, ref))，不分配日期切片
func Count(p Pattern, ref WeekReference) int {
	end := Date(p.EndDate)
	first := p.FirstDate()
	if first.After(end) {
		return 0
	}
	if !p.Parity.IsSet() {
		return DaysBetween(first, end)/7 + 1
	}
	n := 0
	for d := first; !d.After(end); d = d.AddDate(0, 0, 7) {
		if ref.ParityOf(d) == p.Parity {
			n++
		}
	}
	return n
}
