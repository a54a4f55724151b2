package recurrence

import "time"

// TimesOverlap 半开区间 [s1,e1) 与 [s2,e2) 是否相交，首尾相接不算冲突
func TimesOverlap(s1, e1, s2, e2 Clock) bool {
	return s1 < e2 && s2 < e1
}

// DateRangesOverlap 闭区间 [s1,e1] 与 [s2,e2] 是否相交
func DateRangesOverlap(s1, e1, s2, e2 time.Time) bool {
	return !Date(s1).After(Date(e2)) && !Date(s2).After(Date(e1))
}

// Window 某个周循环课时占用的时间窗口
type Window struct {
	DayOfWeek  int
	Start      Clock
	End        Clock
	RangeStart time.Time
	RangeEnd   time.Time
	Parity     WeekParity
	// Reference 判定 A/B 周的基准，取自课时所属日历；零值为 ISO 周回退
	Reference WeekReference
}

// Collides 两个周循环窗口是否真正冲突：
// 星期相同、时段相交、日期范围相交，最后再按单双周兼容性过滤。
// 两侧都限定单双周且基准不同（分属锚点不同的日历）时，
// 标记不可直接比较，改为逐周比较实际上课日期。
func (w Window) Collides(o Window) bool {
	if w.DayOfWeek != o.DayOfWeek {
		return false
	}
	if !TimesOverlap(w.Start, w.End, o.Start, o.End) {
		return false
	}
	if !DateRangesOverlap(w.RangeStart, w.RangeEnd, o.RangeStart, o.RangeEnd) {
		return false
	}
	if !w.Parity.IsSet() || !o.Parity.IsSet() || w.Reference.Equal(o.Reference) {
		return Compatible(w.Parity, o.Parity)
	}

	shared := Pattern{
		DayOfWeek: w.DayOfWeek,
		StartDate: laterDate(w.RangeStart, o.RangeStart),
		EndDate:   earlierDate(w.RangeEnd, o.RangeEnd),
		Parity:    w.Parity,
	}
	for _, d := range Expand(shared, w.Reference) {
		if o.Reference.ParityOf(d) == o.Parity {
			return true
		}
	}
	return false
}

func laterDate(a, b time.Time) time.Time {
	if Date(a).After(Date(b)) {
		return Date(a)
	}
	return Date(b)
}

func earlierDate(a, b time.Time) time.Time {
	if Date(a).Before(Date(b)) {
		return Date(a)
	}
	return Date(b)
}
