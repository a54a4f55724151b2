package recurrence

import (
	"sort"
	"time"
)

// Holiday 法定节假日
type Holiday struct {
	Date    time.Time
	Label   string
	Movable bool
}

// fixedHolidays 固定日期的 8 个全国性节假日
var fixedHolidays = []struct {
	month time.Month
	day   int
	label string
}{
	{time.January, 1, "Jour de l'an"},
	{time.May, 1, "Fête du Travail"},
	{time.May, 8, "Victoire 1945"},
	{time.July, 14, "Fête nationale"},
	{time.August, 15, "Assomption"},
	{time.November, 1, "Toussaint"},
	{time.November, 11, "Armistice 1918"},
	{time.December, 25, "Noël"},
}

// Easter 复活节日期（格里高利历，Meeus/Jones/Butcher 算法）
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// ComputeMovableHolidays 由复活节推导的浮动节假日：
// 复活节星期一 (+1)、耶稣升天节 (+39)、圣灵降临节星期一 (+50)
func ComputeMovableHolidays(year int) []Holiday {
	easter := Easter(year)
	return []Holiday{
		{Date: easter.AddDate(0, 0, 1), Label: "Lundi de Pâques", Movable: true},
		{Date: easter.AddDate(0, 0, 39), Label: "Ascension", Movable: true},
		{Date: easter.AddDate(0, 0, 50), Label: "Lundi de Pentecôte", Movable: true},
	}
}

// FixedHolidays 指定年份的固定节假日
func FixedHolidays(year int) []Holiday {
	out := make([]Holiday, 0, len(fixedHolidays))
	for _, h := range fixedHolidays {
		out = append(out, Holiday{
			Date:  time.Date(year, h.month, h.day, 0, 0, 0, 0, time.UTC),
			Label: h.label,
		})
	}
	return out
}

// PublicHolidays 全年节假日（固定 + 浮动），按日期升序
func PublicHolidays(year int) []Holiday {
	out := append(FixedHolidays(year), ComputeMovableHolidays(year)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// PublicHolidaysBetween [start, end] 区间内的全部节假日
func PublicHolidaysBetween(start, end time.Time) []Holiday {
	start, end = Date(start), Date(end)
	var out []Holiday
	for y := start.Year(); y <= end.Year(); y++ {
		for _, h := range PublicHolidays(y) {
			if h.Date.Before(start) || h.Date.After(end) {
				continue
			}
			out = append(out, h)
		}
	}
	return out
}
