package recurrence

import "testing"

func TestEaster_KnownYears(t *testing.T) {
	cases := map[int]string{
		1818: "1818-03-22",
		2000: "2000-04-23",
		2019: "2019-04-21",
		2024: "2024-03-31",
		2025: "2025-04-20",
		2026: "2026-04-05",
		2038: "2038-04-25",
		2285: "2285-03-22",
	}
	for year, want := range cases {
		if got := FormatDate(Easter(year)); got != want {
			t.Errorf("%d 年复活节期望 %s，实际=%s", year, want, got)
		}
	}
}

func TestComputeMovableHolidays_2024(t *testing.T) {
	got := make(map[string]string)
	for _, h := range ComputeMovableHolidays(2024) {
		got[FormatDate(h.Date)] = h.Label
		if !h.Movable {
			t.Errorf("%s 应标记为浮动节假日", h.Label)
		}
	}

	for _, want := range []string{"2024-04-01", "2024-05-09", "2024-05-20"} {
		if _, ok := got[want]; !ok {
			t.Errorf("缺少浮动节假日 %s，实际=%v", want, got)
		}
	}
}

func TestPublicHolidays_FullYear(t *testing.T) {
	hs := PublicHolidays(2024)
	if len(hs) != 11 {
		t.Fatalf("期望 11 个节假日，实际=%d", len(hs))
	}
	for i := 1; i < len(hs); i++ {
		if hs[i].Date.Before(hs[i-1].Date) {
			t.Errorf("节假日未按日期升序: %s 在 %s 之后", FormatDate(hs[i].Date), FormatDate(hs[i-1].Date))
		}
	}

	fixed := map[string]bool{
		"2024-01-01": false, "2024-05-01": false, "2024-05-08": false, "2024-07-14": false,
		"2024-08-15": false, "2024-11-01": false, "2024-11-11": false, "2024-12-25": false,
	}
	for _, h := range hs {
		if _, ok := fixed[FormatDate(h.Date)]; ok {
			fixed[FormatDate(h.Date)] = true
		}
	}
	for date, found := range fixed {
		if !found {
			t.Errorf("缺少固定节假日 %s", date)
		}
	}
}

func TestPublicHolidaysBetween_AcademicYear(t *testing.T) {
	hs := PublicHolidaysBetween(d("2024-09-01"), d("2025-07-31"))

	// 2024: 11-01, 11-11, 12-25；2025: 01-01, 04-21, 05-01, 05-08, 05-29, 06-09, 07-14
	if len(hs) != 10 {
		t.Fatalf("期望 10 个节假日，实际=%d", len(hs))
	}
	if got := FormatDate(hs[0].Date); got != "2024-11-01" {
		t.Errorf("期望首个为 2024-11-01，实际=%s", got)
	}
	if got := FormatDate(hs[len(hs)-1].Date); got != "2025-07-14" {
		t.Errorf("期望末个为 2025-07-14，实际=%s", got)
	}
}
