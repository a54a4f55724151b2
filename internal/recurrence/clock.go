package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// GridMinutes 课时起止时间必须对齐的分钟粒度
const GridMinutes = 15

// Clock 一天内的时刻，以自零点起的分钟数表示
type Clock int

// ParseClock 解析 "08:00" 或 PostgreSQL time 列返回的 "08:00:00"
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Second() != 0 {
				return 0, fmt.Errorf("无效时间 %q: 不支持秒级精度", s)
			}
			return Clock(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("无效时间 %q", s)
}

// MustParseClock 解析失败时 panic，仅用于常量与测试
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String 格式化为 "15:04"
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// OnGrid 是否对齐 15 分钟网格
func (c Clock) OnGrid() bool {
	return int(c)%GridMinutes == 0
}

// On 将时刻落到指定日期（loc 时区）
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}
