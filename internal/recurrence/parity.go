package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// WeekParity A/B 单双周标记；空值表示每周
type WeekParity string

const (
	ParityEvery WeekParity = ""
	ParityA     WeekParity = "A"
	ParityB     WeekParity = "B"
)

// ParseWeekParity 解析周标记，接受大小写与 "all"
func ParseWeekParity(s string) (WeekParity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return ParityEvery, nil
	case "A":
		return ParityA, nil
	case "B":
		return ParityB, nil
	default:
		return ParityEvery, fmt.Errorf("无效的周标记 %q", s)
	}
}

// IsSet 是否限定了单双周
func (p WeekParity) IsSet() bool {
	return p != ParityEvery
}

// Compatible 两个周标记是否可能落在同一周。
// 每周 vs 任意、相同标记 → 兼容；A vs B → 永不相交。
func Compatible(a, b WeekParity) bool {
	return !a.IsSet() || !b.IsSet() || a == b
}

// WeekReference A/B 周判定的参考基准
type WeekReference struct {
	anchor   time.Time
	explicit bool
}

// NewWeekReference 以学年日历的 A 周锚点构造参考基准。
// anchor 为 nil 时回退到 ISO 周数奇偶（偶数周=A，奇数周=B）。
// 锚点规整到其所在 ISO 周的周一，保证整周归属一致。
func NewWeekReference(anchor *time.Time) WeekReference {
	if anchor == nil || anchor.IsZero() {
		return WeekReference{}
	}
	return WeekReference{anchor: MondayOf(*anchor), explicit: true}
}

// Explicit 是否使用显式锚点
func (r WeekReference) Explicit() bool {
	return r.explicit
}

// Equal 模式与锚点都相同。锚点相差偶数周的两个基准也返回 false，调用方按不同基准处理
func (r WeekReference) Equal(o WeekReference) bool {
	return r.explicit == o.explicit && r.anchor.Equal(o.anchor)
}

// Anchor 规整后的锚点（ISO 回退模式下为零值）
func (r WeekReference) Anchor() time.Time {
	return r.anchor
}

// ParityOf 判定日期所在周是 A 周还是 B 周
func (r WeekReference) ParityOf(date time.Time) WeekParity {
	var weeks int
	if r.explicit {
		weeks = floorDiv(DaysBetween(r.anchor, date), 7)
	} else {
		_, weeks = Date(date).ISOWeek()
	}
	if weeks%2 == 0 {
		return ParityA
	}
	return ParityB
}
