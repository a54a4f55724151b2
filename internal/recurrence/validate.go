package recurrence

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidInput 课时/课次输入不满足不变量
var ErrInvalidInput = errors.New("课时参数校验失败")

// FieldViolation 单个字段的校验失败
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 汇总全部字段错误，errors.Is(err, ErrInvalidInput) 成立
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Field+": "+v.Message)
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// SlotSpec 周循环课时的全部可校验字段
type SlotSpec struct {
	DayOfWeek     int
	Start         Clock
	End           Clock
	StartDate     time.Time
	EndDate       time.Time
	Parity        WeekParity
	InstructorIDs []string
}

// Pattern 取出展开参数
func (s SlotSpec) Pattern() Pattern {
	return Pattern{DayOfWeek: s.DayOfWeek, StartDate: s.StartDate, EndDate: s.EndDate, Parity: s.Parity}
}

// Window 取出冲突检测窗口
func (s SlotSpec) Window() Window {
	return Window{
		DayOfWeek:  s.DayOfWeek,
		Start:      s.Start,
		End:        s.End,
		RangeStart: s.StartDate,
		RangeEnd:   s.EndDate,
		Parity:     s.Parity,
	}
}

// CheckTimeWindow 结束时间晚于开始时间且都在 15 分钟网格上
func CheckTimeWindow(start, end Clock) []FieldViolation {
	var out []FieldViolation
	if !start.OnGrid() {
		out = append(out, FieldViolation{Field: "start_time", Message: "必须对齐 15 分钟"})
	}
	if !end.OnGrid() {
		out = append(out, FieldViolation{Field: "end_time", Message: "必须对齐 15 分钟"})
	}
	if end <= start {
		out = append(out, FieldViolation{Field: "end_time", Message: "必须晚于开始时间"})
	}
	return out
}

// Validate 校验周循环课时的不变量
func (s SlotSpec) Validate() error {
	var vs []FieldViolation
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		vs = append(vs, FieldViolation{Field: "day_of_week", Message: "必须在 1-7 之间"})
	}
	vs = append(vs, CheckTimeWindow(s.Start, s.End)...)
	if !Date(s.EndDate).After(Date(s.StartDate)) {
		vs = append(vs, FieldViolation{Field: "end_date", Message: "必须晚于开始日期"})
	}
	if len(s.InstructorIDs) == 0 {
		vs = append(vs, FieldViolation{Field: "instructor_ids", Message: "至少需要一名教师"})
	}
	switch s.Parity {
	case ParityEvery, ParityA, ParityB:
	default:
		vs = append(vs, FieldViolation{Field: "week_parity", Message: "只能为 A、B 或空"})
	}
	if len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}
