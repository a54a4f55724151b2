package recurrence

import (
	"errors"
	"fmt"
)

// Status 课次状态
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusPostponed Status = "postponed"
	StatusCompleted Status = "completed"
)

// ErrInvalidTransition 状态流转不在允许表内
var ErrInvalidTransition = errors.New("不允许的课次状态流转")

// transitions 允许的状态流转表；completed 为终态
var transitions = map[Status][]Status{
	StatusPlanned:   {StatusConfirmed, StatusCancelled, StatusPostponed},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusPostponed},
	StatusPostponed: {StatusPlanned, StatusConfirmed, StatusCancelled},
	StatusCancelled: {StatusPlanned},
	StatusCompleted: nil,
}

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("未知的课次状态 %q", s)
	}
	return st, nil
}

// TransitionError 携带具体流转信息的错误，errors.Is(err, ErrInvalidTransition) 成立
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("课次状态不能从 %s 变更为 %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CanTransition 是否允许 from → to
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 校验流转，不允许时返回 *TransitionError
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Occupies 该状态的课次是否占用教室与教师
func (s Status) Occupies() bool {
	return s != StatusCancelled
}
