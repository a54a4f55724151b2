package recurrence

import (
	"errors"
	"testing"
)

func TestTransition_Table(t *testing.T) {
	all := []Status{StatusPlanned, StatusConfirmed, StatusCancelled, StatusPostponed, StatusCompleted}
	allowed := map[Status]map[Status]bool{
		StatusPlanned:   {StatusConfirmed: true, StatusCancelled: true, StatusPostponed: true},
		StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusPostponed: true},
		StatusPostponed: {StatusPlanned: true, StatusConfirmed: true, StatusCancelled: true},
		StatusCancelled: {StatusPlanned: true},
		StatusCompleted: {},
	}

	for _, from := range all {
		for _, to := range all {
			err := Transition(from, to)
			if allowed[from][to] {
				if err != nil {
					t.Errorf("%s → %s 应允许: %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s → %s 期望 ErrInvalidTransition，实际=%v", from, to, err)
			}
		}
	}
}

func TestTransition_ErrorCarriesStates(t *testing.T) {
	err := Transition(StatusCompleted, StatusPlanned)

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("期望 *TransitionError，实际=%T", err)
	}
	if te.From != StatusCompleted || te.To != StatusPlanned {
		t.Errorf("错误信息状态不符: %+v", te)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("postponed"); err != nil || s != StatusPostponed {
		t.Errorf("ParseStatus(postponed) = %s, %v", s, err)
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Error("未知状态应返回错误")
	}
}

func TestStatus_Occupies(t *testing.T) {
	if StatusCancelled.Occupies() {
		t.Error("已取消课次不应占用资源")
	}
	for _, s := range []Status{StatusPlanned, StatusConfirmed, StatusPostponed, StatusCompleted} {
		if !s.Occupies() {
			t.Errorf("%s 应占用资源", s)
		}
	}
}
