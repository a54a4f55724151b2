package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type sample struct {
	Start  string `json:"start_time"  validate:"required,clock15"`
	Parity string `json:"week_parity" validate:"omitempty,weekparity"`
	Date   string `json:"date"        validate:"required,isodate"`
}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	if err := RegisterOn(v); err != nil {
		t.Fatalf("RegisterOn 应成功: %v", err)
	}
	return v
}

func TestCustomTags_Valid(t *testing.T) {
	v := newValidator(t)
	cases := []sample{
		{Start: "08:00", Parity: "", Date: "2024-09-02"},
		{Start: "13:45", Parity: "A", Date: "2024-02-29"},
		{Start: "23:15", Parity: "b", Date: "2025-12-31"},
	}
	for _, c := range cases {
		if err := v.Struct(c); err != nil {
			t.Errorf("%+v 应通过校验: %v", c, err)
		}
	}
}

func TestCustomTags_Invalid(t *testing.T) {
	v := newValidator(t)
	cases := map[string]sample{
		"start_time":  {Start: "08:10", Date: "2024-09-02"},
		"week_parity": {Start: "08:00", Parity: "C", Date: "2024-09-02"},
		"date":        {Start: "08:00", Date: "2024-02-30"},
	}
	for field, c := range cases {
		err := v.Struct(c)
		if err == nil {
			t.Errorf("%s 应校验失败", field)
			continue
		}
		vs := Violations(err)
		if len(vs) != 1 || vs[0].Field != field {
			t.Errorf("期望字段 %s 的错误，实际=%+v", field, vs)
		}
	}
}

func TestViolations_NonValidationError(t *testing.T) {
	if vs := Violations(nil); vs != nil {
		t.Errorf("nil 错误应返回 nil，实际=%+v", vs)
	}
}
