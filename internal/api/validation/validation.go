package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"cfa-planning/internal/recurrence"
)

// 自定义校验标签
const (
	clock15Tag    = "clock15"    // "HH:MM"，对齐 15 分钟
	weekParityTag = "weekparity" // A | B | 空
	isoDateTag    = "isodate"    // "YYYY-MM-DD"
)

var tagMessages = map[string]string{
	"required":    "不能为空",
	"uuid":        "必须为 UUID",
	"min":         "小于允许的最小值",
	"max":         "超过允许的最大值",
	"oneof":       "取值不在允许范围内",
	clock15Tag:    "必须为 HH:MM 且对齐 15 分钟",
	weekParityTag: "只能为 A、B 或空",
	isoDateTag:    "必须为 YYYY-MM-DD 日期",
}

// Register 将自定义标签注册到 gin 的校验引擎，并让错误字段名使用 json 名
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin 校验引擎不是 validator/v10")
	}
	return RegisterOn(v)
}

// RegisterOn 注册到指定的 validator 实例
func RegisterOn(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	if err := v.RegisterValidation(clock15Tag, clock15Validation); err != nil {
		return err
	}
	if err := v.RegisterValidation(weekParityTag, weekParityValidation); err != nil {
		return err
	}
	return v.RegisterValidation(isoDateTag, isoDateValidation)
}

func clock15Validation(fl validator.FieldLevel) bool {
	c, err := recurrence.ParseClock(fl.Field().String())
	return err == nil && c.OnGrid()
}

func weekParityValidation(fl validator.FieldLevel) bool {
	_, err := recurrence.ParseWeekParity(fl.Field().String())
	return err == nil
}

func isoDateValidation(fl validator.FieldLevel) bool {
	_, err := recurrence.ParseDate(fl.Field().String())
	return err == nil
}

// Violations 将绑定错误转换为字段错误列表；非校验错误（如 JSON 语法错误）返回 nil
func Violations(err error) []recurrence.FieldViolation {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}
	out := make([]recurrence.FieldViolation, 0, len(ves))
	for _, fe := range ves {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "校验失败: " + fe.Tag()
		}
		out = append(out, recurrence.FieldViolation{Field: fe.Field(), Message: msg})
	}
	return out
}
