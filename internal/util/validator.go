package util

import (
	"frubric_backend/internal/rubric"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册自定义绑定校验：frscore 校验等级分数写法
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("frscore", func(fl validator.FieldLevel) bool {
		_, err := rubric.ParseScore(fl.Field().String())
		return err == nil
	})
}
