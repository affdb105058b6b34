package api

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/fenger067850/todo-manager/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators 向 gin 的校验引擎注册自定义规则（只执行一次）。
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		rules := map[string]validator.Func{
			"hexcolor6": func(fl validator.FieldLevel) bool {
				return hexColorPattern.MatchString(fl.Field().String())
			},
			"priority": func(fl validator.FieldLevel) bool {
				return model.Priority(fl.Field().String()).Valid()
			},
			"quadrant": func(fl validator.FieldLevel) bool {
				return model.Quadrant(fl.Field().String()).Valid()
			},
		}
		for tag, fn := range rules {
			if err := v.RegisterValidation(tag, fn); err != nil {
				validatorsErr = fmt.Errorf("register validator %s: %w", tag, err)
				return
			}
		}
	})
	return validatorsErr
}
