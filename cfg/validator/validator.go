package validator

import (
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Default 返回共享的 validator 实例，校验器内部会缓存结构体元信息
func Default() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct 校验结构体的 validate tag
// nil、非结构体以及 time.Time 直接跳过
func ValidateStruct(object any) error {
	if object == nil {
		return nil
	}

	rv := reflect.ValueOf(object)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if rt := rv.Type(); rt.PkgPath() == "time" && rt.Name() == "Time" {
		return nil
	}

	return Default().Struct(rv.Interface())
}
