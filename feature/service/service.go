// Package service 在数据访问函数之上统一空结果和错误的处理方式
package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/schema"
	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownService = errors.New("unknown service")
)

// NotFoundError 单条记录操作没有找到记录
type NotFoundError struct {
	Operation string
	Resource  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s.%s", ErrNotFound.Error(), e.Resource, e.Operation)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NullPolicy 数据访问函数返回空结果时的处理方式
type NullPolicy string

const (
	// OnNullThrow 空结果转换为 NotFoundError，为默认值
	OnNullThrow NullPolicy = "throw"
	// OnNullReturn 空结果原样返回
	OnNullReturn NullPolicy = "return"
)

// Definition 一个服务的定义，Operation 为空时使用注册名
type Definition struct {
	Fn        query.Func
	Operation string
	OnNull    NullPolicy
}

// isNil 同时识别 nil 接口和装在接口里的 nil 指针、map、切片
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// Services Build 的结果，名字到服务函数的只读映射
type Services struct {
	resource string
	funcs    map[string]query.Func
	defs     map[string]Definition
	schemas  schema.Schemas
	names    []string
}

func (s Services) Resource() string {
	return s.resource
}

func (s Services) Get(name string) (query.Func, bool) {
	fn, ok := s.funcs[name]
	return fn, ok
}

func (s Services) Names() []string {
	names := append([]string(nil), s.names...)
	sort.Strings(names)
	return names
}

func (s Services) Call(ctx context.Context, name string, input *query.Input) (any, error) {
	fn, ok := s.funcs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownService, "%s.%s", s.resource, name)
	}
	return fn(ctx, input)
}

// Endpoint 返回服务对应的结构，供路由层校验外部请求
func (s Services) Endpoint(name string) (schema.Set, bool) {
	return s.schemas.Get(name)
}

// ValidateEndpoint 按 Endpoint 结构校验请求体、路径参数和查询字符串
func (s Services) ValidateEndpoint(name string, body map[string]any, param map[string]any, values map[string]any) error {
	set, ok := s.Endpoint(name)
	if !ok {
		return errors.Wrapf(ErrUnknownService, "%s.%s has no endpoint schema", s.resource, name)
	}
	parts := []struct {
		contract *contract.Contract
		input    map[string]any
		where    string
	}{
		{set.Endpoint.JSON, body, "body"},
		{set.Endpoint.Param, param, "param"},
		{set.Endpoint.Query, values, "query"},
	}
	for _, part := range parts {
		if part.contract == nil {
			if len(part.input) > 0 {
				return &contract.ValidationError{
					Contract: name,
					Issues:   []contract.Issue{{Path: part.where, Message: "not accepted"}},
				}
			}
			continue
		}
		input := part.input
		if input == nil {
			input = map[string]any{}
		}
		if err := part.contract.Validate(input); err != nil {
			return errors.WithMessage(err, part.where)
		}
	}
	return nil
}

func (s Services) Describe() map[string]any {
	out := make(map[string]any, len(s.defs))
	for name, def := range s.defs {
		out[name] = map[string]any{
			"operation": def.Operation,
			"onNull":    string(def.OnNull),
		}
	}
	return out
}
