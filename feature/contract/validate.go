package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/featurex/cfg/validator"
	"github.com/pkg/errors"
)

var ErrValidation = errors.New("validation failed")

// Issue 单个字段的校验问题，Path 为点号分隔的字段路径，列表元素以下标表示
type Issue struct {
	Path    string
	Message string
}

// ValidationError 一次校验中发现的全部问题
type ValidationError struct {
	Contract string
	Issues   []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Path + ": " + issue.Message
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Contract, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Fields 出现问题的字段路径
func (e *ValidationError) Fields() []string {
	paths := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		paths[i] = issue.Path
	}
	return paths
}

// Validate 校验输入，未声明的字段、缺失的必填字段、类型不符和规则不满足都会报告
// 所有问题一起返回
func (c *Contract) Validate(input map[string]any) error {
	var issues []Issue
	c.validateObject("", input, &issues)
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Contract: c.Name(), Issues: issues}
}

func joinPath(prefix string, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (c *Contract) validateObject(prefix string, input map[string]any, issues *[]Issue) {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !c.Has(key) {
			*issues = append(*issues, Issue{Path: joinPath(prefix, key), Message: "unknown field"})
		}
	}
	for _, field := range c.Fields() {
		path := joinPath(prefix, field.Name)
		v, ok := input[field.Name]
		if ok && v == nil && field.NotNull && !field.Required {
			*issues = append(*issues, Issue{Path: path, Message: "null not allowed"})
			continue
		}
		if !ok || v == nil {
			if field.Required {
				*issues = append(*issues, Issue{Path: path, Message: "required"})
			}
			continue
		}
		field.validateValue(path, v, issues)
	}
}

func (f Field) validateValue(path string, v any, issues *[]Issue) {
	switch f.Kind {
	case KindObject:
		m, ok := asMap(v)
		if !ok {
			*issues = append(*issues, Issue{Path: path, Message: fmt.Sprintf("expected object, got %T", v)})
			return
		}
		if f.Nested != nil {
			f.Nested.validateObject(path, m, issues)
		}
	case KindList:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			*issues = append(*issues, Issue{Path: path, Message: fmt.Sprintf("expected list, got %T", v)})
			return
		}
		for i := 0; i < rv.Len(); i++ {
			elemPath := fmt.Sprintf("%s.%d", path, i)
			elem := rv.Index(i).Interface()
			if elem == nil {
				*issues = append(*issues, Issue{Path: elemPath, Message: "null element"})
				continue
			}
			if f.Elem == KindObject {
				m, ok := asMap(elem)
				if !ok {
					*issues = append(*issues, Issue{Path: elemPath, Message: fmt.Sprintf("expected object, got %T", elem)})
					continue
				}
				if f.Nested != nil {
					f.Nested.validateObject(elemPath, m, issues)
				}
				continue
			}
			if f.Elem != "" {
				if msg := checkKind(f.Elem, elem); msg != "" {
					*issues = append(*issues, Issue{Path: elemPath, Message: msg})
				}
			}
		}
	default:
		if msg := checkKind(f.Kind, v); msg != "" {
			*issues = append(*issues, Issue{Path: path, Message: msg})
			return
		}
	}

	if f.Rules != "" {
		if err := validator.Default().Var(ruleValue(v), f.Rules); err != nil {
			*issues = append(*issues, Issue{Path: path, Message: "violates rule " + f.Rules})
		}
	}
}

// ruleValue json.Number 按数值参与规则校验
func ruleValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func checkKind(kind Kind, v any) string {
	switch kind {
	case KindString:
		if _, ok := v.(string); ok {
			return ""
		}
	case KindInt:
		if isIntegral(v) {
			return ""
		}
	case KindFloat:
		if _, ok := toFloat(v); ok {
			return ""
		}
	case KindBool:
		if _, ok := v.(bool); ok {
			return ""
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return ""
		case string:
			for _, layout := range timeLayouts {
				if _, err := time.Parse(layout, t); err == nil {
					return ""
				}
			}
			return "expected RFC3339 time"
		}
	case KindJSON, "":
		return ""
	}
	return fmt.Sprintf("expected %s, got %T", kind, v)
}

// isIntegral 整数类型，或小数部分为零的浮点数和 json.Number
func isIntegral(v any) bool {
	if n, ok := v.(json.Number); ok {
		_, err := n.Int64()
		return err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
