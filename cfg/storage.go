package cfg

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hatlonely/featurex/cfg/validator"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

var _ ref.Convertable = (*MapStorage)(nil)

// MapStorage 解码后的通用配置树，叶子节点为标量，中间节点为 map[string]any 或 []any
type MapStorage struct {
	data any
}

func NewMapStorage(data any) *MapStorage {
	return &MapStorage{data: normalize(data)}
}

func (ms *MapStorage) Data() any {
	return ms.data
}

// Sub 按点号分隔的路径获取子配置，路径不存在时返回空配置
func (ms *MapStorage) Sub(key string) *MapStorage {
	if key == "" {
		return ms
	}
	current := ms.data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return &MapStorage{}
		}
		k, ok := lookupKey(m, part)
		if !ok {
			return &MapStorage{}
		}
		current = m[k]
	}
	return &MapStorage{data: current}
}

// Set 按路径写入值，中间节点不存在时自动创建
func (ms *MapStorage) Set(path []string, value any) {
	if len(path) == 0 {
		ms.data = value
		return
	}
	root, ok := ms.data.(map[string]any)
	if !ok {
		root = map[string]any{}
		ms.data = root
	}
	current := root
	for i, part := range path {
		k, exists := lookupKey(current, part)
		if !exists {
			k = part
		}
		if i == len(path)-1 {
			current[k] = value
			return
		}
		next, ok := current[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[k] = next
		}
		current = next
	}
}

// ConvertTo 将配置转换为目标对象，随后设置默认值并进行校验
func (ms *MapStorage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("object must be a non-nil pointer, got %T", object)
	}
	if ms.data != nil {
		if err := convertValue(ms.data, rv.Elem()); err != nil {
			return err
		}
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	if err := validator.ValidateStruct(object); err != nil {
		return errors.Wrap(err, "validate failed")
	}
	return nil
}

func lookupKey(m map[string]any, key string) (string, bool) {
	if _, ok := m[key]; ok {
		return key, true
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

// normalize 将各解码器产生的 map[any]any、map[string]string 等统一为 map[string]any
func normalize(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[toString(k)] = normalize(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	}
	return data
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func convertValue(src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	// any 类型的字段保留子树，交给 ref 在构造时按构造函数参数类型转换
	if dst.Kind() == reflect.Interface && dst.Type().NumMethod() == 0 {
		switch src.(type) {
		case map[string]any, []any:
			dst.Set(reflect.ValueOf(&MapStorage{data: src}))
		default:
			dst.Set(reflect.ValueOf(src))
		}
		return nil
	}

	sv := reflect.ValueOf(src)

	if s, ok := src.(string); ok && dst.Kind() != reflect.String && dst.Kind() != reflect.Slice {
		return parseInto(dst, s)
	}

	switch {
	case dst.Type() == durationType:
		switch sv.Kind() {
		case reflect.Int, reflect.Int64, reflect.Int32:
			dst.SetInt(sv.Int())
			return nil
		case reflect.Float64, reflect.Float32:
			dst.SetInt(int64(sv.Float() * float64(time.Second)))
			return nil
		}
	case dst.Type() == timeType:
		if t, ok := src.(time.Time); ok {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		return convertToStruct(m, dst)
	case reflect.Map:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), len(m)))
		}
		for k, v := range m {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := convertValue(v, elem); err != nil {
				return errors.WithMessagef(err, "key %s", k)
			}
			dst.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
		}
		return nil
	case reflect.Slice:
		if s, ok := src.(string); ok {
			return parseInto(dst, s)
		}
		items, ok := src.([]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		slice := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := convertValue(item, slice.Index(i)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		dst.Set(slice)
		return nil
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if isNumber(sv.Kind()) && isNumber(dst.Kind()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %T to %v", src, dst.Type())
}

func convertToStruct(src map[string]any, dst reflect.Value) error {
	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		field := dt.Field(i)
		fv := dst.Field(i)
		if !fv.CanSet() {
			continue
		}
		name := field.Name
		if tag := strings.Split(field.Tag.Get("cfg"), ",")[0]; tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		k, ok := lookupKey(src, name)
		if !ok {
			continue
		}
		if err := convertValue(src[k], fv); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
