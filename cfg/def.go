package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// SetDefaults 根据 def tag 为结构体的零值字段设置默认值
// 嵌套结构体会递归处理，指针字段只有声明了 def tag 时才会被分配
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		defValue, hasDef := field.Tag.Lookup("def")

		if isStructLike(fv.Type()) {
			if fv.Kind() == reflect.Ptr && fv.IsNil() {
				if !hasDef {
					continue
				}
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			if err := setDefaults(fv); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
			continue
		}

		if !hasDef || defValue == "" || !fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			fv.Set(reflect.New(fv.Type().Elem()))
			fv = fv.Elem()
		}
		if err := parseInto(fv, defValue); err != nil {
			return errors.WithMessagef(err, "set default value for field %s failed", field.Name)
		}
	}
	return nil
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

// parseInto 将字符串解析为 rv 的类型，默认值和环境变量共用该逻辑
func parseInto(rv reflect.Value, s string) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(s)
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return errors.Errorf("invalid bool value %q", s)
		}
		rv.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type() == durationType {
			d, err := time.ParseDuration(s)
			if err != nil {
				return errors.Errorf("invalid duration value %q", s)
			}
			rv.SetInt(int64(d))
			return nil
		}
		v, err := strconv.ParseInt(s, 0, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid int value %q", s)
		}
		rv.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(s, 0, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid uint value %q", s)
		}
		rv.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(s, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid float value %q", s)
		}
		rv.SetFloat(v)
	case reflect.Struct:
		if rv.Type() != timeType {
			return errors.Errorf("unsupported type %v", rv.Type())
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(t))
	case reflect.Slice:
		parts := strings.Split(s, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := parseInto(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "element %d", i)
			}
		}
		rv.Set(slice)
	default:
		return errors.Errorf("unsupported type %v", rv.Type())
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0), nil
	}
	return time.Time{}, errors.Errorf("invalid time value %q", s)
}
