package query

import (
	"reflect"
	"strings"
	"time"
)

// Equal 比较两个值是否相等，不同宽度的数字按数值比较
func Equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare 比较两个同类值的大小，支持数字、字符串、布尔和时间
// 类型不兼容时第二个返回值为 false
func Compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}

	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return strings.Compare(va, vb), true
		}
		if tb, ok := b.(time.Time); ok {
			if ta, err := time.Parse(time.RFC3339Nano, va); err == nil {
				return ta.Compare(tb), true
			}
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case va == vb:
				return 0, true
			case !va:
				return -1, true
			}
			return 1, true
		}
	case time.Time:
		switch vb := b.(type) {
		case time.Time:
			return va.Compare(vb), true
		case string:
			if tb, err := time.Parse(time.RFC3339Nano, vb); err == nil {
				return va.Compare(tb), true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
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
