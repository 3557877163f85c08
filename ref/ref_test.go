package ref

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Value struct {
	Name string
}

type Options struct {
	Name string
}

func NewValue(options *Options) (*Value, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if options.Name == "" {
		return nil, errors.New("name cannot be empty")
	}
	return &Value{Name: options.Name}, nil
}

func NewDefaultValue() *Value {
	return &Value{Name: "default"}
}

func NewValueFromStruct(options Options) *Value {
	return &Value{Name: options.Name}
}

// mapOptions 模拟配置模块中的 Convertable 实现
type mapOptions map[string]string

func (m mapOptions) ConvertTo(object any) error {
	switch o := object.(type) {
	case *Options:
		o.Name = m["name"]
		return nil
	}
	return errors.Errorf("unsupported target %T", object)
}

func TestRegisterAndNew(t *testing.T) {
	require.NoError(t, Register("test/ref", "Value", NewValue))
	require.NoError(t, Register("test/ref", "DefaultValue", NewDefaultValue))
	require.NoError(t, Register("test/ref", "StructValue", NewValueFromStruct))

	tests := []struct {
		name     string
		type_    string
		options  any
		wantErr  bool
		expected string
	}{
		{name: "指针参数", type_: "Value", options: &Options{Name: "registered"}, expected: "registered"},
		{name: "无参数构造函数", type_: "DefaultValue", expected: "default"},
		{name: "值类型参数", type_: "StructValue", options: Options{Name: "struct"}, expected: "struct"},
		{name: "Convertable 转换为指针", type_: "Value", options: mapOptions{"name": "converted"}, expected: "converted"},
		{name: "Convertable 转换为值", type_: "StructValue", options: mapOptions{"name": "value"}, expected: "value"},
		{name: "构造函数返回错误", type_: "Value", options: &Options{}, wantErr: true},
		{name: "参数类型不匹配", type_: "Value", options: "bad", wantErr: true},
		{name: "未注册的类型", type_: "Unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := New("test/ref", tt.type_, tt.options)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, obj.(*Value).Name)
		})
	}
}

func TestNilOptionsForPointer(t *testing.T) {
	require.NoError(t, Register("test/ref", "NilValue", NewValue))
	_, err := New("test/ref", "NilValue", nil)
	assert.EqualError(t, err, "options cannot be nil")
}

func TestDuplicateRegister(t *testing.T) {
	require.NoError(t, Register("test/dup", "Value", NewValue))
	assert.NoError(t, Register("test/dup", "Value", NewValue))
	assert.Error(t, Register("test/dup", "Value", NewDefaultValue))
}

func TestRegisterInvalidConstructor(t *testing.T) {
	assert.Error(t, Register("test/invalid", "NotFunc", 1))
	assert.Error(t, Register("test/invalid", "TooManyArgs", func(a, b int) int { return a + b }))
	assert.Error(t, Register("test/invalid", "BadSecondReturn", func() (int, int) { return 1, 2 }))
}

func TestRegisterTAndNewT(t *testing.T) {
	require.NoError(t, RegisterT[*Value](NewValue))

	v, err := NewT[*Value](&Options{Name: "typed"})
	require.NoError(t, err)
	assert.Equal(t, "typed", v.Name)

	obj, err := NewWithOptions(&TypeOptions{
		Namespace: "github.com/hatlonely/featurex/ref",
		Type:      "Value",
		Options:   &Options{Name: "by-options"},
	})
	require.NoError(t, err)
	assert.Equal(t, "by-options", obj.(*Value).Name)

	_, err = NewWithOptions(nil)
	assert.Error(t, err)
}

func TestMustRegister(t *testing.T) {
	assert.NotPanics(t, func() { MustRegister("test/must", "Value", NewValue) })
	assert.Panics(t, func() { MustRegister("test/must", "Value", NewDefaultValue) })
	assert.Panics(t, func() { MustRegisterT[int](NewValue) })
}

func TestTypes(t *testing.T) {
	MustRegister("test/types", "B", NewDefaultValue)
	MustRegister("test/types", "A", NewValue)
	assert.Equal(t, []string{"A", "B"}, Types("test/types"))
	assert.Empty(t, Types("test/none"))
}
