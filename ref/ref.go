package ref

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// TypeOptions 描述一个可由注册表构造的对象
// Namespace 通常是包路径，Type 是类型名，Options 会传给构造函数
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

// Convertable 配置数据实现该接口后，会在调用构造函数前被转换为构造函数期望的参数类型
type Convertable interface {
	ConvertTo(object any) error
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type constructor struct {
	fn           reflect.Value
	optionsType  reflect.Type
	returnsError bool
}

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}

	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error type")
	}

	c := &constructor{fn: fv, returnsError: ft.NumOut() == 2}
	if ft.NumIn() == 1 {
		c.optionsType = ft.In(0)
	}
	return c, nil
}

// prepare 将 options 转换为构造函数的入参
func (c *constructor) prepare(options any) (reflect.Value, error) {
	if convertable, ok := options.(Convertable); ok {
		if c.optionsType.Kind() == reflect.Ptr {
			target := reflect.New(c.optionsType.Elem())
			if err := convertable.ConvertTo(target.Interface()); err != nil {
				return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", c.optionsType)
			}
			return target, nil
		}
		target := reflect.New(c.optionsType)
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", c.optionsType)
		}
		return target.Elem(), nil
	}

	if options == nil {
		// 指针参数允许传 nil，由构造函数自行处理默认值
		switch c.optionsType.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
			return reflect.Zero(c.optionsType), nil
		}
		return reflect.Value{}, errors.Errorf("constructor requires %v but got nil", c.optionsType)
	}

	v := reflect.ValueOf(options)
	if v.Type().AssignableTo(c.optionsType) {
		return v, nil
	}
	if v.Type().ConvertibleTo(c.optionsType) {
		return v.Convert(c.optionsType), nil
	}
	return reflect.Value{}, errors.Errorf("options type %T is not assignable to %v", options, c.optionsType)
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.optionsType != nil {
		arg, err := c.prepare(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

var registry sync.Map

func key(namespace string, type_ string) string {
	return namespace + ":" + type_
}

// Register 注册构造函数，相同函数重复注册会被忽略，不同函数注册到同一个名字会返回错误
func Register(namespace string, type_ string, fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s failed", key(namespace, type_))
	}

	if existing, loaded := registry.LoadOrStore(key(namespace, type_), c); loaded {
		if existing.(*constructor).fn.Pointer() != c.fn.Pointer() {
			return errors.Errorf("constructor for %s already registered with different function", key(namespace, type_))
		}
	}
	return nil
}

// RegisterT 以 T 的包路径和类型名作为 namespace 和 type 注册构造函数
func RegisterT[T any](fn any) error {
	namespace, type_, err := nameOf[T]()
	if err != nil {
		return err
	}
	return Register(namespace, type_, fn)
}

func MustRegister(namespace string, type_ string, fn any) {
	if err := Register(namespace, type_, fn); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

// New 根据 namespace 和 type 构造对象
func New(namespace string, type_ string, options any) (any, error) {
	value, ok := registry.Load(key(namespace, type_))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", key(namespace, type_))
	}
	return value.(*constructor).call(options)
}

// NewT 使用 T 的包路径和类型名查找构造函数，并将结果断言为 T
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, type_, err := nameOf[T]()
	if err != nil {
		return zero, err
	}
	obj, err := New(namespace, type_, options)
	if err != nil {
		return zero, err
	}
	result, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object %T is not of type %T", obj, zero)
	}
	return result, nil
}

// NewWithOptions 按 TypeOptions 构造对象
func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("type options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

// Types 返回某个 namespace 下已注册的类型名，按字母序排列
func Types(namespace string) []string {
	var types []string
	prefix := namespace + ":"
	registry.Range(func(k, _ any) bool {
		if name := k.(string); strings.HasPrefix(name, prefix) {
			types = append(types, strings.TrimPrefix(name, prefix))
		}
		return true
	})
	sort.Strings(types)
	return types
}

func nameOf[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}
