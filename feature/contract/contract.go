// Package contract 描述请求数据的结构约束
//
// Contract 由一组具名字段组成，每个字段声明类型、是否必填以及 validator/v10 规则，
// 对象和列表字段可以嵌套子 Contract。Contract 不可变，所有派生操作都返回新的实例。
package contract

import (
	"sort"

	"github.com/pkg/errors"
)

// Kind 字段的值类型
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindJSON   Kind = "json"
	KindObject Kind = "object"
	KindList   Kind = "list"
)

type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// NotNull 出现时不允许为 null，Partial 后仍保留
	NotNull bool

	// Rules validator/v10 的规则，如 "max=64"、"oneof=asc desc"
	Rules string

	// Internal 仅供服务内部使用的字段，不计入 Leaves
	Internal bool

	// Nested KindObject 的子结构，或元素为对象的 KindList 的元素结构
	Nested *Contract

	// Elem KindList 的元素类型
	Elem Kind
}

// Contract 一组字段的结构约束
type Contract struct {
	name   string
	fields []Field
}

func New(name string, fields ...Field) *Contract {
	return (&Contract{name: name}).Extend(fields...)
}

// Object 构造对象字段
func Object(name string, nested *Contract, required bool) Field {
	return Field{Name: name, Kind: KindObject, Nested: nested, Required: required}
}

// ListOf 构造元素为对象的列表字段
func ListOf(name string, elem *Contract, required bool) Field {
	return Field{Name: name, Kind: KindList, Elem: KindObject, Nested: elem, Required: required}
}

func (c *Contract) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Fields 返回字段的副本，顺序与声明顺序一致
func (c *Contract) Fields() []Field {
	if c == nil {
		return nil
	}
	return append([]Field(nil), c.fields...)
}

func (c *Contract) Field(name string) (Field, bool) {
	if c == nil {
		return Field{}, false
	}
	for _, field := range c.fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

func (c *Contract) Has(name string) bool {
	_, ok := c.Field(name)
	return ok
}

func (c *Contract) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.fields))
	for i, field := range c.fields {
		names[i] = field.Name
	}
	return names
}

func (c *Contract) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}

func (c *Contract) clone() *Contract {
	if c == nil {
		return &Contract{}
	}
	return &Contract{name: c.name, fields: append([]Field(nil), c.fields...)}
}

// Partial 顶层字段全部变为可选
func (c *Contract) Partial() *Contract {
	out := c.clone()
	for i := range out.fields {
		out.fields[i].Required = false
	}
	return out
}

// Required 顶层字段全部变为必填
func (c *Contract) Required() *Contract {
	out := c.clone()
	for i := range out.fields {
		out.fields[i].Required = true
	}
	return out
}

func (c *Contract) Omit(names ...string) *Contract {
	omitted := make(map[string]bool, len(names))
	for _, name := range names {
		omitted[name] = true
	}
	out := &Contract{name: c.Name()}
	for _, field := range c.Fields() {
		if !omitted[field.Name] {
			out.fields = append(out.fields, field)
		}
	}
	return out
}

// Pick 按给定顺序挑选字段，字段不存在时返回错误
func (c *Contract) Pick(names ...string) (*Contract, error) {
	out := &Contract{name: c.Name()}
	for _, name := range names {
		field, ok := c.Field(name)
		if !ok {
			return nil, errors.Errorf("contract %s has no field %s", c.Name(), name)
		}
		if out.Has(name) {
			continue
		}
		out.fields = append(out.fields, field)
	}
	return out, nil
}

// Extend 追加字段，同名字段被替换并保持原位置
func (c *Contract) Extend(fields ...Field) *Contract {
	out := c.clone()
	for _, field := range fields {
		replaced := false
		for i := range out.fields {
			if out.fields[i].Name == field.Name {
				out.fields[i] = field
				replaced = true
				break
			}
		}
		if !replaced {
			out.fields = append(out.fields, field)
		}
	}
	return out
}

func (c *Contract) Merge(other *Contract) *Contract {
	return c.Extend(other.Fields()...)
}

func (c *Contract) Rename(name string) *Contract {
	out := c.clone()
	out.name = name
	return out
}

// Leaves 返回对外可见的叶子字段名，对象和对象列表由其子字段代替，结果去重并排序
func (c *Contract) Leaves() []string {
	set := map[string]struct{}{}
	c.collectLeaves(set)
	leaves := make([]string, 0, len(set))
	for name := range set {
		leaves = append(leaves, name)
	}
	sort.Strings(leaves)
	return leaves
}

func (c *Contract) collectLeaves(set map[string]struct{}) {
	for _, field := range c.Fields() {
		if field.Internal {
			continue
		}
		if field.Nested != nil && (field.Kind == KindObject || (field.Kind == KindList && field.Elem == KindObject)) {
			field.Nested.collectLeaves(set)
			continue
		}
		set[field.Name] = struct{}{}
	}
}

// Describe 以可序列化的形式描述结构，用于命令行输出
func (c *Contract) Describe() map[string]any {
	fields := make([]map[string]any, 0, c.Len())
	for _, field := range c.Fields() {
		desc := map[string]any{
			"name": field.Name,
			"kind": string(field.Kind),
		}
		if field.Required {
			desc["required"] = true
		}
		if field.Rules != "" {
			desc["rules"] = field.Rules
		}
		if field.Internal {
			desc["internal"] = true
		}
		if field.Kind == KindList && field.Elem != "" {
			desc["elem"] = string(field.Elem)
		}
		if field.Nested != nil {
			desc["fields"] = field.Nested.Describe()["fields"]
		}
		fields = append(fields, desc)
	}
	return map[string]any{
		"name":   c.Name(),
		"fields": fields,
	}
}
