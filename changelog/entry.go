// Package changelog 逐行读取变更文件并通过功能模块的服务写入存储
//
// 每行一个 JSON 对象：
//
//	{"change": "add", "feature": "labels", "userId": "U1", "data": {"name": "Food"}}
//	{"change": "update", "feature": "labels", "userId": "U1", "ids": {"id": "L1"}, "data": {"color": "#fff"}}
//	{"feature": "budgets", "operation": "updatePaidAmount", "userId": "U1", "ids": {"id": "B1"}, "data": {"paidAmount": 10}}
package changelog

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

// ChangeType 一行记录的变更类型
type ChangeType int

const (
	ChangeTypeUnknown ChangeType = 0    // 未知
	ChangeTypeAdd     ChangeType = iota // 新增
	ChangeTypeUpdate                    // 更新
	ChangeTypeDelete                    // 删除
)

var changeTypeNames = map[string]ChangeType{
	"add":    ChangeTypeAdd,
	"create": ChangeTypeAdd,
	"update": ChangeTypeUpdate,
	"delete": ChangeTypeDelete,
	"remove": ChangeTypeDelete,
}

func (c ChangeType) String() string {
	switch c {
	case ChangeTypeAdd:
		return "add"
	case ChangeTypeUpdate:
		return "update"
	case ChangeTypeDelete:
		return "delete"
	}
	return "unknown"
}

func ParseChangeType(name string) (ChangeType, error) {
	t, ok := changeTypeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ChangeTypeUnknown, errors.Errorf("unknown change type %q", name)
	}
	return t, nil
}

// UnmarshalJSON 支持名字和数字两种写法
func (c *ChangeType) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			*c = ChangeType(n)
			return nil
		}
		t, err := ParseChangeType(v)
		if err != nil {
			return err
		}
		*c = t
	case float64:
		*c = ChangeType(int(v))
	case nil:
		*c = ChangeTypeUnknown
	default:
		return errors.Errorf("invalid change type %v", raw)
	}
	return nil
}

type Entry struct {
	Change    ChangeType     `json:"change"`
	Feature   string         `json:"feature"`
	Operation string         `json:"operation"`
	UserID    string         `json:"userId"`
	IDs       map[string]any `json:"ids"`
	Data      map[string]any `json:"data"`
}

// Parser 将一行内容解析为 Entry，空行返回 ok=false
type Parser interface {
	Parse(line []byte) (entry Entry, ok bool, err error)
}

func init() {
	ref.MustRegisterT[JSONLineParser](NewJSONLineParserWithOptions)
}

// NewParserWithOptions options 为空时使用 JSONLineParser
func NewParserWithOptions(options *ref.TypeOptions) (Parser, error) {
	if options == nil {
		return NewJSONLineParserWithOptions(nil)
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	p, ok := obj.(Parser)
	if !ok {
		return nil, errors.Errorf("%T is not a Parser", obj)
	}
	return p, nil
}

// ChangeRule 行内没有 change 字段时，按 data 中的字段值推断变更类型
type ChangeRule struct {
	Field  string `cfg:"field" validate:"required"`
	Value  any    `cfg:"value"`
	Change string `cfg:"change" validate:"required"`
}

type changeRule struct {
	field  string
	value  any
	change ChangeType
}

type JSONLineParserOptions struct {
	// Feature 行内没有 feature 字段时使用
	Feature string       `cfg:"feature"`
	Rules   []ChangeRule `cfg:"rules"`
	// DefaultChange 没有 change 字段且规则都不满足时使用
	DefaultChange string `cfg:"defaultChange" def:"add"`
}

type JSONLineParser struct {
	feature       string
	rules         []changeRule
	defaultChange ChangeType
}

func NewJSONLineParserWithOptions(options *JSONLineParserOptions) (*JSONLineParser, error) {
	if options == nil {
		options = &JSONLineParserOptions{}
	}
	p := &JSONLineParser{feature: options.Feature, defaultChange: ChangeTypeAdd}
	if options.DefaultChange != "" {
		t, err := ParseChangeType(options.DefaultChange)
		if err != nil {
			return nil, errors.WithMessage(err, "defaultChange")
		}
		p.defaultChange = t
	}
	for i, rule := range options.Rules {
		t, err := ParseChangeType(rule.Change)
		if err != nil {
			return nil, errors.WithMessagef(err, "rules[%d]", i)
		}
		p.rules = append(p.rules, changeRule{field: rule.Field, value: rule.Value, change: t})
	}
	return p, nil
}

func (p *JSONLineParser) Parse(line []byte) (Entry, bool, error) {
	line = []byte(strings.TrimSpace(string(line)))
	if len(line) == 0 || line[0] == '#' {
		return Entry{}, false, nil
	}

	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Entry{}, false, errors.Wrap(err, "json.Unmarshal failed")
	}
	if entry.Feature == "" {
		entry.Feature = p.feature
	}
	if entry.Feature == "" {
		return Entry{}, false, errors.New("feature is required")
	}
	if entry.Change == ChangeTypeUnknown && entry.Operation == "" {
		entry.Change = p.inferChange(entry.Data)
	}
	return entry, true, nil
}

// inferChange 按顺序取第一个满足的规则
func (p *JSONLineParser) inferChange(data map[string]any) ChangeType {
	for _, rule := range p.rules {
		if v, ok := data[rule.field]; ok && reflect.DeepEqual(v, rule.value) {
			return rule.change
		}
	}
	return p.defaultChange
}
