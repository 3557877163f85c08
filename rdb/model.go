package rdb

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TableModel 表模型定义
type TableModel struct {
	Table      string // 表名
	Fields     []FieldDefinition
	PrimaryKey []string          // 主键字段名列表，支持复合主键
	Indexes    []IndexDefinition // 普通索引
}

// FieldDefinition 字段定义
type FieldDefinition struct {
	Name      string
	Type      FieldType
	Required  bool
	Default   any
	Size      int // 字段长度，如 VARCHAR(255)
	Generated GeneratedKind
}

// FieldType 字段类型
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
	FieldTypeDate   FieldType = "date"
	FieldTypeJSON   FieldType = "json"
)

// GeneratedKind 由系统填充的列，不接受调用方写入
type GeneratedKind string

const (
	GeneratedNone       GeneratedKind = ""
	GeneratedID         GeneratedKind = "id"
	GeneratedCreateTime GeneratedKind = "createTime"
	GeneratedUpdateTime GeneratedKind = "updateTime"
)

// IndexDefinition 索引定义
type IndexDefinition struct {
	Name   string
	Fields []string
	Unique bool
}

// Validate 检查表名、字段名和主键
func (m *TableModel) Validate() error {
	if m == nil {
		return errors.Wrap(ErrInvalidModel, "model is nil")
	}
	if m.Table == "" {
		return errors.Wrap(ErrInvalidModel, "table name is empty")
	}
	if len(m.Fields) == 0 {
		return errors.Wrapf(ErrInvalidModel, "table %s has no fields", m.Table)
	}
	seen := make(map[string]bool, len(m.Fields))
	for _, field := range m.Fields {
		if field.Name == "" {
			return errors.Wrapf(ErrInvalidModel, "table %s has a field without name", m.Table)
		}
		if seen[field.Name] {
			return errors.Wrapf(ErrInvalidModel, "table %s has duplicate field %s", m.Table, field.Name)
		}
		seen[field.Name] = true
		switch field.Type {
		case FieldTypeString, FieldTypeInt, FieldTypeFloat, FieldTypeBool, FieldTypeDate, FieldTypeJSON:
		default:
			return errors.Wrapf(ErrInvalidModel, "field %s.%s has unknown type %q", m.Table, field.Name, field.Type)
		}
		switch field.Generated {
		case GeneratedNone, GeneratedID, GeneratedCreateTime, GeneratedUpdateTime:
		default:
			return errors.Wrapf(ErrInvalidModel, "field %s.%s has unknown generated kind %q", m.Table, field.Name, field.Generated)
		}
	}
	if len(m.PrimaryKey) == 0 {
		return errors.Wrapf(ErrInvalidModel, "table %s has no primary key", m.Table)
	}
	for _, pk := range m.PrimaryKey {
		if !seen[pk] {
			return errors.Wrapf(ErrInvalidModel, "primary key %s not found in table %s", pk, m.Table)
		}
	}
	for _, index := range m.Indexes {
		for _, name := range index.Fields {
			if !seen[name] {
				return errors.Wrapf(ErrInvalidModel, "index %s references unknown field %s", index.Name, name)
			}
		}
	}
	return nil
}

func (m *TableModel) Field(name string) (FieldDefinition, bool) {
	for _, field := range m.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

func (m *TableModel) HasField(name string) bool {
	_, ok := m.Field(name)
	return ok
}

// FieldNames 按定义顺序返回全部列名
func (m *TableModel) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, field := range m.Fields {
		names[i] = field.Name
	}
	return names
}

func (m *TableModel) IsPrimaryKey(name string) bool {
	for _, pk := range m.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// PrimaryKeyOf 提取记录的主键值，缺失主键时返回错误
func (m *TableModel) PrimaryKeyOf(record Record) ([]any, error) {
	values := make([]any, len(m.PrimaryKey))
	for i, pk := range m.PrimaryKey {
		v, ok := record[pk]
		if !ok || v == nil {
			return nil, errors.Errorf("record of table %s misses primary key %s", m.Table, pk)
		}
		values[i] = v
	}
	return values, nil
}

// KeyOf 将主键值拼接为字符串，用作 KV 存储的 key 和文档 ID
func (m *TableModel) KeyOf(record Record) (string, error) {
	values, err := m.PrimaryKeyOf(record)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ":"), nil
}

// Normalize 将各驱动返回的原始值转换为字段类型对应的 Go 类型
// string -> string, int -> int64, float -> float64, bool -> bool, date -> time.Time(UTC), json -> 解码后的值
func (m *TableModel) Normalize(record Record) Record {
	if record == nil {
		return nil
	}
	out := make(Record, len(record))
	for k, v := range record {
		field, ok := m.Field(k)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = normalizeValue(field.Type, v)
	}
	return out
}

type timeLike interface {
	Time() time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func normalizeValue(fieldType FieldType, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch fieldType {
	case FieldTypeString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case FieldTypeInt:
		if s, ok := v.(string); ok {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			return v
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			if f := rv.Float(); f == math.Trunc(f) {
				return int64(f)
			}
		}
	case FieldTypeFloat:
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
			return v
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			return rv.Float()
		}
	case FieldTypeBool:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		default:
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				return rv.Int() != 0
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				return rv.Uint() != 0
			case reflect.Float32, reflect.Float64:
				return rv.Float() != 0
			}
		}
	case FieldTypeDate:
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case timeLike:
			return t.Time().UTC()
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC()
				}
			}
		}
	case FieldTypeJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	}
	return v
}

// TableModelBuilder 表模型构建器
type TableModelBuilder struct{}

func NewTableModelBuilder() *TableModelBuilder {
	return &TableModelBuilder{}
}

type tableNamer interface {
	TableName() string
}

// FromStruct 从结构体构建 TableModel
// 支持的 tag 格式：
// - `rdb:"column_name,type=string,size=255,required,primary,index,unique,generated=id"`
// - `table:"table_name"` 用于指定表名，结构体实现 TableName() 方法时优先使用该方法
func (b *TableModelBuilder) FromStruct(v any) (*TableModel, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}
	rt := rv.Type()

	model := &TableModel{Table: b.tableName(v, rt)}

	indexes := map[string]*IndexDefinition{}
	var indexOrder []string
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		def, primary, fieldIndexes, err := b.parseFieldTag(field, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "parse field %s failed", field.Name)
		}
		model.Fields = append(model.Fields, def)
		if primary {
			model.PrimaryKey = append(model.PrimaryKey, def.Name)
		}
		for _, idx := range fieldIndexes {
			if existing, ok := indexes[idx.Name]; ok {
				existing.Fields = append(existing.Fields, def.Name)
				continue
			}
			idx.Fields = []string{def.Name}
			indexes[idx.Name] = &idx
			indexOrder = append(indexOrder, idx.Name)
		}
	}
	for _, name := range indexOrder {
		model.Indexes = append(model.Indexes, *indexes[name])
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// MustFromStruct 用于包级变量初始化，失败时 panic
func (b *TableModelBuilder) MustFromStruct(v any) *TableModel {
	model, err := b.FromStruct(v)
	if err != nil {
		panic(err)
	}
	return model
}

func (b *TableModelBuilder) tableName(v any, rt reflect.Type) string {
	if namer, ok := v.(tableNamer); ok {
		return namer.TableName()
	}
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("table"); name != "" {
			return name
		}
	}
	return strings.ToLower(rt.Name())
}

func (b *TableModelBuilder) parseFieldTag(field reflect.StructField, tag string) (FieldDefinition, bool, []IndexDefinition, error) {
	def := FieldDefinition{
		Name: field.Name,
		Type: inferFieldType(field.Type),
	}
	var primary bool
	var indexes []IndexDefinition

	if tag == "" {
		return def, primary, indexes, nil
	}

	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		def.Name = parts[0]
	}
	if !strings.Contains(parts[0], "=") {
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := strings.Cut(part, "="); ok {
			switch strings.TrimSpace(key) {
			case "type":
				def.Type = FieldType(value)
			case "size":
				size, err := strconv.Atoi(value)
				if err != nil {
					return def, false, nil, errors.Errorf("invalid size %q", value)
				}
				def.Size = size
			case "default":
				def.Default = parseDefaultValue(value, def.Type)
			case "generated":
				def.Generated = GeneratedKind(value)
			case "index":
				indexes = append(indexes, IndexDefinition{Name: value})
			case "unique":
				indexes = append(indexes, IndexDefinition{Name: value, Unique: true})
			default:
				return def, false, nil, errors.Errorf("unknown tag option %q", key)
			}
			continue
		}
		switch part {
		case "required", "not_null":
			def.Required = true
		case "primary", "pk":
			primary = true
		case "index":
			indexes = append(indexes, IndexDefinition{Name: "idx_" + def.Name})
		case "unique":
			indexes = append(indexes, IndexDefinition{Name: "uk_" + def.Name, Unique: true})
		default:
			return def, false, nil, errors.Errorf("unknown tag option %q", part)
		}
	}
	return def, primary, indexes, nil
}

var timeType = reflect.TypeOf(time.Time{})

// inferFieldType 从 Go 类型推断字段类型
func inferFieldType(t reflect.Type) FieldType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return FieldTypeDate
	}
	switch t.Kind() {
	case reflect.String:
		return FieldTypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FieldTypeInt
	case reflect.Float32, reflect.Float64:
		return FieldTypeFloat
	case reflect.Bool:
		return FieldTypeBool
	}
	return FieldTypeJSON
}

func parseDefaultValue(value string, fieldType FieldType) any {
	switch fieldType {
	case FieldTypeString:
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			return value[1 : len(value)-1]
		}
		return value
	case FieldTypeInt:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	case FieldTypeFloat:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case FieldTypeBool:
		return value == "true" || value == "1"
	}
	return value
}
