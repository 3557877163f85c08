package table

import (
	"fmt"
	"strings"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/rdb"
)

// 组合输入中的字段名
const (
	FieldIDs        = "ids"
	FieldData       = "data"
	FieldFilters    = "filters"
	FieldPagination = "pagination"
	FieldOrdering   = "ordering"
	FieldPage       = "page"
	FieldPageSize   = "pageSize"
)

var kindOfFieldType = map[rdb.FieldType]contract.Kind{
	rdb.FieldTypeString: contract.KindString,
	rdb.FieldTypeInt:    contract.KindInt,
	rdb.FieldTypeFloat:  contract.KindFloat,
	rdb.FieldTypeBool:   contract.KindBool,
	rdb.FieldTypeDate:   contract.KindTime,
	rdb.FieldTypeJSON:   contract.KindJSON,
}

// ColumnField 由列定义得到字段约束，必填列有默认值时视为可选
func ColumnField(field rdb.FieldDefinition) contract.Field {
	f := contract.Field{
		Name:     field.Name,
		Kind:     kindOfFieldType[field.Type],
		Required: field.Required && field.Default == nil && field.Generated == rdb.GeneratedNone,
		NotNull:  field.Required,
	}
	if field.Type == rdb.FieldTypeString && field.Size > 0 {
		f.Rules = fmt.Sprintf("max=%d", field.Size)
	}
	return f
}

// Columns 由列名得到字段约束，列不存在时返回配置错误
func (c *Config) Columns(name string, columns ...string) (*contract.Contract, error) {
	fields := make([]contract.Field, 0, len(columns))
	for _, column := range columns {
		field, ok := c.model.Field(column)
		if !ok {
			return nil, configErrorf("%s: contract %s references unknown column %s", c.Table(), name, column)
		}
		fields = append(fields, ColumnField(field))
	}
	return contract.New(name, fields...), nil
}

func (c *Config) mustColumns(name string, columns []string) *contract.Contract {
	// 列集合在配置时已经校验过
	out, err := c.Columns(name, columns...)
	if err != nil {
		panic(err)
	}
	return out
}

// InsertContract 新建记录时 data 的结构
func (c *Config) InsertContract() *contract.Contract {
	return c.mustColumns("insert", c.CreateFields())
}

// SelectContract 返回记录的结构
func (c *Config) SelectContract() *contract.Contract {
	return c.mustColumns("select", c.ReturnColumns()).Partial()
}

// UpdateContract 更新记录时 data 的结构，所有字段可选
func (c *Config) UpdateContract() *contract.Contract {
	return c.mustColumns("update", c.UpdateFields()).Partial()
}

// IdContract id 字段本身，全部必填
func (c *Config) IdContract() *contract.Contract {
	return c.mustColumns("ids", c.idFields).Required()
}

// BuildIdentifierSchema {ids: {idFields}}
func (c *Config) BuildIdentifierSchema() *contract.Contract {
	return contract.New("identifier", contract.Object(FieldIDs, c.IdContract(), true))
}

// BuildUserIdSchema {userIdField}，未配置租户字段时为空结构
func (c *Config) BuildUserIdSchema() *contract.Contract {
	if c.userIdField == "" {
		return contract.New("userId")
	}
	return c.mustColumns("userId", []string{c.userIdField}).Required()
}

// TenantQualified 在结构前加上租户字段
func (c *Config) TenantQualified(in *contract.Contract) *contract.Contract {
	return c.BuildUserIdSchema().Merge(in).Rename(in.Name())
}

// BuildCreateInputSchema {userId, data: {createFields}}
func (c *Config) BuildCreateInputSchema() *contract.Contract {
	return c.TenantQualified(contract.New("createInput",
		contract.Object(FieldData, c.InsertContract(), true),
	))
}

// BuildCreateManyInputSchema {userId, data: [{createFields}]}
func (c *Config) BuildCreateManyInputSchema() *contract.Contract {
	data := contract.ListOf(FieldData, c.InsertContract(), true)
	data.Rules = "min=1"
	return c.TenantQualified(contract.New("createManyInput", data))
}

// BuildUpdateInputSchema {userId, ids, data: partial(updateFields)}
func (c *Config) BuildUpdateInputSchema() *contract.Contract {
	return c.TenantQualified(contract.New("updateInput",
		contract.Object(FieldIDs, c.IdContract(), true),
		contract.Object(FieldData, c.UpdateContract(), true),
	))
}

// BuildPaginationSchema 超过上限的 pageSize 在查询时截断，这里不拒绝
func (c *Config) BuildPaginationSchema() *contract.Contract {
	return contract.New("pagination",
		contract.Field{Name: FieldPage, Kind: contract.KindInt, Rules: "min=1"},
		contract.Field{Name: FieldPageSize, Kind: contract.KindInt, Rules: "min=1"},
	)
}

// BuildFilterSchema 每个过滤条件一个可选字段，in/notIn 为列表
func (c *Config) BuildFilterSchema() *contract.Contract {
	fields := make([]contract.Field, 0, len(c.filters))
	for _, filter := range c.filters {
		column, _ := c.model.Field(filter.Column)
		field := ColumnField(column)
		field.Name = filter.Name
		field.Required = false
		field.NotNull = false
		if filter.Op == FilterLike || filter.Op == FilterILike {
			field.Rules = ""
		}
		if filter.Op == FilterIn || filter.Op == FilterNotIn {
			field = contract.Field{Name: filter.Name, Kind: contract.KindList, Elem: field.Kind}
		}
		fields = append(fields, field)
	}
	return contract.New("filters", fields...)
}

// BuildOrderingSchema [{field, desc}]，field 限定为允许排序的列
func (c *Config) BuildOrderingSchema() *contract.Contract {
	var rules string
	if len(c.ordering.Allowed) > 0 {
		rules = "oneof=" + strings.Join(c.ordering.Allowed, " ")
	}
	return contract.New("ordering",
		contract.Field{Name: "field", Kind: contract.KindString, Required: true, Rules: rules},
		contract.Field{Name: "desc", Kind: contract.KindBool},
	)
}

// BuildManyInputSchema {userId, filters, pagination, ordering}，ordering 仅供内部调用
func (c *Config) BuildManyInputSchema() *contract.Contract {
	fields := []contract.Field{}
	if len(c.filters) > 0 {
		fields = append(fields, contract.Object(FieldFilters, c.BuildFilterSchema(), false))
	}
	fields = append(fields, contract.Object(FieldPagination, c.BuildPaginationSchema(), false))
	ordering := contract.ListOf(FieldOrdering, c.BuildOrderingSchema(), false)
	ordering.Internal = true
	fields = append(fields, ordering)
	return c.TenantQualified(contract.New("manyInput", fields...))
}
