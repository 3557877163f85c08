package table

import (
	"github.com/hatlonely/featurex/rdb"
)

func (c *Config) checkColumns(what string, columns []string) error {
	if len(columns) == 0 {
		return configErrorf("%s: %s needs at least one column", c.Table(), what)
	}
	seen := map[string]bool{}
	for _, column := range columns {
		if !c.model.HasField(column) {
			return configErrorf("%s: %s references unknown column %s", c.Table(), what, column)
		}
		if seen[column] {
			return configErrorf("%s: %s lists column %s twice", c.Table(), what, column)
		}
		seen[column] = true
	}
	return nil
}

// checkColumnSets 校验各列集合之间的约束
func (c *Config) checkColumnSets() error {
	createFields := c.CreateFields()
	for _, name := range createFields {
		field, _ := c.model.Field(name)
		if field.Generated != rdb.GeneratedNone {
			return configErrorf("%s: insert field %s is generated by %s", c.Table(), name, field.Generated)
		}
		if name == c.userIdField {
			return configErrorf("%s: insert field %s is the tenant column", c.Table(), name)
		}
	}
	managed := c.managedColumns()
	for _, name := range createFields {
		if contains(managed, name) {
			return configErrorf("%s: insert field %s is a soft delete or default filter column", c.Table(), name)
		}
	}
	for _, name := range c.UpdateFields() {
		if contains(managed, name) {
			return configErrorf("%s: update field %s is a soft delete or default filter column", c.Table(), name)
		}
		if !contains(createFields, name) {
			return configErrorf("%s: update field %s is not an insert field", c.Table(), name)
		}
		if contains(c.idFields, name) {
			return configErrorf("%s: update field %s is an id field", c.Table(), name)
		}
	}
	returnColumns := c.ReturnColumns()
	for _, id := range c.idFields {
		if !contains(returnColumns, id) {
			return configErrorf("%s: return columns miss id field %s", c.Table(), id)
		}
	}
	return nil
}

func (c *Config) RestrictInsertFields(columns ...string) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("insert fields", columns); err != nil {
			return err
		}
		out.createFields = append([]string(nil), columns...)
		out.createRestricted = true
		return out.checkColumnSets()
	})
}

func (c *Config) RestrictUpdateFields(columns ...string) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("update fields", columns); err != nil {
			return err
		}
		out.updateFields = append([]string(nil), columns...)
		out.updateRestricted = true
		return out.checkColumnSets()
	})
}

func (c *Config) RestrictReturnColumns(columns ...string) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("return columns", columns); err != nil {
			return err
		}
		out.returnColumns = append([]string(nil), columns...)
		out.returnRestricted = true
		return out.checkColumnSets()
	})
}

// SetUserIdField 声明租户字段，每条读写都会带上该字段的等值条件
func (c *Config) SetUserIdField(column string) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("user id field", []string{column}); err != nil {
			return err
		}
		if out.userIdField != "" && out.userIdField != column {
			return configErrorf("%s: user id field already set to %s", out.Table(), out.userIdField)
		}
		if contains(out.idFields, column) {
			return configErrorf("%s: user id field %s is an id field", out.Table(), column)
		}
		if out.createRestricted && contains(out.createFields, column) {
			return configErrorf("%s: user id field %s is an insert field", out.Table(), column)
		}
		if out.softDelete != nil && out.softDelete.Column == column {
			return configErrorf("%s: user id field %s is the soft delete column", out.Table(), column)
		}
		out.userIdField = column
		return out.checkColumnSets()
	})
}

func (c *Config) SetIdFields(columns ...string) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("id fields", columns); err != nil {
			return err
		}
		if contains(columns, out.userIdField) {
			return configErrorf("%s: id fields contain the user id field %s", out.Table(), out.userIdField)
		}
		out.idFields = append([]string(nil), columns...)
		return out.checkColumnSets()
	})
}

// SetDefaultFilters 追加始终生效的等值条件，如未被逻辑删除
func (c *Config) SetDefaultFilters(predicates ...Predicate) *Config {
	return c.apply(func(out *Config) error {
		for _, predicate := range predicates {
			if !out.model.HasField(predicate.Field) {
				return configErrorf("%s: default filter references unknown column %s", out.Table(), predicate.Field)
			}
			if predicate.Field == out.userIdField {
				return configErrorf("%s: default filter on the user id field %s", out.Table(), predicate.Field)
			}
		}
		out.defaultFilters = append(out.defaultFilters, predicates...)
		return out.checkColumnSets()
	})
}

// SetFilters 声明列表查询可接受的过滤条件
func (c *Config) SetFilters(filters ...Filter) *Config {
	return c.apply(func(out *Config) error {
		for _, filter := range filters {
			if filter.Name == "" {
				return configErrorf("%s: filter without name", out.Table())
			}
			if _, ok := out.Filter(filter.Name); ok {
				return configErrorf("%s: duplicate filter %s", out.Table(), filter.Name)
			}
			if !out.model.HasField(filter.Column) {
				return configErrorf("%s: filter %s references unknown column %s", out.Table(), filter.Name, filter.Column)
			}
			if filter.Column == out.userIdField {
				return configErrorf("%s: filter %s on the user id field", out.Table(), filter.Name)
			}
			switch filter.Op {
			case FilterEq, FilterLike, FilterILike, FilterIn, FilterNotIn, FilterGte, FilterLte:
			default:
				return configErrorf("%s: filter %s has unknown op %q", out.Table(), filter.Name, filter.Op)
			}
			field, _ := out.model.Field(filter.Column)
			if (filter.Op == FilterLike || filter.Op == FilterILike) && field.Type != rdb.FieldTypeString {
				return configErrorf("%s: filter %s uses %s on non-string column %s", out.Table(), filter.Name, filter.Op, filter.Column)
			}
			out.filters = append(out.filters, filter)
		}
		return nil
	})
}

// SetOrdering 声明可排序的列和默认排序
func (c *Config) SetOrdering(allowed []string, defaults ...rdb.Order) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("ordering", allowed); err != nil {
			return err
		}
		for _, order := range defaults {
			if !contains(allowed, order.Field) {
				return configErrorf("%s: default ordering %s is not allowed", out.Table(), order.Field)
			}
		}
		out.ordering = Ordering{
			Allowed: append([]string(nil), allowed...),
			Default: append([]rdb.Order(nil), defaults...),
		}
		return nil
	})
}

func (c *Config) SetPagination(pageSize int, maxPageSize int) *Config {
	return c.apply(func(out *Config) error {
		if pageSize < 1 || maxPageSize < pageSize {
			return configErrorf("%s: invalid pagination %d/%d", out.Table(), pageSize, maxPageSize)
		}
		out.pagination = Pagination{Page: 1, PageSize: pageSize, MaxPageSize: maxPageSize}
		return nil
	})
}

// SetSoftDelete 配置逻辑删除，removeById 将 Column 置为 Value 而不是删除记录
func (c *Config) SetSoftDelete(softDelete SoftDelete) *Config {
	return c.apply(func(out *Config) error {
		if err := out.checkColumns("soft delete", []string{softDelete.Column}); err != nil {
			return err
		}
		if contains(out.idFields, softDelete.Column) || softDelete.Column == out.userIdField {
			return configErrorf("%s: soft delete column %s is an id or user id field", out.Table(), softDelete.Column)
		}
		if softDelete.Value == nil {
			return configErrorf("%s: soft delete column %s needs a removed value", out.Table(), softDelete.Column)
		}
		if softDelete.TimestampColumn != "" {
			field, ok := out.model.Field(softDelete.TimestampColumn)
			if !ok || field.Type != rdb.FieldTypeDate {
				return configErrorf("%s: soft delete timestamp column %s must be a date column", out.Table(), softDelete.TimestampColumn)
			}
		}
		out.softDelete = &softDelete
		return out.checkColumnSets()
	})
}
