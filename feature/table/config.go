package table

import (
	"github.com/hatlonely/featurex/rdb"
)

// Config 单张表的特性配置
//
// 所有配置方法返回新的 Config，原值不变。第一次配置错误会被保留，
// 之后的配置调用直接返回带错误的副本，由 Err 或下游 Builder 统一报告。
type Config struct {
	model *rdb.TableModel

	idFields    []string
	userIdField string

	createFields     []string
	createRestricted bool
	updateFields     []string
	updateRestricted bool
	returnColumns    []string
	returnRestricted bool

	filters        []Filter
	ordering       Ordering
	pagination     Pagination
	defaultFilters []Predicate
	softDelete     *SoftDelete

	err error
}

// New 以表结构创建默认配置，主键即 id 字段，分页默认第 1 页每页 10 条、最多 100 条
func New(model *rdb.TableModel) *Config {
	c := &Config{
		model:      model,
		pagination: Pagination{Page: 1, PageSize: 10, MaxPageSize: 100},
	}
	if err := model.Validate(); err != nil {
		c.err = configErrorf("table model: %v", err)
		return c
	}
	c.idFields = append([]string(nil), model.PrimaryKey...)
	return c
}

func (c *Config) clone() *Config {
	out := *c
	out.idFields = append([]string(nil), c.idFields...)
	out.createFields = append([]string(nil), c.createFields...)
	out.updateFields = append([]string(nil), c.updateFields...)
	out.returnColumns = append([]string(nil), c.returnColumns...)
	out.filters = append([]Filter(nil), c.filters...)
	out.ordering = Ordering{
		Allowed: append([]string(nil), c.ordering.Allowed...),
		Default: append([]rdb.Order(nil), c.ordering.Default...),
	}
	out.defaultFilters = append([]Predicate(nil), c.defaultFilters...)
	if c.softDelete != nil {
		softDelete := *c.softDelete
		out.softDelete = &softDelete
	}
	return &out
}

// apply 在副本上执行配置，出错时返回只携带错误的副本
func (c *Config) apply(fn func(*Config) error) *Config {
	if c.err != nil {
		return c
	}
	out := c.clone()
	if err := fn(out); err != nil {
		failed := c.clone()
		failed.err = err
		return failed
	}
	return out
}

func (c *Config) Err() error {
	return c.err
}

func (c *Config) Model() *rdb.TableModel {
	return c.model
}

func (c *Config) Table() string {
	if c.model == nil {
		return ""
	}
	return c.model.Table
}

func (c *Config) IdFieldNames() []string {
	return append([]string(nil), c.idFields...)
}

// UserIdFieldName 租户字段，未配置时为空字符串
func (c *Config) UserIdFieldName() string {
	return c.userIdField
}

func (c *Config) IsTenantScoped() bool {
	return c.userIdField != ""
}

// CreateFields 未限制时为除租户字段、逻辑删除列和默认条件列外所有非系统生成的列
func (c *Config) CreateFields() []string {
	if c.createRestricted {
		return append([]string(nil), c.createFields...)
	}
	managed := c.managedColumns()
	var fields []string
	for _, field := range c.model.Fields {
		if field.Generated == rdb.GeneratedNone && field.Name != c.userIdField && !contains(managed, field.Name) {
			fields = append(fields, field.Name)
		}
	}
	return fields
}

// managedColumns 由框架写入的列，调用方不能新建或修改
func (c *Config) managedColumns() []string {
	var columns []string
	if c.softDelete != nil {
		columns = append(columns, c.softDelete.Column)
		if c.softDelete.TimestampColumn != "" {
			columns = append(columns, c.softDelete.TimestampColumn)
		}
	}
	for _, predicate := range c.defaultFilters {
		columns = append(columns, predicate.Field)
	}
	return columns
}

// UpdateFields 未限制时为 CreateFields 去掉 id 字段
func (c *Config) UpdateFields() []string {
	if c.updateRestricted {
		return append([]string(nil), c.updateFields...)
	}
	var fields []string
	for _, name := range c.CreateFields() {
		if !contains(c.idFields, name) {
			fields = append(fields, name)
		}
	}
	return fields
}

// ReturnColumns 未限制时为全部列
func (c *Config) ReturnColumns() []string {
	if c.returnRestricted {
		return append([]string(nil), c.returnColumns...)
	}
	return c.model.FieldNames()
}

func (c *Config) Filters() []Filter {
	return append([]Filter(nil), c.filters...)
}

func (c *Config) Filter(name string) (Filter, bool) {
	for _, filter := range c.filters {
		if filter.Name == name {
			return filter, true
		}
	}
	return Filter{}, false
}

func (c *Config) Ordering() Ordering {
	return Ordering{
		Allowed: append([]string(nil), c.ordering.Allowed...),
		Default: append([]rdb.Order(nil), c.ordering.Default...),
	}
}

func (c *Config) Pagination() Pagination {
	return c.pagination
}

func (c *Config) DefaultFilters() []Predicate {
	return append([]Predicate(nil), c.defaultFilters...)
}

// SoftDelete 未配置逻辑删除时返回 nil
func (c *Config) SoftDelete() *SoftDelete {
	if c.softDelete == nil {
		return nil
	}
	softDelete := *c.softDelete
	return &softDelete
}

// GeneratedColumn 返回指定生成方式的列名
func (c *Config) GeneratedColumn(kind rdb.GeneratedKind) (string, bool) {
	for _, field := range c.model.Fields {
		if field.Generated == kind {
			return field.Name, true
		}
	}
	return "", false
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
