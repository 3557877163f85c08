package rdb

import (
	"context"
	"sort"

	"github.com/hatlonely/featurex/rdb/query"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidModel = errors.New("invalid table model")
)

// Record 一行数据，key 为列名
type Record map[string]any

// Project 只保留 columns 中的列，记录中不存在的列以 nil 补齐
func (r Record) Project(columns []string) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(columns))
	for _, column := range columns {
		out[column] = r[column]
	}
	return out
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order 排序字段
type Order struct {
	Field string
	Desc  bool
}

// QueryOptions 查询选项
type QueryOptions struct {
	Limit   int
	Offset  int
	OrderBy []Order
}

type QueryOption func(*QueryOptions)

func WithLimit(limit int) QueryOption {
	return func(o *QueryOptions) {
		o.Limit = limit
	}
}

func WithOffset(offset int) QueryOption {
	return func(o *QueryOptions) {
		o.Offset = offset
	}
}

func WithOrderBy(field string, desc bool) QueryOption {
	return func(o *QueryOptions) {
		o.OrderBy = append(o.OrderBy, Order{Field: field, Desc: desc})
	}
}

func NewQueryOptions(opts ...QueryOption) *QueryOptions {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// InsertOptions 插入选项
type InsertOptions struct {
	IgnoreConflict bool
}

type InsertOption func(*InsertOptions)

// WithIgnoreConflict 主键冲突时跳过该记录
func WithIgnoreConflict() InsertOption {
	return func(o *InsertOptions) {
		o.IgnoreConflict = true
	}
}

func NewInsertOptions(opts ...InsertOption) *InsertOptions {
	options := &InsertOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Driver 存储驱动，所有操作以 TableModel 描述表结构，以 query.Query 描述过滤条件
type Driver interface {
	// Migrate 表不存在时创建表和索引，不修改已有表
	Migrate(ctx context.Context, model *TableModel) error

	// Insert 批量插入记录，主键冲突时返回 ErrDuplicateKey
	Insert(ctx context.Context, model *TableModel, records []Record, opts ...InsertOption) error

	// Find 查询满足条件的记录
	Find(ctx context.Context, model *TableModel, q query.Query, opts ...QueryOption) ([]Record, error)

	// Update 更新满足条件的记录，返回受影响的行数
	Update(ctx context.Context, model *TableModel, q query.Query, values Record) (int64, error)

	Close() error
}

// NewDriverWithOptions 通过 ref 构造已注册的驱动
func NewDriverWithOptions(options *ref.TypeOptions) (Driver, error) {
	if options == nil {
		return nil, errors.New("driver options is nil")
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	driver, ok := obj.(Driver)
	if !ok {
		return nil, errors.Errorf("%T does not implement Driver interface", obj)
	}
	return driver, nil
}

// ApplyQueryOptions 在内存中对记录排序并分页，供不支持服务端排序的驱动使用
// 空值排在最前，无法比较的值保持原有顺序
func ApplyQueryOptions(records []Record, options *QueryOptions) []Record {
	if options == nil {
		return records
	}
	if len(options.OrderBy) > 0 {
		sort.SliceStable(records, func(i, j int) bool {
			for _, order := range options.OrderBy {
				c := compareValues(records[i][order.Field], records[j][order.Field])
				if c == 0 {
					continue
				}
				if order.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if options.Offset > 0 {
		if options.Offset >= len(records) {
			return []Record{}
		}
		records = records[options.Offset:]
	}
	if options.Limit > 0 && options.Limit < len(records) {
		records = records[:options.Limit]
	}
	return records
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := query.Compare(a, b); ok {
		return c
	}
	return 0
}
