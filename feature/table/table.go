package table

import (
	"fmt"

	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
)

// ErrConfiguration 表配置或派生结构不合法，属于启动期错误
var ErrConfiguration = errors.New("invalid feature configuration")

// 标准操作名
const (
	OperationCreate     = "create"
	OperationCreateMany = "createMany"
	OperationGetById    = "getById"
	OperationUpdateById = "updateById"
	OperationRemoveById = "removeById"
	OperationGetMany    = "getMany"
)

// StandardOperations 按注册顺序排列的标准操作
var StandardOperations = []string{
	OperationCreate,
	OperationCreateMany,
	OperationGetById,
	OperationUpdateById,
	OperationRemoveById,
	OperationGetMany,
}

func IsStandardOperation(name string) bool {
	for _, op := range StandardOperations {
		if op == name {
			return true
		}
	}
	return false
}

// FilterOp 列表查询过滤条件的比较方式
type FilterOp string

const (
	FilterEq    FilterOp = "eq"
	FilterLike  FilterOp = "like"
	FilterILike FilterOp = "ilike"
	FilterIn    FilterOp = "in"
	FilterNotIn FilterOp = "notIn"
	FilterGte   FilterOp = "gte"
	FilterLte   FilterOp = "lte"
)

// Filter 列表查询可接受的过滤条件，Name 为输入中的键，Column 为表中的列
type Filter struct {
	Name   string
	Column string
	Op     FilterOp
}

// Predicate 等值条件
type Predicate struct {
	Field string
	Value any
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s=%v", p.Field, p.Value)
}

type Ordering struct {
	Allowed []string
	Default []rdb.Order
}

type Pagination struct {
	Page        int
	PageSize    int
	MaxPageSize int
}

// SoftDelete 逻辑删除时写入 Column=Value，TimestampColumn 非空时同时写入删除时间
type SoftDelete struct {
	Column          string
	Value           any
	TimestampColumn string
}

func configErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}
