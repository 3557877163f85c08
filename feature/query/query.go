// Package query 由表配置生成按租户和主键定位记录的数据访问函数
package query

import (
	"context"
	"sort"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	rdbquery "github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
)

var (
	// ErrMissingTenantScope 租户隔离的表在调用时没有提供租户字段
	ErrMissingTenantScope = errors.New("missing tenant scope")
	// ErrMissingIdentifiers 单条记录操作没有提供 id
	ErrMissingIdentifiers = errors.New("missing identifiers")
)

type Pagination struct {
	Page     int
	PageSize int
}

// Input 服务层输入，UserID 由调用方从认证上下文中注入
type Input struct {
	UserID     string
	IDs        map[string]any
	Data       map[string]any
	Records    []map[string]any
	Filters    map[string]any
	Pagination *Pagination
	Ordering   []rdb.Order
}

// Selection 返回定位记录所需的部分
func (in *Input) Selection() Selection {
	if in == nil {
		return Selection{}
	}
	return Selection{IDs: in.IDs, UserID: in.UserID}
}

// Func 数据访问函数，没有记录时返回 nil
type Func func(ctx context.Context, input *Input) (any, error)

type Queries map[string]Func

func (q Queries) Names() []string {
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selection 定位单条记录的条件
type Selection struct {
	IDs    map[string]any
	UserID string
}

// AssembleIdentifiers 按顺序组合定位条件：租户字段、默认过滤条件、id
//
// id 中的配置 id 字段按配置顺序排在前面，其余列按名字排序。
// 任何一步失败都不会访问存储。
func AssembleIdentifiers(config *table.Config, sel Selection) (*rdbquery.BoolQuery, error) {
	q := &rdbquery.BoolQuery{}
	if err := appendScope(config, sel.UserID, q); err != nil {
		return nil, err
	}

	ids := map[string]any{}
	for k, v := range sel.IDs {
		if v != nil {
			ids[k] = v
		}
	}
	if len(ids) == 0 {
		return nil, errors.Wrapf(ErrMissingIdentifiers, "%s", config.Table())
	}

	for _, field := range config.IdFieldNames() {
		if v, ok := ids[field]; ok {
			q.Must = append(q.Must, rdbquery.Eq(field, v))
			delete(ids, field)
		}
	}
	rest := make([]string, 0, len(ids))
	for k := range ids {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		if !config.Model().HasField(k) {
			return nil, &contract.ValidationError{
				Contract: "identifier",
				Issues:   []contract.Issue{{Path: table.FieldIDs + "." + k, Message: "unknown column"}},
			}
		}
		q.Must = append(q.Must, rdbquery.Eq(k, ids[k]))
	}
	return q, nil
}

// appendScope 加入租户条件和默认过滤条件
func appendScope(config *table.Config, userID string, q *rdbquery.BoolQuery) error {
	if field := config.UserIdFieldName(); field != "" {
		if userID == "" {
			return errors.Wrapf(ErrMissingTenantScope, "%s.%s", config.Table(), field)
		}
		q.Must = append(q.Must, rdbquery.Eq(field, userID))
	}
	for _, predicate := range config.DefaultFilters() {
		q.Must = append(q.Must, rdbquery.Eq(predicate.Field, predicate.Value))
	}
	return nil
}

// requireIDs 标准单条记录操作要求提供全部 id 字段
func requireIDs(config *table.Config, ids map[string]any) error {
	for _, field := range config.IdFieldNames() {
		if v, ok := ids[field]; !ok || v == nil {
			return errors.Wrapf(ErrMissingIdentifiers, "%s.%s", config.Table(), field)
		}
	}
	return nil
}

func validationError(name string, path string, message string) error {
	return &contract.ValidationError{
		Contract: name,
		Issues:   []contract.Issue{{Path: path, Message: message}},
	}
}
