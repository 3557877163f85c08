package query

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	rdbquery "github.com/hatlonely/featurex/rdb/query"
)

// getMany 租户条件、默认过滤条件和声明的过滤条件按顺序组合，结果分页并排序
func (b *Builder) getMany(ctx context.Context, input *Input) (any, error) {
	q := &rdbquery.BoolQuery{}
	if err := appendScope(b.config, input.UserID, q); err != nil {
		b.logger.WarnContext(ctx, "missing tenant scope", "operation", table.OperationGetMany)
		return nil, err
	}

	var issues []contract.Issue
	filters, filterIssues := b.filterQueries(input.Filters)
	issues = append(issues, filterIssues...)
	q.Must = append(q.Must, filters...)

	orderBy, orderIssues := b.resolveOrdering(input.Ordering)
	issues = append(issues, orderIssues...)

	page, pageSize, pageIssues := b.resolvePagination(input.Pagination)
	issues = append(issues, pageIssues...)

	if len(issues) > 0 {
		return nil, &contract.ValidationError{Contract: "getMany", Issues: issues}
	}

	opts := []rdb.QueryOption{rdb.WithOffset((page - 1) * pageSize), rdb.WithLimit(pageSize)}
	for _, order := range orderBy {
		opts = append(opts, rdb.WithOrderBy(order.Field, order.Desc))
	}
	rows, err := b.table.SelectMany(ctx, q, opts...)
	if err != nil {
		return nil, err
	}
	return b.projectAll(rows), nil
}

func (b *Builder) filterQueries(input map[string]any) ([]rdbquery.Query, []contract.Issue) {
	var issues []contract.Issue
	unknown := make([]string, 0)
	for name := range input {
		if _, ok := b.config.Filter(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		issues = append(issues, contract.Issue{Path: table.FieldFilters + "." + name, Message: "unknown filter"})
	}

	var queries []rdbquery.Query
	for _, filter := range b.config.Filters() {
		v, ok := input[filter.Name]
		if !ok || v == nil {
			continue
		}
		path := table.FieldFilters + "." + filter.Name
		switch filter.Op {
		case table.FilterEq:
			queries = append(queries, rdbquery.Eq(filter.Column, v))
		case table.FilterLike, table.FilterILike:
			s, ok := v.(string)
			if !ok {
				issues = append(issues, contract.Issue{Path: path, Message: fmt.Sprintf("expected string, got %T", v)})
				continue
			}
			queries = append(queries, &rdbquery.MatchQuery{Field: filter.Column, Value: s, CaseInsensitive: filter.Op == table.FilterILike})
		case table.FilterIn, table.FilterNotIn:
			values, ok := toList(v)
			if !ok || len(values) == 0 {
				issues = append(issues, contract.Issue{Path: path, Message: "expected non-empty list"})
				continue
			}
			queries = append(queries, &rdbquery.TermsQuery{Field: filter.Column, Values: values, Not: filter.Op == table.FilterNotIn})
		case table.FilterGte:
			queries = append(queries, &rdbquery.RangeQuery{Field: filter.Column, Gte: v})
		case table.FilterLte:
			queries = append(queries, &rdbquery.RangeQuery{Field: filter.Column, Lte: v})
		}
	}
	return queries, issues
}

func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// resolveOrdering 输入排序必须在允许的列中，未指定时使用默认排序
func (b *Builder) resolveOrdering(orders []rdb.Order) ([]rdb.Order, []contract.Issue) {
	if len(orders) == 0 {
		if b.options.defaultOrdering != nil {
			return b.options.defaultOrdering, nil
		}
		return b.config.Ordering().Default, nil
	}

	allowed := b.config.Ordering().Allowed
	var issues []contract.Issue
	for i, order := range orders {
		ok := b.config.Model().HasField(order.Field)
		if len(allowed) > 0 {
			ok = contains(allowed, order.Field)
		}
		if !ok {
			issues = append(issues, contract.Issue{
				Path:    fmt.Sprintf("%s[%d].field", table.FieldOrdering, i),
				Message: fmt.Sprintf("ordering by %q is not allowed", order.Field),
			})
		}
	}
	return orders, issues
}

// resolvePagination 未指定时使用配置的默认值，页大小不超过配置的上限
func (b *Builder) resolvePagination(in *Pagination) (int, int, []contract.Issue) {
	defaults := b.config.Pagination()
	page, pageSize := defaults.Page, defaults.PageSize
	if in != nil {
		if in.Page != 0 {
			page = in.Page
		}
		if in.PageSize != 0 {
			pageSize = in.PageSize
		}
	}

	var issues []contract.Issue
	if page < 1 {
		issues = append(issues, contract.Issue{Path: table.FieldPagination + "." + table.FieldPage, Message: "must be at least 1"})
	}
	if pageSize < 1 {
		issues = append(issues, contract.Issue{Path: table.FieldPagination + "." + table.FieldPageSize, Message: "must be at least 1"})
	}
	if pageSize > defaults.MaxPageSize {
		pageSize = defaults.MaxPageSize
	}
	// offset 不能溢出
	if pageSize >= 1 && page > math.MaxInt/pageSize {
		issues = append(issues, contract.Issue{Path: table.FieldPagination + "." + table.FieldPage, Message: "out of range"})
	}
	return page, pageSize, issues
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}

