package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RangeQuery 范围查询，未设置的边界不参与比较
type RangeQuery struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

type bound struct {
	op    string
	value any
}

func (q *RangeQuery) bounds() []bound {
	var bounds []bound
	for _, b := range []bound{{"gt", q.Gt}, {"gte", q.Gte}, {"lt", q.Lt}, {"lte", q.Lte}} {
		if b.value != nil {
			bounds = append(bounds, b)
		}
	}
	return bounds
}

func (q *RangeQuery) ToES() map[string]any {
	rangeQuery := make(map[string]any)
	for _, b := range q.bounds() {
		rangeQuery[b.op] = b.value
	}
	return map[string]any{
		"range": map[string]any{
			q.Field: rangeQuery,
		},
	}
}

var sqlOperators = map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}

func (q *RangeQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, errors.New("range query field is empty")
	}
	var conditions []string
	var args []any
	for _, b := range q.bounds() {
		conditions = append(conditions, fmt.Sprintf("%s %s ?", q.Field, sqlOperators[b.op]))
		args = append(args, b.value)
	}
	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}

func (q *RangeQuery) ToMongo() (map[string]any, error) {
	condition := make(map[string]any)
	for _, b := range q.bounds() {
		condition["$"+b.op] = b.value
	}
	return map[string]any{
		q.Field: condition,
	}, nil
}

func (q *RangeQuery) Match(record map[string]any) bool {
	v, ok := record[q.Field]
	if !ok || v == nil {
		return false
	}
	for _, b := range q.bounds() {
		c, ok := Compare(v, b.value)
		if !ok {
			return false
		}
		switch b.op {
		case "gt":
			ok = c > 0
		case "gte":
			ok = c >= 0
		case "lt":
			ok = c < 0
		case "lte":
			ok = c <= 0
		}
		if !ok {
			return false
		}
	}
	return true
}
