package query

import (
	"fmt"

	"github.com/pkg/errors"
)

// TermQuery 精确匹配查询
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToES() map[string]any {
	return map[string]any{
		"term": map[string]any{
			q.Field: q.Value,
		},
	}
}

func (q *TermQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, errors.New("term query field is empty")
	}
	if q.Value == nil {
		return fmt.Sprintf("%s IS NULL", q.Field), nil, nil
	}
	return fmt.Sprintf("%s = ?", q.Field), []any{q.Value}, nil
}

func (q *TermQuery) ToMongo() (map[string]any, error) {
	return map[string]any{
		q.Field: q.Value,
	}, nil
}

func (q *TermQuery) Match(record map[string]any) bool {
	v, ok := record[q.Field]
	if !ok || v == nil {
		return q.Value == nil
	}
	return Equal(v, q.Value)
}
