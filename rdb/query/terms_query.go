package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// TermsQuery 集合匹配查询，Not 为 true 时表示不在集合中
type TermsQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
	Not    bool   `json:"not,omitempty"`
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerms
}

func (q *TermsQuery) ToES() map[string]any {
	terms := map[string]any{
		"terms": map[string]any{
			q.Field: q.Values,
		},
	}
	if !q.Not {
		return terms
	}
	return map[string]any{
		"bool": map[string]any{
			"must_not": []any{terms},
		},
	}
}

func (q *TermsQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, errors.New("terms query field is empty")
	}
	if len(q.Values) == 0 {
		if q.Not {
			return "1=1", nil, nil
		}
		return "1=0", nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.Values)), ", ")
	op := "IN"
	if q.Not {
		op = "NOT IN"
	}
	args := make([]any, len(q.Values))
	copy(args, q.Values)
	return fmt.Sprintf("%s %s (%s)", q.Field, op, placeholders), args, nil
}

func (q *TermsQuery) ToMongo() (map[string]any, error) {
	op := "$in"
	if q.Not {
		op = "$nin"
	}
	values := q.Values
	if values == nil {
		values = []any{}
	}
	return map[string]any{
		q.Field: map[string]any{op: values},
	}, nil
}

func (q *TermsQuery) Match(record map[string]any) bool {
	v := record[q.Field]
	found := false
	for _, value := range q.Values {
		if Equal(v, value) {
			found = true
			break
		}
	}
	return found != q.Not
}
