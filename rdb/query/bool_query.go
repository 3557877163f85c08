package query

import (
	"strings"
)

// BoolQuery 布尔查询，Must 中的条件按顺序渲染
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	Should  []Query `json:"should,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func toES(queries []Query) []any {
	out := make([]any, len(queries))
	for i, query := range queries {
		out[i] = query.ToES()
	}
	return out
}

func (q *BoolQuery) ToES() map[string]any {
	boolQuery := make(map[string]any)
	if len(q.Must) > 0 {
		boolQuery["must"] = toES(q.Must)
	}
	if len(q.Should) > 0 {
		boolQuery["should"] = toES(q.Should)
		boolQuery["minimum_should_match"] = 1
	}
	if len(q.MustNot) > 0 {
		boolQuery["must_not"] = toES(q.MustNot)
	}
	return map[string]any{"bool": boolQuery}
}

func toSQL(queries []Query, wrap string) ([]string, []any, error) {
	conditions := make([]string, 0, len(queries))
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL()
		if err != nil {
			return nil, nil, err
		}
		if wrap != "" {
			sql = wrap + " (" + sql + ")"
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}
	return conditions, args, nil
}

func (q *BoolQuery) ToSQL() (string, []any, error) {
	var conditions []string
	var args []any

	must, mustArgs, err := toSQL(q.Must, "")
	if err != nil {
		return "", nil, err
	}
	if len(must) > 0 {
		conditions = append(conditions, "("+strings.Join(must, " AND ")+")")
		args = append(args, mustArgs...)
	}

	should, shouldArgs, err := toSQL(q.Should, "")
	if err != nil {
		return "", nil, err
	}
	if len(should) > 0 {
		conditions = append(conditions, "("+strings.Join(should, " OR ")+")")
		args = append(args, shouldArgs...)
	}

	mustNot, mustNotArgs, err := toSQL(q.MustNot, "NOT")
	if err != nil {
		return "", nil, err
	}
	if len(mustNot) > 0 {
		conditions = append(conditions, "("+strings.Join(mustNot, " AND ")+")")
		args = append(args, mustNotArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}

func toMongo(queries []Query) ([]any, error) {
	out := make([]any, 0, len(queries))
	for _, query := range queries {
		condition, err := query.ToMongo()
		if err != nil {
			return nil, err
		}
		out = append(out, condition)
	}
	return out, nil
}

func (q *BoolQuery) ToMongo() (map[string]any, error) {
	andConditions, err := toMongo(q.Must)
	if err != nil {
		return nil, err
	}

	if len(q.Should) > 0 {
		orConditions, err := toMongo(q.Should)
		if err != nil {
			return nil, err
		}
		andConditions = append(andConditions, map[string]any{"$or": orConditions})
	}

	if len(q.MustNot) > 0 {
		norConditions, err := toMongo(q.MustNot)
		if err != nil {
			return nil, err
		}
		andConditions = append(andConditions, map[string]any{"$nor": norConditions})
	}

	switch len(andConditions) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return andConditions[0].(map[string]any), nil
	}
	return map[string]any{"$and": andConditions}, nil
}

func (q *BoolQuery) Match(record map[string]any) bool {
	for _, query := range q.Must {
		if !query.Match(record) {
			return false
		}
	}
	if len(q.Should) > 0 {
		matched := false
		for _, query := range q.Should {
			if query.Match(record) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, query := range q.MustNot {
		if query.Match(record) {
			return false
		}
	}
	return true
}
