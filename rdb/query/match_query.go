package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// MatchQuery 子串匹配查询，CaseInsensitive 对应 ilike
type MatchQuery struct {
	Field           string `json:"field"`
	Value           string `json:"value"`
	CaseInsensitive bool   `json:"caseInsensitive,omitempty"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToES() map[string]any {
	return map[string]any{
		"wildcard": map[string]any{
			q.Field: map[string]any{
				"value":            "*" + escapeWildcard(q.Value) + "*",
				"case_insensitive": q.CaseInsensitive,
			},
		},
	}
}

func (q *MatchQuery) ToSQL() (string, []any, error) {
	if q.Field == "" {
		return "", nil, errors.New("match query field is empty")
	}
	pattern := "%" + escapeLike(q.Value) + "%"
	if q.CaseInsensitive {
		return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", q.Field), []any{strings.ToLower(pattern)}, nil
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '!'", q.Field), []any{pattern}, nil
}

func (q *MatchQuery) ToMongo() (map[string]any, error) {
	condition := map[string]any{
		"$regex": regexp.QuoteMeta(q.Value),
	}
	if q.CaseInsensitive {
		condition["$options"] = "i"
	}
	return map[string]any{
		q.Field: condition,
	}, nil
}

func (q *MatchQuery) Match(record map[string]any) bool {
	s, ok := record[q.Field].(string)
	if !ok {
		return false
	}
	if q.CaseInsensitive {
		return strings.Contains(strings.ToLower(s), strings.ToLower(q.Value))
	}
	return strings.Contains(s, q.Value)
}

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
