package query

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool  QueryType = "bool"
	QueryTypeTerm  QueryType = "term"
	QueryTypeTerms QueryType = "terms"
	QueryTypeMatch QueryType = "match"
	QueryTypeRange QueryType = "range"
)

// Query 查询条件，可以渲染为不同存储后端的查询语句，也可以直接在内存中匹配记录
type Query interface {
	Type() QueryType
	ToES() map[string]any
	ToSQL() (string, []any, error)
	ToMongo() (map[string]any, error)
	Match(record map[string]any) bool
}

// And 将多个条件按顺序组合为 BoolQuery{Must}
func And(queries ...Query) *BoolQuery {
	return &BoolQuery{Must: queries}
}

// Eq 构造等值条件
func Eq(field string, value any) *TermQuery {
	return &TermQuery{Field: field, Value: value}
}
