package query

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTermQuery(t *testing.T) {
	Convey("TermQuery", t, func() {
		q := Eq("userId", "U1")
		So(q.Type(), ShouldEqual, QueryTypeTerm)

		Convey("ToSQL", func() {
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "userId = ?")
			So(args, ShouldResemble, []any{"U1"})

			sql, args, err = Eq("deletedAt", nil).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "deletedAt IS NULL")
			So(args, ShouldBeEmpty)

			_, _, err = Eq("", 1).ToSQL()
			So(err, ShouldNotBeNil)
		})

		Convey("ToES", func() {
			So(q.ToES(), ShouldResemble, map[string]any{"term": map[string]any{"userId": "U1"}})
		})

		Convey("ToMongo", func() {
			m, err := q.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"userId": "U1"})
		})

		Convey("Match", func() {
			So(q.Match(map[string]any{"userId": "U1"}), ShouldBeTrue)
			So(q.Match(map[string]any{"userId": "U2"}), ShouldBeFalse)
			So(q.Match(map[string]any{}), ShouldBeFalse)
			So(Eq("count", 3).Match(map[string]any{"count": int64(3)}), ShouldBeTrue)
			So(Eq("count", 3).Match(map[string]any{"count": 3.0}), ShouldBeTrue)
			So(Eq("isDeleted", false).Match(map[string]any{"isDeleted": false}), ShouldBeTrue)
			So(Eq("deletedAt", nil).Match(map[string]any{}), ShouldBeTrue)
		})
	})
}

func TestTermsQuery(t *testing.T) {
	Convey("TermsQuery", t, func() {
		q := &TermsQuery{Field: "provider", Values: []any{"plaid", "manual"}}

		Convey("ToSQL", func() {
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "provider IN (?, ?)")
			So(args, ShouldResemble, []any{"plaid", "manual"})

			sql, _, _ = (&TermsQuery{Field: "provider", Values: []any{"x"}, Not: true}).ToSQL()
			So(sql, ShouldEqual, "provider NOT IN (?)")

			sql, _, _ = (&TermsQuery{Field: "provider"}).ToSQL()
			So(sql, ShouldEqual, "1=0")
			sql, _, _ = (&TermsQuery{Field: "provider", Not: true}).ToSQL()
			So(sql, ShouldEqual, "1=1")
		})

		Convey("ToMongo", func() {
			m, err := q.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"provider": map[string]any{"$in": []any{"plaid", "manual"}}})

			m, _ = (&TermsQuery{Field: "provider", Not: true}).ToMongo()
			So(m, ShouldResemble, map[string]any{"provider": map[string]any{"$nin": []any{}}})
		})

		Convey("ToES", func() {
			not := &TermsQuery{Field: "provider", Values: []any{"x"}, Not: true}
			So(not.ToES(), ShouldResemble, map[string]any{
				"bool": map[string]any{
					"must_not": []any{map[string]any{"terms": map[string]any{"provider": []any{"x"}}}},
				},
			})
		})

		Convey("Match", func() {
			So(q.Match(map[string]any{"provider": "plaid"}), ShouldBeTrue)
			So(q.Match(map[string]any{"provider": "other"}), ShouldBeFalse)
			q.Not = true
			So(q.Match(map[string]any{"provider": "other"}), ShouldBeTrue)
		})
	})
}

func TestMatchQuery(t *testing.T) {
	Convey("MatchQuery", t, func() {
		Convey("ToSQL 转义通配符", func() {
			sql, args, err := (&MatchQuery{Field: "name", Value: "50%_off!"}).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "name LIKE ? ESCAPE '!'")
			So(args, ShouldResemble, []any{"%50!%!_off!!%"})
		})

		Convey("ilike 使用 LOWER", func() {
			sql, args, err := (&MatchQuery{Field: "name", Value: "Food", CaseInsensitive: true}).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "LOWER(name) LIKE ? ESCAPE '!'")
			So(args, ShouldResemble, []any{"%food%"})
		})

		Convey("ToMongo", func() {
			m, _ := (&MatchQuery{Field: "name", Value: "a.b", CaseInsensitive: true}).ToMongo()
			So(m, ShouldResemble, map[string]any{"name": map[string]any{"$regex": `a\.b`, "$options": "i"}})
			m, _ = (&MatchQuery{Field: "name", Value: "ab"}).ToMongo()
			So(m, ShouldResemble, map[string]any{"name": map[string]any{"$regex": "ab"}})
		})

		Convey("ToES", func() {
			So((&MatchQuery{Field: "name", Value: "a*"}).ToES(), ShouldResemble, map[string]any{
				"wildcard": map[string]any{"name": map[string]any{"value": `*a\**`, "case_insensitive": false}},
			})
		})

		Convey("Match", func() {
			record := map[string]any{"name": "Groceries"}
			So((&MatchQuery{Field: "name", Value: "cer"}).Match(record), ShouldBeTrue)
			So((&MatchQuery{Field: "name", Value: "GRO"}).Match(record), ShouldBeFalse)
			So((&MatchQuery{Field: "name", Value: "GRO", CaseInsensitive: true}).Match(record), ShouldBeTrue)
			So((&MatchQuery{Field: "name", Value: "x"}).Match(map[string]any{"name": 1}), ShouldBeFalse)
		})
	})
}

func TestRangeQuery(t *testing.T) {
	Convey("RangeQuery", t, func() {
		q := &RangeQuery{Field: "amount", Gte: 10, Lt: 100}

		Convey("ToSQL 按 gt gte lt lte 的顺序输出", func() {
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "amount >= ? AND amount < ?")
			So(args, ShouldResemble, []any{10, 100})

			sql, args, err = (&RangeQuery{Field: "amount"}).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "1=1")
			So(args, ShouldBeNil)
		})

		Convey("ToMongo 和 ToES", func() {
			m, err := q.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"amount": map[string]any{"$gte": 10, "$lt": 100}})
			So(q.ToES(), ShouldResemble, map[string]any{"range": map[string]any{"amount": map[string]any{"gte": 10, "lt": 100}}})
		})

		Convey("Match", func() {
			So(q.Match(map[string]any{"amount": 10.0}), ShouldBeTrue)
			So(q.Match(map[string]any{"amount": int64(99)}), ShouldBeTrue)
			So(q.Match(map[string]any{"amount": 100}), ShouldBeFalse)
			So(q.Match(map[string]any{"amount": "x"}), ShouldBeFalse)
			So(q.Match(map[string]any{}), ShouldBeFalse)

			now := time.Now()
			tq := &RangeQuery{Field: "createdAt", Gt: now.Add(-time.Hour)}
			So(tq.Match(map[string]any{"createdAt": now}), ShouldBeTrue)
			So(tq.Match(map[string]any{"createdAt": now.Add(-2 * time.Hour)}), ShouldBeFalse)
		})
	})
}

func TestBoolQuery(t *testing.T) {
	Convey("BoolQuery", t, func() {
		identifiers := And(Eq("userId", "U1"), Eq("isDeleted", false), Eq("id", "L1"))

		Convey("Must 保持顺序", func() {
			sql, args, err := identifiers.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "(userId = ? AND isDeleted = ? AND id = ?)")
			So(args, ShouldResemble, []any{"U1", false, "L1"})

			m, err := identifiers.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"$and": []any{
				map[string]any{"userId": "U1"},
				map[string]any{"isDeleted": false},
				map[string]any{"id": "L1"},
			}})

			So(identifiers.ToES(), ShouldResemble, map[string]any{"bool": map[string]any{"must": []any{
				map[string]any{"term": map[string]any{"userId": "U1"}},
				map[string]any{"term": map[string]any{"isDeleted": false}},
				map[string]any{"term": map[string]any{"id": "L1"}},
			}}})
		})

		Convey("Should 和 MustNot", func() {
			q := &BoolQuery{
				Must:    []Query{Eq("userId", "U1")},
				Should:  []Query{Eq("color", "red"), Eq("color", "blue")},
				MustNot: []Query{Eq("isDeleted", true)},
			}
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "(userId = ?) AND (color = ? OR color = ?) AND (NOT (isDeleted = ?))")
			So(args, ShouldResemble, []any{"U1", "red", "blue", true})

			m, err := q.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"$and": []any{
				map[string]any{"userId": "U1"},
				map[string]any{"$or": []any{map[string]any{"color": "red"}, map[string]any{"color": "blue"}}},
				map[string]any{"$nor": []any{map[string]any{"isDeleted": true}}},
			}})

			So(q.Match(map[string]any{"userId": "U1", "color": "red", "isDeleted": false}), ShouldBeTrue)
			So(q.Match(map[string]any{"userId": "U1", "color": "green", "isDeleted": false}), ShouldBeFalse)
			So(q.Match(map[string]any{"userId": "U1", "color": "red", "isDeleted": true}), ShouldBeFalse)
		})

		Convey("空条件", func() {
			sql, args, err := (&BoolQuery{}).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "1=1")
			So(args, ShouldBeNil)
			m, err := (&BoolQuery{}).ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldBeEmpty)
			So((&BoolQuery{}).Match(map[string]any{}), ShouldBeTrue)
		})

		Convey("单个条件不包裹 $and", func() {
			m, err := And(Eq("id", "x")).ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]any{"id": "x"})
		})

		Convey("子条件出错时返回错误", func() {
			_, _, err := And(Eq("", 1)).ToSQL()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Compare", t, func() {
		c, ok := Compare(1, 2.5)
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, -1)

		c, ok = Compare("b", "a")
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, 1)

		c, ok = Compare(false, true)
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, -1)

		ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c, ok = Compare(ts.Format(time.RFC3339), ts)
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, 0)

		_, ok = Compare("1", 1)
		So(ok, ShouldBeFalse)

		So(Equal(map[string]any{"a": 1}, map[string]any{"a": 1}), ShouldBeTrue)
	})
}
