package query

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/bytedance/mockey"
	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/database"
	rdbquery "github.com/hatlonely/featurex/rdb/query"
	"github.com/hatlonely/featurex/uid"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newLabelModel() *rdb.TableModel {
	return &rdb.TableModel{
		Table: "labels",
		Fields: []rdb.FieldDefinition{
			{Name: "id", Type: rdb.FieldTypeString, Required: true, Size: 64, Generated: rdb.GeneratedID},
			{Name: "userId", Type: rdb.FieldTypeString, Required: true, Size: 64},
			{Name: "name", Type: rdb.FieldTypeString, Required: true, Size: 64},
			{Name: "color", Type: rdb.FieldTypeString, Size: 16},
			{Name: "parentLabelId", Type: rdb.FieldTypeString, Size: 64},
			{Name: "sortOrder", Type: rdb.FieldTypeInt, Default: int64(0)},
			{Name: "isDeleted", Type: rdb.FieldTypeBool, Default: false},
			{Name: "createdAt", Type: rdb.FieldTypeDate, Generated: rdb.GeneratedCreateTime},
			{Name: "updatedAt", Type: rdb.FieldTypeDate, Generated: rdb.GeneratedUpdateTime},
		},
		PrimaryKey: []string{"id"},
	}
}

var labelReturnColumns = []string{"id", "name", "color", "parentLabelId", "sortOrder", "createdAt", "updatedAt"}

func newLabelConfig() *table.Config {
	return table.New(newLabelModel()).
		SetUserIdField("userId").
		RestrictInsertFields("name", "color", "parentLabelId", "sortOrder").
		RestrictReturnColumns(labelReturnColumns...).
		SetDefaultFilters(table.Predicate{Field: "isDeleted", Value: false}).
		SetSoftDelete(table.SoftDelete{Column: "isDeleted", Value: true}).
		SetFilters(
			table.Filter{Name: "search", Column: "name", Op: table.FilterILike},
			table.Filter{Name: "parentLabelId", Column: "parentLabelId", Op: table.FilterEq},
			table.Filter{Name: "colors", Column: "color", Op: table.FilterIn},
		).
		SetOrdering([]string{"name", "sortOrder", "createdAt"}, rdb.Order{Field: "name"})
}

// spyDriver 记录对存储的访问
type spyDriver struct {
	rdb.Driver
	calls   int
	queries []rdbquery.Query
	options []*rdb.QueryOptions
}

func (s *spyDriver) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	s.calls++
	return s.Driver.Insert(ctx, model, records, opts...)
}

func (s *spyDriver) Find(ctx context.Context, model *rdb.TableModel, q rdbquery.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	s.calls++
	s.queries = append(s.queries, q)
	s.options = append(s.options, rdb.NewQueryOptions(opts...))
	return s.Driver.Find(ctx, model, q, opts...)
}

func (s *spyDriver) Update(ctx context.Context, model *rdb.TableModel, q rdbquery.Query, values rdb.Record) (int64, error) {
	s.calls++
	s.queries = append(s.queries, q)
	return s.Driver.Update(ctx, model, q, values)
}

func (s *spyDriver) lastOptions() *rdb.QueryOptions {
	return s.options[len(s.options)-1]
}

func sequence(prefix string) uid.Generator {
	n := 0
	return uid.GeneratorFunc(func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	})
}

func newFixture() (*spyDriver, *database.Memory, Queries) {
	memory := database.NewMemory()
	config := newLabelConfig()
	So(memory.Migrate(context.Background(), config.Model()), ShouldBeNil)
	spy := &spyDriver{Driver: memory}
	queries, err := NewBuilder(config, spy,
		WithIDGenerator(sequence("L")),
		WithClock(func() time.Time { return now }),
	).All().Build()
	So(err, ShouldBeNil)
	return spy, memory, queries
}

func keys(record rdb.Record) []string {
	out := make([]string, 0, len(record))
	for k := range record {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedReturnColumns() []string {
	out := append([]string(nil), labelReturnColumns...)
	sort.Strings(out)
	return out
}

func TestAssembleIdentifiers(t *testing.T) {
	config := newLabelConfig()

	Convey("租户字段、默认过滤条件、id 依次排列", t, func() {
		q, err := AssembleIdentifiers(config, Selection{UserID: "U1", IDs: map[string]any{"id": "L1"}})
		So(err, ShouldBeNil)
		So(q, ShouldResemble, rdbquery.And(
			rdbquery.Eq("userId", "U1"),
			rdbquery.Eq("isDeleted", false),
			rdbquery.Eq("id", "L1"),
		))
	})

	Convey("缺少租户字段", t, func() {
		_, err := AssembleIdentifiers(config, Selection{IDs: map[string]any{"id": "L1"}})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)

		_, err = AssembleIdentifiers(config, Selection{})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)
	})

	Convey("缺少 id", t, func() {
		_, err := AssembleIdentifiers(config, Selection{UserID: "U1"})
		So(errors.Is(err, ErrMissingIdentifiers), ShouldBeTrue)

		_, err = AssembleIdentifiers(config, Selection{UserID: "U1", IDs: map[string]any{"id": nil}})
		So(errors.Is(err, ErrMissingIdentifiers), ShouldBeTrue)
	})

	Convey("其他列排在 id 字段之后", t, func() {
		q, err := AssembleIdentifiers(config, Selection{UserID: "U1", IDs: map[string]any{"name": "food", "color": "#fff", "id": "L1"}})
		So(err, ShouldBeNil)
		So(q.Must, ShouldResemble, []rdbquery.Query{
			rdbquery.Eq("userId", "U1"),
			rdbquery.Eq("isDeleted", false),
			rdbquery.Eq("id", "L1"),
			rdbquery.Eq("color", "#fff"),
			rdbquery.Eq("name", "food"),
		})

		_, err = AssembleIdentifiers(config, Selection{UserID: "U1", IDs: map[string]any{"missing": 1}})
		So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
	})

	Convey("无租户的表", t, func() {
		plain := table.New(newLabelModel())
		q, err := AssembleIdentifiers(plain, Selection{IDs: map[string]any{"id": "L1"}})
		So(err, ShouldBeNil)
		So(q.Must, ShouldResemble, []rdbquery.Query{rdbquery.Eq("id", "L1")})
	})
}

func TestTenantIsolation(t *testing.T) {
	Convey("缺少租户或 id 时不访问存储", t, func() {
		spy, _, queries := newFixture()
		ctx := context.Background()

		for _, name := range []string{table.OperationGetById, table.OperationUpdateById, table.OperationRemoveById} {
			_, err := queries[name](ctx, &Input{IDs: map[string]any{"id": "L1"}, Data: map[string]any{"name": "x"}})
			So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)

			_, err = queries[name](ctx, &Input{UserID: "U1", Data: map[string]any{"name": "x"}})
			So(errors.Is(err, ErrMissingIdentifiers), ShouldBeTrue)

			_, err = queries[name](ctx, nil)
			So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)
		}

		_, err := queries[table.OperationGetMany](ctx, &Input{})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)
		_, err = queries[table.OperationCreate](ctx, &Input{Data: map[string]any{"name": "x"}})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)
		_, err = queries[table.OperationCreateMany](ctx, &Input{Records: []map[string]any{{"name": "x"}}})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)

		So(spy.calls, ShouldEqual, 0)
	})
}

func TestStandardQueries(t *testing.T) {
	ctx := context.Background()

	Convey("标准操作", t, func() {
		spy, memory, queries := newFixture()

		out, err := queries[table.OperationCreate](ctx, &Input{
			UserID: "U1",
			Data:   map[string]any{"name": "food", "color": "#f00", "userId": "U2", "isDeleted": true},
		})
		So(err, ShouldBeNil)
		created := out.(rdb.Record)
		So(keys(created), ShouldResemble, sortedReturnColumns())
		So(created["id"], ShouldEqual, "L1")
		So(created["sortOrder"], ShouldEqual, int64(0))
		So(created["createdAt"].(time.Time).Equal(now), ShouldBeTrue)

		rows, err := memory.Find(ctx, newLabelModel(), rdbquery.Eq("id", "L1"))
		So(err, ShouldBeNil)
		So(rows[0]["userId"], ShouldEqual, "U1")
		So(rows[0]["isDeleted"], ShouldEqual, false)

		Convey("getById", func() {
			out, err := queries[table.OperationGetById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
			So(err, ShouldBeNil)
			So(out.(rdb.Record)["name"], ShouldEqual, "food")
			So(keys(out.(rdb.Record)), ShouldResemble, sortedReturnColumns())
			So(spy.queries[len(spy.queries)-1], ShouldResemble, rdbquery.And(
				rdbquery.Eq("userId", "U1"),
				rdbquery.Eq("isDeleted", false),
				rdbquery.Eq("id", "L1"),
			))

			out, err = queries[table.OperationGetById](ctx, &Input{UserID: "U2", IDs: map[string]any{"id": "L1"}})
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)
		})

		Convey("updateById 只更新给出的字段", func() {
			out, err := queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}, Data: map[string]any{"color": "#fff"}})
			So(err, ShouldBeNil)
			updated := out.(rdb.Record)
			So(updated["color"], ShouldEqual, "#fff")
			So(updated["name"], ShouldEqual, "food")
			So(keys(updated), ShouldResemble, sortedReturnColumns())

			calls := spy.calls
			_, err = queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}, Data: map[string]any{"isDeleted": true}})
			So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
			_, err = queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}, Data: map[string]any{}})
			So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
			So(spy.calls, ShouldEqual, calls)

			out, err = queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L9"}, Data: map[string]any{"color": "#000"}})
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)
		})

		Convey("updateById 不能把必填列置空", func() {
			calls := spy.calls
			_, err := queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}, Data: map[string]any{"name": nil}})
			So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "null not allowed")
			So(spy.calls, ShouldEqual, calls)

			rows, err := memory.Find(ctx, newLabelModel(), rdbquery.Eq("id", "L1"))
			So(err, ShouldBeNil)
			So(rows[0]["name"], ShouldEqual, "food")

			out, err := queries[table.OperationUpdateById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}, Data: map[string]any{"color": nil}})
			So(err, ShouldBeNil)
			So(out.(rdb.Record)["color"], ShouldBeNil)
			So(out.(rdb.Record)["name"], ShouldEqual, "food")
		})

		Convey("removeById 逻辑删除", func() {
			out, err := queries[table.OperationRemoveById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
			So(err, ShouldBeNil)
			So(out.(rdb.Record)["id"], ShouldEqual, "L1")

			out, err = queries[table.OperationGetById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)

			out, err = queries[table.OperationRemoveById](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)

			rows, err := memory.Find(ctx, newLabelModel(), rdbquery.Eq("id", "L1"))
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0]["isDeleted"], ShouldEqual, true)
		})

		Convey("createMany", func() {
			out, err := queries[table.OperationCreateMany](ctx, &Input{
				UserID:  "U1",
				Records: []map[string]any{{"name": "rent", "sortOrder": 2}, {"name": "bills", "parentLabelId": "L1"}},
			})
			So(err, ShouldBeNil)
			records := out.([]rdb.Record)
			So(records, ShouldHaveLength, 2)
			So(records[0]["id"], ShouldEqual, "L2")
			So(records[0]["sortOrder"], ShouldEqual, int64(2))
			So(records[1]["id"], ShouldEqual, "L3")

			calls := spy.calls
			_, err = queries[table.OperationCreateMany](ctx, &Input{UserID: "U1", Records: []map[string]any{{"name": "ok"}, {"color": "#000"}}})
			So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
			_, err = queries[table.OperationCreateMany](ctx, &Input{UserID: "U1"})
			So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
			So(spy.calls, ShouldEqual, calls)
		})

		Convey("getMany", func() {
			_, err := queries[table.OperationCreateMany](ctx, &Input{
				UserID:  "U1",
				Records: []map[string]any{{"name": "rent", "color": "#000"}, {"name": "bills", "color": "#0f0"}},
			})
			So(err, ShouldBeNil)
			_, err = queries[table.OperationCreate](ctx, &Input{UserID: "U2", Data: map[string]any{"name": "other"}})
			So(err, ShouldBeNil)

			Convey("默认分页和排序", func() {
				out, err := queries[table.OperationGetMany](ctx, &Input{UserID: "U1"})
				So(err, ShouldBeNil)
				records := out.([]rdb.Record)
				So(records, ShouldHaveLength, 3)
				So(records[0]["name"], ShouldEqual, "bills")
				So(records[2]["name"], ShouldEqual, "rent")
				for _, record := range records {
					So(keys(record), ShouldResemble, sortedReturnColumns())
				}
				So(spy.lastOptions().Limit, ShouldEqual, 10)
				So(spy.lastOptions().Offset, ShouldEqual, 0)
				So(spy.lastOptions().OrderBy, ShouldResemble, []rdb.Order{{Field: "name"}})
			})

			Convey("过滤条件", func() {
				out, err := queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Filters: map[string]any{"search": "FO"}})
				So(err, ShouldBeNil)
				So(out.([]rdb.Record), ShouldHaveLength, 1)

				out, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Filters: map[string]any{"colors": []string{"#000", "#0f0"}}})
				So(err, ShouldBeNil)
				So(out.([]rdb.Record), ShouldHaveLength, 2)

				out, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Filters: map[string]any{"search": "nothing"}})
				So(err, ShouldBeNil)
				So(out, ShouldNotBeNil)
				So(out.([]rdb.Record), ShouldBeEmpty)
			})

			Convey("分页和排序", func() {
				out, err := queries[table.OperationGetMany](ctx, &Input{
					UserID:     "U1",
					Pagination: &Pagination{Page: 2, PageSize: 1},
					Ordering:   []rdb.Order{{Field: "name", Desc: true}},
				})
				So(err, ShouldBeNil)
				records := out.([]rdb.Record)
				So(records, ShouldHaveLength, 1)
				So(records[0]["name"], ShouldEqual, "food")

				_, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Pagination: &Pagination{PageSize: 1000}})
				So(err, ShouldBeNil)
				So(spy.lastOptions().Limit, ShouldEqual, 100)
			})

			Convey("非法输入", func() {
				calls := spy.calls
				_, err := queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Ordering: []rdb.Order{{Field: "userId"}}})
				So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
				_, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Filters: map[string]any{"unknown": 1}})
				So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
				_, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Filters: map[string]any{"search": 1}})
				So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
				_, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Pagination: &Pagination{Page: -1}})
				So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
				_, err = queries[table.OperationGetMany](ctx, &Input{UserID: "U1", Pagination: &Pagination{Page: 1 << 62, PageSize: 100}})
				So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
				var verr *contract.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Fields(), ShouldContain, "pagination.page")
				So(spy.calls, ShouldEqual, calls)
			})
		})
	})
}

func TestCustomQueries(t *testing.T) {
	ctx := context.Background()

	Convey("自定义操作", t, func() {
		memory := database.NewMemory()
		config := newLabelConfig()
		So(memory.Migrate(ctx, config.Model()), ShouldBeNil)

		b := NewBuilder(config, memory, WithIDGenerator(sequence("L")), WithClock(func() time.Time { return now })).All()
		queries, err := b.
			Add("getByName", func(ctx context.Context, in *Input) (any, error) {
				return b.FindOne(ctx, "getByName", Selection{UserID: in.UserID, IDs: map[string]any{"name": in.Data["name"]}})
			}).
			Add("hide", func(ctx context.Context, in *Input) (any, error) {
				return b.UpdateOne(ctx, "hide", in.Selection(), rdb.Record{"color": nil})
			}).
			Build()
		So(err, ShouldBeNil)
		So(queries.Names(), ShouldContain, "getByName")

		_, err = queries[table.OperationCreate](ctx, &Input{UserID: "U1", Data: map[string]any{"name": "food", "color": "#fff"}})
		So(err, ShouldBeNil)

		out, err := queries["getByName"](ctx, &Input{UserID: "U1", Data: map[string]any{"name": "food"}})
		So(err, ShouldBeNil)
		So(out.(rdb.Record)["id"], ShouldEqual, "L1")

		out, err = queries["getByName"](ctx, &Input{UserID: "U2", Data: map[string]any{"name": "food"}})
		So(err, ShouldBeNil)
		So(out, ShouldBeNil)

		out, err = queries["hide"](ctx, &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
		So(err, ShouldBeNil)
		So(out.(rdb.Record)["color"], ShouldBeNil)

		_, err = queries["hide"](ctx, &Input{IDs: map[string]any{"id": "L1"}})
		So(errors.Is(err, ErrMissingTenantScope), ShouldBeTrue)
	})
}

func TestBuildErrors(t *testing.T) {
	Convey("构建错误", t, func() {
		memory := database.NewMemory()

		Convey("未配置逻辑删除时不能注册 removeById", func() {
			config := table.New(newLabelModel()).SetUserIdField("userId")
			_, err := NewBuilder(config, memory).RemoveById().Build()
			So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)

			queries, err := NewBuilder(config, memory).All().Build()
			So(err, ShouldBeNil)
			So(queries.Names(), ShouldNotContain, table.OperationRemoveById)
			So(queries.Names(), ShouldHaveLength, 5)
		})

		Convey("重复注册", func() {
			_, err := NewBuilder(newLabelConfig(), memory).Create().Create().Build()
			So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)
		})

		Convey("没有驱动", func() {
			_, err := NewBuilder(newLabelConfig(), nil).All().Build()
			So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)
		})

		Convey("表配置错误", func() {
			_, err := NewBuilder(newLabelConfig().SetIdFields("missing"), memory).All().Build()
			So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)

			_, err = NewBuilder(nil, memory).Build()
			So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)
		})
	})
}

func TestGeneratedIntID(t *testing.T) {
	ctx := context.Background()
	model := &rdb.TableModel{
		Table: "counters",
		Fields: []rdb.FieldDefinition{
			{Name: "id", Type: rdb.FieldTypeInt, Required: true, Generated: rdb.GeneratedID},
			{Name: "name", Type: rdb.FieldTypeString},
		},
		PrimaryKey: []string{"id"},
	}

	Convey("整数主键", t, func() {
		memory := database.NewMemory()
		So(memory.Migrate(ctx, model), ShouldBeNil)

		queries, err := NewBuilder(table.New(model), memory, WithIDGenerator(uid.GeneratorFunc(func() string { return "42" }))).Create().Build()
		So(err, ShouldBeNil)
		out, err := queries[table.OperationCreate](ctx, &Input{Data: map[string]any{"name": "a"}})
		So(err, ShouldBeNil)
		So(out.(rdb.Record)["id"], ShouldEqual, int64(42))

		queries, err = NewBuilder(table.New(model), memory, WithIDGenerator(uid.GeneratorFunc(func() string { return "x" }))).Create().Build()
		So(err, ShouldBeNil)
		_, err = queries[table.OperationCreate](ctx, &Input{Data: map[string]any{"name": "b"}})
		So(err, ShouldNotBeNil)
	})
}

func TestStorageErrorPassThrough(t *testing.T) {
	mockey.PatchConvey("存储错误原样返回", t, func() {
		_, _, queries := newFixture()
		boom := errors.New("connection reset")
		mockey.Mock((*database.Memory).Find).Return(nil, boom).Build()

		_, err := queries[table.OperationGetById](context.Background(), &Input{UserID: "U1", IDs: map[string]any{"id": "L1"}})
		So(err, ShouldEqual, boom)

		_, err = queries[table.OperationGetMany](context.Background(), &Input{UserID: "U1"})
		So(err, ShouldEqual, boom)
	})
}
