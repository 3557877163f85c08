package feature

import (
	"context"
	"testing"

	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/schema"
	"github.com/hatlonely/featurex/feature/service"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/database"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type tag struct {
	_        struct{} `table:"tags"`
	ID       string   `rdb:"id,primary,size=64,generated=id"`
	UserID   string   `rdb:"userId,required,size=64,index"`
	Name     string   `rdb:"name,required,size=64"`
	IsActive bool     `rdb:"isActive,default=true"`
}

func newTagConfig() *table.Config {
	model := rdb.NewTableModelBuilder().MustFromStruct(tag{})
	return table.New(model).
		SetUserIdField("userId").
		RestrictInsertFields("name").
		SetDefaultFilters(table.Predicate{Field: "isActive", Value: true}).
		SetSoftDelete(table.SoftDelete{Column: "isActive", Value: false})
}

func TestStandardModule(t *testing.T) {
	ctx := context.Background()

	Convey("标准模块", t, func() {
		memory := database.NewMemory()
		registry := NewRegistry()

		module, err := NewStandardModule("tags", newTagConfig(), memory)
		So(err, ShouldBeNil)
		So(registry.Register(module), ShouldBeNil)
		So(registry.Migrate(ctx, memory), ShouldBeNil)

		So(registry.Names(), ShouldResemble, []string{"tags"})
		So(registry.Models()[0].Table, ShouldEqual, "tags")
		So(module.Schemas.Names(), ShouldResemble, table.StandardOperations)
		So(module.Services.Names(), ShouldHaveLength, 6)

		out, err := module.Services.Call(ctx, table.OperationCreate, &query.Input{UserID: "U1", Data: map[string]any{"name": "travel"}})
		So(err, ShouldBeNil)
		id := out.(rdb.Record)["id"]
		So(out.(rdb.Record)["isActive"], ShouldEqual, true)

		_, err = module.Services.Call(ctx, table.OperationRemoveById, &query.Input{UserID: "U1", IDs: map[string]any{"id": id}})
		So(err, ShouldBeNil)
		_, err = module.Services.Call(ctx, table.OperationGetById, &query.Input{UserID: "U1", IDs: map[string]any{"id": id}})
		So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

		Convey("重复注册", func() {
			So(errors.Is(registry.Register(module), table.ErrConfiguration), ShouldBeTrue)
			So(errors.Is(registry.Register(nil), table.ErrConfiguration), ShouldBeTrue)
		})

		Convey("Get", func() {
			got, ok := registry.Get("tags")
			So(ok, ShouldBeTrue)
			So(got, ShouldPointTo, module)
			_, ok = registry.Get("labels")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestStandardModuleWithoutSoftDelete(t *testing.T) {
	Convey("未配置逻辑删除的标准模块", t, func() {
		model := rdb.NewTableModelBuilder().MustFromStruct(tag{})
		config := table.New(model).SetUserIdField("userId").RestrictInsertFields("name")
		module, err := NewStandardModule("tags", config, database.NewMemory())
		So(err, ShouldBeNil)

		So(module.Schemas.Names(), ShouldNotContain, table.OperationRemoveById)
		So(module.Services.Names(), ShouldHaveLength, 5)
		_, ok := module.Services.Endpoint(table.OperationRemoveById)
		So(ok, ShouldBeFalse)
		_, err = module.Services.Call(context.Background(), table.OperationRemoveById, &query.Input{UserID: "U1", IDs: map[string]any{"id": "T1"}})
		So(errors.Is(err, service.ErrUnknownService), ShouldBeTrue)
	})
}

func TestAssemble(t *testing.T) {
	Convey("组装自定义模块", t, func() {
		config := newTagConfig()
		memory := database.NewMemory()

		module, err := Assemble("tags", config,
			schema.NewBuilder(config).GetById(),
			query.NewBuilder(config, memory).GetById(),
			func(b *service.Builder) *service.Builder {
				return b.WithStandard(table.OperationGetById).
					AddService("exists", func(r service.Registry) (service.Definition, error) {
						fn, _ := r.Query(table.OperationGetById)
						return service.Definition{Fn: fn, OnNull: service.OnNullReturn}, nil
					})
			},
		)
		So(err, ShouldBeNil)
		So(module.Services.Names(), ShouldResemble, []string{"exists", table.OperationGetById})

		_, err = Assemble("tags", config,
			schema.NewBuilder(config).GetById(),
			query.NewBuilder(config, memory).GetById(),
			func(b *service.Builder) *service.Builder {
				return b.WithStandard(table.OperationCreate)
			},
		)
		So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)

		_, err = Assemble("tags", config, schema.NewBuilder(nil), query.NewBuilder(config, memory), nil)
		So(errors.Is(err, table.ErrConfiguration), ShouldBeTrue)
	})
}
