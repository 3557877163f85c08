package finance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/service"
	"github.com/hatlonely/featurex/finance/bank"
	"github.com/hatlonely/featurex/finance/label"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/database"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func testLabels(driver rdb.Driver) {
	ctx := context.Background()
	So(Bootstrap(ctx, driver), ShouldBeNil)
	So(Bootstrap(ctx, driver), ShouldBeNil)

	registry, err := NewRegistry(driver)
	So(err, ShouldBeNil)
	module, ok := registry.Get(label.Name)
	So(ok, ShouldBeTrue)
	labels := module.Services

	food, err := labels.Call(ctx, "create", &query.Input{UserID: "U1", Data: map[string]any{"name": "Food", "color": "#f00"}})
	So(err, ShouldBeNil)
	foodID := food.(rdb.Record)["id"]
	So(foodID, ShouldNotBeEmpty)
	So(food.(rdb.Record)["sortOrder"], ShouldEqual, int64(0))

	_, err = labels.Call(ctx, "create", &query.Input{UserID: "U1", Data: map[string]any{"name": "Groceries", "parentId": foodID, "depth": 1}})
	So(err, ShouldBeNil)
	_, err = labels.Call(ctx, "create", &query.Input{UserID: "U2", Data: map[string]any{"name": "Food"}})
	So(err, ShouldBeNil)

	list := func(in *query.Input) []rdb.Record {
		out, err := labels.Call(ctx, "getMany", in)
		So(err, ShouldBeNil)
		return out.([]rdb.Record)
	}
	names := func(records []rdb.Record) []any {
		out := make([]any, len(records))
		for i, record := range records {
			out[i] = record["name"]
		}
		return out
	}

	So(names(list(&query.Input{UserID: "U1"})), ShouldResemble, []any{"Food", "Groceries"})
	So(names(list(&query.Input{UserID: "U1", Filters: map[string]any{"parentLabelId": foodID}})), ShouldResemble, []any{"Groceries"})
	So(names(list(&query.Input{UserID: "U1", Filters: map[string]any{"search": "food"}})), ShouldResemble, []any{"Food"})

	updated, err := labels.Call(ctx, "updateById", &query.Input{UserID: "U1", IDs: map[string]any{"id": foodID}, Data: map[string]any{"color": "#fff"}})
	So(err, ShouldBeNil)
	So(updated.(rdb.Record)["color"], ShouldEqual, "#fff")
	So(updated.(rdb.Record)["name"], ShouldEqual, "Food")

	_, err = labels.Call(ctx, "getById", &query.Input{UserID: "U2", IDs: map[string]any{"id": foodID}})
	So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

	_, err = labels.Call(ctx, "removeById", &query.Input{UserID: "U1", IDs: map[string]any{"id": foodID}})
	So(err, ShouldBeNil)
	So(names(list(&query.Input{UserID: "U1"})), ShouldResemble, []any{"Groceries"})
	So(names(list(&query.Input{UserID: "U2"})), ShouldResemble, []any{"Food"})
}

func TestRegistry(t *testing.T) {
	Convey("全部功能模块", t, func() {
		registry, err := NewRegistry(database.NewMemory())
		So(err, ShouldBeNil)
		So(registry.Names(), ShouldResemble, []string{"users", "labels", "tags", "budgets", "banks"})
		So(registry.Models(), ShouldResemble, Models())

		for _, name := range registry.Names() {
			module, _ := registry.Get(name)
			for _, operation := range module.Schemas.Names() {
				set, _ := module.Schemas.Get(operation)
				if tenant := module.Config.UserIdFieldName(); tenant != "" {
					So(set.Endpoint.Leaves(), ShouldNotContain, tenant)
				}
			}
		}
	})
}

func TestLabelsMemory(t *testing.T) {
	Convey("内存驱动上的标签", t, func() {
		testLabels(database.NewMemory())
	})
}

func TestLabelsSQLite(t *testing.T) {
	Convey("sqlite 上的标签", t, func() {
		driver, err := database.NewSQLWithOptions(&database.SQLOptions{
			Driver:   "sqlite",
			DSN:      filepath.Join(t.TempDir(), "finance.db"),
			MaxConns: 1,
			MaxIdle:  1,
		})
		So(err, ShouldBeNil)
		defer driver.Close()
		testLabels(driver)
	})
}

func TestLabelsBolt(t *testing.T) {
	Convey("bolt 上的标签", t, func() {
		driver, err := database.NewBoltWithOptions(&database.BoltOptions{
			DBPath:  filepath.Join(t.TempDir(), "finance.bolt"),
			Timeout: time.Second,
		})
		So(err, ShouldBeNil)
		defer driver.Close()
		testLabels(driver)
	})
}

func TestBanks(t *testing.T) {
	ctx := context.Background()

	Convey("凭据不出现在返回结果中", t, func() {
		driver := database.NewMemory()
		So(Bootstrap(ctx, driver), ShouldBeNil)
		module, err := bank.New(driver)
		So(err, ShouldBeNil)
		banks := module.Services

		out, err := banks.Call(ctx, "createMany", &query.Input{
			UserID: "U1",
			Records: []map[string]any{
				{"globalBankId": "B1", "providerSource": "nordigen", "apiCredentials": map[string]any{"accessToken": "secret"}},
				{"globalBankId": "B2", "providerSource": "plaid"},
			},
		})
		So(err, ShouldBeNil)
		created := out.([]rdb.Record)
		So(created, ShouldHaveLength, 2)
		for _, record := range created {
			So(record, ShouldNotContainKey, "apiCredentials")
			So(record["userId"], ShouldEqual, "U1")
		}

		out, err = banks.Call(ctx, "getMany", &query.Input{UserID: "U1", Filters: map[string]any{"provider": "plaid"}})
		So(err, ShouldBeNil)
		So(out.([]rdb.Record), ShouldHaveLength, 1)
		So(out.([]rdb.Record)[0]["globalBankId"], ShouldEqual, "B2")

		out, err = banks.Call(ctx, "getMany", &query.Input{UserID: "U1", Filters: map[string]any{"globalBankIds": []any{"B1", "B3"}}})
		So(err, ShouldBeNil)
		So(out.([]rdb.Record), ShouldHaveLength, 1)

		err = banks.ValidateEndpoint("updateById", map[string]any{"globalBankId": "B9"}, map[string]any{"id": created[0]["id"]}, nil)
		So(errors.Is(err, contract.ErrValidation), ShouldBeTrue)
	})
}
