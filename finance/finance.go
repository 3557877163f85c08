// Package finance 个人财务应用的功能模块
package finance

import (
	"context"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/finance/bank"
	"github.com/hatlonely/featurex/finance/budget"
	"github.com/hatlonely/featurex/finance/label"
	"github.com/hatlonely/featurex/finance/tag"
	"github.com/hatlonely/featurex/finance/user"
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
)

type factory func(rdb.Driver, ...query.Option) (*feature.Module, error)

var factories = []factory{
	user.New,
	label.New,
	tag.New,
	budget.New,
	bank.New,
}

// NewRegistry 构建全部功能模块，任何模块配置错误都会返回错误
func NewRegistry(driver rdb.Driver, opts ...query.Option) (*feature.Registry, error) {
	registry := feature.NewRegistry()
	for _, newModule := range factories {
		module, err := newModule(driver, opts...)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(module); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func Models() []*rdb.TableModel {
	return []*rdb.TableModel{user.Model, label.Model, tag.Model, budget.Model, bank.Model}
}

// Bootstrap 创建缺失的表
func Bootstrap(ctx context.Context, driver rdb.Driver) error {
	for _, model := range Models() {
		if err := driver.Migrate(ctx, model); err != nil {
			return errors.WithMessagef(err, "migrate %s", model.Table)
		}
	}
	return nil
}
