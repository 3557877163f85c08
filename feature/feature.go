// Package feature 将表配置、结构、数据访问函数和服务组装为一个功能模块
package feature

import (
	"context"
	"sync"

	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/schema"
	"github.com/hatlonely/featurex/feature/service"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
)

// Module 一个功能模块的全部产物
type Module struct {
	Name     string
	Config   *table.Config
	Schemas  schema.Schemas
	Queries  query.Queries
	Services service.Services
}

// Assemble 依次构建结构和数据访问函数，并注册到服务构建器后构建服务
//
// services 中的自定义服务通过 Registry 读取这里注册的结构和数据访问函数，
// 所以 services 只需要声明服务，RegisterSchema/RegisterQueries 由这里完成。
func Assemble(name string, config *table.Config, schemas *schema.Builder, queries *query.Builder, services func(*service.Builder) *service.Builder) (*Module, error) {
	s, err := schemas.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "feature %s", name)
	}
	q, err := queries.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "feature %s", name)
	}
	sb := service.NewBuilder(name).RegisterSchema(s).RegisterQueries(q)
	if services != nil {
		sb = services(sb)
	}
	svc, err := sb.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "feature %s", name)
	}
	return &Module{
		Name:     name,
		Config:   config,
		Schemas:  s,
		Queries:  q,
		Services: svc,
	}, nil
}

// NewStandardModule 为表配置生成全部标准操作
func NewStandardModule(name string, config *table.Config, driver rdb.Driver, opts ...query.Option) (*Module, error) {
	return Assemble(name, config,
		schema.NewBuilder(config).RegisterAllStandard(),
		query.NewBuilder(config, driver, opts...).All(),
		(*service.Builder).RegisterAllStandard,
	)
}

// Registry 按名字管理功能模块
type Registry struct {
	mutex   sync.RWMutex
	modules map[string]*Module
	names   []string
}

func NewRegistry() *Registry {
	return &Registry{modules: map[string]*Module{}}
}

func (r *Registry) Register(module *Module) error {
	if module == nil || module.Name == "" {
		return errors.Wrap(table.ErrConfiguration, "module needs a name")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.modules[module.Name]; ok {
		return errors.Wrapf(table.ErrConfiguration, "duplicate module %s", module.Name)
	}
	r.modules[module.Name] = module
	r.names = append(r.names, module.Name)
	return nil
}

func (r *Registry) Get(name string) (*Module, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	module, ok := r.modules[name]
	return module, ok
}

// Names 按注册顺序返回
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *Registry) Models() []*rdb.TableModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	models := make([]*rdb.TableModel, 0, len(r.names))
	for _, name := range r.names {
		models = append(models, r.modules[name].Config.Model())
	}
	return models
}

// Migrate 为全部模块建表，已存在的表不做修改
func (r *Registry) Migrate(ctx context.Context, driver rdb.Driver) error {
	for _, model := range r.Models() {
		if err := driver.Migrate(ctx, model); err != nil {
			return errors.WithMessagef(err, "migrate %s", model.Table)
		}
	}
	return nil
}
