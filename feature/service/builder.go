package service

import (
	"context"

	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/schema"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/pkg/errors"
)

// Registry 自定义服务可以读取已注册的数据访问函数和结构
type Registry struct {
	resource string
	queries  query.Queries
	schemas  schema.Schemas
}

func (r Registry) Resource() string {
	return r.resource
}

func (r Registry) Query(name string) (query.Func, bool) {
	fn, ok := r.queries[name]
	return fn, ok
}

func (r Registry) Schema(name string) (schema.Set, bool) {
	return r.schemas.Get(name)
}

type DeriveFunc func(Registry) (Definition, error)

type Option func(*Builder)

func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder 逐个服务累积定义，每次调用返回新的 Builder
type Builder struct {
	resource string
	logger   logger.Logger
	registry Registry
	defs     map[string]Definition
	names    []string
	err      error
}

func NewBuilder(resource string, opts ...Option) *Builder {
	b := &Builder{
		resource: resource,
		logger:   log.Default(),
		registry: Registry{resource: resource},
		defs:     map[string]Definition{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithGroup("service").With("resource", resource)
	if resource == "" {
		b.err = errors.Wrap(table.ErrConfiguration, "service resource is empty")
	}
	return b
}

func (b *Builder) clone() *Builder {
	out := *b
	out.defs = make(map[string]Definition, len(b.defs)+1)
	for name, def := range b.defs {
		out.defs[name] = def
	}
	out.names = append([]string(nil), b.names...)
	return &out
}

func (b *Builder) fail(err error) *Builder {
	if b.err != nil {
		return b
	}
	out := b.clone()
	out.err = err
	return out
}

func (b *Builder) RegisterQueries(queries query.Queries) *Builder {
	out := b.clone()
	out.registry.queries = queries
	return out
}

func (b *Builder) RegisterSchema(schemas schema.Schemas) *Builder {
	out := b.clone()
	out.registry.schemas = schemas
	return out
}

// AddService 注册自定义服务
func (b *Builder) AddService(name string, derive DeriveFunc) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || derive == nil {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: service needs a name and a derive function", b.resource))
	}
	if _, ok := b.defs[name]; ok {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: duplicate service %s", b.resource, name))
	}
	def, err := derive(b.registry)
	if err != nil {
		if !errors.Is(err, table.ErrConfiguration) {
			err = errors.Wrap(table.ErrConfiguration, err.Error())
		}
		return b.fail(errors.WithMessagef(err, "%s: derive service %s failed", b.resource, name))
	}
	if def.Fn == nil {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: service %s has no function", b.resource, name))
	}
	if def.Operation == "" {
		def.Operation = name
	}
	switch def.OnNull {
	case "":
		def.OnNull = OnNullThrow
	case OnNullThrow, OnNullReturn:
	default:
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: service %s has unknown null policy %q", b.resource, name, def.OnNull))
	}

	out := b.clone()
	out.defs[name] = def
	out.names = append(out.names, name)
	return out
}

// FromQuery 以同名数据访问函数构造服务
func FromQuery(name string, onNull NullPolicy) DeriveFunc {
	return func(r Registry) (Definition, error) {
		fn, ok := r.Query(name)
		if !ok {
			return Definition{}, errors.Wrapf(table.ErrConfiguration, "query %s is not registered", name)
		}
		return Definition{Fn: fn, Operation: name, OnNull: onNull}, nil
	}
}

// standardPolicy 列表操作没有记录时返回空列表，其余标准操作找不到记录时报错
func standardPolicy(operation string) NullPolicy {
	if operation == table.OperationGetMany {
		return OnNullReturn
	}
	return OnNullThrow
}

// WithStandard 注册给出的标准服务，对应的数据访问函数必须已注册
func (b *Builder) WithStandard(operations ...string) *Builder {
	out := b
	for _, op := range operations {
		if !table.IsStandardOperation(op) {
			return out.fail(errors.Wrapf(table.ErrConfiguration, "%s: %s is not a standard operation", b.resource, op))
		}
		out = out.AddService(op, FromQuery(op, standardPolicy(op)))
	}
	return out
}

// RegisterAllStandard 为已注册的标准数据访问函数生成服务
func (b *Builder) RegisterAllStandard() *Builder {
	var operations []string
	for _, op := range table.StandardOperations {
		if _, ok := b.registry.queries[op]; ok {
			operations = append(operations, op)
		}
	}
	return b.WithStandard(operations...)
}

func (b *Builder) Build() (Services, error) {
	if b.err != nil {
		return Services{}, b.err
	}
	services := Services{
		resource: b.resource,
		funcs:    make(map[string]query.Func, len(b.defs)),
		defs:     make(map[string]Definition, len(b.defs)),
		schemas:  b.registry.schemas,
		names:    append([]string(nil), b.names...),
	}
	for name, def := range b.defs {
		services.defs[name] = def
		services.funcs[name] = b.wrap(def)
	}
	b.logger.Info("services registered", "operations", b.names)
	return services, nil
}

// wrap 按空结果策略包装服务函数，错误原样返回
func (b *Builder) wrap(def Definition) query.Func {
	resource := b.resource
	l := b.logger
	return func(ctx context.Context, input *query.Input) (any, error) {
		out, err := def.Fn(ctx, input)
		if err != nil {
			return nil, err
		}
		if !isNil(out) {
			return out, nil
		}
		if def.OnNull == OnNullReturn {
			return nil, nil
		}
		l.DebugContext(ctx, "record not found", "operation", def.Operation)
		return nil, &NotFoundError{Operation: def.Operation, Resource: resource}
	}
}
