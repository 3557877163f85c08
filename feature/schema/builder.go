package schema

import (
	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/pkg/errors"
)

// View 自定义操作可读取的表配置和列约束
type View struct {
	config *table.Config
}

func (v View) Config() *table.Config {
	return v.config
}

func (v View) Insert() *contract.Contract {
	return v.config.InsertContract()
}

func (v View) Select() *contract.Contract {
	return v.config.SelectContract()
}

func (v View) Update() *contract.Contract {
	return v.config.UpdateContract()
}

func (v View) Identifier() *contract.Contract {
	return v.config.BuildIdentifierSchema()
}

func (v View) Tenant() *contract.Contract {
	return v.config.BuildUserIdSchema()
}

// Helpers 自定义操作构造结构的辅助方法
type Helpers struct {
	config *table.Config
}

// Identifier 以给定字段构造 {ids: {...}}，不传字段时使用配置的 id 字段
func (h Helpers) Identifier(fields ...string) (*contract.Contract, error) {
	if len(fields) == 0 {
		return h.config.BuildIdentifierSchema(), nil
	}
	ids, err := h.config.Columns(table.FieldIDs, fields...)
	if err != nil {
		return nil, err
	}
	return contract.New("identifier", contract.Object(table.FieldIDs, ids.Required(), true)), nil
}

func (h Helpers) Pagination() *contract.Contract {
	return h.config.BuildPaginationSchema()
}

func (h Helpers) Columns(fields ...string) (*contract.Contract, error) {
	return h.config.Columns("columns", fields...)
}

func (h Helpers) TenantQualified(c *contract.Contract) *contract.Contract {
	return h.config.TenantQualified(c)
}

// DeriveFunc 由表配置派生一个操作的结构
type DeriveFunc func(View, Helpers) (Set, error)

type Option func(*Builder)

func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder 逐个操作累积结构，每次调用返回新的 Builder
type Builder struct {
	config *table.Config
	logger logger.Logger
	sets   map[string]Set
	names  []string
	err    error
}

func NewBuilder(config *table.Config, opts ...Option) *Builder {
	b := &Builder{
		config: config,
		logger: log.Default(),
		sets:   map[string]Set{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if config == nil {
		b.err = errors.Wrap(table.ErrConfiguration, "table config is nil")
	} else if err := config.Err(); err != nil {
		b.err = errors.WithMessage(err, "schema builder")
	}
	return b
}

func (b *Builder) clone() *Builder {
	out := *b
	out.sets = make(map[string]Set, len(b.sets)+1)
	for name, set := range b.sets {
		out.sets[name] = set
	}
	out.names = append([]string(nil), b.names...)
	return &out
}

// AddSchema 注册自定义操作，派生失败或 Set 不一致时记录为配置错误
func (b *Builder) AddSchema(name string, derive DeriveFunc) *Builder {
	if b.err != nil {
		return b
	}
	out := b.clone()
	if name == "" || derive == nil {
		out.err = errors.Wrapf(table.ErrConfiguration, "%s: schema needs a name and a derive function", b.config.Table())
		return out
	}
	if _, ok := b.sets[name]; ok {
		out.err = errors.Wrapf(table.ErrConfiguration, "%s: duplicate schema %s", b.config.Table(), name)
		return out
	}

	set, err := derive(View{config: b.config}, Helpers{config: b.config})
	if err != nil {
		if !errors.Is(err, table.ErrConfiguration) {
			err = errors.Wrap(table.ErrConfiguration, err.Error())
		}
		out.err = errors.WithMessagef(err, "%s: derive schema %s failed", b.config.Table(), name)
		return out
	}
	if set.Query == nil {
		set.Query = set.Service
	}
	if err := Check(b.config, name, set); err != nil {
		out.err = err
		return out
	}

	out.sets[name] = set
	out.names = append(out.names, name)
	return out
}

func (b *Builder) Build() (Schemas, error) {
	if b.err != nil {
		return Schemas{}, b.err
	}
	b.logger.Info("schemas registered", "table", b.config.Table(), "operations", b.names)
	return Schemas{
		resource: b.config.Table(),
		sets:     b.sets,
		names:    append([]string(nil), b.names...),
	}, nil
}
