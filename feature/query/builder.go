package query

import (
	"context"
	"strconv"
	"time"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/rdb"
	rdbquery "github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
)

// Builder 逐个操作累积数据访问函数，每次调用返回新的 Builder
type Builder struct {
	config  *table.Config
	table   *rdb.Table
	options *options
	logger  logger.Logger

	insert *contract.Contract
	update *contract.Contract

	queries Queries
	names   []string
	err     error
}

func NewBuilder(config *table.Config, driver rdb.Driver, opts ...Option) *Builder {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	b := &Builder{
		config:  config,
		options: options,
		queries: Queries{},
	}
	b.logger = options.logger.WithGroup("query")

	if config == nil {
		b.err = errors.Wrap(table.ErrConfiguration, "table config is nil")
		return b
	}
	if err := config.Err(); err != nil {
		b.err = errors.WithMessage(err, "query builder")
		return b
	}
	t, err := rdb.NewTable(driver, config.Model())
	if err != nil {
		b.err = errors.Wrapf(table.ErrConfiguration, "%s: %v", config.Table(), err)
		return b
	}
	b.table = t
	b.logger = b.logger.With("table", config.Table())
	b.insert = config.InsertContract()
	b.update = config.UpdateContract()
	return b
}

func (b *Builder) clone() *Builder {
	out := *b
	out.queries = make(Queries, len(b.queries)+1)
	for name, fn := range b.queries {
		out.queries[name] = fn
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

func (b *Builder) Config() *table.Config {
	return b.config
}

func (b *Builder) Table() *rdb.Table {
	return b.table
}

func (b *Builder) Logger() logger.Logger {
	return b.logger
}

func (b *Builder) Now() time.Time {
	return b.options.clock()
}

// Add 注册自定义数据访问函数，input 为 nil 时按空输入处理
func (b *Builder) Add(name string, fn Func) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || fn == nil {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: query needs a name and a function", b.config.Table()))
	}
	if _, ok := b.queries[name]; ok {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: duplicate query %s", b.config.Table(), name))
	}
	out := b.clone()
	out.queries[name] = func(ctx context.Context, input *Input) (any, error) {
		if input == nil {
			input = &Input{}
		}
		return fn(ctx, input)
	}
	out.names = append(out.names, name)
	return out
}

func (b *Builder) Build() (Queries, error) {
	if b.err != nil {
		return nil, b.err
	}
	queries := make(Queries, len(b.queries))
	for name, fn := range b.queries {
		queries[name] = fn
	}
	b.logger.Info("queries registered", "operations", b.names)
	return queries, nil
}

// project 只返回 returnColumns，row 为空时返回无类型的 nil
func (b *Builder) project(row rdb.Record) any {
	if row == nil {
		return nil
	}
	return row.Project(b.config.ReturnColumns())
}

func (b *Builder) projectAll(rows []rdb.Record) []rdb.Record {
	out := make([]rdb.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Project(b.config.ReturnColumns())
	}
	return out
}

// locate 组合定位条件，失败时记录日志，不访问存储
func (b *Builder) locate(ctx context.Context, operation string, sel Selection, requireAll bool) (*rdbquery.BoolQuery, error) {
	q, err := AssembleIdentifiers(b.config, sel)
	if err == nil && requireAll {
		err = requireIDs(b.config, sel.IDs)
	}
	if err != nil {
		if errors.Is(err, ErrMissingTenantScope) {
			b.logger.WarnContext(ctx, "missing tenant scope", "operation", operation)
		}
		return nil, err
	}
	return q, nil
}

// FindOne 按定位条件读取一条记录，供自定义操作使用
func (b *Builder) FindOne(ctx context.Context, operation string, sel Selection) (any, error) {
	loc, err := b.locate(ctx, operation, sel, false)
	if err != nil {
		return nil, err
	}
	row, err := b.table.SelectFirst(ctx, loc)
	if err != nil {
		return nil, err
	}
	if row == nil {
		b.logger.DebugContext(ctx, "record not found", "operation", operation)
	}
	return b.project(row), nil
}

// UpdateOne 按定位条件更新一条记录，不受 updateFields 限制，供自定义操作使用
func (b *Builder) UpdateOne(ctx context.Context, operation string, sel Selection, values rdb.Record) (any, error) {
	loc, err := b.locate(ctx, operation, sel, false)
	if err != nil {
		return nil, err
	}
	return b.updateLocated(ctx, operation, loc, values)
}

func (b *Builder) updateLocated(ctx context.Context, operation string, loc *rdbquery.BoolQuery, values rdb.Record) (any, error) {
	values = values.Clone()
	if values == nil {
		values = rdb.Record{}
	}
	if column, ok := b.config.GeneratedColumn(rdb.GeneratedUpdateTime); ok {
		values[column] = b.Now()
	}
	row, err := b.table.Update(ctx, loc, values)
	if err != nil {
		return nil, err
	}
	if row == nil {
		b.logger.DebugContext(ctx, "record not found", "operation", operation)
	}
	return b.project(row), nil
}

// prepareCreate 只保留 createFields，注入租户字段，补齐默认值和生成列
func (b *Builder) prepareCreate(userID string, data map[string]any) (rdb.Record, error) {
	tenant := b.config.UserIdFieldName()
	if tenant != "" && userID == "" {
		return nil, errors.Wrapf(ErrMissingTenantScope, "%s.%s", b.config.Table(), tenant)
	}

	record := rdb.Record{}
	for _, field := range b.config.CreateFields() {
		if v, ok := data[field]; ok {
			record[field] = v
		}
	}
	if err := b.insert.Validate(record); err != nil {
		return nil, err
	}

	now := b.Now()
	for _, field := range b.config.Model().Fields {
		switch field.Generated {
		case rdb.GeneratedID:
			id, err := b.generateID(field)
			if err != nil {
				return nil, err
			}
			record[field.Name] = id
		case rdb.GeneratedCreateTime, rdb.GeneratedUpdateTime:
			record[field.Name] = now
		default:
			if _, ok := record[field.Name]; !ok && field.Default != nil {
				record[field.Name] = field.Default
			}
		}
	}
	if tenant != "" {
		record[tenant] = userID
	}
	return record, nil
}

func (b *Builder) generateID(field rdb.FieldDefinition) (any, error) {
	id := b.options.generator.Generate()
	if field.Type != rdb.FieldTypeInt {
		return id, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "generated id %q for int column %s", id, field.Name)
	}
	return n, nil
}
