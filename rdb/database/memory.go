package database

import (
	"context"
	"sync"

	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
)

// Memory 进程内存储，按插入顺序保存记录，适用于测试和单机演示
type Memory struct {
	mutex  sync.RWMutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	keys []string
	rows map[string]rdb.Record
}

func NewMemory() *Memory {
	return &Memory{tables: map[string]*memoryTable{}}
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.tables[model.Table]; !ok {
		m.tables[model.Table] = &memoryTable{rows: map[string]rdb.Record{}}
	}
	return nil
}

func (m *Memory) table(model *rdb.TableModel) (*memoryTable, error) {
	table, ok := m.tables[model.Table]
	if !ok {
		return nil, errors.Errorf("table %s not exists", model.Table)
	}
	return table, nil
}

// Insert 整批写入，任意一条主键冲突时不写入任何记录
func (m *Memory) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	options := rdb.NewInsertOptions(opts...)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	table, err := m.table(model)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(records))
	rows := make([]rdb.Record, 0, len(records))
	seen := map[string]struct{}{}
	for _, record := range records {
		row, err := prepareRecord(model, record)
		if err != nil {
			return err
		}
		key, err := model.KeyOf(row)
		if err != nil {
			return err
		}
		_, exists := table.rows[key]
		_, repeated := seen[key]
		if exists || repeated {
			if options.IgnoreConflict {
				continue
			}
			return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: key %s exists", model.Table, key)
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		rows = append(rows, row)
	}

	for i, key := range keys {
		table.keys = append(table.keys, key)
		table.rows[key] = rows[i]
	}
	return nil
}

func (m *Memory) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	table, err := m.table(model)
	if err != nil {
		return nil, err
	}

	var records []rdb.Record
	for _, key := range table.keys {
		row := table.rows[key]
		if q == nil || q.Match(row) {
			records = append(records, row.Clone())
		}
	}
	return rdb.ApplyQueryOptions(records, rdb.NewQueryOptions(opts...)), nil
}

func (m *Memory) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	changes, err := prepareValues(model, values)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	table, err := m.table(model)
	if err != nil {
		return 0, err
	}

	var affected int64
	for _, key := range table.keys {
		row := table.rows[key]
		if q != nil && !q.Match(row) {
			continue
		}
		updated := row.Clone()
		for k, v := range changes {
			updated[k] = v
		}
		table.rows[key] = updated
		affected++
	}
	return affected, nil
}

// prepareRecord 拒绝未定义的列，补齐默认值，并规整为字段类型
func prepareRecord(model *rdb.TableModel, record rdb.Record) (rdb.Record, error) {
	row := make(rdb.Record, len(model.Fields))
	for k := range record {
		if !model.HasField(k) {
			return nil, errors.Errorf("unknown column %s in table %s", k, model.Table)
		}
	}
	for _, field := range model.Fields {
		v, ok := record[field.Name]
		if !ok {
			v = field.Default
		}
		row[field.Name] = v
	}
	return model.Normalize(row), nil
}

func prepareValues(model *rdb.TableModel, values rdb.Record) (rdb.Record, error) {
	for k := range values {
		if !model.HasField(k) {
			return nil, errors.Errorf("unknown column %s in table %s", k, model.Table)
		}
	}
	return model.Normalize(values), nil
}
