package rdb

import (
	"context"

	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
)

// Table 在 Driver 之上提供单表的通用操作，返回的记录均经过 Normalize
type Table struct {
	driver Driver
	model  *TableModel
}

func NewTable(driver Driver, model *TableModel) (*Table, error) {
	if driver == nil {
		return nil, errors.New("driver is nil")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &Table{driver: driver, model: model}, nil
}

func (t *Table) Model() *TableModel {
	return t.model
}

func (t *Table) Driver() Driver {
	return t.driver
}

// PrimaryKeyQuery 构造按主键定位一条记录的条件
func (t *Table) PrimaryKeyQuery(record Record) (*query.BoolQuery, error) {
	values, err := t.model.PrimaryKeyOf(record)
	if err != nil {
		return nil, err
	}
	q := &query.BoolQuery{}
	for i, pk := range t.model.PrimaryKey {
		q.Must = append(q.Must, query.Eq(pk, values[i]))
	}
	return q, nil
}

// Insert 插入记录后按主键重新读取，返回顺序与输入一致
func (t *Table) Insert(ctx context.Context, records []Record, opts ...InsertOption) ([]Record, error) {
	if len(records) == 0 {
		return []Record{}, nil
	}

	keys := make([]string, len(records))
	reread := &query.BoolQuery{}
	for i, record := range records {
		key, err := t.model.KeyOf(record)
		if err != nil {
			return nil, err
		}
		keys[i] = key
		pkQuery, err := t.PrimaryKeyQuery(record)
		if err != nil {
			return nil, err
		}
		reread.Should = append(reread.Should, pkQuery)
	}

	if err := t.driver.Insert(ctx, t.model, records, opts...); err != nil {
		return nil, err
	}

	rows, err := t.driver.Find(ctx, t.model, reread)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Record, len(rows))
	for _, row := range rows {
		row = t.model.Normalize(row)
		key, err := t.model.KeyOf(row)
		if err != nil {
			return nil, err
		}
		byKey[key] = row
	}

	result := make([]Record, len(records))
	for i, key := range keys {
		row, ok := byKey[key]
		if !ok {
			return nil, errors.Errorf("inserted record %s not found in table %s", key, t.model.Table)
		}
		result[i] = row
	}
	return result, nil
}

// SelectFirst 返回第一条满足条件的记录，没有记录时返回 nil
func (t *Table) SelectFirst(ctx context.Context, q query.Query, opts ...QueryOption) (Record, error) {
	rows, err := t.driver.Find(ctx, t.model, q, append(opts, WithLimit(1))...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return t.model.Normalize(rows[0]), nil
}

// SelectMany 返回满足条件的全部记录，没有记录时返回空切片
func (t *Table) SelectMany(ctx context.Context, q query.Query, opts ...QueryOption) ([]Record, error) {
	rows, err := t.driver.Find(ctx, t.model, q, opts...)
	if err != nil {
		return nil, err
	}
	result := make([]Record, len(rows))
	for i, row := range rows {
		result[i] = t.model.Normalize(row)
	}
	return result, nil
}

// Update 定位第一条满足条件的记录并更新，随后按主键重新读取
// 没有记录满足条件时返回 nil
func (t *Table) Update(ctx context.Context, q query.Query, values Record) (Record, error) {
	current, err := t.SelectFirst(ctx, q)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	pkQuery, err := t.PrimaryKeyQuery(current)
	if err != nil {
		return nil, err
	}
	// MySQL 在值未变化时返回 0 行受影响，这里不依赖影响行数，直接按主键重读
	if _, err := t.driver.Update(ctx, t.model, query.And(q, pkQuery), values); err != nil {
		return nil, err
	}
	return t.SelectFirst(ctx, pkQuery)
}
