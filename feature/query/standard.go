package query

import (
	"context"

	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
)

func (b *Builder) Create() *Builder {
	return b.Add(table.OperationCreate, func(ctx context.Context, input *Input) (any, error) {
		record, err := b.prepareCreate(input.UserID, input.Data)
		if err != nil {
			return nil, err
		}
		rows, err := b.table.Insert(ctx, []rdb.Record{record}, b.options.insertOptions...)
		if err != nil {
			return nil, err
		}
		return b.project(rows[0]), nil
	})
}

// CreateMany 全部记录通过校验后一次插入
func (b *Builder) CreateMany() *Builder {
	return b.Add(table.OperationCreateMany, func(ctx context.Context, input *Input) (any, error) {
		if len(input.Records) == 0 {
			return nil, validationError("createMany", table.FieldData, "at least one record is required")
		}
		records := make([]rdb.Record, len(input.Records))
		for i, data := range input.Records {
			record, err := b.prepareCreate(input.UserID, data)
			if err != nil {
				return nil, errors.WithMessagef(err, "records[%d]", i)
			}
			records[i] = record
		}
		rows, err := b.table.Insert(ctx, records, b.options.insertOptions...)
		if err != nil {
			return nil, err
		}
		return b.projectAll(rows), nil
	})
}

func (b *Builder) GetById() *Builder {
	return b.Add(table.OperationGetById, func(ctx context.Context, input *Input) (any, error) {
		q, err := b.locate(ctx, table.OperationGetById, input.Selection(), true)
		if err != nil {
			return nil, err
		}
		row, err := b.table.SelectFirst(ctx, q)
		if err != nil {
			return nil, err
		}
		if row == nil {
			b.logger.DebugContext(ctx, "record not found", "operation", table.OperationGetById)
		}
		return b.project(row), nil
	})
}

// UpdateById 只写入 updateFields 中的列，空数据视为校验错误
func (b *Builder) UpdateById() *Builder {
	return b.Add(table.OperationUpdateById, func(ctx context.Context, input *Input) (any, error) {
		q, err := b.locate(ctx, table.OperationUpdateById, input.Selection(), true)
		if err != nil {
			return nil, err
		}
		if len(input.Data) == 0 {
			return nil, validationError("update", table.FieldData, "no fields to update")
		}
		values := rdb.Record(input.Data)
		if err := b.update.Validate(values); err != nil {
			return nil, err
		}
		return b.updateLocated(ctx, table.OperationUpdateById, q, values)
	})
}

// RemoveById 逻辑删除，未配置逻辑删除列时 Build 返回配置错误
func (b *Builder) RemoveById() *Builder {
	if b.err != nil {
		return b
	}
	softDelete := b.config.SoftDelete()
	if softDelete == nil {
		return b.fail(errors.Wrapf(table.ErrConfiguration, "%s: removeById requires a soft delete column", b.config.Table()))
	}
	return b.Add(table.OperationRemoveById, func(ctx context.Context, input *Input) (any, error) {
		q, err := b.locate(ctx, table.OperationRemoveById, input.Selection(), true)
		if err != nil {
			return nil, err
		}
		values := rdb.Record{softDelete.Column: softDelete.Value}
		if softDelete.TimestampColumn != "" {
			values[softDelete.TimestampColumn] = b.Now()
		}
		return b.updateLocated(ctx, table.OperationRemoveById, q, values)
	})
}

func (b *Builder) GetMany() *Builder {
	return b.Add(table.OperationGetMany, b.getMany)
}

// All 注册全部标准操作，未配置逻辑删除时跳过 removeById
func (b *Builder) All() *Builder {
	out := b.Create().CreateMany().GetById().UpdateById()
	if b.config != nil && b.config.SoftDelete() != nil {
		out = out.RemoveById()
	}
	return out.GetMany()
}
