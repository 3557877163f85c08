package schema

import (
	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/pkg/errors"
)

func (b *Builder) Create() *Builder {
	return b.AddSchema(table.OperationCreate, func(v View, h Helpers) (Set, error) {
		service := v.Config().BuildCreateInputSchema()
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				JSON: v.Insert().Rename("createBody"),
			},
		}, nil
	})
}

func (b *Builder) CreateMany() *Builder {
	return b.AddSchema(table.OperationCreateMany, func(v View, h Helpers) (Set, error) {
		service := v.Config().BuildCreateManyInputSchema()
		data, _ := service.Field(table.FieldData)
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				JSON: contract.New("createManyBody", data),
			},
		}, nil
	})
}

func (b *Builder) GetById() *Builder {
	return b.AddSchema(table.OperationGetById, func(v View, h Helpers) (Set, error) {
		service := h.TenantQualified(v.Identifier().Rename("getByIdInput"))
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				Param: v.Config().IdContract().Rename("getByIdParam"),
			},
		}, nil
	})
}

// UpdateById 请求体是 updateFields 的局部结构
func (b *Builder) UpdateById() *Builder {
	return b.AddSchema(table.OperationUpdateById, func(v View, h Helpers) (Set, error) {
		service := v.Config().BuildUpdateInputSchema()
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				JSON:  v.Update().Partial().Rename("updateBody"),
				Param: v.Config().IdContract().Rename("updateParam"),
			},
		}, nil
	})
}

func (b *Builder) RemoveById() *Builder {
	return b.AddSchema(table.OperationRemoveById, func(v View, h Helpers) (Set, error) {
		service := h.TenantQualified(v.Identifier().Rename("removeByIdInput"))
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				Param: v.Config().IdContract().Rename("removeByIdParam"),
			},
		}, nil
	})
}

// GetMany 查询字符串为过滤条件和分页字段平铺，排序不对外开放
func (b *Builder) GetMany() *Builder {
	return b.AddSchema(table.OperationGetMany, func(v View, h Helpers) (Set, error) {
		service := v.Config().BuildManyInputSchema()
		return Set{
			Service: service,
			Query:   service,
			Endpoint: Endpoint{
				Query: v.Config().BuildFilterSchema().Merge(h.Pagination()).Rename("getManyQuery"),
			},
		}, nil
	})
}

var standardDerivations = map[string]func(*Builder) *Builder{
	table.OperationCreate:     (*Builder).Create,
	table.OperationCreateMany: (*Builder).CreateMany,
	table.OperationGetById:    (*Builder).GetById,
	table.OperationUpdateById: (*Builder).UpdateById,
	table.OperationRemoveById: (*Builder).RemoveById,
	table.OperationGetMany:    (*Builder).GetMany,
}

// WithStandard 按给定顺序注册标准操作
func (b *Builder) WithStandard(operations ...string) *Builder {
	out := b
	for _, op := range operations {
		derive, ok := standardDerivations[op]
		if !ok {
			if out.err != nil {
				return out
			}
			failed := out.clone()
			failed.err = errors.Wrapf(table.ErrConfiguration, "%s: %s is not a standard operation", out.config.Table(), op)
			return failed
		}
		out = derive(out)
	}
	return out
}

// RegisterAllStandard 注册全部标准操作，未配置逻辑删除时跳过 removeById
func (b *Builder) RegisterAllStandard() *Builder {
	if b.err != nil {
		return b
	}
	operations := table.StandardOperations
	if b.config.SoftDelete() == nil {
		operations = nil
		for _, op := range table.StandardOperations {
			if op != table.OperationRemoveById {
				operations = append(operations, op)
			}
		}
	}
	return b.WithStandard(operations...)
}
