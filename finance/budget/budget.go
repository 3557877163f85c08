// Package budget 交易在用户之间的分摊记录
//
// 除标准操作外，标记重算和登记已付金额也走同一套结构、定位和空结果处理，
// 不直接访问存储。
package budget

import (
	"context"
	"time"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/schema"
	"github.com/hatlonely/featurex/feature/service"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
)

const Name = "budgets"

const (
	OperationMarkForRecalculation = "markForRecalculation"
	OperationUpdatePaidAmount     = "updatePaidAmount"
	OperationGetByTransaction     = "getByTransaction"
)

type Budget struct {
	_                     struct{}  `table:"transaction_budgets"`
	ID                    string    `rdb:"id,primary,size=32,generated=id"`
	UserID                string    `rdb:"userId,required,size=64,index=idx_budgets_userId"`
	TransactionID         string    `rdb:"transactionId,required,size=32,index=idx_budgets_transactionId"`
	BudgetAmount          float64   `rdb:"budgetAmount,required"`
	BudgetPercentage      float64   `rdb:"budgetPercentage,required"`
	PaidAmount            float64   `rdb:"paidAmount,default=0"`
	SplitSource           string    `rdb:"splitSource,size=16,default=none"`
	IsRecalculationNeeded bool      `rdb:"isRecalculationNeeded,default=false,index=idx_budgets_recalculation"`
	IsActive              bool      `rdb:"isActive,default=true"`
	CreatedAt             time.Time `rdb:"createdAt,generated=createTime"`
	UpdatedAt             time.Time `rdb:"updatedAt,generated=updateTime"`
}

var Model = rdb.NewTableModelBuilder().MustFromStruct(Budget{})

func Config() *table.Config {
	return table.New(Model).
		SetUserIdField("userId").
		RestrictInsertFields("transactionId", "budgetAmount", "budgetPercentage", "splitSource").
		RestrictUpdateFields("budgetAmount", "budgetPercentage", "splitSource").
		SetDefaultFilters(table.Predicate{Field: "isActive", Value: true}).
		SetSoftDelete(table.SoftDelete{Column: "isActive", Value: false}).
		SetFilters(
			table.Filter{Name: "transactionId", Column: "transactionId", Op: table.FilterEq},
			table.Filter{Name: "splitSource", Column: "splitSource", Op: table.FilterEq},
			table.Filter{Name: "needsRecalculation", Column: "isRecalculationNeeded", Op: table.FilterEq},
		).
		SetOrdering([]string{"createdAt", "budgetAmount"}, rdb.Order{Field: "createdAt", Desc: true})
}

// paidAmount 登记已付金额的请求体
func paidAmount() *contract.Contract {
	return contract.New("paidAmount", contract.Field{Name: "paidAmount", Kind: contract.KindFloat, Required: true, Rules: "min=0"})
}

func Schemas(config *table.Config) *schema.Builder {
	return schema.NewBuilder(config).
		RegisterAllStandard().
		AddSchema(OperationMarkForRecalculation, func(v schema.View, h schema.Helpers) (schema.Set, error) {
			input := h.TenantQualified(v.Identifier().Rename("markForRecalculationInput"))
			return schema.Set{
				Service:  input,
				Query:    input,
				Endpoint: schema.Endpoint{Param: v.Config().IdContract()},
			}, nil
		}).
		AddSchema(OperationUpdatePaidAmount, func(v schema.View, h schema.Helpers) (schema.Set, error) {
			input := h.TenantQualified(v.Identifier().
				Extend(contract.Object(table.FieldData, paidAmount(), true)).
				Rename("updatePaidAmountInput"))
			return schema.Set{
				Service:  input,
				Query:    input,
				Endpoint: schema.Endpoint{
					JSON:  paidAmount(),
					Param: v.Config().IdContract(),
				},
			}, nil
		}).
		AddSchema(OperationGetByTransaction, func(v schema.View, h schema.Helpers) (schema.Set, error) {
			filters, err := h.Columns("transactionId")
			if err != nil {
				return schema.Set{}, err
			}
			filters = filters.Required()
			input := h.TenantQualified(contract.New("getByTransactionInput", contract.Object(table.FieldFilters, filters, true)))
			return schema.Set{
				Service:  input,
				Query:    input,
				Endpoint: schema.Endpoint{Query: filters},
			}, nil
		})
}

// byID 自定义操作只按 id 定位，租户和默认过滤条件由 AssembleIdentifiers 加入
func byID(in *query.Input) query.Selection {
	return query.Selection{UserID: in.UserID, IDs: map[string]any{"id": in.IDs["id"]}}
}

func Queries(config *table.Config, driver rdb.Driver, opts ...query.Option) *query.Builder {
	base := query.NewBuilder(config, driver, opts...)
	data := paidAmount()
	return base.All().
		Add(OperationMarkForRecalculation, func(ctx context.Context, in *query.Input) (any, error) {
			return base.UpdateOne(ctx, OperationMarkForRecalculation, byID(in), rdb.Record{"isRecalculationNeeded": true})
		}).
		Add(OperationUpdatePaidAmount, func(ctx context.Context, in *query.Input) (any, error) {
			if err := data.Validate(in.Data); err != nil {
				return nil, err
			}
			return base.UpdateOne(ctx, OperationUpdatePaidAmount, byID(in), rdb.Record{
				"paidAmount":            in.Data["paidAmount"],
				"isRecalculationNeeded": false,
			})
		}).
		Add(OperationGetByTransaction, func(ctx context.Context, in *query.Input) (any, error) {
			return base.FindOne(ctx, OperationGetByTransaction, query.Selection{
				UserID: in.UserID,
				IDs:    map[string]any{"transactionId": in.Filters["transactionId"]},
			})
		})
}

func Services(b *service.Builder) *service.Builder {
	return b.RegisterAllStandard().
		AddService(OperationMarkForRecalculation, service.FromQuery(OperationMarkForRecalculation, service.OnNullThrow)).
		AddService(OperationUpdatePaidAmount, service.FromQuery(OperationUpdatePaidAmount, service.OnNullThrow)).
		AddService(OperationGetByTransaction, service.FromQuery(OperationGetByTransaction, service.OnNullReturn))
}

func New(driver rdb.Driver, opts ...query.Option) (*feature.Module, error) {
	config := Config()
	return feature.Assemble(Name, config, Schemas(config), Queries(config, driver, opts...), Services)
}
