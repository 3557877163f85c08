// Package bank 用户与银行的连接记录
package bank

import (
	"time"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
)

const Name = "banks"

type ConnectedBank struct {
	_              struct{}       `table:"connected_banks"`
	ID             string         `rdb:"id,primary,size=32,generated=id"`
	UserID         string         `rdb:"userId,required,size=64,index=idx_banks_userId"`
	GlobalBankID   string         `rdb:"globalBankId,required,size=32"`
	ProviderSource string         `rdb:"providerSource,size=32"`
	APICredentials map[string]any `rdb:"apiCredentials"`
	IsActive       bool           `rdb:"isActive,default=true"`
	CreatedAt      time.Time      `rdb:"createdAt,generated=createTime"`
	UpdatedAt      time.Time      `rdb:"updatedAt,generated=updateTime"`
}

var Model = rdb.NewTableModelBuilder().MustFromStruct(ConnectedBank{})

// Config 凭据只允许写入，不出现在返回结果中
func Config() *table.Config {
	return table.New(Model).
		SetUserIdField("userId").
		RestrictInsertFields("globalBankId", "providerSource", "apiCredentials").
		RestrictUpdateFields("providerSource", "apiCredentials").
		RestrictReturnColumns("id", "userId", "globalBankId", "providerSource", "isActive", "createdAt", "updatedAt").
		SetDefaultFilters(table.Predicate{Field: "isActive", Value: true}).
		SetSoftDelete(table.SoftDelete{Column: "isActive", Value: false}).
		SetFilters(
			table.Filter{Name: "provider", Column: "providerSource", Op: table.FilterEq},
			table.Filter{Name: "globalBankIds", Column: "globalBankId", Op: table.FilterIn},
		).
		SetOrdering([]string{"createdAt"}, rdb.Order{Field: "createdAt", Desc: true})
}

func New(driver rdb.Driver, opts ...query.Option) (*feature.Module, error) {
	return feature.NewStandardModule(Name, Config(), driver, opts...)
}
