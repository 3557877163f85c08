// Package tag 用户自定义的交易标记，停用后不再出现在查询结果中
package tag

import (
	"time"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
)

const Name = "tags"

type Tag struct {
	_                struct{}  `table:"tags"`
	ID               string    `rdb:"id,primary,size=32,generated=id"`
	UserID           string    `rdb:"userId,required,size=64,unique=uk_tags_user_name"`
	Name             string    `rdb:"name,required,size=128,unique=uk_tags_user_name"`
	Description      string    `rdb:"description,size=512"`
	Color            string    `rdb:"color,size=16,default=#6366f1"`
	Icon             string    `rdb:"icon,size=64"`
	TagType          string    `rdb:"tagType,size=16,default=custom"`
	ParentTagID      string    `rdb:"parentTagId,size=32"`
	TransactionCount int64     `rdb:"transactionCount,default=0"`
	IsActive         bool      `rdb:"isActive,default=true"`
	CreatedAt        time.Time `rdb:"createdAt,generated=createTime"`
	UpdatedAt        time.Time `rdb:"updatedAt,generated=updateTime"`
}

var Model = rdb.NewTableModelBuilder().MustFromStruct(Tag{})

func Config() *table.Config {
	return table.New(Model).
		SetUserIdField("userId").
		RestrictInsertFields("name", "description", "color", "icon", "tagType", "parentTagId").
		SetDefaultFilters(table.Predicate{Field: "isActive", Value: true}).
		SetSoftDelete(table.SoftDelete{Column: "isActive", Value: false}).
		SetFilters(
			table.Filter{Name: "name", Column: "name", Op: table.FilterILike},
			table.Filter{Name: "tagType", Column: "tagType", Op: table.FilterEq},
		).
		SetOrdering([]string{"name", "transactionCount", "createdAt"}, rdb.Order{Field: "name"})
}

func New(driver rdb.Driver, opts ...query.Option) (*feature.Module, error) {
	return feature.NewStandardModule(Name, Config(), driver, opts...)
}
