// Package label 用户的层级标签
package label

import (
	"time"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/rdb"
)

const Name = "labels"

type Label struct {
	_             struct{}  `table:"labels"`
	ID            string    `rdb:"id,primary,size=32,generated=id"`
	UserID        string    `rdb:"userId,required,size=64,index=idx_labels_userId"`
	Name          string    `rdb:"name,required,size=128"`
	Description   string    `rdb:"description,size=512"`
	Color         string    `rdb:"color,size=16"`
	SortOrder     int64     `rdb:"sortOrder,default=0"`
	Depth         int64     `rdb:"depth,default=0"`
	ParentID      string    `rdb:"parentId,size=32,index=idx_labels_parentId"`
	FirstParentID string    `rdb:"firstParentId,size=32"`
	IsDeleted     bool      `rdb:"isDeleted,default=false"`
	CreatedAt     time.Time `rdb:"createdAt,generated=createTime"`
	UpdatedAt     time.Time `rdb:"updatedAt,generated=updateTime"`
}

var Model = rdb.NewTableModelBuilder().MustFromStruct(Label{})

func Config() *table.Config {
	return table.New(Model).
		SetUserIdField("userId").
		RestrictInsertFields("name", "description", "color", "sortOrder", "depth", "parentId", "firstParentId").
		SetDefaultFilters(table.Predicate{Field: "isDeleted", Value: false}).
		SetSoftDelete(table.SoftDelete{Column: "isDeleted", Value: true}).
		SetFilters(
			table.Filter{Name: "search", Column: "name", Op: table.FilterILike},
			table.Filter{Name: "parentLabelId", Column: "parentId", Op: table.FilterEq},
		).
		SetOrdering([]string{"sortOrder", "name", "createdAt"}, rdb.Order{Field: "sortOrder"}, rdb.Order{Field: "name"})
}

func New(driver rdb.Driver, opts ...query.Option) (*feature.Module, error) {
	return feature.NewStandardModule(Name, Config(), driver, opts...)
}
