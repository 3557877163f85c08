package database

import "github.com/hatlonely/featurex/ref"

// 引入本包即可通过 ref.TypeOptions 按名字构造驱动，namespace 为 github.com/hatlonely/featurex/rdb/database
func init() {
	ref.MustRegisterT[SQL](NewSQLWithOptions)
	ref.MustRegisterT[Gorm](NewGormWithOptions)
	ref.MustRegisterT[Mongo](NewMongoWithOptions)
	ref.MustRegisterT[ES](NewESWithOptions)
	ref.MustRegisterT[Bolt](NewBoltWithOptions)
	ref.MustRegisterT[Memory](NewMemory)
	ref.MustRegisterT[Observable](NewObservableWithOptions)
}
