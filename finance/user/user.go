// Package user 用户资料，表本身不按租户隔离
package user

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

const Name = "users"

const OperationGetByEmail = "getByEmail"

var standard = []string{
	table.OperationCreate,
	table.OperationGetById,
	table.OperationUpdateById,
	table.OperationRemoveById,
}

type User struct {
	_               struct{}   `table:"users"`
	ID              string     `rdb:"id,primary,size=32,generated=id"`
	FirstName       string     `rdb:"firstName,size=255"`
	LastName        string     `rdb:"lastName,size=255"`
	Image           string     `rdb:"image,size=1024"`
	Email           string     `rdb:"email,required,size=255,unique=uk_users_email"`
	EmailVerifiedAt *time.Time `rdb:"emailVerifiedAt"`
	Role            string     `rdb:"role,size=16,default=user"`
	IsEnabled       bool       `rdb:"isEnabled,default=true"`
	LastLoginAt     *time.Time `rdb:"lastLoginAt"`
	CreatedAt       time.Time  `rdb:"createdAt,generated=createTime"`
	UpdatedAt       time.Time  `rdb:"updatedAt,generated=updateTime"`
}

var Model = rdb.NewTableModelBuilder().MustFromStruct(User{})

func Config() *table.Config {
	return table.New(Model).
		RestrictInsertFields("firstName", "lastName", "image", "email").
		RestrictUpdateFields("firstName", "lastName", "image").
		SetDefaultFilters(table.Predicate{Field: "isEnabled", Value: true}).
		SetSoftDelete(table.SoftDelete{Column: "isEnabled", Value: false})
}

func email() *contract.Contract {
	return contract.New("email", contract.Field{Name: "email", Kind: contract.KindString, Required: true, Rules: "email,max=255"})
}

func New(driver rdb.Driver, opts ...query.Option) (*feature.Module, error) {
	config := Config()

	schemas := schema.NewBuilder(config).
		WithStandard(standard...).
		AddSchema(OperationGetByEmail, func(v schema.View, h schema.Helpers) (schema.Set, error) {
			input := contract.New("getByEmailInput", contract.Object(table.FieldFilters, email(), true))
			return schema.Set{Service: input, Endpoint: schema.Endpoint{Query: email()}}, nil
		})

	base := query.NewBuilder(config, driver, opts...)
	queries := base.Create().GetById().UpdateById().RemoveById().
		Add(OperationGetByEmail, func(ctx context.Context, in *query.Input) (any, error) {
			if err := email().Validate(in.Filters); err != nil {
				return nil, err
			}
			return base.FindOne(ctx, OperationGetByEmail, query.Selection{IDs: map[string]any{"email": in.Filters["email"]}})
		})

	return feature.Assemble(Name, config, schemas, queries, func(b *service.Builder) *service.Builder {
		return b.WithStandard(standard...).
			AddService(OperationGetByEmail, service.FromQuery(OperationGetByEmail, service.OnNullReturn))
	})
}
