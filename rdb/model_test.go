package rdb

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testBudget struct {
	_          struct{}       `table:"budgets"`
	UserID     string         `rdb:"userId,primary,required,size=64,index=idx_user_period"`
	ID         string         `rdb:"id,primary,generated=id"`
	Period     string         `rdb:"period,index=idx_user_period"`
	Amount     float64        `rdb:"amount,default=0"`
	Email      string         `rdb:"email,unique"`
	Active     bool           `rdb:"isActive,default=true"`
	Rules      map[string]any `rdb:"rules"`
	CreateTime time.Time      `rdb:"createTime,generated=createTime"`
	Ignored    string         `rdb:"-"`
	Note       string
	internal   string
}

type namedTable struct {
	ID string `rdb:"id,pk"`
}

func (namedTable) TableName() string {
	return "named"
}

func TestFromStruct(t *testing.T) {
	Convey("从结构体标签构建表模型", t, func() {
		model, err := NewTableModelBuilder().FromStruct(&testBudget{})
		So(err, ShouldBeNil)
		So(model.Table, ShouldEqual, "budgets")
		So(model.PrimaryKey, ShouldResemble, []string{"userId", "id"})
		So(model.FieldNames(), ShouldResemble, []string{"userId", "id", "period", "amount", "email", "isActive", "rules", "createTime", "Note"})

		userID, _ := model.Field("userId")
		So(userID.Required, ShouldBeTrue)
		So(userID.Size, ShouldEqual, 64)

		id, _ := model.Field("id")
		So(id.Generated, ShouldEqual, GeneratedID)

		amount, _ := model.Field("amount")
		So(amount.Type, ShouldEqual, FieldTypeFloat)
		So(amount.Default, ShouldEqual, 0.0)

		active, _ := model.Field("isActive")
		So(active.Default, ShouldEqual, true)

		rules, _ := model.Field("rules")
		So(rules.Type, ShouldEqual, FieldTypeJSON)

		createTime, _ := model.Field("createTime")
		So(createTime.Type, ShouldEqual, FieldTypeDate)

		So(model.Indexes, ShouldResemble, []IndexDefinition{
			{Name: "idx_user_period", Fields: []string{"userId", "period"}},
			{Name: "uk_email", Fields: []string{"email"}, Unique: true},
		})
	})

	Convey("TableName 方法优先", t, func() {
		model := NewTableModelBuilder().MustFromStruct(namedTable{})
		So(model.Table, ShouldEqual, "named")
		So(model.IsPrimaryKey("id"), ShouldBeTrue)
	})

	Convey("非法标签", t, func() {
		_, err := NewTableModelBuilder().FromStruct(&struct {
			ID string `rdb:"id,primary,colour=red"`
		}{})
		So(err, ShouldNotBeNil)

		_, err = NewTableModelBuilder().FromStruct(&struct {
			ID string `rdb:"id,size=abc"`
		}{})
		So(err, ShouldNotBeNil)

		_, err = NewTableModelBuilder().FromStruct(1)
		So(err, ShouldNotBeNil)

		So(func() {
			NewTableModelBuilder().MustFromStruct(&struct{ ID string }{})
		}, ShouldPanic)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *TableModel {
		return &TableModel{
			Table:      "tags",
			Fields:     []FieldDefinition{{Name: "userId", Type: FieldTypeString}, {Name: "id", Type: FieldTypeString}},
			PrimaryKey: []string{"userId", "id"},
		}
	}

	Convey("合法模型", t, func() {
		So(valid().Validate(), ShouldBeNil)
	})

	Convey("非法模型", t, func() {
		var nilModel *TableModel
		So(nilModel.Validate(), ShouldNotBeNil)

		for _, mutate := range []func(m *TableModel){
			func(m *TableModel) { m.Table = "" },
			func(m *TableModel) { m.Fields = nil },
			func(m *TableModel) { m.Fields = append(m.Fields, FieldDefinition{Name: "id", Type: FieldTypeString}) },
			func(m *TableModel) { m.Fields[0].Type = "uuid" },
			func(m *TableModel) { m.Fields[0].Generated = "sequence" },
			func(m *TableModel) { m.PrimaryKey = nil },
			func(m *TableModel) { m.PrimaryKey = []string{"name"} },
			func(m *TableModel) { m.Indexes = []IndexDefinition{{Name: "idx", Fields: []string{"name"}}} },
		} {
			m := valid()
			mutate(m)
			err := m.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, ErrInvalidModel.Error())
		}
	})
}

func TestKeyOf(t *testing.T) {
	model := &TableModel{
		Table:      "tags",
		Fields:     []FieldDefinition{{Name: "userId", Type: FieldTypeString}, {Name: "id", Type: FieldTypeInt}},
		PrimaryKey: []string{"userId", "id"},
	}

	Convey("按主键顺序拼接", t, func() {
		key, err := model.KeyOf(Record{"id": int64(3), "userId": "u1", "name": "x"})
		So(err, ShouldBeNil)
		So(key, ShouldEqual, "u1:3")
	})

	Convey("缺少主键", t, func() {
		_, err := model.KeyOf(Record{"userId": "u1"})
		So(err, ShouldNotBeNil)
	})
}

type fakeDateTime int64

func (d fakeDateTime) Time() time.Time {
	return time.UnixMilli(int64(d))
}

func TestNormalize(t *testing.T) {
	model := &TableModel{
		Table: "budgets",
		Fields: []FieldDefinition{
			{Name: "name", Type: FieldTypeString},
			{Name: "count", Type: FieldTypeInt},
			{Name: "amount", Type: FieldTypeFloat},
			{Name: "isActive", Type: FieldTypeBool},
			{Name: "createTime", Type: FieldTypeDate},
			{Name: "rules", Type: FieldTypeJSON},
		},
		PrimaryKey: []string{"name"},
	}
	want := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	Convey("将驱动返回的原始值规整为字段类型", t, func() {
		record := model.Normalize(Record{
			"name":       []byte("food"),
			"count":      int32(3),
			"amount":     "12.5",
			"isActive":   int64(1),
			"createTime": "2024-03-01 08:30:00",
			"rules":      `{"limit":100}`,
			"extra":      "kept",
		})
		So(record["name"], ShouldEqual, "food")
		So(record["count"], ShouldEqual, int64(3))
		So(record["amount"], ShouldEqual, 12.5)
		So(record["isActive"], ShouldEqual, true)
		So(record["createTime"].(time.Time).Equal(want), ShouldBeTrue)
		So(record["rules"], ShouldResemble, map[string]any{"limit": 100.0})
		So(record["extra"], ShouldEqual, "kept")
	})

	Convey("各种时间格式", t, func() {
		for _, v := range []any{
			want,
			want.In(time.FixedZone("CST", 8*3600)),
			fakeDateTime(want.UnixMilli()),
			"2024-03-01T08:30:00Z",
			"2024-03-01 16:30:00+08:00",
			"2024-03-01 08:30:00 +0000 UTC",
		} {
			got := model.Normalize(Record{"createTime": v})["createTime"].(time.Time)
			So(got.Equal(want), ShouldBeTrue)
			So(got.Location(), ShouldEqual, time.UTC)
		}
	})

	Convey("空值和无法转换的值保持原样", t, func() {
		record := model.Normalize(Record{"count": nil, "amount": "abc", "isActive": "maybe"})
		So(record["count"], ShouldBeNil)
		So(record["amount"], ShouldEqual, "abc")
		So(record["isActive"], ShouldEqual, "maybe")
		So(model.Normalize(nil), ShouldBeNil)
	})
}

func TestRecord(t *testing.T) {
	Convey("Project 以 nil 补齐缺失的列", t, func() {
		record := Record{"id": "t1", "name": "travel", "userId": "u1"}
		So(record.Project([]string{"id", "name", "color"}), ShouldResemble, Record{"id": "t1", "name": "travel", "color": nil})
	})

	Convey("Clone 不影响原记录", t, func() {
		record := Record{"id": "t1"}
		clone := record.Clone()
		clone["id"] = "t2"
		So(record["id"], ShouldEqual, "t1")
	})
}
