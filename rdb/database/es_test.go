package database

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeES 记录请求并按路径返回固定响应
type fakeES struct {
	mutex       sync.Mutex
	indexExists bool
	docs        map[string]bool
	requests    map[string]map[string]any
}

func newFakeES() *fakeES {
	return &fakeES{docs: map[string]bool{}, requests: map[string]map[string]any{}}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	path := r.URL.Path

	switch {
	case path == "/":
		_, _ = io.WriteString(w, `{"version":{"number":"8.19.0","build_flavor":"default"},"tagline":"You Know, for Search"}`)
	case r.Method == http.MethodHead && path == "/fx_labels":
		if !f.indexExists {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && path == "/fx_labels":
		f.indexExists = true
		f.requests["create_index"] = body
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasPrefix(path, "/fx_labels/_create/"):
		id := strings.TrimPrefix(path, "/fx_labels/_create/")
		if f.docs[id] {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"error":{"type":"version_conflict_engine_exception"},"status":409}`)
			return
		}
		f.docs[id] = true
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case path == "/fx_labels/_search":
		f.requests["search"] = body
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"userId":"u1","id":"l1","name":"Food","amount":300,"createTime":"2024-03-01T08:30:00Z"}},
			{"_source":{"userId":"u1","id":"l2","name":"Rent","amount":100}}
		]}}`)
	case path == "/fx_labels/_update_by_query":
		f.requests["update"] = body
		_, _ = io.WriteString(w, `{"updated":2}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"unexpected request"}`)
	}
}

func TestES(t *testing.T) {
	Convey("ES 驱动", t, func() {
		ctx := context.Background()
		fake := newFakeES()
		server := httptest.NewServer(fake)
		defer server.Close()

		driver, err := NewESWithOptions(&ESOptions{
			Addresses:   []string{server.URL},
			IndexPrefix: "fx_",
		})
		So(err, ShouldBeNil)
		defer driver.Close()
		model := newTestModel()

		Convey("索引不存在时按字段类型建立映射", func() {
			So(driver.Migrate(ctx, model), ShouldBeNil)
			properties := fake.requests["create_index"]["mappings"].(map[string]any)["properties"].(map[string]any)
			So(properties["name"], ShouldResemble, map[string]any{"type": "keyword"})
			So(properties["amount"], ShouldResemble, map[string]any{"type": "long"})
			So(properties["isDeleted"], ShouldResemble, map[string]any{"type": "boolean"})
			So(properties["createTime"].(map[string]any)["type"], ShouldEqual, "date")

			delete(fake.requests, "create_index")
			So(driver.Migrate(ctx, model), ShouldBeNil)
			So(fake.requests["create_index"], ShouldBeNil)
		})

		Convey("文档已存在时返回主键冲突", func() {
			records := []rdb.Record{{"userId": "u1", "id": "l1", "name": "Food"}}
			So(driver.Insert(ctx, model, records), ShouldBeNil)
			So(fake.docs["u1:l1"], ShouldBeTrue)

			err := driver.Insert(ctx, model, records)
			So(errors.Is(err, rdb.ErrDuplicateKey), ShouldBeTrue)
			So(driver.Insert(ctx, model, records, rdb.WithIgnoreConflict()), ShouldBeNil)
		})

		Convey("查询转换为 ES DSL", func() {
			records, err := driver.Find(ctx, model, query.Eq("userId", "u1"),
				rdb.WithOrderBy("amount", true), rdb.WithLimit(20), rdb.WithOffset(40))
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)
			So(model.Normalize(records[0])["amount"], ShouldEqual, int64(300))

			search := fake.requests["search"]
			So(search["size"], ShouldEqual, 20.0)
			So(search["from"], ShouldEqual, 40.0)
			So(search["query"], ShouldResemble, map[string]any{"term": map[string]any{"userId": "u1"}})
			So(search["sort"], ShouldResemble, []any{map[string]any{"amount": map[string]any{"order": "desc"}}})
		})

		Convey("未指定 limit 时使用最大窗口", func() {
			_, err := driver.Find(ctx, model, nil)
			So(err, ShouldBeNil)
			search := fake.requests["search"]
			So(search["size"], ShouldEqual, 10000.0)
			So(search["query"], ShouldResemble, map[string]any{"match_all": map[string]any{}})
		})

		Convey("更新使用脚本写入字段", func() {
			affected, err := driver.Update(ctx, model, query.Eq("userId", "u1"), rdb.Record{"name": "Meal"})
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, int64(2))
			script := fake.requests["update"]["script"].(map[string]any)
			So(script["params"], ShouldResemble, map[string]any{"values": map[string]any{"name": "Meal"}})
		})
	})
}
