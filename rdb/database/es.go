package database

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/pkg/errors"
)

type ESOptions struct {
	Addresses  []string      `cfg:"addresses" def:"http://localhost:9200"`
	Username   string        `cfg:"username"`
	Password   string        `cfg:"password"`
	APIKey     string        `cfg:"apiKey"`
	Timeout    time.Duration `cfg:"timeout" def:"30s"`
	MaxRetries int           `cfg:"maxRetries" def:"3"`
	// IndexPrefix 索引名前缀，索引名为 前缀 + 小写表名
	IndexPrefix string `cfg:"indexPrefix"`
	// MaxResultWindow 未指定 Limit 时一次查询返回的最大文档数
	MaxResultWindow int `cfg:"maxResultWindow" def:"10000"`
}

// ES 每张表对应一个索引，文档 ID 为拼接后的主键，字符串字段映射为 keyword 以支持精确匹配和排序
type ES struct {
	client          *elasticsearch.Client
	indexPrefix     string
	maxResultWindow int
}

func NewESWithOptions(opts *ESOptions) (*ES, error) {
	if opts == nil {
		return nil, errors.New("options is nil")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: opts.Timeout,
		},
		MaxRetries: opts.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create elasticsearch client failed")
	}

	res, err := client.Info()
	if err != nil {
		return nil, errors.Wrap(err, "connect to elasticsearch failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("elasticsearch connection error: %s", res.String())
	}

	maxResultWindow := opts.MaxResultWindow
	if maxResultWindow <= 0 {
		maxResultWindow = 10000
	}
	return &ES{
		client:          client,
		indexPrefix:     opts.IndexPrefix,
		maxResultWindow: maxResultWindow,
	}, nil
}

func (es *ES) Close() error {
	return nil
}

func (es *ES) index(model *rdb.TableModel) string {
	return es.indexPrefix + strings.ToLower(model.Table)
}

// Migrate 索引不存在时按字段类型创建映射，已存在的索引保持不变
func (es *ES) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	index := es.index(model)

	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, es.client)
	if err != nil {
		return errors.Wrapf(err, "check index %s failed", index)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return errors.Errorf("check index %s: unexpected status %d", index, res.StatusCode)
	}

	properties := make(map[string]any, len(model.Fields))
	for _, field := range model.Fields {
		properties[field.Name] = esFieldMapping(field.Type)
	}
	body, err := json.Marshal(map[string]any{
		"mappings": map[string]any{"properties": properties},
	})
	if err != nil {
		return errors.Wrap(err, "marshal mapping failed")
	}

	res, err = esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(body)}.Do(ctx, es.client)
	if err != nil {
		return errors.Wrapf(err, "create index %s failed", index)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return errors.Errorf("create index %s failed: %s", index, res.String())
	}
	return nil
}

func esFieldMapping(fieldType rdb.FieldType) map[string]any {
	switch fieldType {
	case rdb.FieldTypeInt:
		return map[string]any{"type": "long"}
	case rdb.FieldTypeFloat:
		return map[string]any{"type": "double"}
	case rdb.FieldTypeBool:
		return map[string]any{"type": "boolean"}
	case rdb.FieldTypeDate:
		return map[string]any{"type": "date", "format": "strict_date_optional_time||epoch_millis"}
	case rdb.FieldTypeJSON:
		return map[string]any{"type": "object", "enabled": false}
	}
	return map[string]any{"type": "keyword"}
}

// Insert 逐条写入文档，文档已存在时返回 ErrDuplicateKey 或在 IgnoreConflict 时跳过
func (es *ES) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	options := rdb.NewInsertOptions(opts...)
	index := es.index(model)

	for _, record := range records {
		id, err := model.KeyOf(record)
		if err != nil {
			return err
		}
		body, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "marshal document failed")
		}

		res, err := esapi.CreateRequest{
			Index:      index,
			DocumentID: id,
			Body:       bytes.NewReader(body),
			Refresh:    "wait_for",
		}.Do(ctx, es.client)
		if err != nil {
			return errors.Wrapf(err, "create document %s failed", id)
		}
		status, msg := res.StatusCode, res.String()
		res.Body.Close()

		if status == http.StatusConflict {
			if options.IgnoreConflict {
				continue
			}
			return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: document %s exists", index, id)
		}
		if status >= 300 {
			return errors.Errorf("create document %s failed: %s", id, msg)
		}
	}
	return nil
}

func esQuery(q query.Query) map[string]any {
	if q == nil {
		return map[string]any{"match_all": map[string]any{}}
	}
	return q.ToES()
}

func (es *ES) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	options := rdb.NewQueryOptions(opts...)

	size := options.Limit
	if size <= 0 {
		size = es.maxResultWindow
	}
	searchBody := map[string]any{
		"query": esQuery(q),
		"size":  size,
	}
	if options.Offset > 0 {
		searchBody["from"] = options.Offset
	}
	if len(options.OrderBy) > 0 {
		sort := make([]any, len(options.OrderBy))
		for i, order := range options.OrderBy {
			direction := "asc"
			if order.Desc {
				direction = "desc"
			}
			sort[i] = map[string]any{order.Field: map[string]any{"order": direction}}
		}
		searchBody["sort"] = sort
	}
	body, err := json.Marshal(searchBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshal search body failed")
	}

	res, err := esapi.SearchRequest{
		Index: []string{es.index(model)},
		Body:  bytes.NewReader(body),
	}.Do(ctx, es.client)
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("search %s failed: %s", es.index(model), res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode search result failed")
	}

	records := make([]rdb.Record, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		records = append(records, rdb.Record(hit.Source))
	}
	return records, nil
}

const esUpdateScript = "for (entry in params.values.entrySet()) { ctx._source[entry.getKey()] = entry.getValue() }"

func (es *ES) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(map[string]any{
		"query": esQuery(q),
		"script": map[string]any{
			"source": esUpdateScript,
			"lang":   "painless",
			"params": map[string]any{"values": values},
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "marshal update body failed")
	}

	refresh := true
	res, err := esapi.UpdateByQueryRequest{
		Index:     []string{es.index(model)},
		Body:      bytes.NewReader(body),
		Refresh:   &refresh,
		Conflicts: "proceed",
	}.Do(ctx, es.client)
	if err != nil {
		return 0, errors.Wrap(err, "update by query failed")
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, errors.Errorf("update %s failed: %s", es.index(model), res.String())
	}

	var result struct {
		Updated int64 `json:"updated"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, errors.Wrap(err, "decode update result failed")
	}
	return result.Updated, nil
}
