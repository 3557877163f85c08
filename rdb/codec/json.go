package codec

import (
	"bytes"
	"encoding/json"

	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
)

// JSONCodec 数字解码为 json.Number 以保留整数精度，时间编码为 RFC3339 字符串
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (c *JSONCodec) Encode(record rdb.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal failed")
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte) (rdb.Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var record map[string]any
	if err := decoder.Decode(&record); err != nil {
		return nil, errors.Wrap(err, "json.Decode failed")
	}
	for k, v := range record {
		record[k] = fromJSONNumber(v)
	}
	return record, nil
}

func fromJSONNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, item := range x {
			x[k] = fromJSONNumber(item)
		}
	case []any:
		for i, item := range x {
			x[i] = fromJSONNumber(item)
		}
	}
	return v
}
