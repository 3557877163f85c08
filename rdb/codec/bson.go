package codec

import (
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BSONCodec struct{}

func NewBSONCodec() *BSONCodec {
	return &BSONCodec{}
}

func (c *BSONCodec) Encode(record rdb.Record) ([]byte, error) {
	data, err := bson.Marshal(map[string]any(record))
	if err != nil {
		return nil, errors.Wrap(err, "bson.Marshal failed")
	}
	return data, nil
}

func (c *BSONCodec) Decode(data []byte) (rdb.Record, error) {
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "bson.Unmarshal failed")
	}
	record := make(rdb.Record, len(doc))
	for k, v := range doc {
		record[k] = fromBSON(v)
	}
	return record, nil
}

func fromBSON(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fromBSON(item)
		}
		return out
	}
	return v
}
