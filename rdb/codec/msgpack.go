package codec

import (
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackCodec 时间以 msgpack 扩展类型保存，解码后仍为 time.Time
type MsgPackCodec struct{}

func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{}
}

func (c *MsgPackCodec) Encode(record rdb.Record) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(record))
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return data, nil
}

func (c *MsgPackCodec) Decode(data []byte) (rdb.Record, error) {
	var record map[string]any
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "msgpack.Unmarshal failed")
	}
	return record, nil
}
