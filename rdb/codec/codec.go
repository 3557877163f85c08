package codec

import (
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[MsgPackCodec](NewMsgPackCodec)
	ref.MustRegisterT[JSONCodec](NewJSONCodec)
	ref.MustRegisterT[BSONCodec](NewBSONCodec)
}

// Codec 记录的字节编码，用于 kv 类存储保存整行数据
type Codec interface {
	Encode(record rdb.Record) ([]byte, error)
	Decode(data []byte) (rdb.Record, error)
}

// NewCodecWithOptions 通过 ref 构造编码器，options 为空时使用 msgpack
func NewCodecWithOptions(options *ref.TypeOptions) (Codec, error) {
	if options == nil {
		return NewMsgPackCodec(), nil
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	c, ok := obj.(Codec)
	if !ok {
		return nil, errors.Errorf("%T is not a Codec", obj)
	}
	return c, nil
}
