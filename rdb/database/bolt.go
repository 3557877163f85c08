package database

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/codec"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltOptions struct {
	// DBPath 数据库文件路径，目录不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	// Codec 行数据编码，默认 msgpack
	Codec *ref.TypeOptions `cfg:"codec"`

	// Timeout 获取文件锁的等待时间，为零时无限等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	NoSync         bool   `cfg:"noSync"`
	NoFreelistSync bool   `cfg:"noFreelistSync"`
	FreelistType   string `cfg:"freelistType" validate:"omitempty,oneof=array hashmap"`
	ReadOnly       bool   `cfg:"readOnly"`
}

// Bolt 每张表一个 bucket，key 为拼接后的主键，value 为编码后的整行
// Find 全表扫描后在内存中过滤排序
type Bolt struct {
	db    *bolt.DB
	codec codec.Codec
}

func NewBoltWithOptions(options *BoltOptions) (*Bolt, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	c, err := codec.NewCodecWithOptions(options.Codec)
	if err != nil {
		return nil, errors.WithMessage(err, "codec.NewCodecWithOptions failed")
	}

	directory := filepath.Dir(options.DBPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", directory)
	}
	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{
		Timeout:        options.Timeout,
		NoSync:         options.NoSync,
		NoFreelistSync: options.NoFreelistSync,
		FreelistType:   bolt.FreelistType(options.FreelistType),
		ReadOnly:       options.ReadOnly,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. dbPath: %s", options.DBPath)
	}
	return &Bolt{db: db, codec: c}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Migrate(ctx context.Context, model *rdb.TableModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(model.Table)); err != nil {
			return errors.Wrapf(err, "create bucket %s failed", model.Table)
		}
		return nil
	})
}

func bucketOf(tx *bolt.Tx, model *rdb.TableModel) (*bolt.Bucket, error) {
	bucket := tx.Bucket([]byte(model.Table))
	if bucket == nil {
		return nil, errors.Errorf("table %s not exists", model.Table)
	}
	return bucket, nil
}

// Insert 在一个事务中写入，返回错误时事务回滚
func (b *Bolt) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	options := rdb.NewInsertOptions(opts...)
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, model)
		if err != nil {
			return err
		}
		for _, record := range records {
			row, err := prepareRecord(model, record)
			if err != nil {
				return err
			}
			key, err := model.KeyOf(row)
			if err != nil {
				return err
			}
			if bucket.Get([]byte(key)) != nil {
				if options.IgnoreConflict {
					continue
				}
				return errors.Wrapf(rdb.ErrDuplicateKey, "insert into %s: key %s exists", model.Table, key)
			}
			data, err := b.codec.Encode(row)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return errors.Wrap(err, "bucket.Put failed")
			}
		}
		return nil
	})
}

func (b *Bolt) scan(bucket *bolt.Bucket, model *rdb.TableModel, q query.Query, fn func(key []byte, row rdb.Record) error) error {
	return bucket.ForEach(func(k, v []byte) error {
		record, err := b.codec.Decode(v)
		if err != nil {
			return errors.WithMessagef(err, "decode %s/%s failed", model.Table, k)
		}
		row := model.Normalize(record)
		if q != nil && !q.Match(row) {
			return nil
		}
		return fn(k, row)
	})
}

func (b *Bolt) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	var records []rdb.Record
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, model)
		if err != nil {
			return err
		}
		return b.scan(bucket, model, q, func(_ []byte, row rdb.Record) error {
			records = append(records, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rdb.ApplyQueryOptions(records, rdb.NewQueryOptions(opts...)), nil
}

func (b *Bolt) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	changes, err := prepareValues(model, values)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := bucketOf(tx, model)
		if err != nil {
			return err
		}

		// ForEach 期间不能修改 bucket，先收集再写回
		updates := map[string]rdb.Record{}
		err = b.scan(bucket, model, q, func(key []byte, row rdb.Record) error {
			for k, v := range changes {
				row[k] = v
			}
			updates[string(key)] = row
			return nil
		})
		if err != nil {
			return err
		}

		for key, row := range updates {
			data, err := b.codec.Encode(row)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return errors.Wrap(err, "bucket.Put failed")
			}
		}
		affected = int64(len(updates))
		return nil
	})
	return affected, err
}
