package query

import (
	"time"

	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/uid"
)

type options struct {
	generator       uid.Generator
	logger          logger.Logger
	clock           func() time.Time
	insertOptions   []rdb.InsertOption
	defaultOrdering []rdb.Order
}

func defaultOptions() *options {
	return &options{
		generator: uid.NewUUIDGeneratorWithOptions(nil),
		logger:    log.Default(),
		clock:     time.Now,
	}
}

type Option func(*options)

// WithIDGenerator 生成 generated=id 的列
func WithIDGenerator(generator uid.Generator) Option {
	return func(o *options) {
		if generator != nil {
			o.generator = generator
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock 生成 createTime/updateTime 列使用的时钟
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func WithInsertOptions(opts ...rdb.InsertOption) Option {
	return func(o *options) {
		o.insertOptions = append(o.insertOptions, opts...)
	}
}

// WithDefaultOrdering 覆盖表配置中的默认排序
func WithDefaultOrdering(orders ...rdb.Order) Option {
	return func(o *options) {
		o.defaultOrdering = orders
	}
}
