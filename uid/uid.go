package uid

import (
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[UUIDGenerator](NewUUIDGeneratorWithOptions)
	ref.MustRegisterT[SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[RedisGenerator](NewRedisGeneratorWithOptions)
}

// Generator 生成记录主键
type Generator interface {
	Generate() string
}

// NewGeneratorWithOptions 通过 ref 构造生成器，options 为空时使用 v4 UUID
func NewGeneratorWithOptions(options *ref.TypeOptions) (Generator, error) {
	if options == nil {
		return NewUUIDGeneratorWithOptions(nil), nil
	}
	generator, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	if generator == nil {
		return nil, errors.New("generator is nil")
	}
	g, ok := generator.(Generator)
	if !ok {
		return nil, errors.Errorf("%T is not a Generator", generator)
	}
	return g, nil
}

// GeneratorFunc 将普通函数适配为 Generator，测试中用于构造确定性的主键
type GeneratorFunc func() string

func (f GeneratorFunc) Generate() string {
	return f()
}
