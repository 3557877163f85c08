package log

import (
	"sync/atomic"

	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

const namespace = "github.com/hatlonely/featurex/log"

var defaultLogger atomic.Value

func init() {
	ref.MustRegisterT[*logger.SLog](logger.NewSLogWithOptions)
	ref.MustRegister(namespace, "GetLogger", GetLogger)

	// 默认向终端输出 text 格式日志
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{l})
}

// holder 保证 atomic.Value 中存储的具体类型一致
type holder struct {
	logger.Logger
}

func Default() logger.Logger {
	return defaultLogger.Load().(holder).Logger
}

func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger.Store(holder{l})
	}
}

// NewLoggerWithOptions 通过 ref 构造日志器，options 为空时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return Default(), nil
	}
	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%T does not implement Logger interface", obj)
	}
	return l, nil
}
