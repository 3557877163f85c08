package log

import (
	"sort"
	"sync"

	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

// Options 名字到日志器配置的映射，名为 default 的日志器会成为管理器的默认日志器
type Options map[string]*ref.TypeOptions

type LogManager struct {
	loggers       map[string]logger.Logger
	defaultLogger logger.Logger
}

func NewLogManagerWithOptions(options Options) (*LogManager, error) {
	manager := &LogManager{
		loggers: make(map[string]logger.Logger),
	}

	for name, typeOpts := range options {
		if typeOpts == nil {
			continue
		}
		l, err := NewLoggerWithOptions(typeOpts)
		if err != nil {
			return nil, errors.WithMessagef(err, "create logger %q failed", name)
		}
		manager.loggers[name] = l
		if name == "default" {
			manager.defaultLogger = l
		}
	}

	if manager.defaultLogger == nil {
		manager.defaultLogger = Default()
	}

	return manager, nil
}

// GetLogger 获取指定名称的日志器，不存在时返回默认日志器
func (m *LogManager) GetLogger(name string) logger.Logger {
	if l, ok := m.loggers[name]; ok {
		return l
	}
	return m.defaultLogger
}

// ListLoggers 返回所有已配置的日志器名称
func (m *LogManager) ListLoggers() []string {
	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *LogManager) GetDefault() logger.Logger {
	return m.defaultLogger
}

var (
	globalMu      sync.RWMutex
	globalManager *LogManager
)

// Init 初始化全局日志管理器，并将其默认日志器设为包级默认日志器
func Init(options Options) error {
	manager, err := NewLogManagerWithOptions(options)
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalManager = manager
	globalMu.Unlock()
	SetDefault(manager.GetDefault())
	return nil
}

// GetLogger 从全局日志管理器中按名称获取日志器，未初始化时返回默认日志器
func GetLogger(name string) logger.Logger {
	globalMu.RLock()
	manager := globalManager
	globalMu.RUnlock()
	if manager == nil {
		return Default().With("logger", name)
	}
	return manager.GetLogger(name)
}
