package main

import (
	"github.com/hatlonely/featurex/cfg"
	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/finance"
	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/database"
	"github.com/hatlonely/featurex/ref"
	"github.com/hatlonely/featurex/uid"
	"github.com/pkg/errors"
)

const (
	envPrefix       = "FEATUREX"
	driverNamespace = "github.com/hatlonely/featurex/rdb/database"
	logNamespace    = "github.com/hatlonely/featurex/log"
)

type ObservableOptions struct {
	Enable        bool   `cfg:"enable"`
	EnableMetrics bool   `cfg:"enableMetrics"`
	EnableLogging bool   `cfg:"enableLogging"`
	EnableTracing bool   `cfg:"enableTracing"`
	Name          string `cfg:"name" def:"featurex"`
}

type AppOptions struct {
	Driver      ref.TypeOptions    `cfg:"driver"`
	IDGenerator *ref.TypeOptions   `cfg:"idGenerator"`
	Logger      logger.SLogOptions `cfg:"logger"`
	Loggers     log.Options        `cfg:"loggers"` // 按名字覆盖 query 和 rdb 的日志器
	Observable  ObservableOptions  `cfg:"observable"`
}

// defaultAppOptions 未指定配置时使用当前目录下的 sqlite 文件，日志输出到 stderr
func defaultAppOptions() *AppOptions {
	return &AppOptions{
		Driver: ref.TypeOptions{
			Namespace: driverNamespace,
			Type:      "SQL",
			Options: cfg.NewMapStorage(map[string]any{
				"driver": "sqlite",
				"dsn":    "featurex.db",
			}),
		},
		Logger: logger.SLogOptions{Level: "warn", Format: "text", Output: "stderr"},
	}
}

func loadAppOptions(path string) (*AppOptions, error) {
	options := defaultAppOptions()
	if path == "" {
		err := cfg.LoadBytes([]byte("{}"), cfg.YamlDecoder{}, options, cfg.WithEnvPrefix(envPrefix))
		return options, errors.WithMessage(err, "load options from environment failed")
	}
	if err := cfg.Load(path, options, cfg.WithEnvPrefix(envPrefix)); err != nil {
		return nil, err
	}
	return options, nil
}

type App struct {
	driver   rdb.Driver
	registry *feature.Registry
	logger   logger.Logger
}

func NewAppWithOptions(options *AppOptions) (*App, error) {
	l, err := logger.NewSLogWithOptions(&options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	log.SetDefault(l)
	if err := log.Init(options.Loggers); err != nil {
		return nil, errors.WithMessage(err, "init loggers failed")
	}

	driver, err := newDriver(options)
	if err != nil {
		return nil, err
	}

	generator, err := uid.NewGeneratorWithOptions(options.IDGenerator)
	if err != nil {
		_ = driver.Close()
		return nil, errors.WithMessage(err, "create id generator failed")
	}

	registry, err := finance.NewRegistry(driver, query.WithIDGenerator(generator), query.WithLogger(log.GetLogger("query")))
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	return &App{driver: driver, registry: registry, logger: l}, nil
}

func newDriver(options *AppOptions) (rdb.Driver, error) {
	if !options.Observable.Enable {
		driver, err := rdb.NewDriverWithOptions(&options.Driver)
		return driver, errors.WithMessage(err, "create driver failed")
	}
	driver, err := database.NewObservableWithOptions(&database.ObservableOptions{
		Driver:        &options.Driver,
		Logger:        &ref.TypeOptions{Namespace: logNamespace, Type: "GetLogger", Options: "rdb"},
		EnableMetrics: options.Observable.EnableMetrics,
		EnableLogging: options.Observable.EnableLogging,
		EnableTracing: options.Observable.EnableTracing,
		Name:          options.Observable.Name,
	})
	return driver, errors.WithMessage(err, "create observable driver failed")
}

func (a *App) Close() error {
	return a.driver.Close()
}
