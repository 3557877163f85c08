package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/rdb"
	"github.com/hatlonely/featurex/rdb/query"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// Driver 被包装的底层驱动
	Driver *ref.TypeOptions `cfg:"driver" validate:"required"`

	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 指标名前缀，同时作为日志和 span 的 component
	Name string `cfg:"name" def:"rdb"`
}

type observableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	rowsHistogram     *prometheus.HistogramVec
}

// registerCollector 同名指标已注册时复用已有的收集器
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func newObservableMetrics(registerer prometheus.Registerer, name string) *observableMetrics {
	return &observableMetrics{
		operationCounter: registerCollector(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of driver operations",
			},
			[]string{"table", "operation", "status"},
		)),
		operationDuration: registerCollector(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of driver operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"table", "operation"},
		)),
		activeOperations: registerCollector(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active driver operations",
			},
			[]string{"table", "operation"},
		)),
		rowsHistogram: registerCollector(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_rows",
				Help:    "Number of rows written, read or updated",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"table", "operation"},
		)),
	}
}

// Observable 为任意驱动添加指标、日志和追踪
type Observable struct {
	driver rdb.Driver

	logger  logger.Logger
	metrics *observableMetrics
	tracer  trace.Tracer
	name    string
}

func NewObservableWithOptions(options *ObservableOptions) (*Observable, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	driver, err := rdb.NewDriverWithOptions(options.Driver)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying driver")
	}
	return newObservable(driver, options, prometheus.DefaultRegisterer)
}

func newObservable(driver rdb.Driver, options *ObservableOptions, registerer prometheus.Registerer) (*Observable, error) {
	obs := &Observable{driver: driver, name: options.Name}

	if options.EnableLogging {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l.WithGroup("rdb")
	}
	if options.EnableMetrics {
		obs.metrics = newObservableMetrics(registerer, options.Name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("rdb.%s", options.Name))
	}
	return obs, nil
}

// observe 统一记录一次驱动调用，fn 返回处理的行数
func (obs *Observable) observe(ctx context.Context, table string, operation string, fn func(context.Context) (int, error)) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("rdb.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("table", table),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	if obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(table, operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(table, operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(
			attribute.Int("rows", rows),
			attribute.Int64("duration_ms", duration.Milliseconds()),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(table, operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(table, operation).Observe(duration.Seconds())
		if err == nil {
			obs.metrics.rowsHistogram.WithLabelValues(table, operation).Observe(float64(rows))
		}
	}

	if obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "driver operation failed",
				"component", obs.name,
				"table", table,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "driver operation completed",
				"component", obs.name,
				"table", table,
				"operation", operation,
				"rows", rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	return err
}

func (obs *Observable) Migrate(ctx context.Context, model *rdb.TableModel) error {
	return obs.observe(ctx, model.Table, "Migrate", func(ctx context.Context) (int, error) {
		return 0, obs.driver.Migrate(ctx, model)
	})
}

func (obs *Observable) Insert(ctx context.Context, model *rdb.TableModel, records []rdb.Record, opts ...rdb.InsertOption) error {
	return obs.observe(ctx, model.Table, "Insert", func(ctx context.Context) (int, error) {
		return len(records), obs.driver.Insert(ctx, model, records, opts...)
	})
}

func (obs *Observable) Find(ctx context.Context, model *rdb.TableModel, q query.Query, opts ...rdb.QueryOption) ([]rdb.Record, error) {
	var records []rdb.Record
	err := obs.observe(ctx, model.Table, "Find", func(ctx context.Context) (int, error) {
		var err error
		records, err = obs.driver.Find(ctx, model, q, opts...)
		return len(records), err
	})
	return records, err
}

func (obs *Observable) Update(ctx context.Context, model *rdb.TableModel, q query.Query, values rdb.Record) (int64, error) {
	var affected int64
	err := obs.observe(ctx, model.Table, "Update", func(ctx context.Context) (int, error) {
		var err error
		affected, err = obs.driver.Update(ctx, model, q, values)
		return int(affected), err
	})
	return affected, err
}

func (obs *Observable) Close() error {
	return obs.driver.Close()
}
