package changelog

import (
	"context"

	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/pkg/errors"
)

var ErrUnknownFeature = errors.New("unknown feature")

// Applier 把 Entry 转换为对功能模块服务的调用
type Applier struct {
	registry *feature.Registry
	logger   logger.Logger
}

func NewApplier(registry *feature.Registry, l logger.Logger) *Applier {
	if l == nil {
		l = log.Default()
	}
	return &Applier{registry: registry, logger: l.WithGroup("changelog")}
}

// Operation 显式指定的 operation 优先，否则按变更类型对应到标准操作
func Operation(entry Entry) (string, error) {
	if entry.Operation != "" {
		return entry.Operation, nil
	}
	switch entry.Change {
	case ChangeTypeAdd:
		return table.OperationCreate, nil
	case ChangeTypeUpdate:
		return table.OperationUpdateById, nil
	case ChangeTypeDelete:
		return table.OperationRemoveById, nil
	}
	return "", errors.Errorf("no operation for change type %s", entry.Change)
}

func (a *Applier) Apply(ctx context.Context, entry Entry) (any, error) {
	module, ok := a.registry.Get(entry.Feature)
	if !ok {
		return nil, errors.Wrap(ErrUnknownFeature, entry.Feature)
	}
	operation, err := Operation(entry)
	if err != nil {
		return nil, err
	}
	out, err := module.Services.Call(ctx, operation, &query.Input{
		UserID: entry.UserID,
		IDs:    entry.IDs,
		Data:   entry.Data,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.%s", entry.Feature, operation)
	}
	a.logger.DebugContext(ctx, "change applied", "feature", entry.Feature, "operation", operation)
	return out, nil
}

// Handler 供 FileLoader 使用，丢弃调用结果
func (a *Applier) Handler() Handler {
	return func(ctx context.Context, lineNumber int, entry Entry) error {
		_, err := a.Apply(ctx, entry)
		return err
	}
}
