package changelog

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/featurex/log"
	"github.com/hatlonely/featurex/log/logger"
	"github.com/hatlonely/featurex/ref"
	"github.com/pkg/errors"
)

type FileLoaderOptions struct {
	FilePath string           `cfg:"filePath" validate:"required"`
	Parser   *ref.TypeOptions `cfg:"parser"`
	Logger   *ref.TypeOptions `cfg:"logger"`
	// 默认遇到脏数据时直接返回错误，开启后只记录日志并继续
	SkipDirtyRows        bool `cfg:"skipDirtyRows"`
	ScannerBufferMinSize int  `cfg:"scannerBufferMinSize" def:"65536"`
	ScannerBufferMaxSize int  `cfg:"scannerBufferMaxSize" def:"4194304"`
}

// Handler 处理一行变更，lineNumber 从 1 开始
type Handler func(ctx context.Context, lineNumber int, entry Entry) error

// FileLoader 按行读取追加写入的变更文件，记录已处理的行数，再次加载时只处理新增的行
type FileLoader struct {
	filePath             string
	parser               Parser
	skipDirtyRows        bool
	scannerBufferMinSize int
	scannerBufferMaxSize int

	mutex     sync.Mutex
	processed int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger logger.Logger
}

func NewFileLoaderWithOptions(options *FileLoaderOptions) (*FileLoader, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.FilePath == "" {
		return nil, errors.New("filePath is required")
	}
	if options.ScannerBufferMinSize <= 0 {
		options.ScannerBufferMinSize = 64 * 1024
	}
	if options.ScannerBufferMaxSize <= 0 {
		options.ScannerBufferMaxSize = 4 * 1024 * 1024
	}

	p, err := NewParserWithOptions(options.Parser)
	if err != nil {
		return nil, errors.WithMessage(err, "create parser failed")
	}
	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}

	return &FileLoader{
		filePath:             filepath.Clean(options.FilePath),
		parser:               p,
		skipDirtyRows:        options.SkipDirtyRows,
		scannerBufferMinSize: options.ScannerBufferMinSize,
		scannerBufferMaxSize: options.ScannerBufferMaxSize,
		done:                 make(chan struct{}),
		logger:               l.WithGroup("changelog").With("filePath", options.FilePath),
	}, nil
}

// Processed 已成功处理的行数
func (l *FileLoader) Processed() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.processed
}

// Load 处理上次之后新增的行，返回本次处理的行数
// 不跳过脏数据时在出错的行停止，下次加载从该行重新开始
func (l *FileLoader) Load(ctx context.Context, handler Handler) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	fp, err := os.Open(l.filePath)
	if err != nil {
		return 0, errors.Wrap(err, "os.Open failed")
	}
	defer fp.Close()

	scanner := bufio.NewScanner(fp)
	scanner.Buffer(make([]byte, 0, l.scannerBufferMinSize), l.scannerBufferMaxSize)

	lineNumber := 0
	applied := 0
	dirty := 0
	for scanner.Scan() {
		lineNumber++
		if lineNumber <= l.processed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		entry, ok, err := l.parser.Parse(scanner.Bytes())
		if err == nil && ok {
			err = handler(ctx, lineNumber, entry)
		}
		if err != nil {
			dirty++
			if !l.skipDirtyRows {
				return applied, errors.WithMessagef(err, "line %d", lineNumber)
			}
			l.logger.ErrorContext(ctx, "apply failed, skipping line", "lineNumber", lineNumber, "error", err)
		} else if ok {
			applied++
		}
		l.processed = lineNumber
	}
	if err := scanner.Err(); err != nil {
		return applied, errors.Wrap(err, "scanner.Err failed")
	}

	// 文件被截断或重写后从头处理
	if lineNumber < l.processed {
		l.logger.WarnContext(ctx, "file shrank, restarting from the first line", "lines", lineNumber, "processed", l.processed)
		l.processed = 0
	}
	if applied != 0 || dirty != 0 {
		l.logger.InfoContext(ctx, "changes loaded", "applied", applied, "dirty", dirty, "processed", l.processed)
	}
	return applied, nil
}

// Watch 先加载一次，之后文件每次变化时加载新增的行，直到 ctx 结束或 Close
func (l *FileLoader) Watch(ctx context.Context, handler Handler) error {
	if _, err := l.Load(ctx, handler); err != nil {
		return errors.WithMessage(err, "initial load failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify.NewWatcher failed")
	}
	// 监听目录以覆盖文件被替换的情况
	if err := watcher.Add(filepath.Dir(l.filePath)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "watcher.Add failed")
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if filepath.Clean(event.Name) != l.filePath {
					continue
				}
				if _, err := l.Load(ctx, handler); err != nil {
					l.logger.WarnContext(ctx, "load failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.WarnContext(ctx, "watcher error", "error", err)
			case <-ctx.Done():
				return
			case <-l.done:
				return
			}
		}
	}()
	return nil
}

func (l *FileLoader) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}
