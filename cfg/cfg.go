package cfg

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

type loadOptions struct {
	envPrefix string
	environ   []string
}

type Option func(*loadOptions)

// WithEnvPrefix 使用带前缀的环境变量覆盖文件中的配置
// 前缀之后的部分按下划线切分为路径，例如 FEATUREX_DRIVER_TYPE 覆盖 driver.type
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithEnviron 指定环境变量来源，默认为 os.Environ()
func WithEnviron(environ []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load 读取配置文件并转换到 object，随后设置默认值并校验
func Load(path string, object any, opts ...Option) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s failed", path)
	}
	decoder, err := DecoderForPath(path)
	if err != nil {
		return err
	}
	return LoadBytes(data, decoder, object, opts...)
}

// LoadBytes 使用指定的解码器加载配置内容
func LoadBytes(data []byte, decoder Decoder, object any, opts ...Option) error {
	options := &loadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	storage, err := decoder.Decode(data)
	if err != nil {
		return err
	}

	if options.envPrefix != "" {
		environ := options.environ
		if environ == nil {
			environ = os.Environ()
		}
		applyEnv(storage, options.envPrefix, environ)
	}

	return errors.WithMessage(storage.ConvertTo(object), "convert config failed")
}

func applyEnv(storage *MapStorage, prefix string, environ []string) {
	prefix = strings.ToUpper(prefix) + "_"
	for _, kv := range environ {
		idx := strings.Index(kv, "=")
		if idx <= 0 {
			continue
		}
		key, value := kv[:idx], kv[idx+1:]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "_")
		storage.Set(path, value)
	}
}
