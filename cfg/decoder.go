package cfg

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 将配置文件内容解码为通用配置树
type Decoder interface {
	Decode(data []byte) (*MapStorage, error)
}

type YamlDecoder struct{}

func (YamlDecoder) Decode(data []byte) (*MapStorage, error) {
	var result any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode yaml failed")
	}
	return NewMapStorage(result), nil
}

type TomlDecoder struct{}

func (TomlDecoder) Decode(data []byte) (*MapStorage, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode toml failed")
	}
	return NewMapStorage(result), nil
}

type JsonDecoder struct{}

func (JsonDecoder) Decode(data []byte) (*MapStorage, error) {
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "decode json failed")
	}
	return NewMapStorage(result), nil
}

// IniDecoder section 映射为一级 key，section 名中的点号表示更深的层级
// 例如 [driver.options] 中的 dsn 对应 driver.options.dsn
type IniDecoder struct{}

func (IniDecoder) Decode(data []byte) (*MapStorage, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "decode ini failed")
	}

	storage := NewMapStorage(map[string]any{})
	for _, section := range file.Sections() {
		var prefix []string
		if name := section.Name(); name != ini.DefaultSection {
			prefix = strings.Split(name, ".")
		}
		for _, key := range section.Keys() {
			path := append(append([]string{}, prefix...), key.Name())
			storage.Set(path, parseScalar(key.String()))
		}
	}
	return storage, nil
}

// parseScalar ini 中所有值都是字符串，这里尽量还原为 bool 和数字
func parseScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// DecoderForPath 根据文件扩展名选择解码器
func DecoderForPath(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YamlDecoder{}, nil
	case ".toml":
		return TomlDecoder{}, nil
	case ".json":
		return JsonDecoder{}, nil
	case ".ini":
		return IniDecoder{}, nil
	}
	return nil, errors.Errorf("unsupported config format: %s", path)
}
