package uid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v1 v4 v6 v7"`
	Compact bool   `cfg:"compact"` // 去掉连字符，输出 32 位十六进制
}

type UUIDGenerator struct {
	version string
	compact bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{}
	}
	version := options.Version
	if version == "" {
		version = "v4"
	}
	return &UUIDGenerator{
		version: version,
		compact: options.Compact,
	}
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	switch g.version {
	case "v1":
		u = uuid.Must(uuid.NewUUID())
	case "v6":
		u = uuid.Must(uuid.NewV6())
	case "v7":
		u = uuid.Must(uuid.NewV7())
	default:
		u = uuid.New()
	}

	if g.compact {
		return hex.EncodeToString(u[:])
	}
	return u.String()
}
