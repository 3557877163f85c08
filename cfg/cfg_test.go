package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/featurex/ref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDriverOptions struct {
	DSN      string        `cfg:"dsn" validate:"required"`
	MaxConns int           `cfg:"maxConns" def:"10"`
	Timeout  time.Duration `cfg:"timeout" def:"3s"`
}

type testAppOptions struct {
	Name     string           `cfg:"name" def:"featurex"`
	Debug    bool             `cfg:"debug"`
	Ratio    float64          `cfg:"ratio"`
	Tags     []string         `cfg:"tags"`
	Driver   ref.TypeOptions  `cfg:"driver"`
	Cache    *ref.TypeOptions `cfg:"cache"`
	Features map[string]int   `cfg:"features"`
}

func writeFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"app.yaml": `
name: ledger
debug: true
ratio: 0.5
tags: [a, b]
driver:
  type: SQL
  options:
    dsn: "file::memory:"
    maxConns: 2
features:
  label: 1
`,
		"app.toml": `
name = "ledger"
debug = true
ratio = 0.5
tags = ["a", "b"]

[driver]
type = "SQL"

[driver.options]
dsn = "file::memory:"
maxConns = 2

[features]
label = 1
`,
		"app.json": `{
  "name": "ledger", "debug": true, "ratio": 0.5, "tags": ["a", "b"],
  "driver": {"type": "SQL", "options": {"dsn": "file::memory:", "maxConns": 2}},
  "features": {"label": 1}
}`,
		"app.ini": `
name = ledger
debug = true
ratio = 0.5
tags = a,b

[driver]
type = SQL

[driver.options]
dsn = file::memory:
maxConns = 2

[features]
label = 1
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			var options testAppOptions
			require.NoError(t, Load(writeFile(t, name, content), &options))

			assert.Equal(t, "ledger", options.Name)
			assert.True(t, options.Debug)
			assert.Equal(t, 0.5, options.Ratio)
			assert.Equal(t, []string{"a", "b"}, options.Tags)
			assert.Equal(t, "SQL", options.Driver.Type)
			assert.Nil(t, options.Cache)
			assert.Equal(t, map[string]int{"label": 1}, options.Features)

			convertable, ok := options.Driver.Options.(ref.Convertable)
			require.True(t, ok)
			var driverOptions testDriverOptions
			require.NoError(t, convertable.ConvertTo(&driverOptions))
			assert.Equal(t, "file::memory:", driverOptions.DSN)
			assert.Equal(t, 2, driverOptions.MaxConns)
			assert.Equal(t, 3*time.Second, driverOptions.Timeout)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	var options testAppOptions
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), &options))
	assert.Error(t, Load(writeFile(t, "app.xml", "<xml/>"), &options))
	assert.Error(t, Load(writeFile(t, "app.yaml", "driver: [1, 2"), &options))
	// driver.type 为必填项
	assert.Error(t, Load(writeFile(t, "app.yaml", "name: x"), &options))
}

func TestLoadWithEnv(t *testing.T) {
	path := writeFile(t, "app.yaml", `
driver:
  type: SQL
  options:
    dsn: "a.db"
`)
	var options testAppOptions
	require.NoError(t, Load(path, &options,
		WithEnvPrefix("FEATUREX"),
		WithEnviron([]string{
			"FEATUREX_DRIVER_TYPE=Gorm",
			"FEATUREX_DEBUG=true",
			"FEATUREX_DRIVER_OPTIONS_MAXCONNS=7",
			"OTHER_NAME=ignored",
		}),
	))
	assert.Equal(t, "Gorm", options.Driver.Type)
	assert.True(t, options.Debug)
	assert.Equal(t, "featurex", options.Name)

	var driverOptions testDriverOptions
	require.NoError(t, options.Driver.Options.(ref.Convertable).ConvertTo(&driverOptions))
	assert.Equal(t, "a.db", driverOptions.DSN)
	assert.Equal(t, 7, driverOptions.MaxConns)
}

func TestMapStorageSub(t *testing.T) {
	storage := NewMapStorage(map[string]any{
		"driver": map[string]any{"options": map[string]any{"dsn": "x"}},
	})
	assert.Equal(t, "x", storage.Sub("driver.options.dsn").Data())
	assert.Equal(t, "x", storage.Sub("Driver.Options.DSN").Data())
	assert.Nil(t, storage.Sub("driver.unknown").Data())
	assert.Nil(t, storage.Sub("driver.options.dsn.deeper").Data())
}

func TestMapStorageConvertToRequiresPointer(t *testing.T) {
	var options testDriverOptions
	assert.Error(t, NewMapStorage(map[string]any{}).ConvertTo(options))
	assert.Error(t, NewMapStorage(map[string]any{}).ConvertTo(&options))
}
