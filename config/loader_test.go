// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "Gerald", cfg.Chat.Rooms["default"])
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

chat:
  template_dir: "/srv/templates"
  max_chain_depth: 8
  echo_messages: true
  rooms:
    support: "Susan"

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "/srv/templates", cfg.Chat.TemplateDir)
	assert.Equal(t, 8, cfg.Chat.MaxChainDepth)
	assert.True(t, cfg.Chat.EchoMessages)
	assert.Equal(t, "Susan", cfg.Chat.Rooms["support"])
	// 未覆盖的字段保持默认值
	assert.Equal(t, 64, cfg.Chat.MaxReserveAttempts)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("CHATFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("CHATFLOW_SERVER_ALLOWED_ORIGINS", "example.com, *.example.org")
	t.Setenv("CHATFLOW_REDIS_ADDR", "env-redis:6379")
	t.Setenv("CHATFLOW_CHAT_MAX_RESERVE_ATTEMPTS", "5")
	t.Setenv("CHATFLOW_CHAT_ECHO_MESSAGES", "true")
	t.Setenv("CHATFLOW_DATABASE_CONN_MAX_LIFETIME", "90s")
	t.Setenv("CHATFLOW_LOG_LEVEL", "warn")
	t.Setenv("CHATFLOW_TELEMETRY_SAMPLE_RATE", "0.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Chat.MaxReserveAttempts)
	assert.True(t, cfg.Chat.EchoMessages)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRate, 0.0001)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
chat:
  operator_keyword: "human"
  flush_keyword: "save"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("CHATFLOW_SERVER_HTTP_PORT", "9999")
	t.Setenv("CHATFLOW_CHAT_OPERATOR_KEYWORD", "agent")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "agent", cfg.Chat.OperatorKeyword)
	// YAML 值保留
	assert.Equal(t, "save", cfg.Chat.FlushKeyword)
}

func TestLoader_ExpandsEnvReferencesInYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
redis:
  addr: "${CF_TEST_REDIS_HOST}:6379"
  password: "${CF_TEST_UNSET_SECRET}"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))
	t.Setenv("CF_TEST_REDIS_HOST", "cache.internal")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoader_RoomsFromEnv(t *testing.T) {
	t.Setenv("CHATFLOW_CHAT_ROOMS", "vip=Susan, default=Susan")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "Susan", cfg.Chat.Rooms["vip"])
	assert.Equal(t, "Susan", cfg.Chat.Rooms["default"])
	// 未提及的默认房间保留
	assert.Equal(t, "Susan", cfg.Chat.Rooms["lobby"])
}

func TestLoader_RoomsFromEnv_Malformed(t *testing.T) {
	t.Setenv("CHATFLOW_CHAT_ROOMS", "vip")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHATFLOW_CHAT_ROOMS")
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_CHAT_KEY_PREFIX", "bots")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "bots", cfg.Chat.KeyPrefix)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CHATFLOW_CHAT_MAX_CHAIN_DEPTH", "deep")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHATFLOW_CHAT_MAX_CHAIN_DEPTH")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("CHATFLOW_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: true},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: true},
		{name: "unknown database driver", modify: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "zero chain depth", modify: func(c *Config) { c.Chat.MaxChainDepth = 0 }, wantErr: true},
		{name: "zero reserve attempts", modify: func(c *Config) { c.Chat.MaxReserveAttempts = 0 }, wantErr: true},
		{name: "zero flush batch", modify: func(c *Config) { c.Chat.FlushBatchSize = 0 }, wantErr: true},
		{name: "negative history", modify: func(c *Config) { c.Chat.HistorySize = -1 }, wantErr: true},
		{name: "unknown kv backend", modify: func(c *Config) { c.Chat.KVBackend = "etcd" }, wantErr: true},
		{name: "memory kv backend", modify: func(c *Config) { c.Chat.KVBackend = "memory" }},
		{name: "missing default room", modify: func(c *Config) { delete(c.Chat.Rooms, "default") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8080\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("CHATFLOW_CHAT_TEMPLATE_DIR", "/env/templates")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/env/templates", cfg.Chat.TemplateDir)
}
