// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供各包共用的测试基础设施：上下文、内存数据库、miniredis 存储
//
// 使用方法:
//
//	repo := testutil.NewRepository(t)
//	store, mr := testutil.NewRedisStore(t)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/database"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/persistence"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 💾 存储辅助
// =============================================================================

// SQLiteConfig 返回内存 SQLite 的数据库配置
func SQLiteConfig() config.DatabaseConfig {
	return config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
}

// NewPool 打开内存 SQLite 连接池，测试结束时关闭
func NewPool(t testing.TB) *database.PoolManager {
	t.Helper()
	pm, err := database.Open(SQLiteConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })
	return pm
}

// NewRepository 返回已建表的内存 SQLite 仓储
func NewRepository(t testing.TB) *persistence.Repository {
	t.Helper()
	repo := persistence.NewFromPool(NewPool(t))
	require.NoError(t, repo.AutoMigrate())
	return repo
}

// NewRedisStore 启动 miniredis 并返回连接到它的 RedisStore，configure 可调整连接配置
func NewRedisStore(t testing.TB, configure ...func(*kvstore.RedisConfig)) (*kvstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := kvstore.DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	for _, fn := range configure {
		fn(&cfg)
	}

	s, err := kvstore.NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
