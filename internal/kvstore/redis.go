package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/chatflow/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 存储
// =============================================================================

// RedisConfig Redis 存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 最大重试次数（网络层）
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// SCAN 每批返回的键数量提示
	ScanCount int64 `yaml:"scan_count" json:"scan_count"`

	// TLS 配置，为空时使用明文连接
	TLSConfig *tls.Config `yaml:"-" json:"-"`
}

// DefaultRedisConfig 返回默认 Redis 存储配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		DB:                  0,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
		ScanCount:           100,
	}
}

// RedisStore 基于 Redis 的共享存储
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRedisStore 创建 Redis 存储并检查连通性
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		TLSConfig:    config.TLSConfig,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "kvstore")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go s.healthCheckLoop()
	}

	s.logger.Info("redis store initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return s, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 读取键值
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("kv get failed", zap.String("key", key), zap.Error(err))
		return "", false, types.NewStoreError("get", err)
	}
	return val, true, nil
}

// Set 无条件写入
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		s.logger.Error("kv set failed", zap.String("key", key), zap.Error(err))
		return types.NewStoreError("set", err)
	}
	return nil
}

// Delete 删除键
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("kv delete failed", zap.Strings("keys", keys), zap.Error(err))
		return types.NewStoreError("delete", err)
	}
	return nil
}

// ScanPrefix 按前缀遍历键
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string, fn func(key string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", s.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return types.NewStoreError("scan", err)
	}
	return nil
}

// HSet 写入哈希字段
func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if len(fields) == 0 {
		return nil
	}

	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, key, args...).Err(); err != nil {
		return types.NewStoreError("hset", err)
	}
	return nil
}

// HGetAll 读取哈希全部字段
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, types.NewStoreError("hgetall", err)
	}
	return fields, nil
}

// WithOptimisticTransaction 以 WATCH/MULTI/EXEC 执行乐观事务
func (s *RedisStore) WithOptimisticTransaction(ctx context.Context, watchKey string, body func(tx Tx) error) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}

	var bodyErr error
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{tx: rtx}
		if bodyErr = body(tx); bodyErr != nil {
			return bodyErr
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(tx.writes) == 0 {
				// EXEC must still run so the watch is checked.
				pipe.Exists(ctx, watchKey)
			}
			for _, w := range tx.writes {
				pipe.Set(ctx, w.key, w.value, 0)
			}
			return nil
		})
		return err
	}, watchKey)

	switch {
	case err == nil:
		return false, nil
	case bodyErr != nil:
		return false, bodyErr
	case errors.Is(err, redis.TxFailedErr):
		return true, nil
	default:
		return false, types.NewStoreError("transaction", err)
	}
}

// Ping 检查 Redis 连接
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close 关闭存储
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)
	s.logger.Info("closing redis store")

	return s.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (s *RedisStore) healthCheckLoop() {
	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("redis health check failed", zap.Error(err))
		} else {
			s.logger.Debug("redis health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 🔧 辅助类型
// =============================================================================

type redisTx struct {
	tx     *redis.Tx
	writes []pendingWrite
}

func (t *redisTx) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := t.tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.NewStoreError("tx get", err)
	}
	return val, true, nil
}

func (t *redisTx) Set(key, value string) {
	t.writes = append(t.writes, pendingWrite{key: key, value: value})
}

// escapeGlob quotes the glob metacharacters SCAN MATCH understands.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
