package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// =============================================================================
// 🗄️ 聊天记录库连接池
// =============================================================================

// PoolConfig 连接池与事务重试参数
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 探活间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 事务遇到锁冲突或断连时的最大尝试次数（含首次）与首次退避
	TxAttempts int           `yaml:"tx_attempts" json:"tx_attempts"`
	TxBackoff  time.Duration `yaml:"tx_backoff" json:"tx_backoff"`
}

// DefaultPoolConfig 返回默认参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     time.Minute,
		HealthCheckInterval: 30 * time.Second,
		TxAttempts:          3,
		TxBackoff:           50 * time.Millisecond,
	}
}

// PoolManager 持有 GORM 实例，负责探活、关闭以及会话落库事务的重试
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewPoolManager 应用连接池参数并启动探活
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	if cfg.TxAttempts < 1 {
		cfg.TxAttempts = 1
	}

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.watch(cfg.HealthCheckInterval)
	}

	pm.logger.Info("database pool ready",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("tx_attempts", cfg.TxAttempts))
	return pm, nil
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

// SQLDB 返回底层 *sql.DB，迁移器复用它
func (pm *PoolManager) SQLDB() *sql.DB {
	return pm.sqlDB
}

// Stats 返回 database/sql 的连接统计，供 metrics 采样
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Ping 探活，/ready 使用
func (pm *PoolManager) Ping(ctx context.Context) error {
	if pm.isClosed() {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stop)
	pm.logger.Info("database pool closed")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) isClosed() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.closed
}

// =============================================================================
// 🔄 事务
// =============================================================================

// Transact 在一个事务中执行 fn。fn 出错时回滚；错误属于锁冲突、序列化失败
// 或断连时，按指数退避整体重试，最多 TxAttempts 次。fn 必须可重复执行。
func (pm *PoolManager) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := pm.cfg.TxBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if pm.isClosed() {
			return ErrPoolClosed
		}
		err = pm.db.WithContext(ctx).Transaction(fn)
		if err == nil || !transient(err) {
			return err
		}
		if attempt >= pm.cfg.TxAttempts {
			break
		}

		pm.logger.Warn("transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("transaction gave up after %d attempts: %w", pm.cfg.TxAttempts, err)
}

// transientMarkers 是各驱动在锁冲突、序列化失败、断连时的错误文本片段
var transientMarkers = []string{
	"deadlock",
	"40001",
	"could not serialize",
	"lock wait timeout",
	"database is locked",
	"sqlite_busy",
	"connection reset",
	"broken pipe",
}

// transient 判断错误是否值得整体重试事务
func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// =============================================================================
// 🏥 探活
// =============================================================================

func (pm *PoolManager) watch(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := pm.Ping(ctx)
		cancel()

		switch {
		case errors.Is(err, ErrPoolClosed):
			return
		case err != nil:
			pm.logger.Error("database ping failed", zap.Error(err))
			failing = true
		case failing:
			pm.logger.Info("database reachable again")
			failing = false
		}
	}
}
