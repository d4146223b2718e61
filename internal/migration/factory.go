package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/database"
	"go.uber.org/zap"
)

// NewMigratorFromConfig 按应用配置创建迁移器
func NewMigratorFromConfig(cfg *appconfig.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig 为迁移单独打开一个连接池，Close 时一并关闭，
// 不影响服务自身的连接池。
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	dbCfg.Driver = string(dbType)

	pool, err := database.Open(dbCfg, logger)
	if err != nil {
		return nil, err
	}

	m, err := NewMigrator(pool.SQLDB(), &Config{DatabaseType: dbType}, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	m.closers = append(m.closers, pool.Close)
	return m, nil
}
