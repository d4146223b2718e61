// 版权所有 2024 ChatFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理聊天记录库（chat_rooms、chat_messages）的 Schema 版本，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌。迁移器在 database 包打开的
*sql.DB 上通过 WithInstance 构建，SQLite 因而复用纯 Go 驱动，无需 CGO。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的实现，日志接入 zap。
  - CLI：chatflow migrate 子命令的格式化输出，含 reset。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 为迁移单独打开
连接池，Close 时一并释放。
*/
package migration
