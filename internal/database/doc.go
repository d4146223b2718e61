/*
包 database 负责打开聊天记录库并管理其连接池。

# 概述

Open 按配置中的驱动名（postgres、mysql、sqlite）选择 GORM 方言，
随后用 PoolManager 包装连接，统一设置连接池参数、后台健康检查
以及事务执行。SQLite 走纯 Go 的 glebarez/sqlite 驱动，强制单连接。

# 核心类型

  - PoolManager：持有 GORM 实例与底层 sql.DB，提供 DB、SQLDB、Ping、
    Stats、Close 与 Transact。
  - PoolConfig：连接池参数、探活间隔与事务重试次数。

# 事务

Transact 是会话落库的唯一入口。锁冲突、序列化失败与断连会让整个事务
按指数退避重跑，因此回调必须幂等。
*/
package database
