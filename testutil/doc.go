/*
Package testutil 提供 ChatFlow 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试与端到端测试提供统一的存储夹具，
避免在 chat、handlers、cmd 等包中重复搭建数据库和 Redis。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 数据库夹具: NewPool / NewRepository，内存 SQLite，已执行建表
  - Redis 夹具: NewRedisStore，基于 miniredis，可通过返回的
    *miniredis.Miniredis 注入故障或快进时间
  - 通道辅助: WaitForChannel

本包只应被 _test.go 文件导入。
*/
package testutil
