/*
Package kvstore 提供共享键值存储适配层。

# 概述

所有会话共享的可变状态（房间消息计数器、占位符绑定、消息缓存）都经由
Store 接口访问。计数器类的键只能通过 WithOptimisticTransaction 修改：
事务开始时监视一个键，提交时若该键已被其他写者改动则报告冲突，
由调用方决定是否重试。

# 实现

  - RedisStore：基于 go-redis 的 WATCH/MULTI/EXEC 实现，多进程共享
  - MemoryStore：进程内实现，用版本号模拟 WATCH，适用于单机与测试
*/
package kvstore
