// 版权所有 2024 ChatFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、聊天会话、
对话引擎、计数器、消息落库与数据库连接。

# 概述

Collector 通过 promauto 注册到默认 registry，所有指标按 namespace 隔离。
它同时实现 counter.Recorder 与聊天编排层的记录接口。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话 Gauge、会话总数、消息数、慢订阅者丢弃事件数。
  - 对话引擎指标：按 bot 与结果分组的处理次数与耗时。
  - 计数器指标：reserve/get 次数与乐观事务尝试次数分布。
  - 落库指标：次数、每次写入消息数与耗时。
  - 数据库指标：活跃/空闲连接数。
*/
package metrics
