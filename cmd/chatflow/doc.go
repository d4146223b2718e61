// Copyright (c) ChatFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ChatFlow 服务端程序入口。

# 概述

cmd/chatflow 是 ChatFlow 的可执行入口，提供 WebSocket 对话服务、
房间查询 API、数据库迁移、健康检查和版本查询等子命令。程序支持
YAML 配置文件与 .env 加载、结构化日志（zap）、Prometheus 指标采集
以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server      - 主服务器，装配对话编排器并管理 HTTP、Metrics 双端口及优雅关闭
  - Deps        - 进程级资源：共享存储、数据库连接池、遥测 provider
  - Middleware  - HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 路由：/ws/chat、/ws/admin、/api/v1/rooms/{room}[/messages]、
    /health、/ready、/version
  - 中间件链：Recovery、RequestID、OTelTracing、Metrics、SecurityHeaders、
    RequestLogger、CORS（仅房间 API）、RateLimiter（基于 IP）
  - 共享存储：chat.kv_backend 选择 Redis 或进程内存储
  - 优雅关闭：信号监听 → 取消会话并等待落库 → 关闭 Metrics → 关闭存储 → 导出遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
