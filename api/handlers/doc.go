// Copyright (c) ChatFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ChatFlow HTTP 端点的请求处理器实现。

# 端点

  - GET /ws/chat                         - 访客会话（机器人对话），可带 ?user=
  - GET /ws/admin                        - 客服会话（人工接管），只能进入已存在的房间
  - GET /api/v1/rooms/{room}             - 房间记录
  - GET /api/v1/rooms/{room}/messages    - 最近落库的消息，?limit=1..500
  - GET /health, /healthz                - 存活探针
  - GET /ready                           - 就绪探针（键值存储与数据库）
  - GET /version                         - 构建信息

# WebSocket 帧

入站为 {"event": "enter_room"|"message"|"exit_room", "room": "...", "data": "..."}，
出站为 {"event": "message"|"livechat"|"history"|"error", "room": "...", "data": ...}。

# 核心类型

  - ChatHandler    - 升级 WebSocket 并交给 chat.Orchestrator
  - RoomHandler    - 只读房间查询
  - HealthHandler  - 健康检查，RegisterCheck 注册 HealthCheck
  - Response       - 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter - 捕获状态码并支持 Hijack 的 http.ResponseWriter 包装
*/
package handlers
