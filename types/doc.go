// Copyright (c) ChatFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ChatFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 dialog、counter、chat、
api 等上层模块提供统一的错误码与上下文约定。

# 核心类型

  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - 上下文传播：WithRequestID / WithParticipantID / WithRoomName

# 主要能力

  - 错误工具链：GetErrorCode / IsCode / IsRetryable（穿透 errors 包装链）
  - 常用错误构造：NewStoreError / NewInvalidRequestError
*/
package types
