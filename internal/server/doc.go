// 版权所有 2024 ChatFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 ChatFlow HTTP 服务器的生命周期：非阻塞启动、
WebSocket 会话登记与优雅关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
    所有请求 context 派生自 Manager 的基础 context。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与关闭超时。

# 关闭流程

Shutdown 先取消基础 context，使进行中的聊天会话退出读循环并落库，
再调用 http.Server.Shutdown，最后在超时内等待经 Track 登记的会话结束。
WaitForShutdown 监听 SIGINT/SIGTERM 后触发该流程。
*/
package server
