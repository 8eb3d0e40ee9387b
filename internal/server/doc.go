// 版权所有 2024 memflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 memflow 进程内 HTTP 监听器的生命周期。

# 概述

memflow 的 serve 命令同时运行两个监听器：REST API 与 Prometheus
metrics。本包通过命名的 Manager 封装 net/http.Server，统一处理
端口绑定、后台服务、优雅关闭与异步错误上报，日志按监听器名区分。

# 核心类型

  - Manager：命名监听器管理器，提供 Start/Shutdown 生命周期方法
    与 Addr/BoundAddr/IsRunning/Errors 状态查询。
  - Config：监听器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 绑定端口后在后台 goroutine 中服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空，可重复调用。
  - 信号守护：AwaitSignal 同时监听 SIGINT/SIGTERM 与多个监听器的
    服务错误，任一触发后统一关闭全部监听器。
  - 端口探查：Addr 为 ":0" 时 BoundAddr 返回内核实际分配的地址。
*/
package server
