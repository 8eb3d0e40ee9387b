/*
Package handlers 提供 memflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 memflow 所有 HTTP 端点的请求处理逻辑，
包括记忆存取、反馈学习、案例推理、生命周期管理以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - MemoryHandler    — 记忆条目存取、相似检索与反馈更新
  - LearningHandler  — Agent 注册、反馈处理、推荐与动作选择
  - CaseHandler      — 案例增删、检索、适配、结果预测与决策验证
  - ManagerHandler   — 记忆优化、健康评估、备份与恢复
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
