// Command memflow 启动自适应记忆与学习服务。
//
// 服务暴露两个端口：HTTP API（记忆、学习、案例、管理端点）
// 与 Prometheus 指标端口（/metrics）。
package main
