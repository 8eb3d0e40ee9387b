package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow"
	"github.com/BaSui01/memflow/api/handlers"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/server"
	"github.com/BaSui01/memflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 memflow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 记忆系统
	system *memflow.System

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	memoryHandler   *handlers.MemoryHandler
	learningHandler *handlers.LearningHandler
	caseHandler     *handlers.CaseHandler
	managerHandler  *handlers.ManagerHandler

	// 遥测
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 构建记忆系统
	system, err := memflow.New(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build memory system: %w", err)
	}
	s.system = system

	// 2. 初始化 Handlers
	s.initHandlers()

	// 3. 启动周期性优化调度
	if err := s.system.Manager.Schedule(s.cfg.Manager.Interval); err != nil {
		return fmt.Errorf("failed to schedule optimization: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.memoryHandler = handlers.NewMemoryHandler(s.system.Memory, s.logger)
	s.learningHandler = handlers.NewLearningHandler(s.system.Learning, s.logger)
	s.caseHandler = handlers.NewCaseHandler(s.system.Cases, s.logger)
	s.managerHandler = handlers.NewManagerHandler(s.system.Manager, s.logger)

	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("persistence", s.system.PingStore))

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 记忆 API
	// ========================================
	mux.HandleFunc("POST /api/v1/memory/entries", s.memoryHandler.HandleStore)
	mux.HandleFunc("GET /api/v1/memory/entries/{id}", s.memoryHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/memory/entries/{id}", s.memoryHandler.HandleDelete)
	mux.HandleFunc("POST /api/v1/memory/search", s.memoryHandler.HandleSearch)
	mux.HandleFunc("GET /api/v1/memory/stats", s.memoryHandler.HandleStats)

	// ========================================
	// 学习 API
	// ========================================
	mux.HandleFunc("POST /api/v1/agents", s.learningHandler.HandleRegister)
	mux.HandleFunc("GET /api/v1/agents/{id}/profile", s.learningHandler.HandleProfile)
	mux.HandleFunc("POST /api/v1/agents/{id}/adapt", s.learningHandler.HandleAdapt)
	mux.HandleFunc("POST /api/v1/feedback", s.learningHandler.HandleFeedback)
	mux.HandleFunc("POST /api/v1/recommendations", s.learningHandler.HandleRecommendations)
	mux.HandleFunc("POST /api/v1/actions/select", s.learningHandler.HandleSelectAction)

	// ========================================
	// 案例 API
	// ========================================
	mux.HandleFunc("POST /api/v1/cases", s.caseHandler.HandleAdd)
	mux.HandleFunc("GET /api/v1/cases/{id}", s.caseHandler.HandleGet)
	mux.HandleFunc("POST /api/v1/cases/search", s.caseHandler.HandleSearch)
	mux.HandleFunc("POST /api/v1/cases/adapt", s.caseHandler.HandleAdapt)
	mux.HandleFunc("POST /api/v1/cases/predict", s.caseHandler.HandlePredict)
	mux.HandleFunc("POST /api/v1/cases/validate", s.caseHandler.HandleValidate)
	mux.HandleFunc("PUT /api/v1/cases/{id}/outcome", s.caseHandler.HandleOutcome)

	// ========================================
	// 管理 API
	// ========================================
	mux.HandleFunc("POST /api/v1/memory/optimize", s.managerHandler.HandleOptimize)
	mux.HandleFunc("GET /api/v1/memory/health", s.managerHandler.HandleHealth)
	mux.HandleFunc("GET /api/v1/memory/backup", s.managerHandler.HandleBackup)
	mux.HandleFunc("POST /api/v1/memory/restore", s.managerHandler.HandleRestore)

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager("api", handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 同时守护 API 与 metrics 两个监听器
	server.AwaitSignal(s.logger, s.httpManager, s.metricsManager)

	// 执行清理（监听器的 Shutdown 可重复调用）
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭记忆系统（停止优化调度、释放持久化后端）
	if s.system != nil {
		if err := s.system.Close(); err != nil {
			s.logger.Error("Memory system shutdown error", zap.Error(err))
		}
	}

	// 4. 刷新遥测数据
	if s.otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		cancel()
	}

	s.logger.Info("Graceful shutdown completed")
}
