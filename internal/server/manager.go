package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 监听器生命周期管理
// =============================================================================

// Manager 管理单个 HTTP 监听器的生命周期。memflow 进程同时运行两个
// 监听器（REST API 与 Prometheus metrics），每个监听器各持有一个
// Manager，通过 name 区分日志来源。
type Manager struct {
	name     string
	server   *http.Server
	listener net.Listener
	serveErr chan error
	config   Config
	logger   *zap.Logger
	mu       sync.Mutex
	started  bool
	closed   bool
}

// Config 监听器配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回与 API 监听器一致的默认配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     30 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewManager 创建命名监听器管理器
func NewManager(name string, handler http.Handler, config Config, logger *zap.Logger) *Manager {
	return &Manager{
		name: name,
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		serveErr: make(chan error, 1),
		config:   config,
		logger: logger.With(
			zap.String("component", "http_server"),
			zap.String("server", name),
		),
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 绑定端口并在后台开始服务（非阻塞）
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("server %s is closed", m.name)
	}
	if m.started {
		return fmt.Errorf("server %s already started", m.name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.config.Addr, err)
	}

	m.listener = listener
	m.started = true
	m.logger.Info("listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("serve failed", zap.Error(err))
			select {
			case m.serveErr <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown 在配置的超时内排空请求并释放监听器，可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("shutdown failed", zap.Error(err))
		return err
	}

	m.listener = nil
	m.logger.Info("stopped")
	return nil
}

// Errors 返回异步服务错误通道
func (m *Manager) Errors() <-chan error {
	return m.serveErr
}

// =============================================================================
// 🔧 状态查询
// =============================================================================

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// BoundAddr 返回实际绑定的地址。Addr 配置为 ":0" 时端口由内核分配，
// 只有启动后才能得知。
func (m *Manager) BoundAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return m.config.Addr
	}
	return m.listener.Addr().String()
}

// IsRunning 检查监听器是否已启动且尚未关闭
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.closed
}

// =============================================================================
// 🛑 信号等待与统一关闭
// =============================================================================

// AwaitSignal 阻塞直到收到 SIGINT/SIGTERM 或任一监听器上报服务错误，
// 然后依次优雅关闭所有监听器。serve 进程用它同时守护 API 与 metrics
// 两个监听器。
func AwaitSignal(logger *zap.Logger, managers ...*Manager) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	failed := make(chan error, 1)
	for _, m := range managers {
		if m == nil {
			continue
		}
		go func(m *Manager) {
			if err := <-m.Errors(); err != nil {
				select {
				case failed <- fmt.Errorf("server %s: %w", m.name, err):
				default:
				}
			}
		}(m)
	}

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-failed:
		logger.Error("server exited unexpectedly", zap.Error(err))
	}

	for _, m := range managers {
		if m == nil {
			continue
		}
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", zap.Error(err), zap.String("server", m.name))
		}
	}
}
