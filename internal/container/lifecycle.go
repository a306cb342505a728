package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器
type LifecycleManager struct {
	components []Lifecycle
	log        *zap.Logger
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager(log *zap.Logger) *LifecycleManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleManager{
		components: make([]Lifecycle, 0),
		log:        log,
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按注册顺序启动，失败时逆序停止已启动的组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.components[j].Stop(); stopErr != nil {
					m.log.Warn("rollback stop failed", zap.String("component", m.components[j].Name()), zap.Error(stopErr))
				}
			}
			return fmt.Errorf("start %s failed: %w", component.Name(), err)
		}
		m.log.Info("component started", zap.String("component", component.Name()))
	}
	return nil
}

// StopAll 逆序停止所有组件，返回全部错误
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.components[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", component.Name(), err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件；Start 时先监听端口，端口被占用会直接报错
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	log     *zap.Logger
	onStop  func() // Shutdown 之前调用，用于结束长连接

	mu      sync.Mutex
	server  *http.Server
	bound   net.Addr
	started bool
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	h.server, h.bound = srv, ln.Addr()

	go func() {
		h.log.Info("http server listening", zap.String("component", h.name), zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error("http server failed", zap.String("component", h.name), zap.Error(err))
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.server == nil {
		return nil
	}
	if h.onStop != nil {
		h.onStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.log.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// Addr 实际监听地址（配置 :0 时用于测试）
func (h *httpServerComponent) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bound == nil {
		return ""
	}
	return h.bound.String()
}
