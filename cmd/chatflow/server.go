package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/chatflow/api/handlers"
	"github.com/BaSui01/chatflow/config"
	"github.com/BaSui01/chatflow/internal/chat"
	"github.com/BaSui01/chatflow/internal/counter"
	"github.com/BaSui01/chatflow/internal/database"
	"github.com/BaSui01/chatflow/internal/kvstore"
	"github.com/BaSui01/chatflow/internal/metrics"
	"github.com/BaSui01/chatflow/internal/persistence"
	"github.com/BaSui01/chatflow/internal/server"
	"github.com/BaSui01/chatflow/internal/telemetry"
	"github.com/BaSui01/chatflow/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// dbStatsInterval 连接池指标的采集间隔
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Deps 是 Server 在进程外部打开的资源，Server 关闭时一并释放
type Deps struct {
	Store     kvstore.Store
	Pool      *database.PoolManager
	Telemetry *telemetry.Providers
	// Collector 可选，为空时以 "chatflow" 命名空间创建
	Collector *metrics.Collector
}

// Server 是 ChatFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   Deps

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 对话核心
	repo         *persistence.Repository
	hub          *transport.Hub
	orchestrator *chat.Orchestrator

	// Handlers
	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	roomHandler   *handlers.RoomHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 后台任务（限流清理、连接池指标）生命周期管理
	bgCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 装配对话核心与 HTTP 层，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Pool == nil {
		return nil, errors.New("store and database pool are required")
	}

	s := &Server{
		cfg:              cfg,
		logger:           logger,
		deps:             deps,
		metricsCollector: deps.Collector,
	}
	if s.metricsCollector == nil {
		s.metricsCollector = metrics.NewCollector("chatflow", logger)
	}

	if err := s.initChat(); err != nil {
		return nil, fmt.Errorf("failed to init chat: %w", err)
	}
	s.initHandlers()

	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.httpManager = server.NewManager(
		s.buildHandler(bgCtx),
		server.ConfigFrom(cfg.Server, cfg.Server.HTTPPort),
		logger,
	)
	// WebSocket 会话登记到 HTTP 管理器，关闭时等待它们落库
	s.chatHandler.WithTracker(s.httpManager.Track)

	s.wg.Add(1)
	go s.reportDBStats(bgCtx)

	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initChat 建库表、加载模板并创建编排器
func (s *Server) initChat() error {
	repo := persistence.NewFromPool(s.deps.Pool)
	if s.cfg.Database.AutoMigrate {
		if err := repo.AutoMigrate(); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		s.logger.Info("Database schema migrated")
	}

	registry := chat.NewRegistry(s.cfg.Chat.TemplateDir, s.cfg.Chat.Rooms, s.logger)
	if err := registry.Preload(); err != nil {
		return err
	}

	coordinator := counter.New(s.deps.Store,
		counter.WithMaxAttempts(s.cfg.Chat.MaxReserveAttempts),
		counter.WithLogger(s.logger),
		counter.WithRecorder(s.metricsCollector),
	)

	s.repo = repo
	s.hub = transport.NewHub(s.logger)
	s.orchestrator = chat.NewOrchestrator(chat.Deps{
		Registry: registry,
		Store:    s.deps.Store,
		Counter:  coordinator,
		Repo:     repo,
		Hub:      s.hub,
		Config:   s.cfg.Chat,
		Recorder: s.metricsCollector,
		Logger:   s.logger,
		Tracer:   s.deps.Telemetry.Tracer("github.com/BaSui01/chatflow/internal/chat"),
	})

	s.logger.Info("Chat orchestrator initialized",
		zap.Strings("bots", registry.Bots()),
		zap.String("kv_backend", s.cfg.Chat.KVBackend),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("kvstore", s.deps.Store))
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.deps.Pool))

	s.chatHandler = handlers.NewChatHandler(s.orchestrator, s.cfg.Server.AllowedOrigins, s.logger)
	s.roomHandler = handlers.NewRoomHandler(s.repo, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 路由
// =============================================================================

// buildHandler 注册路由并套上中间件链
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion)

	// WebSocket 会话
	mux.HandleFunc("GET /ws/chat", s.chatHandler.HandleParticipant)
	mux.HandleFunc("GET /ws/admin", s.chatHandler.HandleOperator)

	// 房间查询 API
	mux.HandleFunc("GET /api/v1/rooms/{room}", s.roomHandler.HandleGetRoom)
	mux.HandleFunc("GET /api/v1/rooms/{room}/messages", s.roomHandler.HandleListMessages)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.deps.Telemetry.Tracer("github.com/BaSui01/chatflow/http")),
		MetricsMiddleware(s.metricsCollector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// startMetricsServer 启动 Metrics 服务器，metrics_port 为 0 时跳过
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// reportDBStats 周期性上报连接池指标
func (s *Server) reportDBStats(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		stats := s.deps.Pool.Stats()
		s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// httpManager 监听信号并先关闭 HTTP 层（含会话落库）
	s.httpManager.WaitForShutdown()
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。
// 顺序：HTTP（等待会话落库）→ Metrics → 后台任务 → Hub → 存储 → 遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器，取消会话并等待落库
	if err := s.httpManager.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 停止后台任务
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()

	// 4. 关闭广播中心
	s.hub.Close()

	// 5. 释放存储
	if err := s.deps.Store.Close(); err != nil {
		s.logger.Error("Key-value store close error", zap.Error(err))
	}
	if err := s.deps.Pool.Close(); err != nil {
		s.logger.Error("Database close error", zap.Error(err))
	}

	// 6. 导出剩余遥测数据
	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.deps.Telemetry.Shutdown(tctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
