package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"AgentFlow/internal/agent"
	"AgentFlow/internal/auth"
	"AgentFlow/internal/metrics"
	"AgentFlow/internal/session"
	"AgentFlow/internal/task"
	"AgentFlow/pkg/logger"
)

// Executor 是 API 同步执行查询所需的能力。
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, memory agent.Memory) *agent.Execution
}

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr            string
	executor        Executor
	sessions        *session.Store
	tasks           *task.Service
	auth            *auth.Service
	limiter         *rate.Limiter
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithTaskService 启用异步任务接口。
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) {
		s.tasks = svc
	}
}

// WithAuth 为业务接口启用 API Key 认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithRateLimit 为提交类接口设置令牌桶限流，rps 为 0 时不限流。
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeouts 设置读写与优雅关闭的超时时间。
func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, executor Executor, sessions *session.Store, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		executor:        executor,
		sessions:        sessions,
		readTimeout:     15 * time.Second,
		writeTimeout:    60 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.sessions == nil {
		s.sessions = session.NewStore()
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回注册了全部路由的 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/v1/executions", auth.PermissionExecute, s.limited(s.handleExecute))
	s.route(mux, "GET /api/v1/sessions/{id}/memory", auth.PermissionRead, s.handleMemory)
	s.route(mux, "GET /api/v1/sessions/{id}/executions", auth.PermissionRead, s.handleListExecutions)
	s.route(mux, "GET /api/v1/sessions/{id}/executions/{execution}", auth.PermissionRead, s.handleExecutionDetail)
	s.route(mux, "GET /api/v1/sessions/{id}/stats", auth.PermissionRead, s.handleSessionStats)
	s.route(mux, "POST /api/v1/tasks", auth.PermissionSubmitTask, s.limited(s.handleSubmitTask))
	s.route(mux, "GET /api/v1/tasks", auth.PermissionRead, s.handleListTasks)
	s.route(mux, "GET /api/v1/tasks/stats", auth.PermissionRead, s.handleTaskStats)
	s.route(mux, "GET /api/v1/tasks/{id}", auth.PermissionRead, s.handleTaskDetail)
	s.route(mux, "GET /healthz", "", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api server listening", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api server shutdown", slog.Any("error", err))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// route 注册处理器并记录请求指标，permission 非空时要求认证。
func (s *Server) route(mux *http.ServeMux, pattern, permission string, handler http.HandlerFunc) {
	var h http.Handler = handler
	if permission != "" && s.auth.Enabled() {
		h = s.auth.Middleware(auth.MiddlewareConfig{
			RequiredPermissions: map[string][]string{"*": {permission}},
			AuditEvent:          pattern,
		})(h)
	}
	mux.Handle(pattern, instrument(pattern, h))
}

// limited 在令牌耗尽时返回 429。
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errorBody{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			}})
			return
		}
		next(w, r)
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(pattern, r.Method, recorder.status, time.Since(started))
	})
}
