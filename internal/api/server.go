package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentRelay/internal/agent"
	"AgentRelay/internal/auth"
	xerrors "AgentRelay/internal/errors"
	"AgentRelay/internal/observability/metrics"
	"AgentRelay/internal/task"
)

// Server 负责暴露 REST 接口，供外部提交与查询智能体任务。
type Server struct {
	addr       string
	tasks      *task.Service
	dispatcher *agent.Dispatcher
	auth       *auth.Service
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithDispatcher 启用同步调度接口 /api/v1/dispatch。
func WithDispatcher(dispatcher *agent.Dispatcher) ServerOption {
	return func(s *Server) {
		s.dispatcher = dispatcher
	}
}

// WithAuthService 启用基于静态令牌的访问控制。
func WithAuthService(service *auth.Service) ServerOption {
	return func(s *Server) {
		s.auth = service
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks *task.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, tasks: tasks}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回组装好的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dispatch", s.protect(instrument("dispatch", s.handleDispatch)))
	mux.HandleFunc("/api/v1/tasks", s.protect(instrument("tasks", s.handleTasks)))
	mux.HandleFunc("/api/v1/tasks/stats", s.protect(instrument("task_stats", s.handleStats)))
	mux.HandleFunc("/api/v1/tasks/", s.protect(instrument("task_detail", s.handleTaskDetail)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// protect 为需要认证的路由套上访问控制中间件。
func (s *Server) protect(handler http.HandlerFunc) http.HandlerFunc {
	if s.auth == nil || !s.auth.Enabled() {
		return handler
	}
	wrapped := s.auth.Middleware(auth.MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			http.MethodGet:  {auth.PermTasksRead},
			http.MethodPost: {auth.PermTasksWrite},
		},
	})(handler)
	return wrapped.ServeHTTP
}

// handleDispatch 同步执行一次调度并返回结果。
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.dispatcher == nil {
		http.Error(w, "调度器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req agent.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	start := time.Now()
	response, err := s.dispatcher.Dispatch(r.Context(), req)
	metrics.ObserveDispatch(string(req.Type), err == nil, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateTask 创建异步任务并立即返回受理结果。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req agent.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := listOptionsFromQuery(r)
	results, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleTaskDetail 返回单个任务的状态。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "任务 ID 无效", http.StatusBadRequest)
		return
	}

	result, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStats 返回任务状态统计。
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.tasks == nil {
		http.Error(w, "任务服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.tasks.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptionsFromQuery 将查询参数转换为任务过滤条件。
func listOptionsFromQuery(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	opts := make([]task.ListOption, 0, 6)

	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]task.Status, 0, len(parts))
		for _, part := range parts {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("type"); raw != "" {
		parts := strings.Split(raw, ",")
		types := make([]string, 0, len(parts))
		for _, part := range parts {
			types = append(types, strings.TrimSpace(part))
		}
		opts = append(opts, task.WithTypes(types...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	if raw := query.Get("has_result"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			opts = append(opts, task.WithResultPresence(parsed))
		}
	}
	return opts
}

// writeError 根据错误码映射 HTTP 状态并返回统一的错误结构。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, httpStatusOf(code), map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func httpStatusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeValidation:
		return http.StatusBadRequest
	case xerrors.CodeUnroutableTask:
		return http.StatusUnprocessableEntity
	case xerrors.CodeNotFound, task.CodeTaskNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeAuthFailure, xerrors.CodeLLMFailure, xerrors.CodeNetworkFailure, xerrors.CodeSearchFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// instrument 记录每个路由的请求量与耗时。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
