package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"macroblock/internal/api"
	"macroblock/internal/config"
	"macroblock/internal/gateway"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/services"
)

const (
	// maxUploadBytes caps a single detect or batch request body.
	maxUploadBytes = 1 << 30
	// multipartMemory is the in-memory threshold before multipart parts
	// spill to temporary files.
	multipartMemory = 64 << 20

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type apiServer struct {
	bind       string
	token      string
	logger     *slog.Logger
	daemon     *Daemon
	historySvc *api.HistoryService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Daemon.Listen)
	if bind == "" {
		return nil, errors.New("daemon listen address is empty")
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Daemon.APIToken),
		logger: logger,
		daemon: d,
	}
	if d.store != nil {
		srv.historySvc = api.NewHistoryService(d.store)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/detect/image", srv.authed(srv.detectHandler(media.KindImage)))
	mux.HandleFunc("/api/v1/detect/video", srv.authed(srv.detectHandler(media.KindVideo)))
	mux.HandleFunc("/api/v1/detect/audio", srv.authed(srv.detectHandler(media.KindAudio)))
	mux.HandleFunc("/api/v1/detect/batch", srv.authed(srv.handleDetectBatch))
	mux.HandleFunc("/api/v1/detectors", srv.authed(srv.handleDetectors))
	mux.HandleFunc("/api/v1/history", srv.authed(srv.handleHistory))
	mux.HandleFunc("/api/v1/history/", srv.authed(srv.handleHistoryItem))
	mux.HandleFunc("/api/v1/status", srv.authed(srv.handleStatus))
	mux.HandleFunc("/api/v1/notify/test", srv.authed(srv.handleNotifyTest))
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/readyz", srv.handleReadyz)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listen address, falling back to the configured bind
// before the listener exists.
func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// authed wraps a handler with bearer token validation. An empty configured
// token disables authentication.
func (s *apiServer) authed(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) detectHandler(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		filename, data, err := readUpload(w, r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		engine := s.daemon.Engine()
		var result *gateway.Result
		switch kind {
		case media.KindImage:
			result, err = engine.AnalyzeImage(r.Context(), filename, data)
		case media.KindVideo:
			result, err = engine.AnalyzeVideo(r.Context(), filename, data)
		case media.KindAudio:
			result, err = engine.AnalyzeAudio(r.Context(), filename, data)
		default:
			s.writeError(w, http.StatusNotFound, "unknown media kind")
			return
		}
		if err != nil {
			s.writeError(w, services.HTTPStatus(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromResult(result))
	}
}

func (s *apiServer) handleDetectBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uploads, err := readBatchUploads(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.daemon.Engine().AnalyzeBatch(r.Context(), uploads)
	if err != nil {
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromBatchResults(results))
}

func (s *apiServer) handleDetectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health := s.daemon.Engine().Registry().Health()
	s.writeJSON(w, http.StatusOK, api.FromRegistryHealth(health))
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid history limit")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := s.historySvc.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: entries})
}

func (s *apiServer) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/history/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	entry, err := s.historySvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		ListenAddr:    status.ListenAddr,
		HistoryDBPath: status.HistoryDBPath,
		LockFilePath:  status.LockFilePath,
		IntakeActive:  status.IntakeActive,
		Detectors:     api.FromRegistryHealth(status.Detectors),
		Dependencies:  deps,
	}
	if status.History != nil {
		summary := api.FromHistorySummary(*status.History)
		payload.History = &summary
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, message)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotifyTestResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health := s.daemon.Engine().Registry().Health()
	loaded := 0
	for _, det := range health.Detectors {
		if det.Loaded {
			loaded++
		}
	}
	if loaded == 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, api.ReadyResponse{
			Ready:  false,
			Detail: "no detectors loaded",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReadyResponse{Ready: true})
}

// readUpload extracts the single multipart "file" part from a detect request.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", nil, fmt.Errorf("parse multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("missing multipart field \"file\"")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", nil, errors.New("uploaded file is empty")
	}
	return header.Filename, data, nil
}

// readBatchUploads extracts every multipart "file" part from a batch request,
// preserving upload order.
func readBatchUploads(w http.ResponseWriter, r *http.Request) ([]gateway.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["file"]) == 0 {
		return nil, errors.New("missing multipart field \"file\"")
	}

	headers := r.MultipartForm.File["file"]
	uploads := make([]gateway.Upload, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", header.Filename, err)
		}
		uploads = append(uploads, gateway.Upload{Filename: header.Filename, Data: data})
	}
	return uploads, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
