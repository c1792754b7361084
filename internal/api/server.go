package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/database"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/scheduler"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/syncer"
	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

// ConnectionTester verifies provider credentials on demand
type ConnectionTester interface {
	TestConnection(ctx context.Context, providerID int64) error
}

// APIServer provides the HTTP surface the dashboard talks to:
// manual sync triggers, provider inspection and health.
type APIServer struct {
	ctx       context.Context
	cancel    context.CancelFunc
	server    *http.Server
	listener  net.Listener
	port      string
	logger    *utils.LogsManager
	config    *utils.ConfigManager
	dbManager *database.SQLiteManager
	scheduler *scheduler.Scheduler
	tester    ConnectionTester
	startTime time.Time
}

// NewAPIServer creates a new API server instance
func NewAPIServer(
	config *utils.ConfigManager,
	logger *utils.LogsManager,
	dbManager *database.SQLiteManager,
	sched *scheduler.Scheduler,
	tester ConnectionTester,
) *APIServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &APIServer{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		config:    config,
		dbManager: dbManager,
		scheduler: sched,
		tester:    tester,
		startTime: time.Now(),
	}
}

// Start initializes and starts the API server
func (s *APIServer) Start() error {
	apiPort := s.config.GetConfigWithDefault("api_port", "8080")
	s.port = apiPort

	var err error
	s.listener, err = net.Listen("tcp", fmt.Sprintf(":%s", apiPort))
	if err != nil {
		return fmt.Errorf("failed to bind API server to port %s: %v", apiPort, err)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // manual deep syncs can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error(fmt.Sprintf("API server error: %v", err), "api")
		}
	}()

	s.logger.Info(fmt.Sprintf("API server started on port %s", apiPort), "api")
	return nil
}

// registerRoutes sets up all HTTP routes
func (s *APIServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/sync/", s.handleTriggerSync)
	mux.HandleFunc("/api/v1/providers", s.handleProviders)
	mux.HandleFunc("/api/v1/providers/", s.handleProviderDetail)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providers, err := s.dbManager.Providers.GetAllProviders()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read providers")
		return
	}

	healthy := 0
	for _, provider := range providers {
		if provider.Status == database.ProviderStatusHealthy {
			healthy++
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
		"providers":         len(providers),
		"healthy_providers": healthy,
	})
}

// handleTriggerSync runs a manual sync: POST /api/v1/sync/{type}.
// Responds 409 when a run of that type is already in progress.
func (s *APIServer) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	syncType := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/")
	switch syncType {
	case syncer.SyncTypeExecutions, syncer.SyncTypeWorkflows, syncer.SyncTypeBackups, syncer.SyncTypeFull:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sync type %q", syncType))
		return
	}

	opts := syncer.Options{SyncType: syncType}
	opts.DeepSync = r.URL.Query().Get("deep") == "true"
	if batch := r.URL.Query().Get("batch_size"); batch != "" {
		if n, err := strconv.Atoi(batch); err == nil && n > 0 {
			opts.BatchSize = n
		}
	}

	summary, err := s.scheduler.TriggerSync(r.Context(), opts)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			s.writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		s.logger.Error(fmt.Sprintf("Manual %s sync failed: %v", syncType, err), "api")
		s.writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *APIServer) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providers, err := s.dbManager.Providers.GetAllProviders()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read providers")
		return
	}

	s.writeJSON(w, http.StatusOK, providers)
}

// handleProviderDetail serves provider sub-resources:
//
//	GET  /api/v1/providers/{id}             provider with execution counts
//	GET  /api/v1/providers/{id}/sync-logs   recent sync runs
//	POST /api/v1/providers/{id}/test        connection test
func (s *APIServer) handleProviderDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/providers/")
	parts := strings.SplitN(rest, "/", 2)

	providerID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid provider id")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.serveProvider(w, providerID)
	case action == "sync-logs" && r.Method == http.MethodGet:
		s.serveSyncLogs(w, providerID)
	case action == "test" && r.Method == http.MethodPost:
		s.serveConnectionTest(w, r, providerID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) serveProvider(w http.ResponseWriter, providerID int64) {
	provider, err := s.dbManager.Providers.GetProvider(providerID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read provider")
		return
	}
	if provider == nil {
		s.writeError(w, http.StatusNotFound, "provider not found")
		return
	}

	counts, err := s.dbManager.Executions.CountExecutionsByStatus(providerID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to count executions")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":         provider,
		"execution_counts": counts,
	})
}

func (s *APIServer) serveSyncLogs(w http.ResponseWriter, providerID int64) {
	logs, err := s.dbManager.SyncLogs.GetRecentSyncLogs(providerID, 20)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read sync logs")
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func (s *APIServer) serveConnectionTest(w http.ResponseWriter, r *http.Request, providerID int64) {
	if err := s.tester.TestConnection(r.Context(), providerID); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to encode response: %v", err), "api")
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// Stop shuts the API server down gracefully
func (s *APIServer) Stop() error {
	s.logger.Info("Stopping API server", "api")
	s.cancel()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}

	return nil
}

// Port returns the port the server is bound to
func (s *APIServer) Port() string {
	return s.port
}
