package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
)

// healthHandler reports process liveness.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler serializes the active grid's full node state.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	name, sched := a.activeScheduler()
	if sched == nil {
		http.Error(w, "no grid executing", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	payload := struct {
		Grid     string          `json:"grid"`
		Stranded []string        `json:"stranded"`
		State    json.RawMessage `json:"state"`
	}{Grid: name, Stranded: sched.Graph().Stranded()}

	state, err := json.Marshal(sched.Graph().Export())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	payload.State = state

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("Failed to encode status response.", "error", err)
	}
}

// readyHandler lists the node ids currently eligible to run, in dispatch
// order.
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	_, sched := a.activeScheduler()
	if sched == nil {
		http.Error(w, "no grid executing", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sched.ListReady()); err != nil {
		a.logger.Error("Failed to encode ready response.", "error", err)
	}
}

// startStatusServer initializes and runs the status HTTP server.
func (a *App) startStatusServer(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)
	mux.HandleFunc("/ready", a.readyHandler)

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeStatusServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
	}
}
