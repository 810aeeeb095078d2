// Package api exposes the read-only snapshots and lifecycle commands the
// presentation layer consumes. It only reads store snapshots and
// supervisor status and feeds intents/commands into the engine; it holds
// no state of its own.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/yanun0323/logs"

	"main/internal/engine"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/store"
	"main/internal/supervisor"
	"main/pkg/exception"
)

// Server handles the control-plane REST API.
type Server struct {
	store  store.Store
	engine *engine.Engine
	sup    *supervisor.Supervisor
	pacing *obs.Pacing
	router *mux.Router
}

// NewServer wires the routes.
func NewServer(st store.Store, eng *engine.Engine, sup *supervisor.Supervisor, pacing *obs.Pacing) *Server {
	s := &Server{
		store:  st,
		engine: eng,
		sup:    sup,
		pacing: pacing,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders/open", s.handleOpenOrders).Methods("GET")
	api.HandleFunc("/orders/{coid}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitIntent).Methods("POST")
	api.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/journal", s.handleGetJournal).Methods("GET")
	api.HandleFunc("/metrics", s.handleGetMetrics).Methods("GET")
	api.HandleFunc("/pacing", s.handleGetPacing).Methods("GET")

	api.HandleFunc("/loop/status", s.handleLoopStatus).Methods("GET")
	api.HandleFunc("/loop/start", s.handleLoopStart).Methods("POST")
	api.HandleFunc("/loop/stop", s.handleLoopStop).Methods("POST")
	api.HandleFunc("/reconcile", s.handleReconcile).Methods("POST")
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	handler := cors.Default().Handler(s.router)
	logs.Infof("control api listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, _ *http.Request) {
	orders, err := s.store.OpenOrders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	coid := mux.Vars(r)["coid"]
	order, err := s.store.OrderByCOID(coid)
	if errors.Is(err, exception.ErrStoreNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleSubmitIntent(w http.ResponseWriter, r *http.Request) {
	var it model.Intent
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Accept(r.Context(), it); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"client_order_id": it.ClientOrderID,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, _ *http.Request) {
	positions, err := s.store.Positions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	entries, err := s.store.TailJournal(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics, err := s.store.MetricsSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleGetPacing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pacing.Snapshot())
}

func (s *Server) handleLoopStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) handleLoopStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.sup.Start(s.engine.RunLoop); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sup.Status())
}

func (s *Server) handleLoopStop(w http.ResponseWriter, _ *http.Request) {
	s.sup.Stop()
	writeJSON(w, http.StatusAccepted, s.sup.Status())
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reconcile(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Errorf("encode response, err: %+v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
