// Package server exposes the engine's HTTP surface: the analysis endpoint,
// health and metrics, and a websocket stream of live quotes per ticker.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fintools-ai/mcp-order-flow-server/internal/query"
	"github.com/fintools-ai/mcp-order-flow-server/internal/store"
)

const queryDeadline = 10 * time.Second

type Server struct {
	log   *zap.Logger
	query *query.Coordinator
	store store.Store
	hub   *Hub
	http  *http.Server
}

func New(port int, q *query.Coordinator, st store.Store, hub *Hub, log *zap.Logger) *Server {
	s := &Server{log: log, query: q, store: st, hub: hub}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/analyze_order_flow", s.handleAnalyze).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws/quotes/{ticker}", s.handleWS).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// analyzeRequest is the POST body form of the analysis arguments.
type analyzeRequest struct {
	Ticker          string `json:"ticker"`
	History         string `json:"history"`
	IncludePatterns *bool  `json:"include_patterns"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var (
		ticker          string
		history         string
		includePatterns = true
	)

	if r.Method == http.MethodPost {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		ticker = req.Ticker
		history = req.History
		if req.IncludePatterns != nil {
			includePatterns = *req.IncludePatterns
		}
	} else {
		q := r.URL.Query()
		ticker = q.Get("ticker")
		history = q.Get("history")
		if v := q.Get("include_patterns"); v == "false" || v == "0" {
			includePatterns = false
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryDeadline)
	defer cancel()

	doc := s.query.AnalyzeOrderFlow(ctx, ticker, history, includePatterns)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	s.hub.serveWS(ticker, w, r)
}
