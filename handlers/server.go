// Package handlers exposes the tools over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bsaid97/go-geoprocessing/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Server runs tools for HTTP clients. Each request gets its own tool and
// in-memory layers.
type Server struct {
	log     logrus.FieldLogger
	workers int
}

func NewServer(log logrus.FieldLogger, workers int) *Server {
	return &Server{log: log, workers: workers}
}

// Routes returns the server's handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tools", s.listTools)
	mux.HandleFunc("POST /v1/tools/{tool}", s.runTool)
	mux.HandleFunc("POST /check-geometry", s.checkGeometry)
	return s.withRequestLog(mux)
}

type ctxKey struct{}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		log := s.log.WithFields(logrus.Fields{"request": id, "method": r.Method, "path": r.URL.Path})
		w.Header().Set("X-Request-Id", id)

		// A panic outside a tool job must not take the server down.
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("stack", string(debug.Stack())).Errorf("panic recovered: %v", rec)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))
		log.WithField("elapsed", time.Since(start)).Info("request handled")
	})
}

func (s *Server) logger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKey{}).(logrus.FieldLogger); ok {
		return log
	}
	return s.log
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string][]string{"tools": config.ToolNames()})
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func sendError(w http.ResponseWriter, status int, err error) {
	sendJSON(w, status, errorResponse{Error: err.Error()})
}

func sendZip(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+".zip\"")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
