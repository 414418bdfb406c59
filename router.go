package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"quel-relay-server/modules/common/requestid"
	"quel-relay-server/modules/common/response"
	"quel-relay-server/modules/generate"
)

// HealthResponse - /api/health 응답
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// newRouter - 라우트 + 미들웨어 조립
// 미들웨어는 라우터 바깥을 감싸서 404/405 와 CORS preflight 에도 적용된다
func newRouter(gen *generate.Handler, metricsHandler http.Handler, log *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/generate", gen.HandleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/api/health", healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	var h http.Handler = r
	h = enableCORS(h)
	h = recovery(log)(h)
	h = accessLog(log)(h)
	h = requestid.Middleware(h)
	return h
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	response.WriteError(w, http.StatusNotFound, fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path))
}
