package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storefront-gateway/logging"
)

// Upstream de exemplo: atrás do gateway, lê a loja dos headers repassados.
func main() {
	logger, err := logging.New(getenvDefault("LOG_LEVEL", "info"), getenvDefault("LOG_FORMAT", "console"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := getenvDefault("LISTEN_ADDR", ":3000")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

type storeInfo struct {
	StoreID   string `json:"storeId"`
	Slug      string `json:"slug"`
	Plan      string `json:"plan"`
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
}

func newRouter(logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/store", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, infoFrom(req))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/products/{id}", func(w http.ResponseWriter, req *http.Request) {
		info := infoFrom(req)
		writeJSON(w, http.StatusOK, map[string]any{
			"product": mux.Vars(req)["id"],
			"store":   info.StoreID,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/cart", func(w http.ResponseWriter, req *http.Request) {
		info := infoFrom(req)
		logger.Info("cart updated", zap.String("store_id", info.StoreID), zap.String("request_id", info.RequestID))
		writeJSON(w, http.StatusCreated, info)
	}).Methods(http.MethodPost)

	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, infoFrom(req))
	})

	return r
}

func infoFrom(r *http.Request) storeInfo {
	return storeInfo{
		StoreID:   r.Header.Get("X-Store-Id"),
		Slug:      r.Header.Get("X-Store-Slug"),
		Plan:      r.Header.Get("X-Store-Plan"),
		RequestID: r.Header.Get("X-Request-Id"),
		Path:      r.URL.Path,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
