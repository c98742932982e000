package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiVariantStock/internal/config"
	applog "github.com/nemonet1337/zaiVariantStock/internal/logger"
	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
	"github.com/nemonet1337/zaiVariantStock/pkg/variant/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := applog.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	store, err := storage.NewPostgreSQLStorage(cfg.DSN(), cfg.Pool(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := variant.NewMetrics(registry)

	// 在庫マネージャー初期化
	manager := variant.NewManager(store, metrics, logger, cfg.Engine())

	// HTTPハンドラー設定
	handlers := NewHandlers(manager, store, logger, cfg.API.MaxUploadSize, cfg.Stock.MaxTrackedQuantity)
	router := setupRouter(handlers, registry, cfg.API)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("バリアント在庫APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, gatherer prometheus.Gatherer, apiCfg config.APIConfig) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if apiCfg.EnableMetrics && gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/reasons", handlers.ListReasons).Methods("GET")
	api.HandleFunc("/reconcile", handlers.Reconcile).Methods("POST")

	// バリアント管理
	api.HandleFunc("/variants", handlers.CreateVariant).Methods("POST")
	api.HandleFunc("/variants/{variantId}", handlers.GetVariant).Methods("GET")
	api.HandleFunc("/products/{productId}/variants", handlers.ListVariants).Methods("GET")
	api.HandleFunc("/products/{productId}/summary", handlers.GetProductSummary).Methods("GET")

	// 在庫調整
	api.HandleFunc("/variants/{variantId}/adjust", handlers.AdjustStock).Methods("POST")
	api.HandleFunc("/adjustments/batch", handlers.BatchAdjust).Methods("POST")
	api.HandleFunc("/variants/{variantId}/history", handlers.GetHistory).Methods("GET")

	// 個体識別子
	api.HandleFunc("/variants/{variantId}/identifiers", handlers.UpdateIdentifiers).Methods("PUT")
	api.HandleFunc("/variants/{variantId}/identifiers/validate", handlers.ValidateIdentifier).Methods("POST")
	api.HandleFunc("/variants/{variantId}/identifiers/import", handlers.ImportIdentifiers).Methods("POST")
	api.HandleFunc("/variants/{variantId}/tracking", handlers.SetTracking).Methods("PUT")

	// CORS設定
	if apiCfg.EnableCORS {
		router.Use(corsMiddleware)
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

// corsMiddleware allows browser clients on other origins
// CORSヘッダーを付与するミドルウェア
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
