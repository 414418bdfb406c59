package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quel-relay-server/modules/common/config"
	"quel-relay-server/modules/common/gemini"
	"quel-relay-server/modules/common/logger"
	"quel-relay-server/modules/common/metrics"
	"quel-relay-server/modules/common/redis"
	"quel-relay-server/modules/generate"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 설정 로드 전에는 APP_ENV 만 보고 로거 생성
	boot := logger.New(os.Getenv("APP_ENV"))

	// 환경변수 로드
	cfg, err := config.LoadConfig(config.Options{})
	if err != nil {
		boot.Fatal("❌ Failed to load config", zap.Error(err))
	}
	_ = boot.Sync()

	log := logger.New(cfg.AppEnv)
	os.Exit(serve(context.Background(), cfg, log))
}

// serve - 종료 신호까지 서버를 돌리고 프로세스 종료 코드를 돌려준다
// os.Exit 전에 신호 핸들러 해제와 로그 flush 를 마친다
func serve(parent context.Context, cfg *config.Config, log *zap.Logger) int {
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("❌ Server stopped with error", zap.Error(err))
		return 1
	}
	log.Info("👋 Server stopped")
	return 0
}

// run - 의존성 조립 후 종료 신호까지 서버 실행
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	rotator, rdb, err := newRotator(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	invoker, err := gemini.NewInvoker(rotator, gemini.NewGenaiFactory(), gemini.Options{
		Model:              cfg.GeminiModel,
		Timeout:            cfg.UpstreamTimeout,
		FailoverOnKeyError: cfg.FailoverOnKeyError,
	}, log.Named("gemini"), rec)
	if err != nil {
		return err
	}

	service := generate.NewService(invoker, log.Named("generate"), rec)
	handler := generate.NewHandler(service, cfg.MaxUploadBytes(), cfg.IsDevelopment(), log.Named("generate"))

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           newRouter(handler, rec.Handler(), log),
		ReadHeaderTimeout: 10 * time.Second,
		// 업스트림 타임아웃보다 길어야 504 응답을 보낼 수 있다
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("🚀 Quel Relay Server starting",
		zap.String("addr", srv.Addr),
		zap.String("model", invoker.Model()),
		zap.Int("api_keys", rotator.Size()),
		zap.Bool("failover_on_key_error", cfg.FailoverOnKeyError),
		zap.Bool("dev_mode", cfg.IsDevelopment()))
	log.Info("🎨 Generate endpoint: POST /api/generate")
	log.Info("❤️  Health check: GET /api/health")
	log.Info("📊 Metrics: GET /metrics")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRotator - REDIS_URL 이 있으면 인스턴스 간 공유 커서, 없거나 연결 실패 시 프로세스 내 커서
func newRotator(ctx context.Context, cfg *config.Config, log *zap.Logger) (gemini.Rotator, *goredis.Client, error) {
	if cfg.RedisURL == "" {
		rr, err := gemini.NewRoundRobin(cfg.GeminiAPIKeys)
		return rr, nil, err
	}

	rdb, err := redis.Connect(ctx, cfg.RedisURL, log.Named("redis"))
	if err != nil {
		log.Warn("⚠️  Redis unavailable, using in-process key rotation", zap.Error(err))
		rr, err := gemini.NewRoundRobin(cfg.GeminiAPIKeys)
		return rr, nil, err
	}

	rr, err := gemini.NewRedisRoundRobin(rdb, cfg.RedisCursorKey, cfg.GeminiAPIKeys, log.Named("rotator"))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return rr, rdb, nil
}
