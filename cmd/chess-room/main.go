package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    appcfg "github.com/park285/chessroom/internal/config"
    "github.com/park285/chessroom/internal/obslog"
    "github.com/park285/chessroom/internal/roombuilder"
    "go.uber.org/zap"
)

func main() {
    // .env is optional
    _ = godotenv.Load()

    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    logger := obslog.L()
    defer func() { _ = logger.Sync() }()

    cfg, err := appcfg.Load()
    if err != nil {
        logger.Fatal("config_error", zap.Error(err))
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    deps, err := roombuilder.New(ctx, cfg)
    if err != nil {
        logger.Fatal("room_init_error", zap.Error(err))
    }

    srv := &http.Server{
        Addr:              cfg.ListenAddr,
        Handler:           deps.Handler,
        ReadHeaderTimeout: 10 * time.Second,
    }
    go func() {
        logger.Info("room_listen", zap.String("addr", cfg.ListenAddr))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("room_listen_error", zap.Error(err))
            stop()
        }
    }()

    <-ctx.Done()
    logger.Info("room_shutdown")

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    // http.Server.Shutdown은 하이재킹된 웹소켓을 기다리지 않는다
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("room_http_shutdown_error", zap.Error(err))
    }
    if err := deps.WS.Shutdown(shutdownCtx); err != nil {
        logger.Warn("room_ws_drain_error", zap.Error(err))
    }
    if err := deps.Close(shutdownCtx); err != nil {
        logger.Warn("room_close_error", zap.Error(err))
    }
}
