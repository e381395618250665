package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/api"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/config"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/engine"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/ledger"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/outbox"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Cost model ────────────────────────────────────────────────────────────
	baseOverhead, ok := new(big.Int).SetString(cfg.Engine.BaseOverhead, 10)
	if !ok {
		log.Fatal("invalid BASE_OVERHEAD")
	}
	perUnitOverhead, ok := new(big.Int).SetString(cfg.Engine.PerUnitOverhead, 10)
	if !ok {
		log.Fatal("invalid PER_UNIT_OVERHEAD")
	}
	cost := sale.CostModel{Base: baseOverhead, PerUnit: perUnitOverhead}

	shardCode := ledger.DefaultCode
	if cfg.Engine.ShardCode != "" {
		shardCode = common.HexToHash(cfg.Engine.ShardCode)
	}

	// ── Sale engines ──────────────────────────────────────────────────────────
	shards := ledger.NewStore(rdb, shardCode)
	out := outbox.New(rdb)
	reg := engine.NewRegistry(ctx, rdb, shards, out, engine.SystemClock(), log)
	if err := reg.Restore(ctx); err != nil {
		log.Fatal("restore sales failed", zap.Error(err))
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	public := r.Group("/api")
	admin := r.Group("/api", api.AuthMiddleware(rdb))
	api.NewHandler(reg, shards, cost, shardCode, log).Register(public, admin)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
