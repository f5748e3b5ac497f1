package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.musicroom/internal/bridge"
	"sudooom.musicroom/internal/config"
	"sudooom.musicroom/internal/room"
	"sudooom.musicroom/internal/server"
	"sudooom.musicroom/internal/session"
	"sudooom.musicroom/internal/store"
	"sudooom.musicroom/internal/token"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 快照存储：默认内存，配置启用时走 Redis
	var snapStore room.SnapshotStore = store.NewMemoryStore()
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		// TTL 放宽到驱逐时限的两倍，让驱逐先于过期发生
		snapStore = store.NewRedisStore(redisClient, 2*cfg.Room.EvictTimeout)
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	}

	// 事件桥：配置启用时把房间事件镜像到 NATS
	var mirror server.EventMirror
	if cfg.NATS.Enabled {
		b, err := bridge.Connect(cfg.NATS.URL, cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
			os.Exit(1)
		}
		defer b.Close()
		mirror = b
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// 房间核心
	roomMgr := room.NewManager(room.Options{
		QueueCap:       cfg.Room.QueueCap,
		DebounceWindow: cfg.Room.DebounceWindow,
	}, cfg.Room.EvictTimeout, cfg.Room.EvictInterval, logger)

	svc := room.NewService(roomMgr, session.NewTracker(logger), snapStore)
	roomMgr.SetOnEvict(svc.NotifyEvicted)

	liveness := room.NewLivenessChecker(
		roomMgr,
		cfg.Room.HeartbeatTimeout,
		cfg.Room.HeartbeatCheckInterval,
		logger,
		svc.NotifyMemberTimeout,
	)

	tokens := token.NewService(cfg.Auth.TokenSecret, cfg.Auth.TokenExpire)

	// 接入层
	srv := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		BroadcastWorker: cfg.Server.BroadcastWorkers,
		BroadcastQueue:  cfg.Server.BroadcastQueue,
	}, svc, roomMgr, tokens, mirror, logger)

	go roomMgr.RunEvictLoop(ctx)
	go liveness.Start(ctx)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	logger.Info("Music room service started", "name", cfg.App.Name, "addr", cfg.Server.Addr)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("Music room service stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
