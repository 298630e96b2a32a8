package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/NeoDrive/NeoDrive/internal/booking"
	"github.com/NeoDrive/NeoDrive/internal/common/config"
	"github.com/NeoDrive/NeoDrive/internal/common/db"
	"github.com/NeoDrive/NeoDrive/internal/common/logger"
	"github.com/NeoDrive/NeoDrive/internal/common/server"
	"github.com/NeoDrive/NeoDrive/internal/common/tracing"
	"github.com/NeoDrive/NeoDrive/internal/user"
	"github.com/NeoDrive/NeoDrive/internal/vehicle"
	"github.com/gin-gonic/gin"
)

var (
	configPath = flag.String("config", "configs/rental-service.json", "配置文件路径")
)

func main() {
	flag.Parse()

	// 加载配置：文件/默认值，再用 Consul KV 片段覆盖（如启用）
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg, err = config.OverrideFromConsulKV(cfg); err != nil {
		panic(fmt.Sprintf("failed to load config from consul kv: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(&user.User{}, &vehicle.Vehicle{}, &booking.Reservation{}); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 组装领域服务
	vehicleRepo := vehicle.NewRepo(gormDB)
	catalog := vehicle.NewCatalog(vehicleRepo)
	bookingRepo := booking.NewRepo(gormDB)
	bookingSvc := booking.NewService(bookingRepo, catalog, log, cfg.Booking)

	userHandler := user.NewHandler(user.NewRepo(gormDB), cfg.Auth)
	vehicleHandler := vehicle.NewHandler(vehicleRepo)
	bookingHandler := booking.NewHandler(bookingSvc, catalog)

	// 后台巡检：到期预订自动流转为 completed
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := booking.NewSweeper(bookingSvc, cfg.Booking.SweepInterval(), log)
	go sweeper.Run(sweepCtx)

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, func(r *gin.Engine) error {
		api := r.Group("/api/v1")
		api.Use(server.JWTAuth(cfg.Auth, log))

		userHandler.RegisterRoutes(api)
		vehicleHandler.RegisterRoutes(api)
		bookingHandler.RegisterRoutes(api)
		return nil
	}); err != nil {
		log.Fatalf("rental-service exited with error: %v", err)
	}
}
