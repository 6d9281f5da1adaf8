package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"ztuff-backend/config"
	"ztuff-backend/internal/api/order"
	"ztuff-backend/internal/api/payment"
	"ztuff-backend/internal/api/returns"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/job"
	"ztuff-backend/internal/lock"
	"ztuff-backend/internal/messaging"
	"ztuff-backend/internal/middleware"
	"ztuff-backend/internal/notify"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/repository/mysql"
	"ztuff-backend/internal/service"
	"ztuff-backend/internal/storage"
	"ztuff-backend/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			util.Logger.Error("程序发生严重错误", zap.Any("error", r))
		}
	}()

	// 初始化配置
	config.Init()
	cfg := &config.AppConfig

	// 初始化日志
	util.InitLogger(cfg.LogLevel)
	defer util.Logger.Sync()

	util.Logger.Info("应用程序启动")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTELEndpoint, cfg.ServiceName)
	if err != nil {
		util.Logger.Error("初始化链路追踪失败", zap.Error(err))
	}

	// 连接数据库
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		util.Logger.Fatal("连接数据库失败", zap.Error(err))
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		util.Logger.Fatal("数据库连接测试失败", zap.Error(err))
	}
	util.Logger.Info("数据库连接成功")

	store := mysql.NewStore(db, cfg.LockWaitTimeoutSeconds)
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			util.Logger.Fatal("初始化数据库表失败", zap.Error(err))
		}
		util.Logger.Info("数据库表已就绪")
	}

	// 注册自定义验证器
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		util.RegisterValidators(v)
	}

	fileStorage, err := storage.New(ctx, cfg)
	if err != nil {
		util.Logger.Fatal("初始化文件存储失败", zap.Error(err), zap.String("driver", cfg.StorageDriver))
	}

	var locker service.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			util.Logger.Fatal("连接 Redis 失败", zap.Error(err))
		}
		locker = lock.NewRedisLocker(rdb, time.Duration(cfg.SettlementLockTTLSeconds)*time.Second)
		util.Logger.Info("使用 Redis 分布式锁", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = lock.NewLocalLocker()
		util.Logger.Warn("未配置 Redis，退款结算锁仅在本进程内有效")
	}

	paymentGateway := gateway.NewClient(cfg.PaymentGatewayURL, cfg.PaymentServerKey,
		time.Duration(cfg.GatewayTimeoutSeconds)*time.Second)

	var notifier service.Notifier = notify.LogNotifier{}
	if cfg.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			SiteURL:  cfg.FrontendURL,
		}, store.Repositories().Users)
	}

	orderService := service.NewOrderService(store, notifier)
	returnService := service.NewReturnService(store, notifier, paymentGateway, locker, fileStorage)

	orderHandler := order.NewOrderHandler(orderService)
	returnHandler := returns.NewReturnHandler(returnService)
	notificationHandler := payment.NewNotificationHandler(orderService, cfg.PaymentServerKey)

	// 定时清理过期退货窗口
	scheduler := job.NewScheduler()
	if err := scheduler.RegisterReturnWindowSweep(cfg.ReturnWindowSweepSpec, orderService); err != nil {
		util.Logger.Fatal("注册定时任务失败", zap.Error(err), zap.String("spec", cfg.ReturnWindowSweepSpec))
	}
	scheduler.Start()

	// 消费 Kafka 支付通知
	consumerDone := make(chan struct{})
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		consumer := messaging.NewPaymentConsumer(brokers, cfg.KafkaPaymentTopic, cfg.KafkaGroupID, cfg.PaymentServerKey, orderService)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				util.Logger.Error("支付通知消费者退出", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	errorMonitor := middleware.NewErrorMonitor()

	r := gin.New()
	r.Use(gin.Logger())
	// 监控中间件在最外层，panic 也会被统计
	r.Use(middleware.ErrorMonitorMiddleware(errorMonitor))
	r.Use(middleware.RecoveryMiddleware())

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	r.Use(cors.New(corsConfig))

	if cfg.StorageDriver == "local" {
		r.Static("/uploads", cfg.LocalStoragePath)
	}

	r.GET("/healthz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 支付网关回调不走用户认证，依靠签名校验
	r.POST("/webhooks/payment", notificationHandler.HandleNotification)

	api := r.Group("/api/v1")
	authorized := api.Group("")
	authorized.Use(middleware.AuthMiddleware(30 * time.Second))
	staff := authorized.Group("")
	staff.Use(middleware.StaffMiddleware())

	orderHandler.RegisterRoutes(authorized, staff)
	returnHandler.RegisterRoutes(authorized, staff)

	if cfg.Debug {
		for _, route := range r.Routes() {
			util.Logger.Debug("路由",
				zap.String("method", route.Method),
				zap.String("path", route.Path),
				zap.String("handler", route.Handler))
		}
	}

	srv := &http.Server{
		Addr:    ":" + strings.TrimPrefix(cfg.HTTPPort, ":"),
		Handler: r,
	}

	go func() {
		util.Logger.Info("服务器正在启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Logger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	util.Logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.Logger.Error("服务器强制关闭", zap.Error(err))
	}

	stop()
	scheduler.Stop(shutdownCtx)
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		util.Logger.Warn("关闭链路追踪失败", zap.Error(err))
	}

	util.Logger.Info("服务器已优雅关闭")
}
