package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cfa-planning/config"
	"cfa-planning/internal/api/handler"
	"cfa-planning/internal/api/router"
	"cfa-planning/internal/api/validation"
	"cfa-planning/internal/repository"
	"cfa-planning/internal/service"
	"cfa-planning/pkg/broker"
	"cfa-planning/pkg/database"
	"cfa-planning/pkg/jwt"
	applogger "cfa-planning/pkg/logger"
	"cfa-planning/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，缺省时查找 ./config/config.yaml")
	rollback := flag.Int("rollback", 0, "回滚指定步数的数据库迁移后退出")
	issueToken := flag.String("issue-token", "", "为指定用户签发 access token 后退出，格式 user_id:role")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	jwtMgr := jwt.NewManager(&cfg.Auth)
	if *issueToken != "" {
		if err := printToken(jwtMgr, *issueToken); err != nil {
			logger.Fatal("签发 Token 失败", zap.Error(err))
		}
		return
	}

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Planning.Timezone),
	)

	if err := validation.Register(); err != nil {
		logger.Fatal("注册校验规则失败", zap.Error(err))
	}

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	if *rollback > 0 {
		if err := database.RollbackMigrations(sqlDB, *rollback, logger); err != nil {
			logger.Fatal("数据库迁移回滚失败", zap.Error(err))
		}
		return
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	checks := map[string]handler.HealthCheck{"database": sqlDB.PingContext}

	// 4. 连接 Redis（可选：未配置或连接失败时排课锁退化为进程内锁）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，限流与 Token 吊销检查不可用", zap.Error(err))
			rdb = nil
		}
	}

	var locker service.SlotLocker
	if rdb != nil {
		locker = service.NewRedisSlotLocker(rdb, cfg.Planning.LockTTL, cfg.Planning.LockWait, logger)
		checks["redis"] = rdb.Ping
	} else {
		locker = service.NewLocalSlotLocker(cfg.Planning.LockWait)
		logger.Warn("排课锁使用进程内锁，多实例部署时不能互斥")
	}

	// 5. 事件发布（可选）
	var publisher broker.Publisher = broker.NopPublisher{}
	if cfg.Broker.URL != "" {
		p, err := broker.NewAMQPPublisher(&cfg.Broker, logger)
		if err != nil {
			logger.Warn("RabbitMQ 连接失败，领域事件不发布", zap.Error(err))
		} else {
			publisher = p
		}
	}

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, locker, publisher, logger)
	h := handler.NewHandler(svc, checks)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // 整学年生成与导出可能较慢
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if err := publisher.Close(); err != nil {
		logger.Warn("关闭事件发布连接失败", zap.Error(err))
	}
	sqlDB.Close()
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// printToken 签发开发用 access token，生产环境由统一身份服务签发
func printToken(jwtMgr *jwt.Manager, spec string) error {
	userID, role, _ := strings.Cut(spec, ":")
	switch role {
	case jwt.RoleAdmin, jwt.RolePlanner, jwt.RoleViewer:
	default:
		return fmt.Errorf("角色必须为 %s、%s 或 %s", jwt.RoleAdmin, jwt.RolePlanner, jwt.RoleViewer)
	}
	if userID == "" {
		return errors.New("user_id 不能为空")
	}

	token, err := jwtMgr.GenerateAccessToken(userID, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
