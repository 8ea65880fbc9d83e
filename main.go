package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tally/config"
	"tally/database"
	"tally/middleware"
	"tally/router"
	"tally/service"

	"github.com/joho/godotenv"
)

// @title Tally API
// @version 1.0
// @description 记账与标签共享 API：标签管理、按邮箱共享与邀请、消费记录及导出
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	configFile  string
	port        string
	testEmail   string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.StringVar(&testEmail, "test-email", "", "向指定地址发送测试邮件后退出")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		log.Println("Tally v1.0.0")
		return
	}

	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 加载配置（内置配置 + 可选的外部配置覆盖 + 环境变量）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 命令行参数覆盖端口配置
	if port != "" {
		// 自动添加冒号前缀
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
		log.Printf("命令行指定端口: %s", port)
	}

	emailService := service.NewEmailService(&cfg.Email, cfg.Server.BaseURL)
	if testEmail != "" {
		if err := emailService.SendTestEmail(testEmail); err != nil {
			log.Fatalf("测试邮件发送失败: %v", err)
		}
		log.Printf("测试邮件已发送至 %s", testEmail)
		return
	}

	// 打印配置信息
	config.PrintConfig()

	// 初始化数据库
	if err := database.Init(cfg); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	// 初始化 JWT
	middleware.InitJWT(cfg)

	storage, err := service.NewStorageService(context.Background(), &cfg.Storage)
	if err != nil {
		log.Fatalf("对象存储初始化失败: %v", err)
	}

	svc := router.NewServices(cfg, database.GetDB(), storage)
	if cfg.Email.Enabled {
		svc.Invitations.SetNotifier(emailService)
	}

	var scheduler *service.Scheduler
	if cfg.Invitation.SweepEnabled {
		scheduler = service.NewScheduler()
		if err := scheduler.AddInvitationSweep(cfg.Invitation.SweepSpec, svc.Invitations); err != nil {
			log.Fatalf("%v", err)
		}
		scheduler.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 设置路由
	r := router.SetupRouter(ctx, cfg, svc)
	srv := &http.Server{Addr: cfg.Server.Port, Handler: r}

	go func() {
		<-ctx.Done()

		log.Println("正在关闭服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("关闭服务失败: %v", err)
		}
	}()

	// 启动服务器
	log.Printf("==========================================")
	log.Printf("  Tally 已启动")
	log.Printf("==========================================")
	log.Printf("  Swagger:  http://localhost%s/swagger/index.html", cfg.Server.Port)
	log.Printf("  API接口:  http://localhost%s/api/v1/", cfg.Server.Port)
	log.Printf("==========================================")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("服务器启动失败: %v", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	log.Println("服务已退出")
}
