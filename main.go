package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tubesort/tubesort/api"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
	"github.com/tubesort/tubesort/services/browser"
	"github.com/tubesort/tubesort/status"
	"github.com/tubesort/tubesort/storage"
)

// 构建信息变量，通过Makefile的LDFLAGS注入
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GoVersion = ""
)

func main() {
	// 命令行参数
	port := flag.String("port", "", "Server port (default: 8080)")
	host := flag.String("host", "", "Server host (default: 0.0.0.0)")
	configPath := flag.String("config", "config.toml", "Path to config file (default: config.toml)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Go Version: %s\n", GoVersion)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config file, using default config: %v", err)
	}

	logger.InitLogger(cfg.Log)

	// 优先级: 命令行参数 > 环境变量 > 配置文件
	if *port != "" {
		cfg.Server.Port = *port
	} else if envPort := os.Getenv("PORT"); envPort != "" {
		cfg.Server.Port = envPort
	}

	if *host != "" {
		cfg.Server.Host = *host
	} else if envHost := os.Getenv("HOST"); envHost != "" {
		cfg.Server.Host = envHost
	}

	// 确保数据库目录存在
	dbDir := filepath.Dir(cfg.Database.Path)
	err = os.MkdirAll(dbDir, 0o755)
	if err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// 初始化数据库
	db, err := storage.NewBoltDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Println("✓ Database initialization successful")

	// 初始化默认选择器配置
	err = initDefaultSelectorProfile(db)
	if err != nil {
		log.Printf("Warning: Failed to initialize default selector profile: %v", err)
	} else {
		log.Println("✓ Default selector profile initialized successfully")
	}

	// 初始化默认用户（如果启用了认证）
	if cfg.Auth.Enabled {
		err = initDefaultUser(db, cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize default user: %v", err)
		} else {
			log.Println("✓ Default user initialized successfully")
		}
	}

	// 将上次进程退出时遗留的未完成任务标记为失败
	recovered, err := status.RecoverInterrupted(db)
	if err != nil {
		log.Printf("Warning: Failed to recover interrupted runs: %v", err)
	} else if recovered > 0 {
		log.Printf("✓ Marked %d interrupted run(s) as failed", recovered)
	}

	// 初始化浏览器管理器
	browserManager := browser.NewManager(cfg, db)
	log.Println("✓ Browser manager initialized successfully")

	// 初始化排序状态存储和执行器
	store := status.NewStore(db)
	sorter := browser.NewSorter(browserManager, store, cfg.Sort)
	log.Println("✓ Sorter initialized successfully")

	// 创建HTTP处理器
	handler := api.NewHandler(db, browserManager, sorter, cfg)

	// 获取前端文件系统
	frontendFS, err := GetFrontendFS()
	embedMode := IsEmbedMode()
	if err != nil && embedMode {
		log.Printf("Warning: Failed to load frontend filesystem: %v", err)
	}

	router := api.SetupRouter(handler, frontendFS, embedMode, cfg.Debug)

	// 设置优雅退出
	setupGracefulShutdown(browserManager, sorter, db)

	// 启动服务器
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 TubeSort server started at http://%s", addr)

	go openBrowser("http://127.0.0.1:" + cfg.Server.Port)

	if embedMode {
		log.Printf("📦 Running mode: Embedded (Frontend packed)")
		log.Printf("🌐 Access: http://%s", addr)
	} else {
		log.Printf("📦 Running mode: Development (Frontend needs to be started separately)")
		log.Printf("📝 API Documentation: http://%s/health", addr)
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupGracefulShutdown 设置优雅退出，自动取消任务并关闭浏览器
func setupGracefulShutdown(browserManager *browser.Manager, sorter *browser.Sorter, db *storage.BoltDB) {
	sigChan := make(chan os.Signal, 1)
	// 监听 SIGINT (Ctrl+C) 和 SIGTERM
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("\nReceived exit signal: %v", sig)
		log.Println("Exiting gracefully...")

		// 创建超时上下文，最多等待 10 秒
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 取消进行中的排序任务
		if err := sorter.Cancel(); err == nil {
			log.Println("Cancelling active sort run...")
			// 给任务一点时间把取消状态写入数据库
			time.Sleep(time.Second)
			log.Println("✓ Sort run cancelled")
		}

		// 检查并关闭浏览器
		if browserManager.IsRunning() {
			log.Println("Browser is running, closing...")
			if err := browserManager.Stop(); err != nil {
				log.Printf("Failed to close browser: %v", err)
			} else {
				log.Println("✓ Browser closed")
			}
		} else {
			log.Println("Browser is not running, no need to close")
		}

		// 关闭数据库
		if db != nil {
			log.Println("Closing database...")
			if err := db.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			} else {
				log.Println("✓ Database closed")
			}
		}

		// 等待或超时
		select {
		case <-ctx.Done():
			log.Println("Cleanup timeout, force exit")
		case <-time.After(500 * time.Millisecond):
			log.Println("Cleanup completed")
		}

		log.Println("Program exited")
		os.Exit(0)
	}()

	log.Println("✓ Graceful shutdown mechanism started (Ctrl+C will automatically close the browser)")
}

func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default: // linux / freebsd...
		cmd = exec.Command("xdg-open", url)
	}

	_ = cmd.Start() // 不阻塞，忽略错误（有些环境可能没有 GUI）
}

// initDefaultSelectorProfile 初始化默认选择器配置
func initDefaultSelectorProfile(db *storage.BoltDB) error {
	// 已存在则跳过
	if existing, err := db.GetSelectorProfile("default"); err == nil && existing != nil {
		return nil
	}

	profile := models.DefaultSelectorProfile()
	if err := db.SaveSelectorProfile(profile); err != nil {
		return fmt.Errorf("failed to save default selector profile: %w", err)
	}

	log.Printf("Created default selector profile: %s (pattern: %s)", profile.Name, profile.URLPattern)
	return nil
}

// initDefaultUser 初始化默认用户
func initDefaultUser(db *storage.BoltDB, cfg *config.Config) error {
	// 检查是否已存在用户
	users, err := db.ListUsers()
	if err != nil {
		log.Printf("Warning: Failed to list users: %v", err)
		return err
	}

	// 如果已有用户，跳过创建
	if len(users) > 0 {
		log.Printf("Default user already exists, skipping creation")
		return nil
	}

	// 创建默认用户
	log.Printf("Creating default user: username=%s, password=%s", cfg.Auth.DefaultUsername, cfg.Auth.DefaultPassword)
	defaultUser := &models.User{
		ID:        uuid.New().String(),
		Username:  cfg.Auth.DefaultUsername,
		Password:  cfg.Auth.DefaultPassword,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err = db.CreateUser(defaultUser)
	if err != nil {
		log.Printf("Error: Failed to create default user: %v", err)
		return err
	}

	log.Printf("✓ Created default user: username=%s, id=%s", defaultUser.Username, defaultUser.ID)
	return nil
}
