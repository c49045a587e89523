package api

import (
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/storage"
)

func SetupRouter(handler *Handler, frontendFS fs.FS, embedMode, isDebug bool) *gin.Engine {
	var r *gin.Engine
	if isDebug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// TraceID 中间件 - 必须在其他中间件之前
	r.Use(TraceIDMiddleware())

	// CORS配置 - 允许所有来源（本地工具，UI 可能跑在任意端口）
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: false, // AllowAllOrigins 为 true 时必须设置为 false
	}))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 认证相关API（不需要认证）
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", handler.Login)
		auth.GET("/check", handler.CheckAuth) // 检查是否需要认证
	}

	// API路由组（需要JWT认证）
	api := r.Group("/api/v1")
	api.Use(JWTAuthenticationMiddleware(handler.config, handler.db))
	{
		// 浏览器相关
		browserAPI := api.Group("/browser")
		{
			browserAPI.POST("/start", handler.StartBrowser)
			browserAPI.POST("/stop", handler.StopBrowser)
			browserAPI.GET("/status", handler.BrowserStatus)
			browserAPI.POST("/open", handler.OpenBrowserPage)
			browserAPI.POST("/cookies/save", handler.SaveBrowserCookies)
			browserAPI.POST("/cookies/import", handler.ImportBrowserCookies)
			browserAPI.POST("/cookies/clear", handler.ClearBrowserCookies)
		}

		// 排序任务
		sortAPI := api.Group("/sort")
		{
			sortAPI.POST("/start", handler.StartSort)
			sortAPI.POST("/cancel", handler.CancelSort)
			sortAPI.GET("/status", handler.SortStatus) // UI 轮询入口
		}

		// 历史任务记录
		runs := api.Group("/runs")
		{
			runs.GET("", handler.ListSortRuns)
			runs.GET("/:id", handler.GetSortRun)
			runs.GET("/:id/description", handler.GetRunDescription) // Markdown 导出
			runs.DELETE("/:id", handler.DeleteSortRun)
		}

		// 排序默认参数
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.UpdateSettings)

		// 选择器配置管理
		profiles := api.Group("/profiles")
		{
			profiles.GET("", handler.ListSelectorProfiles)
			profiles.GET("/:id", handler.GetSelectorProfile)
			profiles.POST("", handler.CreateSelectorProfile)
			profiles.PUT("/:id", handler.UpdateSelectorProfile)
			profiles.DELETE("/:id", handler.DeleteSelectorProfile)
		}

		// 用户管理
		users := api.Group("/users")
		{
			users.GET("", handler.ListUsers)
			users.PUT("/:id/password", handler.UpdatePassword)
		}
	}

	// 嵌入模式下提供静态文件服务
	if embedMode && frontendFS != nil {
		r.NoRoute(func(c *gin.Context) {
			path := strings.TrimPrefix(c.Request.URL.Path, "/")
			if path == "" {
				path = "index.html"
			}

			// 尝试读取文件
			file, err := frontendFS.Open(path)
			if err != nil {
				// 文件不存在，返回 index.html（用于 SPA 路由）
				file, err = frontendFS.Open("index.html")
				if err != nil {
					c.String(http.StatusNotFound, "404 page not found")
					return
				}
			}
			defer file.Close()

			stat, err := file.Stat()
			if err != nil {
				c.String(http.StatusInternalServerError, "Internal server error")
				return
			}

			// 如果是目录，尝试返回 index.html
			if stat.IsDir() {
				file.Close()
				indexPath := path + "/index.html"
				if path == "" || path == "." {
					indexPath = "index.html"
				}
				file, err = frontendFS.Open(indexPath)
				if err != nil {
					c.String(http.StatusNotFound, "404 page not found")
					return
				}
				defer file.Close()
				stat, _ = file.Stat()
			}

			// 使用 http.ServeContent 自动处理 MIME 类型和缓存
			http.ServeContent(c.Writer, c.Request, stat.Name(), stat.ModTime(), file.(io.ReadSeeker))
		})
	}

	return r
}

// JWTClaims JWT声明
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成JWT Token
func GenerateJWT(userID, username string, config *config.Config) (string, error) {
	claims := JWTClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour * 7)), // 7天过期
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Auth.AppKey))
}

// JWTAuthenticationMiddleware JWT认证中间件
func JWTAuthenticationMiddleware(config *config.Config, db *storage.BoltDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.Auth.Enabled {
			c.Next()
			return
		}

		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "error.unauthorized"})
			c.Abort()
			return
		}

		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "error.unauthorized"})
			c.Abort()
			return
		}

		// 解析JWT Token
		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(config.Auth.AppKey), nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "error.invalidToken"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "error.invalidToken"})
			c.Abort()
			return
		}

		// 验证用户是否存在
		user, err := db.GetUser(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "error.userNotFound"})
			c.Abort()
			return
		}

		// 将用户信息存入上下文
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}
