package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
	"github.com/tubesort/tubesort/services/browser"
	"github.com/tubesort/tubesort/storage"
)

type Handler struct {
	db             *storage.BoltDB
	browserManager *browser.Manager
	sorter         *browser.Sorter
	config         *config.Config
}

func NewHandler(
	db *storage.BoltDB,
	browserMgr *browser.Manager,
	sorter *browser.Sorter,
	cfg *config.Config,
) *Handler {
	return &Handler{
		db:             db,
		browserManager: browserMgr,
		sorter:         sorter,
		config:         cfg,
	}
}

// ============= 浏览器控制相关 API =============

// StartBrowser 启动浏览器
func (h *Handler) StartBrowser(c *gin.Context) {
	if h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserAlreadyRunning"})
		return
	}

	if err := h.browserManager.Start(c.Request.Context()); err != nil {
		logger.Error(c.Request.Context(), "Failed to start browser: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.startBrowserFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.browserStarted",
		"status":  h.browserManager.Status(),
	})
}

// StopBrowser 停止浏览器
func (h *Handler) StopBrowser(c *gin.Context) {
	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	if h.sorter.Store().Get().State.IsActive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.sortInProgress"})
		return
	}

	if err := h.browserManager.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.stopBrowserFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.browserStopped",
	})
}

// BrowserStatus 获取浏览器状态
func (h *Handler) BrowserStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.browserManager.Status())
}

// OpenBrowserPage 在浏览器中打开页面
func (h *Handler) OpenBrowserPage(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	if _, err := h.browserManager.OpenPage(c.Request.Context(), req.URL); err != nil {
		logger.Error(c.Request.Context(), "Failed to open page: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.openPageFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.pageOpened",
		"url":     req.URL,
	})
}

// SaveBrowserCookies 保存浏览器Cookie
func (h *Handler) SaveBrowserCookies(c *gin.Context) {
	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	if err := h.browserManager.SaveCookies(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveCookiesFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.cookiesSaved",
	})
}

// ImportBrowserCookies 导入Cookie
func (h *Handler) ImportBrowserCookies(c *gin.Context) {
	var req struct {
		Cookies []models.Cookie `json:"cookies"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	// 只保留有效的 Cookie（至少有 name 和 value）
	cookies := make([]models.Cookie, 0, len(req.Cookies))
	for _, ck := range req.Cookies {
		if ck.Path == "" {
			ck.Path = "/"
		}
		if ck.Name != "" && ck.Value != "" {
			cookies = append(cookies, ck)
		}
	}

	if len(cookies) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.noValidCookies"})
		return
	}

	if err := h.browserManager.ImportCookies(c.Request.Context(), cookies); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveCookiesFailed"})
		return
	}

	logger.Info(c.Request.Context(), "Imported %d cookies", len(cookies))

	c.JSON(http.StatusOK, gin.H{
		"message": "success.cookiesImported",
		"count":   len(cookies),
	})
}

// ClearBrowserCookies 清除保存的Cookie
func (h *Handler) ClearBrowserCookies(c *gin.Context) {
	if err := h.db.DeleteCookies("browser"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.deleteCookiesFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.cookiesCleared",
	})
}

// ============= 排序任务相关 API =============

// StartSort 启动播放列表排序任务
func (h *Handler) StartSort(c *gin.Context) {
	var req struct {
		URL         string `json:"url" binding:"required"`
		Order       string `json:"order"`
		MaxDuration int    `json:"max_duration"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	opts := models.SortOptions{Order: req.Order, MaxDuration: req.MaxDuration}
	if settings, err := h.db.GetSettings(); err == nil {
		opts = applySettingsDefaults(opts, settings)
	}

	st, err := h.sorter.Start(req.URL, opts)
	if err != nil {
		// 同一时间只允许一个任务
		if st.State.IsActive() {
			c.JSON(http.StatusConflict, gin.H{"error": "error.sortInProgress", "status": st})
			return
		}
		logger.Error(c.Request.Context(), "Failed to start sort: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.startSortFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.sortStarted",
		"status":  st,
	})
}

// applySettingsDefaults 用保存的默认设置补全请求中缺省的排序参数
// 排序方向和时长过滤各自独立回退
func applySettingsDefaults(opts models.SortOptions, settings *models.Settings) models.SortOptions {
	if settings == nil {
		return opts
	}
	if opts.Order == "" {
		opts.Order = settings.Order
	}
	if opts.MaxDuration == 0 {
		opts.MaxDuration = settings.MaxDuration
	}
	return opts
}

// CancelSort 取消进行中的排序任务
func (h *Handler) CancelSort(c *gin.Context) {
	if err := h.sorter.Cancel(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.noActiveSort"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.sortCancelRequested",
	})
}

// SortStatus 获取当前排序任务状态（UI 轮询）
func (h *Handler) SortStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sorter.Store().Get())
}

// ============= 历史任务记录相关 API =============

// ListSortRuns 列出历史排序任务
func (h *Handler) ListSortRuns(c *gin.Context) {
	runs, err := h.db.ListSortRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listRunsFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// GetSortRun 获取单个历史任务
func (h *Handler) GetSortRun(c *gin.Context) {
	run, err := h.db.GetSortRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.runNotFound"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetRunDescription 以 Markdown 返回任务抓取到的播放列表描述
func (h *Handler) GetRunDescription(c *gin.Context) {
	run, err := h.db.GetSortRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.runNotFound"})
		return
	}

	c.Header("Content-Type", "text/markdown; charset=utf-8")
	c.String(http.StatusOK, run.DescriptionMD)
}

// DeleteSortRun 删除历史任务
func (h *Handler) DeleteSortRun(c *gin.Context) {
	current := h.sorter.Store().Get()
	if current.State.IsActive() && current.RunID == c.Param("id") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.sortInProgress"})
		return
	}

	if err := h.db.DeleteSortRun(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.deleteRunFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.runDeleted"})
}

// ============= 设置相关 API =============

// GetSettings 获取默认排序设置
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.db.GetSettings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.getSettingsFailed"})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 更新默认排序设置
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req models.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if req.Order != models.OrderAsc && req.Order != models.OrderDesc {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	req.UpdatedAt = time.Now()
	if err := h.db.SaveSettings(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveSettingsFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.settingsSaved", "settings": req})
}

// ============= 选择器配置相关 API =============

// ListSelectorProfiles 列出所有选择器配置
func (h *Handler) ListSelectorProfiles(c *gin.Context) {
	profiles, err := h.db.ListSelectorProfiles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listProfilesFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "total": len(profiles)})
}

// GetSelectorProfile 获取单个选择器配置
func (h *Handler) GetSelectorProfile(c *gin.Context) {
	profile, err := h.db.GetSelectorProfile(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.profileNotFound"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// CreateSelectorProfile 创建选择器配置
func (h *Handler) CreateSelectorProfile(c *gin.Context) {
	var profile models.SelectorProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if profile.ItemSelector == "" || profile.MenuButtonSelector == "" || profile.MoveToTopText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	profile.ID = uuid.New().String()
	profile.IsDefault = false
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	if err := h.db.SaveSelectorProfile(&profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveProfileFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.profileCreated", "profile": profile})
}

// UpdateSelectorProfile 更新选择器配置
func (h *Handler) UpdateSelectorProfile(c *gin.Context) {
	existing, err := h.db.GetSelectorProfile(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.profileNotFound"})
		return
	}

	var profile models.SelectorProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	profile.ID = existing.ID
	profile.IsDefault = existing.IsDefault
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now()

	if err := h.db.SaveSelectorProfile(&profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveProfileFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.profileUpdated", "profile": profile})
}

// DeleteSelectorProfile 删除选择器配置（默认配置不可删除）
func (h *Handler) DeleteSelectorProfile(c *gin.Context) {
	if err := h.db.DeleteSelectorProfile(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.deleteProfileFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.profileDeleted"})
}

// ============= 认证相关 API =============

// Login 用户登录
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	user, err := h.db.GetUserByUsername(req.Username)
	if err != nil || user.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "error.invalidCredentials"})
		return
	}

	token, err := GenerateJWT(user.ID, user.Username, h.config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.generateTokenFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": user.Username,
	})
}

// CheckAuth 检查是否需要认证
func (h *Handler) CheckAuth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"auth_enabled": h.config.Auth.Enabled})
}

// ============= 用户相关 API =============

// ListUsers 列出所有用户（不返回密码）
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.db.ListUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listUsersFailed"})
		return
	}

	type userInfo struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"created_at"`
	}
	infos := make([]userInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, userInfo{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt})
	}

	c.JSON(http.StatusOK, gin.H{"users": infos, "total": len(infos)})
}

// UpdatePassword 更新密码
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	user, err := h.db.GetUser(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.userNotFound"})
		return
	}

	if user.Password != req.OldPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "error.invalidCredentials"})
		return
	}

	user.Password = req.NewPassword
	user.UpdatedAt = time.Now()
	if err := h.db.CreateUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.updatePasswordFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.passwordUpdated"})
}
