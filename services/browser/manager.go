package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
	"github.com/tubesort/tubesort/storage"
)

// cookieStoreID 整个浏览器会话共用一份 Cookie 快照
const cookieStoreID = "browser"

// Manager 浏览器管理器
type Manager struct {
	config *config.Config
	db     *storage.BoltDB
	mu     sync.Mutex

	browser    *rod.Browser
	launcher   *launcher.Launcher
	activePage *rod.Page
	isRunning  bool
	startTime  time.Time
}

// NewManager 创建浏览器管理器
func NewManager(cfg *config.Config, db *storage.BoltDB) *Manager {
	return &Manager{
		config: cfg,
		db:     db,
	}
}

// Start 启动本地浏览器或连接远程浏览器
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("browser is already running")
	}

	logger.Info(ctx, "Starting browser...")

	var url string
	var browser *rod.Browser

	// 检查是否配置了远程 Chrome URL
	if m.config.Browser != nil && m.config.Browser.ControlURL != "" {
		url = m.config.Browser.ControlURL
		logger.Info(ctx, "Using remote Chrome browser, control URL: %s", url)
		browser = rod.New().ControlURL(url)
	} else {
		// 启动本地浏览器
		headless := m.config.Browser != nil && m.config.Browser.Headless
		logger.Info(ctx, "Starting local Chrome browser (headless: %v)", headless)

		l := launcher.New().
			Headless(headless).
			Devtools(false).
			Leakless(false)

		// 设置浏览器路径
		if m.config.Browser != nil && m.config.Browser.BinPath != "" {
			l = l.Bin(m.config.Browser.BinPath)
			logger.Info(ctx, "Using browser path: %s", m.config.Browser.BinPath)
		}

		// 设置用户数据目录 - 关键：这会保存登录状态
		if m.config.Browser != nil && m.config.Browser.UserDataDir != "" {
			userDataDir := m.config.Browser.UserDataDir
			if err := os.MkdirAll(userDataDir, 0o755); err != nil {
				logger.Warn(ctx, "Failed to create user data directory: %v", err)
			} else {
				l = l.UserDataDir(userDataDir)
				logger.Info(ctx, "✓ Using user data directory: %s", userDataDir)
			}
		} else {
			logger.Warn(ctx, "User data directory not configured, login state will not be saved")
		}

		var err error
		url, err = l.Launch()
		if err != nil {
			return errors.Wrap(err, "failed to start browser")
		}

		logger.Info(ctx, "Browser control URL: %s", url)
		browser = rod.New().ControlURL(url)
		m.launcher = l
	}

	if err := browser.Connect(); err != nil {
		return errors.Wrap(err, "failed to connect browser")
	}

	// 获取并显示浏览器版本信息
	version, err := browser.Version()
	if err != nil {
		logger.Warn(ctx, "Failed to get browser version: %v", err)
	} else {
		logger.Info(ctx, "Browser version: %s", version.Product)
	}

	// 尝试从数据库加载保存的 Cookie
	m.loadCookies(ctx, browser)

	m.browser = browser
	m.isRunning = true
	m.startTime = time.Now()

	logger.Info(ctx, "Browser started successfully")
	return nil
}

// loadCookies 从数据库恢复 Cookie 快照到浏览器
func (m *Manager) loadCookies(ctx context.Context, browser *rod.Browser) {
	if m.db == nil {
		return
	}

	cookieStore, err := m.db.GetCookies(cookieStoreID)
	if err != nil || cookieStore == nil || len(cookieStore.Cookies) == 0 {
		logger.Info(ctx, "No saved cookies found")
		return
	}

	cookieParams := make([]*proto.NetworkCookieParam, 0, len(cookieStore.Cookies))
	for _, cookie := range cookieStore.Cookies {
		cookieParams = append(cookieParams, &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(cookie.SameSite),
			Expires:  proto.TimeSinceEpoch(cookie.Expires),
		})
	}

	if err := browser.SetCookies(cookieParams); err != nil {
		logger.Warn(ctx, "Failed to set cookies: %v", err)
	} else {
		logger.Info(ctx, "Loaded %d saved cookies", len(cookieParams))
	}
}

// SaveCookies 将当前浏览器的 Cookie 保存到数据库
func (m *Manager) SaveCookies(ctx context.Context) error {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return fmt.Errorf("browser is not running")
	}

	cookies, err := browser.GetCookies()
	if err != nil {
		return errors.Wrap(err, "failed to get cookies from browser")
	}

	store := &models.CookieStore{ID: cookieStoreID}
	for _, c := range cookies {
		store.Cookies = append(store.Cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
			Expires:  float64(c.Expires),
		})
	}

	if err := m.db.SaveCookies(store); err != nil {
		return errors.Wrap(err, "failed to persist cookies")
	}

	logger.Info(ctx, "Saved %d cookies", len(store.Cookies))
	return nil
}

// ImportCookies 导入外部提供的 Cookie 并应用到浏览器
func (m *Manager) ImportCookies(ctx context.Context, cookies []models.Cookie) error {
	store := &models.CookieStore{ID: cookieStoreID, Cookies: cookies}
	if err := m.db.SaveCookies(store); err != nil {
		return errors.Wrap(err, "failed to persist cookies")
	}

	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser != nil {
		m.loadCookies(ctx, browser)
	}
	return nil
}

// OpenPage 打开新页面并导航到目标 URL
func (m *Manager) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	m.mu.Lock()
	browser := m.browser
	running := m.isRunning
	m.mu.Unlock()

	if !running || browser == nil {
		return nil, fmt.Errorf("browser is not running")
	}

	// 使用 stealth 模式创建页面，降低被目标站点识别为自动化的概率
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create page")
	}

	timeout := 60 * time.Second
	if m.config.Sort != nil && m.config.Sort.NavTimeoutMs > 0 {
		timeout = time.Duration(m.config.Sort.NavTimeoutMs) * time.Millisecond
	}

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		return nil, errors.Wrapf(err, "failed to navigate to %s", url)
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		logger.Warn(ctx, "Failed to wait for page load: %v", err)
	}

	m.mu.Lock()
	m.activePage = page
	m.mu.Unlock()

	logger.Info(ctx, "Page opened: %s", url)
	return page, nil
}

// Stop 停止浏览器
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return fmt.Errorf("browser is not running")
	}

	ctx := context.Background()
	isRemoteMode := m.config.Browser != nil && m.config.Browser.ControlURL != ""

	// 先关闭所有页面，让浏览器有机会保存数据
	if m.browser != nil {
		if !isRemoteMode {
			pages, err := m.browser.Pages()
			if err == nil {
				for _, page := range pages {
					_ = page.Close()
				}
				logger.Info(ctx, "Closed %d pages", len(pages))
			}
			time.Sleep(1 * time.Second)
		}

		if err := m.browser.Close(); err != nil {
			logger.Warn(ctx, "Error when closing browser connection: %v", err)
		}
	}

	if !isRemoteMode && m.launcher != nil {
		// 只杀死进程，不调用 Cleanup()，Cleanup 会删除用户数据目录
		m.launcher.Kill()
		logger.Info(ctx, "Browser process terminated")
	}

	m.browser = nil
	m.launcher = nil
	m.activePage = nil
	m.isRunning = false

	logger.Info(ctx, "Browser fully closed")
	return nil
}

// IsRunning 检查浏览器是否运行
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// GetActivePage 获取当前活动页面
func (m *Manager) GetActivePage() *rod.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activePage
}

// Status 获取浏览器状态
func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := map[string]interface{}{
		"running": m.isRunning,
	}
	if m.isRunning {
		status["start_time"] = m.startTime
		status["uptime_seconds"] = int(time.Since(m.startTime).Seconds())
	}
	return status
}

// ProfileForURL 根据 URL 匹配选择器配置，无匹配时使用默认配置
func (m *Manager) ProfileForURL(url string) *models.SelectorProfile {
	if m.db != nil {
		profiles, err := m.db.ListSelectorProfiles()
		if err == nil {
			for _, p := range profiles {
				if !p.IsDefault && p.Matches(url) {
					return p
				}
			}
			for _, p := range profiles {
				if p.IsDefault {
					return p
				}
			}
		}
	}
	return models.DefaultSelectorProfile()
}
