package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/services/browser"
	"github.com/tubesort/tubesort/status"
	"github.com/tubesort/tubesort/storage"
)

func newTestRouter(t *testing.T) (*storage.BoltDB, http.Handler) {
	t.Helper()

	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Server:   &config.ServerConfig{Port: "8080", Host: "127.0.0.1"},
		Database: &config.DatabaseConfig{},
		Browser:  &config.BrowserConfig{},
		Auth:     &config.AuthConfig{Enabled: false},
		Sort:     &config.SortConfig{ScrollPause: 10, MoveDelay: 10, MoveAttempts: 1},
	}

	manager := browser.NewManager(cfg, db)
	sorter := browser.NewSorter(manager, status.NewStore(db), cfg.Sort)
	handler := NewHandler(db, manager, sorter, cfg)
	return db, SetupRouter(handler, nil, false, false)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSortStatusIdle(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/sort/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st models.SortStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, models.StateIdle, st.State)
	assert.Equal(t, -1, st.MismatchIndex)
}

func TestStartSortRequiresRunningBrowser(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sort/start", gin.H{
		"url": "https://youtube.com/playlist?list=PLx",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error.browserNotRunning")
}

func TestStartSortRejectsMissingURL(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sort/start", gin.H{"order": "asc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSortWithoutActiveRun(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sort/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error.noActiveSort")
}

func TestSettingsRoundTrip(t *testing.T) {
	_, router := newTestRouter(t)

	// 默认设置
	w := doJSON(t, router, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, models.OrderAsc, settings.Order)

	// 更新
	w = doJSON(t, router, http.MethodPut, "/api/v1/settings", gin.H{
		"order":        "desc",
		"max_duration": 600,
		"scroll_pause": 500,
		"move_delay":   300,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, models.OrderDesc, settings.Order)
	assert.Equal(t, 600, settings.MaxDuration)
}

func TestUpdateSettingsRejectsInvalidOrder(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/v1/settings", gin.H{"order": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectorProfileCRUD(t *testing.T) {
	_, router := newTestRouter(t)

	// 创建
	w := doJSON(t, router, http.MethodPost, "/api/v1/profiles", gin.H{
		"name":                 "Example video site",
		"url_pattern":          "example.com/list",
		"item_selector":        ".playlist-item",
		"title_selector":       ".title",
		"duration_selector":    ".duration",
		"link_selector":        "a.watch",
		"menu_button_selector": ".menu-btn",
		"menu_item_selector":   ".menu-entry",
		"move_to_top_text":     "Move to top",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Profile models.SelectorProfile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Profile.ID)

	// 获取
	w = doJSON(t, router, http.MethodGet, "/api/v1/profiles/"+created.Profile.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 更新
	w = doJSON(t, router, http.MethodPut, "/api/v1/profiles/"+created.Profile.ID, gin.H{
		"name":                 "Example video site v2",
		"url_pattern":          "example.com/list",
		"item_selector":        ".playlist-item",
		"menu_button_selector": ".menu-btn",
		"menu_item_selector":   ".menu-entry",
		"move_to_top_text":     "Move to top",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/profiles/"+created.Profile.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.SelectorProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "Example video site v2", fetched.Name)

	// 删除
	w = doJSON(t, router, http.MethodDelete, "/api/v1/profiles/"+created.Profile.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/profiles/"+created.Profile.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileCreateRequiresSelectors(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/profiles", gin.H{"name": "incomplete"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunsListAndGet(t *testing.T) {
	db, router := newTestRouter(t)

	run := &models.SortRun{
		SortStatus: models.SortStatus{
			RunID:       "run-1",
			State:       models.StateCompleted,
			PlaylistURL: "https://youtube.com/playlist?list=PLx",
			Total:       3,
			Moved:       3,
		},
		DescriptionMD: "# My playlist\n\nSorted by duration.",
	}
	require.NoError(t, db.SaveSortRun(run))

	w := doJSON(t, router, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")

	w = doJSON(t, router, http.MethodGet, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/runs/run-1/description", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# My playlist")

	w = doJSON(t, router, http.MethodDelete, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/runs/run-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckAuthDisabled(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/auth/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"auth_enabled":false`)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Server:   &config.ServerConfig{Port: "8080", Host: "127.0.0.1"},
		Database: &config.DatabaseConfig{},
		Browser:  &config.BrowserConfig{},
		Auth:     &config.AuthConfig{Enabled: true, AppKey: "test-key"},
		Sort:     &config.SortConfig{},
	}

	user := &models.User{ID: "u1", Username: "admin", Password: "secret"}
	require.NoError(t, db.CreateUser(user))

	manager := browser.NewManager(cfg, db)
	sorter := browser.NewSorter(manager, status.NewStore(db), cfg.Sort)
	router := SetupRouter(NewHandler(db, manager, sorter, cfg), nil, false, false)

	// 未带 Token 访问受保护接口
	w := doJSON(t, router, http.MethodGet, "/api/v1/sort/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 登录换取 Token
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"username": "admin",
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sort/status", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplySettingsDefaults(t *testing.T) {
	settings := &models.Settings{Order: models.OrderDesc, MaxDuration: 600}

	// 两个参数都缺省
	opts := applySettingsDefaults(models.SortOptions{}, settings)
	assert.Equal(t, models.OrderDesc, opts.Order)
	assert.Equal(t, 600, opts.MaxDuration)

	// 指定了排序方向时，时长过滤仍回退到默认设置
	opts = applySettingsDefaults(models.SortOptions{Order: models.OrderAsc}, settings)
	assert.Equal(t, models.OrderAsc, opts.Order)
	assert.Equal(t, 600, opts.MaxDuration)

	// 显式指定的时长过滤不被覆盖
	opts = applySettingsDefaults(models.SortOptions{Order: models.OrderAsc, MaxDuration: 60}, settings)
	assert.Equal(t, 60, opts.MaxDuration)

	// 没有保存的设置时原样返回
	opts = applySettingsDefaults(models.SortOptions{Order: models.OrderAsc}, nil)
	assert.Equal(t, models.OrderAsc, opts.Order)
	assert.Equal(t, 0, opts.MaxDuration)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	db, router := newTestRouter(t)

	require.NoError(t, db.CreateUser(&models.User{ID: "u1", Username: "admin", Password: "secret"}))

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
