package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SelectorProfile 绑定某个站点播放列表页面结构的选择器配置
type SelectorProfile struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	URLPattern          string    `json:"url_pattern"`          // URL 包含匹配，空表示不参与匹配
	ItemSelector        string    `json:"item_selector"`        // 列表项
	TitleSelector       string    `json:"title_selector"`       // 列表项内的标题
	DurationSelector    string    `json:"duration_selector"`    // 列表项内的时长角标
	LinkSelector        string    `json:"link_selector"`        // 列表项内的视频链接
	MenuButtonSelector  string    `json:"menu_button_selector"` // 列表项的操作菜单按钮
	MenuItemSelector    string    `json:"menu_item_selector"`   // 弹出菜单中的菜单项
	MoveToTopText       string    `json:"move_to_top_text"`     // "移到顶部" 菜单项的文本
	DescriptionSelector string    `json:"description_selector"` // 播放列表描述区域
	IsDefault           bool      `json:"is_default"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Matches 判断该配置是否适用于给定 URL
func (p *SelectorProfile) Matches(url string) bool {
	if p.URLPattern == "" {
		return false
	}
	return strings.Contains(url, p.URLPattern)
}

func (p *SelectorProfile) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

func (p *SelectorProfile) FromJSON(data []byte) error {
	return json.Unmarshal(data, p)
}

// DefaultSelectorProfile 默认的 YouTube 播放列表配置
func DefaultSelectorProfile() *SelectorProfile {
	return &SelectorProfile{
		ID:                  "default",
		Name:                "YouTube playlist",
		URLPattern:          "youtube.com/playlist",
		ItemSelector:        "ytd-playlist-video-renderer",
		TitleSelector:       "#video-title",
		DurationSelector:    "ytd-thumbnail-overlay-time-status-renderer span",
		LinkSelector:        "a#thumbnail",
		MenuButtonSelector:  "ytd-menu-renderer yt-icon-button button",
		MenuItemSelector:    "ytd-menu-service-item-renderer",
		MoveToTopText:       "Move to top",
		DescriptionSelector: "yt-formatted-string#description",
		IsDefault:           true,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
}

// Settings 用户默认排序设置
type Settings struct {
	Order       string    `json:"order"`        // 默认排序方向
	MaxDuration int       `json:"max_duration"` // 默认最大时长过滤（秒）
	ScrollPause int       `json:"scroll_pause"` // 增量加载滚动间隔（毫秒）
	MoveDelay   int       `json:"move_delay"`   // 两次移动之间的等待（毫秒）
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultSettings 默认设置
func DefaultSettings() *Settings {
	return &Settings{
		Order:       OrderAsc,
		MaxDuration: 0,
		ScrollPause: 800,
		MoveDelay:   500,
		UpdatedAt:   time.Now(),
	}
}

func (s *Settings) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Settings) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// Cookie 浏览器 Cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
}

// CookieStore 持久化的 Cookie 快照，用于保留目标站点的登录态
type CookieStore struct {
	ID        string    `json:"id"`
	Cookies   []Cookie  `json:"cookies"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *CookieStore) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

func (c *CookieStore) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}
