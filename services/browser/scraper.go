package browser

import (
	"context"
	_ "embed"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-rod/rod"
	"github.com/pkg/errors"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
)

//go:embed scripts/collect_items.js
var collectItemsScript string

const (
	// 连续多少轮列表项数量不变视为加载完成
	stableRounds = 3
	// 增量加载的滚动轮数上限，避免在无限更新的页面上卡死
	maxScrollRounds = 120
)

// Scraper 将渲染后的 DOM 列表抓取为视频列表
type Scraper struct {
	profile *models.SelectorProfile
	pause   time.Duration
}

// NewScraper 创建抓取器
func NewScraper(profile *models.SelectorProfile, pause time.Duration) *Scraper {
	if pause <= 0 {
		pause = 800 * time.Millisecond
	}
	return &Scraper{profile: profile, pause: pause}
}

// scrapedItem 页面端采集脚本的原始返回结构
type scrapedItem struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	URL      string `json:"url"`
}

// LoadAll 触发页面的增量加载（无限滚动），直到列表项数量稳定
// 返回最终的列表项数量
func (s *Scraper) LoadAll(ctx context.Context, page *rod.Page) (int, error) {
	lastCount := -1
	stable := 0

	for round := 0; round < maxScrollRounds; round++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		count, err := s.countItems(page)
		if err != nil {
			return 0, errors.Wrap(err, "failed to count playlist items")
		}

		if count == lastCount {
			stable++
			if stable >= stableRounds {
				logger.Info(ctx, "Playlist fully loaded: %d items", count)
				return count, nil
			}
		} else {
			stable = 0
			lastCount = count
		}

		// 滚动到底部触发下一批加载
		_, err = page.Eval(`() => window.scrollTo(0, document.documentElement.scrollHeight)`)
		if err != nil {
			return 0, errors.Wrap(err, "failed to scroll page")
		}

		time.Sleep(s.pause)
	}

	logger.Warn(ctx, "Scroll round limit reached, continuing with %d items", lastCount)
	return lastCount, nil
}

// countItems 统计当前已渲染的列表项数量
func (s *Scraper) countItems(page *rod.Page) (int, error) {
	res, err := page.Eval(`(sel) => document.querySelectorAll(sel).length`, s.profile.ItemSelector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// Scrape 抓取当前渲染的列表项，解析为视频列表
func (s *Scraper) Scrape(ctx context.Context, page *rod.Page) ([]models.Video, error) {
	res, err := page.Eval(collectItemsScript,
		s.profile.ItemSelector,
		s.profile.TitleSelector,
		s.profile.DurationSelector,
		s.profile.LinkSelector,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect playlist items")
	}

	var items []scrapedItem
	if err := res.Value.Unmarshal(&items); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal playlist items")
	}

	videos := make([]models.Video, 0, len(items))
	for i, item := range items {
		videos = append(videos, models.Video{
			ID:          VideoIDFromURL(item.URL),
			Title:       item.Title,
			Duration:    models.ParseDuration(item.Duration),
			RawDuration: item.Duration,
			Index:       i,
			URL:         item.URL,
		})
	}

	logger.Info(ctx, "Scraped %d playlist items", len(videos))
	return videos, nil
}

// Description 抓取播放列表描述并转换为 Markdown
func (s *Scraper) Description(ctx context.Context, page *rod.Page) (string, error) {
	if s.profile.DescriptionSelector == "" {
		return "", nil
	}

	res, err := page.Eval(`(sel) => {
		const el = document.querySelector(sel);
		return el ? el.outerHTML : '';
	}`, s.profile.DescriptionSelector)
	if err != nil {
		return "", errors.Wrap(err, "failed to read playlist description")
	}

	html := res.Value.Str()
	if html == "" {
		return "", nil
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		logger.Warn(ctx, "Failed to convert description to markdown: %v", err)
		return "", nil
	}
	return markdown, nil
}

// VideoIDFromURL 从视频链接中提取稳定的视频 ID
// 优先取 v 查询参数（watch 页面），否则取路径最后一段，最后退回完整 URL
func VideoIDFromURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if v := u.Query().Get("v"); v != "" {
		return v
	}

	path := strings.Trim(u.Path, "/")
	if path != "" {
		parts := strings.Split(path, "/")
		return parts[len(parts)-1]
	}
	return raw
}
