package models

import (
	"strconv"
	"strings"
)

// Video 播放列表中的单个视频（从渲染后的 DOM 抓取）
type Video struct {
	ID          string `json:"id"`           // 从 watch URL 解析出的视频 ID，作为唯一标识
	Title       string `json:"title"`        // 视频标题
	Duration    int    `json:"duration"`     // 时长（秒），0 表示未知或直播
	RawDuration string `json:"raw_duration"` // 页面上的时长角标原文，如 "1:02:03"
	Index       int    `json:"index"`        // 抓取时的 DOM 位置（0 起）
	URL         string `json:"url"`          // 视频链接
}

// SortOptions 排序参数
type SortOptions struct {
	Order       string `json:"order"`        // asc 或 desc
	MaxDuration int    `json:"max_duration"` // 最大时长过滤（秒），0 表示不过滤
}

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Normalize 填充默认值
func (o *SortOptions) Normalize() {
	if o.Order != OrderDesc {
		o.Order = OrderAsc
	}
	if o.MaxDuration < 0 {
		o.MaxDuration = 0
	}
}

// ParseDuration 解析时长角标文本为秒数
// 支持 "SS"、"M:SS"、"H:MM:SS"；直播角标或无法解析时返回 0
func ParseDuration(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
