// Package planner 根据抓取到的视频列表计算目标顺序，并提供计划与实际顺序的比对
package planner

import (
	"sort"

	"github.com/tubesort/tubesort/models"
)

// Plan 排序计划
type Plan struct {
	Videos  []models.Video `json:"videos"`  // 目标顺序
	Skipped int            `json:"skipped"` // 因时长未知或超过过滤上限而被排除的数量
}

// Build 过滤并排序，生成目标顺序
// 时长未知（0）的视频一律排除；MaxDuration > 0 时排除超过上限的视频
// 排序稳定：时长相同的视频保持抓取时的相对顺序
func Build(videos []models.Video, opts models.SortOptions) *Plan {
	opts.Normalize()

	kept := make([]models.Video, 0, len(videos))
	for _, v := range videos {
		if v.Duration <= 0 {
			continue
		}
		if opts.MaxDuration > 0 && v.Duration > opts.MaxDuration {
			continue
		}
		kept = append(kept, v)
	}

	if opts.Order == models.OrderDesc {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Duration > kept[j].Duration
		})
	} else {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Duration < kept[j].Duration
		})
	}

	return &Plan{
		Videos:  kept,
		Skipped: len(videos) - len(kept),
	}
}

// FirstMismatch 比较计划与实际顺序，返回首个不一致的位置
// 实际列表允许比计划长（被过滤的视频会排在计划前缀之后）；完全一致返回 -1
func FirstMismatch(plan []models.Video, live []models.Video) int {
	for i, want := range plan {
		if i >= len(live) {
			return i
		}
		if live[i].ID != want.ID {
			return i
		}
	}
	return -1
}
