package models

import (
	"encoding/json"
	"time"
)

// SortState 排序任务状态机状态
type SortState string

const (
	StateIdle      SortState = "idle"      // 空闲
	StateScanning  SortState = "scanning"  // 抓取页面列表
	StatePlanning  SortState = "planning"  // 计算目标顺序
	StateSorting   SortState = "sorting"   // 逐项回放 move-to-top
	StateVerifying SortState = "verifying" // 重新抓取并校验
	StateCompleted SortState = "completed"
	StateFailed    SortState = "failed"
	StateCancelled SortState = "cancelled"
)

// IsTerminal 是否为终止状态
func (s SortState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsActive 是否为进行中状态
func (s SortState) IsActive() bool {
	return s == StateScanning || s == StatePlanning || s == StateSorting || s == StateVerifying
}

// SortStatus 共享状态记录，UI 轮询该对象获取进度
type SortStatus struct {
	RunID         string    `json:"run_id"`
	State         SortState `json:"state"`
	PlaylistURL   string    `json:"playlist_url"`
	Total         int       `json:"total"`          // 计划内需要移动的视频总数
	Moved         int       `json:"moved"`          // 已完成的移动数
	Message       string    `json:"message"`        // 人类可读的进度或错误信息
	Plan          []Video   `json:"plan,omitempty"` // 目标顺序
	MismatchIndex int       `json:"mismatch_index"` // 校验首个不一致位置，-1 表示一致
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SortRun 一次排序任务的持久化执行记录
type SortRun struct {
	SortStatus

	Options       SortOptions `json:"options"`
	DescriptionMD string      `json:"description_md,omitempty"` // 播放列表描述（Markdown）
	FinishedAt    time.Time   `json:"finished_at,omitempty"`
}

func (r *SortRun) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func (r *SortRun) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
