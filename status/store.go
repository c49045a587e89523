// Package status 维护排序任务的共享状态记录
// 单条可变记录由互斥锁保护，每次变更都写穿到持久层，
// 进程崩溃后仍能从持久化记录还原最后一次已知状态
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
)

// Persister 状态记录的持久层
type Persister interface {
	SaveSortRun(run *models.SortRun) error
	ListUnfinishedSortRuns() ([]*models.SortRun, error)
}

// Store 排序状态存储
type Store struct {
	mu      sync.Mutex
	run     models.SortRun
	persist Persister
	cancel  context.CancelFunc
}

// NewStore 创建状态存储，persist 可为 nil（仅内存）
func NewStore(persist Persister) *Store {
	return &Store{
		run: models.SortRun{
			SortStatus: models.SortStatus{
				State:         models.StateIdle,
				MismatchIndex: -1,
			},
		},
		persist: persist,
	}
}

// Begin 开始一次新的排序任务
// 仅允许从 idle 或终止状态开始；活动中的任务会被拒绝
func (s *Store) Begin(url string, opts models.SortOptions) (models.SortStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run.State.IsActive() {
		return s.snapshotLocked(), fmt.Errorf("a sort run is already active (run %s)", s.run.RunID)
	}

	s.run = models.SortRun{
		SortStatus: models.SortStatus{
			RunID:         uuid.New().String(),
			State:         models.StateScanning,
			PlaylistURL:   url,
			Message:       "scanning playlist",
			MismatchIndex: -1,
			StartedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		},
		Options: opts,
	}
	s.persistLocked()
	return s.snapshotLocked(), nil
}

// SetCancel 注册当前任务的取消函数
func (s *Store) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// Cancel 请求取消进行中的任务
func (s *Store) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.run.State.IsActive() {
		return fmt.Errorf("no active sort run to cancel")
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.run.Message = "cancellation requested"
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
	return nil
}

// SetState 切换状态并更新消息
func (s *Store) SetState(state models.SortState, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.State = state
	s.run.Message = message
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// SetPlan 记录目标顺序
func (s *Store) SetPlan(plan []models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.Plan = make([]models.Video, len(plan))
	copy(s.run.Plan, plan)
	s.run.Total = len(plan)
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// RemovePlanVideo 将回放期间从页面上消失的视频从计划中剔除
// 剔除后校验只针对仍然存在的视频
func (s *Store) RemovePlanVideo(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.run.Plan[:0]
	for _, v := range s.run.Plan {
		if v.ID != id {
			kept = append(kept, v)
		}
	}
	s.run.Plan = kept
	s.run.Total = len(kept)
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// Progress 更新已完成的移动数
func (s *Store) Progress(moved int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.Moved = moved
	s.run.Message = message
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// SetDescription 记录播放列表描述（Markdown）
func (s *Store) SetDescription(md string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.DescriptionMD = md
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// SetMismatch 记录校验到的首个不一致位置
func (s *Store) SetMismatch(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.MismatchIndex = index
	s.run.UpdatedAt = time.Now()
	s.persistLocked()
}

// Finish 进入终止状态并落盘
func (s *Store) Finish(state models.SortState, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run.State = state
	s.run.Message = message
	s.run.FinishedAt = time.Now()
	s.run.UpdatedAt = s.run.FinishedAt
	s.cancel = nil
	s.persistLocked()
}

// Get 返回当前状态的副本
func (s *Store) Get() models.SortStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Run 返回当前执行记录的副本
func (s *Store) Run() models.SortRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run
	run.Plan = make([]models.Video, len(s.run.Plan))
	copy(run.Plan, s.run.Plan)
	return run
}

func (s *Store) snapshotLocked() models.SortStatus {
	st := s.run.SortStatus
	st.Plan = make([]models.Video, len(s.run.Plan))
	copy(st.Plan, s.run.Plan)
	return st
}

func (s *Store) persistLocked() {
	if s.persist == nil || s.run.RunID == "" {
		return
	}
	run := s.run
	run.Plan = make([]models.Video, len(s.run.Plan))
	copy(run.Plan, s.run.Plan)
	if err := s.persist.SaveSortRun(&run); err != nil {
		logger.Warn(context.Background(), "Failed to persist sort status: %v", err)
	}
}

// RecoverInterrupted 启动时将上次进程崩溃遗留的未完成记录标记为失败
func RecoverInterrupted(persist Persister) (int, error) {
	runs, err := persist.ListUnfinishedSortRuns()
	if err != nil {
		return 0, err
	}

	for _, run := range runs {
		run.State = models.StateFailed
		run.Message = "interrupted: process exited during run"
		run.FinishedAt = time.Now()
		run.UpdatedAt = run.FinishedAt
		if err := persist.SaveSortRun(run); err != nil {
			return 0, err
		}
	}
	return len(runs), nil
}
