package browser

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/tubesort/tubesort/config"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/pkg/logger"
	"github.com/tubesort/tubesort/planner"
	"github.com/tubesort/tubesort/status"
)

//go:embed scripts/find_item.js
var findItemScript string

// errItemGone 目标视频在回放期间从列表中消失（例如被他人删除）
var errItemGone = errors.New("playlist item no longer present")

// Sorter 排序执行器：抓取 → 计划 → 回放 → 校验 的状态机
type Sorter struct {
	manager *Manager
	store   *status.Store
	cfg     *config.SortConfig
}

// NewSorter 创建排序执行器
func NewSorter(manager *Manager, store *status.Store, cfg *config.SortConfig) *Sorter {
	if cfg == nil {
		cfg = &config.SortConfig{ScrollPause: 800, MoveDelay: 500, MoveAttempts: 3}
	}
	return &Sorter{manager: manager, store: store, cfg: cfg}
}

// Store 返回排序状态存储
func (s *Sorter) Store() *status.Store {
	return s.store
}

// Start 开始一次异步排序任务
// 返回任务的初始状态；同一时间只允许一个任务
func (s *Sorter) Start(url string, opts models.SortOptions) (models.SortStatus, error) {
	if !s.manager.IsRunning() {
		return s.store.Get(), fmt.Errorf("browser is not running")
	}

	opts.Normalize()
	st, err := s.store.Begin(url, opts)
	if err != nil {
		return st, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.store.SetCancel(cancel)

	go func() {
		defer cancel()
		s.run(ctx, url, opts)
	}()

	return st, nil
}

// Cancel 请求取消进行中的任务
func (s *Sorter) Cancel() error {
	return s.store.Cancel()
}

// run 执行完整的 计划/回放/校验 流程
func (s *Sorter) run(ctx context.Context, url string, opts models.SortOptions) {
	logger.Info(ctx, "Sort run started: %s (order=%s, max_duration=%d)", url, opts.Order, opts.MaxDuration)

	profile := s.manager.ProfileForURL(url)
	scraper := NewScraper(profile, time.Duration(s.cfg.ScrollPause)*time.Millisecond)

	// ========== 阶段一：抓取 ==========
	page, err := s.manager.OpenPage(ctx, url)
	if err != nil {
		s.fail(ctx, "failed to open playlist page: %v", err)
		return
	}

	s.store.SetState(models.StateScanning, "loading all playlist items")
	if _, err := scraper.LoadAll(ctx, page); err != nil {
		s.finishOnErr(ctx, err, "failed to load playlist")
		return
	}

	videos, err := scraper.Scrape(ctx, page)
	if err != nil {
		s.fail(ctx, "failed to scrape playlist: %v", err)
		return
	}

	if desc, err := scraper.Description(ctx, page); err == nil && desc != "" {
		s.store.SetDescription(desc)
	}

	// ========== 阶段二：计划 ==========
	s.store.SetState(models.StatePlanning, fmt.Sprintf("computing target order for %d videos", len(videos)))
	plan := planner.Build(videos, opts)
	s.store.SetPlan(plan.Videos)
	logger.Info(ctx, "Plan built: %d videos to move, %d skipped", len(plan.Videos), plan.Skipped)

	if len(plan.Videos) == 0 {
		s.store.Finish(models.StateCompleted, "nothing to sort: no videos matched the filter")
		return
	}

	// ========== 阶段三：回放 ==========
	// 逆序回放 move-to-top：最后执行的移动决定最终的第一名，
	// 因此按计划从尾到头移动后，页面顺序与计划一致
	s.store.SetState(models.StateSorting, "replaying target order onto the page")
	moved := 0
	skipped := 0
	total := len(plan.Videos)
	for i := len(plan.Videos) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			s.store.Finish(models.StateCancelled, fmt.Sprintf("cancelled after %d/%d moves", moved, total))
			logger.Info(ctx, "Sort run cancelled (%d/%d moves done)", moved, total)
			return
		default:
		}

		video := plan.Videos[i]
		if err := s.moveToTop(ctx, page, profile, video); err != nil {
			if errors.Is(err, errItemGone) {
				// 从计划中剔除，否则校验会在该位置报告不一致
				skipped++
				total--
				s.store.RemovePlanVideo(video.ID)
				logger.Warn(ctx, "Video disappeared during sort, skipping: %s (%s)", video.Title, video.ID)
				continue
			}
			s.fail(ctx, "failed to move %q to top: %v", video.Title, err)
			return
		}

		moved++
		s.store.Progress(moved, fmt.Sprintf("moved %d/%d: %s", moved, total, video.Title))

		if err := sleepWithCancel(ctx, time.Duration(s.cfg.MoveDelay)*time.Millisecond); err != nil {
			s.store.Finish(models.StateCancelled, fmt.Sprintf("cancelled after %d/%d moves", moved, total))
			logger.Info(ctx, "Sort run cancelled (%d/%d moves done)", moved, total)
			return
		}
	}

	// ========== 阶段四：校验 ==========
	s.store.SetState(models.StateVerifying, "re-scraping playlist to verify order")
	if _, err := scraper.LoadAll(ctx, page); err != nil {
		s.finishOnErr(ctx, err, "failed to reload playlist for verification")
		return
	}
	live, err := scraper.Scrape(ctx, page)
	if err != nil {
		s.fail(ctx, "failed to re-scrape playlist: %v", err)
		return
	}

	mismatch := planner.FirstMismatch(s.store.Get().Plan, live)
	s.store.SetMismatch(mismatch)
	if mismatch >= 0 {
		s.fail(ctx, "verification failed: live order diverges from plan at position %d", mismatch)
		return
	}

	msg := fmt.Sprintf("sorted %d videos", moved)
	if skipped > 0 {
		msg = fmt.Sprintf("sorted %d videos (%d disappeared during the run)", moved, skipped)
	}
	s.store.Finish(models.StateCompleted, msg)
	logger.Info(ctx, "Sort run completed: %s", msg)
}

// moveToTop 通过列表项的操作菜单触发站点原生的 "move to top" 动作
func (s *Sorter) moveToTop(ctx context.Context, page *rod.Page, profile *models.SelectorProfile, video models.Video) error {
	attempts := s.cfg.MoveAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Info(ctx, "Retrying move (attempt %d/%d): %s", attempt, attempts, video.Title)
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		index, err := s.findItemIndex(page, profile, video.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if index < 0 {
			return errItemGone
		}
		if index == 0 {
			// 已在顶部，move-to-top 是空操作
			return nil
		}

		if err := s.clickMoveToTop(ctx, page, profile, index); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return errors.Wrapf(lastErr, "move to top failed after %d attempts", attempts)
}

// findItemIndex 按视频 ID 定位列表项的当前 DOM 位置，-1 表示不存在
func (s *Sorter) findItemIndex(page *rod.Page, profile *models.SelectorProfile, id string) (int, error) {
	res, err := page.Eval(findItemScript, profile.ItemSelector, profile.LinkSelector, id)
	if err != nil {
		return 0, errors.Wrap(err, "failed to locate playlist item")
	}
	return res.Value.Int(), nil
}

// clickMoveToTop 打开第 index 个列表项的菜单并点击 move-to-top 菜单项
func (s *Sorter) clickMoveToTop(ctx context.Context, page *rod.Page, profile *models.SelectorProfile, index int) error {
	items, err := page.Elements(profile.ItemSelector)
	if err != nil {
		return errors.Wrap(err, "failed to query playlist items")
	}
	if index >= len(items) {
		return fmt.Errorf("item index %d out of range (%d items)", index, len(items))
	}

	item := items[index]
	if err := item.ScrollIntoView(); err != nil {
		logger.Warn(ctx, "Failed to scroll item into view: %v", err)
	}

	menuBtn, err := item.Timeout(5 * time.Second).Element(profile.MenuButtonSelector)
	if err != nil {
		return errors.Wrap(err, "menu button not found")
	}
	if err := menuBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// 常规点击失败时退回 JavaScript 点击
		logger.Warn(ctx, "Menu button click failed, trying JavaScript click: %v", err)
		if _, jsErr := menuBtn.Eval(`() => this.click()`); jsErr != nil {
			return errors.Wrap(err, "failed to open item menu")
		}
	}

	// 等待弹出菜单并选中目标菜单项（按文本匹配）
	menuItem, err := page.Timeout(5*time.Second).ElementR(profile.MenuItemSelector, profile.MoveToTopText)
	if err != nil {
		return errors.Wrap(err, "move-to-top menu entry not found")
	}
	if err := menuItem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		logger.Warn(ctx, "Menu entry click failed, trying JavaScript click: %v", err)
		if _, jsErr := menuItem.Eval(`() => this.click()`); jsErr != nil {
			return errors.Wrap(err, "failed to click move-to-top entry")
		}
	}

	return nil
}

// sleepWithCancel 等待给定时长，期间响应取消
func sleepWithCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fail 记录错误并进入 failed 终止状态
func (s *Sorter) fail(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Error(ctx, "Sort run failed: %s", msg)
	s.store.Finish(models.StateFailed, msg)
}

// finishOnErr 区分取消与普通错误后进入对应的终止状态
func (s *Sorter) finishOnErr(ctx context.Context, err error, prefix string) {
	if errors.Is(err, context.Canceled) {
		s.store.Finish(models.StateCancelled, "cancelled")
		logger.Info(ctx, "Sort run cancelled")
		return
	}
	s.fail(ctx, "%s: %v", prefix, err)
}
