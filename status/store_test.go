package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubesort/tubesort/models"
	"github.com/tubesort/tubesort/planner"
)

// memPersister 内存持久层，记录每次写入
type memPersister struct {
	runs map[string]*models.SortRun
}

func newMemPersister() *memPersister {
	return &memPersister{runs: make(map[string]*models.SortRun)}
}

func (m *memPersister) SaveSortRun(run *models.SortRun) error {
	cp := *run
	m.runs[run.RunID] = &cp
	return nil
}

func (m *memPersister) ListUnfinishedSortRuns() ([]*models.SortRun, error) {
	var out []*models.SortRun
	for _, run := range m.runs {
		if !run.State.IsTerminal() {
			out = append(out, run)
		}
	}
	return out, nil
}

func TestBeginRejectsConcurrentRun(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Begin("https://example.com/playlist", models.SortOptions{})
	require.NoError(t, err)

	_, err = s.Begin("https://example.com/other", models.SortOptions{})
	assert.Error(t, err)
}

func TestBeginAllowedAfterTerminalState(t *testing.T) {
	s := NewStore(nil)

	first, err := s.Begin("u1", models.SortOptions{})
	require.NoError(t, err)
	s.Finish(models.StateCompleted, "done")

	second, err := s.Begin("u2", models.SortOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, models.StateScanning, second.State)
}

func TestGetReturnsSnapshotCopy(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)

	s.SetPlan([]models.Video{{ID: "a", Duration: 10}})

	snap := s.Get()
	snap.Plan[0].ID = "mutated"

	assert.Equal(t, "a", s.Get().Plan[0].ID)
}

func TestProgressAndPlanUpdateStatus(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)

	s.SetPlan([]models.Video{{ID: "a"}, {ID: "b"}})
	s.SetState(models.StateSorting, "moving videos")
	s.Progress(1, "moved 1/2")

	got := s.Get()
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Moved)
	assert.Equal(t, models.StateSorting, got.State)
	assert.Equal(t, "moved 1/2", got.Message)
}

func TestRemovePlanVideoKeepsVerifiableOrder(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)

	s.SetPlan([]models.Video{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	// b 在回放期间从页面上消失
	s.RemovePlanVideo("b")

	got := s.Get()
	require.Len(t, got.Plan, 2)
	assert.Equal(t, "a", got.Plan[0].ID)
	assert.Equal(t, "c", got.Plan[1].ID)
	assert.Equal(t, 2, got.Total)

	// 剔除后剩余视频的顺序与页面一致即可通过校验
	live := []models.Video{{ID: "a"}, {ID: "c"}, {ID: "x"}}
	assert.Equal(t, -1, planner.FirstMismatch(got.Plan, live))
}

func TestRemovePlanVideoPersists(t *testing.T) {
	persist := newMemPersister()
	s := NewStore(persist)
	st, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)

	s.SetPlan([]models.Video{{ID: "a"}, {ID: "b"}})
	s.RemovePlanVideo("a")

	saved := persist.runs[st.RunID]
	require.NotNil(t, saved)
	require.Len(t, saved.Plan, 1)
	assert.Equal(t, "b", saved.Plan[0].ID)
	assert.Equal(t, 1, saved.Total)
}

func TestCancelOnlyWhileActive(t *testing.T) {
	s := NewStore(nil)

	assert.Error(t, s.Cancel())

	_, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.SetCancel(cancel)
	require.NoError(t, s.Cancel())
	assert.Error(t, ctx.Err())

	s.Finish(models.StateCancelled, "cancelled")
	assert.Error(t, s.Cancel())
}

func TestEveryMutationIsPersisted(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p)

	st, err := s.Begin("u", models.SortOptions{Order: models.OrderDesc})
	require.NoError(t, err)

	s.SetPlan([]models.Video{{ID: "a", Duration: 10}})
	s.SetState(models.StateSorting, "moving")
	s.Progress(1, "moved 1/1")
	s.SetMismatch(-1)
	s.Finish(models.StateCompleted, "done")

	saved, ok := p.runs[st.RunID]
	require.True(t, ok)
	assert.Equal(t, models.StateCompleted, saved.State)
	assert.Equal(t, 1, saved.Moved)
	assert.Equal(t, models.OrderDesc, saved.Options.Order)
	assert.False(t, saved.FinishedAt.IsZero())
}

func TestRecoverInterrupted(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p)

	st, err := s.Begin("u", models.SortOptions{})
	require.NoError(t, err)
	s.SetState(models.StateSorting, "moving")

	// 模拟进程重启：持久层中留下一条进行中的记录
	recovered, err := RecoverInterrupted(p)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	saved := p.runs[st.RunID]
	assert.Equal(t, models.StateFailed, saved.State)
	assert.Contains(t, saved.Message, "interrupted")

	// 没有未完成记录时为空操作
	recovered, err = RecoverInterrupted(p)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}
