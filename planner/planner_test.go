package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tubesort/tubesort/models"
)

func video(id string, duration int) models.Video {
	return models.Video{ID: id, Title: "video " + id, Duration: duration}
}

func ids(videos []models.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.ID)
	}
	return out
}

func TestBuildSortsAscending(t *testing.T) {
	plan := Build([]models.Video{
		video("a", 300),
		video("b", 60),
		video("c", 120),
	}, models.SortOptions{Order: models.OrderAsc})

	assert.Equal(t, []string{"b", "c", "a"}, ids(plan.Videos))
	assert.Equal(t, 0, plan.Skipped)
}

func TestBuildSortsDescending(t *testing.T) {
	plan := Build([]models.Video{
		video("a", 300),
		video("b", 60),
		video("c", 120),
	}, models.SortOptions{Order: models.OrderDesc})

	assert.Equal(t, []string{"a", "c", "b"}, ids(plan.Videos))
}

func TestBuildDefaultsToAscending(t *testing.T) {
	plan := Build([]models.Video{
		video("a", 20),
		video("b", 10),
	}, models.SortOptions{Order: "bogus"})

	assert.Equal(t, []string{"b", "a"}, ids(plan.Videos))
}

func TestBuildIsStableForEqualDurations(t *testing.T) {
	plan := Build([]models.Video{
		video("a", 60),
		video("b", 60),
		video("c", 30),
		video("d", 60),
	}, models.SortOptions{Order: models.OrderAsc})

	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(plan.Videos))
}

func TestBuildFiltersByMaxDuration(t *testing.T) {
	plan := Build([]models.Video{
		video("a", 600),
		video("b", 60),
		video("c", 601),
	}, models.SortOptions{Order: models.OrderAsc, MaxDuration: 600})

	assert.Equal(t, []string{"b", "a"}, ids(plan.Videos))
	assert.Equal(t, 1, plan.Skipped)
}

func TestBuildDropsUnknownDurations(t *testing.T) {
	plan := Build([]models.Video{
		video("live", 0),
		video("a", 90),
	}, models.SortOptions{})

	assert.Equal(t, []string{"a"}, ids(plan.Videos))
	assert.Equal(t, 1, plan.Skipped)
}

func TestBuildEmptyInput(t *testing.T) {
	plan := Build(nil, models.SortOptions{})
	assert.Empty(t, plan.Videos)
	assert.Equal(t, 0, plan.Skipped)
}

func TestBuildHandlesDuplicateTitles(t *testing.T) {
	a := models.Video{ID: "a", Title: "same title", Duration: 30}
	b := models.Video{ID: "b", Title: "same title", Duration: 10}
	plan := Build([]models.Video{a, b}, models.SortOptions{Order: models.OrderAsc})

	assert.Equal(t, []string{"b", "a"}, ids(plan.Videos))
}

func TestFirstMismatch(t *testing.T) {
	plan := []models.Video{video("a", 10), video("b", 20)}

	assert.Equal(t, -1, FirstMismatch(plan, []models.Video{video("a", 10), video("b", 20)}))
	assert.Equal(t, 1, FirstMismatch(plan, []models.Video{video("a", 10), video("c", 20)}))
	assert.Equal(t, 0, FirstMismatch(plan, []models.Video{video("b", 20), video("a", 10)}))
}

func TestFirstMismatchAllowsLongerLiveList(t *testing.T) {
	plan := []models.Video{video("a", 10)}
	live := []models.Video{video("a", 10), video("live", 0)}

	assert.Equal(t, -1, FirstMismatch(plan, live))
}

func TestFirstMismatchShorterLiveList(t *testing.T) {
	plan := []models.Video{video("a", 10), video("b", 20)}
	live := []models.Video{video("a", 10)}

	assert.Equal(t, 1, FirstMismatch(plan, live))
}

func TestFirstMismatchEmptyPlan(t *testing.T) {
	assert.Equal(t, -1, FirstMismatch(nil, []models.Video{video("a", 10)}))
}
