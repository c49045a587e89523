package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"45", 45},
		{"0:45", 45},
		{"2:03", 123},
		{"12:00", 720},
		{"1:02:03", 3723},
		{"10:00:00", 36000},
		{" 2:03 \n", 123},
		{"", 0},
		{"LIVE", 0},
		{"直播", 0},
		{"1:02:03:04", 0},
		{"-1:00", 0},
		{"1:xx", 0},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseDuration(tc.raw), "raw=%q", tc.raw)
	}
}

func TestSortOptionsNormalize(t *testing.T) {
	o := SortOptions{Order: "weird", MaxDuration: -5}
	o.Normalize()
	assert.Equal(t, OrderAsc, o.Order)
	assert.Equal(t, 0, o.MaxDuration)

	o = SortOptions{Order: OrderDesc, MaxDuration: 600}
	o.Normalize()
	assert.Equal(t, OrderDesc, o.Order)
	assert.Equal(t, 600, o.MaxDuration)
}

func TestSortStateClassification(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateSorting.IsTerminal())

	assert.True(t, StateScanning.IsActive())
	assert.True(t, StateVerifying.IsActive())
	assert.False(t, StateIdle.IsActive())
	assert.False(t, StateCompleted.IsActive())
}

func TestSelectorProfileMatches(t *testing.T) {
	p := DefaultSelectorProfile()
	assert.True(t, p.Matches("https://www.youtube.com/playlist?list=PL123"))
	assert.False(t, p.Matches("https://example.com/playlist"))

	empty := &SelectorProfile{}
	assert.False(t, empty.Matches("https://example.com"))
}
