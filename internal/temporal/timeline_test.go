package temporal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

func chapterWith(number int, content string) *types.Chapter {
	return &types.Chapter{ChapterNumber: number, StartChar: 0, EndChar: len(content), Content: content}
}

func TestExtractMarkers(t *testing.T) {
	content := "El 14 de julio de 1936 todo cambió. Tres días después, María huyó. " +
		"Era lunes. Al día siguiente tenía 40 años y nada que perder."
	markers := ExtractMarkers(chapterWith(1, content))

	kinds := make(map[string]int)
	for _, m := range markers {
		kinds[m.Kind]++
		assert.Equal(t, content[m.StartChar:m.EndChar], m.Surface)
	}
	assert.Equal(t, 1, kinds[KindAbsoluteDate])
	assert.Equal(t, 1, kinds[KindDuration])
	assert.Equal(t, 1, kinds[KindWeekday])
	assert.Equal(t, 1, kinds[KindAge])
	assert.Equal(t, 1, kinds[KindDeictic])

	for _, m := range markers {
		if m.Kind == KindAbsoluteDate {
			assert.Equal(t, "1936-07-14", m.Value)
		}
		if m.Kind == KindDuration {
			assert.Equal(t, "3", m.Value)
		}
	}
}

func TestTimelineDayOffsets(t *testing.T) {
	content := "El 1 de marzo de 1920 llegaron al puerto. Dos días después zarparon. " +
		"Una semana después tocaron tierra de nuevo."
	markers := ExtractMarkers(chapterWith(1, content))

	tl := NewBuilder(nil).Build(7, markers, nil)
	require.Len(t, tl.Events, 3)

	assert.Equal(t, 0, tl.Events[0].DayOffset)
	assert.Equal(t, types.ResolutionExactDate, tl.Events[0].Resolution)
	// 1 March 1920 was a Monday.
	assert.Equal(t, "lunes", tl.Events[0].Weekday)

	assert.Equal(t, 2, tl.Events[1].DayOffset)
	assert.Equal(t, "miércoles", tl.Events[1].Weekday)

	assert.Equal(t, 9, tl.Events[2].DayOffset)
	for _, ev := range tl.Events {
		assert.Equal(t, int64(7), ev.ProjectID)
		assert.Equal(t, types.OrderChronological, ev.Order)
	}
}

func TestTimelineTemporalInstances(t *testing.T) {
	content := "Aquel verano Ana tenía 40 años. Mucho después, Ana cumplió 45 años en silencio."
	markers := ExtractMarkers(chapterWith(1, content))

	locator := func(chapter, offset int) (int64, string) { return 11, "Ana" }
	tl := NewBuilder(nil).Build(1, markers, locator)

	var instances []string
	for _, ev := range tl.Events {
		if ev.TemporalInstanceID != "" {
			instances = append(instances, ev.TemporalInstanceID)
			assert.Equal(t, int64(11), ev.EntityID)
		}
	}
	assert.Equal(t, []string{"Ana@40", "Ana@45"}, instances)
}

func TestConsistencyImpossibleAge(t *testing.T) {
	tl := &Timeline{Events: []types.TimelineEvent{
		{Chapter: 1, DayOffset: 0, TemporalInstanceID: "Ana@45", EntityID: 1},
		{Chapter: 5, DayOffset: 100, TemporalInstanceID: "Ana@40", EntityID: 1},
	}}
	issues := CheckConsistency(tl)
	require.NotEmpty(t, issues)
	assert.Equal(t, "impossible_age", issues[0].Kind)
	assert.True(t, strings.Contains(issues[0].Description, "40"))
}

func TestConsistencyReversedOrder(t *testing.T) {
	tl := &Timeline{Events: []types.TimelineEvent{
		{Chapter: 1, DayOffset: 10, Order: types.OrderChronological},
		{Chapter: 2, DayOffset: 2, Order: types.OrderChronological},
	}}
	issues := CheckConsistency(tl)
	require.NotEmpty(t, issues)
	assert.Equal(t, "reversed_order", issues[0].Kind)
}

func TestConsistencyDeclaredAnalepsisAccepted(t *testing.T) {
	tl := &Timeline{Events: []types.TimelineEvent{
		{Chapter: 1, DayOffset: 10, Order: types.OrderChronological},
		{Chapter: 2, DayOffset: 2, Order: types.OrderAnalepsis},
	}}
	assert.Empty(t, CheckConsistency(tl))
}

func TestConsistencyContradictoryDates(t *testing.T) {
	tl := &Timeline{Events: []types.TimelineEvent{
		{DayOffset: 5, Resolution: types.ResolutionExactDate, StoryDate: "1920-03-01"},
		{DayOffset: 5, Resolution: types.ResolutionExactDate, StoryDate: "1920-04-01"},
	}}
	issues := CheckConsistency(tl)
	require.NotEmpty(t, issues)
	assert.Equal(t, "contradictory_dates", issues[0].Kind)
}
