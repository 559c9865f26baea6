package speech

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// formalLine and casualLine are stylistically opposed dialogue lines
// long enough to fill windows past the word minimum.
func formalLine(i int) string {
	return fmt.Sprintf(
		"No obstante, considero que deberíamos proceder con suma cautela en el asunto %d; asimismo, cabe señalar que las circunstancias actuales no admiten precipitación alguna por nuestra parte.", i)
}

func casualLine(i int) string {
	return fmt.Sprintf(
		"¡Qué va, tío! ¿Tú flipas, no? O sea, en plan, yo paso del rollo %d ese. ¡Venga ya! ¿Vamos o qué? ¡Mogollón de ganas tengo yo! Guay, chaval, guay.", i)
}

func fillChapters(line func(int) string, chapters ...int) map[int][]string {
	out := make(map[int][]string)
	for _, ch := range chapters {
		for i := 0; i < 12; i++ {
			out[ch] = append(out[ch], line(ch*100+i))
		}
	}
	return out
}

func newTestDetector() *Detector {
	return NewDetector(3, 1, 200, 0.6, NewMetricsCache(100), nil)
}

// A character with fewer than two valid windows produces no alert.
func TestDetectorNeedsTwoWindows(t *testing.T) {
	d := newTestDetector()

	// All dialogue in a single chapter: one window at most.
	dialogues := fillChapters(formalLine, 1)
	alerts := d.DetectChanges(1, "Elena", dialogues, 3, nil)
	assert.Empty(t, alerts)

	// Plenty of chapters but too few words per window.
	sparse := map[int][]string{1: {"Hola."}, 4: {"Adiós."}}
	alerts = d.DetectChanges(1, "Elena", sparse, 6, nil)
	assert.Empty(t, alerts)
}

// A drastic register flip across windows raises an alert with at
// least two changed metrics.
func TestDetectorFindsVoiceChange(t *testing.T) {
	d := newTestDetector()

	dialogues := fillChapters(formalLine, 1, 2, 3)
	for ch, lines := range fillChapters(casualLine, 5, 6, 7) {
		dialogues[ch] = lines
	}

	alerts := d.DetectChanges(7, "Elena", dialogues, 7, nil)
	require.NotEmpty(t, alerts, "a register flip this hard must be detected")

	alert := alerts[0]
	assert.Equal(t, "Elena", alert.CharacterName)
	assert.GreaterOrEqual(t, len(alert.Changes), 2)
	assert.GreaterOrEqual(t, alert.Confidence, 0.6)
	for _, c := range alert.Changes {
		assert.True(t, c.Significant)
		assert.Less(t, c.PValue, 0.05)
	}
}

// A dramatic event between the windows lowers the alert one severity
// step.
func TestDetectorContextMitigation(t *testing.T) {
	d := newTestDetector()

	dialogues := fillChapters(formalLine, 1, 2, 3)
	for ch, lines := range fillChapters(casualLine, 5, 6, 7) {
		dialogues[ch] = lines
	}

	plain := d.DetectChanges(7, "Elena", dialogues, 7, nil)
	require.NotEmpty(t, plain)

	chapterTexts := map[int]string{
		3: "El funeral fue breve. Tras la muerte de su padre, Elena guardó luto durante semanas en el cementerio del pueblo.",
		4: "El entierro reunió a todo el pueblo.",
		5: "Nada volvió a ser igual.",
	}
	mitigated := d.DetectChanges(7, "Elena", dialogues, 7, chapterTexts)
	require.NotEmpty(t, mitigated)

	require.NotNil(t, mitigated[0].Context)
	assert.True(t, mitigated[0].Context.HasDramaticEvent)
	assert.Equal(t, "muerte", mitigated[0].Context.EventType)
	assert.LessOrEqual(t, severityRank(mitigated[0].Severity), severityRank(plain[0].Severity))
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 2
	case "medium":
		return 1
	}
	return 0
}

func TestDetectMetricChangeThresholds(t *testing.T) {
	// Identical values never flag.
	c := DetectMetricChange("lexical_diversity", 0.5, 0.5, 1000, 1000)
	assert.False(t, c.Significant)
	assert.Zero(t, c.RelativeChange)

	// A big discrete-rate swing on large samples flags.
	c = DetectMetricChange("filler_rate", 2, 12, 1500, 1500)
	assert.True(t, c.Significant)
	assert.Less(t, c.PValue, 0.05)

	// A large relative change on tiny samples does not reach
	// significance.
	c = DetectMetricChange("filler_rate", 2, 4, 30, 30)
	assert.False(t, c.Significant)
}

func TestSlidingWindowsLayout(t *testing.T) {
	dialogues := make(map[int][]string)
	for ch := 1; ch <= 6; ch++ {
		// ~300 words per chapter.
		for i := 0; i < 10; i++ {
			dialogues[ch] = append(dialogues[ch], strings.Repeat("palabra ", 30))
		}
	}

	windows := SlidingWindows(1, "Elena", dialogues, 6, 3, 1, 200)
	require.Len(t, windows, 3)
	assert.Equal(t, "1-3", windows[0].ChapterRange())
	assert.Equal(t, "3-5", windows[1].ChapterRange())
	assert.Equal(t, "5-6", windows[2].ChapterRange())
}

func TestMetricsCacheReuse(t *testing.T) {
	cache := NewMetricsCache(10)
	dialogues := []string{"¿Vienes mañana? ¡Claro que sí! Bueno, ya veremos si puedo."}

	first := cache.Compute(dialogues)
	second := cache.Compute(dialogues)
	assert.Equal(t, first, second)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
