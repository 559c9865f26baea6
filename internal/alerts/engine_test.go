package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// Content hashes are a pure function of their documented inputs.
func TestContentHashDeterminism(t *testing.T) {
	h1 := ContentHash("repetition", 3, "la noche oscura", 1200, 1260, map[string]string{"word": "noche"})
	h2 := ContentHash("repetition", 3, "la noche oscura", 1200, 1260, map[string]string{"word": "noche"})
	assert.Equal(t, h1, h2)

	// Whitespace normalization keeps identity stable.
	h3 := ContentHash("repetition", 3, "  la   noche \n oscura ", 1200, 1260, map[string]string{"word": "noche"})
	assert.Equal(t, h1, h3)

	// Identity-affecting inputs change the hash.
	assert.NotEqual(t, h1, ContentHash("repetition", 4, "la noche oscura", 1200, 1260, map[string]string{"word": "noche"}))
	assert.NotEqual(t, h1, ContentHash("duplicate_sentence", 3, "la noche oscura", 1200, 1260, map[string]string{"word": "noche"}))
	assert.NotEqual(t, h1, ContentHash("repetition", 3, "otra cosa", 1200, 1260, map[string]string{"word": "noche"}))
	assert.NotEqual(t, h1, ContentHash("repetition", 3, "la noche oscura", 1200, 1260, map[string]string{"word": "otra"}))
}

// Positional types quantize offsets: a tiny shift keeps the hash, a
// large one changes it. Non-positional types ignore offsets entirely.
func TestContentHashPositionQuantization(t *testing.T) {
	base := ContentHash("repetition", 1, "eco", 1000, 1050, nil)
	assert.Equal(t, base, ContentHash("repetition", 1, "eco", 1020, 1070, nil))
	assert.NotEqual(t, base, ContentHash("repetition", 1, "eco", 2000, 2050, nil))

	a := ContentHash("speech_change", 1, "cambio", 1000, 1050, nil)
	b := ContentHash("speech_change", 1, "cambio", 9000, 9050, nil)
	assert.Equal(t, a, b)
}

func TestEngineDeduplicates(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &types.Project{Name: "Novela"}
	require.NoError(t, store.CreateProject(p))

	engine := NewEngine(store, types.SeverityInfo, nil)

	finding := Finding{
		Category: "style", Type: "repetition", Severity: types.SeverityInfo,
		Title: "eco", Excerpt: "la noche oscura", Chapter: 3,
		StartChar: 1200, EndChar: 1260, Confidence: 0.8,
	}

	first, err := engine.Submit(p.ID, finding)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, types.AlertNew, first.Status)
	assert.NotEmpty(t, first.ContentHash)

	// Same finding again: dropped silently, not an error. That is what
	// makes re-running on the same fingerprint idempotent.
	second, err := engine.Submit(p.ID, finding)
	require.NoError(t, err)
	assert.Nil(t, second)

	alerts, err := store.ListAlerts(p.ID)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEngineMinSeverityFiltersCreation(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &types.Project{Name: "Novela"}
	require.NoError(t, store.CreateProject(p))

	engine := NewEngine(store, types.SeverityWarning, nil)

	info, err := engine.Submit(p.ID, Finding{
		Category: "style", Type: "sticky_sentence",
		Severity: types.SeverityInfo, Title: "pegajosa",
	})
	require.NoError(t, err)
	assert.Nil(t, info, "below-threshold findings are not persisted at all")

	warn, err := engine.Submit(p.ID, Finding{
		Category: "style", Type: "duplicate_sentence",
		Severity: types.SeverityWarning, Title: "duplicada",
	})
	require.NoError(t, err)
	assert.NotNil(t, warn)
}
