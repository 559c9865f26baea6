package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

func novelText(seed string) string {
	paragraphs := []string{
		"La casa del acantilado llevaba veinte años cerrada cuando " + seed + " decidió volver al pueblo de su infancia.",
		"Nadie recordaba ya el incendio, pero las paredes ennegrecidas seguían allí, como una acusación muda.",
		"Cada mañana bajaba al puerto, compraba pescado a los hermanos Varela y subía de nuevo la cuesta sin hablar con nadie.",
		"El invierno trajo tormentas que arrancaron las tejas y, con ellas, las primeras cartas escondidas bajo el alero.",
	}
	return strings.Join(paragraphs, "\n\n")
}

func TestClassifySameDocument(t *testing.T) {
	text := novelText("Elena")
	decision := Classify(text, text)
	assert.Equal(t, types.IdentitySame, decision.Classification)
	assert.Equal(t, 1.0, decision.Confidence)

	// A light edit keeps identity.
	edited := strings.Replace(text, "una acusación muda", "un reproche silencioso", 1)
	decision = Classify(text, edited)
	assert.Equal(t, types.IdentitySame, decision.Classification)
}

func TestClassifyDifferentDocument(t *testing.T) {
	original := novelText("Elena")
	other := strings.Join([]string{
		"El crucero espacial Hiperión abandonó la órbita de Marte con doscientos colonos dormidos en sus cápsulas.",
		"La inteligencia de a bordo revisaba los sistemas de soporte vital cada tres segundos, incansable.",
		"Ningún tripulante despierto recordaba ya la Tierra, y los archivos históricos llevaban décadas sellados.",
	}, "\n\n")

	decision := Classify(original, other)
	assert.Equal(t, types.IdentityDifferent, decision.Classification)
}

func TestClassifyEmptyPrevious(t *testing.T) {
	decision := Classify("", novelText("Elena"))
	assert.Equal(t, types.IdentityUncertain, decision.Classification)
	assert.True(t, decision.RecommendedFullRun)
}

func TestFingerprintStability(t *testing.T) {
	text := novelText("Elena")
	assert.Equal(t, Fingerprint(text), Fingerprint(text))
	assert.NotEqual(t, Fingerprint(text), Fingerprint(text+"."))
	assert.Len(t, Fingerprint(text), 64)
}

// Replacement gate: different_document blocks and leaves state
// unchanged; same_document replaces and resets to pending.
func TestReplacementGate(t *testing.T) {
	store := storage.NewMemoryStorage()
	text := novelText("Elena")

	p := &types.Project{
		Name:                "Novela",
		DocumentFingerprint: Fingerprint(text),
		AnalysisStatus:      types.StatusCompleted,
	}
	require.NoError(t, store.CreateProject(p))

	svc := NewService(store, 3, nil)

	// A different novel blocks; the fingerprint stays put.
	other := "Algo completamente distinto.\n\nOtra historia con otros personajes en otro mundo imaginado."
	_, err := svc.CheckReplacement(p.ID, "subject-1", text, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReplacementBlocked))

	unchanged, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(text), unchanged.DocumentFingerprint)

	// A lightly edited version passes and resets the project.
	edited := strings.Replace(text, "pescado", "marisco", 1)
	decision, err := svc.CheckReplacement(p.ID, "subject-1", text, edited)
	require.NoError(t, err)
	assert.Equal(t, types.IdentitySame, decision.Classification)

	require.NoError(t, svc.ApplyReplacement(p.ID, edited, ""))
	replaced, err := store.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(edited), replaced.DocumentFingerprint)
	assert.Equal(t, types.StatusPending, replaced.AnalysisStatus)
	assert.Zero(t, replaced.AnalysisProgress)
}

// Every check is persisted; uncertain checks accrue against the
// subject's rolling budget.
func TestUncertainBudget(t *testing.T) {
	store := storage.NewMemoryStorage()
	p := &types.Project{Name: "Novela"}
	require.NoError(t, store.CreateProject(p))

	svc := NewService(store, 2, nil)

	// An empty previous text classifies uncertain but stays allowed
	// until the budget is exceeded.
	for i := 0; i < 2; i++ {
		_, err := svc.CheckReplacement(p.ID, "subject-2", "", novelText("Elena"))
		require.NoError(t, err)
	}
	// The third uncertain within the window crosses the limit.
	_, err := svc.CheckReplacement(p.ID, "subject-2", "", novelText("Elena"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReplacementBlocked))

	required, err := store.ReviewRequired("subject-2")
	require.NoError(t, err)
	assert.True(t, required)

	last, err := store.LastIdentityCheck(p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.IdentityUncertain, last.Classification)
}
