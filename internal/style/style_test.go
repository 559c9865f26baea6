package style

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/embeddings"
	"github.com/pauubach/narrassist/internal/types"
)

func chapterOf(number int, content string) *types.Chapter {
	return &types.Chapter{ChapterNumber: number, StartChar: 0, EndChar: len(content), Content: content}
}

func TestDetectRepetitions(t *testing.T) {
	content := "La lámpara parpadeó. La lámpara zumbaba sin descanso. Al final, la lámpara se apagó del todo."
	reps := DetectRepetitions(chapterOf(1, content))
	require.NotEmpty(t, reps)
	assert.Equal(t, "lámpara", reps[0].Word)
	assert.GreaterOrEqual(t, reps[0].Count, 3)
	assert.Equal(t, 1, reps[0].Chapter)

	// Short and common words never flag.
	quiet := "Pero entonces pero nada, pero bueno, pero ya está."
	assert.Empty(t, DetectRepetitions(chapterOf(1, quiet)))
}

func TestDetectDuplicates(t *testing.T) {
	sentence := "El mar devolvía siempre lo que se llevaba."
	content := sentence + " Pasaron los años sin noticia alguna. " + sentence
	dups := DetectDuplicates(chapterOf(2, content))
	require.Len(t, dups, 1)
	assert.Equal(t, sentence, dups[0].Sentence)
	assert.Less(t, dups[0].FirstChar, dups[0].SecondChar)
}

func TestAnalyzeSentencesSticky(t *testing.T) {
	sticky := "El de la de un la en el de la que de un en la de el que la de un el en la de."
	issues := AnalyzeSentences(chapterOf(1, sticky))
	require.NotEmpty(t, issues)
	assert.Equal(t, "sticky_sentence", issues[0].Kind)
	assert.Greater(t, issues[0].Score, stickyThreshold)

	crisp := "María cruzó el patio, abrió la verja oxidada y llamó dos veces a la puerta del doctor."
	assert.Empty(t, AnalyzeSentences(chapterOf(1, crisp)))
}

func TestAnalyzePacing(t *testing.T) {
	action := "María corrió hacia la puerta. Juan gritó. El miedo lo inundaba todo. ¡Peligro! Ella saltó el muro. Sangre en las manos. De repente, un grito."
	calm := "La tarde transcurría con una lentitud amable mientras los abuelos conversaban largamente sobre cosechas antiguas, recordando con calma los veranos interminables de su juventud compartida en la vega del río."

	fast := AnalyzePacing(chapterOf(1, action))
	slow := AnalyzePacing(chapterOf(2, calm))

	assert.Greater(t, fast.PaceScore, slow.PaceScore)
	assert.Greater(t, fast.TensionScore, slow.TensionScore)
}

func TestPacingFlat(t *testing.T) {
	flat := []ChapterPacing{{PaceScore: 0.5}, {PaceScore: 0.52}, {PaceScore: 0.48}}
	varied := []ChapterPacing{{PaceScore: 0.2}, {PaceScore: 0.8}, {PaceScore: 0.5}}
	assert.True(t, PacingFlat(flat))
	assert.False(t, PacingFlat(varied))
	assert.False(t, PacingFlat(flat[:2]), "too few chapters to judge")
}

func TestClassifyRegister(t *testing.T) {
	formal := strings.Repeat("No obstante, cabe señalar que, por consiguiente, asimismo procede. ", 2)
	colloquial := strings.Repeat("Qué va, tío, en plan mogollón de cosas, guay. ", 2)
	assert.Equal(t, RegisterFormal, ClassifyRegister(formal))
	assert.Equal(t, RegisterColloquial, ClassifyRegister(colloquial))
	assert.Equal(t, RegisterNeutral, ClassifyRegister("María cruzó la calle bajo la lluvia."))
}

func TestFocalizationViolations(t *testing.T) {
	content := "Pedro miró el reloj. María pensó que todo estaba perdido."
	chapter := chapterOf(4, content)

	external := &types.Focalization{ChapterNumber: 4, Type: types.FocalizationExternal}
	violations := DetectFocalizationViolations(chapter, external, "")
	require.NotEmpty(t, violations, "interior access breaks external focalization")
	assert.Equal(t, types.FocalizationExternal, violations[0].Declared)

	// Internal focalization on María tolerates her own interior.
	internal := &types.Focalization{ChapterNumber: 4, Type: types.FocalizationInternal}
	violations = DetectFocalizationViolations(chapter, internal, "María")
	assert.Empty(t, violations)

	// But not Pedro's. The filler keeps the focal name out of the
	// proximity window around the interior-access verb.
	pedroContent := "Pedro pensó que nadie lo sabría nunca. " +
		strings.Repeat("La lluvia golpeaba los cristales del corredor vacío mientras el reloj del vestíbulo marcaba las horas muertas. ", 2) +
		"María dormía arriba."
	violations = DetectFocalizationViolations(chapterOf(4, pedroContent), internal, "María")
	assert.NotEmpty(t, violations)

	assert.Empty(t, DetectFocalizationViolations(chapter, nil, ""))
}

func TestRedundancyDetector(t *testing.T) {
	embedder := embeddings.NewHashEmbedder(256)
	d := NewRedundancyDetector(embedder, "thorough", nil)

	base := "María pensaba que la casa del acantilado guardaba todos los secretos de su familia desde hacía generaciones enteras."
	paraphrase := "María pensaba que la casa del acantilado guardaba todos los secretos de su familia desde hacía varias generaciones."
	filler1 := "Los pescadores del puerto salían cada madrugada con sus redes remendadas hacia los bancos del norte."
	filler2 := "El tren de mercancías cruzaba el valle puntualmente cada tarde levantando nubes de polvo rojizo."

	chapters := []*types.Chapter{
		chapterOf(1, base+" "+filler1),
		chapterOf(4, filler2+" "+paraphrase),
	}

	pairs, err := d.Detect(context.Background(), chapters)
	require.NoError(t, err)
	require.NotEmpty(t, pairs, "near-identical sentences across chapters must pair up")
	assert.NotEqual(t, pairs[0].ChapterA, pairs[0].ChapterB)
	assert.GreaterOrEqual(t, pairs[0].Similarity, 0.8)
}

func TestRedundancyDetectorNilEmbedder(t *testing.T) {
	d := NewRedundancyDetector(nil, "fast", nil)
	pairs, err := d.Detect(context.Background(), []*types.Chapter{chapterOf(1, "Una frase cualquiera de prueba.")})
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
