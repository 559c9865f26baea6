package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chapterV1 = `La mañana llegó gris sobre el puerto.

Los pescadores salieron temprano, antes de que el viento cambiara.

La noche oscuro cubría los muelles cuando regresaron.`

const chapterV2 = `La mañana llegó gris sobre el puerto.

Los pescadores salieron temprano, antes de que el viento cambiara.

Una bruma espesa envolvía los muelles al caer la tarde.`

func TestDiffIdenticalTexts(t *testing.T) {
	diff := DiffChapterTexts(chapterV1, chapterV1, 1)
	assert.Equal(t, "unchanged", diff.Status)
	assert.Equal(t, 1.0, diff.Similarity)
	assert.Equal(t, 3, diff.ParagraphsUnchanged)
	assert.Empty(t, diff.AddedRanges)
	assert.Empty(t, diff.RemovedRanges)
}

func TestDiffReplacedParagraph(t *testing.T) {
	diff := DiffChapterTexts(chapterV1, chapterV2, 3)
	assert.Equal(t, "modified", diff.Status)
	assert.Equal(t, 2, diff.ParagraphsUnchanged)
	assert.Equal(t, 1, diff.ParagraphsModified)
	require.Len(t, diff.RemovedRanges, 1)
	require.Len(t, diff.AddedRanges, 1)

	// The removed range covers the replaced paragraph in the old text.
	removed := diff.RemovedRanges[0]
	assert.Contains(t, chapterV1[removed.StartChar:removed.EndChar], "noche oscuro")
}

// Diff kinds mirror across argument order: added↔removed.
func TestDiffSymmetry(t *testing.T) {
	forward := DiffChapterTexts(chapterV1, chapterV2, 1)
	backward := DiffChapterTexts(chapterV2, chapterV1, 1)

	assert.Equal(t, forward.ParagraphsRemoved, backward.ParagraphsAdded)
	assert.Equal(t, forward.ParagraphsAdded, backward.ParagraphsRemoved)
	assert.Len(t, backward.AddedRanges, len(forward.RemovedRanges))
	assert.Len(t, backward.RemovedRanges, len(forward.AddedRanges))
}

func TestComputeChapterDiffs(t *testing.T) {
	before := map[int]string{1: "Uno.\n\nDos.", 2: chapterV1}
	after := map[int]string{2: chapterV2, 3: "Capítulo nuevo.\n\nMás texto."}

	diff := ComputeChapterDiffs(before, after)
	assert.Equal(t, []int{3}, diff.ChaptersAdded)
	assert.Equal(t, []int{1}, diff.ChaptersRemoved)
	assert.True(t, diff.HasChanges())

	var statuses []string
	for _, cd := range diff.ChapterDiffs {
		statuses = append(statuses, cd.Status)
	}
	assert.Equal(t, []string{"removed", "modified", "added"}, statuses)
}

func TestPositionPredicates(t *testing.T) {
	diff := ComputeChapterDiffs(map[int]string{3: chapterV1}, map[int]string{3: chapterV2})

	removed := diff.ChapterDiffs[0].RemovedRanges
	require.NotEmpty(t, removed)
	inside := removed[0].StartChar + 5

	assert.True(t, diff.InRemovedRange(3, inside, inside+10))
	assert.False(t, diff.InRemovedRange(2, inside, inside+10), "wrong chapter never matches")
	assert.False(t, diff.InRemovedRange(3, 0, 5), "untouched opening paragraph")

	// The margin widens the modified-area predicate.
	nearby := removed[0].StartChar - 150
	if nearby < 0 {
		nearby = 0
	}
	assert.True(t, diff.InModifiedArea(3, nearby, nearby+5, 200))
}

func TestOpcodesRoundTrip(t *testing.T) {
	a := []string{"p1", "p2", "p3", "p4"}
	b := []string{"p1", "nuevo", "p3", "p4", "p5"}

	total := 0
	for _, op := range opcodes(a, b) {
		switch op.tag {
		case "equal":
			assert.Equal(t, op.i2-op.i1, op.j2-op.j1)
			total += op.i2 - op.i1
		}
	}
	assert.Equal(t, 3, total, "p1, p3, p4 survive")
}
