package snapshot

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const revisionXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:r><w:t>La primera línea quedó intacta. </w:t></w:r>
      <w:ins w:author="Editora" w:date="2024-03-01T10:00:00Z">
        <w:r><w:t>Una frase añadida.</w:t></w:r>
      </w:ins>
    </w:p>
    <w:p>
      <w:r><w:t>Texto previo. </w:t></w:r>
      <w:del w:author="Editora" w:date="2024-03-01T10:05:00Z">
        <w:r><w:delText>la noche oscuro</w:delText></w:r>
      </w:del>
      <w:r><w:t> Texto posterior.</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`

func writeDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manuscrito.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	entry, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseDocxRevisions(t *testing.T) {
	path := writeDocx(t, revisionXML)

	revisions, err := ParseDocxRevisions(path)
	require.NoError(t, err)
	require.True(t, revisions.HasRevisions())

	assert.Equal(t, 1, revisions.TotalInsertions)
	assert.Equal(t, 1, revisions.TotalDeletions)
	assert.Equal(t, []string{"Editora"}, revisions.Authors)

	var ins, del *Revision
	for i := range revisions.Revisions {
		switch revisions.Revisions[i].Type {
		case "insert":
			ins = &revisions.Revisions[i]
		case "delete":
			del = &revisions.Revisions[i]
		}
	}
	require.NotNil(t, ins)
	require.NotNil(t, del)

	assert.Equal(t, "Una frase añadida.", ins.Text)
	assert.Equal(t, 0, ins.ParagraphIndex)

	assert.Equal(t, "la noche oscuro", del.Text)
	assert.Equal(t, 1, del.ParagraphIndex)
	// The deletion's offset follows the preceding run.
	assert.Equal(t, len("Texto previo. "), del.CharOffset)
}

func TestDeletionCharRanges(t *testing.T) {
	path := writeDocx(t, revisionXML)
	revisions, err := ParseDocxRevisions(path)
	require.NoError(t, err)

	// With an explicit paragraph offset map the range is exact.
	ranges := DeletionCharRanges(revisions, map[int]int{1: 1200})
	require.Len(t, ranges, 1)
	start := 1200 + len("Texto previo. ")
	assert.Equal(t, [2]int{start, start + len("la noche oscuro")}, ranges[0])

	// Without a map, the per-paragraph estimate applies.
	estimated := DeletionCharRanges(revisions, nil)
	require.Len(t, estimated, 1)
	assert.Equal(t, 1*estimatedParagraphChars+len("Texto previo. "), estimated[0][0])
}

func TestParseDocxMissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = ParseDocxRevisions(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "document.xml"))
}
