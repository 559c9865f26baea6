package attributes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

func TestExtractPhysicalAndRelational(t *testing.T) {
	text := "María tenía 34 años y el pelo negro. Era alta y decidida. Su hermano la esperaba con los ojos azules clavados en la puerta."
	mention := &types.Mention{Surface: "María", StartChar: 0, EndChar: len("María")}
	chapters := []types.Chapter{{ChapterNumber: 2, StartChar: 0, EndChar: len(text)}}

	e := NewExtractor()
	extractions := e.Extract(text, types.EntityCharacter, 5, []*types.Mention{mention}, chapters)
	require.NotEmpty(t, extractions)

	byKey := make(map[string]types.Attribute)
	for _, ex := range extractions {
		byKey[ex.Attribute.Key] = ex.Attribute
		assert.Equal(t, int64(5), ex.Attribute.EntityID)
		assert.Equal(t, 2, ex.Attribute.FirstMentionChapter)
	}

	require.Contains(t, byKey, "age")
	assert.Equal(t, "34", byKey["age"].Value)
	require.Contains(t, byKey, "hair_color")
	assert.Equal(t, "negro", byKey["hair_color"].Value)
	require.Contains(t, byKey, "relationship")
	assert.Equal(t, "hermano", byKey["relationship"].Value)
}

func TestExtractRespectsCategoryGate(t *testing.T) {
	text := "La taberna era alta y su hermano la regentaba con mano dura desde siempre."
	mention := &types.Mention{Surface: "la taberna", StartChar: 0, EndChar: 10}

	e := NewExtractor()
	// Locations admit physical but not relational attributes.
	extractions := e.Extract(text, types.EntityLocation, 9, []*types.Mention{mention}, nil)
	for _, ex := range extractions {
		assert.NotEqual(t, types.AttributeRelational, ex.Attribute.Category)
	}
}

func TestValidate(t *testing.T) {
	ok := &types.Attribute{Category: types.AttributePsychological}
	assert.NoError(t, Validate(types.EntityCharacter, ok))

	bad := &types.Attribute{Category: types.AttributePsychological}
	err := Validate(types.EntityLocation, bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not allowed"))
}

func TestExtractDeduplicates(t *testing.T) {
	text := "Tenía los ojos azules. Siempre los ojos azules."
	m1 := &types.Mention{Surface: "ella", StartChar: 0, EndChar: 5}
	m2 := &types.Mention{Surface: "ella", StartChar: 25, EndChar: 30}

	e := NewExtractor()
	extractions := e.Extract(text, types.EntityCharacter, 1, []*types.Mention{m1, m2}, nil)

	count := 0
	for _, ex := range extractions {
		if ex.Attribute.Key == "eye_color" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical key=value facts collapse")
}
