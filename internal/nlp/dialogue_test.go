package nlp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInDialogue(t *testing.T) {
	tests := []struct {
		name string
		text string
		word string
		want bool
	}{
		{
			name: "inside dash dialogue",
			text: "—Yo no sé nada —dijo María.",
			word: "Yo",
			want: true,
		},
		{
			name: "after closing dash is narration",
			text: "—No vengas —dijo, y yo me quedé quieta.",
			word: "yo",
			want: false,
		},
		{
			name: "inside spanish quotes",
			text: "María pensó: «yo nunca volveré a este lugar».",
			word: "yo",
			want: true,
		},
		{
			name: "inside double quotes",
			text: `Dijo "yo me voy" y salió.`,
			word: "yo",
			want: true,
		},
		{
			name: "plain narration",
			text: "Yo caminaba despacio por la orilla.",
			word: "Yo",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := strings.Index(tt.text, tt.word)
			require.GreaterOrEqual(t, idx, 0)
			got := InDialogue(tt.text, idx, idx+len(tt.word))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDialoguesDash(t *testing.T) {
	text := "El sol caía a plomo.\n—¿Vienes o no? —preguntó Juan.\nElla dudó un instante.\n—Claro que voy.\n"
	spans := ExtractDialogues(text, 0)
	require.Len(t, spans, 2)
	assert.Equal(t, "¿Vienes o no?", spans[0].Text)
	assert.Equal(t, "Claro que voy.", spans[1].Text)

	// Offsets point back into the original text.
	for _, s := range spans {
		assert.Equal(t, s.Text, strings.TrimSpace(text[s.StartChar:s.EndChar]))
	}
}

func TestExtractDialoguesQuotes(t *testing.T) {
	text := "María lo miró. «No pienso repetirlo», dijo al fin."
	spans := ExtractDialogues(text, 0)
	require.Len(t, spans, 1)
	assert.Equal(t, "No pienso repetirlo", spans[0].Text)
}

func TestExtractDialoguesWithBase(t *testing.T) {
	text := "—Hola.\n"
	spans := ExtractDialogues(text, 1000)
	require.Len(t, spans, 1)
	assert.GreaterOrEqual(t, spans[0].StartChar, 1000)
}
