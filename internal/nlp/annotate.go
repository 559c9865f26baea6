// Package nlp turns raw manuscript text into typed mentions.
//
// Morphological analysis itself is an external capability: the
// Annotator interface is what a spaCy-backed sidecar (or any other
// tagger) implements. The package degrades to a lexicon-driven
// extraction when no annotator is configured.
package nlp

import "context"

// Span is a half-open character range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Morph carries the morphological features the pipeline consumes.
type Morph struct {
	Gender   string `json:"gender,omitempty"`   // Masc, Fem
	Number   string `json:"number,omitempty"`   // Sing, Plur
	Person   string `json:"person,omitempty"`   // 1, 2, 3
	VerbForm string `json:"verb_form,omitempty"` // Fin, Part, Inf, Ger
}

// Token is a single analyzed token.
type Token struct {
	I        int    `json:"i"`        // token index in the document
	Text     string `json:"text"`
	Lemma    string `json:"lemma"`
	Idx      int    `json:"idx"`      // character offset
	Pos      string `json:"pos"`      // UPOS tag
	Dep      string `json:"dep"`      // dependency relation
	HeadI    int    `json:"head_i"`   // token index of the head
	SentIdx  int    `json:"sent_idx"` // 0-based dense sentence index
	Morph    Morph  `json:"morph"`
}

// NamedEntity is a span the tagger labeled PERSON/LOC/ORG.
type NamedEntity struct {
	Text       string `json:"text"`
	Label      string `json:"label"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	StartToken int    `json:"start_token"`
}

// NounChunk is a base noun phrase.
type NounChunk struct {
	Text      string `json:"text"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	RootI     int    `json:"root_i"` // token index of the chunk head
}

// Annotation is a full token-level analysis of a document.
type Annotation struct {
	Tokens    []Token       `json:"tokens"`
	Sentences []Span        `json:"sentences"`
	Entities  []NamedEntity `json:"entities"`
	Chunks    []NounChunk   `json:"chunks"`
}

// Annotator produces token-level annotations for Spanish prose.
type Annotator interface {
	Annotate(ctx context.Context, text string) (*Annotation, error)
}

// TokenAt returns the token covering a character offset, or nil.
func (a *Annotation) TokenAt(offset int) *Token {
	for i := range a.Tokens {
		t := &a.Tokens[i]
		if t.Idx <= offset && offset < t.Idx+len(t.Text) {
			return t
		}
	}
	return nil
}

// SentenceIndex returns the dense sentence index for an offset. When
// the annotation has no sentences the token index is returned instead,
// so indices from different backends must not be compared.
func (a *Annotation) SentenceIndex(offset int) int {
	for i, s := range a.Sentences {
		if s.Start <= offset && offset < s.End {
			return i
		}
	}
	if t := a.TokenAt(offset); t != nil {
		return t.I
	}
	return 0
}
