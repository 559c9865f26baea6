// Package attributes extracts physical, psychological and relational
// facts about entities from their mention contexts, validating each
// category against the entity type.
package attributes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// pattern binds a regex to an attribute key and category. Group 1
// captures the value.
type pattern struct {
	re       *regexp.Regexp
	key      string
	category types.AttributeCategory
}

var patterns = []pattern{
	// Physical.
	{regexp.MustCompile(`(?i)\bojos\s+(azules|verdes|negros|marrones|grises|claros|oscuros)\b`), "eye_color", types.AttributePhysical},
	{regexp.MustCompile(`(?i)\b(?:pelo|cabello)\s+(rubio|moreno|negro|castaño|rojo|pelirrojo|cano|blanco|gris)\b`), "hair_color", types.AttributePhysical},
	{regexp.MustCompile(`(?i)\bera\s+(alto|alta|bajo|baja|delgado|delgada|corpulento|corpulenta|fornido|fornida)\b`), "build", types.AttributePhysical},
	{regexp.MustCompile(`(?i)\btenía\s+(\d{1,3})\s+años\b`), "age", types.AttributePhysical},
	{regexp.MustCompile(`(?i)\bcicatriz\s+(?:en\s+)?(la\s+\w+|el\s+\w+)\b`), "scar", types.AttributePhysical},
	// Psychological.
	{regexp.MustCompile(`(?i)\bera\s+(tímido|tímida|valiente|cobarde|amable|cruel|inteligente|astuto|astuta|orgulloso|orgullosa|melancólico|melancólica|alegre|reservado|reservada)\b`), "personality", types.AttributePsychological},
	{regexp.MustCompile(`(?i)\bse\s+sentía\s+(culpable|sola|solo|feliz|triste|perdido|perdida|angustiado|angustiada)\b`), "emotional_state", types.AttributePsychological},
	// Relational.
	{regexp.MustCompile(`(?i)\b(?:su|la|el)\s+(padre|madre|hermano|hermana|esposo|esposa|marido|mujer|hijo|hija|abuelo|abuela|tío|tía|primo|prima|amigo|amiga|jefe|jefa)\b`), "relationship", types.AttributeRelational},
}

// Extraction ties a found attribute to its evidence position.
type Extraction struct {
	Attribute types.Attribute
	StartChar int
}

// Extractor scans mention contexts for attribute patterns.
type Extractor struct {
	// window is how far around each mention the extractor looks.
	window int
}

func NewExtractor() *Extractor {
	return &Extractor{window: 150}
}

// Extract finds attributes for an entity from the full text and the
// entity's mentions. Categories not allowed for the entity type are
// dropped.
func (e *Extractor) Extract(text string, entityType types.EntityType, entityID int64, mentions []*types.Mention, chapters []types.Chapter) []Extraction {
	var out []Extraction
	seen := make(map[string]bool) // key+value dedup

	for _, m := range mentions {
		start := m.StartChar - e.window/3
		if start < 0 {
			start = 0
		}
		end := m.EndChar + e.window
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		for _, p := range patterns {
			if !types.CategoryAllowed(entityType, p.category) {
				continue
			}
			loc := p.re.FindStringSubmatchIndex(window)
			if loc == nil || len(loc) < 4 {
				continue
			}
			value := strings.ToLower(strings.TrimSpace(window[loc[2]:loc[3]]))
			dedupKey := p.key + "=" + value
			if seen[dedupKey] {
				continue
			}
			seen[dedupKey] = true

			chapter := 0
			if idx := chapterNumberAt(chapters, start+loc[0]); idx > 0 {
				chapter = idx
			}
			out = append(out, Extraction{
				Attribute: types.Attribute{
					EntityID:            entityID,
					Category:            p.category,
					Key:                 p.key,
					Value:               value,
					Confidence:          0.7,
					FirstMentionChapter: chapter,
				},
				StartChar: start + loc[0],
			})
		}
	}
	return out
}

// Validate rejects an attribute whose category the entity type does
// not allow.
func Validate(entityType types.EntityType, a *types.Attribute) error {
	if !types.CategoryAllowed(entityType, a.Category) {
		return fmt.Errorf("category %q not allowed for entity type %q", a.Category, entityType)
	}
	return nil
}

func chapterNumberAt(chapters []types.Chapter, offset int) int {
	for _, ch := range chapters {
		if ch.StartChar <= offset && offset < ch.EndChar {
			return ch.ChapterNumber
		}
	}
	return 0
}
