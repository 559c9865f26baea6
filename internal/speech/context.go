package speech

import (
	"regexp"
	"sort"
	"strings"
)

// NarrativeContext is a dramatic event found between two speech
// windows that can justify a voice change.
type NarrativeContext struct {
	HasDramaticEvent bool     `json:"has_dramatic_event"`
	EventType        string   `json:"event_type,omitempty"`
	KeywordsFound    []string `json:"keywords_found,omitempty"`
}

// dramaticEvents keys event types to their keyword lists.
var dramaticEvents = map[string][]string{
	"muerte": {
		"murió", "muerto", "falleció", "fallecimiento", "funeral",
		"entierro", "luto", "difunto", "cadáver", "asesinato",
		"suicidio", "velatorio", "cementerio",
	},
	"boda": {
		"boda", "casó", "casaron", "matrimonio", "esposa", "esposo",
		"ceremonia", "altar", "votos", "anillos",
	},
	"pelea": {
		"pelea", "pelearon", "discutieron", "gritó", "gritaron",
		"furioso", "enojado", "golpeó", "puñetazo", "confrontación",
	},
	"trauma": {
		"accidente", "herido", "herida", "sangre", "hospital",
		"emergencia", "shock", "trauma", "agresión", "secuestro",
	},
	"enfermedad": {
		"enfermedad", "enfermo", "diagnóstico", "cáncer", "tumor",
		"tratamiento", "quimioterapia", "terminal",
	},
	"viaje": {
		"viaje", "viajó", "partió", "mudanza", "emigró", "exilio",
		"destierro", "regresó",
	},
	"revelacion": {
		"secreto", "reveló", "confesó", "descubrió", "mentira",
		"engaño", "traición", "infidelidad",
	},
}

// eventWeights grade how strongly each event type justifies a voice
// change.
var eventWeights = map[string]float64{
	"muerte":     1.0,
	"trauma":     0.9,
	"enfermedad": 0.8,
	"revelacion": 0.7,
	"pelea":      0.6,
	"boda":       0.5,
	"viaje":      0.4,
}

// highImpactEvents always justify a change regardless of confidence.
var highImpactEvents = map[string]bool{
	"muerte": true, "trauma": true, "enfermedad": true,
}

// ContextualAnalyzer scans chapter texts for dramatic event keywords.
type ContextualAnalyzer struct {
	compiled map[string][]*regexp.Regexp
}

func NewContextualAnalyzer() *ContextualAnalyzer {
	compiled := make(map[string][]*regexp.Regexp, len(dramaticEvents))
	for event, keywords := range dramaticEvents {
		for _, kw := range keywords {
			pattern := `(?i)\b` + regexp.QuoteMeta(kw)
			// \b is ASCII-only and never matches after an accented
			// final letter, so it is applied to ASCII endings only.
			if kw[len(kw)-1] < 0x80 {
				pattern += `\b`
			}
			compiled[event] = append(compiled[event], regexp.MustCompile(pattern))
		}
	}
	return &ContextualAnalyzer{compiled: compiled}
}

// Analyze returns the strongest detected event across the given
// chapter texts, or a context with HasDramaticEvent=false.
func (a *ContextualAnalyzer) Analyze(chapterTexts []string) *NarrativeContext {
	if len(chapterTexts) == 0 {
		return &NarrativeContext{}
	}
	combined := strings.ToLower(strings.Join(chapterTexts, " "))

	type scored struct {
		event    string
		score    float64
		keywords []string
	}
	var found []scored
	for event, patterns := range a.compiled {
		var keywords []string
		for _, re := range patterns {
			keywords = append(keywords, re.FindAllString(combined, -1)...)
		}
		if len(keywords) > 0 {
			weight := eventWeights[event]
			found = append(found, scored{
				event:    event,
				score:    float64(len(keywords)) * weight,
				keywords: keywords,
			})
		}
	}
	if len(found) == 0 {
		return &NarrativeContext{}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].score != found[j].score {
			return found[i].score > found[j].score
		}
		return found[i].event < found[j].event
	})
	top := found[0]
	if len(top.keywords) > 5 {
		top.keywords = top.keywords[:5]
	}
	return &NarrativeContext{
		HasDramaticEvent: true,
		EventType:        top.event,
		KeywordsFound:    top.keywords,
	}
}

// ShouldReduceSeverity reports whether the event justifies lowering an
// alert one step: high-impact events always do, medium-impact events
// only under very high confidence do not.
func (c *NarrativeContext) ShouldReduceSeverity(confidence float64) bool {
	if !c.HasDramaticEvent {
		return false
	}
	if highImpactEvents[c.EventType] {
		return true
	}
	switch c.EventType {
	case "revelacion", "pelea":
		return confidence < 0.85
	}
	return false
}
