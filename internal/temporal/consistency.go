package temporal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/pauubach/narrassist/internal/types"
)

// Inconsistency is a temporal contradiction found in the timeline.
type Inconsistency struct {
	Kind        string  `json:"kind"` // impossible_age, reversed_order, contradictory_dates
	Description string  `json:"description"`
	Chapter     int     `json:"chapter"`
	StartChar   int     `json:"start_char"`
	Confidence  float64 `json:"confidence"`
	EntityID    int64   `json:"entity_id,omitempty"`
}

// CheckConsistency inspects the built timeline for impossible ages,
// reversed orderings and contradictory dates. Event ordering is
// modeled as a directed graph over day offsets; a cycle in the
// precedence relation is a reversed-order contradiction.
func CheckConsistency(tl *Timeline) []Inconsistency {
	var out []Inconsistency
	out = append(out, checkAges(tl)...)
	out = append(out, checkOrdering(tl)...)
	out = append(out, checkDates(tl)...)
	return out
}

// checkAges flags entities that get younger as the story moves
// forward, and ages outside a human range.
func checkAges(tl *Timeline) []Inconsistency {
	var out []Inconsistency
	lastAge := make(map[int64]int)     // entity → last seen age
	lastOffset := make(map[int64]int)  // entity → day offset at that age

	for _, ev := range tl.Events {
		if ev.TemporalInstanceID == "" {
			continue
		}
		parts := strings.SplitN(ev.TemporalInstanceID, "@", 2)
		if len(parts) != 2 {
			continue
		}
		age, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		if age > 130 {
			out = append(out, Inconsistency{
				Kind:        "impossible_age",
				Description: fmt.Sprintf("%s: edad %d fuera de rango humano", parts[0], age),
				Chapter:     ev.Chapter,
				StartChar:   ev.StartChar,
				Confidence:  0.9,
				EntityID:    ev.EntityID,
			})
			continue
		}
		if prev, ok := lastAge[ev.EntityID]; ok {
			if ev.DayOffset > lastOffset[ev.EntityID] && age < prev {
				out = append(out, Inconsistency{
					Kind: "impossible_age",
					Description: fmt.Sprintf(
						"%s: edad %d tras haber tenido %d más atrás en la historia",
						parts[0], age, prev),
					Chapter:    ev.Chapter,
					StartChar:  ev.StartChar,
					Confidence: 0.8,
					EntityID:   ev.EntityID,
				})
			}
		}
		lastAge[ev.EntityID] = age
		lastOffset[ev.EntityID] = ev.DayOffset
	}
	return out
}

// checkOrdering builds precedence edges between consecutive
// chronological events; every step back in day offset is a reversed
// ordering the narrative does not declare as analepsis, reported with
// higher confidence when its edge would close a cycle.
func checkOrdering(tl *Timeline) []Inconsistency {
	g := graph.New(func(i int) int { return i }, graph.Directed(), graph.PreventCycles())

	var out []Inconsistency
	prevIdx := -1
	for i, ev := range tl.Events {
		if ev.Order != types.OrderChronological {
			prevIdx = -1 // declared jumps reset the precedence chain
			continue
		}
		if err := g.AddVertex(i); err != nil {
			continue
		}
		if prevIdx >= 0 {
			prev := tl.Events[prevIdx]
			if ev.DayOffset < prev.DayOffset {
				// Narration moved forward while story time moved back
				// without a declared analepsis.
				if err := g.AddEdge(i, prevIdx); err != nil {
					out = append(out, Inconsistency{
						Kind: "reversed_order",
						Description: fmt.Sprintf(
							"salto temporal hacia atrás no declarado (día %d tras día %d)",
							ev.DayOffset, prev.DayOffset),
						Chapter:    ev.Chapter,
						StartChar:  ev.StartChar,
						Confidence: 0.7,
					})
				} else {
					out = append(out, Inconsistency{
						Kind: "reversed_order",
						Description: fmt.Sprintf(
							"orden narrativo retrocede del día %d al %d sin marca de analepsis",
							prev.DayOffset, ev.DayOffset),
						Chapter:    ev.Chapter,
						StartChar:  ev.StartChar,
						Confidence: 0.6,
					})
				}
			} else {
				_ = g.AddEdge(prevIdx, i)
			}
		}
		prevIdx = i
	}
	return out
}

// checkDates flags two exact dates assigned to the same day offset
// that disagree.
func checkDates(tl *Timeline) []Inconsistency {
	var out []Inconsistency
	byOffset := make(map[int]string)
	for _, ev := range tl.Events {
		if ev.Resolution != types.ResolutionExactDate || ev.StoryDate == "" {
			continue
		}
		if prev, ok := byOffset[ev.DayOffset]; ok && prev != ev.StoryDate {
			out = append(out, Inconsistency{
				Kind: "contradictory_dates",
				Description: fmt.Sprintf(
					"el mismo día narrativo recibe fechas distintas (%s y %s)",
					prev, ev.StoryDate),
				Chapter:    ev.Chapter,
				StartChar:  ev.StartChar,
				Confidence: 0.85,
			})
			continue
		}
		byOffset[ev.DayOffset] = ev.StoryDate
	}
	return out
}
