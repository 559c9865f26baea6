// Package temporal extracts time markers from the manuscript, builds
// the story timeline (day offsets, weekdays, per-entity temporal
// instances) and reports inconsistencies.
package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pauubach/narrassist/internal/types"
)

// Marker kinds.
const (
	KindAbsoluteDate = "absolute_date"
	KindDuration     = "duration"
	KindAge          = "age"
	KindWeekday      = "weekday"
	KindDeictic      = "deictic"
)

var spanishMonths = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5,
	"junio": 6, "julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9,
	"octubre": 10, "noviembre": 11, "diciembre": 12,
}

var spanishWeekdays = []string{
	"lunes", "martes", "miércoles", "jueves", "viernes", "sábado", "domingo",
}

var durationUnits = map[string]int{
	"día": 1, "días": 1, "semana": 7, "semanas": 7,
	"mes": 30, "meses": 30, "año": 365, "años": 365,
}

var (
	reAbsoluteDate = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)(?:\s+de\s+(\d{4}))?\b`)
	reYearOnly     = regexp.MustCompile(`(?i)\ben\s+(?:el\s+año\s+)?(\d{4})\b`)
	reMonthYear    = regexp.MustCompile(`(?i)\ben\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)(?:\s+de\s+(\d{4}))?\b`)
	reDuration     = regexp.MustCompile(`(?i)\b(?:(\d+|un|una|dos|tres|cuatro|cinco|seis|siete|ocho|nueve|diez)\s+)(día|días|semana|semanas|mes|meses|año|años)\s+(después|más tarde|antes|atrás)\b`)
	reAge          = regexp.MustCompile(`(?i)\b(?:tenía|cumplió|cumplía|a\s+los)\s+(\d{1,3})\s+años\b`)
	reWeekday      = regexp.MustCompile(`(?i)\b(lunes|martes|miércoles|jueves|viernes|sábado|domingo)\b`)
	reDeictic      = regexp.MustCompile(`(?i)\b(ayer|hoy|mañana|anoche|anteayer|al día siguiente|esa misma noche|aquella mañana|al amanecer|al anochecer)\b`)
)

var numberWords = map[string]int{
	"un": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
}

// ExtractMarkers finds temporal expressions in a chapter's text,
// producing markers with document-absolute offsets.
func ExtractMarkers(chapter *types.Chapter) []types.TemporalMarker {
	text := chapter.Content
	base := chapter.StartChar
	var out []types.TemporalMarker

	add := func(loc []int, kind, value string) {
		out = append(out, types.TemporalMarker{
			Chapter:   chapter.ChapterNumber,
			StartChar: base + loc[0],
			EndChar:   base + loc[1],
			Surface:   text[loc[0]:loc[1]],
			Kind:      kind,
			Value:     value,
		})
	}

	for _, loc := range reAbsoluteDate.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month := spanishMonths[strings.ToLower(text[loc[4]:loc[5]])]
		year := 0
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(text[loc[6]:loc[7]])
		}
		add(loc[:2], KindAbsoluteDate, fmt.Sprintf("%04d-%02d-%02d", year, month, day))
	}
	for _, loc := range reMonthYear.FindAllStringSubmatchIndex(text, -1) {
		month := spanishMonths[strings.ToLower(text[loc[2]:loc[3]])]
		year := 0
		if loc[4] >= 0 {
			year, _ = strconv.Atoi(text[loc[4]:loc[5]])
		}
		add(loc[:2], KindAbsoluteDate, fmt.Sprintf("%04d-%02d-00", year, month))
	}
	for _, loc := range reYearOnly.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[loc[2]:loc[3]])
		add(loc[:2], KindAbsoluteDate, fmt.Sprintf("%04d-00-00", year))
	}
	for _, loc := range reDuration.FindAllStringSubmatchIndex(text, -1) {
		qty := text[loc[2]:loc[3]]
		n, err := strconv.Atoi(qty)
		if err != nil {
			n = numberWords[strings.ToLower(qty)]
		}
		unit := durationUnits[strings.ToLower(text[loc[4]:loc[5]])]
		direction := strings.ToLower(text[loc[6]:loc[7]])
		days := n * unit
		if direction == "antes" || direction == "atrás" {
			days = -days
		}
		add(loc[:2], KindDuration, strconv.Itoa(days))
	}
	for _, loc := range reAge.FindAllStringSubmatchIndex(text, -1) {
		add(loc[:2], KindAge, text[loc[2]:loc[3]])
	}
	for _, loc := range reWeekday.FindAllStringSubmatchIndex(text, -1) {
		add(loc[:2], KindWeekday, strings.ToLower(text[loc[0]:loc[1]]))
	}
	for _, loc := range reDeictic.FindAllStringSubmatchIndex(text, -1) {
		add(loc[:2], KindDeictic, deicticOffset(strings.ToLower(text[loc[0]:loc[1]])))
	}
	return out
}

// deicticOffset maps a deictic expression to a day delta from the
// narrative present.
func deicticOffset(surface string) string {
	switch surface {
	case "ayer", "anoche":
		return "-1"
	case "anteayer":
		return "-2"
	case "mañana", "al día siguiente":
		return "1"
	default:
		return "0"
	}
}
