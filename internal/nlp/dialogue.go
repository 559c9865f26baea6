package nlp

import "strings"

// DialogueSpan is a single attributed-or-unattributed utterance.
type DialogueSpan struct {
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Text      string `json:"text"`
}

// InDialogue reports whether a character range sits inside spoken
// dialogue. Dash dialogues (—, –, -) and paired quotes («» or "") are
// recognized; the first closing mark ends the utterance, so material
// after it is narration.
func InDialogue(text string, startChar, endChar int) bool {
	lineStart := strings.LastIndexByte(text[:clampIdx(text, startChar)], '\n')
	if lineStart == -1 {
		lineStart = 0
	} else {
		lineStart++
	}

	lineEnd := endChar + 50
	if lineEnd > len(text) {
		lineEnd = len(text)
	}
	line := text[lineStart:lineEnd]
	relPos := startChar - lineStart

	stripped := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(stripped, "-") || strings.HasPrefix(stripped, "—") || strings.HasPrefix(stripped, "–") {
		// Dash dialogue: the second dash closes the utterance; what
		// follows belongs to the narrator.
		var dashPositions []int
		for i, r := range line {
			if r == '-' || r == '—' || r == '–' {
				dashPositions = append(dashPositions, i)
			}
		}
		if len(dashPositions) >= 2 && relPos > dashPositions[1] {
			return false
		}
		return true
	}

	before := line
	if relPos >= 0 && relPos <= len(line) {
		before = line[:relPos]
	}
	openSpanish := strings.Count(before, "«") - strings.Count(before, "»")
	openEnglish := strings.Count(before, `"`)%2 == 1
	return openSpanish > 0 || openEnglish
}

// ExtractDialogues returns all dialogue utterances in a chapter text,
// in document order, with offsets relative to the given base.
func ExtractDialogues(text string, base int) []DialogueSpan {
	var spans []DialogueSpan

	for _, line := range splitLinesWithOffsets(text) {
		stripped := strings.TrimLeft(line.text, " \t")
		pad := len(line.text) - len(stripped)
		switch {
		case strings.HasPrefix(stripped, "—"), strings.HasPrefix(stripped, "–"), strings.HasPrefix(stripped, "- "):
			span := dashUtterance(stripped)
			if span.Text != "" {
				span.StartChar += base + line.offset + pad
				span.EndChar += base + line.offset + pad
				spans = append(spans, span)
			}
		default:
			spans = append(spans, quotedUtterances(line.text, base+line.offset)...)
		}
	}
	return spans
}

type offsetLine struct {
	offset int
	text   string
}

func splitLinesWithOffsets(text string) []offsetLine {
	var lines []offsetLine
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, offsetLine{offset: start, text: text[start:i]})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, offsetLine{offset: start, text: text[start:]})
	}
	return lines
}

// dashUtterance extracts the spoken part of a dash-opened line: from
// after the opening dash up to the next dash (speaker tag) or the line
// end.
func dashUtterance(line string) DialogueSpan {
	runes := []rune(line)
	if len(runes) < 2 {
		return DialogueSpan{}
	}
	// Skip the opening dash and following space.
	start := 1
	for start < len(runes) && runes[start] == ' ' {
		start++
	}
	end := len(runes)
	for i := start; i < len(runes); i++ {
		if runes[i] == '—' || runes[i] == '–' {
			end = i
			break
		}
	}
	content := strings.TrimSpace(string(runes[start:end]))
	if content == "" {
		return DialogueSpan{}
	}
	byteStart := len(string(runes[:start]))
	byteEnd := len(string(runes[:end]))
	return DialogueSpan{StartChar: byteStart, EndChar: byteEnd, Text: content}
}

func quotedUtterances(line string, base int) []DialogueSpan {
	var spans []DialogueSpan
	open := -1
	for i, r := range line {
		switch r {
		case '«':
			open = i + len("«")
		case '»':
			if open >= 0 && i > open {
				content := strings.TrimSpace(line[open:i])
				if content != "" {
					spans = append(spans, DialogueSpan{
						StartChar: base + open,
						EndChar:   base + i,
						Text:      content,
					})
				}
			}
			open = -1
		case '"':
			if open < 0 {
				open = i + 1
			} else {
				content := strings.TrimSpace(line[open:i])
				if content != "" {
					spans = append(spans, DialogueSpan{
						StartChar: base + open,
						EndChar:   base + i,
						Text:      content,
					})
				}
				open = -1
			}
		}
	}
	return spans
}

func clampIdx(text string, i int) int {
	if i < 0 {
		return 0
	}
	if i > len(text) {
		return len(text)
	}
	return i
}
