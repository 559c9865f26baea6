package speech

import "fmt"

// Window groups a character's dialogues over a chapter range.
type Window struct {
	CharacterID   int64
	CharacterName string
	StartChapter  int // 1-based, inclusive
	EndChapter    int // 1-based, inclusive
	Dialogues     []string
	TotalWords    int
}

// ChapterRange renders "3" or "1-3" for the review surface.
func (w *Window) ChapterRange() string {
	if w.StartChapter == w.EndChapter {
		return fmt.Sprintf("%d", w.StartChapter)
	}
	return fmt.Sprintf("%d-%d", w.StartChapter, w.EndChapter)
}

// DialogueCount is the number of lines in the window.
func (w *Window) DialogueCount() int { return len(w.Dialogues) }

// SlidingWindows partitions a character's dialogues (grouped by
// chapter number) into overlapping chapter windows. Windows with
// fewer than minWords are discarded.
//
// With chapters 1..6, size 3, overlap 1: windows are 1-3, 3-5, 5-6.
func SlidingWindows(
	characterID int64,
	characterName string,
	dialoguesByChapter map[int][]string,
	chapterCount, size, overlap, minWords int,
) []*Window {
	if chapterCount == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	build := func(startCh, endCh int) *Window {
		w := &Window{
			CharacterID:   characterID,
			CharacterName: characterName,
			StartChapter:  startCh,
			EndChapter:    endCh,
		}
		for ch := startCh; ch <= endCh; ch++ {
			for _, d := range dialoguesByChapter[ch] {
				w.Dialogues = append(w.Dialogues, d)
				w.TotalWords += wordCount(d)
			}
		}
		if w.TotalWords < minWords {
			return nil
		}
		return w
	}

	if chapterCount < size {
		if w := build(1, chapterCount); w != nil {
			return []*Window{w}
		}
		return nil
	}

	var windows []*Window
	for start := 1; start <= chapterCount; start += step {
		end := start + size - 1
		if end > chapterCount {
			end = chapterCount
		}
		if w := build(start, end); w != nil {
			windows = append(windows, w)
		}
		if end == chapterCount {
			break
		}
	}
	return windows
}

func wordCount(s string) int {
	n, inWord := 0, false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}
