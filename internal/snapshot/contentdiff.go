// Package snapshot captures pre-analysis state and classifies alerts
// across runs: new, resolved because the text changed, resolved
// because the detector improved, or unchanged.
package snapshot

import (
	"crypto/md5"
	"regexp"
	"sort"
	"strings"
)

// paragraphSplit separates on blank lines or indentation.
var paragraphSplit = regexp.MustCompile(`\n\s*\n|\n\s{2,}`)

// TextRange is a character range inside a chapter.
type TextRange struct {
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Text      string `json:"text,omitempty"`
}

// ChapterDiff is the paragraph-level comparison of one chapter across
// two document versions.
type ChapterDiff struct {
	ChapterNumber int     `json:"chapter_number"`
	Status        string  `json:"status"` // unchanged, modified, added, removed
	Similarity    float64 `json:"similarity"`

	AddedRanges   []TextRange `json:"added_ranges,omitempty"`
	RemovedRanges []TextRange `json:"removed_ranges,omitempty"`

	ParagraphsAdded     int `json:"paragraphs_added"`
	ParagraphsRemoved   int `json:"paragraphs_removed"`
	ParagraphsModified  int `json:"paragraphs_modified"`
	ParagraphsUnchanged int `json:"paragraphs_unchanged"`
}

// DocumentDiff is the full cross-version comparison.
type DocumentDiff struct {
	ChapterDiffs    []ChapterDiff `json:"chapter_diffs"`
	ChaptersAdded   []int         `json:"chapters_added,omitempty"`
	ChaptersRemoved []int         `json:"chapters_removed,omitempty"`
}

// HasChanges reports whether anything differs.
func (d *DocumentDiff) HasChanges() bool {
	if len(d.ChaptersAdded) > 0 || len(d.ChaptersRemoved) > 0 {
		return true
	}
	for _, cd := range d.ChapterDiffs {
		if cd.Status != "unchanged" {
			return true
		}
	}
	return false
}

func splitParagraphs(text string) []string {
	parts := paragraphSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// paragraphPositions locates each paragraph's range in the original
// text; unlocatable paragraphs (normalized whitespace) get estimates.
func paragraphPositions(text string, paragraphs []string) [][2]int {
	positions := make([][2]int, 0, len(paragraphs))
	searchStart := 0
	for _, para := range paragraphs {
		idx := strings.Index(text[searchStart:], para)
		if idx >= 0 {
			idx += searchStart
		} else {
			idx = strings.Index(text, para)
		}
		if idx >= 0 {
			positions = append(positions, [2]int{idx, idx + len(para)})
			searchStart = idx + len(para)
		} else {
			positions = append(positions, [2]int{searchStart, searchStart + len(para)})
			searchStart += len(para)
		}
	}
	return positions
}

func quickHash(text string) [16]byte { return md5.Sum([]byte(text)) }

// opcode mirrors difflib's (tag, i1, i2, j1, j2) over paragraph lists.
type opcode struct {
	tag            string // equal, delete, insert, replace
	i1, i2, j1, j2 int
}

// opcodes computes edit operations via longest-common-subsequence over
// the two paragraph lists.
func opcodes(a, b []string) []opcode {
	n, m := len(a), len(b)
	// LCS table.
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []opcode
	i, j := 0, 0
	for i < n && j < m {
		if a[i] == b[j] {
			start := i
			for i < n && j < m && a[i] == b[j] {
				i++
				j++
			}
			ops = append(ops, opcode{"equal", start, i, j - (i - start), j})
		} else {
			di, dj := i, j
			for i < n && j < m && a[i] != b[j] {
				if lcs[i+1][j] >= lcs[i][j+1] {
					i++
				} else {
					j++
				}
			}
			if i == n || j == m {
				i, j = n, m
			}
			switch {
			case i > di && j > dj:
				ops = append(ops, opcode{"replace", di, i, dj, j})
			case i > di:
				ops = append(ops, opcode{"delete", di, i, dj, dj})
			default:
				ops = append(ops, opcode{"insert", di, di, dj, j})
			}
		}
	}
	if i < n && j < m {
		ops = append(ops, opcode{"replace", i, n, j, m})
	} else if i < n {
		ops = append(ops, opcode{"delete", i, n, j, j})
	} else if j < m {
		ops = append(ops, opcode{"insert", i, i, j, m})
	}
	return ops
}

// DiffChapterTexts compares two versions of a chapter at paragraph
// granularity, mapping opcodes back to character ranges.
func DiffChapterTexts(oldText, newText string, chapterNumber int) ChapterDiff {
	if quickHash(oldText) == quickHash(newText) {
		return ChapterDiff{
			ChapterNumber:       chapterNumber,
			Status:              "unchanged",
			Similarity:          1,
			ParagraphsUnchanged: len(splitParagraphs(oldText)),
		}
	}

	oldParas := splitParagraphs(oldText)
	newParas := splitParagraphs(newText)
	oldPos := paragraphPositions(oldText, oldParas)
	newPos := paragraphPositions(newText, newParas)

	diff := ChapterDiff{ChapterNumber: chapterNumber, Status: "modified"}

	equal := 0
	for _, op := range opcodes(oldParas, newParas) {
		switch op.tag {
		case "equal":
			diff.ParagraphsUnchanged += op.i2 - op.i1
			equal += op.i2 - op.i1
		case "delete":
			diff.ParagraphsRemoved += op.i2 - op.i1
			diff.RemovedRanges = append(diff.RemovedRanges, rangesOf(oldParas, oldPos, op.i1, op.i2)...)
		case "insert":
			diff.ParagraphsAdded += op.j2 - op.j1
			diff.AddedRanges = append(diff.AddedRanges, rangesOf(newParas, newPos, op.j1, op.j2)...)
		case "replace":
			modified := op.i2 - op.i1
			if op.j2-op.j1 > modified {
				modified = op.j2 - op.j1
			}
			diff.ParagraphsModified += modified
			diff.RemovedRanges = append(diff.RemovedRanges, rangesOf(oldParas, oldPos, op.i1, op.i2)...)
			diff.AddedRanges = append(diff.AddedRanges, rangesOf(newParas, newPos, op.j1, op.j2)...)
		}
	}

	total := len(oldParas) + len(newParas)
	if total > 0 {
		diff.Similarity = float64(2*equal) / float64(total)
	}
	return diff
}

func rangesOf(paras []string, positions [][2]int, from, to int) []TextRange {
	var out []TextRange
	for k := from; k < to && k < len(positions); k++ {
		excerpt := paras[k]
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		out = append(out, TextRange{
			StartChar: positions[k][0],
			EndChar:   positions[k][1],
			Text:      excerpt,
		})
	}
	return out
}

// ComputeChapterDiffs compares all chapters of two document versions,
// keyed by chapter number.
func ComputeChapterDiffs(oldChapters, newChapters map[int]string) *DocumentDiff {
	oldNums := make(map[int]bool, len(oldChapters))
	for n := range oldChapters {
		oldNums[n] = true
	}
	newNums := make(map[int]bool, len(newChapters))
	for n := range newChapters {
		newNums[n] = true
	}

	diff := &DocumentDiff{}
	for n := range newNums {
		if !oldNums[n] {
			diff.ChaptersAdded = append(diff.ChaptersAdded, n)
		}
	}
	for n := range oldNums {
		if !newNums[n] {
			diff.ChaptersRemoved = append(diff.ChaptersRemoved, n)
		}
	}
	sort.Ints(diff.ChaptersAdded)
	sort.Ints(diff.ChaptersRemoved)

	for _, n := range diff.ChaptersAdded {
		diff.ChapterDiffs = append(diff.ChapterDiffs, ChapterDiff{
			ChapterNumber:   n,
			Status:          "added",
			ParagraphsAdded: len(splitParagraphs(newChapters[n])),
		})
	}
	for _, n := range diff.ChaptersRemoved {
		diff.ChapterDiffs = append(diff.ChapterDiffs, ChapterDiff{
			ChapterNumber:     n,
			Status:            "removed",
			ParagraphsRemoved: len(splitParagraphs(oldChapters[n])),
		})
	}

	var common []int
	for n := range oldNums {
		if newNums[n] {
			common = append(common, n)
		}
	}
	sort.Ints(common)
	for _, n := range common {
		diff.ChapterDiffs = append(diff.ChapterDiffs, DiffChapterTexts(oldChapters[n], newChapters[n], n))
	}

	sort.Slice(diff.ChapterDiffs, func(i, j int) bool {
		return diff.ChapterDiffs[i].ChapterNumber < diff.ChapterDiffs[j].ChapterNumber
	})
	return diff
}

// InRemovedRange reports whether an alert position intersects a
// removed paragraph of its chapter (strict overlap).
func (d *DocumentDiff) InRemovedRange(chapter, startChar, endChar int) bool {
	for _, cd := range d.ChapterDiffs {
		if cd.ChapterNumber != chapter {
			continue
		}
		for _, r := range cd.RemovedRanges {
			if startChar < r.EndChar && endChar > r.StartChar {
				return true
			}
		}
	}
	return false
}

// InModifiedArea reports whether a position sits within margin
// characters of any added or removed range of its chapter.
func (d *DocumentDiff) InModifiedArea(chapter, startChar, endChar, margin int) bool {
	for _, cd := range d.ChapterDiffs {
		if cd.ChapterNumber != chapter {
			continue
		}
		for _, r := range cd.RemovedRanges {
			if startChar-margin < r.EndChar && endChar+margin > r.StartChar {
				return true
			}
		}
		for _, r := range cd.AddedRanges {
			if startChar-margin < r.EndChar && endChar+margin > r.StartChar {
				return true
			}
		}
	}
	return false
}
