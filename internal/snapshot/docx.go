package snapshot

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// wordprocessingML is the namespace of word/document.xml elements.
const wordprocessingML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// estimatedParagraphChars approximates a paragraph's length when no
// paragraph-to-offset map is available.
const estimatedParagraphChars = 500

// Revision is one tracked change inside a .docx.
type Revision struct {
	Type           string `json:"revision_type"` // insert, delete, format_change
	Text           string `json:"text"`
	Author         string `json:"author,omitempty"`
	Date           string `json:"date,omitempty"`
	ParagraphIndex int    `json:"paragraph_index"`
	CharOffset     int    `json:"char_offset"` // within the paragraph
}

// DocxRevisions is the parse result of a document's track changes.
type DocxRevisions struct {
	Revisions       []Revision `json:"revisions"`
	TotalInsertions int        `json:"total_insertions"`
	TotalDeletions  int        `json:"total_deletions"`
	Authors         []string   `json:"authors,omitempty"`
}

// HasRevisions reports whether any tracked change was found.
func (d *DocxRevisions) HasRevisions() bool { return len(d.Revisions) > 0 }

// ParseDocxRevisions opens a .docx and extracts w:ins, w:del (with
// w:delText) and rPrChange revisions with author, date, paragraph
// index and approximate character offset.
func ParseDocxRevisions(path string) (*DocxRevisions, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("no word/document.xml in %s", path)
	}
	defer docXML.Close()

	return parseDocumentXML(docXML)
}

// docx document structure, limited to what revision parsing consumes.
type docxDocument struct {
	XMLName xml.Name   `xml:"document"`
	Body    docxBody   `xml:"body"`
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
}

type docxParagraph struct {
	Children []docxParaChild `xml:",any"`
}

// docxParaChild captures w:r, w:ins and w:del in document order.
type docxParaChild struct {
	XMLName xml.Name
	Author  string     `xml:"author,attr"`
	Date    string     `xml:"date,attr"`
	Texts   []string   `xml:"t"`
	DelText []string   `xml:"delText"`
	Runs    []docxRun  `xml:"r"`
	RunProp *docxRunPr `xml:"rPr"`
}

type docxRun struct {
	Texts   []string   `xml:"t"`
	DelText []string   `xml:"delText"`
	RunProp *docxRunPr `xml:"rPr"`
}

type docxRunPr struct {
	RPrChange *docxRPrChange `xml:"rPrChange"`
}

type docxRPrChange struct {
	Author string `xml:"author,attr"`
	Date   string `xml:"date,attr"`
}

func parseDocumentXML(r io.Reader) (*DocxRevisions, error) {
	var doc docxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	out := &DocxRevisions{}
	authors := make(map[string]bool)

	for paraIdx, para := range doc.Body.Paragraphs {
		charOffset := 0
		for _, child := range para.Children {
			if child.XMLName.Space != wordprocessingML {
				continue
			}
			switch child.XMLName.Local {
			case "ins":
				text := collectText(child)
				if strings.TrimSpace(text) != "" {
					out.Revisions = append(out.Revisions, Revision{
						Type:           "insert",
						Text:           text,
						Author:         child.Author,
						Date:           child.Date,
						ParagraphIndex: paraIdx,
						CharOffset:     charOffset,
					})
					out.TotalInsertions++
					if child.Author != "" {
						authors[child.Author] = true
					}
				}
				charOffset += len(text)

			case "del":
				text := collectDelText(child)
				if strings.TrimSpace(text) != "" {
					out.Revisions = append(out.Revisions, Revision{
						Type:           "delete",
						Text:           text,
						Author:         child.Author,
						Date:           child.Date,
						ParagraphIndex: paraIdx,
						CharOffset:     charOffset,
					})
					out.TotalDeletions++
					if child.Author != "" {
						authors[child.Author] = true
					}
				}
				// Deleted text does not advance the offset.

			case "r":
				text := strings.Join(child.Texts, "")
				if child.RunProp != nil && child.RunProp.RPrChange != nil && strings.TrimSpace(text) != "" {
					out.Revisions = append(out.Revisions, Revision{
						Type:           "format_change",
						Text:           text,
						Author:         child.RunProp.RPrChange.Author,
						Date:           child.RunProp.RPrChange.Date,
						ParagraphIndex: paraIdx,
						CharOffset:     charOffset,
					})
					if a := child.RunProp.RPrChange.Author; a != "" {
						authors[a] = true
					}
				}
				charOffset += len(text)
			}
		}
	}

	for a := range authors {
		out.Authors = append(out.Authors, a)
	}
	sort.Strings(out.Authors)
	return out, nil
}

func collectText(child docxParaChild) string {
	var b strings.Builder
	for _, t := range child.Texts {
		b.WriteString(t)
	}
	for _, run := range child.Runs {
		for _, t := range run.Texts {
			b.WriteString(t)
		}
	}
	return b.String()
}

func collectDelText(child docxParaChild) string {
	var b strings.Builder
	for _, t := range child.DelText {
		b.WriteString(t)
	}
	for _, run := range child.Runs {
		for _, t := range run.DelText {
			b.WriteString(t)
		}
	}
	return b.String()
}

// DeletionCharRanges converts delete revisions into absolute character
// ranges using the provided paragraph-to-offset map, or a per-
// paragraph estimate when none is given.
func DeletionCharRanges(revisions *DocxRevisions, paragraphOffsets map[int]int) [][2]int {
	var out [][2]int
	for _, rev := range revisions.Revisions {
		if rev.Type != "delete" {
			continue
		}
		docOffset, ok := paragraphOffsets[rev.ParagraphIndex]
		if !ok {
			docOffset = rev.ParagraphIndex * estimatedParagraphChars
		}
		start := docOffset + rev.CharOffset
		out = append(out, [2]int{start, start + len(rev.Text)})
	}
	return out
}
