package feedback

import (
	"regexp"
	"strings"
)

// Section numbers of the rubric answer.
const (
	sectionSummary      = 1
	sectionScores       = 2
	sectionStrengths    = 3
	sectionImprovements = 4
)

var sectionKeywords = map[int][]string{
	sectionSummary:      {"整體表現總結", "整體總結", "表現總結", "總結", "feedback summary", "summary"},
	sectionScores:       {"各項評分", "評分", "分數", "scores", "score"},
	sectionStrengths:    {"優點", "做得好", "strengths", "strength"},
	sectionImprovements: {"改進建議", "改善建議", "改進", "建議", "improvements", "improvement"},
}

// numberedHeading matches "1.", "## 2、", "**3)**" and similar at the start of a line.
var numberedHeading = regexp.MustCompile(`^\s*(?:#{1,6}\s*)?(?:\*\*)?\s*([1-4])\s*[.、)．]`)

// headingDecor is stripped before comparing a line against section keywords.
var headingDecor = regexp.MustCompile(`^[\s#*\[【]+|[\s*\]】:：]+$`)

type span struct {
	heading int // line index of the heading
	start   int // first body line
	end     int // one past the last body line
}

// document is the rubric answer split into lines with the located sections.
type document struct {
	lines    []string
	sections map[int]span
}

func newDocument(raw string) *document {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return &document{lines: strings.Split(text, "\n"), sections: map[int]span{}}
}

// locateSections first finds headings that carry their section keyword, in
// order. Sections still missing are then searched by number alone, bounded by
// the neighbouring located headings, so a numbered list item inside a later
// section never claims an earlier section number.
func (d *document) locateSections() {
	headings := map[int]int{}
	cursor := 0
	for n := sectionSummary; n <= sectionImprovements; n++ {
		if idx := d.findKeywordHeading(n, cursor); idx >= 0 {
			headings[n] = idx
			cursor = idx + 1
		}
	}

	for n := sectionSummary; n <= sectionImprovements; n++ {
		if _, ok := headings[n]; ok {
			continue
		}
		lo, hi := 0, len(d.lines)
		for other, idx := range headings {
			if other < n && idx+1 > lo {
				lo = idx + 1
			}
			if other > n && idx < hi {
				hi = idx
			}
		}
		if idx := d.findNumbered(n, lo, hi); idx >= 0 {
			headings[n] = idx
		}
	}

	for n, idx := range headings {
		end := len(d.lines)
		for _, other := range headings {
			if other > idx && other < end {
				end = other
			}
		}
		d.sections[n] = span{heading: idx, start: idx + 1, end: end}
	}
}

// findKeywordHeading prefers "n. keyword" lines, then bare keyword headings.
func (d *document) findKeywordHeading(n, from int) int {
	keywordOnly := -1
	for i := from; i < len(d.lines); i++ {
		line := d.lines[i]
		if numberIs(line, n) {
			if hasKeyword(line, n) {
				return i
			}
			continue
		}
		if keywordOnly < 0 && isKeywordHeading(line, n) {
			keywordOnly = i
		}
	}
	return keywordOnly
}

func (d *document) findNumbered(n, from, to int) int {
	for i := from; i < to; i++ {
		if numberIs(d.lines[i], n) {
			return i
		}
	}
	return -1
}

func numberIs(line string, n int) bool {
	m := numberedHeading.FindStringSubmatch(line)
	return m != nil && m[1] == string(rune('0'+n))
}

func hasKeyword(line string, n int) bool {
	lower := strings.ToLower(line)
	for _, kw := range sectionKeywords[n] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isKeywordHeading accepts short lines such as "[Scores]" or "**優點：**".
func isKeywordHeading(line string, n int) bool {
	bare := strings.ToLower(headingDecor.ReplaceAllString(line, ""))
	if bare == "" || len([]rune(bare)) > 24 {
		return false
	}
	for _, kw := range sectionKeywords[n] {
		if strings.HasPrefix(bare, kw) {
			return true
		}
	}
	return false
}

// body returns the lines of section n and whether it was located.
func (d *document) body(n int) ([]string, bool) {
	s, ok := d.sections[n]
	if !ok {
		return nil, false
	}
	return d.lines[s.start:s.end], true
}

// headingRest returns whatever follows the label on the heading line itself,
// as in "1. 整體表現總結：表現穩定".
func (d *document) headingRest(n int) string {
	s, ok := d.sections[n]
	if !ok {
		return ""
	}
	line := numberedHeading.ReplaceAllString(d.lines[s.heading], "")
	line = strings.TrimLeft(line, " *#[【")
	for _, kw := range sectionKeywords[n] {
		if rest, ok := cutPrefixFold(line, kw); ok {
			line = rest
			break
		}
	}
	return strings.TrimSpace(strings.TrimLeft(line, " *]】:："))
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
