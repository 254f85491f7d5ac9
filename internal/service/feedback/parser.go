// Package feedback extracts a structured evaluation from the model's free-text
// rubric answer.
package feedback

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/evaluation"
)

// Parser turns a rubric answer into an evaluation.UserEvaluation. Parsing
// never fails: every field falls back to its placeholder on its own.
type Parser struct {
	logger *zap.Logger
	rules  []rule
}

type rule struct {
	name  string
	apply func(doc *document, ev *evaluation.UserEvaluation)
}

// NewParser builds a parser. A nil logger disables logging.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		logger: logger,
		rules: []rule{
			{name: "sections", apply: func(doc *document, _ *evaluation.UserEvaluation) { doc.locateSections() }},
			{name: "summary", apply: parseSummary},
			{name: "scores", apply: parseScores},
			{name: "strengths", apply: parseStrengths},
			{name: "improvements", apply: parseImprovements},
		},
	}
}

// Parse runs each extraction rule in order.
func (p *Parser) Parse(raw string) evaluation.UserEvaluation {
	ev := evaluation.New()
	doc := newDocument(raw)
	for _, r := range p.rules {
		p.run(r, doc, &ev)
	}

	p.logger.Debug("feedback parsed",
		zap.Int("sections", len(doc.sections)),
		zap.Int("scored", countScored(ev)),
		zap.Int("strengths", len(ev.Strengths)),
		zap.Int("improvements", len(ev.Improvements)),
	)
	return ev
}

func (p *Parser) run(r rule, doc *document, ev *evaluation.UserEvaluation) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("feedback rule failed, keeping defaults",
				zap.String("rule", r.name),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	r.apply(doc, ev)
}

func parseSummary(doc *document, ev *evaluation.UserEvaluation) {
	body, ok := doc.body(sectionSummary)
	if !ok {
		return
	}
	parts := make([]string, 0, len(body)+1)
	if rest := doc.headingRest(sectionSummary); rest != "" {
		parts = append(parts, rest)
	}
	for _, line := range body {
		if line = cleanText(line); line != "" {
			parts = append(parts, line)
		}
	}
	if summary := strings.Join(parts, "\n"); summary != "" {
		ev.Summary = summary
	}
}

var criterionLabels = map[evaluation.Criterion]string{
	evaluation.Clarity:         `表達清晰度|表達清晰|清晰度|clarity`,
	evaluation.Empathy:         `同理心展現|同理心|empathy`,
	evaluation.Confidence:      `自信程度|自信心|自信|confidence`,
	evaluation.Appropriateness: `言談適當性|言談得體|適當性|appropriateness`,
	evaluation.GoalAchievement: `目標達成技巧|目標達成度|目標達成|goal[ _-]?achievement`,
}

const (
	lineLead      = `^\s*(?:[-*•]|\d+\s*[.、)．])?\s*(?:\*\*)?\s*`
	justifyMarker = `(?:理由|原因|說明|justification|reason)\s*\**\s*[:：]?\s*`
)

type scorePatterns struct {
	full          *regexp.Regexp
	justification *regexp.Regexp
	scoreOnly     *regexp.Regexp
}

var criterionPatterns = compileScorePatterns()

// scoreRange matches an echoed scale such as "(0-100)" or "0 到 100" so its
// digits are never taken as the score.
var scoreRange = regexp.MustCompile(`(^|[^0-9])[(（\[<]?\s*0\s*分?\s*(?:[-~～\x{2013}\x{2014}]|到|至)\s*100\s*分?\s*[)）\]>]?`)

func compileScorePatterns() map[evaluation.Criterion]scorePatterns {
	out := make(map[evaluation.Criterion]scorePatterns, len(criterionLabels))
	for c, labels := range criterionLabels {
		label := `(?i)` + lineLead + `(?:` + labels + `)`
		out[c] = scorePatterns{
			full:          regexp.MustCompile(label + `[^0-9\n-]*?(-?\d+)[^\n]*?` + justifyMarker + `(.+)$`),
			justification: regexp.MustCompile(label + `[^\n]*?` + justifyMarker + `(.+)$`),
			scoreOnly:     regexp.MustCompile(label + `[^0-9\n-]*?(-?\d+)`),
		}
	}
	return out
}

func parseScores(doc *document, ev *evaluation.UserEvaluation) {
	body, ok := doc.body(sectionScores)
	if !ok {
		body = doc.lines
	}
	lines := make([]string, len(body))
	for i, line := range body {
		lines[i] = scoreRange.ReplaceAllString(line, "$1 ")
	}

	for _, c := range evaluation.Criteria {
		if score, found := matchScore(criterionPatterns[c], lines); found {
			ev.Scores[c] = score
		}
	}
}

func matchScore(p scorePatterns, lines []string) (evaluation.Score, bool) {
	for _, line := range lines {
		if m := p.full.FindStringSubmatch(line); m != nil {
			return evaluation.Score{Score: parseScore(m[1]), Justification: justificationOr(m[2])}, true
		}
	}
	for _, line := range lines {
		if m := p.justification.FindStringSubmatch(line); m != nil {
			return evaluation.Score{Justification: justificationOr(m[1])}, true
		}
	}
	for _, line := range lines {
		if m := p.scoreOnly.FindStringSubmatch(line); m != nil {
			return evaluation.Score{Score: parseScore(m[1]), Justification: evaluation.DefaultJustification}, true
		}
	}
	return evaluation.Score{}, false
}

func parseScore(raw string) *int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Only overflow gets here; the pattern guarantees digits.
		if strings.HasPrefix(raw, "-") {
			n = 0
		} else {
			n = 100
		}
	}
	return evaluation.IntPtr(evaluation.Clamp(n))
}

func justificationOr(raw string) string {
	if text := cleanText(raw); text != "" {
		return text
	}
	return evaluation.DefaultJustification
}

func parseStrengths(doc *document, ev *evaluation.UserEvaluation) {
	if items := bullets(doc, sectionStrengths); len(items) > 0 {
		ev.Strengths = items
	}
}

func parseImprovements(doc *document, ev *evaluation.UserEvaluation) {
	if items := bullets(doc, sectionImprovements); len(items) > 0 {
		ev.Improvements = items
	}
}

// bulletLine accepts "- x", "* x", "• x" and numbered items such as "1. x".
var bulletLine = regexp.MustCompile(`^\s*(?:[-*•]\s+|\d{1,2}\s*[.、)．]\s*)(.+)$`)

func bullets(doc *document, n int) []string {
	body, ok := doc.body(n)
	if !ok {
		return nil
	}
	var items []string
	for _, line := range body {
		m := bulletLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := cleanText(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// cleanText trims whitespace and markdown emphasis.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}

func countScored(ev evaluation.UserEvaluation) int {
	n := 0
	for _, s := range ev.Scores {
		if s.Score != nil {
			n++
		}
	}
	return n
}
