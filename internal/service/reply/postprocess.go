// Package reply turns raw model completions into LINE-style chat messages.
package reply

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PunctuationPolicy selects which punctuation survives cleaning.
type PunctuationPolicy string

const (
	// PolicyKeepCommas removes brackets, colons, semicolons, quotes and
	// guillemets but keeps commas and periods.
	PolicyKeepCommas PunctuationPolicy = "keep-commas"
	// PolicyStrict additionally turns commas into spaces and drops periods.
	PolicyStrict PunctuationPolicy = "strict"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(raw string) (PunctuationPolicy, error) {
	switch PunctuationPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyKeepCommas:
		return PolicyKeepCommas, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown punctuation policy %q", raw)
	}
}

// Denylist is removed under every policy.
const Denylist = "「」『』（）()[]［］{}｛｝【】〔〕《》〈〉«»‹›：:；;\"'＂＇“”‘’"

const (
	strictRemoved = ".。…"
	strictSpaced  = ",，、"
)

// defaultBotNames are stripped when followed by a colon or by whitespace.
var defaultBotNames = []string{"話翼"}

// defaultPrefixes are only stripped when followed by a colon.
var defaultPrefixes = []string{
	"AI", "Assistant", "Bot", "模型", "回答", "回覆", "建議", "建議回覆", "回覆建議",
	"這是建議", "這是我的建議", "我的建議", "你可以說", "你可以回", "可以這樣回",
	"here[’']?s a suggestion", "here is a suggestion", "suggestion", "suggested reply",
	"you could say", "you can say", "reply", "response",
}

// Processor cleans completions. It is immutable and safe for concurrent use.
type Processor struct {
	policy   PunctuationPolicy
	names    []string
	prefix   *regexp.Regexp
	replacer *strings.Replacer
}

// Option configures a Processor.
type Option func(*Processor)

// WithPolicy selects the punctuation policy.
func WithPolicy(policy PunctuationPolicy) Option {
	return func(p *Processor) {
		p.policy = policy
	}
}

// WithBotNames adds speaker names (the app's bot name) stripped as prefixes.
func WithBotNames(names ...string) Option {
	return func(p *Processor) {
		p.names = append(p.names, names...)
	}
}

// NewProcessor builds a Processor; the default policy keeps commas.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{policy: PolicyKeepCommas}
	for _, opt := range opts {
		opt(p)
	}
	p.prefix = compilePrefix(p.names, nil)
	p.replacer = buildReplacer(p.policy)
	return p
}

// Policy returns the active punctuation policy.
func (p *Processor) Policy() PunctuationPolicy {
	return p.policy
}

// Process cleans raw. speakers are extra names (e.g. the persona) that the
// model sometimes prefixes its reply with. Process is idempotent.
func (p *Processor) Process(raw string, speakers ...string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	prefix := p.prefix
	if extra := nonBlank(speakers); len(extra) > 0 {
		prefix = compilePrefix(p.names, extra)
	}

	// Each pass only removes or shortens text, so this terminates.
	current := trimmed
	for {
		next := p.clean(current, prefix)
		if next == current {
			break
		}
		current = next
	}

	if current == "" {
		return trimmed
	}
	return current
}

func (p *Processor) clean(s string, prefix *regexp.Regexp) string {
	s = strings.TrimSpace(s)
	for {
		next := unwrapStructured(strings.TrimSpace(prefix.ReplaceAllString(s, "")))
		if next == s {
			break
		}
		s = next
	}
	s = p.replacer.Replace(s)
	s = normalizeNewlines(s)
	return joinLines(s)
}

// compilePrefix matches a leading bot name followed by a colon or whitespace,
// or a speaker or preamble followed by a colon.
func compilePrefix(bots, speakers []string) *regexp.Regexp {
	botAlts := quoteAll(append(append([]string(nil), bots...), defaultBotNames...))
	alts := append(quoteAll(speakers), defaultPrefixes...)
	return regexp.MustCompile(`(?i)^\s*(?:(?:` + strings.Join(botAlts, "|") + `)(?:\s*[:：]|\s)|(?:` +
		strings.Join(alts, "|") + `)\s*[:：])\s*`)
}

func quoteAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, regexp.QuoteMeta(n))
		}
	}
	return out
}

func buildReplacer(policy PunctuationPolicy) *strings.Replacer {
	pairs := make([]string, 0, 64)
	for _, r := range Denylist {
		pairs = append(pairs, string(r), "")
	}
	if policy == PolicyStrict {
		for _, r := range strictRemoved {
			pairs = append(pairs, string(r), "")
		}
		for _, r := range strictSpaced {
			pairs = append(pairs, string(r), " ")
		}
	}
	return strings.NewReplacer(pairs...)
}

var fenceTag = regexp.MustCompile(`^[A-Za-z0-9_+.-]*$`)

// unwrapStructured strips a code fence or JSON object that wraps the whole reply.
func unwrapStructured(s string) string {
	if len(s) >= 6 && strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		inner := s[3 : len(s)-3]
		if i := strings.IndexByte(inner, '\n'); i >= 0 && fenceTag.MatchString(strings.TrimSpace(inner[:i])) {
			inner = inner[i+1:]
		}
		return strings.TrimSpace(inner)
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			if text, ok := pickText(obj); ok {
				return strings.TrimSpace(text)
			}
		}
	}
	return s
}

var textKeys = []string{"reply", "content", "text", "message", "response", "suggestion"}

func pickText(obj map[string]any) (string, bool) {
	for _, key := range textKeys {
		switch v := obj[key].(type) {
		case string:
			return v, true
		case []any:
			lines := make([]string, 0, len(v))
			for _, item := range v {
				if line, ok := item.(string); ok {
					lines = append(lines, line)
				}
			}
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), true
			}
		case map[string]any:
			if content, ok := v["content"].(string); ok {
				return content, true
			}
		}
	}
	return "", false
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func joinLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
