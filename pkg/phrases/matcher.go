package phrases

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultContextWords is the number of words kept on each side of a trigger.
const DefaultContextWords = 8

type compiledRule struct {
	name       string
	re         *regexp.Regexp
	confidence float64
}

type compiledCategory struct {
	category Category
	rules    []compiledRule
}

// Matcher applies an ordered rule table to transcript text. A Matcher is
// immutable after construction and safe for concurrent use.
type Matcher struct {
	categories   []compiledCategory
	contextWords int
	heuristics   bool
}

// Option configures a Matcher.
type Option func(*matcherOptions)

type matcherOptions struct {
	rules        []CategoryRules
	contextWords int
	heuristics   bool
}

// WithContextWords sets how many words are kept before and after a trigger.
func WithContextWords(n int) Option {
	return func(o *matcherOptions) {
		if n >= 0 {
			o.contextWords = n
		}
	}
}

// WithRules replaces the built-in rule table.
func WithRules(rules []CategoryRules) Option {
	return func(o *matcherOptions) {
		o.rules = rules
	}
}

// WithoutHeuristics disables owner, deadline and priority extraction.
func WithoutHeuristics() Option {
	return func(o *matcherOptions) {
		o.heuristics = false
	}
}

// NewMatcher compiles a rule table into a Matcher.
func NewMatcher(opts ...Option) (*Matcher, error) {
	o := &matcherOptions{
		contextWords: DefaultContextWords,
		heuristics:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rules == nil {
		o.rules = DefaultRules()
	}

	m := &Matcher{
		contextWords: o.contextWords,
		heuristics:   o.heuristics,
	}
	seen := make(map[Category]bool, len(o.rules))
	for _, cr := range o.rules {
		if !cr.Category.IsValid() {
			return nil, fmt.Errorf("rule table: unknown category %q", cr.Category)
		}
		if seen[cr.Category] {
			return nil, fmt.Errorf("rule table: category %q listed twice", cr.Category)
		}
		seen[cr.Category] = true

		cc := compiledCategory{category: cr.Category}
		for i, r := range cr.Rules {
			re, err := regexp.Compile(`(?i)` + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("compiling rule %d (%s) for %s: %w", i, r.Name, cr.Category, err)
			}
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d", cr.Category, i)
			}
			cc.rules = append(cc.rules, compiledRule{name: name, re: re, confidence: r.Confidence})
		}
		m.categories = append(m.categories, cc)
	}
	return m, nil
}

// MustNewMatcher is like NewMatcher but panics on an invalid rule table.
func MustNewMatcher(opts ...Option) *Matcher {
	m, err := NewMatcher(opts...)
	if err != nil {
		panic(err)
	}
	return m
}

var defaultMatcher = MustNewMatcher()

// Detect runs the default matcher.
func Detect(text string, timestampMs int64) []DetectedPhrase {
	return defaultMatcher.Detect(text, timestampMs)
}

// ContextWords returns the configured context window size.
func (m *Matcher) ContextWords() int {
	return m.contextWords
}

// Categories returns the matcher's categories in rule-table order.
func (m *Matcher) Categories() []Category {
	out := make([]Category, 0, len(m.categories))
	for _, cc := range m.categories {
		out = append(out, cc.category)
	}
	return out
}

// Detect returns at most one detection per category, in category order. The
// first rule that matches within a category wins.
func (m *Matcher) Detect(text string, timestampMs int64) []DetectedPhrase {
	out := make([]DetectedPhrase, 0)
	if strings.TrimSpace(text) == "" {
		return out
	}

	var owner, deadline string
	var priority Priority
	if m.heuristics {
		owner = extractOwner(text)
		deadline = extractDeadline(text)
		priority = extractPriority(text)
	}

	for _, cc := range m.categories {
		for _, rule := range cc.rules {
			loc := rule.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			confidence := rule.confidence
			if confidence <= 0 {
				confidence = DefaultConfidence
			}
			out = append(out, DetectedPhrase{
				Category:          cc.category,
				Content:           extractContext(text, loc[0], loc[1], m.contextWords),
				TriggerPhrase:     text[loc[0]:loc[1]],
				FullContext:       text,
				TimestampMs:       timestampMs,
				Rule:              rule.name,
				ExtractedOwner:    owner,
				ExtractedDeadline: deadline,
				Priority:          priority,
				Confidence:        confidence,
			})
			break
		}
	}
	return out
}

// extractContext keeps up to n whitespace-delimited words on each side of
// text[start:end] and joins everything single-spaced.
func extractContext(text string, start, end, n int) string {
	before := strings.Fields(text[:start])
	if len(before) > n {
		before = before[len(before)-n:]
	}
	after := strings.Fields(text[end:])
	if len(after) > n {
		after = after[:n]
	}

	words := make([]string, 0, len(before)+len(after)+4)
	words = append(words, before...)
	words = append(words, strings.Fields(text[start:end])...)
	words = append(words, after...)
	return strings.Join(words, " ")
}
