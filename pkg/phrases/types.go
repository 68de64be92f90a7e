// Package phrases detects actionable meeting phrases in transcript text.
//
// Detection is a pure function over an ordered, declarative rule table: each
// category holds an ordered list of case-insensitive trigger rules and the
// first rule that matches wins for that category.
package phrases

import (
	"fmt"
	"strings"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
)

// Category is a meeting-item classification.
type Category string

const (
	CategoryActionItem Category = "action_item"
	CategoryDecision   Category = "decision"
	CategoryQuestion   Category = "question"
	CategoryDeferred   Category = "deferred"
	CategoryRisk       Category = "risk"
	CategoryFollowup   Category = "followup"
	CategoryCommitment Category = "commitment"
	CategoryConcern    Category = "concern"
	CategoryAmbiguity  Category = "ambiguity"
)

var allCategories = []Category{
	CategoryActionItem,
	CategoryDecision,
	CategoryQuestion,
	CategoryDeferred,
	CategoryRisk,
	CategoryFollowup,
	CategoryCommitment,
	CategoryConcern,
	CategoryAmbiguity,
}

var categoryLabels = map[Category]string{
	CategoryActionItem: "Action Items",
	CategoryDecision:   "Decisions",
	CategoryQuestion:   "Questions",
	CategoryDeferred:   "Deferred",
	CategoryRisk:       "Risks",
	CategoryFollowup:   "Follow-ups",
	CategoryCommitment: "Commitments",
	CategoryConcern:    "Concerns",
	CategoryAmbiguity:  "Ambiguities",
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsValid returns true if c is a known category.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the plural display label for the category.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory validates a category name. Hyphens and case are tolerated,
// so "Action-Item" parses as action_item.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if c == "follow_up" {
		c = CategoryFollowup
	}
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown category %q", plerrors.ErrValidation, s)
	}
	return c, nil
}

// Priority is the urgency attached to a detected item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultPriority applies when neither the enhancer nor the local heuristics set one.
const DefaultPriority = PriorityMedium

// DefaultConfidence applies when no confidence was reported.
const DefaultConfidence = 0.7

// IsValid returns true if p is low, medium or high.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ParsePriority normalizes a priority string. The empty string is accepted
// and returned as-is so optional fields stay unset.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return "", nil
	case "urgent", "critical":
		return PriorityHigh, nil
	case "normal":
		return PriorityMedium, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown priority %q", plerrors.ErrValidation, s)
	}
	return p, nil
}

// OwnerSelf marks a first-person owner ("I'll send it") whose name is the speaker's.
const OwnerSelf = "me"

// DetectedPhrase is one detection emitted by the matcher. It is never mutated
// after creation.
type DetectedPhrase struct {
	Category      Category `json:"category" yaml:"category"`
	Content       string   `json:"content" yaml:"content"`
	TriggerPhrase string   `json:"trigger_phrase" yaml:"trigger_phrase"`
	FullContext   string   `json:"full_context" yaml:"full_context"`
	TimestampMs   int64    `json:"timestamp_ms" yaml:"timestamp_ms"`
	Speaker       string   `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Rule          string   `json:"rule" yaml:"rule"`

	ExtractedOwner    string   `json:"extracted_owner,omitempty" yaml:"extracted_owner,omitempty"`
	ExtractedDeadline string   `json:"extracted_deadline,omitempty" yaml:"extracted_deadline,omitempty"`
	Priority          Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	Confidence        float64  `json:"confidence" yaml:"confidence"`
}

// WithSpeaker returns a copy attributed to speaker. A first-person owner is
// replaced by the speaker's name.
func (p DetectedPhrase) WithSpeaker(speaker string) DetectedPhrase {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return p
	}
	p.Speaker = speaker
	if p.ExtractedOwner == OwnerSelf {
		p.ExtractedOwner = speaker
	}
	return p
}
