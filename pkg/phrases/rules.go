package phrases

// Rule is a single trigger pattern. Patterns are compiled case-insensitively
// and should anchor on word boundaries.
type Rule struct {
	Name       string  `json:"name" yaml:"name"`
	Pattern    string  `json:"pattern" yaml:"pattern"`
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// CategoryRules holds the ordered rules for one category.
type CategoryRules struct {
	Category Category `json:"category" yaml:"category"`
	Rules    []Rule   `json:"rules" yaml:"rules"`
}

// Shared fragments. Apostrophes accept both ASCII and typographic forms.
const (
	apos     = `['’]`
	taskVerb = `(?:follow up|send|take care of|handle|look into|reach out|check|get back|draft|schedule|set up|update|prepare|review|write|share|ping|email|call|fix|book|circulate)`
	pronoun  = `(?:this|that|it)`
)

// DefaultRules returns the built-in rule table in category order. The table is
// data: callers may copy it, append rules and pass it to WithRules.
func DefaultRules() []CategoryRules {
	return []CategoryRules{
		{
			Category: CategoryActionItem,
			Rules: []Rule{
				{Name: "explicit_action_item", Pattern: `\baction items?\b`, Confidence: 0.9},
				{Name: "first_person_will", Pattern: `\bi` + apos + `ll\s+(?:\w+\s+){0,2}?` + taskVerb + `\b`, Confidence: 0.8},
				{Name: "first_person_obligation", Pattern: `\b(?:i|we) (?:will|need to|have to|must|should|are going to|am going to)\s+(?:\w+\s+){0,2}?` + taskVerb + `\b`, Confidence: 0.75},
				{Name: "request", Pattern: `\b(?:can you|could you|would you|please)\s+(?:\w+\s+){0,2}?` + taskVerb + `\b`, Confidence: 0.7},
				{Name: "todo", Pattern: `\b(?:todo|to-do)\b`, Confidence: 0.75},
				{Name: "assignment", Pattern: `\b(?:assign(?:ed)?|owner is|owned by)\b`, Confidence: 0.7},
				{Name: "needs_doing", Pattern: `\b(?:needs?|has) to be (?:done|sent|fixed|updated|completed|finished)\b`, Confidence: 0.65},
			},
		},
		{
			Category: CategoryDecision,
			Rules: []Rule{
				{Name: "we_decided", Pattern: `\b(?:we` + apos + `ve|we have|we) decided\b`, Confidence: 0.9},
				{Name: "agreed_to", Pattern: `\b(?:we|i|everyone) (?:agreed|agree) (?:to|on|that)\b`, Confidence: 0.85},
				{Name: "go_with", Pattern: `\blet` + apos + `?s go (?:with|ahead)\b`, Confidence: 0.8},
				{Name: "going_with", Pattern: `\bwe` + apos + `re going (?:to go )?with\b`, Confidence: 0.8},
				{Name: "decision_made", Pattern: `\b(?:the )?decision (?:is|was|has been) (?:made|to)\b`, Confidence: 0.85},
				{Name: "settled", Pattern: `\b(?:it|that)` + apos + `s (?:settled|final|decided)\b`, Confidence: 0.75},
				{Name: "consensus", Pattern: `\bconsensus is\b`, Confidence: 0.7},
			},
		},
		{
			Category: CategoryQuestion,
			Rules: []Rule{
				{Name: "wh_question", Pattern: `\b(?:what|how|why|when|where|who|which)\b[^.?!]{0,80}\?`, Confidence: 0.8},
				{Name: "yes_no_question", Pattern: `\b(?:do|does|did|can|could|should|would|will|is|are) (?:we|you|they|i|it|this|that)\b[^.?!]{0,80}\?`, Confidence: 0.75},
				{Name: "open_floor", Pattern: `\bany (?:questions|thoughts|objections)\b`, Confidence: 0.7},
				{Name: "wondering", Pattern: `\b(?:i|we) (?:wonder|was wondering|were wondering)\b`, Confidence: 0.65},
				{Name: "question_is", Pattern: `\b(?:my |the )?question (?:is|for)\b`, Confidence: 0.7},
			},
		},
		{
			Category: CategoryDeferred,
			Rules: []Rule{
				{Name: "table_it", Pattern: `\btable ` + pronoun + `\b`, Confidence: 0.85},
				{Name: "park_it", Pattern: `\bpark ` + pronoun + `\b`, Confidence: 0.85},
				{Name: "parking_lot", Pattern: `\bparking lot\b`, Confidence: 0.8},
				{Name: "take_offline", Pattern: `\btake (?:this|that|it) offline\b`, Confidence: 0.8},
				{Name: "push_later", Pattern: `\bpush (?:this|that|it) (?:to|until) (?:next|later)\b`, Confidence: 0.75},
				{Name: "revisit_later", Pattern: `\b(?:revisit|come back to) (?:this|that|it) (?:later|next time|another time)\b`, Confidence: 0.75},
				{Name: "postpone", Pattern: `\b(?:defer|postpone|punt)(?:red|ed|ing)?\b`, Confidence: 0.7},
			},
		},
		{
			Category: CategoryRisk,
			Rules: []Rule{
				{Name: "at_risk", Pattern: `\bat risk\b`, Confidence: 0.85},
				{Name: "risk", Pattern: `\b(?:risk|risks|risky)\b`, Confidence: 0.75},
				{Name: "blocker", Pattern: `\b(?:blocker|blockers|blocked|blocking)\b`, Confidence: 0.8},
				{Name: "might_slip", Pattern: `\b(?:might|may|could) (?:not )?(?:slip|fail|break|delay|miss)\b`, Confidence: 0.7},
				{Name: "dependency", Pattern: `\b(?:depend(?:ent|ency) on|single point of failure)\b`, Confidence: 0.65},
			},
		},
		{
			Category: CategoryFollowup,
			Rules: []Rule{
				{Name: "lets_follow_up", Pattern: `\blet` + apos + `?s (?:circle back|follow up|reconnect|revisit)\b`, Confidence: 0.85},
				{Name: "circle_back", Pattern: `\bcircle back\b`, Confidence: 0.8},
				{Name: "follow_up_meeting", Pattern: `\bfollow[- ]?up (?:meeting|call|session|email|on)\b`, Confidence: 0.8},
				{Name: "touch_base", Pattern: `\b(?:touch base|sync up|check in) (?:later|again|next week|tomorrow|offline)\b`, Confidence: 0.75},
				{Name: "get_back_on", Pattern: `\bget back to (?:you|me|us) on\b`, Confidence: 0.7},
			},
		},
		{
			Category: CategoryCommitment,
			Rules: []Rule{
				{Name: "promise", Pattern: `\b(?:i|we) (?:promise|commit|guarantee)\b`, Confidence: 0.9},
				{Name: "my_word", Pattern: `\byou have (?:my|our) word\b`, Confidence: 0.85},
				{Name: "count_on", Pattern: `\bcount on (?:me|us)\b`, Confidence: 0.8},
				{Name: "make_sure", Pattern: `\b(?:i|we)(?:` + apos + `ll| will) make sure\b`, Confidence: 0.75},
				{Name: "committed_to", Pattern: `\bcommitted to\b`, Confidence: 0.75},
			},
		},
		{
			Category: CategoryConcern,
			Rules: []Rule{
				{Name: "worried", Pattern: `\b(?:i` + apos + `m|i am|we` + apos + `re|we are) (?:worried|concerned|nervous|uneasy)\b`, Confidence: 0.85},
				{Name: "my_concern", Pattern: `\b(?:my|our|one) (?:concern|worry)\b`, Confidence: 0.8},
				{Name: "concern_about", Pattern: `\bconcern(?:ed|s)? (?:about|with|that)\b`, Confidence: 0.75},
				{Name: "not_convinced", Pattern: `\bnot (?:sure|convinced|comfortable) (?:about|that|with)\b`, Confidence: 0.7},
				{Name: "red_flag", Pattern: `\bred flags?\b`, Confidence: 0.7},
			},
		},
		{
			Category: CategoryAmbiguity,
			Rules: []Rule{
				{Name: "unclear", Pattern: `\b(?:unclear|ambiguous|vague)\b`, Confidence: 0.8},
				{Name: "not_clear_who", Pattern: `\bnot (?:clear|sure) (?:who|what|when|how|if|whether)\b`, Confidence: 0.75},
				{Name: "tbd", Pattern: `\b(?:tbd|to be determined|to be decided)\b`, Confidence: 0.8},
				{Name: "clarify", Pattern: `\b(?:clarify|clarification)\b`, Confidence: 0.7},
				{Name: "someone_should", Pattern: `\b(?:someone|somebody) (?:should|needs to|has to)\b`, Confidence: 0.7},
				{Name: "depends_on", Pattern: `\bit depends\b`, Confidence: 0.6},
			},
		},
	}
}
