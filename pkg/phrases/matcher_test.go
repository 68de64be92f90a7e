package phrases

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categoriesOf(detections []DetectedPhrase) []Category {
	out := make([]Category, 0, len(detections))
	for _, d := range detections {
		out = append(out, d.Category)
	}
	return out
}

func TestDetect_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		timestamp   int64
		want        []Category
		wantTrigger string
	}{
		{
			name:        "first person follow up",
			text:        "I'll follow up with finance by Friday",
			timestamp:   12000,
			want:        []Category{CategoryActionItem},
			wantTrigger: "I'll follow up",
		},
		{
			name:        "table it",
			text:        "let's table that for now",
			timestamp:   5000,
			want:        []Category{CategoryDeferred},
			wantTrigger: "table that",
		},
		{
			name:        "decision",
			text:        "OK so we decided to ship the beta on the old billing flow",
			want:        []Category{CategoryDecision},
			wantTrigger: "we decided",
		},
		{
			name:        "risk",
			text:        "The migration is at risk if the vendor slips again",
			want:        []Category{CategoryRisk},
			wantTrigger: "at risk",
		},
		{
			name:        "follow up meeting",
			text:        "Let's circle back on pricing tomorrow",
			want:        []Category{CategoryFollowup},
			wantTrigger: "Let's circle back",
		},
		{
			name:        "commitment",
			text:        "You have my word on that one",
			want:        []Category{CategoryCommitment},
			wantTrigger: "You have my word",
		},
		{
			name:        "concern",
			text:        "Honestly I'm worried about the load numbers",
			want:        []Category{CategoryConcern},
			wantTrigger: "I'm worried",
		},
		{
			name:        "ambiguity",
			text:        "The rollout date is still TBD",
			want:        []Category{CategoryAmbiguity},
			wantTrigger: "TBD",
		},
		{
			name:        "typographic apostrophe",
			text:        "I’ll send the deck tonight",
			want:        []Category{CategoryActionItem},
			wantTrigger: "I’ll send",
		},
		{
			name: "no trigger",
			text: "The weather was great over the weekend",
			want: []Category{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.text, tt.timestamp)
			assert.Equal(t, tt.want, categoriesOf(got))
			if tt.wantTrigger != "" {
				require.Len(t, got, 1)
				assert.Equal(t, tt.wantTrigger, got[0].TriggerPhrase)
				assert.Equal(t, tt.timestamp, got[0].TimestampMs)
				assert.Equal(t, tt.text, got[0].FullContext)
			}
		})
	}
}

func TestDetect_FollowUpScenarioHeuristics(t *testing.T) {
	got := Detect("I'll follow up with finance by Friday", 12000)
	require.Len(t, got, 1)

	d := got[0]
	assert.Equal(t, CategoryActionItem, d.Category)
	assert.Equal(t, "first_person_will", d.Rule)
	assert.Equal(t, OwnerSelf, d.ExtractedOwner)
	assert.Equal(t, "Friday", d.ExtractedDeadline)
	assert.Empty(t, d.Priority)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	assert.Equal(t, "I'll follow up with finance by Friday", d.Content)
}

func TestDetect_IsPure(t *testing.T) {
	text := "Action item: Dana will send the revised contract asap"
	first := Detect(text, 42)
	second := Detect(text, 42)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
}

func TestDetect_MultipleCategories(t *testing.T) {
	got := Detect("action item: I'll follow up. What about the budget?", 1000)

	assert.Equal(t, []Category{CategoryActionItem, CategoryQuestion}, categoriesOf(got))
	assert.Equal(t, "action item", got[0].TriggerPhrase)
	assert.Equal(t, "What about the budget?", got[1].TriggerPhrase)
}

func TestDetect_AtMostOnePerCategory(t *testing.T) {
	got := Detect("We decided to ship Monday and everyone agreed to freeze scope", 0)

	require.Len(t, got, 1)
	assert.Equal(t, CategoryDecision, got[0].Category)
	assert.Equal(t, "we_decided", got[0].Rule, "first listed rule wins")
}

func TestDetect_ContextBounded(t *testing.T) {
	filler := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	text := filler + "and I'll send the notes " + filler

	for _, n := range []int{0, 3, 8} {
		m := MustNewMatcher(WithContextWords(n))
		got := m.Detect(text, 0)
		require.Len(t, got, 1)

		words := strings.Fields(got[0].Content)
		trigger := strings.Fields(got[0].TriggerPhrase)
		assert.LessOrEqual(t, len(words), 2*n+len(trigger), "window %d", n)
		assert.Contains(t, got[0].Content, "I'll send")
		assert.Less(t, len(got[0].Content), 200)
	}
}

func TestDetect_ContextSingleSpaced(t *testing.T) {
	got := Detect("so   basically\tthe\n  action item   is   ours", 0)
	require.Len(t, got, 1)
	assert.Equal(t, "so basically the action item is ours", got[0].Content)
}

func TestDetect_EmptyInput(t *testing.T) {
	assert.Empty(t, Detect("", 0))
	assert.Empty(t, Detect("   \n\t ", 0))
	assert.NotNil(t, Detect("", 0))
}

func TestNewMatcher_CustomRules(t *testing.T) {
	m, err := NewMatcher(WithRules([]CategoryRules{
		{Category: CategoryRisk, Rules: []Rule{{Pattern: `\byolo\b`}}},
	}), WithoutHeuristics())
	require.NoError(t, err)

	got := m.Detect("we will YOLO the deploy by Friday asap", 7)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryRisk, got[0].Category)
	assert.Equal(t, "risk_0", got[0].Rule)
	assert.Equal(t, DefaultConfidence, got[0].Confidence)
	assert.Empty(t, got[0].ExtractedDeadline)
	assert.Empty(t, got[0].Priority)
}

func TestNewMatcher_InvalidRules(t *testing.T) {
	_, err := NewMatcher(WithRules([]CategoryRules{
		{Category: CategoryRisk, Rules: []Rule{{Name: "broken", Pattern: `(`}}},
	}))
	assert.Error(t, err)

	_, err = NewMatcher(WithRules([]CategoryRules{{Category: "gossip"}}))
	assert.Error(t, err)

	_, err = NewMatcher(WithRules([]CategoryRules{{Category: CategoryRisk}, {Category: CategoryRisk}}))
	assert.Error(t, err)
}

func TestDefaultRules_CoverEveryCategory(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, len(Categories()))
	for i, cr := range rules {
		assert.Equal(t, Categories()[i], cr.Category)
		assert.NotEmpty(t, cr.Rules, cr.Category)
	}
}
