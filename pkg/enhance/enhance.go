// Package enhance turns a detected phrase into a normalized item
// {content, owner, priority, due date, confidence} with one call to an
// external service.
//
// Providers make exactly one attempt per request. Failures are returned as
// *errors.EnhanceError and the caller keeps the phrase's local values; there
// is no automatic retry at any layer.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// Enhancer performs one enhancement call.
type Enhancer interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Enhance returns the service's view of the request. It must not retry.
	Enhance(ctx context.Context, req *Request) (*Result, error)
}

// Hints are the locally extracted values sent along with a request.
type Hints struct {
	Owner    string `json:"owner,omitempty"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Request is the wire form of one enhancement call. ItemID is the join key
// for applying the response.
type Request struct {
	ItemID        string           `json:"item_id"`
	Category      phrases.Category `json:"category"`
	Content       string           `json:"content"`
	FullContext   string           `json:"full_context"`
	TriggerPhrase string           `json:"trigger_phrase"`
	Speaker       string           `json:"speaker,omitempty"`
	Hints         Hints            `json:"hints"`
}

// NewRequest builds the request for an item's phrase.
func NewRequest(itemID string, p phrases.DetectedPhrase) *Request {
	return &Request{
		ItemID:        itemID,
		Category:      p.Category,
		Content:       p.Content,
		FullContext:   p.FullContext,
		TriggerPhrase: p.TriggerPhrase,
		Speaker:       p.Speaker,
		Hints: Hints{
			Owner:    p.ExtractedOwner,
			Deadline: p.ExtractedDeadline,
			Priority: string(p.Priority),
		},
	}
}

// Result is the service response. Empty strings and a nil Confidence mean
// "not provided".
type Result struct {
	ItemID           string   `json:"item_id,omitempty"`
	EnhancedContent  string   `json:"enhanced_content"`
	Owner            string   `json:"owner,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	SuggestedDueDate string   `json:"suggested_due_date,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

// Fields are the display values resolved for an item.
type Fields struct {
	EnhancedContent string
	Owner           string
	Priority        phrases.Priority
	DueDate         string
	Confidence      float64
}

// Local resolves fields from the phrase alone.
func Local(p phrases.DetectedPhrase) Fields {
	return Merge(p, nil)
}

// Merge resolves each field as remote value, then local heuristic, then
// default. EnhancedContent has no local fallback; callers display the
// phrase content while it is empty.
func Merge(p phrases.DetectedPhrase, r *Result) Fields {
	f := Fields{
		Owner:      p.ExtractedOwner,
		Priority:   p.Priority,
		DueDate:    p.ExtractedDeadline,
		Confidence: p.Confidence,
	}
	if !f.Priority.IsValid() {
		f.Priority = phrases.DefaultPriority
	}
	if f.Confidence <= 0 {
		f.Confidence = phrases.DefaultConfidence
	}

	if r == nil {
		return f
	}

	f.EnhancedContent = strings.TrimSpace(r.EnhancedContent)
	if v := strings.TrimSpace(r.Owner); v != "" {
		f.Owner = v
	}
	if pr, err := phrases.ParsePriority(r.Priority); err == nil && pr != "" {
		f.Priority = pr
	}
	if v := strings.TrimSpace(r.SuggestedDueDate); v != "" {
		f.DueDate = v
	}
	if r.Confidence != nil {
		f.Confidence = clamp01(*r.Confidence)
	}
	return f
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeResult parses a response body and checks it belongs to req.
func decodeResult(provider string, req *Request, body []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(stripFences(string(body))), &res); err != nil {
		return nil, plerrors.NewEnhanceError(plerrors.ErrParseError, provider, fmt.Sprintf("parse response: %v", err), err)
	}
	if res.ItemID == "" {
		res.ItemID = req.ItemID
	}
	if res.ItemID != req.ItemID {
		return nil, plerrors.NewEnhanceError(plerrors.ErrParseError, provider,
			fmt.Sprintf("response for item %s, expected %s", res.ItemID, req.ItemID), nil)
	}
	return &res, nil
}
