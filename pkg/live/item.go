// Package live holds the state of a recording in progress: the detected items,
// the debounced enhancement queue that feeds them, and the user actions that
// edit them.
package live

import (
	"fmt"
	"sort"
	"strings"
	"time"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// Status is the lifecycle state of an item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDismissed Status = "dismissed"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusDismissed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", plerrors.ErrValidation, s)
}

// Editable field names, as recorded in Item.EditedFields.
const (
	FieldEnhancedContent = "enhanced_content"
	FieldOwner           = "owner"
	FieldPriority        = "priority"
	FieldDueDate         = "due_date"
)

// Item is the user-facing record for one detected phrase.
type Item struct {
	ID        string                 `json:"id" yaml:"id"`
	SessionID string                 `json:"session_id" yaml:"session_id"`
	Phrase    phrases.DetectedPhrase `json:"phrase" yaml:"phrase"`

	// EnhancedContent is nil until an enhancement succeeds or the user sets it.
	EnhancedContent *string          `json:"enhanced_content" yaml:"enhanced_content"`
	Owner           string           `json:"owner,omitempty" yaml:"owner,omitempty"`
	Priority        phrases.Priority `json:"priority" yaml:"priority"`
	DueDate         string           `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Confidence      float64          `json:"confidence" yaml:"confidence"`

	IsEnhancing bool   `json:"is_enhancing" yaml:"is_enhancing"`
	IsEnhanced  bool   `json:"is_enhanced" yaml:"is_enhanced"`
	Status      Status `json:"status" yaml:"status"`

	Version      int64     `json:"version" yaml:"version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	EnhanceError string    `json:"enhance_error,omitempty" yaml:"enhance_error,omitempty"`
	EditedFields []string  `json:"edited_fields,omitempty" yaml:"edited_fields,omitempty"`
}

// DisplayContent is the enhanced content if present, else the raw phrase content.
func (it Item) DisplayContent() string {
	if it.EnhancedContent != nil {
		return *it.EnhancedContent
	}
	return it.Phrase.Content
}

// Edited reports whether the user has set field.
func (it Item) Edited(field string) bool {
	for _, f := range it.EditedFields {
		if f == field {
			return true
		}
	}
	return false
}

// clone returns a deep copy safe to hand out of the session lock.
func (it *Item) clone() Item {
	c := *it
	if it.EnhancedContent != nil {
		v := *it.EnhancedContent
		c.EnhancedContent = &v
	}
	if it.EditedFields != nil {
		c.EditedFields = append([]string(nil), it.EditedFields...)
	}
	return c
}

func (it *Item) markEdited(field string) {
	if it.Edited(field) {
		return
	}
	it.EditedFields = append(it.EditedFields, field)
	sort.Strings(it.EditedFields)
}

// ItemPatch is a user edit. Nil fields are left unchanged.
type ItemPatch struct {
	EnhancedContent *string `json:"enhanced_content,omitempty"`
	Owner           *string `json:"owner,omitempty"`
	Priority        *string `json:"priority,omitempty"`
	DueDate         *string `json:"due_date,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.EnhancedContent == nil && p.Owner == nil && p.Priority == nil && p.DueDate == nil
}

// ItemFilter selects items for listing. The zero value lists every item that
// is not dismissed.
type ItemFilter struct {
	IncludeDismissed bool
	Category         phrases.Category
	Status           Status
}

func (f ItemFilter) match(it *Item) bool {
	if it.Status == StatusDismissed && !f.IncludeDismissed && f.Status != StatusDismissed {
		return false
	}
	if f.Category != "" && it.Phrase.Category != f.Category {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	return true
}

// Group is one category's items in the grouped view.
type Group struct {
	Category phrases.Category `json:"category" yaml:"category"`
	Label    string           `json:"label" yaml:"label"`
	Items    []Item           `json:"items" yaml:"items"`
}

// Stats summarizes a session.
type Stats struct {
	Total      int                      `json:"total" yaml:"total"`
	Pending    int                      `json:"pending" yaml:"pending"`
	Confirmed  int                      `json:"confirmed" yaml:"confirmed"`
	Dismissed  int                      `json:"dismissed" yaml:"dismissed"`
	Enhanced   int                      `json:"enhanced" yaml:"enhanced"`
	ByCategory map[phrases.Category]int `json:"by_category" yaml:"by_category"`
	Queued     int                      `json:"queued" yaml:"queued"`
	Active     int                      `json:"active" yaml:"active"`
	Enhancing  bool                     `json:"enhancing" yaml:"enhancing"`
}
