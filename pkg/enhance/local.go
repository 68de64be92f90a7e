package enhance

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
)

// LocalProvider answers without any network call. It tidies the fragment and
// echoes the hints, which keeps sessions usable offline.
type LocalProvider struct{}

// NewLocalProvider creates the offline provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// Name returns the provider identifier.
func (p *LocalProvider) Name() string {
	return "none"
}

// Enhance returns the request's own values.
func (p *LocalProvider) Enhance(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, plerrors.ClassifyError(err, p.Name())
	}
	return &Result{
		ItemID:           req.ItemID,
		EnhancedContent:  sentence(req.Content),
		Owner:            req.Hints.Owner,
		Priority:         req.Hints.Priority,
		SuggestedDueDate: req.Hints.Deadline,
	}, nil
}

// sentence collapses whitespace and capitalizes the first letter.
func sentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
