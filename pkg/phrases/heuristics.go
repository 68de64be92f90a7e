package phrases

import (
	"regexp"
	"strings"
)

// Local heuristics run on the full utterance after a category matched. They
// seed owner, deadline and priority before any remote enhancement.

var (
	selfOwnerRe   = regexp.MustCompile(`(?i)\b(?:i` + apos + `ll|i will|i can|i` + apos + `m going to|i am going to|let me)\b`)
	assignedRe    = regexp.MustCompile(`(?i:\b(?:assign(?:ed)?(?: (?:it|this|that))? to|owner is|owned by))\s+([A-Z][a-zA-Z'-]+)`)
	namedOwnerRe  = regexp.MustCompile(`\b([A-Z][a-z]+)\s+(?i:will|is going to|can|to)\s+(?i:handle|own|take|send|follow|look|check|draft|prepare|review|update|schedule|reach|fix|write|share)\b`)
	mentionRe     = regexp.MustCompile(`(?:^|\s)@([A-Za-z][\w.-]*)`)
	deadlineRe    = regexp.MustCompile(`(?i)\b(?:by|before|due|until|no later than)\s+(?:the\s+)?(end of (?:the )?(?:day|week|month|quarter|sprint)|eod|eow|tomorrow|tonight|today|next (?:week|month|sprint|quarter|monday|tuesday|wednesday|thursday|friday)|(?:this )?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|\d{1,2}/\d{1,2}(?:/\d{2,4})?|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.? \d{1,2}(?:st|nd|rd|th)?)\b`)
	bareDeadline  = regexp.MustCompile(`(?i)\b(eod|eow|end of (?:the )?(?:day|week))\b`)
	lowPriority   = regexp.MustCompile(`(?i)\b(?:low priority|nice to have|no rush|not urgent|whenever|when you get a chance)\b`)
	highPriority  = regexp.MustCompile(`(?i)\b(?:urgent|urgently|asap|as soon as possible|critical|top priority|high priority|immediately|blocker)\b`)
	ownerStopList = map[string]bool{
		"i": true, "we": true, "you": true, "they": true, "it": true, "this": true, "that": true,
		"someone": true, "somebody": true, "who": true, "what": true, "which": true, "nobody": true,
		"everyone": true, "he": true, "she": true, "there": true, "then": true, "and": true,
	}
)

// extractOwner returns the person an utterance attributes work to. First
// person phrasing yields OwnerSelf.
func extractOwner(text string) string {
	if m := assignedRe.FindStringSubmatch(text); m != nil && !ownerStopList[strings.ToLower(m[1])] {
		return m[1]
	}
	if m := mentionRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, m := range namedOwnerRe.FindAllStringSubmatch(text, -1) {
		if !ownerStopList[strings.ToLower(m[1])] {
			return m[1]
		}
	}
	if selfOwnerRe.MatchString(text) {
		return OwnerSelf
	}
	return ""
}

// extractDeadline returns the spoken deadline, e.g. "Friday" or "end of week".
func extractDeadline(text string) string {
	if m := deadlineRe.FindStringSubmatch(text); m != nil {
		return normalizeSpace(m[1])
	}
	if m := bareDeadline.FindStringSubmatch(text); m != nil {
		return normalizeSpace(m[1])
	}
	return ""
}

// extractPriority maps urgency language to a priority. Low is checked first
// so "not urgent" does not read as high.
func extractPriority(text string) Priority {
	if lowPriority.MatchString(text) {
		return PriorityLow
	}
	if highPriority.MatchString(text) {
		return PriorityHigh
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
