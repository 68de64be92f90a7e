package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// printPhrases writes raw detections, one per line.
func printPhrases(w io.Writer, ps []phrases.DetectedPhrase) error {
	if len(ps) == 0 {
		_, err := fmt.Fprintln(w, "No phrases detected.")
		return err
	}
	for _, p := range ps {
		fmt.Fprintf(w, "[%s] %-12s %s\n", formatOffset(p.TimestampMs), p.Category, p.Content)
		var meta []string
		meta = append(meta, fmt.Sprintf("trigger: %q", p.TriggerPhrase))
		if p.Speaker != "" {
			meta = append(meta, "speaker: "+p.Speaker)
		}
		if p.ExtractedOwner != "" {
			meta = append(meta, "owner: "+p.ExtractedOwner)
		}
		if p.ExtractedDeadline != "" {
			meta = append(meta, "due: "+p.ExtractedDeadline)
		}
		if p.Priority != "" {
			meta = append(meta, "priority: "+string(p.Priority))
		}
		fmt.Fprintf(w, "        %s\n", strings.Join(meta, ", "))
	}
	return nil
}

// printGroups writes the grouped item view with a header per category.
func printGroups(w io.Writer, groups []live.Group) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, "No items.")
		return err
	}
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", g.Label, len(g.Items))
		for _, it := range g.Items {
			printItemLine(w, it)
		}
	}
	return nil
}

// printItems writes items in the order given.
func printItems(w io.Writer, items []live.Item) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No items.")
		return err
	}
	for _, it := range items {
		printItemLine(w, it)
	}
	return nil
}

func printItemLine(w io.Writer, it live.Item) {
	fmt.Fprintf(w, "  %s [%s] %s\n", statusMark(it), formatOffset(it.Phrase.TimestampMs), it.DisplayContent())

	var meta []string
	if it.Owner != "" {
		meta = append(meta, "owner: "+it.Owner)
	}
	if it.DueDate != "" {
		meta = append(meta, "due: "+it.DueDate)
	}
	if it.Priority != "" {
		meta = append(meta, "priority: "+string(it.Priority))
	}
	if it.IsEnhanced && it.Confidence > 0 {
		meta = append(meta, fmt.Sprintf("confidence: %.2f", it.Confidence))
	}
	if it.EnhanceError != "" {
		meta = append(meta, "enhance failed: "+it.EnhanceError)
	}
	meta = append(meta, "id: "+shortID(it.ID))
	fmt.Fprintf(w, "      %s\n", strings.Join(meta, ", "))
}

func statusMark(it live.Item) string {
	switch {
	case it.Status == live.StatusConfirmed:
		return "[x]"
	case it.Status == live.StatusDismissed:
		return "[-]"
	case it.IsEnhancing:
		return "[~]"
	default:
		return "[ ]"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printEvent writes one line for a live session change.
func printEvent(w io.Writer, ev live.Event) {
	if ev.Item == nil {
		fmt.Fprintf(w, "%s\n", ev.Type)
		return
	}
	it := *ev.Item
	switch ev.Type {
	case live.EventItemDetected:
		fmt.Fprintf(w, "+ [%s] %s: %s\n", formatOffset(it.Phrase.TimestampMs), it.Phrase.Category.Label(), it.Phrase.Content)
	case live.EventItemEnhanced:
		fmt.Fprintf(w, "* [%s] %s\n", formatOffset(it.Phrase.TimestampMs), it.DisplayContent())
	case live.EventItemEnhanceFailed:
		fmt.Fprintf(w, "! [%s] enhancement failed: %s\n", formatOffset(it.Phrase.TimestampMs), it.EnhanceError)
	default:
		fmt.Fprintf(w, "%s %s\n", ev.Type, shortID(it.ID))
	}
}
