// Package transcript parses meeting transcripts into speaker segments and
// feeds them to a live session, either replayed from a finished file or
// followed as the file grows.
package transcript

import "context"

// Segment is one speaker utterance.
type Segment struct {
	Speaker   string `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	SpeakerID string `json:"speaker_id,omitempty" yaml:"speaker_id,omitempty"`
	Text      string `json:"text" yaml:"text"`
	StartMs   int64  `json:"start_ms" yaml:"start_ms"`
	EndMs     int64  `json:"end_ms" yaml:"end_ms"`

	// Final is false for interim recognizer output, which is never fed to
	// the matcher.
	Final bool `json:"final" yaml:"final"`
}

// Transcript is the result of parsing a transcript file.
type Transcript struct {
	Segments        []Segment `json:"segments" yaml:"segments"`
	Speakers        []string  `json:"speakers" yaml:"speakers"`
	DurationSeconds int       `json:"duration_seconds" yaml:"duration_seconds"`
	Format          string    `json:"format" yaml:"format"` // "vtt", "txt"
}

// Sink consumes segments.
type Sink interface {
	HandleSegment(ctx context.Context, seg Segment) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, seg Segment) error

// HandleSegment calls f(ctx, seg).
func (f SinkFunc) HandleSegment(ctx context.Context, seg Segment) error {
	return f(ctx, seg)
}

type collector struct {
	speakers map[string]bool
	t        *Transcript
	lastMs   int64
}

func newCollector(format string) *collector {
	return &collector{
		speakers: make(map[string]bool),
		t: &Transcript{
			Segments: make([]Segment, 0),
			Speakers: make([]string, 0),
			Format:   format,
		},
	}
}

func (c *collector) add(seg Segment) {
	c.t.Segments = append(c.t.Segments, seg)
	if seg.Speaker != "" && !c.speakers[seg.Speaker] {
		c.speakers[seg.Speaker] = true
		c.t.Speakers = append(c.t.Speakers, seg.Speaker)
	}
	end := seg.EndMs
	if seg.StartMs > end {
		end = seg.StartMs
	}
	if end > c.lastMs {
		c.lastMs = end
	}
}

func (c *collector) result() *Transcript {
	c.t.DurationSeconds = int(c.lastMs / 1000)
	return c.t
}

// Ingester accepts finalized utterances. *live.Session implements it.
type Ingester interface {
	IngestSegment(speaker, text string, timestampMs int64) ([]string, error)
}

// IngestInto returns a Sink that hands final segments to in. onItems, if
// set, is called with the IDs created for each segment.
func IngestInto(in Ingester, onItems func(seg Segment, ids []string)) Sink {
	return SinkFunc(func(_ context.Context, seg Segment) error {
		if !seg.Final {
			return nil
		}
		ids, err := in.IngestSegment(seg.Speaker, seg.Text, seg.StartMs)
		if err != nil {
			return err
		}
		if onItems != nil && len(ids) > 0 {
			onItems(seg, ids)
		}
		return nil
	})
}
