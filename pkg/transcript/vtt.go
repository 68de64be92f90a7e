package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Matches segment header: 1 "Speaker Name" (speaker_id) or just: 1 "" (0)
	vttSegmentHeaderRegex = regexp.MustCompile(`^\d+\s+"([^"]*)"(?:\s+\((\d+)\))?`)

	// Matches timestamp line: 00:00:05.579 --> 00:00:06.858, hours optional
	vttTimestampRegex = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})\s+-->\s+((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})`)

	// Matches a voice span: <v Speaker Name>text
	vttVoiceRegex = regexp.MustCompile(`^<v(?:\.[^ >]+)*\s+([^>]+)>(.*?)(?:</v>)?$`)

	vttTagRegex = regexp.MustCompile(`</?[^>]+>`)
)

// ParseVTT parses a WebVTT transcript. Speakers come from numbered
// "N "Name" (id)" headers or from <v Name> voice spans.
func ParseVTT(r io.Reader) (*Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	c := newCollector("vtt")

	var cur *Segment
	inNote := false

	flush := func() {
		if cur != nil && cur.Text != "" {
			c.add(*cur)
		}
		cur = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			inNote = false
			if cur != nil && cur.Text != "" {
				flush()
			}
			continue
		}
		if strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if line == "NOTE" || strings.HasPrefix(line, "NOTE ") || line == "STYLE" || line == "REGION" {
			inNote = true
			continue
		}
		if inNote {
			continue
		}

		if m := vttSegmentHeaderRegex.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Segment{Speaker: m[1], SpeakerID: m[2], Final: true}
			continue
		}

		if m := vttTimestampRegex.FindStringSubmatch(line); m != nil {
			// A cue without a numbered header starts at its timing line.
			if cur == nil || cur.Text != "" {
				flush()
				cur = &Segment{Final: true}
			}
			cur.StartMs = parseVTTTimestamp(m[1])
			cur.EndMs = parseVTTTimestamp(m[2])
			continue
		}

		if cur == nil {
			// Bare cue identifiers before a timing line.
			continue
		}

		text := line
		if m := vttVoiceRegex.FindStringSubmatch(line); m != nil {
			if cur.Speaker == "" {
				cur.Speaker = strings.TrimSpace(m[1])
			}
			text = m[2]
		}
		text = strings.TrimSpace(vttTagRegex.ReplaceAllString(text, ""))
		if text == "" {
			continue
		}
		if cur.Text != "" {
			cur.Text += " "
		}
		cur.Text += text
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c.result(), nil
}

// parseVTTTimestamp parses HH:MM:SS.mmm or MM:SS.mmm to milliseconds.
func parseVTTTimestamp(ts string) int64 {
	parts := strings.Split(ts, ":")
	var hours, minutes int
	var rest string
	switch len(parts) {
	case 3:
		hours, _ = strconv.Atoi(parts[0])
		minutes, _ = strconv.Atoi(parts[1])
		rest = parts[2]
	case 2:
		minutes, _ = strconv.Atoi(parts[0])
		rest = parts[1]
	default:
		return 0
	}

	secParts := strings.Split(rest, ".")
	seconds, _ := strconv.Atoi(secParts[0])
	milliseconds := 0
	if len(secParts) > 1 {
		milliseconds, _ = strconv.Atoi(secParts[1])
	}

	return int64(hours)*3600000 + int64(minutes)*60000 + int64(seconds)*1000 + int64(milliseconds)
}
