package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Matches transcript line: 0:11 : Speaker Name : Text content
	// or: 1:02:45 : Speaker Name (pronouns) : Text content
	txtLineRegex = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d{2})\s*:\s*([^:]+?)\s*:\s*(.+)$`)
)

// ParseTXTLine parses one "MM:SS : Speaker : text" line. Lines that do not
// match are reported with ok false.
func ParseTXTLine(line string) (seg Segment, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Segment{}, false
	}

	m := txtLineRegex.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	ms := int64(hours*3600+minutes*60+seconds) * 1000

	return Segment{
		Speaker: strings.TrimSpace(m[4]),
		Text:    strings.TrimSpace(m[5]),
		StartMs: ms,
		EndMs:   ms, // TXT format doesn't have end times
		Final:   true,
	}, true
}

// ParseTXT parses a plain text transcript. Malformed lines are skipped.
func ParseTXT(r io.Reader) (*Transcript, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	c := newCollector("txt")

	for scanner.Scan() {
		if seg, ok := ParseTXTLine(scanner.Text()); ok {
			c.add(seg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c.result(), nil
}
