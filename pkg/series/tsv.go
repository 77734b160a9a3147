package series

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wall-clock layout used by history files and by the
// forecast JSON output.
const TimestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// ParseTimestamp parses a history timestamp. Zone-less layouts are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp layout")
}

// ParseLabel parses an occupancy label. Integral values such as "1" or "1.0"
// are accepted; anything other than 0 or 1 is rejected.
func ParseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n != 0 && n != 1 {
			return 0, fmt.Errorf("must be 0 or 1")
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	switch f {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	default:
		return 0, fmt.Errorf("must be 0 or 1")
	}
}

// ParseTSV reads history records of the form "timestamp<TAB>label", one per
// line, without a header. Blank lines are skipped. The first malformed line
// aborts parsing with a *MalformedInputError.
func ParseTSV(r io.Reader) ([]Observation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var obs []Observation
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, &MalformedInputError{
				Line:   line,
				Field:  "record",
				Value:  text,
				Reason: "expected timestamp and label separated by a tab",
			}
		}

		ts, err := ParseTimestamp(fields[0])
		if err != nil {
			return nil, &MalformedInputError{Line: line, Field: "timestamp", Value: fields[0], Reason: err.Error()}
		}

		label, err := ParseLabel(fields[1])
		if err != nil {
			return nil, &MalformedInputError{Line: line, Field: "label", Value: fields[1], Reason: err.Error()}
		}

		obs = append(obs, Observation{Timestamp: ts, Label: label})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return obs, nil
}
