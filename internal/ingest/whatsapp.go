// Package ingest reads WhatsApp chat exports into an ordered sequence of
// messages. The export is a plain-text file where each message starts with a
// "date, time - sender: text" line and may continue over following lines.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// Message is a single chat record. The sequence produced by a parse is
// finite and ordered; idempotency across re-reads is enforced by the store,
// not here.
type Message struct {
	Sender    string
	Timestamp time.Time
	Text      string
}

var messageStart = regexp.MustCompile(
	`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s*"?(\d{1,2}:\d{2}(?:\s?[apAP]\.?[mM]\.?)?)"?\s*-\s*(.*?):\s*(.*)$`,
)

// Day-first layouts as exported by WhatsApp, with and without 4-digit years
// and with optional 12-hour clocks.
var timestampLayouts = []string{
	"2/1/06 15:04",
	"2/1/2006 15:04",
	"2/1/06 3:04 pm",
	"2/1/2006 3:04 pm",
}

// ParseFile reads a chat export from disk. See Parse.
func ParseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chat export: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse scans the export line by line. Lines that do not start a new message
// are continuation lines appended to the current one. Lines before the first
// message header (export banners, encryption notices) are dropped.
func Parse(r io.Reader) ([]Message, error) {
	var messages []Message
	var current *Message

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")

		m := messageStart.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				current.Text += "\n" + strings.TrimSpace(line)
			}
			continue
		}

		ts, err := parseTimestamp(m[1], m[2])
		if err != nil {
			// A header-looking line with an unreadable timestamp is
			// treated as a continuation rather than dropped.
			if current != nil {
				current.Text += "\n" + strings.TrimSpace(line)
			}
			continue
		}

		if current != nil {
			messages = append(messages, *current)
		}

		current = &Message{
			Sender:    strings.TrimSpace(m[3]),
			Timestamp: ts,
			Text:      strings.TrimSpace(m[4]),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan chat export: %w", err)
	}

	if current != nil {
		messages = append(messages, *current)
	}

	return messages, nil
}

func parseTimestamp(date, clock string) (time.Time, error) {
	clock = normalizeClock(clock)
	raw := date + " " + clock

	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// normalizeClock rewrites "9:15 a.m." style suffixes into a form time.Parse
// understands.
func normalizeClock(clock string) string {
	clock = strings.ToLower(strings.TrimSpace(clock))
	clock = strings.ReplaceAll(clock, ".", "")
	if strings.HasSuffix(clock, "am") && !strings.HasSuffix(clock, " am") {
		clock = strings.TrimSuffix(clock, "am") + " am"
	}
	if strings.HasSuffix(clock, "pm") && !strings.HasSuffix(clock, " pm") {
		clock = strings.TrimSuffix(clock, "pm") + " pm"
	}
	return clock
}
