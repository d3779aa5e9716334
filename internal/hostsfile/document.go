package hostsfile

import (
	"strings"
)

// Marker lines delimiting the block owned by siteguard.
const (
	StartMarker = "# WEBSITE_BLOCKER_START"
	EndMarker   = "# WEBSITE_BLOCKER_END"
)

// Document is a managed file split around its managed block.
// Prefix and Suffix hold the untouched text before the start marker line and
// after the end marker line. Entries are the trimmed, non-empty lines between
// the markers, in file order.
type Document struct {
	Prefix  string
	Entries []string
	Suffix  string
}

// markerLine describes where a marker line sits in the text.
type markerLine struct {
	start int // offset of the first byte of the line
	end   int // offset just past the line terminator
	line  int // 1-based line number
	count int
}

// Parse splits text into prefix, entries and suffix.
// A file without both markers is treated as all prefix with no entries.
// Markers that repeat or appear out of order yield a *FormatError.
func Parse(text string) (Document, error) {
	start := findMarkerLine(text, StartMarker)
	end := findMarkerLine(text, EndMarker)

	if start.count == 0 || end.count == 0 {
		return Document{Prefix: text}, nil
	}

	if start.count > 1 {
		return Document{}, &FormatError{Line: start.line, Reason: "start marker appears more than once"}
	}
	if end.count > 1 {
		return Document{}, &FormatError{Line: end.line, Reason: "end marker appears more than once"}
	}
	if end.start < start.start {
		return Document{}, &FormatError{Line: end.line, Reason: "end marker precedes start marker"}
	}

	return Document{
		Prefix:  text[:start.start],
		Entries: splitEntries(text[start.end:end.start]),
		Suffix:  text[end.end:],
	}, nil
}

// Serialize renders a document back into file text.
// A non-empty prefix without a trailing newline gets one, so the start
// marker always sits on its own line. Parse(Serialize(d)) therefore returns
// d with its prefix newline-terminated, for entries without markers or
// newlines.
func Serialize(doc Document) string {
	var b strings.Builder
	b.Grow(len(doc.Prefix) + len(doc.Suffix) + len(StartMarker) + len(EndMarker) + 3 + len(doc.Entries)*32)

	b.WriteString(doc.Prefix)
	if doc.Prefix != "" && !strings.HasSuffix(doc.Prefix, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(StartMarker)
	b.WriteByte('\n')
	for _, entry := range doc.Entries {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	b.WriteString(EndMarker)
	b.WriteByte('\n')
	b.WriteString(doc.Suffix)

	return b.String()
}

// Contains reports whether entry is present, compared after trimming.
func (d Document) Contains(entry string) bool {
	entry = strings.TrimSpace(entry)
	for _, e := range d.Entries {
		if e == entry {
			return true
		}
	}
	return false
}

// checkLoneMarker reports a *FormatError when text has exactly one of the
// two marker lines. Parse reads such text as all prefix, so appending a new
// block to it would leave a second start or end marker behind.
func checkLoneMarker(text string) error {
	start := findMarkerLine(text, StartMarker)
	end := findMarkerLine(text, EndMarker)

	switch {
	case start.count > 0 && end.count == 0:
		return &FormatError{Line: start.line, Reason: "start marker without end marker"}
	case end.count > 0 && start.count == 0:
		return &FormatError{Line: end.line, Reason: "end marker without start marker"}
	}
	return nil
}

// findMarkerLine locates lines equal to marker (ignoring surrounding whitespace).
// Position fields refer to the first occurrence.
func findMarkerLine(text, marker string) markerLine {
	var found markerLine

	pos, lineNo := 0, 1
	for pos <= len(text) {
		next := len(text)
		line := text[pos:]
		if nl := strings.IndexByte(line, '\n'); nl != -1 {
			line = line[:nl]
			next = pos + nl + 1
		}

		if strings.TrimSpace(line) == marker {
			if found.count == 0 {
				found.start = pos
				found.end = next
				found.line = lineNo
			}
			found.count++
		}

		if next >= len(text) {
			break
		}
		pos = next
		lineNo++
	}

	return found
}

func splitEntries(inner string) []string {
	lines := strings.Split(inner, "\n")
	entries := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		entries = append(entries, l)
	}
	return entries
}
