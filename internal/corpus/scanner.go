package corpus

import (
	"strconv"
	"strings"
)

// Field markers of the CISI format. A marker is a line consisting of a dot,
// one upper-case letter and optionally whitespace plus an argument.
const (
	markerRecord byte = 'I'
	markerTitle  byte = 'T'
	markerAuthor byte = 'A'
	markerBody   byte = 'W'
	markerCites  byte = 'X'
)

// rawField is the text collected between a field marker and the next marker.
type rawField struct {
	marker byte
	lines  []string
}

// text joins the field lines and trims surrounding whitespace.
func (f rawField) text() string {
	return strings.TrimSpace(strings.Join(f.lines, "\n"))
}

// rawRecord is everything between one record marker and the next.
type rawRecord struct {
	// id is the integer following the record marker, e.g. 12 for ".I 12".
	id     int
	fields []rawField
}

// field returns the first occurrence of the given marker in the record.
func (r rawRecord) field(marker byte) (rawField, bool) {
	for _, f := range r.fields {
		if f.marker == marker {
			return f, true
		}
	}
	return rawField{}, false
}

// scanRecords splits raw collection text into records. A record starts at a
// record marker followed by an integer; a record marker with any other
// argument is ordinary field text. Text before the first record marker is
// discarded, as are lines inside a record that precede its first field
// marker. Unknown markers still terminate the previous field.
func scanRecords(raw string) []rawRecord {
	var (
		records []rawRecord
		cur     *rawRecord
		field   *rawField
	)

	flushField := func() {
		if cur != nil && field != nil {
			cur.fields = append(cur.fields, *field)
		}
		field = nil
	}
	flushRecord := func() {
		flushField()
		if cur != nil {
			records = append(records, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")

		marker, arg, ok := parseMarker(line)
		if ok && marker == markerRecord {
			id, err := strconv.Atoi(arg)
			if err == nil {
				flushRecord()
				cur = &rawRecord{id: id}
				continue
			}
			ok = false
		}
		if !ok {
			if field != nil {
				field.lines = append(field.lines, line)
			}
			continue
		}

		flushField()
		if cur == nil {
			continue
		}
		field = &rawField{marker: marker}
		if arg != "" {
			field.lines = append(field.lines, arg)
		}
	}
	flushRecord()

	return records
}

// parseMarker reports whether line is a field marker and returns the marker
// letter and the trimmed remainder of the line.
func parseMarker(line string) (byte, string, bool) {
	trimmed := strings.TrimRight(line, " \t")
	if len(trimmed) < 2 || trimmed[0] != '.' {
		return 0, "", false
	}
	letter := trimmed[1]
	if letter < 'A' || letter > 'Z' {
		return 0, "", false
	}
	if len(trimmed) == 2 {
		return letter, "", true
	}
	if trimmed[2] != ' ' && trimmed[2] != '\t' {
		return 0, "", false
	}
	return letter, strings.TrimSpace(trimmed[3:]), true
}
