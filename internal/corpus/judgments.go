package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Diagnostic describes a judgment line that was skipped.
type Diagnostic struct {
	Line   int
	Text   string
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %q", d.Line, d.Reason, d.Text)
}

// ParseJudgments reads "query_id doc_id [extra...]" lines. Blank lines are
// ignored, malformed lines are skipped and reported as diagnostics, and
// duplicate pairs collapse. Lines may be of any length. The error is only set
// when reading fails.
func ParseJudgments(r io.Reader) (Judgments, []Diagnostic, error) {
	judgments := make(Judgments)
	var diags []Diagnostic

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, diags, fmt.Errorf("reading judgments: %w", err)
		}
		if line != "" {
			if d, ok := judgments.addLine(strings.TrimRight(line, "\r\n")); !ok {
				d.Line = lineNo
				diags = append(diags, d)
			}
		}
		if err == io.EOF {
			break
		}
	}

	return judgments, diags, nil
}

// addLine records the pair on one judgment line. A false result carries the
// reason the line was skipped.
func (j Judgments) addLine(line string) (Diagnostic, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Diagnostic{}, true
	}
	if len(fields) < 2 {
		return Diagnostic{Text: line, Reason: "expected query id and document id"}, false
	}

	queryID, err := strconv.Atoi(fields[0])
	if err != nil {
		return Diagnostic{Text: line, Reason: "query id is not an integer"}, false
	}
	docID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Diagnostic{Text: line, Reason: "document id is not an integer"}, false
	}

	j.Add(queryID, docID)
	return Diagnostic{}, true
}
