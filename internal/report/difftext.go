package report

import (
	"regexp"
	"strings"
)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// classifyMessage implements §4.7's diff-detection rule: after ANSI
// stripping, a message is "diff" iff it contains a "+…" line whose second
// character is not another "+" (so unified-diff "+++" file headers don't
// count), and a "-…" line whose second character is not another "-". ANSI-stripping is a prerequisite here, not a side effect of some
// other step — escape codes must never influence the classification.
func classifyMessage(message string) string {
	stripped := stripANSI(message)
	var hasAdded, hasRemoved bool
	for _, line := range strings.Split(stripped, "\n") {
		if isDiffAddedLine(line) {
			hasAdded = true
		}
		if isDiffRemovedLine(line) {
			hasRemoved = true
		}
		if hasAdded && hasRemoved {
			return "diff"
		}
	}
	return "text"
}

func isDiffAddedLine(line string) bool {
	return strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "++")
}

func isDiffRemovedLine(line string) bool {
	return strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "--")
}
