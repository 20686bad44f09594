package report

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// frame is one parsed stack line.
type frame struct {
	funcName string
	filePath string
	line     int
	col      int
}

var (
	frameWithFunc = regexp.MustCompile(`^at\s+(?:async\s+)?(\S+)\s+\(([^()]+):(\d+):(\d+)\)$`)
	frameBare     = regexp.MustCompile(`^at\s+(?:async\s+)?([^()\s][^()]*):(\d+):(\d+)$`)
	frameParen    = regexp.MustCompile(`^at\s+(?:async\s+)?\(([^()]+):(\d+):(\d+)\)$`)
)

// parseFrames implements §4.9 step 1: each line is tried against the three
// accepted forms in turn; anything else (snippet lines, carets, diff hunks,
// blanks) is silently ignored rather than treated as a parse error.
func parseFrames(stack string) []frame {
	var frames []frame
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := frameWithFunc.FindStringSubmatch(line); m != nil {
			frames = append(frames, frame{funcName: m[1], filePath: m[2], line: atoi(m[3]), col: atoi(m[4])})
			continue
		}
		if m := frameParen.FindStringSubmatch(line); m != nil {
			frames = append(frames, frame{filePath: m[1], line: atoi(m[2]), col: atoi(m[3])})
			continue
		}
		if m := frameBare.FindStringSubmatch(line); m != nil {
			frames = append(frames, frame{filePath: m[1], line: atoi(m[2]), col: atoi(m[3])})
			continue
		}
	}
	return frames
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// coreLibraryPrefixes are workspace-relative path prefixes excluded from
// user-frame selection (§4.9 step 2e). This module has no "ts/…"-style
// vendored source tree, so the list only holds this module's own library
// tree.
var coreLibraryPrefixes = []string{"internal/"}

func isUserFrame(f frame, workspaceRoot string) bool {
	if f.filePath == "unknown" {
		return false
	}
	if strings.HasPrefix(f.filePath, "<") {
		return false
	}
	if strings.Contains(f.filePath, "/node_modules/") {
		return false
	}
	if strings.HasPrefix(f.filePath, "native:") {
		return false
	}
	if workspaceRoot != "" {
		rel := strings.TrimPrefix(f.filePath, workspaceRoot)
		rel = strings.TrimPrefix(rel, "/")
		for _, prefix := range coreLibraryPrefixes {
			if strings.HasPrefix(rel, prefix) {
				return false
			}
		}
	}
	return true
}

func selectUserFrame(frames []frame, workspaceRoot string) (frame, bool) {
	for _, f := range frames {
		if isUserFrame(f, workspaceRoot) {
			return f, true
		}
	}
	return frame{}, false
}

// RenderTrace implements §4.9: parse frames, select the user frame, render
// up to 6 lines of source context around it (if readable), then list every
// frame in `at [funcName ]filePath:line:col` form.
func RenderTrace(stack, workspaceRoot string) string {
	frames := parseFrames(stack)
	if len(frames) == 0 {
		return ""
	}

	var b strings.Builder
	if userFrame, ok := selectUserFrame(frames, workspaceRoot); ok {
		if ctx := sourceContext(userFrame); ctx != "" {
			b.WriteString(ctx)
			b.WriteString("\n")
		}
	}
	for _, f := range frames {
		b.WriteString(renderFrameLine(f))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderFrameLine(f frame) string {
	if f.funcName != "" {
		return fmt.Sprintf("at %s %s:%d:%d", f.funcName, f.filePath, f.line, f.col)
	}
	return fmt.Sprintf("at %s:%d:%d", f.filePath, f.line, f.col)
}

// sourceContext renders up to 6 lines ending at f.line, with a caret under
// f.col on the target line. Returns "" when the file can't be read.
func sourceContext(f frame) string {
	content, err := os.ReadFile(f.filePath)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(content), "\n")
	if f.line < 1 || f.line > len(lines) {
		return ""
	}

	const maxContext = 6
	start := f.line - maxContext + 1
	if start < 1 {
		start = 1
	}
	end := f.line

	gutterWidth := len(strconv.Itoa(end))

	var b strings.Builder
	for n := start; n <= end; n++ {
		code := lines[n-1]
		fmt.Fprintf(&b, "%*d | %s\n", gutterWidth, n, code)
		if n == f.line {
			pad := strings.Repeat(" ", gutterWidth) + " | "
			if f.col > 1 {
				pad += strings.Repeat(" ", f.col-1)
			}
			b.WriteString(pad + "^\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
