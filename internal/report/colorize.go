package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5EA3FF"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	quoteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	fenceOpen    = regexp.MustCompile("^```(\\S*)\\s*$")
	fenceClose   = regexp.MustCompile("^```\\s*$")
	placeholders = regexp.MustCompile(`^\x00KSTDIN:\d+\x00$`)
)

// RenderColorized highlights the plain Markdown report: headings and bold
// action lines get a whole-line style, fenced code blocks get chroma syntax
// highlighting by their declared language, and heredoc stdin blocks are
// highlighted separately and spliced back in by placeholder (§4.8's
// colorization rule). Every pass only wraps existing text in ANSI escapes —
// it never deletes or substitutes a non-ANSI byte — so ANSI-stripping the
// result reproduces Render's plain output exactly (the round-trip law in
// §8). That rules out whole-document Markdown-to-AST renderers here: they
// reflow paragraphs and drop syntax markers (headers, bullets) as part of
// normal rendering, which would break the law outright.
func RenderColorized(r *Report, workspaceRoot string) (string, error) {
	plain, stdins := renderWithPlaceholders(r, workspaceRoot)
	if strings.TrimSpace(plain) == "" {
		return plain, nil
	}

	profile := termenv.ColorProfile()
	colored := colorizeMarkdown(plain, profile)

	for i, stdin := range stdins {
		colored = strings.ReplaceAll(colored, stdinPlaceholder(i), highlightCode(stdin.Content, stdin.Language, profile))
	}
	return colored, nil
}

// colorizeMarkdown walks the plain report line by line, re-emitting every
// line with the same bytes it came in with plus ANSI escapes wrapped around
// it. Fenced code blocks are highlighted by the fence's declared language,
// one line at a time, so a line that is exactly a stdin placeholder token
// passes through untouched and survives intact for the later splice.
func colorizeMarkdown(plain string, profile termenv.Profile) string {
	lines := strings.Split(plain, "\n")
	var out strings.Builder

	inFence := false
	fenceLang := ""
	for i, line := range lines {
		switch {
		case !inFence && fenceOpen.MatchString(line):
			inFence = true
			fenceLang = fenceOpen.FindStringSubmatch(line)[1]
			out.WriteString(line)
		case inFence && fenceClose.MatchString(line):
			inFence = false
			fenceLang = ""
			out.WriteString(line)
		case inFence:
			out.WriteString(colorizeFenceLine(line, fenceLang, profile))
		default:
			out.WriteString(colorizeTextLine(line))
		}
		if i != len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}

func colorizeFenceLine(line, lang string, profile termenv.Profile) string {
	if placeholders.MatchString(line) || strings.TrimSpace(line) == "" {
		return line
	}
	return highlightCode(line, lang, profile)
}

func colorizeTextLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trimmed, "#"):
		return headingStyle.Render(line)
	case strings.HasPrefix(trimmed, "**") && strings.HasSuffix(trimmed, "**"):
		return boldStyle.Render(line)
	case strings.HasPrefix(trimmed, ">"):
		return quoteStyle.Render(line)
	default:
		return line
	}
}

func highlightCode(code, language string, profile termenv.Profile) string {
	if strings.TrimSpace(code) == "" {
		return code
	}

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	formatter := formatters.NoOp
	switch profile {
	case termenv.TrueColor:
		formatter = formatters.TTY16m
	case termenv.ANSI256:
		formatter = formatters.TTY256
	case termenv.ANSI:
		formatter = formatters.TTY16
	}

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// stdinPlaceholderPrefix is exposed so callers checking round-trip fidelity
// (ANSI-stripped colorized output equals plain output) can locate leftover
// placeholders if a stdin block's index ever falls outside the substituted
// range — it never should, since every placeholder produced by render() is
// substituted here before return.
const stdinPlaceholderPrefix = "\x00KSTDIN:"

func isStdinPlaceholder(s string) bool {
	if !strings.HasPrefix(s, stdinPlaceholderPrefix) {
		return false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(s, stdinPlaceholderPrefix), "\x00")
	_, err := strconv.Atoi(rest)
	return err == nil
}
