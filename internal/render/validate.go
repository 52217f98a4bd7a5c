package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/codu-code/codu/internal/util"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
)

// Diagnostic points at a problem in a post body. Line is 1-based, 0 when the
// problem concerns the whole body.
type Diagnostic struct {
	Line    int    `json:"line"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func (d Diagnostic) Error() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Level, d.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Level, d.Message)
}

func HasCritical(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == LevelCritical {
			return true
		}
	}
	return false
}

// FirstCritical returns the first critical diagnostic, if any.
func FirstCritical(diags []Diagnostic) (Diagnostic, bool) {
	for _, d := range diags {
		if d.Level == LevelCritical {
			return d, true
		}
	}
	return Diagnostic{}, false
}

var reInlineCode = regexp.MustCompile("`+[^`]*`+")

type openTag struct {
	name string
	line int
}

// outline is a parsed body plus the source span of each top-level block.
type outline struct {
	doc    ast.Node
	src    []byte
	starts []int
	calls  []int
}

// parseOutline parses text with the renderer's extensions. The parser hook
// only observes where each top-level block begins.
func parseOutline(text []byte) *outline {
	o := &outline{}
	p := parser.NewWithExtensions(classicExtensions)
	p.Opts.ParserHook = func(data []byte) (ast.Node, []byte, int) {
		if o.src == nil {
			o.src = data
		}
		if len(data) == 0 || len(data) > len(o.src) || &o.src[len(o.src)-len(data)] != &data[0] {
			return nil, nil, 0
		}
		off := len(o.src) - len(data)
		o.calls = append(o.calls, off)

		n := len(p.Doc.AsContainer().Children)
		for len(o.starts) < n {
			o.starts = append(o.starts, off)
		}
		if len(o.starts) == n {
			o.starts = append(o.starts, off)
		} else {
			o.starts[n] = off
		}
		return nil, nil, 0
	}
	o.doc = p.Parse(text)
	return o
}

func (o *outline) blocks() []ast.Node {
	return o.doc.AsContainer().Children
}

// span returns the source range of top-level block i.
func (o *outline) span(i int) (start, end int) {
	if i >= len(o.starts) {
		return len(o.src), len(o.src)
	}
	start = o.starts[i]
	end = len(o.src)
	for _, c := range o.calls {
		if c > start {
			end = c
			break
		}
	}
	return start, end
}

// line returns the 1-based line holding byte off.
func (o *outline) line(off int) int {
	if off > len(o.src) {
		off = len(o.src)
	}
	return 1 + bytes.Count(o.src[:off], []byte("\n"))
}

// openFence returns the index of the first line in src that opens a code
// fence. The parser only leaves such a line in a paragraph when the fence
// is never closed.
func openFence(src []byte) (int, bool) {
	for i, line := range bytes.Split(src, []byte("\n")) {
		trimmed := bytes.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
			continue
		}
		c := trimmed[0]
		if c != '`' && c != '~' {
			continue
		}
		n := 0
		for n < len(trimmed) && trimmed[n] == c {
			n++
		}
		if n < 3 || c == '`' && bytes.IndexByte(trimmed[n:], '`') >= 0 {
			continue
		}
		return i, true
	}
	return 0, false
}

// Validate checks body for markup that would render incorrectly. Block
// structure comes from the markdown parser; {% %} tags are matched line by
// line outside code.
func Validate(body []byte) []Diagnostic {
	var diags []Diagnostic
	add := func(line int, level Level, format string, args ...any) {
		diags = append(diags, Diagnostic{Line: line, Level: level, Message: fmt.Sprintf(format, args...)})
	}

	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	offset := 0
	if util.HasFrontMatter([]byte(text)) {
		fm, err := util.GetFrontMatter([]byte(text))
		if err != nil {
			add(1, LevelCritical, "Invalid front matter: %v", err)
			return diags
		}
		trimmed := strings.TrimLeft(text, "\n \t\r")
		offset = strings.Count(text[:len(text)-len(trimmed)], "\n") + strings.Count(trimmed[:fm.Consumed], "\n")
		text = trimmed[fm.Consumed:]
	}

	o := parseOutline([]byte(text))
	inCode := map[int]bool{}
	lastLevel := 0

	for i, block := range o.blocks() {
		start, end := o.span(i)
		first := o.line(start)

		switch block.(type) {
		case *ast.CodeBlock:
			if end > start {
				for l := first; l <= o.line(end-1); l++ {
					inCode[l] = true
				}
			}
			continue
		case *ast.Paragraph:
			if n, ok := openFence(o.src[start:end]); ok {
				line := first + n + offset
				add(line, LevelCritical, "Code block opened on line %d is never closed", line)
			}
		}

		ast.WalkFunc(block, func(node ast.Node, entering bool) ast.WalkStatus {
			h, ok := node.(*ast.Heading)
			if !ok || !entering || h.IsTitleblock || h.IsSpecial {
				return ast.GoToNext
			}
			if lastLevel > 0 && h.Level > lastLevel+1 {
				add(first+offset, LevelWarning, "Heading level jumps from h%d to h%d", lastLevel, h.Level)
			}
			lastLevel = h.Level
			return ast.GoToNext
		})
	}

	var stack []openTag
	for i, line := range strings.Split(text, "\n") {
		if inCode[i+1] {
			continue
		}
		lineNo := i + 1 + offset

		scan := reInlineCode.ReplaceAllString(line, "")
		for _, t := range parseTags(scan) {
			if t.name == "" {
				add(lineNo, LevelCritical, "Malformed tag %q", scan[t.start:t.end])
				continue
			}
			if !KnownTags[t.name] {
				add(lineNo, LevelWarning, "Unknown tag %q", t.name)
			}
			switch {
			case t.closing:
				if len(stack) == 0 {
					add(lineNo, LevelCritical, "Closing tag {%% /%s %%} has no opening tag", t.name)
					continue
				}
				top := stack[len(stack)-1]
				if top.name != t.name {
					add(lineNo, LevelCritical, "Closing tag {%% /%s %%} does not match {%% %s %%} opened on line %d", t.name, top.name, top.line)
					continue
				}
				stack = stack[:len(stack)-1]
			case t.selfClosing, t.name == "else":
			default:
				stack = append(stack, openTag{name: t.name, line: lineNo})
			}
		}
		if rest := reTag.ReplaceAllString(scan, ""); strings.Contains(rest, "{%") {
			add(lineNo, LevelCritical, "Unterminated tag, missing %%}")
		}
	}

	for _, t := range stack {
		add(t.line, LevelCritical, "Tag {%% %s %%} opened on line %d is never closed", t.name, t.line)
	}
	return diags
}
