package render

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown/ast"
)

// KnownTags are the {% tag %} names the renderer understands.
var KnownTags = map[string]bool{
	"callout":     true,
	"codepen":     true,
	"codesandbox": true,
	"youtube":     true,
	"media":       true,
	"table":       true,
	"partial":     true,
	"if":          true,
	"else":        true,
}

var (
	reTag     = regexp.MustCompile(`\{%(.*?)%\}`)
	reTagName = regexp.MustCompile(`^[A-Za-z][\w-]*`)
	reAttr    = regexp.MustCompile(`([\w-]+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"']+))`)
)

// TagNode is a block level {% tag %} found on a line of its own.
type TagNode struct {
	ast.Leaf

	Name        string
	Attrs       map[string]string
	Closing     bool
	SelfClosing bool
}

type tagMatch struct {
	start, end  int
	name        string
	attrs       map[string]string
	closing     bool
	selfClosing bool
}

// parseTags finds every {% ... %} span on a line. A span whose body does not
// start with a name gets an empty name.
func parseTags(line string) []tagMatch {
	var out []tagMatch
	for _, m := range reTag.FindAllStringSubmatchIndex(line, -1) {
		inner := strings.TrimSpace(line[m[2]:m[3]])
		t := tagMatch{start: m[0], end: m[1], attrs: map[string]string{}}

		if strings.HasPrefix(inner, "/") {
			t.closing = true
			inner = strings.TrimSpace(inner[1:])
		}
		if strings.HasSuffix(inner, "/") {
			t.selfClosing = true
			inner = strings.TrimSpace(strings.TrimSuffix(inner, "/"))
		}
		t.name = reTagName.FindString(inner)
		for _, a := range reAttr.FindAllStringSubmatch(inner[len(t.name):], -1) {
			t.attrs[a[1]] = a[2] + a[3] + a[4]
		}
		out = append(out, t)
	}
	return out
}

// tagHook claims lines consisting of a single tag.
func tagHook(data []byte) (ast.Node, []byte, int) {
	if !bytes.HasPrefix(data, []byte("{%")) {
		return nil, nil, 0
	}
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		end = len(data)
	}
	line := strings.TrimSpace(string(data[:end]))
	tags := parseTags(line)
	if len(tags) != 1 || tags[0].name == "" || tags[0].start != 0 || tags[0].end != len(line) {
		return nil, nil, 0
	}

	consumed := end
	if consumed < len(data) {
		consumed++
	}
	t := tags[0]
	return &TagNode{
		Name:        t.name,
		Attrs:       t.attrs,
		Closing:     t.closing,
		SelfClosing: t.selfClosing,
	}, nil, consumed
}

func embedSrc(tag *TagNode) string {
	src := tag.Attrs["src"]
	switch tag.Name {
	case "youtube":
		if id := tag.Attrs["id"]; id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case "codepen":
		if id := tag.Attrs["id"]; id != "" {
			return "https://codepen.io/" + tag.Attrs["user"] + "/embed/" + id
		}
	}
	if strings.HasPrefix(src, "https://") {
		return src
	}
	return ""
}

func renderTag(w io.Writer, tag *TagNode) {
	switch tag.Name {
	case "callout":
		if tag.Closing {
			io.WriteString(w, "</aside>\n")
			return
		}
		kind := tag.Attrs["type"]
		if kind == "" {
			kind = "note"
		}
		fmt.Fprintf(w, "<aside class=\"callout callout-%s\">\n", html.EscapeString(kind))
		if title := tag.Attrs["title"]; title != "" {
			fmt.Fprintf(w, "<p class=\"callout-title\">%s</p>\n", html.EscapeString(title))
		}
		if tag.SelfClosing {
			io.WriteString(w, "</aside>\n")
		}
	case "youtube", "codepen", "codesandbox":
		if tag.Closing {
			return
		}
		src := embedSrc(tag)
		if src == "" {
			return
		}
		fmt.Fprintf(w, "<div class=\"embed embed-%s\"><iframe src=\"%s\" title=\"%s\" loading=\"lazy\" allowfullscreen></iframe></div>\n",
			tag.Name, html.EscapeString(src), html.EscapeString(tag.Attrs["title"]))
	case "media":
		if tag.Closing {
			return
		}
		src := tag.Attrs["src"]
		if src == "" {
			return
		}
		fmt.Fprintf(w, "<figure class=\"media\"><img src=\"%s\" alt=\"%s\" loading=\"lazy\"></figure>\n",
			html.EscapeString(src), html.EscapeString(tag.Attrs["alt"]))
	}
}
