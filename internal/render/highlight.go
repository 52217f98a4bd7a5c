package render

import (
	"html/template"
	"slices"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/codu-code/codu/internal/cache"
)

var syntaxCSS = cache.NewCache[string, template.CSS]()

func formatter() *html.Formatter {
	return html.New(
		html.WithClasses(true),
		html.TabWidth(4),
		html.WithLineNumbers(true),
		html.WrapLongLines(true),
	)
}

// HighlightCode returns chroma HTML for code, or the escaped code when the
// lexer fails.
func HighlightCode(code, language, syntaxTheme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(syntaxTheme)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return template.HTMLEscapeString(code)
	}

	var buf strings.Builder
	if err := formatter().Format(&buf, style, iterator); err != nil {
		return template.HTMLEscapeString(code)
	}
	return buf.String()
}

func SyntaxThemes() []string {
	names := styles.Names()
	slices.Sort(names)
	return names
}

func ValidSyntaxTheme(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

// SyntaxCSS returns the stylesheet for a chroma theme.
func SyntaxCSS(syntaxTheme string) template.CSS {
	if css, ok := syntaxCSS.Get(syntaxTheme); ok {
		return css
	}

	var buf strings.Builder
	style := styles.Get(syntaxTheme)

	bg := style.Get(chroma.Background)
	if !bg.Colour.IsSet() {
		// pick a readable text colour when the theme leaves it unset
		luminance := (0.299*float64(bg.Background.Red()) +
			0.587*float64(bg.Background.Green()) +
			0.114*float64(bg.Background.Blue())) / 255
		if luminance > 0.5 {
			buf.WriteString(".chroma { color: #181818; }\n")
		}
	}

	formatter().WriteCSS(&buf, style)
	css := template.CSS(buf.String())
	syntaxCSS.Set(syntaxTheme, css)
	return css
}
